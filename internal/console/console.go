package console

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/iambrandonn/projectsetup/internal/protocol"
)

// Console prints labelled progress lines for the user.
// Steps and warnings go to out, errors to errOut.
type Console struct {
	out    io.Writer
	errOut io.Writer

	label   *color.Color
	text    *color.Color
	warning *color.Color
	failure *color.Color
	muted   *color.Color
}

// New creates a console writing to out and errOut
func New(out, errOut io.Writer) *Console {
	return &Console{
		out:     out,
		errOut:  errOut,
		label:   color.New(color.FgBlue),
		text:    color.New(color.FgWhite),
		warning: color.New(color.FgYellow),
		failure: color.New(color.FgRed),
		muted:   color.New(color.Faint),
	}
}

// DisableColor strips colour codes from every line this console prints
func (c *Console) DisableColor() {
	for _, col := range []*color.Color{c.label, c.text, c.warning, c.failure, c.muted} {
		col.DisableColor()
	}
}

// Step prints a progress line such as "Checkout git@host:team/config.git"
func (c *Console) Step(label, message string) {
	fmt.Fprintf(c.out, "%s %s\n", c.label.Sprint(label), c.text.Sprint(message))
}

// Warn prints a recoverable problem
func (c *Console) Warn(label, message string) {
	fmt.Fprintf(c.out, "  %s %s\n", c.warning.Sprint(label), c.text.Sprint(message))
}

// Error prints a fatal problem
func (c *Console) Error(label, message string) {
	fmt.Fprintf(c.errOut, "%s %s\n", c.failure.Sprint(label), c.text.Sprint(message))
}

// UnitLog prints a log message emitted by the unit of task
func (c *Console) UnitLog(task string, log *protocol.Log) {
	line := FormatLog(task, log)
	switch log.Level {
	case protocol.LogLevelError:
		fmt.Fprintln(c.errOut, c.failure.Sprint(line))
	case protocol.LogLevelWarn:
		fmt.Fprintln(c.out, c.warning.Sprint(line))
	case protocol.LogLevelDebug:
		fmt.Fprintln(c.out, c.muted.Sprint(line))
	default:
		fmt.Fprintln(c.out, line)
	}
}

// FormatLog formats a unit log message for console display
func FormatLog(task string, log *protocol.Log) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", task, log.Message)

	if len(log.Fields) > 0 {
		keys := make([]string, 0, len(log.Fields))
		for k := range log.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, log.Fields[k])
		}
	}

	if log.Level == protocol.LogLevelWarn || log.Level == protocol.LogLevelError {
		return fmt.Sprintf("[%s] %s", strings.ToUpper(string(log.Level)), b.String())
	}
	return b.String()
}

// FormatHook formats a transcript record of a hook call
func FormatHook(rec *protocol.HookRecord) string {
	line := fmt.Sprintf("[%s] %s #%d %s", rec.TaskKey, rec.Hook, rec.Index, rec.Status)
	if rec.Error != "" {
		line += ": " + rec.Error
	}
	return line
}
