package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/iambrandonn/projectsetup/internal/console"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func parseLogLevel(input string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "", "warn", "warning":
		return slog.LevelWarn, nil
	case "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "error", "err":
		return slog.LevelError, nil
	default:
		return slog.LevelWarn, fmt.Errorf("unsupported log level %q (expected debug, info, warn or error)", input)
	}
}

// newLogger writes diagnostics to the command's stderr at the --log-level level
func newLogger(cmd *cobra.Command) (*slog.Logger, error) {
	raw, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return nil, err
	}
	level, err := parseLogLevel(raw)
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: level,
	})), nil
}

// newConsole creates the user-facing console; colour only reaches terminals
func newConsole(cmd *cobra.Command) *console.Console {
	out := cmd.OutOrStdout()
	con := console.New(out, cmd.ErrOrStderr())
	if !isTerminal(out) {
		con.DisableColor()
	}
	return con
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
