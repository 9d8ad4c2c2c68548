package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// Store remembers answers of questions marked with Store between invocations
type Store interface {
	Lookup(name string) (any, bool)
	Remember(name string, value any) error
}

// Console asks questions on a terminal, one line per answer.
// When the input is not a terminal an invalid answer fails the prompt
// instead of asking again.
type Console struct {
	in          *bufio.Reader
	out         io.Writer
	interactive bool
	store       Store

	question *color.Color
	hint     *color.Color
	problem  *color.Color
}

// NewConsole creates a console prompter reading from r and writing to w
func NewConsole(r io.Reader, w io.Writer) *Console {
	interactive := false
	if f, ok := r.(*os.File); ok {
		interactive = term.IsTerminal(int(f.Fd()))
	}

	return &Console{
		in:          bufio.NewReader(r),
		out:         w,
		interactive: interactive,
		question:    color.New(color.FgGreen, color.Bold),
		hint:        color.New(color.FgCyan),
		problem:     color.New(color.FgRed),
	}
}

// WithStore attaches a store for remembered answers
func (c *Console) WithStore(s Store) *Console {
	c.store = s
	return c
}

// SetInteractive overrides terminal detection
func (c *Console) SetInteractive(interactive bool) {
	c.interactive = interactive
}

// Prompt asks every question in order
func (c *Console) Prompt(ctx context.Context, questions []Question) (Answers, error) {
	answers := make(Answers, len(questions))

	for _, q := range questions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		value, err := c.ask(q)
		if err != nil {
			return nil, err
		}
		answers[q.Name] = value

		if q.Store && c.store != nil {
			if err := c.store.Remember(q.Name, value); err != nil {
				return nil, fmt.Errorf("failed to remember answer %q: %w", q.Name, err)
			}
		}
	}

	return answers, nil
}

func (c *Console) ask(q Question) (any, error) {
	def := q.Default
	if q.Store && c.store != nil {
		if stored, ok := c.store.Lookup(q.Name); ok {
			def = stored
		}
	}

	for {
		c.render(q, def)

		line, err := c.readLine()
		if err != nil {
			return nil, fmt.Errorf("question %q: %w", q.Name, err)
		}

		value, err := c.parse(q, line, def)
		if err == nil {
			value, err = q.Accept(value)
		}
		if err == nil {
			return value, nil
		}

		if !c.interactive {
			return nil, err
		}
		c.problem.Fprintf(c.out, ">> %s\n", strings.TrimPrefix(err.Error(), ErrInvalidAnswer.Error()+": "))
	}
}

func (c *Console) render(q Question, def any) {
	message := q.Message
	if message == "" {
		message = q.Name
	}

	fmt.Fprintf(c.out, "%s %s", c.question.Sprint("?"), message)

	switch q.Kind() {
	case TypeList, TypeCheckbox:
		fmt.Fprintln(c.out)
		for i, choice := range q.Choices {
			fmt.Fprintf(c.out, "  %s %s\n", c.hint.Sprintf("%d)", i+1), choice)
		}
		if q.Kind() == TypeCheckbox {
			fmt.Fprint(c.out, c.hint.Sprint("  (comma separated)"))
		}
		if def != nil {
			fmt.Fprintf(c.out, " %s", c.hint.Sprintf("[%s]", formatDefault(def)))
		}
		fmt.Fprint(c.out, " > ")
	case TypeConfirm:
		hint := "(y/n)"
		if b, ok := def.(bool); ok {
			if b {
				hint = "(Y/n)"
			} else {
				hint = "(y/N)"
			}
		}
		fmt.Fprintf(c.out, " %s ", c.hint.Sprint(hint))
	default:
		if def != nil && fmt.Sprint(def) != "" {
			fmt.Fprintf(c.out, " %s", c.hint.Sprintf("(%v)", def))
		}
		fmt.Fprint(c.out, " ")
	}
}

func (c *Console) readLine() (string, error) {
	line, err := c.in.ReadString('\n')
	if errors.Is(err, io.EOF) {
		if line == "" {
			return "", ErrNoInput
		}
		return strings.TrimSpace(line), nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// parse turns a typed line into a raw answer; blank lines select the default
func (c *Console) parse(q Question, line string, def any) (any, error) {
	if line == "" {
		if def == nil {
			switch q.Kind() {
			case TypeCheckbox:
				return []string{}, nil
			case TypeInput:
				return "", nil
			}
			return nil, fmt.Errorf("%w: an answer is required", ErrInvalidAnswer)
		}
		return def, nil
	}

	switch q.Kind() {
	case TypeList:
		return choiceFor(q, line)
	case TypeCheckbox:
		selected := []string{}
		for _, token := range strings.Split(line, ",") {
			token = strings.TrimSpace(token)
			if token == "" {
				continue
			}
			choice, err := choiceFor(q, token)
			if err != nil {
				return nil, err
			}
			selected = append(selected, choice)
		}
		return selected, nil
	default:
		return line, nil
	}
}

func choiceFor(q Question, token string) (string, error) {
	if n, err := strconv.Atoi(token); err == nil {
		if n < 1 || n > len(q.Choices) {
			return "", fmt.Errorf("%w: choose a number between 1 and %d", ErrInvalidAnswer, len(q.Choices))
		}
		return q.Choices[n-1], nil
	}
	return token, nil
}

func formatDefault(def any) string {
	if items, ok := toStrings(def); ok {
		return strings.Join(items, ", ")
	}
	return fmt.Sprint(def)
}
