package prompt

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// Type is the kind of a question
type Type string

const (
	// TypeList asks for exactly one of the choices.
	TypeList Type = "list"
	// TypeCheckbox asks for any subset of the choices, in choice order.
	TypeCheckbox Type = "checkbox"
	// TypeInput asks for free-form text.
	TypeInput Type = "input"
	// TypeConfirm asks a yes/no question.
	TypeConfirm Type = "confirm"
)

var (
	// ErrNoInput is returned when the answer source is exhausted
	ErrNoInput = errors.New("no input available")
	// ErrInvalidAnswer is returned when an answer does not satisfy its question
	ErrInvalidAnswer = errors.New("invalid answer")
)

// Question describes a single prompt
type Question struct {
	Type    Type     `yaml:"type,omitempty" json:"type,omitempty"`
	Name    string   `yaml:"name" json:"name"`
	Message string   `yaml:"message,omitempty" json:"message,omitempty"`
	Choices []string `yaml:"choices,omitempty" json:"choices,omitempty"`
	Default any      `yaml:"default,omitempty" json:"default,omitempty"`
	// Pattern restricts input answers to values matching the regular expression.
	Pattern string `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	// Invalid is shown instead of the generic error when Pattern does not match.
	Invalid string `yaml:"invalid,omitempty" json:"invalid,omitempty"`
	// Store remembers the answer and offers it as the default next time.
	Store bool `yaml:"store,omitempty" json:"store,omitempty"`
}

// Answers maps question names to answers
type Answers map[string]any

// Prompter asks questions and returns the answers keyed by question name
type Prompter interface {
	Prompt(ctx context.Context, questions []Question) (Answers, error)
}

// Func adapts a function to the Prompter interface
type Func func(ctx context.Context, questions []Question) (Answers, error)

// Prompt calls f
func (f Func) Prompt(ctx context.Context, questions []Question) (Answers, error) {
	return f(ctx, questions)
}

// Kind returns the question type, treating an empty type as input
func (q Question) Kind() Type {
	if q.Type == "" {
		return TypeInput
	}
	return q.Type
}

// Validate checks that the question is well formed
func (q Question) Validate() error {
	if strings.TrimSpace(q.Name) == "" {
		return fmt.Errorf("question is missing 'name'")
	}

	switch q.Kind() {
	case TypeList, TypeCheckbox:
		if len(q.Choices) == 0 {
			return fmt.Errorf("question %q of type %s has no choices", q.Name, q.Kind())
		}
	case TypeInput, TypeConfirm:
	default:
		return fmt.Errorf("question %q has unknown type %q (expected list, checkbox, input or confirm)", q.Name, q.Type)
	}

	if q.Pattern != "" {
		if _, err := regexp.Compile(q.Pattern); err != nil {
			return fmt.Errorf("question %q has invalid pattern: %w", q.Name, err)
		}
	}

	return nil
}

// Accept normalizes a raw answer for the question and rejects values that do not fit.
// List answers become a string, checkbox answers a []string without repeats, confirm answers a bool
// and input answers a string.
func (q Question) Accept(value any) (any, error) {
	switch q.Kind() {
	case TypeList:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %q expects one choice, got %v", ErrInvalidAnswer, q.Name, value)
		}
		if !slices.Contains(q.Choices, s) {
			return nil, fmt.Errorf("%w: %q is not a choice of %q", ErrInvalidAnswer, s, q.Name)
		}
		return s, nil

	case TypeCheckbox:
		items, ok := toStrings(value)
		if !ok {
			return nil, fmt.Errorf("%w: %q expects a list of choices, got %v", ErrInvalidAnswer, q.Name, value)
		}
		selected := make([]string, 0, len(items))
		for _, item := range items {
			if !slices.Contains(q.Choices, item) {
				return nil, fmt.Errorf("%w: %q is not a choice of %q", ErrInvalidAnswer, item, q.Name)
			}
			// a choice is selected once, at its first position
			if !slices.Contains(selected, item) {
				selected = append(selected, item)
			}
		}
		return selected, nil

	case TypeConfirm:
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			if b, ok := parseYesNo(v); ok {
				return b, nil
			}
		}
		return nil, fmt.Errorf("%w: %q expects yes or no, got %v", ErrInvalidAnswer, q.Name, value)

	default:
		s := ""
		if value != nil {
			s = fmt.Sprint(value)
		}
		if q.Pattern != "" {
			re, err := regexp.Compile(q.Pattern)
			if err != nil {
				return nil, fmt.Errorf("question %q has invalid pattern: %w", q.Name, err)
			}
			if !re.MatchString(s) {
				if q.Invalid != "" {
					return nil, fmt.Errorf("%w: %s", ErrInvalidAnswer, q.Invalid)
				}
				return nil, fmt.Errorf("%w: %q does not match %s", ErrInvalidAnswer, s, q.Pattern)
			}
		}
		return s, nil
	}
}

// String returns the answer for name if it is a string
func (a Answers) String(name string) (string, bool) {
	s, ok := a[name].(string)
	return s, ok
}

// Strings returns the answer for name if it is a list of strings
func (a Answers) Strings(name string) ([]string, bool) {
	v, ok := a[name]
	if !ok {
		return nil, false
	}
	return toStrings(v)
}

func toStrings(value any) ([]string, bool) {
	switch v := value.(type) {
	case []string:
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	case nil:
		return []string{}, true
	default:
		return nil, false
	}
}

func parseYesNo(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes":
		return true, true
	case "n", "no":
		return false, true
	}
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return false, false
	}
	return b, true
}
