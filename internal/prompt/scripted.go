package prompt

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Script is a recorded sequence of answers, one entry per Prompt call.
// It is read from YAML or JSON:
//
//	responses:
//	  - task: Go service
//	  - module: example.com/app
type Script struct {
	Responses []Answers `yaml:"responses" json:"responses"`
}

// Scripted answers prompts from a Script, consuming one response per call
type Scripted struct {
	mu        sync.Mutex
	responses []Answers
	next      int
}

// NewScripted creates a prompter that replays the given responses in order
func NewScripted(responses ...Answers) *Scripted {
	return &Scripted{responses: responses}
}

// LoadScript reads an answers script from path
func LoadScript(path string) (*Scripted, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read answers script: %w", err)
	}

	var script Script
	if err := yaml.Unmarshal(data, &script); err != nil {
		return nil, fmt.Errorf("parse answers script %s: %w", path, err)
	}

	return NewScripted(script.Responses...), nil
}

// Prompt answers questions from the next recorded response.
// Missing answers fall back to the question default.
func (s *Scripted) Prompt(ctx context.Context, questions []Question) (Answers, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.next >= len(s.responses) {
		s.mu.Unlock()
		return nil, fmt.Errorf("scripted response %d: %w", s.next+1, ErrNoInput)
	}
	response := s.responses[s.next]
	s.next++
	s.mu.Unlock()

	answers := make(Answers, len(questions))
	for _, q := range questions {
		raw, ok := response[q.Name]
		if !ok {
			if q.Default == nil && q.Kind() != TypeInput && q.Kind() != TypeCheckbox {
				return nil, fmt.Errorf("%w: no scripted answer for %q", ErrInvalidAnswer, q.Name)
			}
			raw = q.Default
		}

		value, err := q.Accept(raw)
		if err != nil {
			return nil, err
		}
		answers[q.Name] = value
	}

	return answers, nil
}

// Remaining returns the number of unused responses
func (s *Scripted) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.responses) - s.next
}
