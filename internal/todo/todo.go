// Package todo holds the resolved task selections and merges their answers
// into the configuration shared by every unit.
package todo

import (
	"github.com/iambrandonn/projectsetup/internal/config"
	"github.com/iambrandonn/projectsetup/internal/prompt"
)

// Todo is a selected task together with the answers to its questions.
// Config is nil when the task declares no questions.
type Todo struct {
	Task   *config.Task   `json:"task"`
	Config prompt.Answers `json:"config"`
}

// SharedConfig is the union of every todo's config
type SharedConfig map[string]any

// Key returns the key of the todo's task
func (t Todo) Key() string {
	if t.Task == nil {
		return ""
	}
	return t.Task.Key
}

// Merge folds the configs of todos into one mapping. Later todos overwrite
// keys set by earlier ones; nested values are replaced, not merged.
func Merge(todos []Todo) SharedConfig {
	shared := make(SharedConfig)
	for _, t := range todos {
		for k, v := range t.Config {
			shared[k] = v
		}
	}
	return shared
}

// Keys returns the task keys of todos in order
func Keys(todos []Todo) []string {
	keys := make([]string, 0, len(todos))
	for _, t := range todos {
		keys = append(keys, t.Key())
	}
	return keys
}

// Snapshot returns a copy of todos that does not share the backing array
func Snapshot(todos []Todo) []Todo {
	out := make([]Todo, len(todos))
	copy(out, todos)
	return out
}
