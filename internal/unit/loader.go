package unit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/iambrandonn/projectsetup/internal/fsutil"
	"github.com/iambrandonn/projectsetup/internal/todo"
)

// ErrEntryNotFound is returned when a declared entry does not resolve to a unit
var ErrEntryNotFound = errors.New("entry not found")

// LoadError reports the task whose entry could not be loaded
type LoadError struct {
	TaskKey string
	Path    string
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load entry %q of task %q: %v", e.Path, e.TaskKey, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Resolution is the outcome of one resolve-and-load pass. Units and Params
// are index-aligned with the todos that declare an entry.
type Resolution struct {
	Todos  []todo.Todo
	Units  []Unit
	Params []*Params
	Config todo.SharedConfig
}

// Loader opens the units of todos
type Loader struct {
	registry *Registry
	logger   *slog.Logger
}

// NewLoader creates a loader. A nil registry resolves no builtin entries.
func NewLoader(registry *Registry, logger *slog.Logger) *Loader {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Loader{registry: registry, logger: logger}
}

// Load opens the unit of every todo that declares an entry and builds its
// params. Todos without an entry are skipped rather than left as gaps, so the
// returned units never contain nil. Every params value sees all todos.
func (l *Loader) Load(ctx context.Context, dir string, todos []todo.Todo, gen Generator) (*Resolution, error) {
	shared := todo.Merge(todos)
	res := &Resolution{
		Todos:  todos,
		Units:  []Unit{},
		Params: []*Params{},
		Config: shared,
	}

	for i := range todos {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		task := todos[i].Task
		if task == nil || task.Entry == "" {
			continue
		}

		u, err := l.Open(dir, task.Entry)
		if err != nil {
			return nil, &LoadError{TaskKey: task.Key, Path: task.Entry, Err: err}
		}

		l.logger.Debug("loaded unit", "task", task.Key, "entry", task.Entry)
		res.Units = append(res.Units, u)
		res.Params = append(res.Params, &Params{
			Task:      task,
			Todos:     todo.Snapshot(todos),
			Generator: gen,
			Config:    shared,
			Dir:       dir,
		})
	}

	return res, nil
}

// Open resolves entry against dir. Builtin entries come from the registry;
// other entries must stay inside dir and name an executable or a manifest.
func (l *Loader) Open(dir, entry string) (Unit, error) {
	if IsBuiltin(entry) {
		name := strings.TrimPrefix(entry, BuiltinPrefix)
		u, ok := l.registry.Open(name)
		if !ok {
			return nil, fmt.Errorf("%w: no builtin named %q (available: %s)",
				ErrEntryNotFound, name, strings.Join(l.registry.Names(), ", "))
		}
		return u, nil
	}

	path, err := fsutil.ResolveWithin(dir, entry)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat entry: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("entry %s is a directory", path)
	}

	if IsManifest(path) {
		m, err := LoadManifest(path)
		if err != nil {
			return nil, err
		}
		return NewProcessFromManifest(m), nil
	}

	if info.Mode().Perm()&0111 == 0 {
		return nil, fmt.Errorf("entry %s is not executable (chmod +x, or describe it with a manifest)", path)
	}
	return NewProcess([]string{path}), nil
}
