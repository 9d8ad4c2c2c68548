// Package resolver walks a route tree, asking the user to choose among the
// tasks each node offers, and flattens the selections into an ordered list of
// todos. The todos of a selection's nested routes follow that selection
// immediately, before the todos of the next sibling selection.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/iambrandonn/projectsetup/internal/config"
	"github.com/iambrandonn/projectsetup/internal/prompt"
	"github.com/iambrandonn/projectsetup/internal/todo"
)

const (
	// DefaultOneOfMessage is shown for a oneOf node without a message
	DefaultOneOfMessage = "Select one"
	// DefaultManyOfMessage is shown for a manyOf node without a message
	DefaultManyOfMessage = "Select one or more"

	oneOfAnswer  = "task"
	manyOfAnswer = "tasks"
)

// ErrUnknownChoice is returned when the prompter answers with a label that was not offered
var ErrUnknownChoice = errors.New("answer does not match an offered task")

// Resolver turns route nodes into todos
type Resolver struct {
	prompter prompt.Prompter
	tasks    []config.Task
	logger   *slog.Logger
}

// New creates a resolver over the task catalog
func New(p prompt.Prompter, tasks []config.Task, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		prompter: p,
		tasks:    tasks,
		logger:   logger,
	}
}

// Resolve is shorthand for New(p, tasks, logger).Resolve(ctx, node)
func Resolve(ctx context.Context, p prompt.Prompter, tasks []config.Task, node *config.RouteNode, logger *slog.Logger) ([]todo.Todo, error) {
	return New(p, tasks, logger).Resolve(ctx, node)
}

// Resolve asks for the selections of node and of every nested node reached
// through them. A nil node or a node without a selector yields no todos.
func (r *Resolver) Resolve(ctx context.Context, node *config.RouteNode) ([]todo.Todo, error) {
	switch node.Kind() {
	case config.RouteOneOf:
		return r.oneOf(ctx, node)
	case config.RouteManyOf:
		return r.manyOf(ctx, node)
	default:
		return []todo.Todo{}, nil
	}
}

func (r *Resolver) oneOf(ctx context.Context, node *config.RouteNode) ([]todo.Todo, error) {
	offered, err := r.offer(node.OneOf)
	if err != nil {
		return nil, err
	}

	answers, err := r.prompter.Prompt(ctx, []prompt.Question{{
		Type:    prompt.TypeList,
		Name:    oneOfAnswer,
		Message: messageOr(node.Message, DefaultOneOfMessage),
		Choices: offered.names(),
	}})
	if err != nil {
		return nil, fmt.Errorf("failed to prompt for task selection: %w", err)
	}

	name, ok := answers.String(oneOfAnswer)
	if !ok {
		return nil, fmt.Errorf("%w: expected a single selection, got %v", ErrUnknownChoice, answers[oneOfAnswer])
	}

	return r.selection(ctx, offered, name)
}

func (r *Resolver) manyOf(ctx context.Context, node *config.RouteNode) ([]todo.Todo, error) {
	offered, err := r.offer(node.ManyOf)
	if err != nil {
		return nil, err
	}

	answers, err := r.prompter.Prompt(ctx, []prompt.Question{{
		Type:    prompt.TypeCheckbox,
		Name:    manyOfAnswer,
		Message: messageOr(node.Message, DefaultManyOfMessage),
		Choices: offered.names(),
	}})
	if err != nil {
		return nil, fmt.Errorf("failed to prompt for task selection: %w", err)
	}

	names, ok := answers.Strings(manyOfAnswer)
	if !ok {
		return nil, fmt.Errorf("%w: expected a list of selections, got %v", ErrUnknownChoice, answers[manyOfAnswer])
	}

	todos := []todo.Todo{}
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			r.logger.Debug("ignoring repeated selection", "task", name)
			continue
		}
		seen[name] = true
		next, err := r.selection(ctx, offered, name)
		if err != nil {
			return nil, err
		}
		todos = append(todos, next...)
	}

	return todos, nil
}

// selection resolves one chosen task: its own questions first, then its nested routes
func (r *Resolver) selection(ctx context.Context, offered choices, name string) ([]todo.Todo, error) {
	c, ok := offered.byName(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownChoice, name)
	}

	r.logger.Debug("task selected", "key", c.task.Key, "name", c.task.Name)

	var answers prompt.Answers
	if len(c.task.Questions) > 0 {
		var err error
		answers, err = r.prompter.Prompt(ctx, c.task.Questions)
		if err != nil {
			return nil, fmt.Errorf("failed to prompt questions of task %s: %w", c.task.Key, err)
		}
	}

	nested, err := r.Resolve(ctx, c.route.Routes)
	if err != nil {
		return nil, err
	}

	return append([]todo.Todo{{Task: c.task, Config: answers}}, nested...), nil
}

type choice struct {
	route config.Route
	task  *config.Task
}

type choices []choice

func (r *Resolver) offer(routes []config.Route) (choices, error) {
	offered := make(choices, 0, len(routes))
	for _, route := range routes {
		task := r.lookup(route.Key)
		if task == nil {
			return nil, fmt.Errorf("route references task '%s': %w", route.Key, config.ErrUnknownTask)
		}
		offered = append(offered, choice{route: route, task: task})
	}
	return offered, nil
}

func (r *Resolver) lookup(key string) *config.Task {
	for i := range r.tasks {
		if r.tasks[i].Key == key {
			return &r.tasks[i]
		}
	}
	return nil
}

func (c choices) names() []string {
	names := make([]string, len(c))
	for i, ch := range c {
		names[i] = ch.task.Name
	}
	return names
}

func (c choices) byName(name string) (choice, bool) {
	for _, ch := range c {
		if ch.task.Name == name {
			return ch, true
		}
	}
	return choice{}, false
}

func messageOr(message, fallback string) string {
	if message == "" {
		return fallback
	}
	return message
}
