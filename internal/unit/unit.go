// Package unit models the executable units attached to tasks and loads them
// for the todos a route resolution produced.
//
// A unit opts into lifecycle phases by implementing BeforeAller, Runner or
// AfterAller. Units that implement a hook method but only sometimes want it
// called also implement Supporter.
package unit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/iambrandonn/projectsetup/internal/config"
	"github.com/iambrandonn/projectsetup/internal/console"
	"github.com/iambrandonn/projectsetup/internal/prompt"
	"github.com/iambrandonn/projectsetup/internal/protocol"
	"github.com/iambrandonn/projectsetup/internal/todo"
)

// Unit is a loaded entry point. It carries no required methods.
type Unit interface{}

// BeforeAller is implemented by units with a beforeAll hook
type BeforeAller interface {
	BeforeAll(ctx context.Context, p *Params) error
}

// Runner is implemented by units with a run hook
type Runner interface {
	Run(ctx context.Context, p *Params) error
}

// AfterAller is implemented by units with an afterAll hook
type AfterAller interface {
	AfterAll(ctx context.Context, p *Params) error
}

// Supporter narrows the hooks a unit exposes
type Supporter interface {
	Supports(hook protocol.Hook) bool
}

// Generator is the handle units use to reach the running generator
type Generator interface {
	prompt.Prompter
	Logger() *slog.Logger
	Console() *console.Console
	Destination() string
	RunID() string
}

// Params is the invocation bundle handed to every hook of a unit.
// Todos holds every resolved todo, including those without an entry.
type Params struct {
	Task      *config.Task      `json:"task"`
	Todos     []todo.Todo       `json:"todos"`
	Generator Generator         `json:"-"`
	Config    todo.SharedConfig `json:"config"`
	Dir       string            `json:"dir"`
}

// Supports reports whether u exposes hook
func Supports(u Unit, hook protocol.Hook) bool {
	if u == nil {
		return false
	}
	if s, ok := u.(Supporter); ok && !s.Supports(hook) {
		return false
	}

	switch hook {
	case protocol.HookBeforeAll:
		_, ok := u.(BeforeAller)
		return ok
	case protocol.HookRun:
		_, ok := u.(Runner)
		return ok
	case protocol.HookAfterAll:
		_, ok := u.(AfterAller)
		return ok
	}
	return false
}

// Call invokes hook on u. It reports false without error when u does not
// expose the hook.
func Call(ctx context.Context, u Unit, hook protocol.Hook, p *Params) (bool, error) {
	if !hook.Valid() {
		return false, fmt.Errorf("unknown hook %q", hook)
	}
	if !Supports(u, hook) {
		return false, nil
	}

	switch hook {
	case protocol.HookBeforeAll:
		return true, u.(BeforeAller).BeforeAll(ctx, p)
	case protocol.HookRun:
		return true, u.(Runner).Run(ctx, p)
	default:
		return true, u.(AfterAller).AfterAll(ctx, p)
	}
}

// LogSink receives the log messages units emit
type LogSink interface {
	WriteLog(log *protocol.Log) error
}

// Host is the Generator used by the CLI
type Host struct {
	prompter    prompt.Prompter
	console     *console.Console
	logger      *slog.Logger
	destination string
	runID       string
	sink        LogSink
}

// NewHost creates a generator handle
func NewHost(p prompt.Prompter, con *console.Console, logger *slog.Logger, destination, runID string) *Host {
	return &Host{
		prompter:    p,
		console:     con,
		logger:      logger,
		destination: destination,
		runID:       runID,
	}
}

// WithLogSink copies unit log messages to sink
func (h *Host) WithLogSink(sink LogSink) *Host {
	h.sink = sink
	return h
}

// RecordLog shows a unit log message and copies it to the sink, if any
func (h *Host) RecordLog(task string, log *protocol.Log) {
	if h.console != nil {
		h.console.UnitLog(task, log)
	} else {
		h.logger.Info(log.Message, "task", task, "level", log.Level)
	}
	if h.sink != nil {
		if err := h.sink.WriteLog(log); err != nil {
			h.logger.Warn("failed to record unit log", "task", task, "error", err)
		}
	}
}

// Prompt asks the user through the generator's prompter
func (h *Host) Prompt(ctx context.Context, questions []prompt.Question) (prompt.Answers, error) {
	return h.prompter.Prompt(ctx, questions)
}

func (h *Host) Logger() *slog.Logger { return h.logger }
func (h *Host) Console() *console.Console { return h.console }
func (h *Host) Destination() string { return h.destination }
func (h *Host) RunID() string { return h.runID }
