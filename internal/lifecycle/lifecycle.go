// Package lifecycle drives loaded units through the beforeAll, run and
// afterAll phases. Phases run strictly in that order. Within a phase every
// hook finishes before the next index starts; beforeAll and run walk the
// units first to last, afterAll walks them last to first.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/iambrandonn/projectsetup/internal/protocol"
	"github.com/iambrandonn/projectsetup/internal/unit"
)

// State is the phase the orchestrator reached last
type State int

const (
	StateInit State = iota
	StateBeforeAll
	StateRun
	StateAfterAll
	StateDone
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateBeforeAll:
		return "beforeAll"
	case StateRun:
		return "run"
	case StateAfterAll:
		return "afterAll"
	case StateDone:
		return "done"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ErrPhaseOrder is returned when a phase is started out of order or twice
var ErrPhaseOrder = errors.New("lifecycle phase out of order")

// HookError identifies the hook call that failed
type HookError struct {
	Hook    protocol.Hook
	Index   int
	TaskKey string
	Err     error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("%s hook of task %q (unit %d) failed: %v", e.Hook, e.TaskKey, e.Index, e.Err)
}

func (e *HookError) Unwrap() error {
	return e.Err
}

// Observer is told about every hook call
type Observer interface {
	Observe(rec *protocol.HookRecord) error
}

// Orchestrator runs the phases over index-aligned units and params
type Orchestrator struct {
	units    []unit.Unit
	params   []*unit.Params
	logger   *slog.Logger
	observer Observer
	runID    string

	mu    sync.Mutex
	state State
}

// New creates an orchestrator over the units and params of a resolution
func New(res *unit.Resolution, logger *slog.Logger) (*Orchestrator, error) {
	if res == nil {
		return nil, fmt.Errorf("resolution is required")
	}
	if len(res.Units) != len(res.Params) {
		return nil, fmt.Errorf("resolution has %d units but %d params", len(res.Units), len(res.Params))
	}
	return &Orchestrator{
		units:  res.Units,
		params: res.Params,
		logger: logger,
	}, nil
}

// WithObserver registers obs to receive hook records tagged with runID
func (o *Orchestrator) WithObserver(obs Observer, runID string) *Orchestrator {
	o.observer = obs
	o.runID = runID
	return o
}

// State returns the phase reached last
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// RunBeforeAll calls beforeAll on every unit, first to last
func (o *Orchestrator) RunBeforeAll(ctx context.Context) error {
	if err := o.enter(StateInit, StateBeforeAll); err != nil {
		return err
	}
	return o.forward(ctx, protocol.HookBeforeAll)
}

// RunAll calls run on every unit, first to last
func (o *Orchestrator) RunAll(ctx context.Context) error {
	if err := o.enter(StateBeforeAll, StateRun); err != nil {
		return err
	}
	return o.forward(ctx, protocol.HookRun)
}

// RunAfterAll calls afterAll on every unit, last to first
func (o *Orchestrator) RunAfterAll(ctx context.Context) error {
	if err := o.enter(StateRun, StateAfterAll); err != nil {
		return err
	}
	if err := o.reverse(ctx, protocol.HookAfterAll); err != nil {
		return err
	}

	o.mu.Lock()
	o.state = StateDone
	o.mu.Unlock()
	return nil
}

// Execute runs the three phases in order and stops at the first failure.
// A failed phase is not followed by afterAll.
func (o *Orchestrator) Execute(ctx context.Context) error {
	if err := o.RunBeforeAll(ctx); err != nil {
		return err
	}
	if err := o.RunAll(ctx); err != nil {
		return err
	}
	return o.RunAfterAll(ctx)
}

func (o *Orchestrator) enter(from, to State) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != from {
		return fmt.Errorf("%w: cannot start %s from %s", ErrPhaseOrder, to, o.state)
	}
	o.state = to
	return nil
}

func (o *Orchestrator) forward(ctx context.Context, hook protocol.Hook) error {
	for i := 0; i < len(o.units); i++ {
		if !o.present(hook, i) {
			return nil
		}
		if err := o.call(ctx, hook, i); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) reverse(ctx context.Context, hook protocol.Hook) error {
	for i := len(o.units) - 1; i >= 0; i-- {
		if !o.present(hook, i) {
			return nil
		}
		if err := o.call(ctx, hook, i); err != nil {
			return err
		}
	}
	return nil
}

// present reports whether index i holds a unit. An empty slot ends the
// phase; the loader never produces one.
func (o *Orchestrator) present(hook protocol.Hook, i int) bool {
	if o.units[i] != nil {
		return true
	}
	o.logger.Warn("unit list is sparse, ending phase early",
		"hook", hook,
		"index", i,
		"remaining", len(o.units)-i)
	return false
}

func (o *Orchestrator) call(ctx context.Context, hook protocol.Hook, i int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	u := o.units[i]
	p := o.params[i]
	key := ""
	if p != nil && p.Task != nil {
		key = p.Task.Key
	}

	if !unit.Supports(u, hook) {
		o.logger.Debug("unit has no hook", "hook", hook, "index", i, "task", key)
		o.observe(hook, i, key, protocol.HookStatusSkipped, nil)
		return nil
	}

	o.logger.Debug("calling hook", "hook", hook, "index", i, "task", key)
	o.observe(hook, i, key, protocol.HookStatusStarted, nil)

	if _, err := unit.Call(ctx, u, hook, p); err != nil {
		o.observe(hook, i, key, protocol.HookStatusFailed, err)
		return &HookError{Hook: hook, Index: i, TaskKey: key, Err: err}
	}

	o.observe(hook, i, key, protocol.HookStatusCompleted, nil)
	return nil
}

func (o *Orchestrator) observe(hook protocol.Hook, i int, key string, status protocol.HookStatus, err error) {
	if o.observer == nil {
		return
	}

	rec := &protocol.HookRecord{
		Kind:       protocol.MessageKindHook,
		RunID:      o.runID,
		Hook:       hook,
		Index:      i,
		TaskKey:    key,
		Status:     status,
		OccurredAt: time.Now().UTC(),
	}
	if err != nil {
		rec.Error = err.Error()
	}

	if werr := o.observer.Observe(rec); werr != nil {
		o.logger.Warn("failed to record hook", "hook", hook, "index", i, "error", werr)
	}
}
