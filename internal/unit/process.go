package unit

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/iambrandonn/projectsetup/internal/ndjson"
	"github.com/iambrandonn/projectsetup/internal/protocol"
)

// Environment variables set for every process unit
const (
	EnvHook = "PROJECTSETUP_HOOK"
	EnvDir  = "PROJECTSETUP_DIR"
	EnvTask = "PROJECTSETUP_TASK"
)

// logRecorder is implemented by generators that route unit logs themselves
type logRecorder interface {
	RecordLog(task string, log *protocol.Log)
}

// stderrTail is the number of trailing stderr lines kept for error messages
const stderrTail = 5

// Process is a unit implemented by an external command. Every hook call
// starts the command once, with the hook name appended to its arguments.
//
// The command receives one invocation line on stdin and may write log,
// prompt and result lines to stdout. Answers to its prompts arrive on stdin,
// so stdin stays open until the command closes stdout or exits. A command
// that reads stdin to EOF must be described by a manifest with
// "prompts: false", or it blocks until its timeout or the run is cancelled.
type Process struct {
	cmd       []string
	hooks     map[protocol.Hook]bool
	env       map[string]string
	noPrompts bool
	timeout   time.Duration
}

// NewProcess creates a unit running cmd for every hook
func NewProcess(cmd []string) *Process {
	return &Process{cmd: cmd}
}

// NewProcessFromManifest creates a unit from a validated manifest
func NewProcessFromManifest(m *Manifest) *Process {
	p := &Process{cmd: m.Cmd, env: m.Env, noPrompts: !m.AllowsPrompts()}
	p.timeout, _ = m.HookTimeout()
	if len(m.Hooks) > 0 {
		p.hooks = make(map[protocol.Hook]bool, len(m.Hooks))
		for _, h := range m.Hooks {
			p.hooks[h] = true
		}
	}
	return p
}

// Command returns the command line of the unit
func (p *Process) Command() []string {
	return p.cmd
}

// Supports reports whether the process is called for hook
func (p *Process) Supports(hook protocol.Hook) bool {
	if p.hooks == nil {
		return hook.Valid()
	}
	return p.hooks[hook]
}

func (p *Process) BeforeAll(ctx context.Context, params *Params) error {
	return p.invoke(ctx, protocol.HookBeforeAll, params)
}

func (p *Process) Run(ctx context.Context, params *Params) error {
	return p.invoke(ctx, protocol.HookRun, params)
}

func (p *Process) AfterAll(ctx context.Context, params *Params) error {
	return p.invoke(ctx, protocol.HookAfterAll, params)
}

func (p *Process) invoke(ctx context.Context, hook protocol.Hook, params *Params) error {
	gen := params.Generator
	logger := slog.Default()
	if gen != nil && gen.Logger() != nil {
		logger = gen.Logger()
	}
	taskKey := ""
	if params.Task != nil {
		taskKey = params.Task.Key
	}
	logger = logger.With("task", taskKey, "hook", hook)

	var cancel context.CancelFunc
	if p.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	args := append(append([]string{}, p.cmd[1:]...), string(hook))
	proc := exec.CommandContext(ctx, p.cmd[0], args...)
	proc.Dir = params.Dir
	if gen != nil && gen.Destination() != "" {
		proc.Dir = gen.Destination()
	}

	// Inherit parent environment first, then add unit vars
	proc.Env = os.Environ()
	for k, v := range p.env {
		proc.Env = append(proc.Env, fmt.Sprintf("%s=%s", k, v))
	}
	proc.Env = append(proc.Env,
		fmt.Sprintf("%s=%s", EnvHook, hook),
		fmt.Sprintf("%s=%s", EnvDir, params.Dir),
		fmt.Sprintf("%s=%s", EnvTask, taskKey),
	)

	stdin, err := proc.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := proc.StdoutPipe()
	if err != nil {
		stdin.Close()
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := proc.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := proc.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		return fmt.Errorf("failed to start %s: %w", p.cmd[0], err)
	}
	logger.Debug("unit started", "cmd", p.cmd, "pid", proc.Process.Pid)

	// Children of the command may still hold stdin; closing it lets them see EOF
	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
			stdin.Close()
		case <-stopped:
		}
	}()

	tail := &lineTail{max: stderrTail}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		readStderr(stderr, tail, logger)
	}()

	encoder := ndjson.NewEncoder(stdin, logger)
	inv := p.invocation(hook, params)
	if err := encoder.Encode(inv); err != nil {
		// The unit may exit without reading stdin; its exit status decides.
		logger.Debug("failed to send invocation", "error", err)
	}
	if p.noPrompts {
		stdin.Close()
	}

	result, convErr := p.converse(ctx, ndjson.NewDecoder(stdout, logger), encoder, inv.MessageID, params, logger)
	stdin.Close()
	if convErr != nil {
		cancel()
	}

	// Drain stdout so the process never blocks on a full pipe before Wait
	io.Copy(io.Discard, stdout)
	wg.Wait()
	waitErr := proc.Wait()

	if convErr != nil {
		return convErr
	}
	if p.timeout > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s %s timed out after %s", p.cmd[0], hook, p.timeout)
	}
	if waitErr != nil {
		if msg := tail.String(); msg != "" {
			return fmt.Errorf("%s %s failed: %w: %s", p.cmd[0], hook, waitErr, msg)
		}
		return fmt.Errorf("%s %s failed: %w", p.cmd[0], hook, waitErr)
	}
	if result != nil && result.Status == protocol.ResultStatusError {
		if result.Error == "" {
			return fmt.Errorf("%s %s reported an error", p.cmd[0], hook)
		}
		return fmt.Errorf("%s %s: %s", p.cmd[0], hook, result.Error)
	}

	logger.Debug("unit finished")
	return nil
}

func (p *Process) invocation(hook protocol.Hook, params *Params) *protocol.Invocation {
	inv := &protocol.Invocation{
		Kind:      protocol.MessageKindInvocation,
		MessageID: uuid.New().String(),
		Hook:      hook,
		Todos:     params.Todos,
		Config:    params.Config,
		Dir:       params.Dir,
	}
	if params.Task != nil {
		inv.Task = *params.Task
	}
	if gen := params.Generator; gen != nil {
		inv.RunID = gen.RunID()
		inv.Destination = gen.Destination()
	}
	return inv
}

// converse reads unit messages until stdout closes, answering prompts as they arrive
func (p *Process) converse(
	ctx context.Context,
	dec *ndjson.Decoder,
	enc *ndjson.Encoder,
	invocationID string,
	params *Params,
	logger *slog.Logger,
) (*protocol.Result, error) {
	var result *protocol.Result
	taskKey := ""
	if params.Task != nil {
		taskKey = params.Task.Key
	}

	for {
		msg, err := dec.DecodeEnvelope()
		if err == io.EOF {
			return result, nil
		}
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, fmt.Errorf("unit output exceeds %d bytes per line: %w", ndjson.MaxMessageSize, err)
		}
		if errors.Is(err, ndjson.ErrRead) {
			return nil, fmt.Errorf("failed to read unit output: %w", err)
		}
		if err != nil {
			logger.Warn("ignoring unit output", "error", err)
			continue
		}

		switch v := msg.(type) {
		case *protocol.Log:
			if v.Timestamp.IsZero() {
				v.Timestamp = time.Now().UTC()
			}
			switch gen := params.Generator.(type) {
			case logRecorder:
				gen.RecordLog(taskKey, v)
			case Generator:
				if gen.Console() != nil {
					gen.Console().UnitLog(taskKey, v)
					break
				}
				logger.Info(v.Message, "level", v.Level)
			default:
				logger.Info(v.Message, "level", v.Level)
			}

		case *protocol.PromptRequest:
			if params.Generator == nil {
				return nil, fmt.Errorf("unit prompted without a generator")
			}
			if p.noPrompts {
				return nil, fmt.Errorf("unit prompted but its manifest sets prompts: false")
			}
			answers, err := params.Generator.Prompt(ctx, v.Questions)
			if err != nil {
				reply := &protocol.Answers{Kind: protocol.MessageKindAnswers, CorrelationID: v.MessageID, Error: err.Error()}
				enc.Encode(reply)
				return nil, fmt.Errorf("failed to prompt for unit: %w", err)
			}
			reply := &protocol.Answers{Kind: protocol.MessageKindAnswers, CorrelationID: v.MessageID, Answers: answers}
			if err := enc.Encode(reply); err != nil {
				return nil, fmt.Errorf("failed to send answers: %w", err)
			}

		case *protocol.Result:
			if v.CorrelationID != "" && v.CorrelationID != invocationID {
				logger.Warn("result for unknown invocation", "correlation_id", v.CorrelationID)
			}
			result = v

		default:
			logger.Warn("unexpected message type from unit", "msg_type", fmt.Sprintf("%T", msg))
		}
	}
}

func readStderr(r io.Reader, tail *lineTail, logger *slog.Logger) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 4096), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		logger.Debug("unit stderr", "line", line)
		tail.add(line)
	}
	if err := scanner.Err(); err != nil {
		logger.Debug("error reading stderr", "error", err)
	}
}

// lineTail keeps the last max lines written to it
type lineTail struct {
	mu    sync.Mutex
	max   int
	lines []string
}

func (t *lineTail) add(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > t.max {
		t.lines = t.lines[len(t.lines)-t.max:]
	}
}

func (t *lineTail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, "\n")
}
