package testharness

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/iambrandonn/projectsetup/internal/fsutil"
	"github.com/iambrandonn/projectsetup/internal/ndjson"
	"github.com/iambrandonn/projectsetup/internal/prompt"
	"github.com/iambrandonn/projectsetup/internal/protocol"
	"gopkg.in/yaml.v3"
)

// Script programs a FakeUnit, one entry per hook. Hooks without an entry
// succeed without output.
type Script struct {
	Hooks map[protocol.Hook]HookScript `yaml:"hooks" json:"hooks"`
}

// HookScript describes how a FakeUnit answers one hook
type HookScript struct {
	Logs []LogTemplate `yaml:"logs,omitempty" json:"logs,omitempty"`
	// Prompt is sent to the generator before files are written
	Prompt []prompt.Question `yaml:"prompt,omitempty" json:"prompt,omitempty"`
	// Files maps paths below the working directory to contents. ${name}
	// expands to an answer, a shared config value, or ${task} to the task key.
	Files    map[string]string `yaml:"files,omitempty" json:"files,omitempty"`
	DelayMs  int               `yaml:"delay_ms,omitempty" json:"delay_ms,omitempty"`
	Error    string            `yaml:"error,omitempty" json:"error,omitempty"`
	ExitCode int               `yaml:"exit_code,omitempty" json:"exit_code,omitempty"`
}

// LogTemplate is a log message sent to the generator
type LogTemplate struct {
	Level   protocol.LogLevel `yaml:"level,omitempty" json:"level,omitempty"`
	Message string            `yaml:"message" json:"message"`
}

// LoadScript reads a FakeUnit script from a YAML or JSON file
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}

	var script Script
	if err := yaml.Unmarshal(data, &script); err != nil {
		return nil, fmt.Errorf("parse script %s: %w", path, err)
	}
	for hook := range script.Hooks {
		if !hook.Valid() {
			return nil, fmt.Errorf("script %s: unknown hook %q", path, hook)
		}
	}
	return &script, nil
}

// FakeUnit speaks the process unit protocol over the given streams
type FakeUnit struct {
	Script *Script
	// Record, when set, receives one "<task> <hook>" line per call
	Record string

	decoder *ndjson.Decoder
	encoder *ndjson.Encoder
	logger  *slog.Logger
}

// NewFakeUnit creates a fake unit reading invocations from stdin
func NewFakeUnit(script *Script, stdin io.Reader, stdout io.Writer, logger *slog.Logger) *FakeUnit {
	if script == nil {
		script = &Script{}
	}
	return &FakeUnit{
		Script:  script,
		decoder: ndjson.NewDecoder(stdin, logger),
		encoder: ndjson.NewEncoder(stdout, logger),
		logger:  logger,
	}
}

// Serve handles one hook call in workDir and returns the exit code the
// process should end with
func (u *FakeUnit) Serve(ctx context.Context, hook protocol.Hook, workDir string) (int, error) {
	var inv protocol.Invocation
	msg, err := u.decoder.DecodeEnvelope()
	switch {
	case err == io.EOF:
		u.logger.Warn("no invocation received", "hook", hook)
	case err != nil:
		return 1, fmt.Errorf("failed to read invocation: %w", err)
	default:
		v, ok := msg.(*protocol.Invocation)
		if !ok {
			return 1, fmt.Errorf("expected invocation, got %T", msg)
		}
		inv = *v
	}
	if inv.Hook != "" && inv.Hook != hook {
		return 1, fmt.Errorf("invocation is for %s, called for %s", inv.Hook, hook)
	}

	if u.Record != "" {
		if err := appendLine(u.Record, fmt.Sprintf("%s %s", inv.Task.Key, hook)); err != nil {
			return 1, err
		}
	}

	hs, ok := u.Script.Hooks[hook]
	if !ok {
		return 0, u.result(inv.MessageID, "")
	}

	if hs.DelayMs > 0 {
		select {
		case <-time.After(time.Duration(hs.DelayMs) * time.Millisecond):
		case <-ctx.Done():
			return 1, ctx.Err()
		}
	}

	for _, l := range hs.Logs {
		level := l.Level
		if level == "" {
			level = protocol.LogLevelInfo
		}
		if err := u.encoder.Encode(&protocol.Log{
			Kind:      protocol.MessageKindLog,
			Level:     level,
			Message:   l.Message,
			Timestamp: time.Now().UTC(),
		}); err != nil {
			return 1, err
		}
	}

	answers := prompt.Answers{}
	if len(hs.Prompt) > 0 {
		if answers, err = u.ask(hs.Prompt); err != nil {
			return 1, err
		}
	}

	for name, content := range hs.Files {
		path, err := fsutil.ResolveWithin(workDir, name)
		if err != nil {
			return 1, err
		}
		expanded := os.Expand(content, func(key string) string {
			if key == "task" {
				return inv.Task.Key
			}
			if v, ok := answers[key]; ok {
				return fmt.Sprint(v)
			}
			if v, ok := inv.Config[key]; ok {
				return fmt.Sprint(v)
			}
			return ""
		})
		if err := fsutil.AtomicWrite(path, []byte(expanded)); err != nil {
			return 1, err
		}
	}

	if hs.ExitCode != 0 {
		return hs.ExitCode, nil
	}
	return 0, u.result(inv.MessageID, hs.Error)
}

func (u *FakeUnit) ask(questions []prompt.Question) (prompt.Answers, error) {
	id := uuid.New().String()
	if err := u.encoder.Encode(&protocol.PromptRequest{
		Kind:      protocol.MessageKindPrompt,
		MessageID: id,
		Questions: questions,
	}); err != nil {
		return nil, err
	}

	msg, err := u.decoder.DecodeEnvelope()
	if err != nil {
		return nil, fmt.Errorf("failed to read answers: %w", err)
	}
	reply, ok := msg.(*protocol.Answers)
	if !ok {
		return nil, fmt.Errorf("expected answers, got %T", msg)
	}
	if reply.CorrelationID != id {
		return nil, fmt.Errorf("answers for %s, expected %s", reply.CorrelationID, id)
	}
	if reply.Error != "" {
		return nil, fmt.Errorf("prompt failed: %s", reply.Error)
	}
	return reply.Answers, nil
}

func (u *FakeUnit) result(correlationID, errMsg string) error {
	res := &protocol.Result{
		Kind:          protocol.MessageKindResult,
		CorrelationID: correlationID,
		Status:        protocol.ResultStatusOK,
	}
	if errMsg != "" {
		res.Status = protocol.ResultStatusError
		res.Error = errMsg
	}
	return u.encoder.Encode(res)
}

func appendLine(path, line string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create record directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open record: %w", err)
	}
	defer f.Close()
	_, err = fmt.Fprintln(f, line)
	return err
}

// writeScript stores script as JSON for mockunit
func writeScript(path string, script *Script) error {
	data, err := json.MarshalIndent(script, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal script: %w", err)
	}
	return fsutil.AtomicWrite(path, append(data, '\n'))
}
