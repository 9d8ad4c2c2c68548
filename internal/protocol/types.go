package protocol

import (
	"time"

	"github.com/iambrandonn/projectsetup/internal/config"
	"github.com/iambrandonn/projectsetup/internal/prompt"
	"github.com/iambrandonn/projectsetup/internal/todo"
)

// MessageKind represents the envelope type
type MessageKind string

const (
	MessageKindInvocation MessageKind = "invocation"
	MessageKindLog        MessageKind = "log"
	MessageKindPrompt     MessageKind = "prompt"
	MessageKindAnswers    MessageKind = "answers"
	MessageKindResult     MessageKind = "result"
	MessageKindHook       MessageKind = "hook"
)

// Hook names a lifecycle phase capability of an executable unit
type Hook string

const (
	HookBeforeAll Hook = "beforeAll"
	HookRun       Hook = "run"
	HookAfterAll  Hook = "afterAll"
)

// Hooks lists every hook in phase order
var Hooks = []Hook{HookBeforeAll, HookRun, HookAfterAll}

// Valid reports whether h is a known hook
func (h Hook) Valid() bool {
	switch h {
	case HookBeforeAll, HookRun, HookAfterAll:
		return true
	}
	return false
}

// Invocation is sent to a process unit on stdin, once per hook call
type Invocation struct {
	Kind        MessageKind       `json:"kind"`
	MessageID   string            `json:"message_id"`
	RunID       string            `json:"run_id,omitempty"`
	Hook        Hook              `json:"hook"`
	Task        config.Task       `json:"task"`
	Todos       []todo.Todo       `json:"todos"`
	Config      todo.SharedConfig `json:"config"`
	Dir         string            `json:"dir"`
	Destination string            `json:"destination,omitempty"`
}

// LogLevel represents log severity
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Log is a diagnostic message emitted by a unit
type Log struct {
	Kind      MessageKind    `json:"kind"`
	Level     LogLevel       `json:"level"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// PromptRequest asks the generator to prompt the user on behalf of a unit
type PromptRequest struct {
	Kind      MessageKind       `json:"kind"`
	MessageID string            `json:"message_id"`
	Questions []prompt.Question `json:"questions"`
}

// Answers replies to a PromptRequest
type Answers struct {
	Kind          MessageKind    `json:"kind"`
	CorrelationID string         `json:"correlation_id"`
	Answers       prompt.Answers `json:"answers,omitempty"`
	Error         string         `json:"error,omitempty"`
}

// ResultStatus is the outcome reported by a unit
type ResultStatus string

const (
	ResultStatusOK    ResultStatus = "ok"
	ResultStatusError ResultStatus = "error"
)

// Result ends a hook call
type Result struct {
	Kind          MessageKind    `json:"kind"`
	CorrelationID string         `json:"correlation_id"`
	Status        ResultStatus   `json:"status"`
	Error         string         `json:"error,omitempty"`
	Payload       map[string]any `json:"payload,omitempty"`
}

// HookStatus is the state of a hook call recorded in the run transcript
type HookStatus string

const (
	HookStatusStarted   HookStatus = "started"
	HookStatusCompleted HookStatus = "completed"
	HookStatusFailed    HookStatus = "failed"
	HookStatusSkipped   HookStatus = "skipped"
)

// HookRecord is a transcript entry for one hook call
type HookRecord struct {
	Kind       MessageKind `json:"kind"`
	RunID      string      `json:"run_id"`
	Hook       Hook        `json:"hook"`
	Index      int         `json:"index"`
	TaskKey    string      `json:"task_key"`
	Status     HookStatus  `json:"status"`
	Error      string      `json:"error,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
}
