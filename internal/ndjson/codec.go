package ndjson

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/iambrandonn/projectsetup/internal/protocol"
)

// MaxMessageSize is the maximum NDJSON message size (1 MiB).
// Invocations carry the whole todo list and shared config.
const MaxMessageSize = 1024 * 1024

// ErrRead wraps failures of the underlying stream, including lines longer
// than MaxMessageSize. The decoder cannot continue after one.
var ErrRead = errors.New("ndjson read failed")

// Encoder writes NDJSON messages to an output stream
type Encoder struct {
	w      io.Writer
	logger *slog.Logger
}

// NewEncoder creates a new NDJSON encoder
func NewEncoder(w io.Writer, logger *slog.Logger) *Encoder {
	return &Encoder{w: w, logger: logger}
}

// Encode writes v as a single JSON line. Each message goes out in one
// write so a reader on a pipe never sees a partial line.
func (e *Encoder) Encode(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if len(data) > MaxMessageSize {
		e.logger.Error("message exceeds size limit",
			"size", len(data),
			"limit", MaxMessageSize)
		return fmt.Errorf("message size %d exceeds limit %d", len(data), MaxMessageSize)
	}

	if _, err := e.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// Decoder reads NDJSON messages from an input stream
type Decoder struct {
	scanner *bufio.Scanner
	logger  *slog.Logger
	line    int
}

// NewDecoder creates a new NDJSON decoder. Lines longer than
// MaxMessageSize fail with bufio.ErrTooLong.
func NewDecoder(r io.Reader, logger *slog.Logger) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), MaxMessageSize)
	return &Decoder{scanner: scanner, logger: logger}
}

// Line returns the number of the last line read
func (d *Decoder) Line() int {
	return d.line
}

// next returns the next non-blank line
func (d *Decoder) next() ([]byte, error) {
	for d.scanner.Scan() {
		d.line++
		data := bytes.TrimSpace(d.scanner.Bytes())
		if len(data) > 0 {
			return data, nil
		}
	}
	if err := d.scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w after line %d: %w", ErrRead, d.line, err)
	}
	return nil, io.EOF
}

// Decode unmarshals the next message into v
func (d *Decoder) Decode(v any) error {
	data, err := d.next()
	if err != nil {
		return err
	}
	return d.unmarshal(data, v)
}

func (d *Decoder) unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		d.logger.Debug("failed to unmarshal JSON",
			"line", d.line,
			"error", err,
			"data", string(data[:min(100, len(data))]))
		return fmt.Errorf("failed to unmarshal line %d: %w", d.line, err)
	}
	return nil
}

// messages maps each envelope kind to a constructor of its message type
var messages = map[protocol.MessageKind]func() any{
	protocol.MessageKindInvocation: func() any { return &protocol.Invocation{} },
	protocol.MessageKindLog:        func() any { return &protocol.Log{} },
	protocol.MessageKindPrompt:     func() any { return &protocol.PromptRequest{} },
	protocol.MessageKindAnswers:    func() any { return &protocol.Answers{} },
	protocol.MessageKindResult:     func() any { return &protocol.Result{} },
	protocol.MessageKindHook:       func() any { return &protocol.HookRecord{} },
}

// DecodeEnvelope reads the next message and returns it as a pointer to
// the protocol type named by its "kind" field
func (d *Decoder) DecodeEnvelope() (any, error) {
	data, err := d.next()
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Kind protocol.MessageKind `json:"kind"`
	}
	if err := d.unmarshal(data, &envelope); err != nil {
		return nil, err
	}
	if envelope.Kind == "" {
		return nil, fmt.Errorf("line %d: missing or invalid 'kind' field", d.line)
	}

	newMessage, ok := messages[envelope.Kind]
	if !ok {
		d.logger.Warn("unknown message kind", "line", d.line, "kind", envelope.Kind)
		return nil, fmt.Errorf("line %d: unknown message kind: %s", d.line, envelope.Kind)
	}

	msg := newMessage()
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("line %d: failed to decode %s: %w", d.line, envelope.Kind, err)
	}
	return msg, nil
}
