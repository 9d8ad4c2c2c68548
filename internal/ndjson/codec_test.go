package ndjson

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/iambrandonn/projectsetup/internal/config"
	"github.com/iambrandonn/projectsetup/internal/prompt"
	"github.com/iambrandonn/projectsetup/internal/protocol"
	"github.com/iambrandonn/projectsetup/internal/todo"
)

func TestEncoderDecoder(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	encoder := NewEncoder(&buf, logger)
	decoder := NewDecoder(&buf, logger)

	task := config.Task{Key: "api", Name: "API service", Entry: "tasks/api.sh"}
	inv := protocol.Invocation{
		Kind:      protocol.MessageKindInvocation,
		MessageID: "inv-01",
		Hook:      protocol.HookBeforeAll,
		Task:      task,
		Todos:     []todo.Todo{{Task: &task, Config: prompt.Answers{"module": "example.com/api"}}},
		Config:    todo.SharedConfig{"module": "example.com/api"},
		Dir:       "/tmp/config",
	}

	if err := encoder.Encode(inv); err != nil {
		t.Fatalf("failed to encode invocation: %v", err)
	}

	var decoded protocol.Invocation
	if err := decoder.Decode(&decoded); err != nil {
		t.Fatalf("failed to decode invocation: %v", err)
	}

	if decoded.MessageID != inv.MessageID {
		t.Errorf("message_id mismatch: got %s, want %s", decoded.MessageID, inv.MessageID)
	}
	if decoded.Hook != inv.Hook {
		t.Errorf("hook mismatch: got %s, want %s", decoded.Hook, inv.Hook)
	}
	if decoded.Config["module"] != "example.com/api" {
		t.Errorf("config mismatch: got %v", decoded.Config)
	}
}

func TestDecodeEnvelope(t *testing.T) {
	tests := []struct {
		name     string
		message  any
		wantType string
	}{
		{
			name: "invocation",
			message: protocol.Invocation{
				Kind:      protocol.MessageKindInvocation,
				MessageID: "inv-01",
				Hook:      protocol.HookRun,
				Task:      config.Task{Key: "a", Name: "A"},
				Todos:     []todo.Todo{},
				Config:    todo.SharedConfig{},
			},
			wantType: "*protocol.Invocation",
		},
		{
			name: "log",
			message: protocol.Log{
				Kind:      protocol.MessageKindLog,
				Level:     protocol.LogLevelInfo,
				Message:   "writing files",
				Timestamp: time.Now().UTC(),
			},
			wantType: "*protocol.Log",
		},
		{
			name: "prompt",
			message: protocol.PromptRequest{
				Kind:      protocol.MessageKindPrompt,
				MessageID: "p-01",
				Questions: []prompt.Question{{Name: "license"}},
			},
			wantType: "*protocol.PromptRequest",
		},
		{
			name: "answers",
			message: protocol.Answers{
				Kind:          protocol.MessageKindAnswers,
				CorrelationID: "p-01",
				Answers:       prompt.Answers{"license": "MIT"},
			},
			wantType: "*protocol.Answers",
		},
		{
			name: "result",
			message: protocol.Result{
				Kind:          protocol.MessageKindResult,
				CorrelationID: "inv-01",
				Status:        protocol.ResultStatusOK,
			},
			wantType: "*protocol.Result",
		},
		{
			name: "hook record",
			message: protocol.HookRecord{
				Kind:       protocol.MessageKindHook,
				RunID:      "run-1",
				Hook:       protocol.HookRun,
				Status:     protocol.HookStatusStarted,
				OccurredAt: time.Now().UTC(),
			},
			wantType: "*protocol.HookRecord",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(io.Discard, nil))

			encoder := NewEncoder(&buf, logger)
			decoder := NewDecoder(&buf, logger)

			if err := encoder.Encode(tt.message); err != nil {
				t.Fatalf("failed to encode: %v", err)
			}

			msg, err := decoder.DecodeEnvelope()
			if err != nil {
				t.Fatalf("failed to decode envelope: %v", err)
			}

			gotType := fmt.Sprintf("%T", msg)
			if gotType != tt.wantType {
				t.Errorf("wrong type: got %s, want %s", gotType, tt.wantType)
			}
		})
	}
}

func TestDecodeEnvelopeUnknownKind(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	decoder := NewDecoder(strings.NewReader("{\"kind\":\"heartbeat\"}\n{\"message\":\"no kind\"}\n"), logger)

	if _, err := decoder.DecodeEnvelope(); err == nil || !strings.Contains(err.Error(), "unknown message kind") {
		t.Errorf("expected unknown kind error, got %v", err)
	}
	if _, err := decoder.DecodeEnvelope(); err == nil || !strings.Contains(err.Error(), "'kind'") {
		t.Errorf("expected missing kind error, got %v", err)
	}
}

func TestEncoderSizeLimit(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	encoder := NewEncoder(&buf, logger)

	msg := protocol.Log{
		Kind:      protocol.MessageKindLog,
		Level:     protocol.LogLevelInfo,
		Message:   strings.Repeat("x", MaxMessageSize),
		Timestamp: time.Now().UTC(),
	}

	err := encoder.Encode(msg)
	if err == nil {
		t.Fatal("expected error for oversized message, got nil")
	}

	if !strings.Contains(err.Error(), "exceeds limit") {
		t.Errorf("expected 'exceeds limit' error, got: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("oversized message must not be written, got %d bytes", buf.Len())
	}
}

func TestDecoderSizeLimit(t *testing.T) {
	largeLine := strings.Repeat("x", MaxMessageSize+1000)
	input := strings.NewReader(largeLine + "\n")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	decoder := NewDecoder(input, logger)

	var msg map[string]any
	err := decoder.Decode(&msg)
	if !errors.Is(err, bufio.ErrTooLong) {
		t.Errorf("expected bufio.ErrTooLong for oversized line, got %v", err)
	}
}

func TestDecoderReadError(t *testing.T) {
	broken := errors.New("pipe broken")
	input := io.MultiReader(
		strings.NewReader("{\"kind\":\"result\",\"status\":\"ok\"}\n"),
		iotest.ErrReader(broken),
	)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	decoder := NewDecoder(input, logger)

	if _, err := decoder.DecodeEnvelope(); err != nil {
		t.Fatalf("first message: %v", err)
	}
	for i := 0; i < 2; i++ {
		_, err := decoder.DecodeEnvelope()
		if !errors.Is(err, ErrRead) || !errors.Is(err, broken) {
			t.Fatalf("call %d: expected ErrRead wrapping the stream error, got %v", i, err)
		}
	}
}

func TestDecoderBadLineIsNotReadError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	decoder := NewDecoder(strings.NewReader("not json\n"), logger)

	_, err := decoder.DecodeEnvelope()
	if err == nil || errors.Is(err, ErrRead) {
		t.Fatalf("expected a recoverable decode error, got %v", err)
	}
}

func TestDecoderEmptyLines(t *testing.T) {
	input := strings.NewReader("\n  \n{\"kind\":\"result\",\"correlation_id\":\"inv-01\",\"status\":\"ok\"}\n")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	decoder := NewDecoder(input, logger)

	var result protocol.Result
	if err := decoder.Decode(&result); err != nil {
		t.Fatalf("failed to decode after empty lines: %v", err)
	}

	if result.CorrelationID != "inv-01" {
		t.Errorf("got correlation_id %s, want inv-01", result.CorrelationID)
	}
	if decoder.Line() != 3 {
		t.Errorf("Line() = %d, want 3", decoder.Line())
	}
}

func TestDecoderEOF(t *testing.T) {
	input := strings.NewReader("")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	decoder := NewDecoder(input, logger)

	var msg map[string]any
	err := decoder.Decode(&msg)
	if err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestMultipleMessages(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	encoder := NewEncoder(&buf, logger)

	messages := []protocol.Log{
		{Kind: protocol.MessageKindLog, Level: protocol.LogLevelInfo, Message: "one", Timestamp: time.Now().UTC()},
		{Kind: protocol.MessageKindLog, Level: protocol.LogLevelWarn, Message: "two", Timestamp: time.Now().UTC()},
		{Kind: protocol.MessageKindLog, Level: protocol.LogLevelError, Message: "three", Timestamp: time.Now().UTC()},
	}

	for _, msg := range messages {
		if err := encoder.Encode(msg); err != nil {
			t.Fatalf("failed to encode message: %v", err)
		}
	}

	decoder := NewDecoder(&buf, logger)
	for i, expected := range messages {
		var decoded protocol.Log
		if err := decoder.Decode(&decoded); err != nil {
			t.Fatalf("failed to decode message %d: %v", i, err)
		}

		if decoded.Message != expected.Message {
			t.Errorf("message %d: got %s, want %s", i, decoded.Message, expected.Message)
		}
		if decoded.Level != expected.Level {
			t.Errorf("message %d: got level %s, want %s", i, decoded.Level, expected.Level)
		}
	}

	var extra protocol.Log
	if err := decoder.Decode(&extra); err != io.EOF {
		t.Errorf("expected EOF after all messages, got %v", err)
	}
}
