package eventlog

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/iambrandonn/projectsetup/internal/ndjson"
	"github.com/iambrandonn/projectsetup/internal/protocol"
)

func TestEventLogWriteRead(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "runs", "test-run.ndjson")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	eventLog, err := NewEventLog(logPath, logger)
	if err != nil {
		t.Fatalf("failed to create event log: %v", err)
	}
	defer eventLog.Close()

	runID := uuid.New().String()
	started := &protocol.HookRecord{
		Kind:       protocol.MessageKindHook,
		RunID:      runID,
		Hook:       protocol.HookRun,
		Index:      0,
		TaskKey:    "api",
		Status:     protocol.HookStatusStarted,
		OccurredAt: time.Now().UTC(),
	}
	if err := eventLog.Observe(started); err != nil {
		t.Fatalf("failed to write hook record: %v", err)
	}

	log := &protocol.Log{
		Kind:      protocol.MessageKindLog,
		Level:     protocol.LogLevelInfo,
		Message:   "writing go.mod",
		Timestamp: time.Now().UTC(),
	}
	if err := eventLog.WriteLog(log); err != nil {
		t.Fatalf("failed to write log: %v", err)
	}

	failed := *started
	failed.Status = protocol.HookStatusFailed
	failed.Error = "exit status 1"
	if err := eventLog.WriteHook(&failed); err != nil {
		t.Fatalf("failed to write hook record: %v", err)
	}

	if err := eventLog.Close(); err != nil {
		t.Fatalf("failed to close event log: %v", err)
	}

	file, err := os.Open(logPath)
	if err != nil {
		t.Fatalf("failed to open log file for reading: %v", err)
	}
	defer file.Close()

	decoder := ndjson.NewDecoder(file, logger)

	msg1, err := decoder.DecodeEnvelope()
	if err != nil {
		t.Fatalf("failed to decode first message: %v", err)
	}
	if rec, ok := msg1.(*protocol.HookRecord); !ok || rec.Status != protocol.HookStatusStarted {
		t.Errorf("expected started hook record, got %#v", msg1)
	}

	msg2, err := decoder.DecodeEnvelope()
	if err != nil {
		t.Fatalf("failed to decode second message: %v", err)
	}
	if _, ok := msg2.(*protocol.Log); !ok {
		t.Errorf("expected log, got %T", msg2)
	}

	msg3, err := decoder.DecodeEnvelope()
	if err != nil {
		t.Fatalf("failed to decode third message: %v", err)
	}
	if rec, ok := msg3.(*protocol.HookRecord); !ok || rec.Error != "exit status 1" {
		t.Errorf("expected failed hook record, got %#v", msg3)
	}

	_, err = decoder.DecodeEnvelope()
	if err != io.EOF {
		t.Errorf("expected EOF, got %v", err)
	}

	records, err := ReadHooks(logPath, logger)
	if err != nil {
		t.Fatalf("ReadHooks() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 hook records, got %d", len(records))
	}
	if records[0].RunID != runID || records[1].Status != protocol.HookStatusFailed {
		t.Errorf("unexpected records: %+v", records)
	}
}

func TestEventLogDirectoryCreation(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "nested", "dirs", "runs", "test.ndjson")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	eventLog, err := NewEventLog(logPath, logger)
	if err != nil {
		t.Fatalf("failed to create event log: %v", err)
	}
	defer eventLog.Close()

	if _, err := os.Stat(filepath.Dir(logPath)); os.IsNotExist(err) {
		t.Error("log directory was not created")
	}
	if eventLog.Path() != logPath {
		t.Errorf("Path() = %s, want %s", eventLog.Path(), logPath)
	}
}

func TestEventLogWriteAfterClose(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eventLog, err := NewEventLog(filepath.Join(t.TempDir(), "run.ndjson"), logger)
	if err != nil {
		t.Fatalf("failed to create event log: %v", err)
	}

	if err := eventLog.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := eventLog.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := eventLog.WriteHook(&protocol.HookRecord{Kind: protocol.MessageKindHook}); err == nil {
		t.Error("expected error writing to closed log")
	}
}
