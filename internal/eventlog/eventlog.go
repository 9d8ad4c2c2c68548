package eventlog

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/iambrandonn/projectsetup/internal/ndjson"
	"github.com/iambrandonn/projectsetup/internal/protocol"
)

// EventLog appends the hook records and unit logs of a run to an NDJSON file
type EventLog struct {
	path    string
	file    *os.File
	encoder *ndjson.Encoder
	logger  *slog.Logger
	mu      sync.Mutex
}

// NewEventLog opens the transcript at logPath for appending
func NewEventLog(logPath string, logger *slog.Logger) (*EventLog, error) {
	dir := filepath.Dir(logPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return &EventLog{
		path:    logPath,
		file:    file,
		encoder: ndjson.NewEncoder(file, logger),
		logger:  logger,
	}, nil
}

// Path returns the transcript location
func (l *EventLog) Path() string {
	return l.path
}

// WriteHook writes a hook record
func (l *EventLog) WriteHook(rec *protocol.HookRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return fmt.Errorf("event log closed")
	}
	return l.encoder.Encode(rec)
}

// Observe records a hook call; it lets the log observe an orchestrator
func (l *EventLog) Observe(rec *protocol.HookRecord) error {
	return l.WriteHook(rec)
}

// WriteLog writes a unit log message
func (l *EventLog) WriteLog(log *protocol.Log) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return fmt.Errorf("event log closed")
	}
	return l.encoder.Encode(log)
}

// Close closes the event log file
func (l *EventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// ReadHooks returns the hook records stored at path, in write order.
// Other message kinds are skipped.
func ReadHooks(path string, logger *slog.Logger) ([]protocol.HookRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript: %w", err)
	}
	defer file.Close()

	decoder := ndjson.NewDecoder(file, logger)
	var records []protocol.HookRecord
	for {
		msg, err := decoder.DecodeEnvelope()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read transcript %s: %w", path, err)
		}
		if rec, ok := msg.(*protocol.HookRecord); ok {
			records = append(records, *rec)
		}
	}
}
