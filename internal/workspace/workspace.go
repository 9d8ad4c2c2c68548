package workspace

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/iambrandonn/projectsetup/internal/fsutil"
)

// DirName is the cache directory created in the user's home directory
const DirName = ".projectsetup"

// Root returns the cache root below home
func Root(home string) string {
	return filepath.Join(home, DirName)
}

// GetRequiredDirectories returns the directories that must exist below the cache root
func GetRequiredDirectories() []string {
	return []string{
		"git",  // /git/<host>/<path> synchronised configuration repositories
		"runs", // /runs/<run_id>.ndjson hook transcripts
	}
}

// Initialize creates all required directories with 0700 permissions.
// Safe to call repeatedly.
func Initialize(root string) error {
	for _, dir := range GetRequiredDirectories() {
		path := filepath.Join(root, dir)
		if err := os.MkdirAll(path, 0700); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", path, err)
		}
	}
	return nil
}

// IsInitialized checks if the cache root has all required directories
func IsInitialized(root string) (bool, error) {
	for _, dir := range GetRequiredDirectories() {
		path := filepath.Join(root, dir)

		info, err := os.Stat(path)
		if os.IsNotExist(err) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("failed to check directory %s: %w", path, err)
		}
		if !info.IsDir() {
			return false, nil
		}
	}
	return true, nil
}

// TranscriptPath returns the transcript file of a run
func TranscriptPath(root, runID string) string {
	return filepath.Join(root, "runs", runID+".ndjson")
}

// AnswerStore persists answers of questions marked with store, keyed by question name
type AnswerStore struct {
	path string

	mu      sync.Mutex
	answers map[string]any
}

// OpenAnswerStore loads the store kept in root. A missing file yields an empty store.
func OpenAnswerStore(root string) (*AnswerStore, error) {
	s := &AnswerStore{
		path:    filepath.Join(root, "answers.json"),
		answers: make(map[string]any),
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read answer store: %w", err)
	}

	if err := json.Unmarshal(data, &s.answers); err != nil {
		return nil, fmt.Errorf("failed to parse answer store %s: %w", s.path, err)
	}
	if s.answers == nil {
		s.answers = make(map[string]any)
	}

	return s, nil
}

// Lookup returns the remembered answer for name
func (s *AnswerStore) Lookup(name string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.answers[name]
	return v, ok
}

// Remember records the answer for name and saves the store
func (s *AnswerStore) Remember(name string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers[name] = value
	return fsutil.AtomicWriteJSON(s.path, s.answers)
}

// Path returns the file backing the store
func (s *AnswerStore) Path() string {
	return s.path
}
