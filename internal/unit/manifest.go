package unit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/iambrandonn/projectsetup/internal/protocol"
	"gopkg.in/yaml.v3"
)

// Manifest describes a process unit whose command is not the entry file itself
type Manifest struct {
	// Cmd is the command line. Elements starting with "./" or "../" are
	// resolved against the manifest's directory.
	Cmd []string `yaml:"cmd" json:"cmd"`
	// Hooks restricts the hooks the unit is called for. Empty means all.
	Hooks []protocol.Hook   `yaml:"hooks,omitempty" json:"hooks,omitempty"`
	Env   map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	// Prompts set to false closes stdin once the invocation is written, for
	// units that read stdin to EOF. Such units cannot prompt.
	Prompts *bool `yaml:"prompts,omitempty" json:"prompts,omitempty"`
	// Timeout bounds each hook call, as a Go duration ("90s", "5m").
	Timeout string `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// AllowsPrompts reports whether the unit keeps stdin open for answers
func (m *Manifest) AllowsPrompts() bool {
	return m.Prompts == nil || *m.Prompts
}

// HookTimeout returns the parsed timeout, zero when unset
func (m *Manifest) HookTimeout() (time.Duration, error) {
	if m.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(m.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", m.Timeout, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("timeout must be positive, got %s", m.Timeout)
	}
	return d, nil
}

// IsManifest reports whether path names a manifest by extension
func IsManifest(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

// LoadManifest reads a manifest from a YAML or JSON file
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &m)
	} else {
		err = yaml.Unmarshal(data, &m)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest %s: %w", path, err)
	}

	base := filepath.Dir(path)
	for i, arg := range m.Cmd {
		if strings.HasPrefix(arg, "./") || strings.HasPrefix(arg, "../") {
			m.Cmd[i] = filepath.Join(base, arg)
		}
	}

	return &m, nil
}

// Validate checks the manifest's command and hooks
func (m *Manifest) Validate() error {
	if len(m.Cmd) == 0 || m.Cmd[0] == "" {
		return fmt.Errorf("cmd is required")
	}
	for _, h := range m.Hooks {
		if !h.Valid() {
			return fmt.Errorf("unknown hook %q (want one of beforeAll, run, afterAll)", h)
		}
	}
	if _, err := m.HookTimeout(); err != nil {
		return err
	}
	return nil
}
