package unit

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/iambrandonn/projectsetup/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadManifestYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks", "api.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(`
cmd: [node, ./api/index.js, --quiet]
hooks: [run, afterAll]
env:
  API_STYLE: rest
`), 0644))

	m, err := LoadManifest(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"node", filepath.Join(dir, "tasks", "api", "index.js"), "--quiet"}, m.Cmd)
	assert.Equal(t, []protocol.Hook{protocol.HookRun, protocol.HookAfterAll}, m.Hooks)
	assert.Equal(t, "rest", m.Env["API_STYLE"])

	p := NewProcessFromManifest(m)
	assert.False(t, p.Supports(protocol.HookBeforeAll))
	assert.True(t, p.Supports(protocol.HookRun))
	assert.True(t, p.Supports(protocol.HookAfterAll))
}

func TestLoadManifestJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "web.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"cmd":["/usr/bin/env","true"]}`), 0644))

	m, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"/usr/bin/env", "true"}, m.Cmd)

	p := NewProcessFromManifest(m)
	for _, h := range protocol.Hooks {
		assert.True(t, p.Supports(h), "hook %s", h)
	}
}

func TestLoadManifestPromptsAndTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gen.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cmd: [node, gen.js]\nprompts: false\ntimeout: 90s\n"), 0644))

	m, err := LoadManifest(path)
	require.NoError(t, err)
	assert.False(t, m.AllowsPrompts())
	d, err := m.HookTimeout()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	p := NewProcessFromManifest(m)
	assert.True(t, p.noPrompts)
	assert.Equal(t, 90*time.Second, p.timeout)

	defaults := &Manifest{Cmd: []string{"true"}}
	assert.True(t, defaults.AllowsPrompts())
	d, err = defaults.HookTimeout()
	require.NoError(t, err)
	assert.Zero(t, d)
}

func TestLoadManifestInvalid(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{name: "missing cmd", file: "a.yaml", content: "hooks: [run]\n"},
		{name: "unknown hook", file: "b.yaml", content: "cmd: [true]\nhooks: [teardown]\n"},
		{name: "bad json", file: "c.json", content: "{"},
		{name: "bad timeout", file: "d.yaml", content: "cmd: [true]\ntimeout: soon\n"},
		{name: "negative timeout", file: "e.yaml", content: "cmd: [true]\ntimeout: -1s\n"},
	}

	dir := t.TempDir()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))
			_, err := LoadManifest(path)
			assert.Error(t, err)
		})
	}
}

func TestIsManifest(t *testing.T) {
	assert.True(t, IsManifest("unit.yaml"))
	assert.True(t, IsManifest("unit.YML"))
	assert.True(t, IsManifest("unit.json"))
	assert.False(t, IsManifest("unit.sh"))
	assert.False(t, IsManifest("unit"))
}
