package cli

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/iambrandonn/projectsetup/internal/builtin"
	"github.com/iambrandonn/projectsetup/internal/config"
	"github.com/iambrandonn/projectsetup/internal/eventlog"
	"github.com/iambrandonn/projectsetup/internal/install"
	"github.com/iambrandonn/projectsetup/internal/lifecycle"
	"github.com/iambrandonn/projectsetup/internal/protocol"
	"github.com/iambrandonn/projectsetup/internal/repository"
	"github.com/iambrandonn/projectsetup/internal/unit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `version: "1"
routes:
  message: Which parts do you need?
  manyOf:
    - key: api
    - key: docs
    - key: save
tasks:
  - key: api
    name: API
    entry: units/api.sh
    questions:
      - type: input
        name: project
        message: Project name?
  - key: docs
    name: Docs
  - key: save
    name: Save configuration
    entry: builtin:save-config
`

const apiUnit = `#!/bin/sh
read inv
echo "$PROJECTSETUP_TASK $1" >> calls.txt
echo '{"kind":"log","level":"info","message":"hook done"}'
echo '{"kind":"result","status":"ok"}'
`

func writeConfigDir(t *testing.T, dir, cfg string, units map[string]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "projectsetup.config.yaml"), []byte(cfg), 0644))
	for name, body := range units {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0755))
	}
}

func writeAnswers(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "answers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestRunWithConfigDirectory(t *testing.T) {
	t.Setenv(HomeEnv, t.TempDir())
	dir := t.TempDir()
	dest := t.TempDir()
	writeConfigDir(t, dir, sampleConfig, map[string]string{"units/api.sh": apiUnit})
	answers := writeAnswers(t, `responses:
  - tasks: [API, Docs, Save configuration]
  - project: demo
`)
	transcript := filepath.Join(t.TempDir(), "run.ndjson")

	out, _, err := execute(t, "--dir", dir, "--answers", answers, "--destination", dest, "--transcript="+transcript)
	require.NoError(t, err)

	assert.Contains(t, out, "Configure "+filepath.Join(dir, "projectsetup.config.yaml"))
	assert.Contains(t, out, "Load 2 of 3 tasks have units")
	assert.Contains(t, out, "[api] hook done")
	assert.Contains(t, out, "Done 3 tasks applied")

	calls, err := os.ReadFile(filepath.Join(dest, "calls.txt"))
	require.NoError(t, err)
	assert.Equal(t, "api beforeAll\napi run\napi afterAll\n", string(calls))

	data, err := os.ReadFile(filepath.Join(dest, builtin.ConfigFile))
	require.NoError(t, err)
	var rec builtin.Record
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, []string{"api", "docs", "save"}, rec.Tasks)
	assert.Equal(t, "demo", rec.Config["project"])

	records, err := eventlog.ReadHooks(transcript, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	var completed []string
	for _, r := range records {
		if r.Status == protocol.HookStatusCompleted {
			completed = append(completed, string(r.Hook)+":"+r.TaskKey)
		}
	}
	assert.Equal(t, []string{"beforeAll:api", "run:api", "afterAll:save", "afterAll:api"}, completed)
}

type fakeGit struct {
	config string
	pulled []string
}

func (f *fakeGit) Init(ctx context.Context, dir string) error { return nil }
func (f *fakeGit) Remotes(ctx context.Context, dir string) ([]string, error) {
	return nil, nil
}
func (f *fakeGit) AddRemote(ctx context.Context, dir, name, url string) error { return nil }
func (f *fakeGit) Fetch(ctx context.Context, dir string) error { return nil }
func (f *fakeGit) Checkout(ctx context.Context, dir, branch string) error { return nil }

func (f *fakeGit) Pull(ctx context.Context, dir, remote, branch string) error {
	f.pulled = append(f.pulled, dir+"@"+branch)
	return os.WriteFile(filepath.Join(dir, "projectsetup.config.yaml"), []byte(f.config), 0644)
}

type noopRunner struct{ calls int }

func (r *noopRunner) Run(ctx context.Context, dir string, name string, args ...string) error {
	r.calls++
	return nil
}

func TestRunChecksOutRepository(t *testing.T) {
	home := t.TempDir()
	t.Setenv(HomeEnv, home)

	git := &fakeGit{config: `routes:
  oneOf:
    - key: a
    - key: b
tasks:
  - key: a
    name: A
  - key: b
    name: B
`}
	runner := &noopRunner{}
	origGit, origRunner := newGit, newRunner
	newGit = func() repository.Git { return git }
	newRunner = func() install.Runner { return runner }
	t.Cleanup(func() { newGit, newRunner = origGit, origRunner })

	answers := writeAnswers(t, `responses:
  - repository: git@github.com:team/config.git
  - task: B
`)

	out, _, err := execute(t, "--answers", answers, "--branch", "develop", "--destination", t.TempDir())
	require.NoError(t, err)

	cache := filepath.Join(home, ".projectsetup", "git", "github.com", "team", "config")
	assert.Equal(t, []string{cache + "@develop"}, git.pulled)
	assert.Contains(t, out, "Cache "+cache)
	assert.Contains(t, out, "Checkout git@github.com:team/config.git")
	assert.Contains(t, out, "Load 0 of 1 tasks have units")
	assert.Equal(t, 0, runner.calls, "no package.json, no install")
}

func TestRunRejectsInvalidRepositoryURL(t *testing.T) {
	t.Setenv(HomeEnv, t.TempDir())
	answers := writeAnswers(t, `responses:
  - repository: not a repository
`)

	_, _, err := execute(t, "--answers", answers)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Please enter a valid repository url.")
}

func TestRunMissingConfig(t *testing.T) {
	t.Setenv(HomeEnv, t.TempDir())

	_, _, err := execute(t, "run", "--dir", t.TempDir())
	require.Error(t, err)
	assert.True(t, errors.Is(err, config.ErrNotFound))
}

func TestRunMissingEntry(t *testing.T) {
	t.Setenv(HomeEnv, t.TempDir())
	dir := t.TempDir()
	writeConfigDir(t, dir, `routes:
  oneOf:
    - key: api
tasks:
  - key: api
    name: API
    entry: units/missing.sh
`, nil)
	answers := writeAnswers(t, "responses:\n  - task: API\n")

	_, _, err := execute(t, "--dir", dir, "--answers", answers, "--destination", t.TempDir())
	require.Error(t, err)

	var loadErr *unit.LoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, "api", loadErr.TaskKey)
	assert.True(t, errors.Is(err, unit.ErrEntryNotFound))
}

func TestRunHookFailureSkipsAfterAll(t *testing.T) {
	t.Setenv(HomeEnv, t.TempDir())
	dir := t.TempDir()
	dest := t.TempDir()
	writeConfigDir(t, dir, `routes:
  oneOf:
    - key: api
tasks:
  - key: api
    name: API
    entry: api.sh
`, map[string]string{"api.sh": `#!/bin/sh
echo "$1" >> calls.txt
if [ "$1" = "run" ]; then
  echo "cannot render templates" >&2
  exit 2
fi
`})
	answers := writeAnswers(t, "responses:\n  - task: API\n")

	_, _, err := execute(t, "--dir", dir, "--answers", answers, "--destination", dest)
	require.Error(t, err)

	var hookErr *lifecycle.HookError
	require.True(t, errors.As(err, &hookErr))
	assert.Equal(t, protocol.HookRun, hookErr.Hook)
	assert.Contains(t, err.Error(), "cannot render templates")

	calls, err := os.ReadFile(filepath.Join(dest, "calls.txt"))
	require.NoError(t, err)
	assert.Equal(t, "beforeAll\nrun\n", string(calls))
}
