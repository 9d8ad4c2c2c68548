package testharness

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/iambrandonn/projectsetup/internal/config"
	"github.com/iambrandonn/projectsetup/internal/eventlog"
	"github.com/iambrandonn/projectsetup/internal/fsutil"
	"github.com/iambrandonn/projectsetup/internal/prompt"
	"github.com/iambrandonn/projectsetup/internal/protocol"
	"github.com/iambrandonn/projectsetup/internal/unit"
	"gopkg.in/yaml.v3"
)

// Scenario defines a deterministic smoke-test flow driven by mockunit scripts.
// Tasks listed in Units get a generated manifest entry running mockunit.
type Scenario struct {
	Name      string
	Config    config.Config
	Units     map[string]*Script
	Responses []prompt.Answers
}

var (
	// ScenarioOneOf selects a single task and writes a file from its answers.
	ScenarioOneOf = Scenario{
		Name: "one-of",
		Config: config.Config{
			Routes: &config.RouteNode{
				Message: "Pick a service",
				OneOf:   []config.Route{{Key: "a"}, {Key: "b"}},
			},
			Tasks: []config.Task{
				{Key: "a", Name: "Service A"},
				{Key: "b", Name: "Service B", Questions: []prompt.Question{
					{Type: prompt.TypeInput, Name: "project", Message: "Project name"},
				}},
			},
		},
		Units: map[string]*Script{
			"a": {},
			"b": {Hooks: map[protocol.Hook]HookScript{
				protocol.HookRun: {
					Logs:  []LogTemplate{{Message: "writing readme"}},
					Files: map[string]string{"README.md": "# ${project}\n"},
				},
			}},
		},
		Responses: []prompt.Answers{
			{"task": "Service B"},
			{"project": "demo"},
		},
	}
	// ScenarioManyOf runs several units, one prompting during its run hook,
	// and records the resolved tasks with the save-config builtin.
	ScenarioManyOf = Scenario{
		Name: "many-of",
		Config: config.Config{
			Routes: &config.RouteNode{
				ManyOf: []config.Route{{Key: "api"}, {Key: "docs"}, {Key: "save"}},
			},
			Tasks: []config.Task{
				{Key: "api", Name: "API"},
				{Key: "docs", Name: "Docs"},
				{Key: "save", Name: "Save configuration", Entry: "builtin:save-config"},
			},
		},
		Units: map[string]*Script{
			"api": {Hooks: map[protocol.Hook]HookScript{
				protocol.HookRun: {Files: map[string]string{"api/main.go": "package main\n"}},
			}},
			"docs": {Hooks: map[protocol.Hook]HookScript{
				protocol.HookRun: {
					Prompt: []prompt.Question{{Type: prompt.TypeInput, Name: "title", Message: "Handbook title"}},
					Files:  map[string]string{"docs/index.md": "# ${title}\n"},
				},
			}},
		},
		Responses: []prompt.Answers{
			{"tasks": []string{"API", "Docs", "Save configuration"}},
			{"title": "Handbook"},
		},
	}
	// ScenarioUnitFailure fails in the run hook, so afterAll never runs.
	ScenarioUnitFailure = Scenario{
		Name: "unit-failure",
		Config: config.Config{
			Routes: &config.RouteNode{OneOf: []config.Route{{Key: "broken"}}},
			Tasks:  []config.Task{{Key: "broken", Name: "Broken"}},
		},
		Units: map[string]*Script{
			"broken": {Hooks: map[protocol.Hook]HookScript{
				protocol.HookRun: {Error: "template missing"},
			}},
		},
		Responses: []prompt.Answers{{"task": "Broken"}},
	}
)

// SmokeOptions configures RunSmoke.
type SmokeOptions struct {
	Scenario       Scenario
	SetupBinary    string
	MockUnitBinary string
	WorkspaceDir   string
	Env            map[string]string
}

// SmokeResult captures the outcome of a smoke scenario.
type SmokeResult struct {
	Scenario    Scenario
	Workspace   string
	Destination string
	Stdout      string
	Stderr      string
	RunErr      error
	// Calls holds the "<task> <hook>" lines recorded by mockunit, in call order
	Calls []string
	// Hooks holds the hook records of the run transcript
	Hooks []protocol.HookRecord
}

// RunSmoke writes the scenario's configuration directory and runs
// projectsetup against it non-interactively.
func RunSmoke(ctx context.Context, opts SmokeOptions) (*SmokeResult, error) {
	if opts.SetupBinary == "" {
		return nil, fmt.Errorf("projectsetup binary path is required")
	}
	if opts.MockUnitBinary == "" {
		return nil, fmt.Errorf("mockunit binary path is required")
	}

	workspace := opts.WorkspaceDir
	var err error
	if workspace == "" {
		workspace, err = os.MkdirTemp("", "projectsetup-smoke-")
		if err != nil {
			return nil, fmt.Errorf("failed to create workspace: %w", err)
		}
	} else {
		if err := os.MkdirAll(workspace, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create workspace directory: %w", err)
		}
	}

	configDir := filepath.Join(workspace, "config")
	destination := filepath.Join(workspace, "project")
	recordPath := filepath.Join(workspace, "calls.log")
	transcript := filepath.Join(workspace, "transcript.ndjson")
	answersPath := filepath.Join(workspace, "answers.yaml")

	for _, dir := range []string{configDir, destination} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	cfg := opts.Scenario.Config
	cfg.Tasks = append([]config.Task(nil), cfg.Tasks...)
	for i := range cfg.Tasks {
		task := &cfg.Tasks[i]
		script, ok := opts.Scenario.Units[task.Key]
		if !ok {
			continue
		}
		entry, err := writeUnit(configDir, task.Key, script, opts.MockUnitBinary, recordPath)
		if err != nil {
			return nil, err
		}
		task.Entry = entry
	}
	if err := cfg.SaveToFile(filepath.Join(configDir, config.FileNames[0])); err != nil {
		return nil, err
	}

	answers, err := yaml.Marshal(prompt.Script{Responses: opts.Scenario.Responses})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal answers: %w", err)
	}
	if err := fsutil.AtomicWrite(answersPath, answers); err != nil {
		return nil, err
	}

	stdOut := &bytes.Buffer{}
	stdErr := &bytes.Buffer{}

	cmd := exec.CommandContext(ctx, opts.SetupBinary, "run",
		"--dir", configDir,
		"--answers", answersPath,
		"--destination", destination,
		"--transcript="+transcript)
	cmd.Dir = workspace
	cmd.Stdout = stdOut
	cmd.Stderr = stdErr
	env := mergeEnv(os.Environ(), opts.Env)
	env = setEnv(env, "PROJECTSETUP_HOME", filepath.Join(workspace, "home"))
	cmd.Env = env

	runErr := cmd.Run()

	result := &SmokeResult{
		Scenario:    opts.Scenario,
		Workspace:   workspace,
		Destination: destination,
		Stdout:      stdOut.String(),
		Stderr:      stdErr.String(),
		RunErr:      runErr,
	}

	if data, err := os.ReadFile(recordPath); err == nil {
		result.Calls = strings.Split(strings.TrimSpace(string(data)), "\n")
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if hooks, err := eventlog.ReadHooks(transcript, logger); err == nil {
		result.Hooks = hooks
	}

	return result, nil
}

// writeUnit stores the script and a manifest running mockunit with it,
// returning the manifest's entry path
func writeUnit(configDir, key string, script *Script, binary, recordPath string) (string, error) {
	unitsDir := filepath.Join(configDir, "units")
	if err := os.MkdirAll(unitsDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create units directory: %w", err)
	}

	scriptPath := filepath.Join(unitsDir, key+".script")
	if err := writeScript(scriptPath, script); err != nil {
		return "", err
	}

	manifest := unit.Manifest{
		Cmd: []string{binary, "-script", scriptPath, "-record", recordPath},
	}
	data, err := yaml.Marshal(manifest)
	if err != nil {
		return "", fmt.Errorf("failed to marshal manifest: %w", err)
	}
	entry := filepath.Join("units", key+".yaml")
	if err := fsutil.AtomicWrite(filepath.Join(configDir, entry), data); err != nil {
		return "", err
	}
	return filepath.ToSlash(entry), nil
}

// DetectRepoRoot locates the repository root by searching for go.mod.
func DetectRepoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found (starting from %s)", dir)
		}
		dir = parent
	}
}

func mergeEnv(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return base
	}
	result := append([]string{}, base...)
	for k, v := range overrides {
		result = setEnv(result, k, v)
	}
	return result
}
