package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/iambrandonn/projectsetup/internal/prompt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `version: "1"
routes:
  message: Pick a stack
  oneOf:
    - key: api
      routes:
        manyOf:
          - key: lint
          - key: ci
    - key: web
tasks:
  - key: api
    name: API service
    entry: tasks/api.yaml
    questions:
      - type: input
        name: module
        message: Module path
        default: example.com/api
  - key: web
    name: Web app
    entry: tasks/web.sh
  - key: lint
    name: Linting
  - key: ci
    name: Continuous integration
    entry: builtin:git-init
`

func validConfig() *Config {
	return &Config{
		Routes: &RouteNode{
			OneOf: []Route{
				{Key: "a", Routes: &RouteNode{ManyOf: []Route{{Key: "c"}}}},
				{Key: "b"},
			},
		},
		Tasks: []Task{
			{Key: "a", Name: "A", Entry: "a.sh"},
			{Key: "b", Name: "B", Entry: "b.sh"},
			{Key: "c", Name: "C"},
		},
	}
}

func TestLoadFromFileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projectsetup.config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "1", cfg.Version)
	require.NotNil(t, cfg.Routes)
	assert.Equal(t, RouteOneOf, cfg.Routes.Kind())
	assert.Equal(t, "Pick a stack", cfg.Routes.Message)
	require.Len(t, cfg.Routes.OneOf, 2)
	assert.Equal(t, RouteManyOf, cfg.Routes.OneOf[0].Routes.Kind())
	assert.Equal(t, RouteNone, cfg.Routes.OneOf[1].Routes.Kind())

	api, ok := cfg.Task("api")
	require.True(t, ok)
	assert.Equal(t, "tasks/api.yaml", api.Entry)
	require.Len(t, api.Questions, 1)
	assert.Equal(t, prompt.TypeInput, api.Questions[0].Type)
	assert.Equal(t, "example.com/api", api.Questions[0].Default)
}

func TestLoadFromFileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projectsetup.config.json")
	content := `{"routes":{"manyOf":[{"key":"a"}]},"tasks":[{"key":"a","name":"A","entry":"a.js"}]}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, RouteManyOf, cfg.Routes.Kind())
	assert.Equal(t, "a.js", cfg.Tasks[0].Entry)
}

func TestLoadFromFileInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projectsetup.config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tasks: [unclosed"), 0o600))

	_, err := LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestFindPrefersYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "projectsetup.config.json"), []byte(`{"tasks":[]}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "projectsetup.config.yaml"), []byte("tasks: []\n"), 0o600))

	path, err := Find(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "projectsetup.config.yaml"), path)
}

func TestFindMissing(t *testing.T) {
	_, err := Find(t.TempDir())
	assert.ErrorIs(t, err, ErrNotFound)

	_, _, err = LoadFromDir(t.TempDir())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestValidate_ValidConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_NoRoutes(t *testing.T) {
	cfg := &Config{Tasks: []Task{{Key: "a", Name: "A"}}}
	assert.NoError(t, cfg.Validate())
}

func TestValidate_UnknownTaskKey(t *testing.T) {
	cfg := validConfig()
	cfg.Routes.OneOf[0].Routes.ManyOf[0].Key = "missing"

	err := cfg.Validate()
	assert.ErrorIs(t, err, ErrUnknownTask)
	assert.Contains(t, err.Error(), "missing")
	assert.Contains(t, err.Error(), "routes.oneOf[0].routes.manyOf[0]")
}

func TestValidate_DualSelector(t *testing.T) {
	cfg := validConfig()
	cfg.Routes.ManyOf = []Route{{Key: "c"}}

	err := cfg.Validate()
	assert.ErrorIs(t, err, ErrAmbiguousRoute)
	// Kind still resolves deterministically for unvalidated input
	assert.Equal(t, RouteOneOf, cfg.Routes.Kind())
}

func TestValidate_EmptySelector(t *testing.T) {
	cfg := validConfig()
	cfg.Routes.OneOf[0].Routes.ManyOf = []Route{}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is empty")
}

func TestValidate_DuplicateKey(t *testing.T) {
	cfg := validConfig()
	cfg.Tasks = append(cfg.Tasks, Task{Key: "a", Name: "Another A"})

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate task key 'a'")
}

func TestValidate_DuplicateNameWithinSelector(t *testing.T) {
	cfg := validConfig()
	cfg.Tasks[1].Name = "A"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "share the name")
}

func TestValidate_MissingName(t *testing.T) {
	cfg := validConfig()
	cfg.Tasks[2].Name = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing 'name'")
}

func TestValidate_BadQuestion(t *testing.T) {
	cfg := validConfig()
	cfg.Tasks[0].Questions = []prompt.Question{{Type: prompt.TypeList, Name: "db"}}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task 'a'")
}

func TestSaveAndReload(t *testing.T) {
	for _, name := range []string{"out.yaml", "out.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, validConfig().SaveToFile(path))

			info, err := os.Stat(path)
			require.NoError(t, err)
			assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

			cfg, err := LoadFromFile(path)
			require.NoError(t, err)
			assert.Equal(t, validConfig(), cfg)
		})
	}
}

func TestRouteNodeFind(t *testing.T) {
	n := validConfig().Routes

	r, ok := n.Find("a")
	require.True(t, ok)
	assert.Equal(t, RouteManyOf, r.Routes.Kind())

	_, ok = n.Find("c")
	assert.False(t, ok)

	var empty *RouteNode
	assert.Equal(t, RouteNone, empty.Kind())
	assert.Nil(t, empty.Choices())
}
