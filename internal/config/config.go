package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/iambrandonn/projectsetup/internal/prompt"
	"gopkg.in/yaml.v3"
)

// FileNames lists the configuration file names searched in a configuration directory, in order
var FileNames = []string{
	"projectsetup.config.yaml",
	"projectsetup.config.yml",
	"projectsetup.config.json",
}

var (
	// ErrNotFound is returned when no configuration file exists in a directory
	ErrNotFound = errors.New("configuration file not found")
	// ErrUnknownTask is returned when a route references a key missing from the task catalog
	ErrUnknownTask = errors.New("unknown task key")
	// ErrAmbiguousRoute is returned for a route node carrying both oneOf and manyOf
	ErrAmbiguousRoute = errors.New("route declares both oneOf and manyOf")
)

// Config represents the projectsetup configuration file
type Config struct {
	Version string     `yaml:"version,omitempty" json:"version,omitempty"`
	Routes  *RouteNode `yaml:"routes,omitempty" json:"routes,omitempty"`
	Tasks   []Task     `yaml:"tasks" json:"tasks"`
}

// Task is a catalog entry that can be offered by a route
type Task struct {
	Key  string `yaml:"key" json:"key"`
	Name string `yaml:"name" json:"name"`
	// Entry locates the executable unit, relative to the configuration directory.
	// Entries of the form "builtin:<name>" refer to units compiled into the binary.
	Entry     string            `yaml:"entry,omitempty" json:"entry,omitempty"`
	Questions []prompt.Question `yaml:"questions,omitempty" json:"questions,omitempty"`
}

// RouteKind identifies which selector a route node carries
type RouteKind int

const (
	RouteNone RouteKind = iota
	RouteOneOf
	RouteManyOf
)

func (k RouteKind) String() string {
	switch k {
	case RouteOneOf:
		return "oneOf"
	case RouteManyOf:
		return "manyOf"
	default:
		return "none"
	}
}

// RouteNode is a decision point offering tasks to select
type RouteNode struct {
	Message string  `yaml:"message,omitempty" json:"message,omitempty"`
	OneOf   []Route `yaml:"oneOf,omitempty" json:"oneOf,omitempty"`
	ManyOf  []Route `yaml:"manyOf,omitempty" json:"manyOf,omitempty"`
}

// Route references a task and the decisions that follow selecting it
type Route struct {
	Key    string     `yaml:"key" json:"key"`
	Routes *RouteNode `yaml:"routes,omitempty" json:"routes,omitempty"`
}

// Kind returns the selector kind of the node. A node carrying both selectors
// reports RouteOneOf; Validate rejects such nodes.
func (n *RouteNode) Kind() RouteKind {
	switch {
	case n == nil:
		return RouteNone
	case n.OneOf != nil:
		return RouteOneOf
	case n.ManyOf != nil:
		return RouteManyOf
	default:
		return RouteNone
	}
}

// Choices returns the routes of the node's selector
func (n *RouteNode) Choices() []Route {
	switch n.Kind() {
	case RouteOneOf:
		return n.OneOf
	case RouteManyOf:
		return n.ManyOf
	default:
		return nil
	}
}

// Find returns the route with the given key
func (n *RouteNode) Find(key string) (Route, bool) {
	for _, r := range n.Choices() {
		if r.Key == key {
			return r, true
		}
	}
	return Route{}, false
}

// Task looks up a task by key
func (c *Config) Task(key string) (*Task, bool) {
	for i := range c.Tasks {
		if c.Tasks[i].Key == key {
			return &c.Tasks[i], true
		}
	}
	return nil, false
}

// Validate checks the configuration for errors and returns user-friendly error messages
func (c *Config) Validate() error {
	keys := make(map[string]struct{}, len(c.Tasks))
	for i, task := range c.Tasks {
		if strings.TrimSpace(task.Key) == "" {
			return fmt.Errorf("configuration error: task #%d is missing 'key'\n\nHint: Every task needs a unique key referenced by routes:\n  tasks:\n    - key: api\n      name: API service", i+1)
		}
		if _, dup := keys[task.Key]; dup {
			return fmt.Errorf("configuration error: duplicate task key '%s'\n\nHint: Task keys must be unique within 'tasks'", task.Key)
		}
		keys[task.Key] = struct{}{}

		if strings.TrimSpace(task.Name) == "" {
			return fmt.Errorf("configuration error: task '%s' is missing 'name'\n\nHint: The name is the label shown when the task is offered:\n  name: API service", task.Key)
		}

		for _, q := range task.Questions {
			if err := q.Validate(); err != nil {
				return fmt.Errorf("configuration error: task '%s': %w", task.Key, err)
			}
		}
	}

	return c.validateNode(c.Routes, "routes")
}

func (c *Config) validateNode(n *RouteNode, path string) error {
	if n == nil {
		return nil
	}

	if n.OneOf != nil && n.ManyOf != nil {
		return fmt.Errorf("configuration error: %s: %w\n\nHint: A route offers either a single choice (oneOf) or several (manyOf); split it into nested routes", path, ErrAmbiguousRoute)
	}

	kind := n.Kind()
	if kind == RouteNone {
		return nil
	}

	choices := n.Choices()
	if len(choices) == 0 {
		return fmt.Errorf("configuration error: %s.%s is empty\n\nHint: List at least one task key or remove the selector", path, kind)
	}

	names := make(map[string]string, len(choices))
	for i, route := range choices {
		routePath := fmt.Sprintf("%s.%s[%d]", path, kind, i)

		task, ok := c.Task(route.Key)
		if !ok {
			return fmt.Errorf("configuration error: %s references task '%s': %w\n\nHint: Add a task with key '%s' to 'tasks'", routePath, route.Key, ErrUnknownTask, route.Key)
		}
		if other, dup := names[task.Name]; dup {
			return fmt.Errorf("configuration error: %s: tasks '%s' and '%s' share the name '%s'\n\nHint: Names offered together must be distinct", routePath, other, task.Key, task.Name)
		}
		names[task.Name] = task.Key

		if err := c.validateNode(route.Routes, routePath+".routes"); err != nil {
			return err
		}
	}

	return nil
}

// Find returns the path of the first configuration file present in dir
func Find(dir string) (string, error) {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		if err == nil && info.Mode().IsRegular() {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w in %s (looked for %s)", ErrNotFound, dir, strings.Join(FileNames, ", "))
}

// LoadFromDir finds and loads the configuration file in dir
func LoadFromDir(dir string) (*Config, string, error) {
	path, err := Find(dir)
	if err != nil {
		return nil, "", err
	}
	cfg, err := LoadFromFile(path)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// LoadFromFile loads a configuration from a YAML or JSON file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return &cfg, nil
}

// SaveToFile writes the configuration as YAML, or JSON when path ends in .json
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err = json.MarshalIndent(c, "", "  ")
		data = append(data, '\n')
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}

	return nil
}
