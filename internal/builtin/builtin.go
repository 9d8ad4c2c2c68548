// Package builtin provides the units compiled into projectsetup. Tasks refer
// to them with entries such as "builtin:git-init".
package builtin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/iambrandonn/projectsetup/internal/fsutil"
	"github.com/iambrandonn/projectsetup/internal/repository"
	"github.com/iambrandonn/projectsetup/internal/todo"
	"github.com/iambrandonn/projectsetup/internal/unit"
)

const (
	GitInitName    = "git-init"
	SaveConfigName = "save-config"

	// ConfigFile is written into the destination by save-config
	ConfigFile = ".projectsetup.json"
)

// Register adds every builtin unit to reg
func Register(reg *unit.Registry) error {
	if err := reg.Register(GitInitName, func() unit.Unit {
		return &GitInit{git: repository.NewExecGit()}
	}); err != nil {
		return err
	}
	return reg.Register(SaveConfigName, func() unit.Unit {
		return &SaveConfig{now: time.Now}
	})
}

// Registry returns a registry holding the builtin units
func Registry() (*unit.Registry, error) {
	reg := unit.NewRegistry()
	if err := Register(reg); err != nil {
		return nil, err
	}
	return reg, nil
}

func destination(p *unit.Params) (string, error) {
	if p.Generator == nil || p.Generator.Destination() == "" {
		return "", errors.New("no destination directory")
	}
	return p.Generator.Destination(), nil
}

type initializer interface {
	Init(ctx context.Context, dir string) error
}

// GitInit initialises a git repository in the destination during run
type GitInit struct {
	git initializer
}

func (g *GitInit) Run(ctx context.Context, p *unit.Params) error {
	dest, err := destination(p)
	if err != nil {
		return err
	}

	if _, err := os.Stat(filepath.Join(dest, ".git")); err == nil {
		p.Generator.Logger().Debug("git repository already present", "dir", dest)
		return nil
	}

	if err := os.MkdirAll(dest, 0755); err != nil {
		return fmt.Errorf("failed to create destination: %w", err)
	}
	if err := g.git.Init(ctx, dest); err != nil {
		return err
	}
	if con := p.Generator.Console(); con != nil {
		con.Step("Git", "initialised "+dest)
	}
	return nil
}

// Record is the content of the file written by save-config
type Record struct {
	RunID       string            `json:"run_id,omitempty"`
	Tasks       []string          `json:"tasks"`
	Config      todo.SharedConfig `json:"config"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// SaveConfig records the selected tasks and shared configuration in the
// destination once every unit has finished
type SaveConfig struct {
	now func() time.Time
}

func (s *SaveConfig) AfterAll(ctx context.Context, p *unit.Params) error {
	dest, err := destination(p)
	if err != nil {
		return err
	}

	cfg := p.Config
	if cfg == nil {
		cfg = todo.SharedConfig{}
	}
	rec := Record{
		RunID:       p.Generator.RunID(),
		Tasks:       todo.Keys(p.Todos),
		Config:      cfg,
		GeneratedAt: s.now().UTC(),
	}

	path := filepath.Join(dest, ConfigFile)
	if err := fsutil.AtomicWriteJSON(path, rec); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	if con := p.Generator.Console(); con != nil {
		con.Step("Saved", path)
	}
	return nil
}
