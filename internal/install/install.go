// Package install installs the dependencies a configuration repository
// declares for its units.
package install

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/iambrandonn/projectsetup/internal/console"
)

// ManifestFile is the package manifest checked for dependencies
const ManifestFile = "package.json"

// Runner executes a command in a directory
type Runner interface {
	Run(ctx context.Context, dir string, name string, args ...string) error
}

// ExecRunner runs commands with os/exec, discarding their output
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, dir string, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %v failed: %w", name, args, err)
	}
	return nil
}

type packageManifest struct {
	Dependencies map[string]string `json:"dependencies"`
}

// NeedsInstall reports whether dir holds a package.json with dependencies
func NeedsInstall(dir string) (bool, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", ManifestFile, err)
	}

	var pkg packageManifest
	if err := json.Unmarshal(data, &pkg); err != nil {
		return false, fmt.Errorf("failed to parse %s: %w", filepath.Join(dir, ManifestFile), err)
	}
	return len(pkg.Dependencies) > 0, nil
}

// Installer installs configuration dependencies
type Installer struct {
	runner  Runner
	console *console.Console
	logger  *slog.Logger
}

// New creates an installer. A nil runner uses ExecRunner.
func New(runner Runner, con *console.Console, logger *slog.Logger) *Installer {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Installer{runner: runner, console: con, logger: logger}
}

// Install runs "npm install --production" in dir when it declares dependencies
func (i *Installer) Install(ctx context.Context, dir string) error {
	needed, err := NeedsInstall(dir)
	if err != nil {
		return err
	}
	if !needed {
		i.logger.Debug("no dependencies to install", "dir", dir)
		return nil
	}

	i.console.Step("Install", "config dependencies...")
	if err := i.runner.Run(ctx, dir, "npm", "install", "--production"); err != nil {
		return fmt.Errorf("failed to install config dependencies: %w", err)
	}
	i.console.Step("Install", "config dependencies completed")
	return nil
}
