package repository

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Git is the subset of git the synchroniser needs
type Git interface {
	// Init creates a repository in dir, or reinitialises an existing one
	Init(ctx context.Context, dir string) error

	// Remotes lists the configured remote names
	Remotes(ctx context.Context, dir string) ([]string, error)

	// AddRemote adds a remote called name pointing at url
	AddRemote(ctx context.Context, dir, name, url string) error

	// Fetch fetches all remotes, pruning deleted branches
	Fetch(ctx context.Context, dir string) error

	// Checkout switches to branch
	Checkout(ctx context.Context, dir, branch string) error

	// Pull rebases the current branch onto remote/branch
	Pull(ctx context.Context, dir, remote, branch string) error
}

// ExecGit runs the git binary found on PATH
type ExecGit struct {
	// Binary overrides the git executable
	Binary string
}

// NewExecGit creates a Git backed by the git command
func NewExecGit() *ExecGit {
	return &ExecGit{Binary: "git"}
}

func (g *ExecGit) Init(ctx context.Context, dir string) error {
	_, err := g.run(ctx, dir, "init")
	return err
}

func (g *ExecGit) Remotes(ctx context.Context, dir string) ([]string, error) {
	out, err := g.run(ctx, dir, "remote")
	if err != nil {
		return nil, err
	}
	return strings.Fields(out), nil
}

func (g *ExecGit) AddRemote(ctx context.Context, dir, name, url string) error {
	_, err := g.run(ctx, dir, "remote", "add", name, url)
	return err
}

func (g *ExecGit) Fetch(ctx context.Context, dir string) error {
	_, err := g.run(ctx, dir, "fetch", "--prune")
	return err
}

func (g *ExecGit) Checkout(ctx context.Context, dir, branch string) error {
	_, err := g.run(ctx, dir, "checkout", branch)
	return err
}

func (g *ExecGit) Pull(ctx context.Context, dir, remote, branch string) error {
	_, err := g.run(ctx, dir, "pull", remote, branch, "--rebase")
	return err
}

func (g *ExecGit) run(ctx context.Context, dir string, args ...string) (string, error) {
	binary := g.Binary
	if binary == "" {
		binary = "git"
	}

	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = dir

	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s failed: %w (output: %s)", args[0], err, strings.TrimSpace(string(output)))
	}
	return string(output), nil
}
