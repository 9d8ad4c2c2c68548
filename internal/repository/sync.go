package repository

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/iambrandonn/projectsetup/internal/console"
)

// Syncer brings a cached configuration repository up to date
type Syncer struct {
	git     Git
	console *console.Console
	logger  *slog.Logger
}

// NewSyncer creates a syncer
func NewSyncer(git Git, con *console.Console, logger *slog.Logger) *Syncer {
	return &Syncer{git: git, console: con, logger: logger}
}

// Sync initialises dir as a clone of url and pulls branch into it.
// Failures before the pull are reported as warnings; they are expected for a
// fresh cache where the branch exists only remotely. A failed pull is fatal.
func (s *Syncer) Sync(ctx context.Context, dir, url, branch string) error {
	if branch == "" {
		branch = DefaultBranch
	}

	s.console.Step("Cache", dir)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("checkout failed: %w", err)
	}

	s.console.Step("Checkout", url)
	if err := s.prepare(ctx, dir, url, branch); err != nil {
		s.logger.Debug("checkout preparation failed", "dir", dir, "error", err)
		s.console.Warn("Checkout error", err.Error())
	}

	if err := s.git.Pull(ctx, dir, DefaultRemote, branch); err != nil {
		return fmt.Errorf("checkout failed: %w", err)
	}

	s.logger.Info("repository synchronised", "dir", dir, "branch", branch)
	return nil
}

func (s *Syncer) prepare(ctx context.Context, dir, url, branch string) error {
	if err := s.git.Init(ctx, dir); err != nil {
		return err
	}

	remotes, err := s.git.Remotes(ctx, dir)
	if err != nil {
		return err
	}
	if !slices.Contains(remotes, DefaultRemote) {
		if err := s.git.AddRemote(ctx, dir, DefaultRemote, url); err != nil {
			return err
		}
	}

	if err := s.git.Fetch(ctx, dir); err != nil {
		return err
	}
	return s.git.Checkout(ctx, dir, branch)
}
