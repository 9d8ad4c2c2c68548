package repository

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// mockGit is a testify mock of Git
type mockGit struct {
	mock.Mock
}

func (m *mockGit) Init(ctx context.Context, dir string) error {
	args := m.Called(ctx, dir)
	return args.Error(0)
}

func (m *mockGit) Remotes(ctx context.Context, dir string) ([]string, error) {
	args := m.Called(ctx, dir)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockGit) AddRemote(ctx context.Context, dir, name, url string) error {
	args := m.Called(ctx, dir, name, url)
	return args.Error(0)
}

func (m *mockGit) Fetch(ctx context.Context, dir string) error {
	args := m.Called(ctx, dir)
	return args.Error(0)
}

func (m *mockGit) Checkout(ctx context.Context, dir, branch string) error {
	args := m.Called(ctx, dir, branch)
	return args.Error(0)
}

func (m *mockGit) Pull(ctx context.Context, dir, remote, branch string) error {
	args := m.Called(ctx, dir, remote, branch)
	return args.Error(0)
}
