// Package repository locates and synchronises the git repository that holds
// a projectsetup configuration.
package repository

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	// DefaultRemote is the remote name used for the configuration repository
	DefaultRemote = "origin"
	// DefaultBranch is checked out when no branch is given
	DefaultBranch = "main"
	// CacheDir is the directory below the workspace root holding repositories
	CacheDir = "git"
)

// URLPattern accepts git, ssh, http(s) and scp-like git@host: URLs ending in .git
const URLPattern = `(?:git|ssh|https?|git@([-\w.]+)):(?://)?(.*?)(?:\.git)(/?|#[-\d\w._]+?)$`

var urlPattern = regexp.MustCompile(URLPattern)

// ErrInvalidURL is returned for repository URLs that do not match the accepted forms
var ErrInvalidURL = errors.New("invalid repository url")

// Ref is a parsed repository URL
type Ref struct {
	URL string
	// Host is only set for scp-like URLs (git@host:path). For other forms the
	// host is the first element of Path.
	Host string
	Path string
}

// ParseURL parses a repository URL such as git@github.com:team/config.git
// or https://github.com/team/config.git
func ParseURL(raw string) (*Ref, error) {
	raw = strings.TrimSpace(raw)
	m := urlPattern.FindStringSubmatch(raw)
	if m == nil {
		return nil, fmt.Errorf("%w: %q (expected e.g. git@github.com:team/config.git)", ErrInvalidURL, raw)
	}

	ref := &Ref{URL: raw, Host: m[1], Path: strings.Trim(m[2], "/")}
	if ref.Path == "" {
		return nil, fmt.Errorf("%w: %q has no repository path", ErrInvalidURL, raw)
	}
	for _, part := range strings.Split(ref.Path, "/") {
		if part == ".." {
			return nil, fmt.Errorf("%w: %q contains a parent path element", ErrInvalidURL, raw)
		}
	}
	return ref, nil
}

// ValidURL reports whether raw is an accepted repository URL
func ValidURL(raw string) bool {
	_, err := ParseURL(raw)
	return err == nil
}

// CachePath returns the directory the repository is synchronised into,
// <root>/git/<host>/<path>, where root is the workspace root
func CachePath(root string, ref *Ref) string {
	parts := []string{root, CacheDir}
	if ref.Host != "" {
		parts = append(parts, ref.Host)
	}
	parts = append(parts, filepath.FromSlash(ref.Path))
	return filepath.Join(parts...)
}
