// Package gitinfo resolves a project directory to a git repository
// identifier ("owner/repo" where a remote exists, the folder name
// otherwise). Lookups shell out to git with a short timeout and are
// memoized; failures resolve to the empty string and never propagate.
package gitinfo

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const gitTimeout = 2 * time.Second

// Resolver caches repo lookups per project path.
type Resolver struct {
	mu    sync.Mutex
	cache map[string]string
}

func NewResolver() *Resolver {
	return &Resolver{cache: make(map[string]string)}
}

// RepoName returns the repository identifier for a project path, or
// "" when the path is missing or not a git repository.
func (r *Resolver) RepoName(projectPath string) string {
	if projectPath == "" {
		return ""
	}

	r.mu.Lock()
	if name, ok := r.cache[projectPath]; ok {
		r.mu.Unlock()
		return name
	}
	r.mu.Unlock()

	name := lookupRepoName(projectPath)

	r.mu.Lock()
	r.cache[projectPath] = name
	r.mu.Unlock()
	return name
}

func lookupRepoName(projectPath string) string {
	if _, err := os.Stat(projectPath); err != nil {
		return ""
	}

	if url := runGit(projectPath, "config", "--get", "remote.origin.url"); url != "" {
		return parseRemoteURL(url)
	}

	// No remote; fall back to the folder name if it is a repo at all.
	if runGit(projectPath, "rev-parse", "--is-inside-work-tree") == "true" {
		return filepath.Base(projectPath)
	}
	return ""
}

// parseRemoteURL extracts "owner/repo" from https and scp-style ssh
// remote URLs.
func parseRemoteURL(url string) string {
	url = strings.TrimSuffix(url, ".git")
	// scp-style git@host:owner/repo
	if i := strings.Index(url, "@"); i >= 0 {
		url = strings.Replace(url[i+1:], ":", "/", 1)
	}
	parts := strings.Split(url, "/")
	if len(parts) >= 2 {
		return parts[len(parts)-2] + "/" + parts[len(parts)-1]
	}
	return parts[len(parts)-1]
}

func runGit(dir string, args ...string) string {
	ctx, cancel := context.WithTimeout(context.Background(), gitTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", dir}, args...)...)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return ""
	}
	return strings.TrimSpace(out.String())
}
