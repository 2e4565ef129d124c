// Package git handles version-control operations against the origin-host
// repository. Read-only resolution goes through go-git; operations that
// touch the transport or the working tree (fetch, checkout) shell out to
// the git CLI, which is also what runs inside build layers.
package git

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/ujohnny/dkr/internal/errors"
)

// CommandExecutor interface for executing commands (allows mocking in tests)
type CommandExecutor interface {
	CommandContext(ctx context.Context, name string, args ...string) *exec.Cmd
}

type defaultExecutor struct{}

func (defaultExecutor) CommandContext(ctx context.Context, name string, args ...string) *exec.Cmd {
	return exec.CommandContext(ctx, name, args...)
}

// Manager handles git operations on local repositories.
type Manager struct {
	executor CommandExecutor
}

// New creates a new git manager.
func New(executor CommandExecutor) *Manager {
	if executor == nil {
		executor = defaultExecutor{}
	}
	return &Manager{executor: executor}
}

// IsRepository reports whether path is a git repository.
func (m *Manager) IsRepository(path string) bool {
	_, err := gogit.PlainOpen(path)
	return err == nil
}

// ResolveRepo validates arg (or the working directory when empty) as a git
// repository and returns its absolute, canonical path.
func (m *Manager) ResolveRepo(arg string) (string, error) {
	path := arg
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		path = wd
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", errors.Wrap(errors.ErrInvalidPath, "failed to resolve path", err)
	}
	if !m.IsRepository(absPath) {
		return "", errors.NewWithDetails(errors.ErrGitRepoNotFound,
			"not a git repository", absPath)
	}
	return absPath, nil
}

// ResolveHead resolves HEAD to the current branch name, or the commit SHA
// when detached.
func (m *Manager) ResolveHead(repoPath string) (string, error) {
	repo, err := gogit.PlainOpen(repoPath)
	if err != nil {
		return "", errors.Wrap(errors.ErrGitRepoNotFound, "failed to open repository", err)
	}
	head, err := repo.Head()
	if err != nil {
		return "", errors.Wrap(errors.ErrVcsOperation, "failed to resolve HEAD", err)
	}
	if head.Name().IsBranch() {
		return head.Name().Short(), nil
	}
	return head.Hash().String(), nil
}

// ResolveCommit resolves a ref string to a full commit SHA.
func (m *Manager) ResolveCommit(repoPath, ref string) (string, error) {
	repo, err := gogit.PlainOpen(repoPath)
	if err != nil {
		return "", errors.Wrap(errors.ErrGitRepoNotFound, "failed to open repository", err)
	}
	hash, err := repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return "", errors.WrapWithDetails(errors.ErrVcsOperation,
			"failed to resolve ref", ref, err)
	}
	return hash.String(), nil
}

// Remotes returns the names of the repository's configured remotes.
func (m *Manager) Remotes(repoPath string) ([]string, error) {
	repo, err := gogit.PlainOpen(repoPath)
	if err != nil {
		return nil, errors.Wrap(errors.ErrGitRepoNotFound, "failed to open repository", err)
	}
	remotes, err := repo.Remotes()
	if err != nil {
		return nil, errors.Wrap(errors.ErrVcsOperation, "failed to list remotes", err)
	}
	names := make([]string, 0, len(remotes))
	for _, r := range remotes {
		names = append(names, r.Config().Name)
	}
	return names, nil
}

// ParseBranchRef splits a user-supplied ref into (remote, branch). A ref
// like origin/main splits only when the prefix names an actual remote;
// otherwise the whole string is a local branch name, which may itself
// contain separators (user/feature-branch).
func (m *Manager) ParseBranchRef(repoPath, ref string) (remote, branch string) {
	if ref == "" || ref == "HEAD" {
		return "", "HEAD"
	}
	if strings.Contains(ref, "/") && repoPath != "" {
		candidate, rest, _ := strings.Cut(ref, "/")
		remotes, err := m.Remotes(repoPath)
		if err == nil {
			for _, name := range remotes {
				if name == candidate {
					return candidate, rest
				}
			}
		}
	}
	return "", ref
}

// FetchBranch fetches a single branch from a remote.
func (m *Manager) FetchBranch(ctx context.Context, repoPath, remote, branch string) error {
	return m.run(ctx, repoPath, "fetch", remote, branch)
}

// Checkout checks out the given ref in the repository working tree.
func (m *Manager) Checkout(ctx context.Context, repoPath, ref string) error {
	return m.run(ctx, repoPath, "checkout", ref)
}

// run executes a git command in repoPath, surfacing failures with the
// tool's diagnostic output preserved.
func (m *Manager) run(ctx context.Context, repoPath string, args ...string) error {
	cmdArgs := append([]string{"-C", repoPath}, args...)
	cmd := m.executor.CommandContext(ctx, "git", cmdArgs...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return errors.WrapWithDetails(errors.ErrVcsOperation,
			fmt.Sprintf("git %s failed", args[0]),
			strings.TrimSpace(string(output)), err)
	}
	return nil
}
