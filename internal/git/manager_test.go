package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ujohnny/dkr/internal/errors"
)

// MockCommandExecutor for testing
type MockCommandExecutor struct {
	calls [][]string
	fail  bool
}

func (m *MockCommandExecutor) CommandContext(ctx context.Context, name string, args ...string) *exec.Cmd {
	m.calls = append(m.calls, append([]string{name}, args...))
	if m.fail {
		return exec.Command("sh", "-c", "echo 'fatal: remote unreachable' >&2; exit 1")
	}
	return exec.Command("true")
}

func initRepo(t *testing.T, remotes ...string) string {
	t.Helper()
	dir := t.TempDir()
	repo, err := gogit.PlainInit(dir, false)
	require.NoError(t, err)

	wt, err := repo.Worktree()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("hello"), 0644))
	_, err = wt.Add("README")
	require.NoError(t, err)
	_, err = wt.Commit("initial", &gogit.CommitOptions{
		Author: &object.Signature{Name: "tester", Email: "tester@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	for _, name := range remotes {
		_, err := repo.CreateRemote(&gitconfig.RemoteConfig{
			Name: name,
			URLs: []string{"ssh://example.com/" + name + ".git"},
		})
		require.NoError(t, err)
	}
	return dir
}

func TestIsRepository(t *testing.T) {
	m := New(nil)

	assert.True(t, m.IsRepository(initRepo(t)))
	assert.False(t, m.IsRepository(t.TempDir()))
}

func TestResolveRepo(t *testing.T) {
	m := New(nil)
	dir := initRepo(t)

	resolved, err := m.ResolveRepo(dir)
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(resolved))

	_, err = m.ResolveRepo(t.TempDir())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrGitRepoNotFound))
}

func TestResolveHead(t *testing.T) {
	m := New(nil)
	dir := initRepo(t)

	branch, err := m.ResolveHead(dir)
	require.NoError(t, err)
	assert.Equal(t, "master", branch)
}

func TestResolveCommit(t *testing.T) {
	m := New(nil)
	dir := initRepo(t)

	sha, err := m.ResolveCommit(dir, "HEAD")
	require.NoError(t, err)
	assert.Len(t, sha, 40)

	_, err = m.ResolveCommit(dir, "no-such-ref")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrVcsOperation))
}

func TestRemotes(t *testing.T) {
	m := New(nil)
	dir := initRepo(t, "origin", "upstream")

	remotes, err := m.Remotes(dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"origin", "upstream"}, remotes)
}

func TestParseBranchRef(t *testing.T) {
	m := New(nil)
	dir := initRepo(t, "origin")

	tests := []struct {
		name           string
		ref            string
		expectedRemote string
		expectedBranch string
	}{
		{"empty means HEAD", "", "", "HEAD"},
		{"explicit HEAD", "HEAD", "", "HEAD"},
		{"local branch", "main", "", "main"},
		{"known remote splits", "origin/main", "origin", "main"},
		{"unknown prefix stays local", "user/feature-branch", "", "user/feature-branch"},
		{"only first separator splits", "origin/feature/login", "origin", "feature/login"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remote, branch := m.ParseBranchRef(dir, tt.ref)
			assert.Equal(t, tt.expectedRemote, remote)
			assert.Equal(t, tt.expectedBranch, branch)
		})
	}
}

func TestFetchBranch_Invocation(t *testing.T) {
	mock := &MockCommandExecutor{}
	m := New(mock)

	require.NoError(t, m.FetchBranch(context.Background(), "/repo", "origin", "main"))
	require.Len(t, mock.calls, 1)
	assert.Equal(t, []string{"git", "-C", "/repo", "fetch", "origin", "main"}, mock.calls[0])
}

func TestCheckout_FailureKeepsOutput(t *testing.T) {
	mock := &MockCommandExecutor{fail: true}
	m := New(mock)

	err := m.Checkout(context.Background(), "/repo", "main")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrVcsOperation))

	var opErr *errors.Error
	require.ErrorAs(t, err, &opErr)
	assert.Contains(t, opErr.Details, "remote unreachable")
}
