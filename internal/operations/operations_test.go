package operations

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ujohnny/dkr/internal/config"
	"github.com/ujohnny/dkr/internal/container"
	"github.com/ujohnny/dkr/internal/errors"
	"github.com/ujohnny/dkr/internal/git"
	"github.com/ujohnny/dkr/internal/image"
)

// scriptedDocker answers docker invocations with canned outputs in order
// and records every argument vector.
type scriptedDocker struct {
	outputs []string
	calls   [][]string
	idx     int
}

func (s *scriptedDocker) CommandContext(ctx context.Context, name string, args ...string) *exec.Cmd {
	s.calls = append(s.calls, append([]string{name}, args...))
	out := ""
	if s.idx < len(s.outputs) {
		out = s.outputs[s.idx]
	}
	s.idx++
	return exec.Command("printf", "%s", out)
}

// call returns the argv of the nth docker invocation joined with spaces.
func (s *scriptedDocker) call(n int) string {
	return strings.Join(s.calls[n], " ")
}

type fakePrompter struct {
	answer bool
	asked  []string
}

func (p *fakePrompter) Confirm(question string) bool {
	p.asked = append(p.asked, question)
	return p.answer
}

func initRepo(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	repo, err := gogit.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("hello"), 0644))
	_, err = wt.Add("README")
	require.NoError(t, err)
	hash, err := wt.Commit("initial", &gogit.CommitOptions{
		Author: &object.Signature{Name: "tester", Email: "tester@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	return dir, hash.String()
}

func testGlobal(t *testing.T) *config.GlobalConfig {
	t.Helper()
	key := filepath.Join(t.TempDir(), "id_rsa")
	require.NoError(t, os.WriteFile(key, []byte("key"), 0600))
	return &config.GlobalConfig{
		Build: config.BuildSettings{SSHKey: key, HostAddr: "::1"},
		Start: config.StartSettings{Agent: "claude", StalenessThreshold: 50},
	}
}

func newOps(t *testing.T, docker *scriptedDocker, prompter Prompter) *Operations {
	t.Helper()
	runtime := container.NewDockerRuntime(docker)
	ops := New(testGlobal(t), git.New(nil), runtime, image.NewIndex(runtime), nil, prompter)
	ops.claudeVersion = func(context.Context) string { return "9.9.9" }
	return ops
}

func inspectJSON(t *testing.T, id string, tags []string, labels map[string]string) string {
	t.Helper()
	raw := []map[string]interface{}{
		{"Id": id, "RepoTags": tags, "Config": map[string]interface{}{"Labels": labels}},
	}
	data, err := json.Marshal(raw)
	require.NoError(t, err)
	return string(data)
}

func TestCreateImage(t *testing.T) {
	dir, commit := initRepo(t)
	docker := &scriptedDocker{outputs: []string{""}} // build
	ops := newOps(t, docker, nil)

	result, err := ops.CreateImage(context.Background(), BuildRequest{RepoPath: dir})
	require.NoError(t, err)

	assert.Equal(t, image.KindBase, result.Kind)
	assert.Equal(t, "master", result.Branch)
	assert.Equal(t, commit, result.Commit)
	assert.Contains(t, result.Tag, "dkr:")

	require.Len(t, docker.calls, 1)
	argv := docker.call(0)
	assert.Contains(t, argv, "docker build")
	assert.Contains(t, argv, "--build-arg BRANCH=master")
	assert.Contains(t, argv, "--build-arg CLAUDE_VERSION=9.9.9")
	assert.Contains(t, argv, "--label dkr.branch=master")
	assert.Contains(t, argv, "--label dkr.commit="+commit)
	assert.Contains(t, argv, "--tag "+result.Tag)

	// Staged support files are cleaned up after the build.
	for _, name := range []string{".dkr-Dockerfile", ".dkr-install-packages.sh", ".dkr-entrypoint"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.True(t, os.IsNotExist(err), "%s should be removed", name)
	}
}

func TestCreateImage_MissingSSHKey(t *testing.T) {
	dir, _ := initRepo(t)
	docker := &scriptedDocker{}
	ops := newOps(t, docker, nil)
	ops.global.Build.SSHKey = "/nonexistent/id_rsa"

	_, err := ops.CreateImage(context.Background(), BuildRequest{RepoPath: dir})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidPath))
	assert.Empty(t, docker.calls)
}

func TestCreateImage_NotARepository(t *testing.T) {
	ops := newOps(t, &scriptedDocker{}, nil)

	_, err := ops.CreateImage(context.Background(), BuildRequest{RepoPath: t.TempDir()})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrGitRepoNotFound))
}

func TestUpdateImage_NoBaseImage(t *testing.T) {
	dir, _ := initRepo(t)
	docker := &scriptedDocker{outputs: []string{""}} // empty images listing
	ops := newOps(t, docker, nil)

	_, err := ops.UpdateImage(context.Background(), BuildRequest{RepoPath: dir})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrNoMatchingImage))
}

func TestUpdateImage_NoBaseImageRestoresCheckout(t *testing.T) {
	dir, commit := initRepo(t)

	// A second branch at the same commit, without moving HEAD off master.
	repo, err := gogit.PlainOpen(dir)
	require.NoError(t, err)
	require.NoError(t, repo.Storer.SetReference(
		plumbing.NewHashReference(plumbing.NewBranchReferenceName("feature"), plumbing.NewHash(commit))))

	docker := &scriptedDocker{outputs: []string{""}} // empty images listing
	ops := newOps(t, docker, nil)

	_, err = ops.UpdateImage(context.Background(), BuildRequest{RepoPath: dir, BranchFrom: "feature"})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrNoMatchingImage))

	// The build checked out feature to read its config; failing before the
	// build must still put the original checkout back.
	head, err := git.New(nil).ResolveHead(dir)
	require.NoError(t, err)
	assert.Equal(t, "master", head)
}

func TestUpdateImage(t *testing.T) {
	dir, commit := initRepo(t)
	tag := image.Tag(dir, "master")
	labels := image.Labels(dir, "master", "", commit, image.KindBase, time.Now())

	docker := &scriptedDocker{outputs: []string{
		"sha256:base\n", // images listing
		inspectJSON(t, "sha256:base", []string{tag}, labels),
		"", // build
	}}
	ops := newOps(t, docker, nil)

	result, err := ops.UpdateImage(context.Background(), BuildRequest{RepoPath: dir})
	require.NoError(t, err)
	assert.Equal(t, image.KindUpdate, result.Kind)

	require.Len(t, docker.calls, 3)
	argv := docker.call(2)
	assert.Contains(t, argv, "--build-arg BASE_IMAGE="+tag)
	assert.Contains(t, argv, "--label dkr.type=update")
}

func TestStartContainer(t *testing.T) {
	dir, commit := initRepo(t)
	tag := image.Tag(dir, "master")
	labels := image.Labels(dir, "master", "", commit, image.KindBase, time.Now())

	docker := &scriptedDocker{outputs: []string{
		"sha256:base\n",
		inspectJSON(t, "sha256:base", []string{tag}, labels),
		"", // run
	}}
	prompter := &fakePrompter{}
	ops := newOps(t, docker, prompter)

	err := ops.StartContainer(context.Background(), StartRequest{RepoPath: dir, Name: "quick-otter"})
	require.NoError(t, err)

	// The image is current, so no staleness question was asked.
	assert.Empty(t, prompter.asked)

	require.Len(t, docker.calls, 3)
	argv := docker.call(2)
	assert.Contains(t, argv, "docker run --rm")
	assert.Contains(t, argv, "--hostname quick-otter")
	assert.Contains(t, argv, "-e DKR_WORK_BRANCH=quick-otter")
	assert.Contains(t, argv, "-e DKR_AGENT=claude")
	assert.Contains(t, argv, tag)
}

func TestStartContainer_NoImage(t *testing.T) {
	docker := &scriptedDocker{outputs: []string{""}}
	ops := newOps(t, docker, nil)

	err := ops.StartContainer(context.Background(), StartRequest{})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrNoMatchingImage))
}

func TestStartContainer_AmbiguousStalenessDeclined(t *testing.T) {
	dir, _ := initRepo(t)
	tag := image.Tag(dir, "master")
	// The recorded commit does not exist in the repository, as after a
	// force-discard of the branch the image was built from.
	labels := image.Labels(dir, "master", "", "0123456789abcdef0123456789abcdef01234567", image.KindBase, time.Now())

	docker := &scriptedDocker{outputs: []string{
		"sha256:base\n",
		inspectJSON(t, "sha256:base", []string{tag}, labels),
	}}
	prompter := &fakePrompter{answer: false}
	ops := newOps(t, docker, prompter)

	err := ops.StartContainer(context.Background(), StartRequest{RepoPath: dir})
	require.NoError(t, err)

	require.Len(t, prompter.asked, 1)
	assert.Contains(t, prompter.asked[0], "Start anyway?")
	// Declined: no docker run happened.
	assert.Len(t, docker.calls, 2)
}

func TestListImages(t *testing.T) {
	dir, commit := initRepo(t)
	tag := image.Tag(dir, "master")
	labels := image.Labels(dir, "master", "", commit, image.KindBase, time.Now())

	docker := &scriptedDocker{outputs: []string{
		"sha256:base\n",
		inspectJSON(t, "sha256:base", []string{tag}, labels),
	}}
	ops := newOps(t, docker, nil)

	records, err := ops.ListImages(context.Background(), dir, "")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, tag, records[0].Tags[0])
}

func TestHistory_NilLedger(t *testing.T) {
	ops := newOps(t, &scriptedDocker{}, nil)

	builds, err := ops.History(context.Background(), "", "")
	require.NoError(t, err)
	assert.Nil(t, builds)
}
