package operations

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/ujohnny/dkr/internal/config"
	"github.com/ujohnny/dkr/internal/container"
	"github.com/ujohnny/dkr/internal/db"
	"github.com/ujohnny/dkr/internal/errors"
	"github.com/ujohnny/dkr/internal/image"
	"github.com/ujohnny/dkr/internal/logger"
	"github.com/ujohnny/dkr/internal/plan"
)

// BuildRequest parameterizes create-image and update-image.
type BuildRequest struct {
	// RepoPath is the local repository; empty means the working directory.
	RepoPath string
	// BranchFrom is the branch or ref to build from; empty means HEAD.
	BranchFrom string
	// SSHKey overrides the configured SSH private key path.
	SSHKey string
}

// BuildResult reports what a build produced.
type BuildResult struct {
	Tag    string
	Commit string
	Branch string
	Kind   image.Kind
}

// CreateImage builds a fresh image for a repo+branch: full clone, packages,
// pre- and post-clone directives.
func (o *Operations) CreateImage(ctx context.Context, req BuildRequest) (*BuildResult, error) {
	prep, err := o.prepareBuild(ctx, req)
	if err != nil {
		return nil, err
	}

	p := plan.Generate(prep.conf, plan.ModeCreate)

	agentVersion := o.claudeVersion(ctx)

	logger.WithFields(logger.Fields{
		"repo":   prep.repoPath,
		"branch": prep.branchFrom,
		"commit": shortCommit(prep.commit),
		"claude": agentVersion,
	}).Infof("building image %s", prep.tag)

	labels := image.Labels(prep.repoPath, prep.checkoutBranch, prep.branchFrom, prep.commit, image.KindBase, time.Now())
	extra := map[string]string{"CLAUDE_VERSION": agentVersion}
	if err := o.executeBuild(ctx, prep, p, labels, extra); err != nil {
		return nil, err
	}

	o.recordBuild(ctx, prep, image.KindBase)
	return &BuildResult{Tag: prep.tag, Commit: prep.commit, Branch: prep.checkoutBranch, Kind: image.KindBase}, nil
}

// UpdateImage layers a fetch+rebase onto the latest existing image for the
// repo+branch. Packages and pre-clone customization are inherited from the
// base layer, which is what keeps updates thin.
func (o *Operations) UpdateImage(ctx context.Context, req BuildRequest) (*BuildResult, error) {
	prep, err := o.prepareBuild(ctx, req)
	if err != nil {
		return nil, err
	}

	base, err := o.index.Latest(ctx, prep.repoPath, prep.checkoutBranch)
	if err != nil {
		o.restoreCheckout(ctx, prep)
		return nil, err
	}
	if base == nil {
		o.restoreCheckout(ctx, prep)
		return nil, errors.NewWithDetails(errors.ErrNoMatchingImage,
			fmt.Sprintf("no existing image for %s/%s", filepath.Base(prep.repoPath), prep.checkoutBranch),
			"run create-image first")
	}

	p := plan.Generate(prep.conf, plan.ModeUpdate)

	logger.WithFields(logger.Fields{
		"base":   base.Ref(),
		"branch": prep.branchFrom,
		"commit": shortCommit(prep.commit),
	}).Infof("updating image %s", prep.tag)

	labels := image.Labels(prep.repoPath, prep.checkoutBranch, prep.branchFrom, prep.commit, image.KindUpdate, time.Now())
	extra := map[string]string{"BASE_IMAGE": base.Ref()}
	if err := o.executeBuild(ctx, prep, p, labels, extra); err != nil {
		return nil, err
	}

	o.recordBuild(ctx, prep, image.KindUpdate)
	return &BuildResult{Tag: prep.tag, Commit: prep.commit, Branch: prep.checkoutBranch, Kind: image.KindUpdate}, nil
}

// preparedBuild is the resolved state shared by both build modes.
type preparedBuild struct {
	repoPath       string
	branchFrom     string
	checkoutBranch string
	commit         string
	tag            string
	sshKey         string
	conf           *config.BuildConfig
	restoreRef     string // non-empty when the original checkout must come back
}

// prepareBuild resolves the repository and ref, fetches remote-qualified
// refs, checks out the target branch so .dkr.conf reflects its tip, and
// loads the config. All of this happens before any side effect on the
// image store. When restoreRef is set the caller owns restoring it on
// every exit path; executeBuild covers the build itself.
func (o *Operations) prepareBuild(ctx context.Context, req BuildRequest) (*preparedBuild, error) {
	sshKey, err := o.resolveSSHKey(req.SSHKey)
	if err != nil {
		return nil, err
	}

	repoPath, err := o.git.ResolveRepo(req.RepoPath)
	if err != nil {
		return nil, err
	}

	branchFrom := req.BranchFrom
	if branchFrom == "" {
		branchFrom, err = o.git.ResolveHead(repoPath)
		if err != nil {
			return nil, err
		}
	}

	remote, branch := o.git.ParseBranchRef(repoPath, branchFrom)
	if remote != "" {
		logger.Infof("fetching %s from %s", branch, remote)
		if err := o.git.FetchBranch(ctx, repoPath, remote, branch); err != nil {
			return nil, err
		}
	}

	commit, err := o.git.ResolveCommit(repoPath, branchFrom)
	if err != nil {
		return nil, err
	}

	checkoutBranch := branchFrom
	if remote != "" {
		checkoutBranch = branch
	}

	prep := &preparedBuild{
		repoPath:       repoPath,
		branchFrom:     branchFrom,
		checkoutBranch: checkoutBranch,
		commit:         commit,
		tag:            image.Tag(repoPath, checkoutBranch),
		sshKey:         sshKey,
	}

	originalRef, err := o.git.ResolveHead(repoPath)
	if err != nil {
		return nil, err
	}
	if checkoutBranch != "HEAD" && checkoutBranch != originalRef {
		if err := o.git.Checkout(ctx, repoPath, checkoutBranch); err != nil {
			return nil, err
		}
		prep.restoreRef = originalRef
	}

	conf, err := config.LoadBuildConfig(repoPath)
	if err != nil {
		o.restoreCheckout(ctx, prep)
		return nil, err
	}
	prep.conf = conf

	return prep, nil
}

// executeBuild stages support files into the build context, runs the
// driver, and cleans up. No image record exists for a failed build: the
// driver never tags on failure and the ledger is only written on success.
func (o *Operations) executeBuild(ctx context.Context, prep *preparedBuild, p *plan.Plan, labels, extraArgs map[string]string) error {
	defer o.restoreCheckout(ctx, prep)

	staged, err := stageContext(prep.repoPath, p)
	if err != nil {
		return err
	}
	defer staged.cleanup()

	username := "root"
	if u, err := user.Current(); err == nil && u.Username != "" {
		username = u.Username
	}

	buildArgs := map[string]string{
		"REPO_PATH": prep.repoPath,
		"BRANCH":    prep.checkoutBranch,
		"GIT_USER":  username,
		"HOST_ADDR": o.global.Build.HostAddr,
	}
	for k, v := range extraArgs {
		buildArgs[k] = v
	}

	err = o.runtime.Build(ctx, &container.BuildRequest{
		ContextDir: prep.repoPath,
		Dockerfile: filepath.Join(prep.repoPath, plan.DockerfileName),
		Tag:        prep.tag,
		SSHKey:     prep.sshKey,
		BuildArgs:  buildArgs,
		Labels:     labels,
	})
	if err != nil {
		return errors.Wrap(errors.ErrBuildFailed, "image build failed", err)
	}
	return nil
}

func (o *Operations) restoreCheckout(ctx context.Context, prep *preparedBuild) {
	if prep.restoreRef == "" {
		return
	}
	if err := o.git.Checkout(ctx, prep.repoPath, prep.restoreRef); err != nil {
		logger.WithError(err).Warnf("could not restore checkout of %s", prep.restoreRef)
	}
	prep.restoreRef = ""
}

func (o *Operations) recordBuild(ctx context.Context, prep *preparedBuild, kind image.Kind) {
	if o.builds == nil {
		return
	}
	err := o.builds.Record(ctx, &db.Build{
		RepoPath:   prep.repoPath,
		RepoName:   filepath.Base(prep.repoPath),
		Branch:     prep.checkoutBranch,
		BranchFrom: prep.branchFrom,
		CommitSHA:  prep.commit,
		ImageTag:   prep.tag,
		Kind:       string(kind),
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		logger.WithError(err).Warn("could not record build in history ledger")
	}
}

// resolveSSHKey picks the key path (flag over global config), expands the
// home prefix and verifies the file exists before the build starts.
func (o *Operations) resolveSSHKey(override string) (string, error) {
	key := override
	if key == "" {
		key = o.global.Build.SSHKey
	}
	if strings.HasPrefix(key, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		key = filepath.Join(home, key[2:])
	}
	if _, err := os.Stat(key); err != nil {
		return "", errors.NewWithDetails(errors.ErrInvalidPath, "SSH key not found", key)
	}
	return key, nil
}

// stagedContext tracks the support files written into the repository root
// for the duration of one build.
type stagedContext struct {
	files []string
}

func (s *stagedContext) cleanup() {
	for _, f := range s.files {
		os.Remove(f)
	}
}

// stageContext writes the rendered Dockerfile, the package-install helper
// and the dkr binary itself (the image's entrypoint) into the repository
// root. The binary copy means the host and image must share an
// architecture and OS; build-config base images are assumed linux.
func stageContext(repoPath string, p *plan.Plan) (*stagedContext, error) {
	staged := &stagedContext{}

	write := func(name string, data []byte, mode os.FileMode) error {
		path := filepath.Join(repoPath, name)
		if err := os.WriteFile(path, data, mode); err != nil {
			return fmt.Errorf("failed to stage %s: %w", name, err)
		}
		staged.files = append(staged.files, path)
		return nil
	}

	if err := write(plan.DockerfileName, []byte(p.Dockerfile()), 0644); err != nil {
		staged.cleanup()
		return nil, err
	}

	if p.Mode == plan.ModeCreate {
		if err := write(plan.InstallScriptName, plan.InstallScript(), 0755); err != nil {
			staged.cleanup()
			return nil, err
		}
		self, err := os.Executable()
		if err != nil {
			staged.cleanup()
			return nil, fmt.Errorf("failed to locate dkr binary: %w", err)
		}
		data, err := readFileAll(self)
		if err != nil {
			staged.cleanup()
			return nil, fmt.Errorf("failed to read dkr binary: %w", err)
		}
		if err := write(plan.EntrypointName, data, 0755); err != nil {
			staged.cleanup()
			return nil, err
		}
	}

	return staged, nil
}

func readFileAll(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func shortCommit(commit string) string {
	if len(commit) > 12 {
		return commit[:12]
	}
	return commit
}

const claudeReleasesBucket = "https://storage.googleapis.com/claude-code-dist-86c565f3-f756-42ad-8dfa-d59b1c096819/claude-code-releases"

// latestClaudeVersion asks the release bucket for the current agent
// version, which keys the install layer's cache. Any failure falls back to
// "latest" and the build proceeds.
func latestClaudeVersion(ctx context.Context) string {
	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, claudeReleasesBucket+"/latest", nil)
	if err != nil {
		return "latest"
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		logger.WithError(err).Debug("could not resolve latest agent version")
		return "latest"
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "latest"
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 128))
	if err != nil {
		return "latest"
	}
	version := strings.TrimSpace(string(data))
	if version == "" {
		return "latest"
	}
	return version
}
