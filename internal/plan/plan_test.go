package plan

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ujohnny/dkr/internal/config"
)

func TestGenerate_CreatePlan(t *testing.T) {
	cfg := &config.BuildConfig{
		BaseImage: "fedora:41",
		Packages:  []string{"vim"},
		PreClone:  []string{"RUN dnf install -y gcc"},
		PostClone: []string{"RUN go mod download"},
	}

	p := Generate(cfg, ModeCreate)

	assert.Equal(t, ModeCreate, p.Mode)
	assert.Equal(t, 1, p.Count(StepClone))
	assert.Equal(t, 1, p.Count(StepRemoteRename))
	assert.True(t, p.Has(StepPackages))
	assert.True(t, p.Has(StepAgentInstall))
	assert.True(t, p.Has(StepPreClone))
	assert.True(t, p.Has(StepPostClone))
	assert.True(t, p.Has(StepCheckout))
	assert.True(t, p.Has(StepEntrypoint))
	assert.False(t, p.Has(StepFetchRebase))
}

func TestGenerate_UpdatePlanOmitsProvisioning(t *testing.T) {
	cfg := &config.BuildConfig{
		BaseImage: "fedora:41",
		Packages:  []string{"vim"},
		PreClone:  []string{"RUN dnf install -y gcc"},
		PostClone: []string{"RUN go mod download"},
	}

	p := Generate(cfg, ModeUpdate)

	assert.Equal(t, ModeUpdate, p.Mode)
	// The update layers on top of an existing image: no clone, no package
	// installation, no pre-clone customization.
	assert.False(t, p.Has(StepClone))
	assert.False(t, p.Has(StepPackages))
	assert.False(t, p.Has(StepAgentInstall))
	assert.False(t, p.Has(StepPreClone))
	assert.True(t, p.Has(StepFetchRebase))
	assert.True(t, p.Has(StepPostClone))
}

func TestGenerate_SkipsEmptyUserSections(t *testing.T) {
	p := Generate(config.DefaultBuildConfig(), ModeCreate)
	assert.False(t, p.Has(StepPreClone))
	assert.False(t, p.Has(StepPostClone))
}

func TestDockerfile_CreateContent(t *testing.T) {
	cfg := &config.BuildConfig{
		BaseImage: "ubuntu:24.04",
		PreClone:  []string{"RUN apt-get install -y build-essential"},
	}

	text := Generate(cfg, ModeCreate).Dockerfile()

	assert.True(t, strings.HasPrefix(text, "# syntax=docker/dockerfile:1\n"))
	assert.Contains(t, text, "FROM ubuntu:24.04")
	assert.Contains(t, text, "RUN apt-get install -y build-essential")
	assert.Contains(t, text, "--mount=type=ssh")
	assert.Contains(t, text, "git clone ${GIT_USER}@${HOST_ADDR}:${REPO_PATH} "+Workspace)
	assert.Contains(t, text, "git remote rename origin "+HostRemote)
	assert.Contains(t, text, "git checkout ${BRANCH}")
	assert.Contains(t, text, "ENV DKR_SOURCE_BRANCH=${BRANCH}")
	assert.Contains(t, text, `ENTRYPOINT ["/usr/local/bin/dkr", "bootstrap"]`)
	// The default agent is installed into every create image so the tmux
	// session the bootstrap opens has something to run.
	assert.Contains(t, text, "ARG CLAUDE_VERSION=latest")
	assert.Contains(t, text, "curl -fsSL https://claude.ai/install.sh | bash")
	assert.Contains(t, text, "ENV PATH=/root/.local/bin:$PATH")
	assert.NotContains(t, text, "git rebase")
}

func TestDockerfile_UpdateContent(t *testing.T) {
	text := Generate(config.DefaultBuildConfig(), ModeUpdate).Dockerfile()

	assert.Contains(t, text, "ARG BASE_IMAGE=scratch")
	assert.Contains(t, text, "FROM ${BASE_IMAGE}")
	assert.Contains(t, text, "git rebase FETCH_HEAD")
	assert.NotContains(t, text, "git clone")
	assert.NotContains(t, text, "install-packages.sh")
	assert.NotContains(t, text, "install.sh")
	assert.NotContains(t, text, "ENTRYPOINT")
}

func TestDockerfile_RemoteRenameTargetIsNotOrigin(t *testing.T) {
	require.NotEqual(t, "origin", HostRemote)

	text := Generate(config.DefaultBuildConfig(), ModeCreate).Dockerfile()
	assert.Contains(t, text, "git remote rename origin "+HostRemote)
}

func TestDockerfile_PackagesIncludeBaseline(t *testing.T) {
	cfg := &config.BuildConfig{BaseImage: "fedora:41", Packages: []string{"jq"}}

	text := Generate(cfg, ModeCreate).Dockerfile()
	for _, pkg := range config.BaselinePackages {
		assert.Contains(t, text, pkg)
	}
	assert.Contains(t, text, "jq")
}

func TestInstallScriptEmbedded(t *testing.T) {
	script := string(InstallScript())
	require.NotEmpty(t, script)
	assert.True(t, strings.HasPrefix(script, "#!"))
}
