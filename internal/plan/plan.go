// Package plan turns a BuildConfig into the ordered build steps handed to
// the container build driver. Generation is separate from execution so the
// create and update modes share one config-to-steps mapping while the
// expensive clone path stays absent from the incremental path.
package plan

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/ujohnny/dkr/internal/config"
)

//go:embed scripts/install-packages.sh
var installScript []byte

// InstallScript is the package-installation helper copied into the build
// context for create builds.
func InstallScript() []byte { return installScript }

// Mode selects which plan Generate produces.
type Mode string

const (
	// ModeCreate builds a fresh image: base image, packages, clone.
	ModeCreate Mode = "create"
	// ModeUpdate layers fetch+rebase onto an existing image.
	ModeUpdate Mode = "update"
)

// Names of the support files staged into the build context. They live in
// the repository root for the duration of the build and are removed after.
const (
	DockerfileName    = ".dkr-Dockerfile"
	InstallScriptName = ".dkr-install-packages.sh"
	EntrypointName    = ".dkr-entrypoint"
)

// HostRemote is the name given to the origin-host link inside the image.
// It is deliberately not "origin" so the user's own upstream remote never
// collides with it.
const HostRemote = "host"

// Workspace is where the repository is cloned inside the image.
const Workspace = "/workspace"

// StepKind classifies a build step.
type StepKind string

const (
	StepBaseImage    StepKind = "base-image"
	StepPackages     StepKind = "packages"
	StepAgentInstall StepKind = "agent-install"
	StepSSHSetup     StepKind = "ssh-setup"
	StepPreClone     StepKind = "pre-clone"
	StepClone        StepKind = "clone"
	StepRemoteRename StepKind = "remote-rename"
	StepCheckout     StepKind = "checkout"
	StepEnv          StepKind = "env"
	StepPostClone    StepKind = "post-clone"
	StepFetchRebase  StepKind = "fetch-rebase"
	StepEntrypoint   StepKind = "entrypoint"
)

// Step is one build step: a kind plus the Dockerfile lines that realize it.
// Pre- and post-clone steps carry raw, unvalidated user lines.
type Step struct {
	Kind  StepKind
	Lines []string
}

// Plan is the ordered sequence of build steps for one build invocation.
type Plan struct {
	Mode  Mode
	Steps []Step
}

// Generate produces the build plan for the given config and mode.
func Generate(cfg *config.BuildConfig, mode Mode) *Plan {
	switch mode {
	case ModeUpdate:
		return generateUpdate(cfg)
	default:
		return generateCreate(cfg)
	}
}

func generateCreate(cfg *config.BuildConfig) *Plan {
	p := &Plan{Mode: ModeCreate}

	p.add(StepBaseImage,
		fmt.Sprintf("FROM %s", cfg.BaseImage),
		"",
		"ENV LANG=C.UTF-8",
	)

	p.add(StepPackages,
		fmt.Sprintf("COPY %s /tmp/install-packages.sh", InstallScriptName),
		"RUN chmod +x /tmp/install-packages.sh && \\",
		fmt.Sprintf("    /tmp/install-packages.sh %s && \\", strings.Join(cfg.AllPackages(), " ")),
		"    rm /tmp/install-packages.sh",
	)

	// CLAUDE_VERSION only keys the layer cache: when the launcher passes a
	// newer version the install line re-runs and picks it up.
	p.add(StepAgentInstall,
		"ARG CLAUDE_VERSION=latest",
		"RUN curl -fsSL https://claude.ai/install.sh | bash",
		"ENV PATH=/root/.local/bin:$PATH",
	)

	p.add(StepSSHSetup,
		"ARG REPO_PATH",
		"ARG BRANCH",
		"ARG GIT_USER",
		"ARG HOST_ADDR=host.docker.internal",
		"",
		"RUN mkdir -p /root/.ssh && \\",
		"    ssh-keyscan -H ${HOST_ADDR} >> /root/.ssh/known_hosts 2>/dev/null || true",
	)

	if len(cfg.PreClone) > 0 {
		p.add(StepPreClone, cfg.PreClone...)
	}

	p.add(StepClone,
		"RUN --mount=type=ssh \\",
		fmt.Sprintf("    git clone ${GIT_USER}@${HOST_ADDR}:${REPO_PATH} %s", Workspace),
	)

	p.add(StepRemoteRename,
		fmt.Sprintf("RUN cd %s && git remote rename origin %s", Workspace, HostRemote),
	)

	p.add(StepCheckout,
		fmt.Sprintf("RUN cd %s && git checkout ${BRANCH}", Workspace),
	)

	p.add(StepEnv,
		"ENV DKR_SOURCE_BRANCH=${BRANCH}",
	)

	if len(cfg.PostClone) > 0 {
		p.add(StepPostClone, cfg.PostClone...)
	}

	p.add(StepEntrypoint,
		fmt.Sprintf("COPY %s /usr/local/bin/dkr", EntrypointName),
		"RUN chmod +x /usr/local/bin/dkr",
		"",
		fmt.Sprintf("WORKDIR %s", Workspace),
		`ENTRYPOINT ["/usr/local/bin/dkr", "bootstrap"]`,
	)

	return p
}

func generateUpdate(cfg *config.BuildConfig) *Plan {
	p := &Plan{Mode: ModeUpdate}

	// The base layer already carries packages, pre-clone customization and
	// the clone itself; only the fetch+rebase and post-clone lines run.
	p.add(StepBaseImage,
		"ARG BASE_IMAGE=scratch",
		"FROM ${BASE_IMAGE}",
	)

	p.add(StepFetchRebase,
		"ARG GIT_USER",
		"ARG REPO_PATH",
		"ARG BRANCH",
		"ARG HOST_ADDR=host.docker.internal",
		"",
		"RUN --mount=type=ssh \\",
		fmt.Sprintf("    cd %s && \\", Workspace),
		"    git fetch ${GIT_USER}@${HOST_ADDR}:${REPO_PATH} ${BRANCH} && \\",
		"    git rebase FETCH_HEAD",
	)

	p.add(StepEnv,
		"ENV DKR_SOURCE_BRANCH=${BRANCH}",
	)

	if len(cfg.PostClone) > 0 {
		p.add(StepPostClone, cfg.PostClone...)
	}

	return p
}

func (p *Plan) add(kind StepKind, lines ...string) {
	p.Steps = append(p.Steps, Step{Kind: kind, Lines: lines})
}

// Has reports whether the plan contains a step of the given kind.
func (p *Plan) Has(kind StepKind) bool {
	return p.Count(kind) > 0
}

// Count returns the number of steps of the given kind.
func (p *Plan) Count(kind StepKind) int {
	n := 0
	for _, s := range p.Steps {
		if s.Kind == kind {
			n++
		}
	}
	return n
}

// Dockerfile renders the plan into Dockerfile text for the build driver.
func (p *Plan) Dockerfile() string {
	var b strings.Builder
	b.WriteString("# syntax=docker/dockerfile:1\n")
	for _, s := range p.Steps {
		b.WriteString("\n")
		for _, line := range s.Lines {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	return b.String()
}
