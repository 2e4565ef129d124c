// Package bootstrap implements the start-of-day protocol that runs once
// inside each container: fetch the source branch from the origin host,
// create an isolated work branch, and wire its pushes back to the host
// under the work branch's own name.
package bootstrap

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/ujohnny/dkr/internal/errors"
	"github.com/ujohnny/dkr/internal/logger"
	"github.com/ujohnny/dkr/internal/plan"
)

// Environment variables set by the launcher.
const (
	EnvSourceBranch = "DKR_SOURCE_BRANCH"
	EnvWorkBranch   = "DKR_WORK_BRANCH"
	EnvAgent        = "DKR_AGENT"
)

// DefaultSourceBranch is fetched when the image carries no branch env.
const DefaultSourceBranch = "main"

// AnthropicKeyPath is where the launcher mounts the API key file.
const AnthropicKeyPath = "/run/secrets/anthropic_key"

// markerFile guards the branching steps: it lives under .git so a container
// restart (same filesystem) skips them, while a freshly created container
// starts clean.
const markerFile = "dkr-bootstrapped"

// State of the bootstrap machine.
type State string

const (
	StateInit        State = "INIT"
	StateFetched     State = "FETCHED"
	StateFetchFailed State = "FETCH_FAILED"
	StateBranched    State = "BRANCHED"
	StateReady       State = "READY"
)

// Config is assembled once from the environment at entry so the rest of
// the protocol has no direct environment dependency.
type Config struct {
	// SourceBranch is the branch fetched from the origin host.
	SourceBranch string
	// WorkBranch is the requested work branch name; empty means generate.
	WorkBranch string
	// Agent runs in the first tmux window (claude, codex, opencode, none).
	Agent string
	// Command, when non-empty, replaces the interactive session entirely.
	Command []string
	// Workspace is the repository path inside the container.
	Workspace string
	// Remote is the name of the origin-host remote.
	Remote string
}

// ConfigFromEnv builds a Config from an environment lookup and the argv
// tail forwarded as the container's command.
func ConfigFromEnv(lookup func(string) (string, bool), args []string) Config {
	cfg := Config{
		SourceBranch: DefaultSourceBranch,
		Agent:        "claude",
		Command:      args,
		Workspace:    plan.Workspace,
		Remote:       plan.HostRemote,
	}
	if v, ok := lookup(EnvSourceBranch); ok && v != "" {
		cfg.SourceBranch = v
	}
	if v, ok := lookup(EnvWorkBranch); ok && v != "" {
		cfg.WorkBranch = v
	}
	if v, ok := lookup(EnvAgent); ok && v != "" {
		cfg.Agent = v
	}
	return cfg
}

// CommandExecutor interface for executing commands (allows mocking in tests)
type CommandExecutor interface {
	CommandContext(ctx context.Context, name string, args ...string) *exec.Cmd
}

type defaultExecutor struct{}

func (defaultExecutor) CommandContext(ctx context.Context, name string, args ...string) *exec.Cmd {
	return exec.CommandContext(ctx, name, args...)
}

// Outcome reports where the protocol ended up.
type Outcome struct {
	State State
	// WorkBranch is the branch the container works on; empty in the
	// degraded FETCH_FAILED path.
	WorkBranch string
}

// Protocol is the linear bootstrap state machine. It is not a supervisor:
// Run executes once per container lifetime, and the marker file makes a
// second invocation a clean no-op.
type Protocol struct {
	cfg      Config
	executor CommandExecutor
	rng      *rand.Rand
}

// New creates a Protocol. A nil executor uses the real one; a nil rng
// seeds from the clock.
func New(cfg Config, executor CommandExecutor, rng *rand.Rand) *Protocol {
	if executor == nil {
		executor = defaultExecutor{}
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Protocol{cfg: cfg, executor: executor, rng: rng}
}

// Run drives INIT through READY. The returned state is the last transition
// Run performed itself: BRANCHED after a full first pass (READY follows
// when the caller hands control to ReadyCommand), READY when an earlier
// run's marker makes this one a no-op. Fetch failure degrades instead of
// failing: the container stays usable against whatever the image carries.
func (p *Protocol) Run(ctx context.Context) (Outcome, error) {
	if branch, ok := p.alreadyBootstrapped(); ok {
		logger.WithField("work_branch", branch).Debug("already bootstrapped, skipping")
		return Outcome{State: StateReady, WorkBranch: branch}, nil
	}

	if err := p.git(ctx, "fetch", p.cfg.Remote, p.cfg.SourceBranch); err != nil {
		logger.WithError(err).Warnf(
			"could not fetch %s from %s; continuing with the code baked into the image",
			p.cfg.SourceBranch, p.cfg.Remote)
		return Outcome{State: StateFetchFailed}, nil
	}

	name := p.cfg.WorkBranch
	if name == "" {
		name = RandomName(p.rng)
	}

	if err := p.branch(ctx, name); err != nil {
		return Outcome{State: StateFetched}, err
	}

	if err := p.writeMarker(name); err != nil {
		logger.WithError(err).Warn("could not record bootstrap marker")
	}

	logger.WithFields(logger.Fields{
		"work_branch": name,
		"source":      p.cfg.Remote + "/" + p.cfg.SourceBranch,
	}).Info("work branch ready")

	return Outcome{State: StateBranched, WorkBranch: name}, nil
}

// branch creates the work branch at the fetched tip, tracks the source
// branch for pulls, and routes pushes to the work branch's own ref on the
// host. The push destination uses the name as given (flat refspec): the
// launcher controls namespacing through the name it supplies.
func (p *Protocol) branch(ctx context.Context, name string) error {
	if err := p.git(ctx, "checkout", "-b", name, "FETCH_HEAD"); err != nil {
		return err
	}
	if err := p.git(ctx, "branch",
		fmt.Sprintf("--set-upstream-to=%s/%s", p.cfg.Remote, p.cfg.SourceBranch), name); err != nil {
		// Tracking is a convenience; pushes still work without it.
		logger.WithError(err).Warnf("could not set upstream for %s", name)
	}
	refspec := fmt.Sprintf("refs/heads/%s:refs/heads/%s", name, name)
	return p.git(ctx, "config", "remote."+p.cfg.Remote+".push", refspec)
}

// ReadyCommand returns the argv handed control at READY: the explicit
// command when one was given, otherwise a tmux session with the agent in
// the first window.
func (p *Protocol) ReadyCommand() []string {
	if len(p.cfg.Command) > 0 {
		return p.cfg.Command
	}
	if p.cfg.Agent == "" || p.cfg.Agent == "none" {
		return []string{"tmux", "new-session", "-A", "-s", "dkr"}
	}
	return []string{"tmux", "new-session", "-A", "-s", "dkr", p.cfg.Agent}
}

func (p *Protocol) markerPath() string {
	return filepath.Join(p.cfg.Workspace, ".git", markerFile)
}

func (p *Protocol) alreadyBootstrapped() (string, bool) {
	data, err := os.ReadFile(p.markerPath())
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(data)), true
}

func (p *Protocol) writeMarker(name string) error {
	return os.WriteFile(p.markerPath(), []byte(name+"\n"), 0644)
}

func (p *Protocol) git(ctx context.Context, args ...string) error {
	cmdArgs := append([]string{"-C", p.cfg.Workspace}, args...)
	cmd := p.executor.CommandContext(ctx, "git", cmdArgs...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return errors.WrapWithDetails(errors.ErrVcsOperation,
			fmt.Sprintf("git %s failed", args[0]),
			strings.TrimSpace(string(output)), err)
	}
	return nil
}
