package operations

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/ujohnny/dkr/internal/bootstrap"
	"github.com/ujohnny/dkr/internal/config"
	"github.com/ujohnny/dkr/internal/container"
	"github.com/ujohnny/dkr/internal/errors"
	"github.com/ujohnny/dkr/internal/image"
	"github.com/ujohnny/dkr/internal/logger"
	"github.com/ujohnny/dkr/internal/staleness"
)

// StartRequest parameterizes start-container.
type StartRequest struct {
	// RepoPath filters image discovery; empty falls back to the most
	// recent image across all repositories.
	RepoPath string
	// BranchFrom filters by branch token (resolved name or original ref).
	BranchFrom string
	// Name is the requested work branch name; empty generates one.
	Name string
	// Agent overrides the configured agent.
	Agent string
	// AnthropicKeyFile is mounted read-only into the container.
	AnthropicKeyFile string
	// Command is forwarded to the container entrypoint; when set, the
	// container runs it instead of the interactive session.
	Command []string
}

// StartContainer finds the best image for the request, advises on
// staleness, and runs a container from it in the foreground.
func (o *Operations) StartContainer(ctx context.Context, req StartRequest) error {
	repoPath := ""
	if req.RepoPath != "" {
		var err error
		repoPath, err = o.git.ResolveRepo(req.RepoPath)
		if err != nil {
			return err
		}
	}

	// The branch token is matched against both the resolved branch and the
	// originally-typed ref, so a remote-qualified spelling needs no
	// normalization here.
	branch := req.BranchFrom

	rec, err := o.index.Latest(ctx, repoPath, branch)
	if err != nil {
		return err
	}
	if rec == nil {
		scope := ""
		if repoPath != "" {
			scope = " for " + filepath.Base(repoPath)
			if branch != "" {
				scope += "/" + branch
			}
		}
		return errors.NewWithDetails(errors.ErrNoMatchingImage,
			"no dkr image found"+scope, "run create-image first")
	}

	// When discovery ran without repository context, adopt the image's.
	if repoPath == "" && rec.RepoPath != "" {
		repoPath = rec.RepoPath
	}

	if repoPath != "" && o.git.IsRepository(repoPath) {
		proceed, updated, err := o.adviseStaleness(ctx, rec, repoPath, req)
		if err != nil {
			return err
		}
		if !proceed {
			return nil
		}
		if updated != nil {
			rec = updated
		}
	}

	return o.runContainer(ctx, rec, repoPath, req)
}

// adviseStaleness applies the advisory policy: offer an update when the
// image has fallen far behind, warn on divergence or ambiguity. It never
// blocks the start on its own; only the user's answer does.
func (o *Operations) adviseStaleness(ctx context.Context, rec *image.Record, repoPath string, req StartRequest) (proceed bool, updated *image.Record, err error) {
	refBranch := rec.BranchFrom
	if refBranch == "" {
		refBranch = rec.Branch
	}
	if rec.Commit == "" || refBranch == "" {
		return true, nil, nil
	}

	result, evalErr := staleness.Evaluate(repoPath, rec.Commit, refBranch)
	if evalErr != nil {
		if errors.HasCode(evalErr, errors.ErrStalenessAmbiguous) {
			logger.Warnf("cannot verify image %s against %s; its commit may have been force-pushed away", rec.Ref(), refBranch)
			logger.Warn("consider running create-image for a clean rebuild")
			if !o.prompter.Confirm("Start anyway?") {
				return false, nil, nil
			}
			return true, nil, nil
		}
		return false, nil, evalErr
	}

	if !result.IsAncestor {
		logger.Warnf("image %s was built from a commit no longer on %s (history rewritten); an incremental update cannot cleanly apply, consider create-image", rec.Ref(), refBranch)
		return true, nil, nil
	}

	if result.Behind > o.global.Start.StalenessThreshold {
		logger.Warnf("image %s is %d commits behind %s", rec.Ref(), result.Behind, refBranch)
		if o.prompter.Confirm("Update the image before starting?") {
			if _, err := o.UpdateImage(ctx, BuildRequest{RepoPath: repoPath, BranchFrom: req.BranchFrom}); err != nil {
				return false, nil, err
			}
			fresh, err := o.index.Latest(ctx, repoPath, req.BranchFrom)
			if err != nil {
				return false, nil, err
			}
			return true, fresh, nil
		}
	}

	return true, nil, nil
}

func (o *Operations) runContainer(ctx context.Context, rec *image.Record, repoPath string, req StartRequest) error {
	conf := config.DefaultBuildConfig()
	if repoPath != "" && o.git.IsRepository(repoPath) {
		loaded, err := config.LoadBuildConfig(repoPath)
		if err != nil {
			return err
		}
		conf = loaded
	}

	workName := req.Name
	if workName == "" {
		workName = bootstrap.RandomName(rand.New(rand.NewSource(time.Now().UnixNano())))
	}

	agent := req.Agent
	if agent == "" {
		agent = o.global.Start.Agent
	}

	run := &container.RunRequest{
		ImageRef:    rec.Ref(),
		Hostname:    workName,
		Interactive: stdinIsTerminal(),
		EnvVars: []string{
			bootstrap.EnvWorkBranch + "=" + workName,
			bootstrap.EnvAgent + "=" + agent,
		},
		Command: req.Command,
	}

	for _, vol := range conf.Volumes {
		run.Volumes = append(run.Volumes, vol.String())
	}

	if key, err := o.resolveSSHKey(""); err == nil {
		run.Volumes = append(run.Volumes, fmt.Sprintf("%s:/root/.ssh/id_rsa:ro", key))
	}

	if req.AnthropicKeyFile != "" {
		keyPath, err := filepath.Abs(req.AnthropicKeyFile)
		if err != nil {
			return err
		}
		if _, err := os.Stat(keyPath); err != nil {
			return errors.NewWithDetails(errors.ErrInvalidPath, "Anthropic API key file not found", keyPath)
		}
		run.Volumes = append(run.Volumes, fmt.Sprintf("%s:%s:ro", keyPath, bootstrap.AnthropicKeyPath))
	}

	logger.WithFields(logger.Fields{
		"image":       rec.Ref(),
		"work_branch": workName,
	}).Info("starting container")

	if err := o.runtime.Run(ctx, run); err != nil {
		return errors.Wrap(errors.ErrContainerStart, "container run failed", err)
	}
	return nil
}

func stdinIsTerminal() bool {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
