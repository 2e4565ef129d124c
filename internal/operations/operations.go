// Package operations orchestrates the dkr commands: it glues the config
// model, plan generator, image index, staleness evaluator and container
// runtime into the command-level flows the CLI exposes.
package operations

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ujohnny/dkr/internal/config"
	"github.com/ujohnny/dkr/internal/container"
	"github.com/ujohnny/dkr/internal/db"
	"github.com/ujohnny/dkr/internal/git"
	"github.com/ujohnny/dkr/internal/image"
)

// Prompter asks the user a yes/no question. Injected so staleness flows
// are testable without a terminal.
type Prompter interface {
	Confirm(question string) bool
}

// StdinPrompter reads y/N answers from standard input.
type StdinPrompter struct{}

// Confirm implements Prompter.
func (StdinPrompter) Confirm(question string) bool {
	fmt.Fprintf(os.Stderr, "%s [y/N] ", question)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// Operations carries the collaborators shared by all command flows.
type Operations struct {
	global   *config.GlobalConfig
	git      *git.Manager
	runtime  *container.DockerRuntime
	index    *image.Index
	builds   *db.BuildRepository
	prompter Prompter

	// claudeVersion resolves the agent version baked into create builds.
	// Injected so tests stay off the network.
	claudeVersion func(ctx context.Context) string
}

// New creates an Operations. builds may be nil when the ledger is
// unavailable; recording then degrades to a warning.
func New(global *config.GlobalConfig, gm *git.Manager, runtime *container.DockerRuntime, index *image.Index, builds *db.BuildRepository, prompter Prompter) *Operations {
	if prompter == nil {
		prompter = StdinPrompter{}
	}
	return &Operations{
		global:        global,
		git:           gm,
		runtime:       runtime,
		index:         index,
		builds:        builds,
		prompter:      prompter,
		claudeVersion: latestClaudeVersion,
	}
}
