package commands

import (
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ujohnny/dkr/internal/bootstrap"
	"github.com/ujohnny/dkr/internal/logger"
)

// BootstrapCommand creates the hidden in-container entrypoint command.
// It is wired as the image's ENTRYPOINT and never invoked by hand.
func BootstrapCommand() *cobra.Command {
	return &cobra.Command{
		Use:                "bootstrap [command...]",
		Short:              "Container entrypoint (internal)",
		Hidden:             true,
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			proto := bootstrap.New(bootstrap.ConfigFromEnv(os.LookupEnv, args), nil, nil)
			if _, err := proto.Run(cmd.Context()); err != nil {
				return err
			}

			exportAnthropicKey()

			argv := proto.ReadyCommand()
			path, err := exec.LookPath(argv[0])
			if err != nil {
				return err
			}
			// Replace this process so the session becomes PID 1's payload
			// and receives container signals directly.
			return syscall.Exec(path, argv, os.Environ())
		},
	}
}

// exportAnthropicKey surfaces a mounted API key file to the session.
func exportAnthropicKey() {
	data, err := os.ReadFile(bootstrap.AnthropicKeyPath)
	if err != nil {
		return
	}
	key := strings.TrimSpace(string(data))
	if key == "" {
		return
	}
	if err := os.Setenv("ANTHROPIC_API_KEY", key); err != nil {
		logger.WithError(err).Warn("could not export ANTHROPIC_API_KEY")
	}
}
