package commands

import (
	"github.com/spf13/cobra"

	"github.com/ujohnny/dkr/internal/operations"
)

// StartCommand creates the start-container command
func StartCommand(ops *operations.Operations) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start-container [repo] [branch] [-- command...]",
		Short: "Start a container from a dkr image",
		Long: `Start a container from the most recent dkr image matching the given
repository and branch. Without arguments the most recent image overall is
used. Arguments after -- are forwarded as the container's command and run
instead of the interactive session.`,
		Args: func(cmd *cobra.Command, args []string) error {
			positional := args
			if dash := cmd.ArgsLenAtDash(); dash >= 0 {
				positional = args[:dash]
			}
			return cobra.MaximumNArgs(2)(cmd, positional)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			positional := args
			var passthrough []string
			if dash := cmd.ArgsLenAtDash(); dash >= 0 {
				positional, passthrough = args[:dash], args[dash:]
			}

			name, _ := cmd.Flags().GetString("name")
			agent, _ := cmd.Flags().GetString("agent")
			anthropicKey, _ := cmd.Flags().GetString("anthropic-key")

			req := operations.StartRequest{
				Name:             name,
				Agent:            agent,
				AnthropicKeyFile: anthropicKey,
				Command:          passthrough,
			}
			if len(positional) > 0 {
				req.RepoPath = positional[0]
			}
			if len(positional) > 1 {
				req.BranchFrom = positional[1]
			}
			return ops.StartContainer(cmd.Context(), req)
		},
	}

	cmd.Flags().String("name", "", "Work branch name (default: random adjective-noun)")
	cmd.Flags().String("agent", "", "AI agent for the first tmux window: claude, codex, opencode, none")
	cmd.Flags().String("anthropic-key", "", "Path to a file containing the Anthropic API key (mounted read-only)")

	return cmd
}
