package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ujohnny/dkr/internal/cli/commands"
	"github.com/ujohnny/dkr/internal/operations"
)

// Manager handles CLI operations
type Manager struct {
	ops     *operations.Operations
	rootCmd *cobra.Command
}

// New creates a new CLI manager
func New(ops *operations.Operations) *Manager {
	m := &Manager{
		ops:     ops,
		rootCmd: createRootCommand(),
	}
	m.setupCommands()
	return m
}

// ExecuteWithContext executes the CLI with the given arguments and context
func (m *Manager) ExecuteWithContext(ctx context.Context, args []string) error {
	m.rootCmd.SetArgs(args)
	return m.rootCmd.ExecuteContext(ctx)
}

// setupCommands sets up all CLI commands
func (m *Manager) setupCommands() {
	for _, cmd := range commands.ImageCommands(m.ops) {
		m.rootCmd.AddCommand(cmd)
	}
	m.rootCmd.AddCommand(commands.StartCommand(m.ops))
	m.rootCmd.AddCommand(commands.HistoryCommand(m.ops))
	m.rootCmd.AddCommand(commands.BootstrapCommand())
}
