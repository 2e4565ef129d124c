package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ujohnny/dkr/internal/operations"
)

// HistoryCommand creates the history command
func HistoryCommand(ops *operations.Operations) *cobra.Command {
	return &cobra.Command{
		Use:   "history [repo] [branch]",
		Short: "Show recorded image builds",
		Long: `Show the build ledger: every create-image and update-image invocation
that produced an image, most recent first. The ledger is informational
only; image discovery always goes through docker labels.`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			repoArg := ""
			branch := ""
			if len(args) > 0 {
				repoArg = args[0]
			}
			if len(args) > 1 {
				branch = args[1]
			}

			builds, err := ops.History(cmd.Context(), repoArg, branch)
			if err != nil {
				return err
			}
			if len(builds) == 0 {
				fmt.Println("No recorded builds.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TAG\tREPO\tBRANCH\tCOMMIT\tTYPE\tCREATED")
			for _, b := range builds {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					b.ImageTag,
					b.RepoName,
					b.Branch,
					short(b.CommitSHA, 12),
					b.Kind,
					b.CreatedAt.Local().Format("2006-01-02 15:04:05"),
				)
			}
			return w.Flush()
		},
	}
}
