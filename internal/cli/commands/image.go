package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ujohnny/dkr/internal/operations"
)

// ImageCommands creates the image lifecycle commands
func ImageCommands(ops *operations.Operations) []*cobra.Command {
	cmds := []*cobra.Command{}

	// dkr create-image [repo] [branch]
	createCmd := &cobra.Command{
		Use:   "create-image [repo] [branch]",
		Short: "Build a new image with a clone of a local git repository",
		Long: `Build a new Docker image containing a clone of the given local git
repository at the given branch. Defaults to the current directory and HEAD.
Build customization is read from .dkr.conf at the branch tip.`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sshKey, _ := cmd.Flags().GetString("ssh-key")
			req := operations.BuildRequest{SSHKey: sshKey}
			if len(args) > 0 {
				req.RepoPath = args[0]
			}
			if len(args) > 1 {
				req.BranchFrom = args[1]
			}
			result, err := ops.CreateImage(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Printf("Image built: %s\n", result.Tag)
			return nil
		},
	}
	createCmd.Flags().String("ssh-key", "", "SSH private key path (default from config, ~/.ssh/id_rsa)")
	cmds = append(cmds, createCmd)

	// dkr update-image [repo] [branch]
	updateCmd := &cobra.Command{
		Use:   "update-image [repo] [branch]",
		Short: "Update an existing image with a fetch and rebase layer",
		Long: `Layer an incremental git fetch + rebase onto the most recent existing
image for the repository and branch, avoiding a full re-clone.`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sshKey, _ := cmd.Flags().GetString("ssh-key")
			req := operations.BuildRequest{SSHKey: sshKey}
			if len(args) > 0 {
				req.RepoPath = args[0]
			}
			if len(args) > 1 {
				req.BranchFrom = args[1]
			}
			result, err := ops.UpdateImage(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Printf("Image updated: %s\n", result.Tag)
			return nil
		},
	}
	updateCmd.Flags().String("ssh-key", "", "SSH private key path (default from config, ~/.ssh/id_rsa)")
	cmds = append(cmds, updateCmd)

	// dkr list-images [repo] [branch]
	listCmd := &cobra.Command{
		Use:     "list-images [repo] [branch]",
		Short:   "List dkr-managed images",
		Aliases: []string{"ls"},
		Args:    cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			repoArg, branch := "", ""
			if len(args) > 0 {
				repoArg = args[0]
			}
			if len(args) > 1 {
				branch = args[1]
			}
			records, err := ops.ListImages(cmd.Context(), repoArg, branch)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("No dkr images found.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
			fmt.Fprintln(w, "TAG\tREPO\tBRANCH\tCOMMIT\tCREATED\tTYPE\tIMAGE ID")
			for _, rec := range records {
				tag := "<none>"
				if len(rec.Tags) > 0 {
					tag = rec.Tags[0]
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					tag,
					rec.RepoName,
					rec.Branch,
					short(rec.Commit, 12),
					rec.CreatedAt.Format(time.RFC3339),
					rec.Kind,
					short(rec.ID, 19),
				)
			}
			return w.Flush()
		},
	}
	cmds = append(cmds, listCmd)

	return cmds
}

func short(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
