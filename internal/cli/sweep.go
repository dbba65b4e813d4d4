package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lazypower/verkeep/internal/retention"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Apply the retention policy to every node once",
	Long:  "Prune every node with versions against the local database. Useful for histories recorded before the policy was tightened.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer db.Close()

		pruner := retention.NewPruner(db, policy())
		res, err := retention.NewSweeper(pruner, db, "").Sweep(cmd.Context())
		fmt.Fprintf(cmd.OutOrStdout(), "swept %d nodes, deleted %d versions, %d failed\n", res.Nodes, res.Deleted, res.Failed)
		return err
	},
}
