package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/verkeep/internal/retention"
)

// --- node commands ---

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Manage versioned nodes",
}

var nodeCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Register a new node",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBackend(cmd.Context())
		if err != nil {
			return err
		}
		defer b.Close()

		n, err := b.CreateNode(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("create node: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", n.ID, n.Name)
		return nil
	},
}

var nodeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List nodes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBackend(cmd.Context())
		if err != nil {
			return err
		}
		defer b.Close()

		nodes, err := b.ListNodes(cmd.Context())
		if err != nil {
			return fmt.Errorf("list nodes: %w", err)
		}
		if len(nodes) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No nodes.")
			return nil
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tVERSIONS")
		for _, n := range nodes {
			fmt.Fprintf(tw, "%s\t%s\t%d\n", n.ID, n.Name, n.VersionCount)
		}
		return tw.Flush()
	},
}

// --- history command ---

var historyCmd = &cobra.Command{
	Use:   "history <node>",
	Short: "Show a node's versions, most recent first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBackend(cmd.Context())
		if err != nil {
			return err
		}
		defer b.Close()

		versions, err := b.Versions(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("history: %w", err)
		}
		if len(versions) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No versions.")
			return nil
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "LABEL\tKIND\tCREATED\tCOMMENT")
		for _, v := range versions {
			created := time.UnixMilli(v.CreatedAt).Format(time.DateTime)
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", v.Label, v.Kind, created, v.Comment)
		}
		return tw.Flush()
	},
}

// --- commit command ---

var (
	commitMinor   bool
	commitComment string
)

var commitCmd = &cobra.Command{
	Use:   "commit <node>",
	Short: "Record a new version and apply retention",
	Long:  "Record a new major version (or minor with --minor) on the node. Retention runs right after the version is stored.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBackend(cmd.Context())
		if err != nil {
			return err
		}
		defer b.Close()

		kind := retention.KindMajor
		if commitMinor {
			kind = retention.KindMinor
		}
		rec, err := b.Commit(cmd.Context(), args[0], kind, commitComment)
		if rec != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", rec.Label, rec.Kind)
		}
		if err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		return nil
	},
}

// --- prune command ---

var pruneDryRun bool

var pruneCmd = &cobra.Command{
	Use:   "prune <node>",
	Short: "Apply the retention policy to a node now",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBackend(cmd.Context())
		if err != nil {
			return err
		}
		defer b.Close()

		if pruneDryRun {
			plan, err := b.Plan(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("plan: %w", err)
			}
			printVersions(cmd, "would delete", plan)
			return nil
		}

		deleted, err := b.Prune(cmd.Context(), args[0])
		printVersions(cmd, "deleted", deleted)
		if err != nil {
			return fmt.Errorf("prune: %w", err)
		}
		return nil
	},
}

func printVersions(cmd *cobra.Command, verb string, versions []retention.Version) {
	out := cmd.OutOrStdout()
	if len(versions) == 0 {
		fmt.Fprintln(out, "Nothing to delete.")
		return
	}
	for _, v := range versions {
		fmt.Fprintf(out, "%s %s (%s)\n", verb, v.Label, v.Kind)
	}
}

func init() {
	nodeCmd.AddCommand(nodeCreateCmd)
	nodeCmd.AddCommand(nodeListCmd)

	commitCmd.Flags().BoolVar(&commitMinor, "minor", false, "Record a minor version instead of a major one")
	commitCmd.Flags().StringVarP(&commitComment, "message", "m", "", "Comment stored with the version")

	pruneCmd.Flags().BoolVar(&pruneDryRun, "dry-run", false, "Show what would be deleted without deleting")
}
