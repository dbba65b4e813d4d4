package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lazypower/verkeep/internal/retention"
)

var (
	planMaxVersions int
	planMaxMajor    int
	planKeepMajor   int
	planMaxMinor    int
	planKeepMinor   int
)

var planCmd = &cobra.Command{
	Use:   "plan <label:kind>...",
	Short: "Compute deletions for a history without touching any database",
	Long: "Compute which versions a policy would delete from the given history.\n" +
		"Versions are listed head first, e.g. `verkeep plan --max-minor 2 1.2:minor 1.1:minor 1.0:major`.\n" +
		"Flags override the configured retention settings.",
	Args: cobra.MinimumNArgs(1),
	RunE: runPlan,
}

func init() {
	planCmd.Flags().IntVar(&planMaxVersions, "max-versions", 0, "Flat mode version limit")
	planCmd.Flags().IntVar(&planMaxMajor, "max-major", 0, "Major versions to keep")
	planCmd.Flags().IntVar(&planKeepMajor, "keep-major", 0, "Keep every Nth major version")
	planCmd.Flags().IntVar(&planMaxMinor, "max-minor", 0, "Minor versions to keep")
	planCmd.Flags().IntVar(&planKeepMinor, "keep-minor", 0, "Keep every Nth minor version")
}

func runPlan(cmd *cobra.Command, args []string) error {
	h := &retention.History{NodeID: "cli"}
	for _, arg := range args {
		v, err := parseVersionArg(arg)
		if err != nil {
			return err
		}
		h.Versions = append(h.Versions, v)
	}
	h.Head = h.Versions[0]

	r := cfg.Retention
	flags := cmd.Flags()
	if flags.Changed("max-versions") {
		r.MaxVersions = planMaxVersions
	}
	if flags.Changed("max-major") {
		r.MaxMajorVersions = planMaxMajor
	}
	if flags.Changed("keep-major") {
		r.KeepIntermediateMajorVersions = planKeepMajor
	}
	if flags.Changed("max-minor") {
		r.MaxMinorVersions = planMaxMinor
	}
	if flags.Changed("keep-minor") {
		r.KeepIntermediateMinorVersions = planKeepMinor
	}
	c := *cfg
	c.Retention = r
	p, warnings := c.RetentionPolicy()
	for _, w := range warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
	}

	deletions, err := retention.ComputeDeletions(h, p)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "mode: %s\n", p.Mode())
	printVersions(cmd, "delete", deletions)
	return nil
}

// parseVersionArg parses "1.2:minor"; the kind defaults to MINOR unless
// the minor number is zero.
func parseVersionArg(arg string) (retention.Version, error) {
	label, kindStr, hasKind := strings.Cut(arg, ":")
	_, minor, err := retention.ParseLabel(label)
	if err != nil {
		return retention.Version{}, err
	}
	if !hasKind {
		if minor == 0 {
			return retention.Version{Label: label, Kind: retention.KindMajor}, nil
		}
		return retention.Version{Label: label, Kind: retention.KindMinor}, nil
	}
	kind, err := retention.ParseKind(kindStr)
	if err != nil {
		return retention.Version{}, err
	}
	return retention.Version{Label: label, Kind: kind}, nil
}
