package cli

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Set via -ldflags at build time. Left at their defaults, they are filled
// from the module and VCS stamps of `go install` builds.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		b := currentBuild()
		fmt.Fprintf(cmd.OutOrStdout(), "verkeep %s\n  commit: %s\n  built:  %s\n  go:     %s\n",
			b.version, b.commit, b.date, b.goVersion)
	},
}

type build struct {
	version, commit, date, goVersion string
}

func currentBuild() build {
	b := build{version: Version, commit: Commit, date: BuildDate, goVersion: "unknown"}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return b
	}
	b.goVersion = info.GoVersion
	if b.version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		b.version = info.Main.Version
	}
	for _, s := range info.Settings {
		switch {
		case s.Key == "vcs.revision" && b.commit == "unknown":
			b.commit = s.Value
			if len(b.commit) > 12 {
				b.commit = b.commit[:12]
			}
		case s.Key == "vcs.time" && b.date == "unknown":
			b.date = s.Value
		}
	}
	return b
}

// VersionString is the version reported by /api/health.
func VersionString() string {
	b := currentBuild()
	return fmt.Sprintf("%s (%s)", b.version, b.commit)
}
