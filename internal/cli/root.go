package cli

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lazypower/verkeep/internal/config"
)

var (
	configPath string
	forceLocal bool

	// cfg is loaded once per invocation by the root command.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "verkeep",
	Short: "Version retention for node histories",
	Long: "verkeep stores linear version histories per node and prunes them on every commit,\n" +
		"keeping a capped number of majors and minors plus a sparse skeleton of milestones.",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $VERKEEP_CONFIG or ~/.verkeep/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&forceLocal, "local", false, "Use the database directly even when a server is running")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(nodeCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(commitCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(planCmd)
}

func loadConfig(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		path = os.Getenv("VERKEEP_CONFIG")
	}
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			return err
		}
	}

	c, err := config.Load(path)
	if err != nil {
		return err
	}
	c.ApplyEnv()
	if err := c.Validate(); err != nil {
		return err
	}
	cfg = c

	slog.SetDefault(newLogger(c.Log))
	return nil
}

func newLogger(lc config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(lc.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if lc.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
