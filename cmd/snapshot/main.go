// cmd/snapshot/main.go
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github-activity-sync/internal/config"
	"github-activity-sync/internal/github"
	"github-activity-sync/internal/snapshot"
)

var (
	configPath    string
	outDir        string
	sinceStr      string
	untilStr      string
	reviewPRLimit int
)

var rootCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Write static JSON activity snapshots for the configured repositories",
	Long: `snapshot performs a one-shot fetch of commits, pull requests, issues
and reviews for every repository in the config file and writes one JSON
document per repository plus a repos.json index.`,
	RunE:          runSnapshot,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "config.properties", "repository config file (owner/name=output lines)")
	rootCmd.Flags().StringVarP(&outDir, "out", "o", ".", "output directory for snapshot files")
	rootCmd.Flags().StringVar(&sinceStr, "since", "", "start date (YYYY-MM-DD)")
	rootCmd.Flags().StringVar(&untilStr, "until", "", "end date (YYYY-MM-DD)")
	rootCmd.Flags().IntVar(&reviewPRLimit, "review-pr-limit", 10, "max pull requests walked for reviews per repository (0 = all)")
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.LoadSnapshotConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	targets, err := config.LoadRepoFile(configPath)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return fmt.Errorf("no repositories configured in %s", configPath)
	}

	since, err := parseDate(sinceStr)
	if err != nil {
		return fmt.Errorf("invalid --since: %w", err)
	}
	until, err := parseDate(untilStr)
	if err != nil {
		return fmt.Errorf("invalid --until: %w", err)
	}

	ghClient, err := github.NewClient(cfg.GithubToken, cfg.RequestTimeout, logger)
	if err != nil {
		return fmt.Errorf("failed to create github client: %w", err)
	}

	runner := snapshot.NewRunner(ghClient, snapshot.NewWriter(outDir), logger, since, until, reviewPRLimit)
	return runner.Run(cmd.Context(), targets)
}

// parseDate parses a YYYY-MM-DD flag value as a UTC instant; an empty
// value means no bound.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("Snapshot failed", "error", err)
		os.Exit(1)
	}
}
