package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/sweeper/internal/control"
)

var olderThan time.Duration

var purgeAdsCmd = &cobra.Command{
	Use:   "purge-ads",
	Short: "Soft-delete ads older than the configured age",
	Long: `Workers repeatedly claim and soft-delete a chunk of old ads in one statement,
skipping rows locked by other workers, until no eligible ads remain.`,
	Run: runPurgeAds,
}

var purgePagesCmd = &cobra.Command{
	Use:   "purge-pages",
	Short: "Soft-delete pages whose ads are all deleted",
	Long: `Scans page ids in key order to collect pages whose ads are all deleted, then
soft-deletes them in chunks spread across the worker pool.`,
	Run: runPurgePages,
}

func init() {
	purgeAdsCmd.Flags().DurationVar(&olderThan, "older-than", 0, "override purge_ads.older_than (e.g. 504h)")
	rootCmd.AddCommand(purgeAdsCmd, purgePagesCmd)
}

func runPurgeAds(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	if olderThan > 0 {
		cfg.PurgeAds.OlderThan = olderThan
	}
	withSweeper(cmd, cfg, func(ctx context.Context, app *control.Sweeper) error {
		_, err := app.PurgeAds(ctx)
		return err
	})
}

func runPurgePages(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	withSweeper(cmd, cfg, func(ctx context.Context, app *control.Sweeper) error {
		_, err := app.PurgePages(ctx)
		return err
	})
}
