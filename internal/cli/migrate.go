package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/vietddude/sweeper/internal/control"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the collection tables in an empty database",
	Run:   runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	withSweeper(cmd, cfg, func(ctx context.Context, app *control.Sweeper) error {
		if err := app.Migrate(ctx); err != nil {
			return err
		}
		slog.Info("Migrations applied")
		return nil
	})
}
