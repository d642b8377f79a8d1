package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/vietddude/sweeper/internal/control"
)

var anonymizeTables []string

var anonymizeCmd = &cobra.Command{
	Use:   "anonymize",
	Short: "Replace personal fields with random data of the same shape",
	Long: `Rewrites the columns listed under anonymize.tables for every row. Letters are
scrambled keeping case, tokens are regenerated, and NULLs stay NULL. Meant for
building development copies of a production database.`,
	Run: runAnonymize,
}

func init() {
	anonymizeCmd.Flags().StringSliceVar(&anonymizeTables, "table", nil, "only rewrite these tables")
	rootCmd.AddCommand(anonymizeCmd)
}

func runAnonymize(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	withSweeper(cmd, cfg, func(ctx context.Context, app *control.Sweeper) error {
		_, err := app.Anonymize(ctx, anonymizeTables...)
		return err
	})
}
