package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/vietddude/sweeper/internal/control"
)

var uploadKey string

var uploadCmd = &cobra.Command{
	Use:   "upload [file]",
	Short: "Upload a file, such as a database dump, to the configured bucket",
	Args:  cobra.ExactArgs(1),
	Run:   runUpload,
}

func init() {
	uploadCmd.Flags().StringVar(&uploadKey, "key", "", "object key (default is the file name)")
	rootCmd.AddCommand(uploadCmd)
}

func runUpload(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	withSweeper(cmd, cfg, func(ctx context.Context, app *control.Sweeper) error {
		_, err := app.Upload(ctx, args[0], uploadKey)
		return err
	})
}
