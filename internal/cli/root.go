package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/sweeper/internal/control"
	"github.com/vietddude/sweeper/internal/core/config"
)

var (
	cfgPath   string
	isDebug   bool
	workers   int
	chunkSize int
)

var rootCmd = &cobra.Command{
	Use:   "sweeper",
	Short: "Crash-safe bulk mutations for Postgres",
	Long: `Sweeper soft-deletes and anonymizes large Postgres tables in small, retried
statements spread over a pool of concurrent workers.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().IntVar(&workers, "workers", 0, "override sweep.workers")
	rootCmd.PersistentFlags().IntVar(&chunkSize, "chunk-size", 0, "override sweep.chunk_size")
}

// loadConfig reads .env and the config file, then initializes logging.
func loadConfig() *config.AppConfig {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logging
	slogLevel := slog.LevelInfo
	if isDebug || cfg.Logging.Level == "debug" {
		slogLevel = slog.LevelDebug
	}

	stylelog.InitDefault(&tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})

	if workers > 0 {
		cfg.Sweep.Workers = workers
	}
	if chunkSize > 0 {
		cfg.Sweep.ChunkSize = chunkSize
	}
	return cfg
}

// withSweeper runs fn against a started Sweeper. SIGINT and SIGTERM cancel
// fn's context; the sweeper is always closed before the process exits.
func withSweeper(cmd *cobra.Command, cfg *config.AppConfig, fn func(ctx context.Context, app *control.Sweeper) error) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := control.NewSweeper(ctx, *cfg)
	if err != nil {
		slog.Error("Failed to initialize Sweeper", "error", err)
		os.Exit(1)
	}
	app.Start(ctx)

	runErr := fn(ctx, app)
	if ctx.Err() != nil {
		slog.Info("Received signal, shutting down...")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	closeErr := app.Close(shutdownCtx)

	if runErr != nil {
		slog.Error("Command failed", "command", cmd.Name(), "error", runErr)
		os.Exit(1)
	}
	if closeErr != nil {
		slog.Error("Error during shutdown", "error", closeErr)
		os.Exit(1)
	}
}
