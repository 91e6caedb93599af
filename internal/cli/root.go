package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"
	"github.com/vietddude/vidgate/internal/control"
	"github.com/vietddude/vidgate/internal/core/config"
	"github.com/vietddude/vidgate/internal/core/logging"
)

var (
	cfgPath string
	isDebug bool
)

var rootCmd = &cobra.Command{
	Use:   "vidgate",
	Short: "Resilient gateway to the video generation API",
	Long: `Vidgate calls the video generation API with classified retries and records
per-model performance metrics for health reporting and alerting.`,
	Run: runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gateway with its monitoring server and background workers",
	Run:   runServe,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
	rootCmd.AddCommand(serveCmd)
}

// loadConfig reads the config file and sets up logging. It exits on failure.
func loadConfig() (*config.AppConfig, func()) {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	closeLog, err := logging.Setup(cfg.Logging, isDebug)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to set up logging", "error", err)
		os.Exit(1)
	}
	return cfg, closeLog
}

// openGateway builds a gateway for one-shot commands. It exits on failure.
func openGateway(ctx context.Context, cfg *config.AppConfig) *control.Gateway {
	app, err := control.NewGateway(ctx, cfg, control.Options{})
	if err != nil {
		slog.Error("Failed to initialize Gateway", "error", err)
		os.Exit(1)
	}
	return app
}

func runServe(cmd *cobra.Command, args []string) {
	cfg, closeLog := loadConfig()
	defer closeLog()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app := openGateway(ctx, cfg)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := app.Start(ctx); err != nil {
		slog.Error("Failed to start Gateway", "error", err)
		os.Exit(1)
	}

	slog.Info("Gateway running", "config", cfgPath)

	sig := <-sigChan
	slog.Info("Received signal, shutting down...", "signal", sig)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := app.Stop(shutdownCtx); err != nil {
		slog.Error("Error during shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("Gateway stopped gracefully")
}
