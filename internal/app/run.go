package app

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"workspace-assistant/internal/common/logging"
	"workspace-assistant/internal/config"
)

// Run is the main entry point for the application
func Run() error {
	// Load environment variables
	_ = godotenv.Load()

	// Load configuration before logging so LOG_* settings apply
	cfg := config.Load()

	if err := logging.InitGlobalLogger(cfg.LogLevel, cfg.LogFormat, cfg.LogFile, "workspace-assistant"); err != nil {
		return err
	}
	defer logging.MustSync()

	logging.Info("Starting workspace assistant",
		logging.Int("cpus", runtime.NumCPU()),
		logging.String("version", "1.0.0"),
	)

	if err := cfg.Validate(); err != nil {
		logging.Error("Configuration validation failed", err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize application
	app, err := New(ctx, cfg)
	if err != nil {
		logging.Error("Failed to initialize application", err)
		return err
	}

	// Start server
	srv, _ := app.RunServer()
	serveErr, err := srv.Start()
	if err != nil {
		logging.Error("Server failed to start", err)
		app.Cleanup(context.Background())
		return err
	}

	// Wait for interrupt signal or a serve failure
	select {
	case <-ctx.Done():
		logging.Info("Shutting down server...")
	case err = <-serveErr:
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		logging.Error("Server forced to shutdown", shutdownErr)
		if err == nil {
			err = shutdownErr
		}
	}

	// Stores close after in-flight requests drain
	app.Cleanup(shutdownCtx)

	logging.Info("Server exited")
	return err
}
