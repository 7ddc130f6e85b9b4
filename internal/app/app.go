package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
	"workspace-assistant/internal/circuitbreaker"
	httpclient "workspace-assistant/internal/common/http"
	"workspace-assistant/internal/common/logging"
	"workspace-assistant/internal/config"
	"workspace-assistant/internal/credentials"
	"workspace-assistant/internal/google"
	"workspace-assistant/internal/handlers"
	"workspace-assistant/internal/handshake"
	"workspace-assistant/internal/locks"
	"workspace-assistant/internal/oauth2"
	"workspace-assistant/internal/sessions"
)

// App holds all the application dependencies
type App struct {
	Config      *config.Config
	Credentials credentials.Store
	Sessions    sessions.Store
	Replay      handshake.ReplayCache
	Locks       locks.LockManager
	Breakers    *circuitbreaker.Registry
	Provider    *oauth2.GoogleProvider
	Manager     *oauth2.Manager
	Controller  *handshake.Controller
	Workspace   *google.Workspace
	Logger      logging.Logger

	// httpClient is the pooled outbound client for Google endpoints
	httpClient *http.Client

	// checkers are the store handles reported by /health, closers release them
	checkers []handlers.Checker
	closers  []func(ctx context.Context) error
	jobs     *cron.Cron
}

// New creates a new application instance with all dependencies
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{
		Config:   cfg,
		Logger:   logging.GetGlobalLogger().WithFields(logging.String("component", "app")),
		Breakers: circuitbreaker.NewRegistry(logging.GetGlobalLogger()),
	}
	app.httpClient = httpclient.NewHTTPClient(
		httpclient.WithTimeout(30*time.Second),
		httpclient.WithMaxIdleConnsPerHost(20),
	)

	// Initialize components in order of dependency
	if err := app.initializeStores(ctx); err != nil {
		app.Cleanup(ctx)
		return nil, err
	}

	if err := app.initializeEncryption(); err != nil {
		app.Cleanup(ctx)
		return nil, err
	}

	if err := app.initializeOAuth(); err != nil {
		app.Cleanup(ctx)
		return nil, err
	}

	app.initializeWorkspace()

	if err := app.initializeJobs(); err != nil {
		app.Cleanup(ctx)
		return nil, err
	}

	return app, nil
}

// Cleanup releases all resources
func (app *App) Cleanup(ctx context.Context) {
	if app.jobs != nil {
		<-app.jobs.Stop().Done()
	}
	if app.Locks != nil {
		if err := app.Locks.Close(); err != nil {
			app.Logger.Warn("Error releasing locks", logging.Err(err))
		}
	}
	// Close in reverse order of creation
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](ctx); err != nil {
			app.Logger.Warn("Error closing store", logging.Err(err))
		}
	}
	app.closers = nil
}

func (app *App) addCloser(name string, closeFn func(ctx context.Context) error) {
	app.closers = append(app.closers, func(ctx context.Context) error {
		if err := closeFn(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return nil
	})
}
