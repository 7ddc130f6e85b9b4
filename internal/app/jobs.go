package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"workspace-assistant/internal/common/logging"
	"workspace-assistant/internal/config"
	"workspace-assistant/internal/sessions"
)

// sweeper is implemented by session stores that do not expire entries on
// their own
type sweeper interface {
	Sweep(ctx context.Context) int
}

// initializeJobs schedules the periodic store health check and, for the
// in-memory session store, the expired session sweep
func (app *App) initializeJobs() error {
	jobs := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	interval := config.Duration(app.Config.StoreHealthInterval)
	if _, err := jobs.AddFunc(fmt.Sprintf("@every %s", interval), app.checkStores); err != nil {
		return fmt.Errorf("failed to schedule store health check: %w", err)
	}

	if s, ok := app.Sessions.(sweeper); ok {
		if _, err := jobs.AddFunc(fmt.Sprintf("@every %s", sweepInterval), func() { app.sweepSessions(s) }); err != nil {
			return fmt.Errorf("failed to schedule session sweep: %w", err)
		}
	}

	jobs.Start()
	app.jobs = jobs
	return nil
}

// checkStores pings every store handle. A failing handle is demoted by its
// own Health and redials on the next request.
func (app *App) checkStores() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, checker := range app.checkers {
		if err := checker.Health(ctx); err != nil {
			app.Logger.Warn("Store health check failed",
				logging.String("store", checker.Name()),
				logging.Err(err),
			)
			continue
		}
		app.Logger.Debug("Store healthy", logging.String("store", checker.Name()))
	}
}

func (app *App) sweepSessions(s sweeper) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if removed := s.Sweep(ctx); removed > 0 {
		app.Logger.Info("Expired sessions removed", logging.Int("count", removed))
	}
}

var _ sweeper = (*sessions.MemoryStore)(nil)
