package app

import (
	"workspace-assistant/internal/config"
	"workspace-assistant/internal/google"
	"workspace-assistant/internal/ratelimit"
)

// InitializeRateLimiter creates the per-client limiter for the API routes,
// or nil when rate limiting is disabled
func (app *App) InitializeRateLimiter() *ratelimit.Limiter {
	if !app.Config.RateLimitEnabled {
		app.Logger.Info("Rate Limiting: Disabled")
		return nil
	}

	limiter := ratelimit.NewLimiter(&ratelimit.Config{
		RequestsPerSecond: config.Float(app.Config.RateLimitRPS),
		Burst:             config.Int(app.Config.RateLimitBurst),
		Enabled:           true,
	})
	app.Logger.Info("Rate Limiting: Enabled")
	return limiter
}

// serviceLimiter paces outbound calls per Google API. The rates sit below
// the default per-project quotas of each service.
func serviceLimiter() *ratelimit.Limiter {
	return ratelimit.NewLimiter(&ratelimit.Config{
		RequestsPerSecond: 10,
		Burst:             20,
		Enabled:           true,
		Overrides: map[string]ratelimit.Config{
			string(google.ServiceGmail):    {RequestsPerSecond: 40, Burst: 50, Enabled: true},
			string(google.ServiceDrive):    {RequestsPerSecond: 20, Burst: 30, Enabled: true},
			string(google.ServiceCalendar): {RequestsPerSecond: 10, Burst: 20, Enabled: true},
		},
	})
}

func (app *App) initializeWorkspace() {
	cfg := app.Config

	opts := google.DefaultOptions()
	opts.Mode = google.FallbackMode(cfg.FallbackMode)
	opts.ItemTimeout = config.Duration(cfg.ItemTimeout)
	opts.MailMaxResults = int64(config.Int(cfg.MailMaxResults))
	opts.FilesMaxResults = int64(config.Int(cfg.FilesMaxResults))
	opts.EventsMaxResults = int64(config.Int(cfg.EventsMaxResults))
	opts.Limiter = serviceLimiter()
	opts.HTTPClient = app.httpClient
	opts.Logger = app.Logger

	app.Workspace = google.NewWorkspace(app.Manager, opts)
	app.Logger.Info("Workspace APIs: configured")
}
