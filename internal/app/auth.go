package app

import (
	"workspace-assistant/internal/circuitbreaker"
	"workspace-assistant/internal/config"
	"workspace-assistant/internal/handshake"
	"workspace-assistant/internal/oauth2"
)

// initializeOAuth builds the provider, the credential manager and the
// sign-in handshake controller
func (app *App) initializeOAuth() error {
	cfg := app.Config

	app.Provider = oauth2.NewGoogleProvider(oauth2.GoogleConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
		Scopes:       cfg.Scopes(),
		HTTPClient:   app.httpClient,
	})

	refreshBuffer := config.Duration(cfg.RefreshBuffer)
	defaultTTL := config.Duration(cfg.DefaultTokenTTL)

	app.Manager = oauth2.NewManager(app.Credentials, app.Provider, oauth2.Options{
		RefreshBuffer:   refreshBuffer,
		DefaultTokenTTL: defaultTTL,
		Locks:           app.Locks,
		Breaker:         app.Breakers.GetOrCreate("google-token-endpoint", circuitbreaker.OAuthConfig),
		Logger:          app.Logger,
	})

	signer, err := handshake.NewStateSigner(cfg.StateSecret)
	if err != nil {
		return err
	}

	controller, err := handshake.NewController(handshake.Options{
		Signer:          signer,
		Provider:        app.Provider,
		Credentials:     app.Credentials,
		Sessions:        app.Sessions,
		Replay:          app.Replay,
		Profiles:        handshake.NewUserinfoFetcher(),
		SessionTTL:      config.Duration(cfg.SessionTTL),
		DefaultTokenTTL: defaultTTL,
		Logger:          app.Logger,
	})
	if err != nil {
		return err
	}
	app.Controller = controller

	app.Logger.Info("OAuth: configured")
	return nil
}
