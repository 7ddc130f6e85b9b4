package app

import (
	"net/http"

	"github.com/gorilla/mux"
	"workspace-assistant/internal/config"
	"workspace-assistant/internal/handlers"
	"workspace-assistant/internal/server"
)

// RunServer builds the router and an unstarted server around it
func (app *App) RunServer() (*server.Server, http.Handler) {
	h := handlers.New(handlers.Options{
		Handshake:    app.Controller,
		Workspace:    app.Workspace,
		Sessions:     app.Sessions,
		Checkers:     app.checkers,
		Breakers:     app.Breakers,
		SessionTTL:   config.Duration(app.Config.SessionTTL),
		SecureCookie: app.Config.SessionCookieSecure,
	})

	router := mux.NewRouter()
	SetupRoutes(router, h, app.InitializeRateLimiter())

	return server.New(router, app.Config.Port), router
}
