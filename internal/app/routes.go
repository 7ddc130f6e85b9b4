package app

import (
	"net/http"

	"github.com/gorilla/mux"
	"workspace-assistant/internal/handlers"
	"workspace-assistant/internal/middleware"
	"workspace-assistant/internal/ratelimit"
)

// SetupRoutes configures all HTTP routes for the application
func SetupRoutes(router *mux.Router, h *handlers.Handlers, rateLimiter *ratelimit.Limiter) {
	router.Use(middleware.RequestID)
	router.Use(middleware.LoggingMiddleware)

	// Health check (never rate limited)
	router.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	// Sign-in handshake
	auth := router.NewRoute().Subrouter()
	if rateLimiter != nil {
		auth.Use(rateLimiter.HTTPMiddleware(ratelimit.IPBasedKey))
	}
	auth.HandleFunc("/signin", h.SignIn).Methods(http.MethodGet)
	auth.HandleFunc("/callback", h.Callback).Methods(http.MethodGet)
	auth.HandleFunc("/signout", h.SignOut).Methods(http.MethodPost)

	// Workspace data
	api := router.PathPrefix("/api").Subrouter()
	if rateLimiter != nil {
		api.Use(rateLimiter.HTTPMiddleware(ratelimit.IPBasedKey))
	}
	api.Handle("/mail", h.Mail()).Methods(http.MethodGet)
	api.Handle("/files", h.Files()).Methods(http.MethodGet)
	api.Handle("/events", h.Events()).Methods(http.MethodGet)
	api.Handle("/events.ics", h.EventsICS()).Methods(http.MethodGet)
}
