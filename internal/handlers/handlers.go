// Package handlers is the HTTP surface of the assistant: the sign-in
// handshake routes, JSON and iCalendar views of the signed-in user's
// Google data, and a health report of the backing stores.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"workspace-assistant/internal/circuitbreaker"
	"workspace-assistant/internal/common/errors"
	"workspace-assistant/internal/common/logging"
	"workspace-assistant/internal/common/validation"
	"workspace-assistant/internal/google"
	"workspace-assistant/internal/handshake"
	"workspace-assistant/internal/sessions"
)

// SessionCookie names the cookie holding the server-side session id
const SessionCookie = "wa_session"

// Handshaker drives the OAuth sign-in flow
type Handshaker interface {
	StartHandshake(ctx context.Context, sessionID, returnTo string) (string, error)
	CompleteHandshake(ctx context.Context, sessionID, code, state string) (*handshake.Result, error)
	SignOut(ctx context.Context, sessionID string) error
}

// Workspace loads the signed-in user's Google data
type Workspace interface {
	FetchMail(ctx context.Context, userID string) (*google.Result[google.Message], error)
	FetchFiles(ctx context.Context, userID string) (*google.Result[google.File], error)
	FetchEvents(ctx context.Context, userID string, query google.EventQuery) (*google.Result[google.Event], error)
}

// Checker is a backing resource reported by /health
type Checker interface {
	Name() string
	Health(ctx context.Context) error
}

// BreakerReporter lists the circuit breakers guarding outbound calls
type BreakerReporter interface {
	AllStats() []circuitbreaker.Stats
}

// Options wires the handlers to their collaborators
type Options struct {
	Handshake    Handshaker
	Workspace    Workspace
	Sessions     sessions.Store
	Checkers     []Checker
	Breakers     BreakerReporter
	SessionTTL   time.Duration
	SecureCookie bool
	Now          func() time.Time
}

type Handlers struct {
	opts      Options
	validator *validation.Validator
	now       func() time.Time
}

func New(opts Options) *Handlers {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 24 * time.Hour
	}
	return &Handlers{opts: opts, validator: validation.NewValidator(), now: now}
}

// ErrorResponse is the JSON body of every failed API call
type ErrorResponse struct {
	Error string `json:"error"`
	Type  string `json:"type"`
	Code  string `json:"code,omitempty"`

	// Fields lists the failed rules of a validation error
	Fields []validation.FieldError `json:"fields,omitempty"`
}

// StatusFor maps an error to the HTTP status reported to the browser
func StatusFor(err error) int {
	if handshake.IsStateError(err) {
		return http.StatusBadRequest
	}
	switch errors.GetType(err) {
	case errors.ErrTypeAuth:
		return http.StatusUnauthorized
	case errors.ErrTypeValidation:
		return http.StatusBadRequest
	case errors.ErrTypePermission:
		return http.StatusForbidden
	case errors.ErrTypeTransient, errors.ErrTypeConnection, errors.ErrTypeTimeout, errors.ErrTypeRateLimit:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) sendJSONResponse(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Warn("Failed to encode response", logging.Err(err))
	}
}

// sendJSONError logs err and writes a body that never includes the cause chain
func (h *Handlers) sendJSONError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	resp := ErrorResponse{Error: http.StatusText(status), Type: string(errors.GetType(err))}
	if handshake.IsStateError(err) {
		resp.Type = string(errors.ErrTypeValidation)
		resp.Error = "invalid or expired sign-in state"
	}
	if appErr, ok := errors.As(err); ok {
		resp.Error = appErr.Message
		resp.Code = appErr.Code
		resp.Fields = validation.Fields(appErr)
	}

	logger := logging.WithContext(r.Context())
	if status >= 500 {
		logger.Error("Request failed", err, logging.Int("status", status))
	} else {
		logger.Warn("Request rejected", logging.Int("status", status), logging.Err(err))
	}
	h.sendJSONResponse(w, status, resp)
}

func (h *Handlers) setSessionCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   int(h.opts.SessionTTL / time.Second),
		HttpOnly: true,
		Secure:   h.opts.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handlers) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.opts.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func sessionID(r *http.Request) string {
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

// currentUser resolves the signed-in user. No cookie, an unknown session
// and an anonymous session all yield an empty id; only a store failure
// is an error.
func (h *Handlers) currentUser(r *http.Request) (string, error) {
	id := sessionID(r)
	if id == "" {
		return "", nil
	}
	session, err := h.opts.Sessions.Get(r.Context(), id)
	if err != nil {
		if sessions.IsNotFound(err) {
			return "", nil
		}
		return "", errors.ConnectionError("session store unavailable", err)
	}
	return session.UserID, nil
}
