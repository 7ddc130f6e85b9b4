package handlers

import (
	"bytes"
	"net/http"
	"strconv"
	"time"

	"workspace-assistant/internal/common/errors"
	"workspace-assistant/internal/common/logging"
	"workspace-assistant/internal/google"
)

// FallbackHeader carries the fallback reason on iCalendar responses
const FallbackHeader = "X-Fallback-Reason"

// withUser resolves the session and hands the user id to next. An empty
// id is passed through; the wrappers decide between demo data and 401.
func (h *Handlers) withUser(next func(w http.ResponseWriter, r *http.Request, userID string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := h.currentUser(r)
		if err != nil {
			h.sendJSONError(w, r, err)
			return
		}
		if userID != "" {
			r = r.WithContext(logging.ContextWithUserID(r.Context(), userID))
		}
		next(w, r, userID)
	}
}

func (h *Handlers) Mail() http.HandlerFunc {
	return h.withUser(func(w http.ResponseWriter, r *http.Request, userID string) {
		result, err := h.opts.Workspace.FetchMail(r.Context(), userID)
		if err != nil {
			h.sendJSONError(w, r, err)
			return
		}
		h.sendJSONResponse(w, http.StatusOK, result)
	})
}

func (h *Handlers) Files() http.HandlerFunc {
	return h.withUser(func(w http.ResponseWriter, r *http.Request, userID string) {
		result, err := h.opts.Workspace.FetchFiles(r.Context(), userID)
		if err != nil {
			h.sendJSONError(w, r, err)
			return
		}
		h.sendJSONResponse(w, http.StatusOK, result)
	})
}

func (h *Handlers) Events() http.HandlerFunc {
	return h.withUser(func(w http.ResponseWriter, r *http.Request, userID string) {
		query, err := h.parseEventQuery(r)
		if err != nil {
			h.sendJSONError(w, r, err)
			return
		}
		result, err := h.opts.Workspace.FetchEvents(r.Context(), userID, query)
		if err != nil {
			h.sendJSONError(w, r, err)
			return
		}
		h.sendJSONResponse(w, http.StatusOK, result)
	})
}

// EventsICS serves the same events as an iCalendar feed
func (h *Handlers) EventsICS() http.HandlerFunc {
	return h.withUser(func(w http.ResponseWriter, r *http.Request, userID string) {
		query, err := h.parseEventQuery(r)
		if err != nil {
			h.sendJSONError(w, r, err)
			return
		}
		result, err := h.opts.Workspace.FetchEvents(r.Context(), userID, query)
		if err != nil {
			h.sendJSONError(w, r, err)
			return
		}

		var buf bytes.Buffer
		if err := google.WriteICS(&buf, result.Items, h.now()); err != nil {
			h.sendJSONError(w, r, errors.InternalError("failed to render calendar", err))
			return
		}

		w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
		w.Header().Set("Content-Disposition", `inline; filename="events.ics"`)
		w.Header().Set("Cache-Control", "no-store")
		if result.IsFallback {
			w.Header().Set(FallbackHeader, result.FallbackReason)
		}
		_, _ = w.Write(buf.Bytes())
	})
}

type eventParams struct {
	Max  *int64 `query:"max" validate:"omitempty,min=1,max=250"`
	From string `query:"from" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

// parseEventQuery reads the optional max and from parameters
func (h *Handlers) parseEventQuery(r *http.Request) (google.EventQuery, error) {
	var query google.EventQuery
	values := r.URL.Query()

	params := eventParams{From: values.Get("from")}
	if raw := values.Get("max"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return query, errors.ValidationError("field 'max' must be a number")
		}
		params.Max = &n
	}
	if err := h.validator.ValidateStruct(params); err != nil {
		return query, err
	}

	if params.Max != nil {
		query.MaxResults = *params.Max
	}
	if params.From != "" {
		query.TimeMin, _ = time.Parse(time.RFC3339, params.From)
	}
	return query, nil
}
