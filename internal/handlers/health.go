package handlers

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"workspace-assistant/internal/circuitbreaker"
)

// HealthResponse reports each backing resource by name
type HealthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	CheckedAt time.Time         `json:"checkedAt"`

	// Breakers reports the outbound circuit breakers; an open one degrades
	// the service
	Breakers []circuitbreaker.Stats `json:"breakers,omitempty"`
}

// Health pings every checker concurrently and reports breaker state. A
// failed check or an open breaker degrades the report to 503.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	results := make([]string, len(h.opts.Checkers))
	var g errgroup.Group
	for i, checker := range h.opts.Checkers {
		g.Go(func() error {
			if err := checker.Health(ctx); err != nil {
				results[i] = err.Error()
				return nil
			}
			results[i] = "ok"
			return nil
		})
	}
	_ = g.Wait()

	resp := HealthResponse{Status: "ok", Checks: make(map[string]string, len(results)), CheckedAt: h.now().UTC()}
	status := http.StatusOK
	for i, checker := range h.opts.Checkers {
		resp.Checks[checker.Name()] = results[i]
		if results[i] != "ok" {
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
	}
	if h.opts.Breakers != nil {
		resp.Breakers = h.opts.Breakers.AllStats()
		for _, stats := range resp.Breakers {
			if stats.Open {
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
			}
		}
	}
	h.sendJSONResponse(w, status, resp)
}
