package handlers

import (
	"net/http"

	"workspace-assistant/internal/common/logging"
	"workspace-assistant/internal/handshake"
	"workspace-assistant/internal/sessions"
)

// SignIn redirects to the consent page. A browser without a session gets
// a fresh anonymous one so the state can be cross-checked on return.
func (h *Handlers) SignIn(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	if id == "" {
		session, err := sessions.New(h.now(), h.opts.SessionTTL)
		if err != nil {
			h.sendJSONError(w, r, err)
			return
		}
		id = session.ID
		h.setSessionCookie(w, id)
	}

	consentURL, err := h.opts.Handshake.StartHandshake(r.Context(), id, r.URL.Query().Get("return_to"))
	if err != nil {
		h.sendJSONError(w, r, err)
		return
	}
	http.Redirect(w, r, consentURL, http.StatusFound)
}

// Callback completes the handshake and replaces the session cookie
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if providerErr := query.Get("error"); providerErr != "" {
		logging.WithContext(r.Context()).Warn("Consent declined", logging.String("provider_error", providerErr))
		http.Redirect(w, r, "/?signin=denied", http.StatusFound)
		return
	}

	result, err := h.opts.Handshake.CompleteHandshake(r.Context(), sessionID(r), query.Get("code"), query.Get("state"))
	if err != nil {
		h.sendJSONError(w, r, err)
		return
	}

	h.setSessionCookie(w, result.SessionID)
	http.Redirect(w, r, handshake.SafeReturnTo(result.ReturnTo), http.StatusFound)
}

func (h *Handlers) SignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.opts.Handshake.SignOut(r.Context(), sessionID(r)); err != nil {
		h.sendJSONError(w, r, err)
		return
	}
	h.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}
