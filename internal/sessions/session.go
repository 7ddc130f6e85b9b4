// Package sessions maps server-side session ids to signed-in users and
// carries the short-lived OAuth handshake state between sign-in and callback.
package sessions

import (
	"context"
	"time"

	"workspace-assistant/internal/common/errors"
	"workspace-assistant/internal/common/utils"
)

// StateTTL is how long a stored handshake state stays consumable
const StateTTL = 10 * time.Minute

type Session struct {
	ID                  string    `json:"id"`
	UserID              string    `json:"userId,omitempty"`
	OAuthState          string    `json:"oauthState,omitempty"`
	OAuthStateTimestamp int64     `json:"oauthStateTimestamp,omitempty"`
	ReturnTo            string    `json:"returnTo,omitempty"`
	CreatedAt           time.Time `json:"createdAt"`
	ExpiresAt           time.Time `json:"expiresAt"`
}

// New creates an anonymous session with a random id
func New(now time.Time, ttl time.Duration) (*Session, error) {
	id, err := utils.GenerateToken(32)
	if err != nil {
		return nil, errors.InternalError("failed to generate session id", err)
	}
	return &Session{
		ID:        id,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}, nil
}

func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// IsAuthenticated reports whether a user is signed in on this session
func (s *Session) IsAuthenticated() bool {
	return s.UserID != ""
}

// SetState records a handshake state issued at now
func (s *Session) SetState(state string, now time.Time) {
	s.OAuthState = state
	s.OAuthStateTimestamp = now.UnixMilli()
}

// ClearState forgets any pending handshake state
func (s *Session) ClearState() {
	s.OAuthState = ""
	s.OAuthStateTimestamp = 0
}

func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// ConsumeResult reports what ConsumeState found on the session
type ConsumeResult int

const (
	// StateAbsent means no handshake state was stored (or it was already consumed)
	StateAbsent ConsumeResult = iota
	// StateMatched means the stored state matched and was removed
	StateMatched
	// StateMismatch means a different state is stored; it is left in place
	StateMismatch
	// StateStale means the stored state was older than StateTTL and was removed
	StateStale
)

func (r ConsumeResult) String() string {
	switch r {
	case StateAbsent:
		return "absent"
	case StateMatched:
		return "matched"
	case StateMismatch:
		return "mismatch"
	case StateStale:
		return "stale"
	default:
		return "unknown"
	}
}

// consume applies ConsumeState to s in place and reports whether s changed
func consume(s *Session, state string, now time.Time) (ConsumeResult, bool) {
	switch {
	case s.OAuthState == "":
		return StateAbsent, false
	case now.UnixMilli()-s.OAuthStateTimestamp >= StateTTL.Milliseconds():
		s.ClearState()
		return StateStale, true
	case s.OAuthState != state:
		return StateMismatch, false
	default:
		s.ClearState()
		return StateMatched, true
	}
}

// Store persists sessions. Get on a missing or expired session returns a
// not_found AppError. Save returns once the backend acknowledged the write.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, session *Session) error
	// Delete never fails on a missing session
	Delete(ctx context.Context, id string) error
	// ConsumeState atomically removes a matching or stale handshake state
	ConsumeState(ctx context.Context, id, state string) (ConsumeResult, error)
}

func errNotFound() error {
	return errors.NotFoundError("session")
}

// IsNotFound reports whether err means the session does not exist
func IsNotFound(err error) bool {
	return errors.IsType(err, errors.ErrTypeNotFound)
}
