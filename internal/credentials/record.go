// Package credentials persists one OAuth credential record per user.
//
// A record is always written whole: the access token and its expiry
// instant travel together so a reader never sees one without the other.
// Records are created by the sign-in handshake, mutated only by the token
// refresh path and never deleted automatically.
package credentials

import (
	"strings"
	"time"

	"workspace-assistant/internal/common/errors"
)

// Record is the persisted token set for one user.
type Record struct {
	UserID       string `json:"userId"`
	Email        string `json:"email"`
	Name         string `json:"name,omitempty"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	Scope        string `json:"scope"`
	TokenType    string `json:"tokenType"`
	// ExpiresAt is the epoch millisecond at which AccessToken stops working
	ExpiresAt int64 `json:"expiresAt"`
	UpdatedAt int64 `json:"updatedAt,omitempty"`
}

// IsExpired reports whether now is at or past the expiry instant.
func (r *Record) IsExpired(now time.Time) bool {
	return now.UnixMilli() >= r.ExpiresAt
}

// NeedsRefresh reports whether the access token is expired or will expire
// within buffer of now.
func (r *Record) NeedsRefresh(now time.Time, buffer time.Duration) bool {
	return r.IsExpired(now) || r.ExpiresAt-now.UnixMilli() < buffer.Milliseconds()
}

// HasRefreshToken reports whether a refresh token is stored
func (r *Record) HasRefreshToken() bool {
	return strings.TrimSpace(r.RefreshToken) != ""
}

// Expiry returns ExpiresAt as a time.Time
func (r *Record) Expiry() time.Time {
	return time.UnixMilli(r.ExpiresAt)
}

// Scopes splits the space-delimited scope string
func (r *Record) Scopes() []string {
	return strings.Fields(r.Scope)
}

// Clone returns a copy that can be mutated independently
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// Validate checks the fields every stored record must carry
func (r *Record) Validate() error {
	switch {
	case r == nil:
		return errors.ValidationError("credential record is nil")
	case strings.TrimSpace(r.UserID) == "":
		return errors.ValidationError("credential record has no user id")
	case strings.TrimSpace(r.Email) == "":
		return errors.ValidationError("credential record has no email")
	case strings.TrimSpace(r.AccessToken) == "":
		return errors.ValidationError("credential record has no access token")
	case r.ExpiresAt <= 0:
		return errors.ValidationError("credential record has no expiry")
	}
	return nil
}

// NormalizeEmail lowercases and trims an address for use as a lookup key
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
