package oauth2

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode"

	xoauth2 "golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
	"workspace-assistant/internal/circuitbreaker"
	"workspace-assistant/internal/common/errors"
	"workspace-assistant/internal/common/logging"
	"workspace-assistant/internal/common/utils"
	"workspace-assistant/internal/credentials"
	"workspace-assistant/internal/locks"
)

const maxUserIDLength = 256

// Options tunes the Manager. Zero values take the DefaultOptions value.
type Options struct {
	// RefreshBuffer is how long before expiry a token is refreshed
	RefreshBuffer time.Duration
	// DefaultTokenTTL is assumed when the provider reports no expiry
	DefaultTokenTTL time.Duration
	// RefreshTimeout bounds one shared refresh, retries included
	RefreshTimeout time.Duration
	// Retry controls attempts against the token endpoint
	Retry utils.RetryConfig
	// Locks serialises refreshes across instances when set
	Locks   locks.LockManager
	LockTTL time.Duration
	// Breaker guards the token endpoint when set
	Breaker *circuitbreaker.GoBreakerAdapter
	Logger  logging.Logger
	Now     func() time.Time
}

// DefaultOptions returns a 5 minute buffer, 1 hour default TTL and three
// refresh attempts with 2s/4s backoff.
func DefaultOptions() Options {
	return Options{
		RefreshBuffer:   5 * time.Minute,
		DefaultTokenTTL: time.Hour,
		RefreshTimeout:  45 * time.Second,
		Retry:           utils.DefaultRetryConfig(),
		LockTTL:         30 * time.Second,
	}
}

// Manager returns ready-to-use clients for stored users, refreshing their
// access tokens when needed. It is safe for concurrent use.
type Manager struct {
	store    credentials.Store
	provider Provider
	opts     Options
	logger   logging.Logger
	now      func() time.Time
	flights  singleflight.Group
}

func NewManager(store credentials.Store, provider Provider, opts Options) *Manager {
	defaults := DefaultOptions()
	if opts.RefreshBuffer <= 0 {
		opts.RefreshBuffer = defaults.RefreshBuffer
	}
	if opts.DefaultTokenTTL <= 0 {
		opts.DefaultTokenTTL = defaults.DefaultTokenTTL
	}
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = defaults.RefreshTimeout
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = defaults.Retry
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = defaults.LockTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Manager{
		store:    store,
		provider: provider,
		opts:     opts,
		logger:   logger,
		now:      now,
	}
}

// Client carries a verified access token for one user
type Client struct {
	userID string
	token  *xoauth2.Token
}

func (c *Client) UserID() string {
	return c.userID
}

func (c *Client) AccessToken() string {
	return c.token.AccessToken
}

func (c *Client) ExpiresAt() time.Time {
	return c.token.Expiry
}

// Token returns a copy of the x/oauth2 token
func (c *Client) Token() *xoauth2.Token {
	t := *c.token
	return &t
}

// HTTPClient returns an http.Client that sends the access token as a bearer
// credential. It never refreshes on its own.
func (c *Client) HTTPClient(ctx context.Context) *http.Client {
	return xoauth2.NewClient(ctx, xoauth2.StaticTokenSource(c.Token()))
}

// GetClientForUser returns a client whose access token is valid for at
// least the refresh buffer.
func (m *Manager) GetClientForUser(ctx context.Context, userID string) (*Client, error) {
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}

	record, err := m.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	if !record.NeedsRefresh(m.now(), m.opts.RefreshBuffer) {
		return m.clientFor(record)
	}
	if !record.HasRefreshToken() {
		return nil, errNoRefreshToken(userID)
	}

	record, err = m.refresh(ctx, userID, "")
	if err != nil {
		return nil, err
	}
	return m.clientFor(record)
}

// ForceRefresh replaces an access token the provider rejected. When the
// stored token already differs from rejectedToken and is fresh, it is
// returned without calling the provider.
func (m *Manager) ForceRefresh(ctx context.Context, userID, rejectedToken string) (*Client, error) {
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}
	if rejectedToken == "" {
		return nil, errors.ValidationError("rejected token is required")
	}

	record, err := m.refresh(ctx, userID, rejectedToken)
	if err != nil {
		return nil, err
	}
	if record.AccessToken == rejectedToken {
		// Joined a flight that found the rejected token still fresh
		if record, err = m.refresh(ctx, userID, rejectedToken); err != nil {
			return nil, err
		}
	}
	return m.clientFor(record)
}

func (m *Manager) load(ctx context.Context, userID string) (*credentials.Record, error) {
	record, err := m.store.Find(ctx, userID)
	if err != nil {
		if credentials.IsNotFound(err) {
			return nil, errors.AuthError("no credentials found, please sign in again").
				WithCode(errors.CodeNoCredential).
				WithContext("user_id", userID)
		}
		return nil, err
	}
	return record, nil
}

// refresh joins or starts the single in-flight refresh for userID. The
// flight runs detached from ctx; ctx only bounds this caller's wait.
func (m *Manager) refresh(ctx context.Context, userID, rejectedToken string) (*credentials.Record, error) {
	ch := m.flights.DoChan(userID, func() (interface{}, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.opts.RefreshTimeout)
		defer cancel()
		return m.doRefresh(flightCtx, userID, rejectedToken)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*credentials.Record).Clone(), nil
	case <-ctx.Done():
		return nil, errors.TimeoutError("token refresh").WithCause(ctx.Err())
	}
}

func (m *Manager) doRefresh(ctx context.Context, userID, rejectedToken string) (*credentials.Record, error) {
	logger := m.logger.WithFields(logging.String("user_id", userID))

	if m.opts.Locks != nil {
		lock, err := m.opts.Locks.AcquireLock(ctx, "refresh:"+userID, m.opts.LockTTL)
		if err != nil {
			// Refreshing without the lock only risks a redundant provider call
			logger.Warn("Refresh lock unavailable, refreshing without it", logging.Err(err))
		} else {
			defer lock.Release(context.WithoutCancel(ctx))
		}
	}

	// Another caller or instance may have refreshed while this one waited
	record, err := m.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := m.now()
	if !record.NeedsRefresh(now, m.opts.RefreshBuffer) && (rejectedToken == "" || record.AccessToken != rejectedToken) {
		logger.Debug("Stored token already fresh, skipping refresh")
		return record, nil
	}
	if !record.HasRefreshToken() {
		return nil, errNoRefreshToken(userID)
	}

	token, err := m.callRefresh(ctx, logger, record.RefreshToken)
	if err != nil {
		if errors.IsFatalAuth(err) {
			logger.Warn("Refresh token rejected", logging.Err(err))
		} else {
			logger.Error("Token refresh failed", err)
		}
		return nil, err
	}

	updated, err := ApplyToken(record, token, m.now(), m.opts.DefaultTokenTTL)
	if err != nil {
		return nil, err
	}
	if err := m.store.Upsert(ctx, updated); err != nil {
		logger.Error("Failed to persist refreshed credential", err)
		return nil, err
	}

	logger.Info("Access token refreshed",
		logging.Time("expires_at", updated.Expiry()),
		logging.Bool("refresh_token_rotated", updated.RefreshToken != record.RefreshToken),
	)
	return updated, nil
}

func (m *Manager) callRefresh(ctx context.Context, logger logging.Logger, refreshToken string) (*xoauth2.Token, error) {
	retry := m.opts.Retry
	retry.RetryableErrors = errors.Retryable
	retry.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Warn("Token refresh attempt failed, retrying",
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.Err(err),
		)
	}

	var token *xoauth2.Token
	err := utils.RetryWithBackoff(ctx, retry, func() error {
		call := func() error {
			var err error
			token, err = m.provider.Refresh(ctx, refreshToken)
			return err
		}
		if m.opts.Breaker != nil {
			return m.opts.Breaker.Execute(ctx, call)
		}
		return call()
	})
	if err != nil {
		if _, ok := errors.As(err); ok && !errors.Retryable(err) {
			return nil, err
		}
		return nil, errors.TransientError("token endpoint temporarily unavailable", err)
	}
	return token, nil
}

func (m *Manager) clientFor(record *credentials.Record) (*Client, error) {
	if err := VerifyAccessToken(record.AccessToken); err != nil {
		return nil, err
	}
	tokenType := record.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return &Client{
		userID: record.UserID,
		token: &xoauth2.Token{
			AccessToken:  record.AccessToken,
			TokenType:    tokenType,
			RefreshToken: record.RefreshToken,
			Expiry:       record.Expiry(),
		},
	}, nil
}

// ApplyToken merges a token endpoint response into record and returns the
// new record. The refresh token is kept when not rotated.
func ApplyToken(record *credentials.Record, token *xoauth2.Token, now time.Time, defaultTTL time.Duration) (*credentials.Record, error) {
	if token == nil {
		return nil, errMalformed("token endpoint returned no token")
	}
	if err := VerifyAccessToken(token.AccessToken); err != nil {
		return nil, err
	}

	updated := record.Clone()
	updated.AccessToken = token.AccessToken
	updated.ExpiresAt = ExpiryFrom(token, now, defaultTTL).UnixMilli()
	if token.RefreshToken != "" {
		updated.RefreshToken = token.RefreshToken
	}
	if token.TokenType != "" {
		updated.TokenType = token.Type()
	}
	if scope, ok := token.Extra("scope").(string); ok && scope != "" {
		updated.Scope = scope
	}
	return updated, nil
}

// ExpiryFrom picks the token's absolute expiry, then expires_in, then
// now+defaultTTL.
func ExpiryFrom(token *xoauth2.Token, now time.Time, defaultTTL time.Duration) time.Time {
	switch {
	case !token.Expiry.IsZero():
		return token.Expiry
	case token.ExpiresIn > 0:
		return now.Add(time.Duration(token.ExpiresIn) * time.Second)
	default:
		return now.Add(defaultTTL)
	}
}

// VerifyAccessToken rejects empty or whitespace-bearing tokens
func VerifyAccessToken(token string) error {
	if token == "" {
		return errMalformed("access token is empty")
	}
	for _, r := range token {
		if r <= ' ' || r == 0x7f {
			return errMalformed("access token contains invalid characters")
		}
	}
	return nil
}

// ValidateUserID rejects identifiers that cannot be a provider subject
func ValidateUserID(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return errors.ValidationError("user id is required")
	}
	if len(userID) > maxUserIDLength {
		return errors.ValidationError(fmt.Sprintf("user id exceeds %d characters", maxUserIDLength))
	}
	for _, r := range userID {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return errors.ValidationError("user id contains invalid characters")
		}
	}
	return nil
}

func errNoRefreshToken(userID string) error {
	return errors.AuthError("access token expired and no refresh token is stored, re-authenticate").
		WithCode(errors.CodeNoRefreshToken).
		WithContext("user_id", userID)
}

func errMalformed(msg string) error {
	return errors.AuthError(msg).WithCode(errors.CodeMalformedToken)
}
