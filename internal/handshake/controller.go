package handshake

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	xoauth2 "golang.org/x/oauth2"
	"workspace-assistant/internal/common/errors"
	"workspace-assistant/internal/common/logging"
	"workspace-assistant/internal/credentials"
	"workspace-assistant/internal/oauth2"
	"workspace-assistant/internal/sessions"
)

// Stages of a handshake, recorded on HandshakeError
const (
	StageCallback = "callback"
	StageState    = "state"
	StageExchange = "exchange"
	StageProfile  = "profile"
	StagePersist  = "persist"
	StageSession  = "session"
)

// HandshakeError reports the stage at which a callback failed
type HandshakeError struct {
	Stage string
	Err   error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("oauth handshake failed at %s: %v", e.Stage, e.Err)
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}

func fail(stage string, err error) error {
	return &HandshakeError{Stage: stage, Err: err}
}

// Result is what a completed handshake yields to the caller
type Result struct {
	UserID    string
	Email     string
	Name      string
	SessionID string
	ReturnTo  string
}

type Options struct {
	Signer      *StateSigner
	Provider    oauth2.Provider
	Credentials credentials.Store
	Sessions    sessions.Store
	Replay      ReplayCache
	Profiles    ProfileFetcher
	// SessionTTL is the lifetime of the session created on sign-in
	SessionTTL      time.Duration
	DefaultTokenTTL time.Duration
	Logger          logging.Logger
	Now             func() time.Time
}

// Controller drives sign-in, callback and sign-out
type Controller struct {
	opts   Options
	logger logging.Logger
	now    func() time.Time
}

func NewController(opts Options) (*Controller, error) {
	switch {
	case opts.Signer == nil:
		return nil, errors.ConfigError("handshake needs a state signer")
	case opts.Provider == nil:
		return nil, errors.ConfigError("handshake needs an oauth provider")
	case opts.Credentials == nil:
		return nil, errors.ConfigError("handshake needs a credential store")
	case opts.Sessions == nil:
		return nil, errors.ConfigError("handshake needs a session store")
	}
	if opts.Replay == nil {
		opts.Replay = NewMemoryReplayCache()
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 24 * time.Hour
	}
	if opts.DefaultTokenTTL <= 0 {
		opts.DefaultTokenTTL = time.Hour
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Controller{opts: opts, logger: logger, now: now}, nil
}

// StartHandshake returns the consent URL. The signed state in it is the
// primary check; the copy stored on the session is secondary, so a failure
// to save it is logged and ignored.
func (c *Controller) StartHandshake(ctx context.Context, sessionID, returnTo string) (string, error) {
	state, err := c.opts.Signer.Sign()
	if err != nil {
		return "", err
	}

	if sessionID != "" {
		c.rememberState(ctx, sessionID, state, SafeReturnTo(returnTo))
	}

	c.logger.WithContext(ctx).Debug("Issued oauth state", logging.Bool("session_copy", sessionID != ""))
	return c.opts.Provider.AuthCodeURL(state.Token), nil
}

func (c *Controller) rememberState(ctx context.Context, sessionID string, state *State, returnTo string) {
	now := c.now()
	session, err := c.opts.Sessions.Get(ctx, sessionID)
	if err != nil {
		if !sessions.IsNotFound(err) {
			c.logger.WithContext(ctx).Warn("Session unavailable, relying on signed state only", logging.Err(err))
			return
		}
		session = &sessions.Session{ID: sessionID, CreatedAt: now, ExpiresAt: now.Add(c.opts.SessionTTL)}
	}

	session.SetState(state.Token, state.IssuedAt)
	session.ReturnTo = returnTo
	if err := c.opts.Sessions.Save(ctx, session); err != nil {
		c.logger.WithContext(ctx).Warn("Failed to store oauth state on session", logging.Err(err))
	}
}

// CompleteHandshake verifies the callback and signs the user in. The old
// session id is replaced by a fresh one carrying the user.
func (c *Controller) CompleteHandshake(ctx context.Context, sessionID, code, state string) (*Result, error) {
	logger := c.logger.WithContext(ctx)

	// A missing state takes the same path as a forged one
	verified, err := c.opts.Signer.Verify(state)
	if err != nil {
		logger.Warn("Rejected oauth state", logging.Err(err))
		return nil, fail(StageState, err)
	}
	if code == "" {
		return nil, fail(StageCallback, errors.ValidationError("callback requires an authorization code"))
	}

	remaining := StateLifetime - c.now().Sub(verified.IssuedAt)
	claimed, err := c.opts.Replay.Claim(ctx, verified.Nonce, remaining)
	if err != nil {
		return nil, fail(StageState, err)
	}
	if !claimed {
		logger.Warn("Replayed oauth state")
		return nil, fail(StageState, ErrInvalidState)
	}

	returnTo := c.consumeSessionState(ctx, sessionID, state)

	token, err := c.opts.Provider.Exchange(ctx, code)
	if err != nil {
		logger.Error("Authorization code exchange failed", err)
		return nil, fail(StageExchange, err)
	}

	identity, err := c.resolveIdentity(ctx, token)
	if err != nil {
		logger.Error("Failed to resolve user profile", err)
		return nil, fail(StageProfile, err)
	}

	record, err := c.persist(ctx, identity, token)
	if err != nil {
		logger.Error("Failed to persist credential", err)
		return nil, fail(StagePersist, err)
	}

	session, err := sessions.New(c.now(), c.opts.SessionTTL)
	if err != nil {
		return nil, fail(StageSession, err)
	}
	session.UserID = record.UserID
	if err := c.opts.Sessions.Save(ctx, session); err != nil {
		logger.Error("Failed to establish session", err)
		return nil, fail(StageSession, err)
	}
	if sessionID != "" {
		if err := c.opts.Sessions.Delete(ctx, sessionID); err != nil {
			logger.Warn("Failed to drop pre-login session", logging.Err(err))
		}
	}

	logger.Info("User signed in",
		logging.String("user_id", record.UserID),
		logging.Bool("has_refresh_token", record.HasRefreshToken()),
	)
	return &Result{
		UserID:    record.UserID,
		Email:     record.Email,
		Name:      record.Name,
		SessionID: session.ID,
		ReturnTo:  returnTo,
	}, nil
}

// consumeSessionState cross-checks the session copy when there is one. The
// signed state already verified, so only the outcome is logged.
func (c *Controller) consumeSessionState(ctx context.Context, sessionID, state string) string {
	returnTo := "/"
	if sessionID == "" {
		return returnTo
	}
	logger := c.logger.WithContext(ctx)

	if session, err := c.opts.Sessions.Get(ctx, sessionID); err == nil && session.ReturnTo != "" {
		returnTo = SafeReturnTo(session.ReturnTo)
	}

	result, err := c.opts.Sessions.ConsumeState(ctx, sessionID, state)
	if err != nil {
		logger.Warn("Could not consume session copy of oauth state", logging.Err(err))
		return returnTo
	}
	if result != sessions.StateMatched {
		logger.Debug("Session copy of oauth state did not match", logging.String("result", result.String()))
	}
	return returnTo
}

func (c *Controller) resolveIdentity(ctx context.Context, token *xoauth2.Token) (*Identity, error) {
	if raw, ok := token.Extra("id_token").(string); ok && raw != "" {
		identity, err := IdentityFromIDToken(raw)
		if err == nil {
			return identity, nil
		}
		c.logger.WithContext(ctx).Debug("Inline id token unusable, fetching profile", logging.Err(err))
	}

	if c.opts.Profiles == nil {
		return nil, errors.AuthError("no usable id token and no profile endpoint configured")
	}
	identity, err := c.opts.Profiles.FetchProfile(ctx, token)
	if err != nil {
		return nil, err
	}
	if !identity.Complete() {
		return nil, errors.AuthError("provider profile lacks id, email or name")
	}
	return identity, nil
}

// persist upserts the credential keyed by email so a returning user keeps
// their user id, and keeps the stored refresh token when consent did not
// issue a new one.
func (c *Controller) persist(ctx context.Context, identity *Identity, token *xoauth2.Token) (*credentials.Record, error) {
	base := &credentials.Record{
		UserID:    identity.ID,
		TokenType: "Bearer",
	}

	existing, err := c.opts.Credentials.FindByEmail(ctx, identity.Email)
	switch {
	case err == nil:
		base = existing
	case !credentials.IsNotFound(err):
		return nil, err
	}

	base.Email = credentials.NormalizeEmail(identity.Email)
	base.Name = identity.Name

	record, err := oauth2.ApplyToken(base, token, c.now(), c.opts.DefaultTokenTTL)
	if err != nil {
		return nil, err
	}
	if err := c.opts.Credentials.Upsert(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// SignOut destroys the session. A missing session is not an error.
func (c *Controller) SignOut(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := c.opts.Sessions.Delete(ctx, sessionID); err != nil && !sessions.IsNotFound(err) {
		return err
	}
	return nil
}

// SafeReturnTo keeps only same-site absolute paths
func SafeReturnTo(returnTo string) string {
	if !strings.HasPrefix(returnTo, "/") || strings.HasPrefix(returnTo, "//") || strings.HasPrefix(returnTo, "/\\") {
		return "/"
	}
	return returnTo
}

// IsStateError reports whether err is a rejected or expired state
func IsStateError(err error) bool {
	return stderrors.Is(err, ErrInvalidState) || stderrors.Is(err, ErrStateExpired)
}
