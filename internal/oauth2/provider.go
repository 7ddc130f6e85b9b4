package oauth2

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"time"

	xoauth2 "golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"workspace-assistant/internal/common/errors"
)

// DefaultScopes grants identity plus read-only Gmail, Drive and Calendar access
var DefaultScopes = []string{
	"openid",
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
	"https://www.googleapis.com/auth/gmail.readonly",
	"https://www.googleapis.com/auth/drive.readonly",
	"https://www.googleapis.com/auth/calendar.readonly",
}

// Provider is the identity provider's OAuth2 surface
type Provider interface {
	// AuthCodeURL builds the consent redirect carrying state
	AuthCodeURL(state string) string
	// Exchange trades an authorization code for tokens
	Exchange(ctx context.Context, code string) (*xoauth2.Token, error)
	// Refresh mints a new access token from a refresh token
	Refresh(ctx context.Context, refreshToken string) (*xoauth2.Token, error)
}

// GoogleConfig configures a GoogleProvider
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	// Endpoint overrides google.Endpoint, used by tests
	Endpoint xoauth2.Endpoint
	// HTTPClient is used for token endpoint calls when set
	HTTPClient *http.Client
}

// GoogleProvider talks to Google's OAuth2 endpoints through x/oauth2
type GoogleProvider struct {
	config     *xoauth2.Config
	httpClient *http.Client
}

func NewGoogleProvider(cfg GoogleConfig) *GoogleProvider {
	endpoint := cfg.Endpoint
	if endpoint.TokenURL == "" {
		endpoint = google.Endpoint
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &GoogleProvider{
		config: &xoauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
		httpClient: httpClient,
	}
}

// AuthCodeURL requests offline access and forces the consent screen so a
// refresh token is issued on every sign-in.
func (p *GoogleProvider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state, xoauth2.AccessTypeOffline, xoauth2.ApprovalForce)
}

func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*xoauth2.Token, error) {
	token, err := p.config.Exchange(p.withClient(ctx), code)
	if err != nil {
		return nil, classifyTokenError("exchange authorization code", err)
	}
	return token, nil
}

func (p *GoogleProvider) Refresh(ctx context.Context, refreshToken string) (*xoauth2.Token, error) {
	source := p.config.TokenSource(p.withClient(ctx), &xoauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return nil, classifyTokenError("refresh access token", err)
	}
	return token, nil
}

func (p *GoogleProvider) withClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, xoauth2.HTTPClient, p.httpClient)
}

// fatalTokenCodes are token endpoint error codes meaning the grant itself is unusable
var fatalTokenCodes = map[string]bool{
	"invalid_grant":       true,
	"invalid_client":      true,
	"unauthorized_client": true,
}

// classifyTokenError maps token endpoint failures onto AppError types.
// Revoked grants are authentication errors; rate limiting, 5xx and
// network failures are transient; other 4xx answers are internal.
func classifyTokenError(op string, err error) error {
	var retrieveErr *xoauth2.RetrieveError
	if stderrors.As(err, &retrieveErr) {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}

		if fatalTokenCodes[retrieveErr.ErrorCode] {
			return errors.AuthError(fmt.Sprintf("provider rejected the grant during %s, re-authenticate", op)).
				WithCode(errors.CodeRefreshRevoked).
				WithCause(err).
				WithContext("provider_code", retrieveErr.ErrorCode)
		}

		switch {
		case status == http.StatusTooManyRequests || status == http.StatusRequestTimeout || status >= 500:
			return errors.TransientError(fmt.Sprintf("token endpoint returned %d", status), err)
		case status >= 400:
			msg := retrieveErr.ErrorDescription
			if msg == "" {
				msg = retrieveErr.ErrorCode
			}
			if msg == "" {
				msg = fmt.Sprintf("status %d", status)
			}
			return errors.InternalError(fmt.Sprintf("failed to %s: %s", op, msg), err)
		}
	}

	if stderrors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.As(err, &netErr) {
		return errors.TransientError(fmt.Sprintf("failed to %s", op), err)
	}
	// x/oauth2 wraps transport errors in *url.Error, which is a net.Error,
	// so what remains is a malformed response
	return errors.InternalError(fmt.Sprintf("failed to %s", op), err)
}
