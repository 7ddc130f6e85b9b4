package handshake

import (
	"context"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	xoauth2 "golang.org/x/oauth2"
	googleoauth2 "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
	"workspace-assistant/internal/common/errors"
	"workspace-assistant/internal/google"
)

// Identity is the provider-asserted profile of the signed-in user
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Complete reports whether id, email and name are all present
func (i *Identity) Complete() bool {
	return i != nil && i.ID != "" && i.Email != "" && i.Name != ""
}

type idTokenClaims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

// IdentityFromIDToken decodes the claims of an ID token returned inline by
// the token endpoint. The signature is not checked: the token arrived on the
// TLS response to our own code exchange.
func IdentityFromIDToken(raw string) (*Identity, error) {
	if strings.Count(raw, ".") != 2 {
		return nil, errors.ValidationError("id token must have three segments")
	}

	claims := &idTokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, errors.ValidationError("id token is not decodable").WithCause(err)
	}

	identity := &Identity{ID: claims.Subject, Email: claims.Email, Name: claims.Name}
	if !identity.Complete() {
		return nil, errors.ValidationError("id token lacks sub, email or name")
	}
	return identity, nil
}

// ProfileFetcher resolves the user's identity with an explicit API call
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, token *xoauth2.Token) (*Identity, error)
}

// UserinfoFetcher calls Google's oauth2/v2 userinfo endpoint
type UserinfoFetcher struct {
	options []option.ClientOption
}

// NewUserinfoFetcher takes extra client options, such as option.WithEndpoint in tests
func NewUserinfoFetcher(opts ...option.ClientOption) *UserinfoFetcher {
	return &UserinfoFetcher{options: opts}
}

func (f *UserinfoFetcher) FetchProfile(ctx context.Context, token *xoauth2.Token) (*Identity, error) {
	opts := append([]option.ClientOption{option.WithTokenSource(xoauth2.StaticTokenSource(token))}, f.options...)
	svc, err := googleoauth2.NewService(ctx, opts...)
	if err != nil {
		return nil, errors.InternalError("failed to create userinfo client", err)
	}

	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, google.Classify(google.ServiceUserinfo, err)
	}
	return &Identity{ID: info.Id, Email: info.Email, Name: info.Name}, nil
}
