package handshake

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	xoauth2 "golang.org/x/oauth2"
	"google.golang.org/api/option"
	"workspace-assistant/internal/common/errors"
)

func signIDToken(t *testing.T, sub, email, name string) string {
	t.Helper()
	claims := idTokenClaims{
		Email: email,
		Name:  name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			Issuer:    "https://accounts.google.com",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return raw
}

func TestIdentityFromIDToken(t *testing.T) {
	identity, err := IdentityFromIDToken(signIDToken(t, "1089", "ada@example.com", "Ada Lovelace"))
	require.NoError(t, err)
	assert.Equal(t, &Identity{ID: "1089", Email: "ada@example.com", Name: "Ada Lovelace"}, identity)
}

func TestIdentityFromIDToken_Rejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not a jwt", "opaque-token"},
		{"bad payload", "eyJhbGciOiJIUzI1NiJ9.!!!.sig"},
		{"missing name", signIDToken(t, "1089", "ada@example.com", "")},
		{"missing subject", signIDToken(t, "", "ada@example.com", "Ada")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := IdentityFromIDToken(tt.raw)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrTypeValidation))
		})
	}
}

func TestUserinfoFetcher(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer ya29.fresh", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"id":    "1089",
			"email": "ada@example.com",
			"name":  "Ada Lovelace",
		})
	}))
	defer server.Close()

	fetcher := NewUserinfoFetcher(option.WithEndpoint(server.URL + "/"))
	identity, err := fetcher.FetchProfile(context.Background(), &xoauth2.Token{AccessToken: "ya29.fresh", TokenType: "Bearer"})
	require.NoError(t, err)
	assert.True(t, identity.Complete())
	assert.Equal(t, "ada@example.com", identity.Email)
}

func TestUserinfoFetcher_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":503,"message":"backend"}}`, http.StatusServiceUnavailable)
	}))
	defer server.Close()

	fetcher := NewUserinfoFetcher(option.WithEndpoint(server.URL + "/"))
	_, err := fetcher.FetchProfile(context.Background(), &xoauth2.Token{AccessToken: "ya29.fresh"})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeTransient))
}

func TestUserinfoFetcher_ClassifiesRejections(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		reason   string
		wantType errors.ErrorType
		wantCode string
	}{
		{"revoked token", http.StatusUnauthorized, "authError", errors.ErrTypeAuth, errors.CodeTokenRejected},
		{"missing scope", http.StatusForbidden, "insufficientPermissions", errors.ErrTypePermission, errors.CodeInsufficientScope},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_ = json.NewEncoder(w).Encode(map[string]interface{}{
					"error": map[string]interface{}{
						"code":    tt.status,
						"message": "Request had insufficient authentication scopes.",
						"errors":  []map[string]string{{"reason": tt.reason}},
					},
				})
			}))
			defer server.Close()

			fetcher := NewUserinfoFetcher(option.WithEndpoint(server.URL + "/"))
			_, err := fetcher.FetchProfile(context.Background(), &xoauth2.Token{AccessToken: "ya29.fresh"})
			require.Error(t, err)
			assert.True(t, errors.IsType(err, tt.wantType))
			assert.False(t, errors.IsType(err, errors.ErrTypeTransient))
			assert.Equal(t, tt.wantCode, errors.GetCode(err))
		})
	}
}
