// Package oauth2 hands out authenticated Google API clients per user.
//
// # Overview
//
// The Manager loads the user's credential record, decides whether the access
// token is still usable, refreshes it through the provider's token endpoint
// when it is not, persists the refreshed record and only then returns a
// Client carrying the token.
//
// # Refresh policy
//
// A token is refreshed when it is expired or will expire within the refresh
// buffer (5 minutes by default). Refresh attempts are bounded: three tries
// with 2s and 4s backoff. Responses saying the refresh token itself is
// invalid (invalid_grant, invalid_client, unauthorized_client) end the
// attempt immediately with an authentication error.
//
// Concurrent callers for the same user share one in-flight refresh. A caller
// that gives up waiting does not cancel the refresh for the others. With a
// distributed lock manager configured, refreshes are also serialised across
// instances, and the record is re-read under the lock so a token refreshed
// elsewhere is reused instead of minted again.
//
// # Usage
//
//	provider := oauth2.NewGoogleProvider(oauth2.GoogleConfig{
//	    ClientID:     cfg.GoogleClientID,
//	    ClientSecret: cfg.GoogleClientSecret,
//	    RedirectURL:  cfg.GoogleRedirectURL,
//	    Scopes:       oauth2.DefaultScopes,
//	})
//	manager := oauth2.NewManager(store, provider, oauth2.DefaultOptions())
//
//	client, err := manager.GetClientForUser(ctx, userID)
//	if errors.IsFatalAuth(err) {
//	    // send the user back through sign-in
//	}
//	svc, err := gmail.NewService(ctx, option.WithHTTPClient(client.HTTPClient(ctx)))
//
// # Errors
//
// All errors are *errors.AppError values:
//
//   - validation: malformed user id, rejected before any I/O
//   - authentication: no record, no refresh token, revoked refresh token,
//     malformed token after refresh
//   - connection: credential store unreachable
//   - transient: token endpoint unavailable after retries, or circuit open
package oauth2
