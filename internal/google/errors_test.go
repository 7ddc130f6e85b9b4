package google

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"
	"workspace-assistant/internal/common/errors"
)

func TestClassify(t *testing.T) {
	apiErr := func(code int, reason, message string) error {
		e := &googleapi.Error{Code: code, Message: message}
		if reason != "" {
			e.Errors = []googleapi.ErrorItem{{Reason: reason, Message: message}}
		}
		return e
	}

	tests := []struct {
		name     string
		err      error
		wantType errors.ErrorType
		wantCode string
	}{
		{"bad request", apiErr(400, "invalid", "Invalid Value"), errors.ErrTypeValidation, errors.CodeBadRequest},
		{"unauthorized", apiErr(401, "authError", "Invalid Credentials"), errors.ErrTypeAuth, errors.CodeTokenRejected},
		{"api disabled", apiErr(403, "accessNotConfigured", "Gmail API has not been used"), errors.ErrTypePermission, errors.CodeAPINotEnabled},
		{"api disabled by message", apiErr(403, "", "Calendar API has not been used in project 42 before or it is disabled"), errors.ErrTypePermission, errors.CodeAPINotEnabled},
		{"insufficient scope", apiErr(403, "insufficientPermissions", "Insufficient Permission"), errors.ErrTypePermission, errors.CodeInsufficientScope},
		{"scope by message", apiErr(403, "", "Request had insufficient authentication scopes."), errors.ErrTypePermission, errors.CodeInsufficientScope},
		{"forbidden", apiErr(403, "forbidden", "Forbidden"), errors.ErrTypePermission, errors.CodePermissionDenied},
		{"user rate limit", apiErr(403, "userRateLimitExceeded", "User Rate Limit Exceeded"), errors.ErrTypeTransient, ""},
		{"request timeout", apiErr(408, "", ""), errors.ErrTypeTransient, ""},
		{"too many requests", apiErr(429, "rateLimitExceeded", "Rate Limit Exceeded"), errors.ErrTypeTransient, ""},
		{"internal", apiErr(500, "backendError", "Backend Error"), errors.ErrTypeTransient, ""},
		{"bad gateway", apiErr(502, "", ""), errors.ErrTypeTransient, ""},
		{"unavailable", apiErr(503, "", ""), errors.ErrTypeTransient, ""},
		{"gateway timeout", apiErr(504, "", ""), errors.ErrTypeTransient, ""},
		{"not found", apiErr(404, "notFound", "Not Found"), errors.ErrTypeInternal, ""},
		{"network", &net.OpError{Op: "dial", Net: "tcp", Err: fmt.Errorf("connection refused")}, errors.ErrTypeTransient, ""},
		{"deadline", context.DeadlineExceeded, errors.ErrTypeTimeout, ""},
		{"unknown", fmt.Errorf("unexpected EOF"), errors.ErrTypeInternal, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Classify(ServiceGmail, tt.err)
			assert.Equal(t, tt.wantType, errors.GetType(err))
			assert.Equal(t, tt.wantCode, errors.GetCode(err))
		})
	}
}

func TestClassify_KeepsCancellation(t *testing.T) {
	assert.ErrorIs(t, Classify(ServiceDrive, context.Canceled), context.Canceled)
	assert.Nil(t, Classify(ServiceDrive, nil))
}

func TestApiMessage(t *testing.T) {
	assert.Equal(t, "top", apiMessage(&googleapi.Error{Code: 500, Message: "top"}))
	assert.Equal(t, "item", apiMessage(&googleapi.Error{Code: 500, Errors: []googleapi.ErrorItem{{Message: "item"}}}))
	assert.Equal(t, "raw body", apiMessage(&googleapi.Error{Code: 500, Body: " raw body "}))
	assert.Equal(t, "Service Unavailable", apiMessage(&googleapi.Error{Code: 503}))
	assert.Equal(t, "unknown error", apiMessage(&googleapi.Error{Code: 599}))
}

func TestRetryAfter(t *testing.T) {
	header := http.Header{}
	header.Set("Retry-After", "3")
	assert.Equal(t, 3*time.Second, retryAfter(&googleapi.Error{Code: 429, Header: header}))
	assert.Zero(t, retryAfter(&googleapi.Error{Code: 429}))
	assert.Zero(t, retryAfter(fmt.Errorf("plain")))
}

func TestFallbackReason(t *testing.T) {
	tests := []struct {
		err      error
		reason   string
		maskable bool
	}{
		{errors.ConnectionError("down", nil), ReasonStoreUnavailable, true},
		{errors.TransientError("later", nil), ReasonProviderUnavailable, true},
		{errors.TimeoutError("call"), ReasonProviderUnavailable, true},
		{errors.PermissionError("no", errors.CodeAPINotEnabled), ReasonPermissionDenied, true},
		{errors.InternalError("odd", nil), ReasonProviderError, true},
		{errors.AuthError("sign in"), "", false},
		{errors.ValidationError("bad"), "", false},
		{context.Canceled, "", false},
	}
	for _, tt := range tests {
		reason, maskable := fallbackReason(tt.err)
		assert.Equal(t, tt.reason, reason, tt.err.Error())
		assert.Equal(t, tt.maskable, maskable, tt.err.Error())
	}
}
