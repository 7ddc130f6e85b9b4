package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appError *AppError
		want     string
	}{
		{
			name:     "basic error",
			appError: ValidationError("user identifier is empty"),
			want:     "validation: user identifier is empty",
		},
		{
			name:     "error with code",
			appError: AuthError("please sign in again").WithCode(CodeNoCredential),
			want:     "authentication: please sign in again: code=no_credential",
		},
		{
			name:     "error with cause",
			appError: ConnectionError("credential store unreachable", errors.New("dial tcp: refused")),
			want:     "connection: credential store unreachable: cause=dial tcp: refused",
		},
		{
			name: "context keys are sorted",
			appError: TransientError("gmail temporarily unavailable", nil).
				WithContext("status", 429).
				WithContext("attempts", 4),
			want: "transient: gmail temporarily unavailable: context={attempts=4, status=429}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.appError.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := InternalError("wrapped", cause)

	assert.Equal(t, cause, err.Unwrap())
	assert.ErrorIs(t, err, cause)
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		err      *AppError
		wantType ErrorType
		wantCode string
	}{
		{ConfigError("bad"), ErrTypeConfig, ""},
		{PermissionError("enable the Gmail API", CodeAPINotEnabled), ErrTypePermission, CodeAPINotEnabled},
		{TransientError("retry later", nil), ErrTypeTransient, ""},
		{NotFoundError("credential"), ErrTypeNotFound, ""},
		{TimeoutError("refresh"), ErrTypeTimeout, ""},
		{RateLimitError("drive"), ErrTypeRateLimit, ""},
	}

	for _, tt := range tests {
		t.Run(string(tt.wantType), func(t *testing.T) {
			assert.Equal(t, tt.wantType, tt.err.Type)
			assert.Equal(t, tt.wantCode, tt.err.Code)
		})
	}

	assert.Equal(t, "credential not found", NotFoundError("credential").Message)
	assert.Equal(t, "timeout during refresh", TimeoutError("refresh").Message)
}

func TestIsType_WrappedChain(t *testing.T) {
	base := AuthError("re-authenticate").WithCode(CodeNoRefreshToken)
	wrapped := fmt.Errorf("get client: %w", base)

	assert.True(t, IsType(wrapped, ErrTypeAuth))
	assert.True(t, IsFatalAuth(wrapped))
	assert.False(t, IsType(wrapped, ErrTypeTransient))
	assert.Equal(t, ErrTypeAuth, GetType(wrapped))
	assert.Equal(t, CodeNoRefreshToken, GetCode(wrapped))

	assert.False(t, IsType(nil, ErrTypeAuth))
	assert.Equal(t, ErrorType(""), GetType(nil))
	assert.Equal(t, ErrTypeInternal, GetType(errors.New("plain")))
	assert.Equal(t, "", GetCode(errors.New("plain")))
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"transient", TransientError("x", nil), true},
		{"timeout", TimeoutError("x"), true},
		{"rate limit", RateLimitError("x"), true},
		{"connection", ConnectionError("x", nil), true},
		{"wrapped transient", fmt.Errorf("attempt 2: %w", TransientError("x", nil)), true},
		{"auth", AuthError("x"), false},
		{"permission", PermissionError("x", CodePermissionDenied), false},
		{"validation", ValidationError("x"), false},
		{"plain", errors.New("x"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Retryable(tt.err))
		})
	}
}
