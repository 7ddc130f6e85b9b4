package google

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	"workspace-assistant/internal/common/errors"
)

// 403 reasons that mean throttling rather than a permission problem
var rateLimitReasons = map[string]bool{
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
	"quotaExceeded":         true,
}

// Classify maps a Google API error onto the AppError taxonomy. Only
// transient results are worth retrying.
func Classify(service Service, err error) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, context.Canceled) {
		return err
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.TimeoutError(string(service) + " call").WithCause(err)
	}

	var apiErr *googleapi.Error
	if stderrors.As(err, &apiErr) {
		return classifyAPIError(service, apiErr)
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) {
		return errors.TransientError(fmt.Sprintf("%s is unreachable", service), err)
	}

	msg := err.Error()
	if msg == "" {
		msg = fmt.Sprintf("unexpected %s error", service)
	}
	return errors.InternalError(msg, err)
}

func classifyAPIError(service Service, apiErr *googleapi.Error) error {
	msg := apiMessage(apiErr)
	reason := apiReason(apiErr)

	switch code := apiErr.Code; {
	case code == http.StatusBadRequest:
		return errors.ValidationError(fmt.Sprintf("%s rejected the request: %s", service, msg)).
			WithCode(errors.CodeBadRequest).
			WithCause(apiErr)

	case code == http.StatusUnauthorized:
		return errors.AuthError(fmt.Sprintf("%s rejected the access token", service)).
			WithCode(errors.CodeTokenRejected).
			WithCause(apiErr)

	case code == http.StatusForbidden:
		return classifyForbidden(service, reason, msg, apiErr)

	case code == http.StatusRequestTimeout,
		code == http.StatusTooManyRequests,
		code == http.StatusInternalServerError,
		code == http.StatusBadGateway,
		code == http.StatusServiceUnavailable,
		code == http.StatusGatewayTimeout:
		return errors.TransientError(fmt.Sprintf("%s returned %d: %s", service, code, msg), apiErr)

	default:
		return errors.InternalError(fmt.Sprintf("%s error: %s", service, msg), apiErr)
	}
}

func classifyForbidden(service Service, reason, msg string, apiErr *googleapi.Error) error {
	lower := strings.ToLower(msg)
	switch {
	case rateLimitReasons[reason]:
		return errors.TransientError(fmt.Sprintf("%s quota exhausted: %s", service, msg), apiErr)

	case reason == "accessNotConfigured",
		strings.Contains(lower, "has not been used in project"),
		strings.Contains(lower, "it is disabled"):
		return errors.PermissionError(
			fmt.Sprintf("the %s API is not enabled for this project", service),
			errors.CodeAPINotEnabled,
		).WithCause(apiErr)

	case reason == "insufficientPermissions",
		strings.Contains(lower, "insufficient authentication scopes"),
		strings.Contains(lower, "access_token_scope_insufficient"):
		return errors.PermissionError(
			fmt.Sprintf("the granted scopes do not cover %s, sign in again to grant access", service),
			errors.CodeInsufficientScope,
		).WithCause(apiErr)

	default:
		return errors.PermissionError(
			fmt.Sprintf("%s denied access: %s", service, msg),
			errors.CodePermissionDenied,
		).WithCause(apiErr)
	}
}

// apiMessage picks the most specific message the payload carries
func apiMessage(apiErr *googleapi.Error) string {
	if apiErr.Message != "" {
		return apiErr.Message
	}
	for _, item := range apiErr.Errors {
		if item.Message != "" {
			return item.Message
		}
	}
	if body := strings.TrimSpace(apiErr.Body); body != "" && len(body) <= 200 {
		return body
	}
	if text := http.StatusText(apiErr.Code); text != "" {
		return text
	}
	return "unknown error"
}

func apiReason(apiErr *googleapi.Error) string {
	for _, item := range apiErr.Errors {
		if item.Reason != "" {
			return item.Reason
		}
	}
	return ""
}

func isUnauthorized(err error) bool {
	var apiErr *googleapi.Error
	return stderrors.As(err, &apiErr) && apiErr.Code == http.StatusUnauthorized
}

// retryAfter reads a Retry-After header in seconds
func retryAfter(err error) time.Duration {
	var apiErr *googleapi.Error
	if !stderrors.As(err, &apiErr) || apiErr.Header == nil {
		return 0
	}
	seconds, convErr := strconv.Atoi(apiErr.Header.Get("Retry-After"))
	if convErr != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
