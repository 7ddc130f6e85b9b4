package google

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	xoauth2 "golang.org/x/oauth2"
	"google.golang.org/api/option"
	"workspace-assistant/internal/common/errors"
	"workspace-assistant/internal/common/logging"
	"workspace-assistant/internal/common/utils"
	"workspace-assistant/internal/oauth2"
	"workspace-assistant/internal/ratelimit"
)

// FallbackMode decides what happens when real data is unavailable
type FallbackMode string

const (
	// FallbackDemo substitutes the demo dataset and tags the result
	FallbackDemo FallbackMode = "demo"
	// FallbackError surfaces every failure to the caller
	FallbackError FallbackMode = "error"
)

// Credentials hands out authenticated clients. *oauth2.Manager implements it.
type Credentials interface {
	GetClientForUser(ctx context.Context, userID string) (*oauth2.Client, error)
	ForceRefresh(ctx context.Context, userID, rejectedToken string) (*oauth2.Client, error)
}

type Options struct {
	Mode FallbackMode
	// Retry bounds the list call; MaxAttempts includes the first try
	Retry utils.RetryConfig
	// ItemTimeout bounds each mail detail fetch
	ItemTimeout time.Duration
	// DetailConcurrency caps parallel detail fetches
	DetailConcurrency int
	MailMaxResults    int64
	FilesMaxResults   int64
	EventsMaxResults  int64
	Limiter           *ratelimit.Limiter
	// HTTPClient is the base transport under the bearer token
	HTTPClient *http.Client
	// ClientOptions are appended per service, e.g. option.WithEndpoint in tests
	ClientOptions map[Service][]option.ClientOption
	Logger        logging.Logger
	Now           func() time.Time
}

// DefaultOptions returns demo fallback, four attempts with 1s/2s/4s backoff
// and a 10 second per-item timeout.
func DefaultOptions() Options {
	return Options{
		Mode: FallbackDemo,
		Retry: utils.RetryConfig{
			MaxAttempts:   4,
			InitialDelay:  time.Second,
			MaxDelay:      8 * time.Second,
			BackoffFactor: 2,
			JitterFactor:  0.1,
		},
		ItemTimeout:       10 * time.Second,
		DetailConcurrency: 5,
		MailMaxResults:    10,
		FilesMaxResults:   10,
		EventsMaxResults:  10,
	}
}

// Workspace is the resilient front for the Gmail, Drive and Calendar APIs
type Workspace struct {
	creds   Credentials
	opts    Options
	limiter *ratelimit.Limiter
	logger  logging.Logger
	now     func() time.Time
}

func NewWorkspace(creds Credentials, opts Options) *Workspace {
	defaults := DefaultOptions()
	if opts.Mode == "" {
		opts.Mode = defaults.Mode
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = defaults.Retry
	}
	if opts.ItemTimeout <= 0 {
		opts.ItemTimeout = defaults.ItemTimeout
	}
	if opts.DetailConcurrency <= 0 {
		opts.DetailConcurrency = defaults.DetailConcurrency
	}
	if opts.MailMaxResults <= 0 {
		opts.MailMaxResults = defaults.MailMaxResults
	}
	if opts.FilesMaxResults <= 0 {
		opts.FilesMaxResults = defaults.FilesMaxResults
	}
	if opts.EventsMaxResults <= 0 {
		opts.EventsMaxResults = defaults.EventsMaxResults
	}

	limiter := opts.Limiter
	if limiter == nil {
		limiter = ratelimit.NewLimiter(nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Workspace{
		creds:   creds,
		opts:    opts,
		limiter: limiter,
		logger:  logger.WithFields(logging.String("component", "google")),
		now:     now,
	}
}

func (w *Workspace) clientOptions(ctx context.Context, service Service, client *oauth2.Client) []option.ClientOption {
	if w.opts.HTTPClient != nil {
		ctx = context.WithValue(ctx, xoauth2.HTTPClient, w.opts.HTTPClient)
	}
	opts := []option.ClientOption{option.WithHTTPClient(client.HTTPClient(ctx))}
	return append(opts, w.opts.ClientOptions[service]...)
}

// call runs one provider call under the retry policy. A 401 triggers one
// forced refresh and an immediate retry; a second 401 is fatal.
func call[T any](ctx context.Context, w *Workspace, service Service, userID string,
	fn func(ctx context.Context, client *oauth2.Client) (T, error),
) (T, *oauth2.Client, error) {
	var zero T

	client, err := w.creds.GetClientForUser(ctx, userID)
	if err != nil {
		return zero, nil, err
	}

	logger := w.logger.WithContext(ctx).WithFields(logging.String("service", string(service)))
	retry := w.opts.Retry
	retry.RetryableErrors = errors.Retryable
	retry.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Warn("Provider call failed, retrying",
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.Err(err),
		)
	}

	var out T
	refreshed := false
	attempt := func() error {
		for {
			if err := w.limiter.Wait(ctx, string(service)); err != nil {
				return notRetryable(ctx, err)
			}

			value, err := fn(ctx, client)
			if err == nil {
				out = value
				return nil
			}

			if isUnauthorized(err) && !refreshed {
				logger.Info("Access token rejected, forcing refresh")
				fresh, refreshErr := w.creds.ForceRefresh(ctx, userID, client.AccessToken())
				if refreshErr != nil {
					// The next attempt keeps the rejected client and asks for the refresh again
					return refreshErr
				}
				refreshed = true
				client = fresh
				continue
			}

			if d := retryAfter(err); d > 0 {
				w.limiter.Backoff(string(service), d)
			}
			return Classify(service, err)
		}
	}

	err = utils.RetryWithBackoff(ctx, retry, attempt)
	switch {
	case err == nil:
		return out, client, nil
	case ctx.Err() != nil:
		if stderrors.Is(ctx.Err(), context.Canceled) {
			return zero, client, ctx.Err()
		}
		return zero, client, errors.TimeoutError(string(service) + " request").WithCause(err)
	case errors.Retryable(err):
		// Attempts exhausted: RetryWithBackoff wraps the last transient error
		return zero, client, errors.TransientError(fmt.Sprintf("%s is temporarily unavailable", service), err)
	default:
		return zero, client, err
	}
}

func notRetryable(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

// fetch applies the fallback policy around load
func fetch[T any](ctx context.Context, w *Workspace, service Service, userID string, demo func(time.Time) []T,
	load func(ctx context.Context) (*Result[T], error),
) (*Result[T], error) {
	logger := w.logger.WithContext(ctx).WithFields(logging.String("service", string(service)))

	if userID == "" {
		if w.opts.Mode == FallbackError {
			return nil, errors.AuthError("sign in to use " + string(service)).WithCode(errors.CodeNotSignedIn)
		}
		return fallback(w, logger, ReasonNotAuthenticated, nil, demo), nil
	}

	result, err := load(ctx)
	if err == nil {
		return result, nil
	}

	reason, maskable := fallbackReason(err)
	if !maskable || w.opts.Mode == FallbackError {
		return nil, err
	}
	return fallback(w, logger, reason, err, demo), nil
}

func fallback[T any](w *Workspace, logger logging.Logger, reason string, cause error, demo func(time.Time) []T) *Result[T] {
	fields := []logging.Field{logging.String("fallback_reason", reason)}
	if cause != nil {
		fields = append(fields, logging.Err(cause))
	}
	logger.Warn("Serving demo data", fields...)
	return &Result[T]{Items: demo(w.now()), IsFallback: true, FallbackReason: reason}
}

// fallbackReason reports whether err may be masked by demo data and why.
// Fatal auth, validation and cancellation always reach the caller.
func fallbackReason(err error) (string, bool) {
	if stderrors.Is(err, context.Canceled) {
		return "", false
	}
	switch errors.GetType(err) {
	case errors.ErrTypeConnection:
		return ReasonStoreUnavailable, true
	case errors.ErrTypeTransient, errors.ErrTypeTimeout, errors.ErrTypeRateLimit:
		return ReasonProviderUnavailable, true
	case errors.ErrTypePermission:
		return ReasonPermissionDenied, true
	case errors.ErrTypeInternal:
		return ReasonProviderError, true
	default:
		return "", false
	}
}
