// Package database owns the lifecycle of the process-wide connection to a
// backing store. A Handle dials lazily, shares one in-flight dial among
// concurrent callers, demotes itself when a health check fails and is
// closed by the composition root on shutdown.
package database

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"workspace-assistant/internal/common/errors"
	"workspace-assistant/internal/common/logging"
	"workspace-assistant/internal/common/utils"
)

// ErrHandleClosed is returned by Acquire after Close
var ErrHandleClosed = stderrors.New("database handle closed")

// State of a Handle
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Dialer knows how to open, check and close one kind of connection.
type Dialer[T any] struct {
	// Dial opens a connection. ctx carries the connect timeout.
	Dial func(ctx context.Context) (T, error)
	// Ping verifies a live connection without reopening it
	Ping func(ctx context.Context, conn T) error
	// Close releases the connection
	Close func(conn T) error
	// OnConnect runs once per fresh connection, e.g. to apply a schema
	OnConnect func(ctx context.Context, conn T) error
}

// Options tune connection establishment
type Options struct {
	// ConnectTimeout bounds a single dial attempt
	ConnectTimeout time.Duration
	// Retry controls attempts and backoff between failed dials
	Retry utils.RetryConfig
	Logger logging.Logger
}

// DefaultOptions returns three dial attempts with 2s/4s backoff and a 10s connect timeout.
func DefaultOptions() Options {
	return Options{
		ConnectTimeout: 10 * time.Second,
		Retry:          utils.DefaultRetryConfig(),
	}
}

// Handle is a lazily established, shared connection of type T.
type Handle[T any] struct {
	name   string
	dialer Dialer[T]
	opts   Options
	logger logging.Logger

	baseCtx context.Context
	cancel  context.CancelFunc

	mu         sync.Mutex
	conn       T
	connected  bool
	generation uint64
	pending    *dialAttempt[T]
	closed     bool
}

type dialAttempt[T any] struct {
	done chan struct{}
	conn T
	err  error
}

// NewHandle creates a Handle. Nothing is dialled until the first Acquire.
func NewHandle[T any](name string, dialer Dialer[T], opts Options) *Handle[T] {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultOptions().ConnectTimeout
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = utils.DefaultRetryConfig()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Handle[T]{
		name:    name,
		dialer:  dialer,
		opts:    opts,
		logger:  logger.WithFields(logging.String("store", name)),
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// Name returns the handle name used in logs and errors
func (h *Handle[T]) Name() string {
	return h.name
}

// Acquire returns the shared connection, dialling it if necessary.
// Concurrent callers wait on the same dial. Cancelling ctx abandons the
// wait but not the dial itself.
func (h *Handle[T]) Acquire(ctx context.Context) (T, error) {
	var zero T

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return zero, ErrHandleClosed
	}
	if h.connected {
		conn := h.conn
		h.mu.Unlock()
		return conn, nil
	}
	attempt := h.pending
	if attempt == nil {
		attempt = &dialAttempt[T]{done: make(chan struct{})}
		h.pending = attempt
		go h.establish(attempt)
	}
	h.mu.Unlock()

	select {
	case <-attempt.done:
		return attempt.conn, attempt.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (h *Handle[T]) establish(attempt *dialAttempt[T]) {
	start := time.Now()

	retry := h.opts.Retry
	retry.RetryableErrors = func(err error) bool {
		return h.baseCtx.Err() == nil
	}
	retry.OnRetry = func(n int, err error, delay time.Duration) {
		h.logger.Warn("Store connection attempt failed, retrying",
			logging.Int("attempt", n),
			logging.Duration("backoff", delay),
			logging.Err(err),
		)
	}

	var conn T
	err := utils.RetryWithBackoff(h.baseCtx, retry, func() error {
		ctx, cancel := context.WithTimeout(h.baseCtx, h.opts.ConnectTimeout)
		defer cancel()

		c, err := h.dialer.Dial(ctx)
		if err != nil {
			return err
		}
		if h.dialer.OnConnect != nil {
			if err := h.dialer.OnConnect(ctx, c); err != nil {
				_ = h.closeConn(c)
				return err
			}
		}
		conn = c
		return nil
	})

	h.mu.Lock()
	h.pending = nil
	switch {
	case err != nil:
		err = errors.ConnectionError(fmt.Sprintf("%s unreachable", h.name), err)
	case h.closed:
		_ = h.closeConn(conn)
		var zero T
		conn = zero
		err = ErrHandleClosed
	default:
		h.conn = conn
		h.connected = true
		h.generation++
	}
	attempt.conn = conn
	attempt.err = err
	h.mu.Unlock()
	close(attempt.done)

	if err != nil {
		h.logger.Error("Store connection failed", err, logging.Duration("took", time.Since(start)))
		return
	}
	h.logger.Info("Store connected", logging.Duration("took", time.Since(start)))
}

// Health pings the live connection. It never dials; a failed ping demotes
// the handle so the next Acquire reconnects.
func (h *Handle[T]) Health(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrHandleClosed
	}
	if !h.connected {
		h.mu.Unlock()
		return errors.ConnectionError(fmt.Sprintf("%s not connected", h.name), nil)
	}
	conn := h.conn
	generation := h.generation
	h.mu.Unlock()

	err := h.dialer.Ping(ctx, conn)
	if err == nil {
		return nil
	}

	h.mu.Lock()
	demoted := h.connected && h.generation == generation
	if demoted {
		var zero T
		h.conn = zero
		h.connected = false
	}
	h.mu.Unlock()

	if demoted {
		h.logger.Warn("Store health check failed, marking disconnected", logging.Err(err))
		_ = h.closeConn(conn)
	}
	return errors.ConnectionError(fmt.Sprintf("%s health check failed", h.name), err)
}

// State reports the current lifecycle state
func (h *Handle[T]) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch {
	case h.closed:
		return StateClosed
	case h.connected:
		return StateConnected
	case h.pending != nil:
		return StateConnecting
	default:
		return StateDisconnected
	}
}

// Close releases the connection and aborts any dial in progress.
// Subsequent Acquire calls fail with ErrHandleClosed.
func (h *Handle[T]) Close(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.cancel()
	conn, connected := h.conn, h.connected
	var zero T
	h.conn = zero
	h.connected = false
	pending := h.pending
	h.mu.Unlock()

	if pending != nil {
		select {
		case <-pending.done:
		case <-ctx.Done():
		}
	}

	if !connected {
		return nil
	}
	if err := h.closeConn(conn); err != nil {
		return fmt.Errorf("failed to close %s: %w", h.name, err)
	}
	h.logger.Info("Store connection closed")
	return nil
}

func (h *Handle[T]) closeConn(conn T) error {
	if h.dialer.Close == nil {
		return nil
	}
	return h.dialer.Close(conn)
}
