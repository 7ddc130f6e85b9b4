// Package ratelimit provides keyed token-bucket limiters. The API wrappers
// use one key per Google service; the HTTP middleware keys by client.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"workspace-assistant/internal/common/errors"
	"workspace-assistant/internal/common/utils"
)

type Limiter struct {
	config  *Config
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

type Config struct {
	// RequestsPerSecond is the sustained rate per key
	RequestsPerSecond float64 `json:"requests_per_second"`
	// Burst is the bucket size per key
	Burst   int  `json:"burst"`
	Enabled bool `json:"enabled"`
	// Overrides sets a different rate for specific keys
	Overrides map[string]Config `json:"overrides,omitempty"`
}

type RateLimit struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetTime time.Time `json:"reset_time"`
}

type bucket struct {
	limiter *rate.Limiter
	burst   int
	retryAt time.Time
}

func NewLimiter(config *Config) *Limiter {
	if config == nil {
		config = &Config{
			RequestsPerSecond: 10,
			Burst:             15,
			Enabled:           true,
		}
	}

	return &Limiter{
		config:  config,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

func (l *Limiter) bucket(key string) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		cfg := *l.config
		if override, ok := l.config.Overrides[key]; ok {
			cfg = override
		}
		if cfg.Burst < 1 {
			cfg.Burst = 1
		}
		b = &bucket{
			limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
			burst:   cfg.Burst,
		}
		l.buckets[key] = b
	}
	return b
}

// Wait blocks until key may make a request, honouring any backoff recorded
// with Backoff first.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	if !l.config.Enabled {
		return nil
	}
	b := l.bucket(key)

	l.mu.Lock()
	pause := b.retryAt.Sub(l.now())
	l.mu.Unlock()

	if pause > 0 {
		if err := utils.Sleep(ctx, pause); err != nil {
			return errors.TimeoutError(fmt.Sprintf("rate limit wait for %s", key)).WithCause(err)
		}
	}
	if err := b.limiter.Wait(ctx); err != nil {
		return errors.TimeoutError(fmt.Sprintf("rate limit wait for %s", key)).WithCause(err)
	}
	return nil
}

// Allow takes a token for key without blocking
func (l *Limiter) Allow(key string) (*RateLimit, bool) {
	if !l.config.Enabled {
		return &RateLimit{Limit: math.MaxInt32, Remaining: math.MaxInt32, ResetTime: l.now()}, true
	}
	b := l.bucket(key)
	now := l.now()

	l.mu.Lock()
	retryAt := b.retryAt
	l.mu.Unlock()

	info := &RateLimit{Limit: b.burst, ResetTime: now}
	if now.Before(retryAt) {
		info.ResetTime = retryAt
		return info, false
	}

	ok := b.limiter.AllowN(now, 1)
	info.Remaining = int(b.limiter.TokensAt(now))
	if info.Remaining < 0 {
		info.Remaining = 0
	}
	if !ok {
		info.ResetTime = now.Add(time.Duration(float64(time.Second) / math.Max(float64(b.limiter.Limit()), 1e-9)))
	}
	return info, ok
}

// Backoff pauses key for d, typically from a Retry-After header
func (l *Limiter) Backoff(key string, d time.Duration) {
	if d <= 0 || !l.config.Enabled {
		return
	}
	b := l.bucket(key)

	l.mu.Lock()
	defer l.mu.Unlock()
	if until := l.now().Add(d); until.After(b.retryAt) {
		b.retryAt = until
	}
}

// HTTPMiddleware rejects requests over the per-key rate with 429
func (l *Limiter) HTTPMiddleware(keyFunc func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.config.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			key := keyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			info, ok := l.Allow(key)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime.Unix(), 10))

			if !ok {
				retry := int(math.Ceil(info.ResetTime.Sub(l.now()).Seconds()))
				if retry < 1 {
					retry = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Common key generation functions
func IPBasedKey(r *http.Request) string {
	ip := r.Header.Get("X-Forwarded-For")
	if ip == "" {
		ip = r.Header.Get("X-Real-IP")
	}
	if ip == "" {
		ip = r.RemoteAddr
	}
	return fmt.Sprintf("ip:%s", ip)
}
