// Package ratelimit throttles completion calls and user submissions with
// token buckets, one global and optionally one per user.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config holds rate limiter configuration.
type Config struct {
	Enabled           bool
	RequestsPerMinute int
	PerUserLimit      bool
	// UserRequestsPerMinute defaults to RequestsPerMinute when zero.
	UserRequestsPerMinute int
}

// DefaultConfig returns the default rate limiting configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:           false, // Off by default for single-user use
		RequestsPerMinute: 60,
		PerUserLimit:      true,
	}
}

// Limiter is safe for concurrent use. A disabled limiter admits everything.
type Limiter struct {
	config Config
	global *rate.Limiter

	mu    sync.Mutex
	users map[string]*userBucket
}

type userBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func perMinute(n int) *rate.Limiter {
	if n <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), n)
}

// NewLimiter creates a new rate limiter with the given configuration.
func NewLimiter(config Config) *Limiter {
	if config.UserRequestsPerMinute <= 0 {
		config.UserRequestsPerMinute = config.RequestsPerMinute
	}
	return &Limiter{
		config: config,
		global: perMinute(config.RequestsPerMinute),
		users:  make(map[string]*userBucket),
	}
}

func (l *Limiter) Enabled() bool { return l != nil && l.config.Enabled }

// AllowRequest reports whether a request may proceed now, consuming a token
// from the global bucket and, when configured, from the user's bucket.
func (l *Limiter) AllowRequest(userID string) bool {
	if !l.Enabled() {
		return true
	}
	if !l.globalLimiter().Allow() {
		return false
	}
	if l.config.PerUserLimit && userID != "" {
		return l.userLimiter(userID).Allow()
	}
	return true
}

// WaitForRequest blocks until a request is allowed or context is cancelled.
func (l *Limiter) WaitForRequest(ctx context.Context, userID string) error {
	if !l.Enabled() {
		return nil
	}
	if err := l.globalLimiter().Wait(ctx); err != nil {
		return err
	}
	if l.config.PerUserLimit && userID != "" {
		return l.userLimiter(userID).Wait(ctx)
	}
	return nil
}

func (l *Limiter) globalLimiter() *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.global
}

func (l *Limiter) userLimiter(userID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.users[userID]
	if !ok {
		b = &userBucket{limiter: perMinute(l.config.UserRequestsPerMinute)}
		l.users[userID] = b
	}
	b.lastSeen = time.Now()
	return b.limiter
}

// Cleanup drops per-user buckets idle for longer than maxAge.
func (l *Limiter) Cleanup(maxAge time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	now := time.Now()
	for id, b := range l.users {
		if now.Sub(b.lastSeen) > maxAge {
			delete(l.users, id)
			removed++
		}
	}
	return removed
}

// Reset refills every bucket.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.users = make(map[string]*userBucket)
	l.global = perMinute(l.config.RequestsPerMinute)
}
