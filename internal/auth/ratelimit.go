package auth

import (
	"fmt"
	"math"
	"sync"
	"time"
)

const (
	DefaultMaxAttempts = 5
	DefaultWindow      = 300 * time.Second
)

type attemptRecord struct {
	count       int
	lastFailure time.Time
}

// Decision is the outcome of a rate limit check.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
	Message    string
}

// RateLimiter counts failed logins per username inside a fixed window.
// State lives in process memory only; a restart clears every lockout.
type RateLimiter struct {
	mu          sync.Mutex
	maxAttempts int
	window      time.Duration
	now         func() time.Time
	entries     map[string]*attemptRecord
}

// NewRateLimiter builds a limiter. Non-positive limits fall back to the defaults
// and a nil clock to time.Now.
func NewRateLimiter(maxAttempts int, window time.Duration, now func() time.Time) *RateLimiter {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{
		maxAttempts: maxAttempts,
		window:      window,
		now:         now,
		entries:     make(map[string]*attemptRecord),
	}
}

// Check purges stale entries and reports whether username may attempt a login.
func (l *RateLimiter) Check(username string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for name, rec := range l.entries {
		if now.Sub(rec.lastFailure) > l.window {
			delete(l.entries, name)
		}
	}

	rec, ok := l.entries[username]
	if !ok || rec.count < l.maxAttempts {
		return Decision{Allowed: true}
	}

	elapsed := now.Sub(rec.lastFailure)
	if elapsed < l.window {
		remaining := l.window - elapsed
		return Decision{
			Allowed:    false,
			RetryAfter: remaining,
			Message:    fmt.Sprintf("Too many failed attempts. Try again in %s.", humanizeWait(remaining)),
		}
	}

	// window boundary reached between purge and check
	rec.count = 0
	rec.lastFailure = now
	return Decision{Allowed: true}
}

// RecordFailure counts one failed attempt for username.
func (l *RateLimiter) RecordFailure(username string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.entries[username]
	if !ok {
		rec = &attemptRecord{}
		l.entries[username] = rec
	}
	rec.count++
	rec.lastFailure = l.now()
}

// Clear forgets every failure recorded for username.
func (l *RateLimiter) Clear(username string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.entries, username)
}

// Failures returns the current failure count for username.
func (l *RateLimiter) Failures(username string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if rec, ok := l.entries[username]; ok {
		return rec.count
	}
	return 0
}

func humanizeWait(d time.Duration) string {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 60 {
		if secs == 1 {
			return "1 second"
		}
		return fmt.Sprintf("%d seconds", secs)
	}
	mins := (secs + 59) / 60
	if mins == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", mins)
}
