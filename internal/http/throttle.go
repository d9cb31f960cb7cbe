package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// LoginThrottle is a token bucket per client IP in front of the login
// endpoint. Per-username lockout is the auth rate limiter's job.
type LoginThrottle struct {
	mu       sync.Mutex
	limiters map[string]*throttleEntry
	rate     rate.Limit
	burst    int
	idle     time.Duration
	now      func() time.Time
}

type throttleEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLoginThrottle allows perMinute requests per IP with the given burst.
func NewLoginThrottle(perMinute, burst int, now func() time.Time) *LoginThrottle {
	if perMinute <= 0 {
		perMinute = 30
	}
	if burst <= 0 {
		burst = 10
	}
	if now == nil {
		now = time.Now
	}
	return &LoginThrottle{
		limiters: make(map[string]*throttleEntry),
		rate:     rate.Limit(float64(perMinute) / 60),
		burst:    burst,
		idle:     time.Hour,
		now:      now,
	}
}

func (l *LoginThrottle) Allow(ip string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for key, entry := range l.limiters {
		if now.Sub(entry.lastSeen) > l.idle {
			delete(l.limiters, key)
		}
	}

	entry, ok := l.limiters[ip]
	if !ok {
		entry = &throttleEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func (l *LoginThrottle) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many login requests. Please slow down."})
			return
		}
		c.Next()
	}
}
