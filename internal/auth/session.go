package auth

import "time"

const DefaultSessionTimeout = 1800 * time.Second

// Session is the per-visitor authentication state. The calling layer owns
// persistence between requests; the auth package only mutates it.
type Session struct {
	Authenticated bool
	Username      string
	LastActivity  time.Time
}

// NewSession returns an anonymous session whose clock starts at now.
func NewSession(now time.Time) *Session {
	return &Session{LastActivity: now}
}

func (s *Session) clear() {
	s.Authenticated = false
	s.Username = ""
}

// SessionGuard expires authenticated sessions after a period of inactivity.
type SessionGuard struct {
	timeout time.Duration
	now     func() time.Time
}

func NewSessionGuard(timeout time.Duration, now func() time.Time) *SessionGuard {
	if timeout <= 0 {
		timeout = DefaultSessionTimeout
	}
	if now == nil {
		now = time.Now
	}
	return &SessionGuard{timeout: timeout, now: now}
}

// Timeout is the inactivity period after which a session expires.
func (g *SessionGuard) Timeout() time.Duration { return g.timeout }

// Expired reports whether s is authenticated but idle past the timeout.
// It does not modify s.
func (g *SessionGuard) Expired(s *Session) bool {
	if s == nil || !s.Authenticated || s.LastActivity.IsZero() {
		return false
	}
	return g.now().Sub(s.LastActivity) > g.timeout
}

// CheckTimeout de-authenticates an idle session and returns true. Any other
// session has its last activity moved to now, so every call is also a heartbeat.
// Downstream credentials kept next to the session must be dropped by the caller
// when this returns true.
func (g *SessionGuard) CheckTimeout(s *Session) bool {
	if s == nil {
		return false
	}
	if g.Expired(s) {
		s.clear()
		return true
	}
	s.LastActivity = g.now()
	return false
}
