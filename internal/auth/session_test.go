package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSessionGuard_ActiveSessionIsRefreshed(t *testing.T) {
	clock := newFakeClock()
	g := NewSessionGuard(30*time.Minute, clock.Now)

	s := &Session{Authenticated: true, Username: "alice", LastActivity: clock.Now()}
	clock.Advance(29 * time.Minute)

	assert.False(t, g.CheckTimeout(s))
	assert.True(t, s.Authenticated)
	assert.Equal(t, "alice", s.Username)
	assert.Equal(t, clock.Now(), s.LastActivity)
}

func TestSessionGuard_HeartbeatExtendsSession(t *testing.T) {
	clock := newFakeClock()
	g := NewSessionGuard(30*time.Minute, clock.Now)

	s := &Session{Authenticated: true, Username: "alice", LastActivity: clock.Now()}
	for i := 0; i < 4; i++ {
		clock.Advance(20 * time.Minute)
		assert.False(t, g.CheckTimeout(s))
	}
	assert.True(t, s.Authenticated)
}

func TestSessionGuard_IdleSessionExpires(t *testing.T) {
	clock := newFakeClock()
	g := NewSessionGuard(30*time.Minute, clock.Now)

	s := &Session{Authenticated: true, Username: "alice", LastActivity: clock.Now()}
	clock.Advance(31 * time.Minute)

	assert.True(t, g.Expired(s))
	assert.True(t, g.CheckTimeout(s))
	assert.False(t, s.Authenticated)
	assert.Empty(t, s.Username)

	// the next request on the now anonymous session is a plain heartbeat
	assert.False(t, g.CheckTimeout(s))
	assert.Equal(t, clock.Now(), s.LastActivity)
}

func TestSessionGuard_AnonymousSessionNeverExpires(t *testing.T) {
	clock := newFakeClock()
	g := NewSessionGuard(time.Minute, clock.Now)

	s := NewSession(clock.Now())
	clock.Advance(time.Hour)

	assert.False(t, g.Expired(s))
	assert.False(t, g.CheckTimeout(s))
	assert.Equal(t, clock.Now(), s.LastActivity)
	assert.False(t, g.CheckTimeout(nil))
}

func TestSessionGuard_DefaultTimeout(t *testing.T) {
	assert.Equal(t, DefaultSessionTimeout, NewSessionGuard(0, nil).Timeout())
}
