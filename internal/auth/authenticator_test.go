package auth

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ground-truth-bench/internal/domain"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestAuthenticator(t *testing.T) (*Authenticator, *memoryStore, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	store := &memoryStore{users: domain.Users{
		"alice": {Username: "alice", PasswordHash: cheapHash("correct-secret")},
	}}
	a := NewAuthenticator(Config{
		Store:   store,
		Limiter: NewRateLimiter(5, 300*time.Second, clock.Now),
		Logger:  quietLogger(),
		Now:     clock.Now,
	})
	return a, store, clock
}

func TestAuthenticate_Success(t *testing.T) {
	a, store, clock := newTestAuthenticator(t)
	sess := NewSession(clock.Now())
	clock.Advance(time.Minute)

	err := a.Authenticate(context.Background(), sess, "alice", "correct-secret")
	require.NoError(t, err)

	assert.True(t, sess.Authenticated)
	assert.Equal(t, "alice", sess.Username)
	assert.Equal(t, clock.Now(), sess.LastActivity)

	require.NotNil(t, store.users["alice"].LastActivity)
	assert.True(t, store.users["alice"].LastActivity.Equal(clock.Now()))
	assert.Equal(t, 1, store.saves)
}

func TestAuthenticate_WrongSecretCountsOnce(t *testing.T) {
	a, _, clock := newTestAuthenticator(t)

	for i := 1; i < 5; i++ {
		sess := NewSession(clock.Now())
		err := a.Authenticate(context.Background(), sess, "alice", "wrong")

		var loginErr *LoginError
		require.ErrorAs(t, err, &loginErr)
		assert.ErrorIs(t, err, ErrInvalidCredentials)
		assert.Equal(t, MessageInvalidCredentials, loginErr.Message)
		assert.False(t, sess.Authenticated)
		assert.Equal(t, i, a.limiter.Failures("alice"))
		clock.Advance(time.Second)
	}
}

func TestAuthenticate_UnknownUserLooksLikeWrongPassword(t *testing.T) {
	a, _, clock := newTestAuthenticator(t)

	errUnknown := a.Authenticate(context.Background(), NewSession(clock.Now()), "mallory", "whatever")
	errWrong := a.Authenticate(context.Background(), NewSession(clock.Now()), "alice", "whatever")

	assert.ErrorIs(t, errUnknown, ErrInvalidCredentials)
	assert.ErrorIs(t, errWrong, ErrInvalidCredentials)
	assert.Equal(t, errWrong.Error(), errUnknown.Error())
	assert.Equal(t, 1, a.limiter.Failures("mallory"))
}

func TestAuthenticate_LockoutScenario(t *testing.T) {
	a, store, clock := newTestAuthenticator(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		err := a.Authenticate(ctx, NewSession(clock.Now()), "alice", "wrong")
		require.ErrorIs(t, err, ErrInvalidCredentials)
		clock.Advance(time.Second)
	}

	loads := store.loadCount()
	sess := NewSession(clock.Now())
	err := a.Authenticate(ctx, sess, "alice", "correct-secret")

	var loginErr *LoginError
	require.ErrorAs(t, err, &loginErr)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Contains(t, loginErr.Message, "Too many failed attempts")
	assert.Positive(t, loginErr.RetryAfter)
	assert.Equal(t, loads, store.loadCount(), "credential store must not be consulted while blocked")
	assert.False(t, sess.Authenticated)

	// t=305
	clock.Advance(300 * time.Second)
	require.NoError(t, a.Authenticate(ctx, sess, "alice", "correct-secret"))
	assert.True(t, sess.Authenticated)
	assert.Equal(t, 0, a.limiter.Failures("alice"))
}

func TestAuthenticate_SuccessClearsFailures(t *testing.T) {
	a, _, clock := newTestAuthenticator(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_ = a.Authenticate(ctx, NewSession(clock.Now()), "alice", "wrong")
	}
	require.Equal(t, 4, a.limiter.Failures("alice"))

	require.NoError(t, a.Authenticate(ctx, NewSession(clock.Now()), "alice", "correct-secret"))
	assert.Equal(t, 0, a.limiter.Failures("alice"))
}

func TestAuthenticate_StoreUnavailableDeniesSoftly(t *testing.T) {
	a, store, clock := newTestAuthenticator(t)
	store.loadErr = errors.New("bucket unreachable")

	sess := NewSession(clock.Now())
	err := a.Authenticate(context.Background(), sess, "alice", "correct-secret")

	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.False(t, sess.Authenticated)
}

func TestAuthenticate_SaveFailureDoesNotBlockLogin(t *testing.T) {
	a, store, clock := newTestAuthenticator(t)
	store.saveErr = errors.New("read-only bucket")

	sess := NewSession(clock.Now())
	require.NoError(t, a.Authenticate(context.Background(), sess, "alice", "correct-secret"))
	assert.True(t, sess.Authenticated)
}

func TestAuthenticate_EmptyInput(t *testing.T) {
	a, store, clock := newTestAuthenticator(t)

	err := a.Authenticate(context.Background(), NewSession(clock.Now()), "  ", "secret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	for i := 0; i < 3; i++ {
		err = a.Authenticate(context.Background(), NewSession(clock.Now()), "bob", "")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	}
	assert.Equal(t, 3, a.limiter.Failures("bob"))
	assert.Equal(t, 0, store.loadCount())
}

func TestAuthenticate_LockedOutEmptySecretIsBlocked(t *testing.T) {
	a, store, clock := newTestAuthenticator(t)
	for i := 0; i < 5; i++ {
		_ = a.Authenticate(context.Background(), NewSession(clock.Now()), "alice", "wrong")
	}
	loads := store.loadCount()

	err := a.Authenticate(context.Background(), NewSession(clock.Now()), "alice", "")
	assert.ErrorIs(t, err, ErrRateLimited)
	var loginErr *LoginError
	require.ErrorAs(t, err, &loginErr)
	assert.Contains(t, loginErr.Message, "Too many failed attempts")
	assert.Equal(t, loads, store.loadCount())
}

// racingStore lets another writer update the table right after the first Load.
type racingStore struct {
	*memoryStore
	once  bool
	write func(domain.Users)
}

func (s *racingStore) Load(ctx context.Context) (domain.Users, error) {
	users, err := s.memoryStore.Load(ctx)
	if !s.once {
		s.once = true
		s.memoryStore.mu.Lock()
		s.write(s.memoryStore.users)
		s.memoryStore.mu.Unlock()
	}
	return users, err
}

func TestAuthenticate_TouchKeepsConcurrentWrites(t *testing.T) {
	clock := newFakeClock()
	bobSeen := clock.Now().Add(-time.Hour)
	store := &racingStore{
		memoryStore: &memoryStore{users: domain.Users{
			"alice": {Username: "alice", PasswordHash: cheapHash("correct-secret")},
			"bob":   {Username: "bob", PasswordHash: cheapHash("bob-secret")},
		}},
		write: func(users domain.Users) {
			bob := users["bob"]
			bob.LastActivity = &bobSeen
			users["bob"] = bob
		},
	}
	a := NewAuthenticator(Config{Store: store, Logger: quietLogger(), Now: clock.Now})

	require.NoError(t, a.Authenticate(context.Background(), NewSession(clock.Now()), "alice", "correct-secret"))

	saved := store.memoryStore.users
	require.NotNil(t, saved["alice"].LastActivity)
	require.NotNil(t, saved["bob"].LastActivity)
	assert.True(t, saved["bob"].LastActivity.Equal(bobSeen))
}

func TestLogout_Idempotent(t *testing.T) {
	a, _, clock := newTestAuthenticator(t)
	sess := NewSession(clock.Now())
	require.NoError(t, a.Authenticate(context.Background(), sess, "alice", "correct-secret"))

	a.Logout(sess)
	assert.Equal(t, Session{}, *sess)

	a.Logout(sess)
	assert.Equal(t, Session{}, *sess)

	a.Logout(nil)
}

func TestSessionLifecycle(t *testing.T) {
	a, _, clock := newTestAuthenticator(t)
	guard := NewSessionGuard(30*time.Minute, clock.Now)
	sess := NewSession(clock.Now())

	require.NoError(t, a.Authenticate(context.Background(), sess, "alice", "correct-secret"))

	clock.Advance(10 * time.Minute)
	require.False(t, guard.CheckTimeout(sess))
	require.True(t, sess.Authenticated)

	clock.Advance(31 * time.Minute)
	require.True(t, guard.CheckTimeout(sess))
	assert.False(t, sess.Authenticated)
	assert.Empty(t, sess.Username)
}
