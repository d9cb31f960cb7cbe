package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"ground-truth-bench/internal/repository"
)

// MessageInvalidCredentials is shown for both unknown users and wrong passwords.
const MessageInvalidCredentials = "Invalid username or password."

var (
	// ErrInvalidCredentials indicates that provided login credentials are incorrect.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrRateLimited indicates that the username is locked out for the current window.
	ErrRateLimited = errors.New("too many failed attempts")
)

// LoginError is returned by Authenticate with a message safe to show the user.
type LoginError struct {
	Err        error
	Message    string
	RetryAfter time.Duration
}

func (e *LoginError) Error() string { return e.Message }

func (e *LoginError) Unwrap() error { return e.Err }

// Authenticator checks credentials against a CredentialStore, consulting the
// RateLimiter first, and moves sessions between anonymous and authenticated.
type Authenticator struct {
	store   repository.CredentialStore
	limiter *RateLimiter
	logger  logrus.FieldLogger
	now     func() time.Time

	// serialises load-modify-save of the credential table within this process
	storeMu sync.Mutex

	dummyOnce sync.Once
	dummyHash string
}

type Config struct {
	Store   repository.CredentialStore
	Limiter *RateLimiter
	Logger  logrus.FieldLogger
	Now     func() time.Time
}

func NewAuthenticator(cfg Config) *Authenticator {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Limiter == nil {
		cfg.Limiter = NewRateLimiter(DefaultMaxAttempts, DefaultWindow, cfg.Now)
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Authenticator{
		store:   cfg.Store,
		limiter: cfg.Limiter,
		logger:  cfg.Logger,
		now:     cfg.Now,
	}
}

// Authenticate verifies username and secret. On success sess becomes
// authenticated as username and nil is returned; otherwise a *LoginError
// wrapping ErrRateLimited or ErrInvalidCredentials is returned and sess is
// left untouched.
func (a *Authenticator) Authenticate(ctx context.Context, sess *Session, username, secret string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return &LoginError{Err: ErrInvalidCredentials, Message: MessageInvalidCredentials}
	}
	log := a.logger.WithField("username", username)

	decision := a.limiter.Check(username)
	if !decision.Allowed {
		log.Warn("login blocked by rate limiter")
		return &LoginError{Err: ErrRateLimited, Message: decision.Message, RetryAfter: decision.RetryAfter}
	}

	if secret == "" {
		VerifyPassword(a.placeholderHash(), secret)
		a.limiter.RecordFailure(username)
		log.Info("login failed")
		return &LoginError{Err: ErrInvalidCredentials, Message: MessageInvalidCredentials}
	}

	users, err := a.store.Load(ctx)
	if err != nil {
		log.WithError(err).Warn("credential store degraded, continuing with an empty user table")
	}

	user, ok := users[username]
	if !ok {
		// burn the same bcrypt cost as a real comparison
		VerifyPassword(a.placeholderHash(), secret)
		a.limiter.RecordFailure(username)
		log.Info("login failed")
		return &LoginError{Err: ErrInvalidCredentials, Message: MessageInvalidCredentials}
	}

	if !VerifyPassword(user.PasswordHash, secret) {
		a.limiter.RecordFailure(username)
		log.Info("login failed")
		return &LoginError{Err: ErrInvalidCredentials, Message: MessageInvalidCredentials}
	}

	now := a.now()
	a.limiter.Clear(username)
	a.touch(ctx, username, now)

	sess.Authenticated = true
	sess.Username = username
	sess.LastActivity = now
	log.Info("login succeeded")
	return nil
}

// Logout returns sess to the anonymous state. It is safe to call on a session
// that is already anonymous. Downstream credentials kept next to the session
// must always be discarded by the caller.
func (a *Authenticator) Logout(sess *Session) {
	if sess == nil {
		return
	}
	if sess.Authenticated {
		a.logger.WithField("username", sess.Username).Info("logout")
	}
	sess.clear()
	sess.LastActivity = time.Time{}
}

// touch records the last activity of username in the credential store. It is
// best effort: a failure is logged and the login still succeeds. The table is
// read again under storeMu, so writes that landed after the credential check
// are carried into the save instead of being overwritten.
func (a *Authenticator) touch(ctx context.Context, username string, when time.Time) {
	a.storeMu.Lock()
	defer a.storeMu.Unlock()

	users, err := a.store.Load(ctx)
	if err != nil {
		a.logger.WithError(err).WithField("username", username).Warn("skip last activity update")
		return
	}
	user, ok := users[username]
	if !ok {
		return
	}
	ts := when.UTC()
	user.LastActivity = &ts
	users[username] = user

	if err := a.store.Save(ctx, users); err != nil {
		a.logger.WithError(err).WithField("username", username).Warn("save last activity")
	}
}

func (a *Authenticator) placeholderHash() string {
	a.dummyOnce.Do(func() {
		hash, err := HashPassword("placeholder-password-for-unknown-users")
		if err == nil {
			a.dummyHash = hash
		}
	})
	return a.dummyHash
}
