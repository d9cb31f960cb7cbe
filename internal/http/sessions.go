package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"ground-truth-bench/internal/auth"
	"ground-truth-bench/internal/sharepoint"
)

const SessionCookieName = "gtb_session"

var errInvalidSessionCookie = errors.New("invalid session cookie")

type sessionClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
}

// CookieCodec signs session ids into HS256 tokens. The token carries no
// expiry; inactivity is judged by the session guard.
type CookieCodec struct {
	secret []byte
	now    func() time.Time
}

func NewCookieCodec(secret []byte, now func() time.Time) CookieCodec {
	if now == nil {
		now = time.Now
	}
	secretCopy := make([]byte, len(secret))
	copy(secretCopy, secret)
	return CookieCodec{secret: secretCopy, now: now}
}

func (c CookieCodec) Encode(sessionID string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(c.now()),
		},
		SessionID: sessionID,
	})
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign session cookie: %w", err)
	}
	return signed, nil
}

func (c CookieCodec) Decode(value string) (string, error) {
	if value == "" {
		return "", errInvalidSessionCookie
	}
	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(value, claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(c.now))
	if err != nil {
		return "", fmt.Errorf("%w: %v", errInvalidSessionCookie, err)
	}
	if !token.Valid || claims.SessionID == "" {
		return "", errInvalidSessionCookie
	}
	return claims.SessionID, nil
}

func setSessionCookie(w http.ResponseWriter, value string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	})
}

// sessionRecord is one browser session plus the downstream SharePoint
// credential obtained at login.
type sessionRecord struct {
	id string

	mu      sync.Mutex
	session auth.Session
	graph   *sharepoint.Connection
}

// graphConnection returns a copy of the SharePoint connection, or nil.
func (r *sessionRecord) graphConnection() *sharepoint.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.graph == nil {
		return nil
	}
	conn := *r.graph
	return &conn
}

// storeGraph keeps a refreshed token, unless the session lost it meanwhile.
func (r *sessionRecord) storeGraph(conn *sharepoint.Connection) {
	if conn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.graph != nil && r.session.Authenticated {
		updated := *conn
		r.graph = &updated
	}
}

func (r *sessionRecord) dropGraph() {
	r.graph = nil
}

// SessionTable holds the live sessions of this process, keyed by random id.
type SessionTable struct {
	mu      sync.Mutex
	records map[string]*sessionRecord
}

func NewSessionTable() *SessionTable {
	return &SessionTable{records: make(map[string]*sessionRecord)}
}

// Start registers an authenticated session under a fresh id.
func (t *SessionTable) Start(sess auth.Session, graph *sharepoint.Connection) *sessionRecord {
	rec := &sessionRecord{
		id:      uuid.NewString(),
		session: sess,
		graph:   graph,
	}
	t.mu.Lock()
	t.records[rec.id] = rec
	t.mu.Unlock()
	return rec
}

func (t *SessionTable) Get(id string) (*sessionRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[id]
	return rec, ok
}

func (t *SessionTable) Delete(id string) {
	t.mu.Lock()
	delete(t.records, id)
	t.mu.Unlock()
}

func (t *SessionTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}

// Sweep removes sessions that are anonymous or expired under guard and
// returns how many were removed.
func (t *SessionTable) Sweep(guard *auth.SessionGuard) int {
	t.mu.Lock()
	snapshot := make([]*sessionRecord, 0, len(t.records))
	for _, rec := range t.records {
		snapshot = append(snapshot, rec)
	}
	t.mu.Unlock()

	removed := 0
	for _, rec := range snapshot {
		rec.mu.Lock()
		stale := !rec.session.Authenticated || guard.Expired(&rec.session)
		if stale {
			rec.session = auth.Session{}
			rec.dropGraph()
		}
		rec.mu.Unlock()
		if stale {
			t.Delete(rec.id)
			removed++
		}
	}
	return removed
}

// RunSweeper sweeps every interval until ctx is done.
func (t *SessionTable) RunSweeper(ctx context.Context, guard *auth.SessionGuard, interval time.Duration, logger logrus.FieldLogger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := t.Sweep(guard); n > 0 {
				logger.WithField("removed", n).Debug("swept idle sessions")
			}
		}
	}
}
