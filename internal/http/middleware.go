package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	MessageSessionExpired = "Your session has expired due to inactivity. Please log in again."
	MessageLoginRequired  = "Please log in first."

	sessionContextKey = "session"
)

// requireSession resolves the session cookie and runs the inactivity check.
// An expired session loses its downstream credentials and is removed.
func (h *Handler) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, ok := h.lookupSession(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": MessageLoginRequired})
			return
		}

		rec.mu.Lock()
		expired := h.guard.CheckTimeout(&rec.session)
		if expired {
			rec.dropGraph()
		}
		authenticated := rec.session.Authenticated
		username := rec.session.Username
		rec.mu.Unlock()

		if expired {
			h.sessions.Delete(rec.id)
			clearSessionCookie(c.Writer, h.secureCookie)
			h.logger.WithField("username", username).Info("session expired")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": MessageSessionExpired, "expired": true})
			return
		}
		if !authenticated {
			h.sessions.Delete(rec.id)
			clearSessionCookie(c.Writer, h.secureCookie)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": MessageLoginRequired})
			return
		}

		c.Set(sessionContextKey, rec)
		c.Next()
	}
}

func (h *Handler) lookupSession(c *gin.Context) (*sessionRecord, bool) {
	value, err := c.Cookie(SessionCookieName)
	if err != nil {
		return nil, false
	}
	id, err := h.cookies.Decode(value)
	if err != nil {
		h.logger.WithError(err).Debug("reject session cookie")
		return nil, false
	}
	return h.sessions.Get(id)
}

func currentSession(c *gin.Context) *sessionRecord {
	v, ok := c.Get(sessionContextKey)
	if !ok {
		return nil
	}
	rec, _ := v.(*sessionRecord)
	return rec
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = struct{}{}
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if _, ok := allowed[origin]; ok && origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")
			c.Writer.Header().Add("Vary", "Origin")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// requestLogger writes one line per request.
func requestLogger(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		entry := logger.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
			"client":   c.ClientIP(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("request failed")
			return
		}
		entry.Debug("request")
	}
}
