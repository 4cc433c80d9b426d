package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"turbotalk/internal/domain"
	"turbotalk/internal/service"
)

const (
	sessionStoreKey = "session_store"
	clientIDKey     = "client_id"
	clientIDHeader  = "X-Client-ID"

	clientCookieMaxAge = 60 * 60 * 24 * 365
)

// ClientSessionMiddleware identifica el contexto de navegacion (cookie o header)
// y deja su SessionStore en el contexto de gin.
func ClientSessionMiddleware(registry *service.SessionRegistry, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if registry == nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "sessions not configured"})
			c.Abort()
			return
		}

		clientID, fromCookie := "", false
		if val, err := c.Cookie(cookieName); err == nil && isClientID(val) {
			clientID, fromCookie = val, true
		} else if val := strings.TrimSpace(c.GetHeader(clientIDHeader)); isClientID(val) {
			clientID = val
		} else {
			clientID = uuid.NewString()
		}
		if !fromCookie {
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(cookieName, clientID, clientCookieMaxAge, "/", "", false, true)
		}
		c.Header(clientIDHeader, clientID)

		c.Set(clientIDKey, clientID)
		c.Set(sessionStoreKey, registry.ForClient(c.Request.Context(), clientID))
		c.Next()
	}
}

func isClientID(val string) bool {
	_, err := uuid.Parse(val)
	return err == nil
}

// GetSessionStore obtiene el store del cliente desde el contexto.
func GetSessionStore(c *gin.Context) (*service.SessionStore, bool) {
	val, ok := c.Get(sessionStoreKey)
	if !ok {
		return nil, false
	}
	store, ok := val.(*service.SessionStore)
	return store, ok
}

// RequireRole aplica el access guard antes del handler.
func RequireRole(role domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		store, ok := GetSessionStore(c)
		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "sessions not configured"})
			c.Abort()
			return
		}
		verdict := service.Decide(store.Snapshot(), role)
		if verdict.Kind != service.VerdictAllow {
			writeVerdict(c, verdict)
			c.Abort()
			return
		}
		c.Next()
	}
}

// writeVerdict traduce un veredicto no-Allow a la respuesta HTTP.
func writeVerdict(c *gin.Context, verdict service.Verdict) {
	switch verdict.Kind {
	case service.VerdictRedirect:
		c.Header("Location", verdict.Path)
		c.JSON(http.StatusSeeOther, gin.H{"redirect": verdict.Path})
	case service.VerdictDefer:
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session pending"})
	}
}
