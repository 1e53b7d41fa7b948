package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ledgerline/backend/internal/apperrors"
	"ledgerline/backend/internal/metrics"
	"ledgerline/backend/internal/registry"
	"ledgerline/backend/internal/security"
	sessionservice "ledgerline/backend/internal/session/service"
)

const bearerPrefix = "bearer "

// RequestLogger logs one line per request with latency and status.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}

// Auth validates the Bearer token and stores the identity in the request
// context. Every route behind it requires a valid token.
func Auth(tokens *security.TokenProvider, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearer(c.GetHeader("Authorization"))
		if token == "" {
			respondError(c, log, apperrors.SessionInvalid(apperrors.CodeSessionNotFound, "missing or invalid authorization"))
			return
		}
		id, err := tokens.Validate(token)
		if err != nil {
			respondError(c, log, apperrors.SessionInvalid(apperrors.CodeSessionNotFound, "missing or invalid authorization"))
			return
		}
		setIdentity(c, id)
		c.Next()
	}
}

// extractBearer returns the Bearer token from the Authorization header value,
// or "" if missing or malformed.
func extractBearer(header string) string {
	v := strings.TrimSpace(header)
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}

// ReadOnlyGuard rejects non-idempotent methods for read-only tokens before
// any handler runs.
func ReadOnlyGuard(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identityFrom(c)
		if id != nil && id.ReadOnly {
			switch c.Request.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
			default:
				respondError(c, log, apperrors.ReadOnly())
				return
			}
		}
		c.Next()
	}
}

// RouteClassification resolves the route's registry entry and fails closed:
// a path that matches the sensitive-path heuristic but has no entry is a
// configuration error, never a pass-through. The resolved entry is stored for
// the session middleware and handlers.
func RouteClassification(routes *registry.RouteRegistry, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		pattern := c.FullPath()
		route, ok := routes.Lookup(c.Request.Method, pattern)
		if !ok {
			if registry.LooksSensitive(c.Request.URL.Path) {
				metrics.UnclassifiedSensitiveRoutes.Inc()
				respondError(c, log, apperrors.Configuration(
					"unclassified route matches sensitive-path heuristic: "+c.Request.Method+" "+pattern))
				return
			}
			c.Next()
			return
		}
		c.Set(ctxRouteKey, route)
		c.Next()
	}
}

// routeFrom returns the classification entry resolved for this request, or
// nil for unclassified benign routes.
func routeFrom(c *gin.Context) *registry.Route {
	v, ok := c.Get(ctxRouteKey)
	if !ok {
		return nil
	}
	route, _ := v.(*registry.Route)
	return route
}

// sessionValidator is the slice of the session service the guard needs.
type sessionValidator interface {
	ValidateSession(ctx context.Context, sessionID, ip, userAgent, expectedUserID string) (*sessionservice.Validation, error)
}

// SessionGuard enforces the session requirement declared in the route
// registry. The session id travels in the X-Session-ID header; the session
// must belong to the token's user.
func SessionGuard(sessions sessionValidator, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		route := routeFrom(c)
		if route == nil || !route.RequiresSession {
			c.Next()
			return
		}
		id := identityFrom(c)
		sessionID := c.GetHeader(sessionHeader)
		if sessionID == "" {
			respondError(c, log, apperrors.SessionInvalid(apperrors.CodeSessionNotFound, "session required"))
			return
		}
		v, err := sessions.ValidateSession(c.Request.Context(), sessionID, c.ClientIP(), c.Request.UserAgent(), id.UserID)
		if err != nil {
			respondError(c, log, err)
			return
		}
		setValidation(c, v)
		c.Next()
	}
}
