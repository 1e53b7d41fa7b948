package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"ledgerline/backend/internal/apperrors"
	"ledgerline/backend/internal/metrics"
	"ledgerline/backend/internal/registry"
	"ledgerline/backend/internal/security"
)

// Pinger is the health-check slice of the database handle.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps carries everything the router wires together.
type Deps struct {
	Log      *zap.Logger
	Tokens   *security.TokenProvider
	Sessions sessionValidator
	Routes   *registry.RouteRegistry
	Auth     *AuthHandler
	Session  *SessionHandler
	Audit    *AuditHandler
	Records  *RecordsHandler
	DB       Pinger
}

// NewRouter builds the gin engine with the full middleware pipeline: auth,
// then the read-only guard, route classification, and the session guard.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(RequestLogger(d.Log), gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		if d.DB != nil {
			if err := d.DB.PingContext(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Unrouted paths fail closed when they look sensitive: a configuration
	// error, never a plain 404 that admits the surface is unguarded.
	r.NoRoute(func(c *gin.Context) {
		if registry.LooksSensitive(c.Request.URL.Path) {
			metrics.UnclassifiedSensitiveRoutes.Inc()
			respondError(c, d.Log, apperrors.Configuration(
				"unrouted path matches sensitive-path heuristic: "+c.Request.URL.Path))
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": "not_found", "message": "not found"}})
	})

	api := r.Group("/api/v1")
	api.POST("/auth/login", d.Auth.Login)

	protected := api.Group("")
	protected.Use(
		Auth(d.Tokens, d.Log),
		ReadOnlyGuard(d.Log),
		RouteClassification(d.Routes, d.Log),
		SessionGuard(d.Sessions, d.Log),
	)
	protected.POST("/auth/logout", d.Auth.Logout)
	protected.POST("/auth/elevate", d.Auth.Elevate)
	protected.POST("/session/ping", d.Session.Ping)
	protected.POST("/sessions/revoke", d.Session.RevokeAll)
	protected.GET("/audit/logs", d.Audit.Logs)
	protected.GET("/audit/verify", d.Audit.Verify)
	protected.POST("/records/:type", d.Records.Create)
	protected.GET("/records/:type/:id", d.Records.Get)
	protected.PUT("/records/:type/:id", d.Records.Update)
	protected.DELETE("/records/:type/:id", d.Records.Delete)
	protected.POST("/records/:type/:id/export", d.Records.Export)

	return r
}
