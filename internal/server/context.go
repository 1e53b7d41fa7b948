package server

import (
	"github.com/gin-gonic/gin"

	"ledgerline/backend/internal/security"
	sessionservice "ledgerline/backend/internal/session/service"
)

const (
	ctxIdentityKey = "auth.identity"
	ctxSessionKey  = "auth.session"
	ctxRouteKey    = "auth.route"
	sessionHeader  = "X-Session-ID"
)

func setIdentity(c *gin.Context, id *security.Identity) {
	c.Set(ctxIdentityKey, id)
}

// identityFrom returns the validated bearer identity, or nil before the auth
// middleware has run.
func identityFrom(c *gin.Context) *security.Identity {
	v, ok := c.Get(ctxIdentityKey)
	if !ok {
		return nil
	}
	id, _ := v.(*security.Identity)
	return id
}

func setValidation(c *gin.Context, v *sessionservice.Validation) {
	c.Set(ctxSessionKey, v)
}

// validationFrom returns the session validation performed by the session
// middleware, or nil on routes that do not require a session.
func validationFrom(c *gin.Context) *sessionservice.Validation {
	v, ok := c.Get(ctxSessionKey)
	if !ok {
		return nil
	}
	val, _ := v.(*sessionservice.Validation)
	return val
}
