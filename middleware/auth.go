package middleware

import (
	"github.com/NoaSkape/firefly-estimator-sub005/common/auth"
	apperrors "github.com/NoaSkape/firefly-estimator-sub005/common/errors"
	"github.com/gin-gonic/gin"
)

// IdentityKey is the gin context key holding the caller's auth.Identity.
const IdentityKey = "identity"

// TokenVerifier resolves a bearer token to an identity. *auth.Verifier
// satisfies it.
type TokenVerifier interface {
	ParseAndValidateToken(token string) (*auth.Identity, error)
}

// RequireAuth rejects requests without a valid Clerk session token.
func RequireAuth(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.BearerToken(c.GetHeader("Authorization"))
		if token == "" {
			apperrors.Respond(c, apperrors.ErrMissingToken)
			return
		}
		id, err := verifier.ParseAndValidateToken(token)
		if err != nil {
			apperrors.Respond(c, apperrors.ErrInvalidToken)
			return
		}
		c.Set(IdentityKey, *id)
		c.Next()
	}
}

// OptionalAuth attaches the identity when a valid token is present and lets
// anonymous requests through.
func OptionalAuth(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := auth.BearerToken(c.GetHeader("Authorization")); token != "" {
			if id, err := verifier.ParseAndValidateToken(token); err == nil {
				c.Set(IdentityKey, *id)
			}
		}
		c.Next()
	}
}

// AdminOnly must run after RequireAuth.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := GetIdentity(c)
		if !ok {
			apperrors.Respond(c, apperrors.ErrUnauthorized)
			return
		}
		if !id.IsAdmin() {
			apperrors.Respond(c, apperrors.ErrAdminOnly)
			return
		}
		c.Next()
	}
}

// GetIdentity returns the identity set by RequireAuth or OptionalAuth.
func GetIdentity(c *gin.Context) (auth.Identity, bool) {
	v, ok := c.Get(IdentityKey)
	if !ok {
		return auth.Identity{}, false
	}
	id, ok := v.(auth.Identity)
	return id, ok
}
