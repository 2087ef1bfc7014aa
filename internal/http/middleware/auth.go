// README: Auth middleware verifying Firebase ID tokens and exposing the caller to handlers.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/GroupeBH/zwanga-sub000/internal/infra"
	"github.com/GroupeBH/zwanga-sub000/internal/types"
)

const (
	ctxCallerUID    = "caller_uid"
	ctxCallerClaims = "caller_claims"
)

// Auth rejects requests without a valid ID token. The token is read from the
// Authorization header, or from the access_token query parameter for websocket
// upgrades where browsers cannot set headers.
func Auth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c.GetHeader("Authorization"))
		if raw == "" && c.IsWebsocket() {
			raw = c.Query("access_token")
		}
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		token, err := verifier.VerifyIDToken(c.Request.Context(), raw)
		if err != nil || token == nil || token.UID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(ctxCallerUID, types.ID(token.UID))
		c.Set(ctxCallerClaims, token.Claims)
		c.Next()
	}
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// CallerUID returns the authenticated user's id, empty outside Auth.
func CallerUID(c *gin.Context) types.ID {
	v, _ := c.Get(ctxCallerUID)
	uid, _ := v.(types.ID)
	return uid
}

// CallerRole returns the "role" custom claim, if any.
func CallerRole(c *gin.Context) string {
	v, _ := c.Get(ctxCallerClaims)
	claims, _ := v.(map[string]interface{})
	role, _ := claims["role"].(string)
	return role
}
