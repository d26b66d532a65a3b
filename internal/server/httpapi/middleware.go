package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mkravchenko/authd/internal/common"
	"github.com/mkravchenko/authd/internal/server/auth"
)

const claimsKey = "auth_claims"

// authenticate checks the bearer token and any required capabilities, then
// stores the decoded claims for the handler. Token problems and capability
// problems surface as 401 and 403 respectively, both with generic bodies.
func (s *HTTPServer) authenticate(required ...auth.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			unauthorized(c, "missing authorization header")
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			unauthorized(c, "invalid authorization header format")
			return
		}

		claims, err := s.users.Verify(parts[1], required...)
		if err != nil {
			if errors.Is(err, common.ErrorForbidden) {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
				return
			}
			unauthorized(c, "invalid token")
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

func unauthorized(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", "Bearer")
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
}

// currentClaims returns the claims stored by the authenticate middleware.
func currentClaims(c *gin.Context) (*auth.Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*auth.Claims)
	return claims, ok
}
