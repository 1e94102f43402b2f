package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dualcast/backend/internal/auth"
	"github.com/dualcast/backend/pkg/response"
)

// JWT returns a middleware that validates the Bearer access token and sets the
// caller's claims in context. An expired token yields 401 token_expired so the
// client can refresh and retry; anything else yields 403 token_invalid.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, response.CodeTokenInvalid, "missing authorization header")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, response.CodeTokenInvalid, "invalid authorization header")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(parts[1])
		if err != nil {
			if errors.Is(err, auth.ErrExpiredToken) {
				response.Unauthorized(c, response.CodeTokenExpired, "access token expired")
			} else {
				response.ForbiddenCode(c, response.CodeTokenInvalid, "invalid access token")
			}
			c.Abort()
			return
		}
		c.Set(auth.ContextUserID, claims.UserID)
		c.Set(auth.ContextUserEmail, claims.Email)
		c.Next()
	}
}
