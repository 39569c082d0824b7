package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/suryadevkumar/SheSecure-sub000/internal/config"
	"github.com/suryadevkumar/SheSecure-sub000/internal/utils"
)

// Auth validates the bearer token and binds user identity to the request
// context. WebSocket clients cannot set headers, so the token is also
// accepted as a query parameter.
func Auth(cfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c)
		if tokenString == "" {
			utils.UnauthorizedResponse(c, "Missing auth token")
			c.Abort()
			return
		}

		claims, err := utils.ValidateToken(cfg, tokenString)
		if err != nil {
			utils.UnauthorizedResponse(c, "Invalid auth token")
			c.Abort()
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("role", claims.Role)
		c.Next()
	}
}

// RequireCounselor gates endpoints to counselor tokens. Must run after Auth.
func RequireCounselor() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString("role") != "counselor" {
			utils.ErrorResponseWithCode(c, http.StatusForbidden, "COUNSELOR_ONLY", "Counselor access required")
			c.Abort()
			return
		}
		c.Next()
	}
}

func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		if token := strings.TrimPrefix(authHeader, "Bearer "); token != authHeader {
			return token
		}
		return ""
	}
	return c.Query("token")
}
