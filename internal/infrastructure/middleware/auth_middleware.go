package middleware

import (
	"net/http"
	"strings"

	"vinyl/internal/core/domain"
	"vinyl/internal/core/services"
	"vinyl/pkg/logger"

	"github.com/gin-gonic/gin"
)

const sessionKey = "session"

// bearerToken reads the Authorization header, falling back to the token
// query parameter for media elements and websockets that cannot set headers.
func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		token := c.Query("token")
		return token, token != ""
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", false
	}
	return parts[1], true
}

func attachSession(c *gin.Context, claims *services.Claims) {
	session := claims.Session()

	ctx := services.WithSession(c.Request.Context(), session)
	ctx = logger.WithUserID(ctx, string(session.User))
	c.Request = c.Request.WithContext(ctx)

	c.Set(sessionKey, session)
	c.Set("user_id", session.User)
	c.Set("username", session.Username)
}

func AuthMiddleware(authService services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			c.Abort()
			return
		}

		claims, err := authService.ValidateToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			c.Abort()
			return
		}

		attachSession(c, claims)
		c.Next()
	}
}

// SessionFrom returns the identity attached by AuthMiddleware.
func SessionFrom(c *gin.Context) (domain.Session, bool) {
	v, ok := c.Get(sessionKey)
	if !ok {
		return domain.Session{}, false
	}
	session, ok := v.(domain.Session)
	return session, ok
}
