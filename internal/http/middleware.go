package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"espresso-tracker/internal/token"
)

const ctxUserIDKey = "userID"

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// requireAuth validates the bearer token and injects the user id into the
// request context.
func requireAuth(tokens *token.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := bearerUserID(c, tokens)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid access token"})
			return
		}
		c.Set(ctxUserIDKey, userID)
		c.Next()
	}
}

// optionalAuth injects the user id when a valid token is present and lets
// anonymous requests through untouched. Listings read it to decide whether a
// "mine" partition exists.
func optionalAuth(tokens *token.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID, ok := bearerUserID(c, tokens); ok {
			c.Set(ctxUserIDKey, userID)
		}
		c.Next()
	}
}

func bearerUserID(c *gin.Context, tokens *token.Manager) (int64, bool) {
	header := c.GetHeader("Authorization")
	raw, found := strings.CutPrefix(header, "Bearer ")
	if !found || strings.TrimSpace(raw) == "" {
		return 0, false
	}
	userID, err := tokens.ParseAccess(strings.TrimSpace(raw))
	if err != nil {
		return 0, false
	}
	return userID, true
}

// viewerID returns the authenticated user id, or nil for anonymous requests.
func viewerID(c *gin.Context) *int64 {
	v, exists := c.Get(ctxUserIDKey)
	if !exists {
		return nil
	}
	id, ok := v.(int64)
	if !ok {
		return nil
	}
	return &id
}

// currentUserID must only be called behind requireAuth.
func currentUserID(c *gin.Context) int64 {
	return c.GetInt64(ctxUserIDKey)
}
