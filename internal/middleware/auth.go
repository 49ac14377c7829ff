package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// TokenVerifier resolves a session token to a user id.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (int, error)
}

// PresenceToucher records user activity.
type PresenceToucher interface {
	TouchPresence(ctx context.Context, userID int) error
}

// AuthMiddleware validates the bearer token, stores the caller as "userID" and
// touches their last-seen. presence may be nil.
func AuthMiddleware(verifier TokenVerifier, presence PresenceToucher, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		token, ok := BearerToken(header)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		userID, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("userID", userID)
		if presence != nil {
			if err := presence.TouchPresence(c.Request.Context(), userID); err != nil {
				logger.WarnContext(c.Request.Context(), "touch presence failed", "user_id", userID, "error", err)
			}
		}
		c.Next()
	}
}

// BearerToken extracts the token from an "Authorization: Bearer" header value.
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}
