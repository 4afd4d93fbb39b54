package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rajyaabhishek/LawX-sub001/internal/identity"
	"github.com/rajyaabhishek/LawX-sub001/internal/logger"
)

const (
	// UserIDKey holds the canonical user id of an authenticated request.
	UserIDKey = "userID"
	// ExternalIDKey holds the token subject as issued by the identity provider.
	ExternalIDKey = "externalID"
)

type TokenVerifier interface {
	Subject(token string) (string, error)
}

type IdentityResolver interface {
	Resolve(ctx context.Context, id string) (string, error)
}

// AuthMiddleware verifies the bearer token and maps its subject to the
// canonical user id.
func AuthMiddleware(verifier TokenVerifier, resolver IdentityResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		subject, err := verifier.Subject(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		userID, err := resolver.Resolve(c.Request.Context(), subject)
		switch {
		case errors.Is(err, identity.ErrUnknownUser):
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
			return
		case err != nil:
			logger.Error().Err(err).Str("subject", subject).Msg("identity resolution failed")
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "identity service unavailable"})
			return
		}

		c.Set(UserIDKey, userID)
		c.Set(ExternalIDKey, subject)
		c.Next()
	}
}
