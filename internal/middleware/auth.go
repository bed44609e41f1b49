package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/temcen/affinity/internal/services"
)

// Auth guards the API group. Callers present either a raw API key or a JWT
// previously issued by the token endpoint; the two are told apart by shape,
// since JWTs are dotted three-part strings and API keys never contain dots.
func Auth(authService *services.AuthService, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, errCode, errMessage := bearerToken(c.GetHeader("Authorization"))
		if errCode != "" {
			abortAuth(c, http.StatusUnauthorized, errCode, errMessage)
			return
		}

		if strings.Contains(token, ".") {
			claims, err := authService.ValidateToken(token)
			if err != nil {
				logger.WithError(err).Warn("Rejected JWT")
				abortAuth(c, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token")
				return
			}

			setIdentity(c, claims.UserID, claims.UserTier, claims.APIKey)
			c.Next()
			return
		}

		tier, err := authService.ValidateAPIKey(token)
		if err != nil {
			logger.WithError(err).Warn("Rejected API key")
			abortAuth(c, http.StatusUnauthorized, "INVALID_API_KEY", "Invalid API key")
			return
		}

		callerID, err := callerIdentity(c)
		if err != nil {
			abortAuth(c, http.StatusBadRequest, "INVALID_USER_ID", "Invalid user ID format")
			return
		}

		setIdentity(c, callerID, tier, token)
		c.Next()
	}
}

// bearerToken extracts the credential from an Authorization header value and
// reports a rejection code when the header is absent or malformed.
func bearerToken(header string) (token, errCode, errMessage string) {
	if header == "" {
		return "", "MISSING_AUTHORIZATION", "Authorization header is required"
	}

	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", "INVALID_AUTHORIZATION_FORMAT", "Authorization header must be in format 'Bearer <token>'"
	}

	return parts[1], "", ""
}

// callerIdentity resolves the agent behind an API-key request from the
// optional X-User-ID header. Requests without one get a throwaway identity.
func callerIdentity(c *gin.Context) (uuid.UUID, error) {
	raw := c.GetHeader("X-User-ID")
	if raw == "" {
		return uuid.New(), nil
	}
	return uuid.Parse(raw)
}

func setIdentity(c *gin.Context, userID uuid.UUID, tier, apiKey string) {
	c.Set("user_id", userID)
	c.Set("user_tier", tier)
	c.Set("api_key", apiKey)
}

func abortAuth(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
	c.Abort()
}
