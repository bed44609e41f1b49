package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temcen/affinity/internal/config"
	"github.com/temcen/affinity/internal/services"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

// Session storage is best-effort: token validation proceeds when Redis is
// unreachable, so an address nothing listens on exercises that path.
func testAuthService() *services.AuthService {
	cfg := &config.Config{}
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Auth.TokenTTL = time.Hour

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	return services.NewAuthService(cfg, testLogger(), client)
}

func setupAuthRouter(authService *services.AuthService) *gin.Engine {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(Auth(authService, testLogger()))
	router.GET("/ping", func(c *gin.Context) {
		userID, _ := c.Get("user_id")
		tier, _ := c.Get("user_tier")
		c.JSON(http.StatusOK, gin.H{
			"user_id":   userID,
			"user_tier": tier,
		})
	})

	return router
}

func TestAuth_RejectsMissingHeader(t *testing.T) {
	router := setupAuthRouter(testAuthService())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "MISSING_AUTHORIZATION")
}

func TestAuth_RejectsNonBearerHeader(t *testing.T) {
	router := setupAuthRouter(testAuthService())

	for _, header := range []string{"Basic abc123", "Bearer", "Bearer one two"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set("Authorization", header)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code, "header %q", header)
		assert.Contains(t, w.Body.String(), "INVALID_AUTHORIZATION_FORMAT")
	}
}

func TestAuth_RejectsGarbageJWT(t *testing.T) {
	router := setupAuthRouter(testAuthService())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Authorization", "Bearer not.a.token")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_TOKEN")
}

func TestAuth_RejectsUnknownAPIKey(t *testing.T) {
	router := setupAuthRouter(testAuthService())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Authorization", "Bearer no-dots-here")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_API_KEY")
}

func TestAuth_AcceptsIssuedJWT(t *testing.T) {
	authService := testAuthService()
	router := setupAuthRouter(authService)

	userID := uuid.New()
	token, err := authService.GenerateToken(userID, "demo-key", "premium")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), userID.String())
	assert.Contains(t, w.Body.String(), "premium")
}
