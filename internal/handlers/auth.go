package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/temcen/affinity/internal/config"
	"github.com/temcen/affinity/internal/services"
	"github.com/temcen/affinity/pkg/models"
)

type AuthHandler struct {
	auth      *services.AuthService
	config    *config.Config
	validator *validator.Validate
	logger    *logrus.Logger
}

func NewAuthHandler(auth *services.AuthService, cfg *config.Config, logger *logrus.Logger) *AuthHandler {
	return &AuthHandler{
		auth:      auth,
		config:    cfg,
		validator: validator.New(),
		logger:    logger,
	}
}

// Token exchanges a provisioned API key for a short-lived JWT.
func (h *AuthHandler) Token(c *gin.Context) {
	var request models.AuthRequest

	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_JSON",
				"message": "Invalid JSON format",
				"details": err.Error(),
			},
		})
		return
	}

	if err := h.validator.Struct(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "VALIDATION_FAILED",
				"message": "Auth request validation failed",
				"details": err.Error(),
			},
		})
		return
	}

	userTier, err := h.auth.ValidateAPIKey(request.APIKey)
	if err != nil {
		h.logger.WithError(err).Warn("Token exchange with invalid API key")
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": gin.H{
				"code":    "INVALID_API_KEY",
				"message": "Invalid API key",
			},
		})
		return
	}

	userID := uuid.New()
	if request.UserID != "" {
		userID, err = uuid.Parse(request.UserID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{
					"code":    "INVALID_USER_ID",
					"message": "Invalid user ID format",
				},
			})
			return
		}
	}

	token, err := h.auth.GenerateToken(userID, request.APIKey, userTier)
	if err != nil {
		h.logger.WithError(err).Error("Failed to generate token")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "TOKEN_GENERATION_FAILED",
				"message": "Failed to generate token",
			},
		})
		return
	}

	c.JSON(http.StatusOK, models.AuthResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(h.config.Auth.TokenTTL),
		UserTier:  userTier,
	})
}
