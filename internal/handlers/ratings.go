package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/temcen/affinity/internal/messaging"
	"github.com/temcen/affinity/pkg/models"
)

type RatingHandler struct {
	bus       *messaging.MessageBus
	validator *validator.Validate
	logger    *logrus.Logger
}

func NewRatingHandler(bus *messaging.MessageBus, logger *logrus.Logger) *RatingHandler {
	return &RatingHandler{
		bus:       bus,
		validator: validator.New(),
		logger:    logger,
	}
}

// Submit publishes one rating to the rating-events topic. The background
// consumer upserts it into the rating store, so the write is acknowledged
// before it becomes visible to from-store personalization.
func (h *RatingHandler) Submit(c *gin.Context) {
	var request models.RatingSubmissionRequest

	if err := c.ShouldBindJSON(&request); err != nil {
		h.logger.WithError(err).Warn("Invalid JSON in rating submission")
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
		h.logger.WithError(err).Warn("Rating submission validation failed")
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "VALIDATION_FAILED",
				"message": "Rating submission validation failed",
				"details": err.Error(),
			},
		})
		return
	}

	event := models.RatingEvent{
		EventID:   uuid.New(),
		AgentID:   request.AgentID,
		ItemID:    request.ItemID,
		Rating:    request.Rating,
		Timestamp: time.Now(),
	}

	if err := h.bus.PublishRating(event); err != nil {
		h.logger.WithError(err).Error("Failed to publish rating event")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "PUBLISH_FAILED",
				"message": "Failed to publish rating event",
			},
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"event_id": event.EventID,
		"status":   "accepted",
	})
}
