package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/temcen/affinity/internal/ml"
	"github.com/temcen/affinity/internal/services"
	"github.com/temcen/affinity/internal/validation"
	"github.com/temcen/affinity/pkg/models"
)

// asyncJobTimeout bounds background personalization runs so a stuck fit
// cannot hold the worker goroutine forever.
const asyncJobTimeout = 5 * time.Minute

type PersonalizationHandler struct {
	personalization *services.PersonalizationService
	jobs            *services.JobManager
	schemas         *validation.SchemaValidator
	validator       *validator.Validate
	logger          *logrus.Logger
}

func NewPersonalizationHandler(
	personalization *services.PersonalizationService,
	jobs *services.JobManager,
	schemas *validation.SchemaValidator,
	logger *logrus.Logger,
) *PersonalizationHandler {
	return &PersonalizationHandler{
		personalization: personalization,
		jobs:            jobs,
		schemas:         schemas,
		validator:       validator.New(),
		logger:          logger,
	}
}

// Personalize fits the requested agents synchronously and returns the
// full-catalog predictions in the response body.
func (h *PersonalizationHandler) Personalize(c *gin.Context) {
	request, ok := h.bindRequest(c)
	if !ok {
		return
	}

	response, err := h.personalization.Personalize(c.Request.Context(), request)
	if err != nil {
		h.respondPersonalizationError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// PersonalizeAsync queues the fit and returns a job ID immediately. Clients
// poll GetJob for the result.
func (h *PersonalizationHandler) PersonalizeAsync(c *gin.Context) {
	request, ok := h.bindRequest(c)
	if !ok {
		return
	}

	job, err := h.jobs.CreateJob(c.Request.Context(), len(request.Agents))
	if err != nil {
		h.logger.WithError(err).Error("Failed to create personalization job")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "JOB_CREATION_FAILED",
				"message": "Failed to create personalization job",
			},
		})
		return
	}

	go h.runJob(job.JobID, request)

	c.JSON(http.StatusAccepted, gin.H{
		"job_id": job.JobID,
		"status": job.Status,
	})
}

func (h *PersonalizationHandler) runJob(jobID uuid.UUID, request *models.PersonalizeRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), asyncJobTimeout)
	defer cancel()

	if err := h.jobs.MarkProcessing(ctx, jobID); err != nil {
		h.logger.WithError(err).WithField("job_id", jobID).Error("Failed to mark job processing")
		return
	}

	response, err := h.personalization.Personalize(ctx, request)
	if err != nil {
		h.logger.WithError(err).WithField("job_id", jobID).Warn("Personalization job failed")
		if failErr := h.jobs.FailJob(ctx, jobID, err.Error()); failErr != nil {
			h.logger.WithError(failErr).WithField("job_id", jobID).Error("Failed to record job failure")
		}
		return
	}

	if err := h.jobs.CompleteJob(ctx, jobID, response); err != nil {
		h.logger.WithError(err).WithField("job_id", jobID).Error("Failed to record job completion")
	}
}

// PersonalizeFromStore fits agents from ratings previously ingested through
// the rating-events topic. Only items rated by every requested agent
// participate in the fit.
func (h *PersonalizationHandler) PersonalizeFromStore(c *gin.Context) {
	var request models.StorePersonalizeRequest

	if err := c.ShouldBindJSON(&request); err != nil {
		h.logger.WithError(err).Warn("Invalid JSON in from-store personalization request")
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
		h.logger.WithError(err).Warn("From-store personalization validation failed")
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "VALIDATION_FAILED",
				"message": "From-store personalization validation failed",
				"details": err.Error(),
			},
		})
		return
	}

	response, err := h.personalization.PersonalizeFromStore(c.Request.Context(), request.AgentIDs, request.TopN)
	if err != nil {
		h.respondPersonalizationError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// GetJob returns the current state of an asynchronous personalization job,
// including the result once the job has completed.
func (h *PersonalizationHandler) GetJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("jobId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_JOB_ID",
				"message": "Invalid job ID format",
			},
		})
		return
	}

	job, err := h.jobs.GetJob(c.Request.Context(), jobID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": gin.H{
				"code":    "JOB_NOT_FOUND",
				"message": err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, job)
}

// GetPredictions serves an agent's cached predictions. The optional `top`
// query parameter truncates the list head-first; predictions are stored
// already sorted when the fitting request asked for a top-N cut.
func (h *PersonalizationHandler) GetPredictions(c *gin.Context) {
	agentID, err := uuid.Parse(c.Param("agentId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_AGENT_ID",
				"message": "Invalid agent ID format",
			},
		})
		return
	}

	predictions, err := h.personalization.CachedPredictions(c.Request.Context(), agentID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": gin.H{
				"code":    "PREDICTIONS_NOT_FOUND",
				"message": err.Error(),
			},
		})
		return
	}

	if topStr := c.Query("top"); topStr != "" {
		if top, parseErr := strconv.Atoi(topStr); parseErr == nil && top > 0 && top < len(predictions.Predictions) {
			predictions.Predictions = predictions.Predictions[:top]
		}
	}

	c.JSON(http.StatusOK, predictions)
}

// bindRequest decodes and validates a personalization payload. The raw body
// goes through the same schema gate the rating-event consumer applies, then
// the decoded struct through the field validator.
func (h *PersonalizationHandler) bindRequest(c *gin.Context) (*models.PersonalizeRequest, bool) {
	body, err := c.GetRawData()
	if err != nil {
		h.logger.WithError(err).Warn("Failed to read personalization request body")
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_JSON",
				"message": "Failed to read request body",
				"details": err.Error(),
			},
		})
		return nil, false
	}

	var request models.PersonalizeRequest
	if err := json.Unmarshal(body, &request); err != nil {
		h.logger.WithError(err).Warn("Invalid JSON in personalization request")
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_JSON",
				"message": "Invalid JSON format",
				"details": err.Error(),
			},
		})
		return nil, false
	}

	if result := h.schemas.ValidatePersonalizeRequest(body); !result.Valid {
		h.logger.WithField("schema_errors", result.Errors).Warn("Personalization request failed schema validation")
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "VALIDATION_FAILED",
				"message": "Personalization request failed schema validation",
				"details": strings.Join(result.Errors, "; "),
			},
		})
		return nil, false
	}

	if err := h.validator.Struct(&request); err != nil {
		h.logger.WithError(err).Warn("Personalization request validation failed")
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "VALIDATION_FAILED",
				"message": "Personalization request validation failed",
				"details": err.Error(),
			},
		})
		return nil, false
	}

	return &request, true
}

func (h *PersonalizationHandler) respondPersonalizationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ml.ErrShapeMismatch):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "SHAPE_MISMATCH",
				"message": err.Error(),
			},
		})
	case errors.Is(err, ml.ErrDegenerateInput):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "DEGENERATE_INPUT",
				"message": err.Error(),
			},
		})
	case errors.Is(err, ml.ErrNumericAnomaly):
		h.logger.WithError(err).Error("Numeric anomaly during personalization")
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": gin.H{
				"code":    "NUMERIC_ANOMALY",
				"message": err.Error(),
			},
		})
	default:
		h.logger.WithError(err).Error("Personalization failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "PERSONALIZATION_FAILED",
				"message": "Personalization failed",
			},
		})
	}
}
