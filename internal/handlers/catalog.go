package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/temcen/affinity/internal/ml"
	"github.com/temcen/affinity/internal/services"
	"github.com/temcen/affinity/pkg/models"
)

type CatalogHandler struct {
	features  *services.FeatureStore
	validator *validator.Validate
	logger    *logrus.Logger
}

func NewCatalogHandler(features *services.FeatureStore, logger *logrus.Logger) *CatalogHandler {
	return &CatalogHandler{
		features:  features,
		validator: validator.New(),
		logger:    logger,
	}
}

func (h *CatalogHandler) Ingest(c *gin.Context) {
	var request models.ItemBatchRequest

	if err := c.ShouldBindJSON(&request); err != nil {
		h.logger.WithError(err).Warn("Invalid JSON in catalog ingestion request")
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
		h.logger.WithError(err).Warn("Catalog item validation failed")
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "VALIDATION_FAILED",
				"message": "Catalog item validation failed",
				"details": err.Error(),
			},
		})
		return
	}

	items, err := h.features.IngestItems(c.Request.Context(), request.Items)
	if err != nil {
		if errors.Is(err, ml.ErrShapeMismatch) || errors.Is(err, ml.ErrDegenerateInput) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{
					"code":    "INVALID_FEATURES",
					"message": err.Error(),
				},
			})
			return
		}

		h.logger.WithError(err).Error("Failed to ingest catalog items")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "INGESTION_FAILED",
				"message": "Failed to ingest catalog items",
			},
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"items": items})
}

func (h *CatalogHandler) List(c *gin.Context) {
	page := 1
	if pageStr := c.Query("page"); pageStr != "" {
		if parsed, err := strconv.Atoi(pageStr); err == nil && parsed > 0 {
			page = parsed
		}
	}

	pageSize := 0 // service applies the configured default
	if sizeStr := c.Query("page_size"); sizeStr != "" {
		if parsed, err := strconv.Atoi(sizeStr); err == nil && parsed > 0 && parsed <= 500 {
			pageSize = parsed
		}
	}

	result, err := h.features.ListItems(c.Request.Context(), page, pageSize)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list catalog items")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "CATALOG_LIST_FAILED",
				"message": "Failed to list catalog items",
			},
		})
		return
	}

	c.JSON(http.StatusOK, result)
}
