package handlers

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/temcen/affinity/internal/config"
	"github.com/temcen/affinity/internal/services"
	"github.com/temcen/affinity/internal/validation"
)

// Handlers bundles the HTTP handlers for route registration.
type Handlers struct {
	Auth            *AuthHandler
	Health          *HealthHandler
	Catalog         *CatalogHandler
	Personalization *PersonalizationHandler
	Ratings         *RatingHandler
}

func New(cfg *config.Config, logger *logrus.Logger, svc *services.Services) (*Handlers, error) {
	schemas, err := validation.NewSchemaValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to compile request schemas: %w", err)
	}

	return &Handlers{
		Auth:            NewAuthHandler(svc.Auth, cfg, logger),
		Health:          NewHealthHandler(logger, svc.Health),
		Catalog:         NewCatalogHandler(svc.Features, logger),
		Personalization: NewPersonalizationHandler(svc.Personalization, svc.JobManager, schemas, logger),
		Ratings:         NewRatingHandler(svc.MessageBus, logger),
	}, nil
}
