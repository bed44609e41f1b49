package services

import (
	"github.com/sirupsen/logrus"

	"github.com/temcen/affinity/internal/config"
	"github.com/temcen/affinity/internal/database"
	"github.com/temcen/affinity/internal/messaging"
)

type Services struct {
	Auth            *AuthService
	Health          *HealthService
	Features        *FeatureStore
	Ratings         *RatingStore
	Personalization *PersonalizationService
	JobManager      *JobManager
	RatingIngestion *RatingIngestionService
	MessageBus      *messaging.MessageBus
	Metrics         *MetricsCollector
}

func New(cfg *config.Config, logger *logrus.Logger, db *database.Database) (*Services, error) {
	authService := NewAuthService(cfg, logger, db.Redis.Hot)
	healthService := NewHealthService(cfg, logger, db)
	metricsCollector := NewMetricsCollector()

	featureStore := NewFeatureStore(db.PG, &cfg.Catalog, logger)
	ratingStore := NewRatingStore(db.PG, logger)

	messageBus, err := messaging.NewMessageBus(cfg, logger)
	if err != nil {
		return nil, err
	}
	ratingIngestion := NewRatingIngestionService(messageBus, ratingStore, logger)

	personalizationService := NewPersonalizationService(
		featureStore, ratingStore, db.Redis.Warm, metricsCollector, &cfg.Training, logger,
	)
	jobManager := NewJobManager(db.Redis.Hot, logger)

	return &Services{
		Auth:            authService,
		Health:          healthService,
		Features:        featureStore,
		Ratings:         ratingStore,
		Personalization: personalizationService,
		JobManager:      jobManager,
		RatingIngestion: ratingIngestion,
		MessageBus:      messageBus,
		Metrics:         metricsCollector,
	}, nil
}
