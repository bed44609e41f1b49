package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/temcen/affinity/internal/config"
	"github.com/temcen/affinity/internal/database"
	"github.com/temcen/affinity/internal/handlers"
	"github.com/temcen/affinity/internal/middleware"
	"github.com/temcen/affinity/internal/services"
)

type App struct {
	config   *config.Config
	logger   *logrus.Logger
	db       *database.Database
	services *services.Services
	handlers *handlers.Handlers
	router   *gin.Engine
}

func New(cfg *config.Config) (*App, error) {
	app := &App{
		config: cfg,
		logger: setupLogger(cfg),
	}

	db, err := database.New(cfg, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	svc, err := services.New(cfg, app.logger, db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	app.services = svc

	h, err := handlers.New(cfg, app.logger, svc)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}
	app.handlers = h

	app.setupRouter()

	// Drain rating events into the store in the background.
	svc.RatingIngestion.Start()

	return app, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("Shutting down application...")

	a.services.RatingIngestion.Stop()

	if err := a.services.MessageBus.Close(); err != nil {
		a.logger.WithError(err).Error("Error closing message bus")
	}

	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Error("Error closing database connections")
		return err
	}

	return nil
}

func setupLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}

func (a *App) setupRouter() {
	if a.config.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(middleware.Logger(a.logger))
	router.Use(middleware.Recovery(a.logger))
	router.Use(middleware.CORS(a.config))

	// Health check endpoint (no auth required)
	router.GET("/health", a.handlers.Health.Check)

	// Prometheus metrics endpoint (no auth required)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Token exchange (API key in the body, not the Authorization header)
	router.POST("/api/v1/auth/token", a.handlers.Auth.Token)

	// API routes
	api := router.Group("/api/v1")
	{
		api.Use(middleware.Auth(a.services.Auth, a.logger))

		// Catalog routes
		catalog := api.Group("/catalog")
		{
			catalog.POST("/items", a.handlers.Catalog.Ingest)
			catalog.GET("/items", a.handlers.Catalog.List)
		}

		// Rating routes
		api.POST("/ratings", a.handlers.Ratings.Submit)

		// Personalization routes
		api.POST("/personalize", a.handlers.Personalization.Personalize)
		api.POST("/personalize/async", a.handlers.Personalization.PersonalizeAsync)
		api.POST("/personalize/from-store", a.handlers.Personalization.PersonalizeFromStore)
		api.GET("/personalize/jobs/:jobId", a.handlers.Personalization.GetJob)

		// Cached prediction routes
		api.GET("/predictions/:agentId", a.handlers.Personalization.GetPredictions)
	}

	a.router = router
}
