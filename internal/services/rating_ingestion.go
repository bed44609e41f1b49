package services

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/temcen/affinity/internal/messaging"
	"github.com/temcen/affinity/pkg/models"
)

// RatingIngestionService drains the rating-events topic into the rating
// store in the background.
type RatingIngestionService struct {
	bus    *messaging.MessageBus
	store  *RatingStore
	logger *logrus.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRatingIngestionService(bus *messaging.MessageBus, store *RatingStore, logger *logrus.Logger) *RatingIngestionService {
	ctx, cancel := context.WithCancel(context.Background())
	return &RatingIngestionService{
		bus:    bus,
		store:  store,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *RatingIngestionService) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		err := s.bus.ConsumeRatings(s.ctx, func(event models.RatingEvent) error {
			return s.store.Upsert(s.ctx, event)
		})
		if err != nil && s.ctx.Err() == nil {
			s.logger.WithError(err).Error("Rating consumer stopped unexpectedly")
		}
	}()

	s.logger.Info("Rating ingestion started")
}

func (s *RatingIngestionService) Stop() {
	s.cancel()
	s.wg.Wait()
	s.logger.Info("Rating ingestion stopped")
}
