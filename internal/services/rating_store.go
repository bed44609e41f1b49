package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/temcen/affinity/pkg/models"
)

// RatingStore persists observed ratings arriving from the rating-events
// topic. One row per (agent, item) pair; resubmissions overwrite.
type RatingStore struct {
	db     DatabaseQuerier
	logger *logrus.Logger
}

func NewRatingStore(db DatabaseQuerier, logger *logrus.Logger) *RatingStore {
	return &RatingStore{
		db:     db,
		logger: logger,
	}
}

func (rs *RatingStore) Upsert(ctx context.Context, event models.RatingEvent) error {
	_, err := rs.db.Exec(ctx,
		`INSERT INTO ratings (agent_id, item_id, rating, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (agent_id, item_id) DO UPDATE SET rating = $3, updated_at = $4`,
		event.AgentID, event.ItemID, event.Rating, event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert rating: %w", err)
	}

	rs.logger.WithFields(logrus.Fields{
		"agent_id": event.AgentID,
		"item_id":  event.ItemID,
		"rating":   event.Rating,
	}).Debug("Rating stored")

	return nil
}

// RatingsForAgent returns all stored ratings of one agent keyed by item.
func (rs *RatingStore) RatingsForAgent(ctx context.Context, agentID uuid.UUID) (map[uuid.UUID]float64, error) {
	rows, err := rs.db.Query(ctx,
		`SELECT item_id, rating FROM ratings WHERE agent_id = $1`,
		agentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load ratings for agent %s: %w", agentID, err)
	}
	defer rows.Close()

	ratings := make(map[uuid.UUID]float64)
	for rows.Next() {
		var itemID uuid.UUID
		var rating float64
		if err := rows.Scan(&itemID, &rating); err != nil {
			return nil, fmt.Errorf("failed to scan rating row: %w", err)
		}
		ratings[itemID] = rating
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ratings query failed: %w", err)
	}

	return ratings, nil
}
