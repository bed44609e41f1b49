package models

import (
	"time"

	"github.com/google/uuid"
)

// RatingEvent is the wire format of a rating submission on the rating-events
// topic. Events failing schema validation are routed to the DLQ.
type RatingEvent struct {
	EventID   uuid.UUID `json:"event_id"`
	AgentID   uuid.UUID `json:"agent_id"`
	ItemID    uuid.UUID `json:"item_id"`
	Rating    float64   `json:"rating"`
	Timestamp time.Time `json:"timestamp"`
}

// RatingSubmissionRequest is the HTTP body for submitting one rating. The
// server assigns the event ID and timestamp before publishing.
type RatingSubmissionRequest struct {
	AgentID uuid.UUID `json:"agent_id" validate:"required"`
	ItemID  uuid.UUID `json:"item_id" validate:"required"`
	Rating  float64   `json:"rating" validate:"number"`
}

// StorePersonalizeRequest asks for a fit built from ratings already ingested
// through the rating-events topic.
type StorePersonalizeRequest struct {
	AgentIDs []uuid.UUID `json:"agent_ids" validate:"required,min=1,max=100"`
	TopN     int         `json:"top_n,omitempty" validate:"omitempty,min=1,max=1000"`
}
