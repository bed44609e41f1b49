package models

import (
	"time"

	"github.com/google/uuid"
)

// ObservedRating is one (item, agent) rating used to fit a new agent's
// preference vector during cold start.
type ObservedRating struct {
	ItemID uuid.UUID `json:"item_id" validate:"required"`
	Rating float64   `json:"rating" validate:"number"`
}

// AgentRatings groups the observed ratings of one new agent. Every agent in
// a personalization request must rate the same set of items so the observed
// ratings form a complete items x agents matrix.
type AgentRatings struct {
	AgentID uuid.UUID        `json:"agent_id" validate:"required"`
	Ratings []ObservedRating `json:"ratings" validate:"required,min=1,dive"`
}

type PersonalizeRequest struct {
	Agents []AgentRatings `json:"agents" validate:"required,min=1,dive"`
	TopN   int            `json:"top_n,omitempty" validate:"omitempty,min=1,max=1000"`
}

// AgentPredictions is the recommendation output for one agent: predicted
// ratings over the full catalog, sorted head first when TopN was requested.
type AgentPredictions struct {
	AgentID     uuid.UUID        `json:"agent_id"`
	Preferences []float64        `json:"preferences"`
	Predictions []ItemPrediction `json:"predictions"`
}

type ItemPrediction struct {
	ItemID    uuid.UUID `json:"item_id"`
	Name      string    `json:"name"`
	Predicted float64   `json:"predicted"`
}

type PersonalizeResponse struct {
	JobID       uuid.UUID          `json:"job_id"`
	Agents      []AgentPredictions `json:"agents"`
	FinalLoss   float64            `json:"final_loss"`
	Rounds      int                `json:"rounds"`
	GeneratedAt time.Time          `json:"generated_at"`
}

// PersonalizationJob tracks an asynchronous personalization request.
type PersonalizationJob struct {
	JobID        uuid.UUID            `json:"job_id"`
	Status       string               `json:"status"` // queued, processing, completed, failed
	AgentCount   int                  `json:"agent_count"`
	ErrorMessage *string              `json:"error_message,omitempty"`
	Result       *PersonalizeResponse `json:"result,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}
