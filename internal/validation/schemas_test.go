package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaValidator_RatingEvent(t *testing.T) {
	sv, err := NewSchemaValidator()
	require.NoError(t, err)

	t.Run("valid event", func(t *testing.T) {
		payload := []byte(`{
			"event_id": "3e2f5aa2-1f60-4c0b-9a3e-21d3a8f9f001",
			"agent_id": "3e2f5aa2-1f60-4c0b-9a3e-21d3a8f9f002",
			"item_id": "3e2f5aa2-1f60-4c0b-9a3e-21d3a8f9f003",
			"rating": -1.5,
			"timestamp": "2026-08-23T10:00:00Z"
		}`)

		result := sv.ValidateRatingEvent(payload)
		assert.True(t, result.Valid, "errors: %v", result.Errors)
	})

	t.Run("missing rating", func(t *testing.T) {
		payload := []byte(`{
			"event_id": "3e2f5aa2-1f60-4c0b-9a3e-21d3a8f9f001",
			"agent_id": "3e2f5aa2-1f60-4c0b-9a3e-21d3a8f9f002",
			"item_id": "3e2f5aa2-1f60-4c0b-9a3e-21d3a8f9f003",
			"timestamp": "2026-08-23T10:00:00Z"
		}`)

		result := sv.ValidateRatingEvent(payload)
		assert.False(t, result.Valid)
		assert.NotEmpty(t, result.Errors)
	})

	t.Run("rating must be a number", func(t *testing.T) {
		payload := []byte(`{
			"event_id": "3e2f5aa2-1f60-4c0b-9a3e-21d3a8f9f001",
			"agent_id": "3e2f5aa2-1f60-4c0b-9a3e-21d3a8f9f002",
			"item_id": "3e2f5aa2-1f60-4c0b-9a3e-21d3a8f9f003",
			"rating": "five",
			"timestamp": "2026-08-23T10:00:00Z"
		}`)

		result := sv.ValidateRatingEvent(payload)
		assert.False(t, result.Valid)
	})

	t.Run("unknown fields rejected", func(t *testing.T) {
		payload := []byte(`{
			"event_id": "3e2f5aa2-1f60-4c0b-9a3e-21d3a8f9f001",
			"agent_id": "3e2f5aa2-1f60-4c0b-9a3e-21d3a8f9f002",
			"item_id": "3e2f5aa2-1f60-4c0b-9a3e-21d3a8f9f003",
			"rating": 2,
			"timestamp": "2026-08-23T10:00:00Z",
			"extra": true
		}`)

		result := sv.ValidateRatingEvent(payload)
		assert.False(t, result.Valid)
	})

	t.Run("malformed JSON", func(t *testing.T) {
		result := sv.ValidateRatingEvent([]byte(`{not json`))
		assert.False(t, result.Valid)
		assert.NotEmpty(t, result.Errors)
	})
}

func TestSchemaValidator_PersonalizeRequest(t *testing.T) {
	sv, err := NewSchemaValidator()
	require.NoError(t, err)

	t.Run("valid request", func(t *testing.T) {
		payload := []byte(`{
			"agents": [
				{
					"agent_id": "3e2f5aa2-1f60-4c0b-9a3e-21d3a8f9f010",
					"ratings": [
						{"item_id": "3e2f5aa2-1f60-4c0b-9a3e-21d3a8f9f011", "rating": 4.0}
					]
				}
			],
			"top_n": 5
		}`)

		result := sv.ValidatePersonalizeRequest(payload)
		assert.True(t, result.Valid, "errors: %v", result.Errors)
	})

	t.Run("empty agents array", func(t *testing.T) {
		result := sv.ValidatePersonalizeRequest([]byte(`{"agents": []}`))
		assert.False(t, result.Valid)
	})

	t.Run("agent without ratings", func(t *testing.T) {
		payload := []byte(`{
			"agents": [
				{"agent_id": "3e2f5aa2-1f60-4c0b-9a3e-21d3a8f9f010", "ratings": []}
			]
		}`)

		result := sv.ValidatePersonalizeRequest(payload)
		assert.False(t, result.Valid)
	})

	t.Run("non-positive top_n", func(t *testing.T) {
		payload := []byte(`{
			"agents": [
				{
					"agent_id": "3e2f5aa2-1f60-4c0b-9a3e-21d3a8f9f010",
					"ratings": [
						{"item_id": "3e2f5aa2-1f60-4c0b-9a3e-21d3a8f9f011", "rating": 1}
					]
				}
			],
			"top_n": 0
		}`)

		result := sv.ValidatePersonalizeRequest(payload)
		assert.False(t, result.Valid)
	})
}
