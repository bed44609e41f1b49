package services

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/temcen/affinity/internal/config"
	"github.com/temcen/affinity/internal/ml"
	"github.com/temcen/affinity/pkg/models"
)

func testTrainingConfig() *config.TrainingConfig {
	return &config.TrainingConfig{
		LearningRate:  0.2,
		Rounds:        400,
		LogEvery:      100,
		Seed:          2024,
		PredictionTTL: time.Minute,
		MaxNewAgents:  10,
		MaxObserved:   100,
	}
}

func testWarmCache() *redis.Client {
	// Cache writes are best effort; the service tolerates an unreachable
	// instance.
	return redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   1,
	})
}

func testSnapshot(items int) *FeatureSnapshot {
	features := mat.NewDense(items, 3, nil)
	snapshot := &FeatureSnapshot{
		Matrix:  features,
		rowByID: make(map[uuid.UUID]int, items),
	}
	for i := 0; i < items; i++ {
		for j := 0; j < 3; j++ {
			if (i+j)%2 == 0 {
				features.Set(i, j, 1)
			}
		}
		item := models.Item{ID: uuid.New(), Position: i, Name: "item"}
		snapshot.Items = append(snapshot.Items, item)
		snapshot.rowByID[item.ID] = i
	}
	return snapshot
}

func newTestPersonalizationService(features *FeatureStore) *PersonalizationService {
	return NewPersonalizationService(
		features, nil, testWarmCache(), nil, testTrainingConfig(), testLogger(),
	)
}

func TestPersonalizationService_BuildObservedMatrix(t *testing.T) {
	ps := newTestPersonalizationService(nil)
	snapshot := testSnapshot(5)

	itemA := snapshot.Items[1].ID
	itemB := snapshot.Items[3].ID

	t.Run("builds items x agents matrix", func(t *testing.T) {
		agents := []models.AgentRatings{
			{
				AgentID: uuid.New(),
				Ratings: []models.ObservedRating{
					{ItemID: itemA, Rating: 2.0},
					{ItemID: itemB, Rating: -1.0},
				},
			},
			{
				AgentID: uuid.New(),
				Ratings: []models.ObservedRating{
					// Second agent lists the shared items in another order.
					{ItemID: itemB, Rating: 0.5},
					{ItemID: itemA, Rating: 3.0},
				},
			},
		}

		observedItems, observed, err := ps.buildObservedMatrix(snapshot, agents)
		require.NoError(t, err)

		assert.Equal(t, []int{1, 3}, observedItems)

		rows, cols := observed.Dims()
		assert.Equal(t, 2, rows)
		assert.Equal(t, 2, cols)
		assert.Equal(t, 2.0, observed.At(0, 0))
		assert.Equal(t, -1.0, observed.At(1, 0))
		assert.Equal(t, 3.0, observed.At(0, 1))
		assert.Equal(t, 0.5, observed.At(1, 1))
	})

	t.Run("rejects items missing from the catalog", func(t *testing.T) {
		agents := []models.AgentRatings{
			{
				AgentID: uuid.New(),
				Ratings: []models.ObservedRating{{ItemID: uuid.New(), Rating: 1.0}},
			},
		}

		_, _, err := ps.buildObservedMatrix(snapshot, agents)
		require.Error(t, err)
		assert.ErrorIs(t, err, ml.ErrShapeMismatch)
	})

	t.Run("rejects duplicate ratings", func(t *testing.T) {
		agents := []models.AgentRatings{
			{
				AgentID: uuid.New(),
				Ratings: []models.ObservedRating{
					{ItemID: itemA, Rating: 1.0},
					{ItemID: itemA, Rating: 2.0},
				},
			},
		}

		_, _, err := ps.buildObservedMatrix(snapshot, agents)
		require.Error(t, err)
		assert.ErrorIs(t, err, ml.ErrShapeMismatch)
	})

	t.Run("rejects agents with differing item sets", func(t *testing.T) {
		agents := []models.AgentRatings{
			{
				AgentID: uuid.New(),
				Ratings: []models.ObservedRating{{ItemID: itemA, Rating: 1.0}},
			},
			{
				AgentID: uuid.New(),
				Ratings: []models.ObservedRating{{ItemID: itemB, Rating: 1.0}},
			},
		}

		_, _, err := ps.buildObservedMatrix(snapshot, agents)
		require.Error(t, err)
		assert.ErrorIs(t, err, ml.ErrShapeMismatch)
	})

	t.Run("rejects agents with differing rating counts", func(t *testing.T) {
		agents := []models.AgentRatings{
			{
				AgentID: uuid.New(),
				Ratings: []models.ObservedRating{
					{ItemID: itemA, Rating: 1.0},
					{ItemID: itemB, Rating: 2.0},
				},
			},
			{
				AgentID: uuid.New(),
				Ratings: []models.ObservedRating{{ItemID: itemA, Rating: 1.0}},
			},
		}

		_, _, err := ps.buildObservedMatrix(snapshot, agents)
		require.Error(t, err)
		assert.ErrorIs(t, err, ml.ErrShapeMismatch)
	})
}

func TestPersonalizationService_BuildResponse(t *testing.T) {
	ps := newTestPersonalizationService(nil)
	snapshot := testSnapshot(4)

	agentID := uuid.New()
	result := &ml.PersonalizationResult{
		Params: mat.NewDense(1, 3, []float64{1, -2, 0.5}),
		Predictions: mat.NewDense(4, 1, []float64{
			0.1, 3.0, -1.0, 2.0,
		}),
		Training: &ml.TrainingResult{Rounds: 400, FinalLoss: 0.05},
	}

	t.Run("full catalog in position order", func(t *testing.T) {
		req := &models.PersonalizeRequest{
			Agents: []models.AgentRatings{{AgentID: agentID}},
		}

		response := ps.buildResponse(snapshot, req, result)
		require.Len(t, response.Agents, 1)

		agent := response.Agents[0]
		assert.Equal(t, agentID, agent.AgentID)
		assert.Equal(t, []float64{1, -2, 0.5}, agent.Preferences)
		require.Len(t, agent.Predictions, 4)
		assert.Equal(t, 0.1, agent.Predictions[0].Predicted)
		assert.Equal(t, snapshot.Items[0].ID, agent.Predictions[0].ItemID)
		assert.Equal(t, 0.05, response.FinalLoss)
		assert.Equal(t, 400, response.Rounds)
	})

	t.Run("top-N truncates head first", func(t *testing.T) {
		req := &models.PersonalizeRequest{
			Agents: []models.AgentRatings{{AgentID: agentID}},
			TopN:   2,
		}

		response := ps.buildResponse(snapshot, req, result)
		require.Len(t, response.Agents, 1)

		predictions := response.Agents[0].Predictions
		require.Len(t, predictions, 2)
		assert.Equal(t, 3.0, predictions[0].Predicted)
		assert.Equal(t, 2.0, predictions[1].Predicted)
		assert.Equal(t, snapshot.Items[1].ID, predictions[0].ItemID)
	})
}

func TestPersonalizationService_Personalize(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	features := NewFeatureStore(mockDB, testCatalogConfig(), testLogger())
	ps := newTestPersonalizationService(features)

	// Six items; the first three have unit feature vectors so one agent's
	// ratings over them pin down its preference vector exactly.
	itemIDs := make([]uuid.UUID, 6)
	featureRows := [][]float64{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
		{1, 1, 0},
		{0, 1, 1},
		{1, 0, 1},
	}
	now := time.Now()
	rows := pgxmock.NewRows([]string{"id", "position", "name", "features", "created_at"})
	for i := range itemIDs {
		itemIDs[i] = uuid.New()
		rows.AddRow(itemIDs[i], i, "item", featureRows[i], now)
	}
	mockDB.ExpectQuery("SELECT id, position, name, features, created_at FROM items ORDER BY position").
		WillReturnRows(rows)

	agentID := uuid.New()
	req := &models.PersonalizeRequest{
		Agents: []models.AgentRatings{
			{
				AgentID: agentID,
				Ratings: []models.ObservedRating{
					{ItemID: itemIDs[0], Rating: 1.0},
					{ItemID: itemIDs[1], Rating: -2.0},
					{ItemID: itemIDs[2], Rating: 0.5},
				},
			},
		},
	}

	response, err := ps.Personalize(context.Background(), req)
	require.NoError(t, err)

	assert.Less(t, response.FinalLoss, 0.5)
	assert.Equal(t, 400, response.Rounds)
	require.Len(t, response.Agents, 1)

	agent := response.Agents[0]
	assert.Equal(t, agentID, agent.AgentID)
	require.Len(t, agent.Preferences, 3)
	require.Len(t, agent.Predictions, 6)
	for _, prediction := range agent.Predictions {
		assert.False(t, math.IsNaN(prediction.Predicted))
		assert.False(t, math.IsInf(prediction.Predicted, 0))
	}

	// The fitted vector should sit close to the ratings it was trained on.
	assert.InDelta(t, 1.0, agent.Preferences[0], 0.25)
	assert.InDelta(t, -2.0, agent.Preferences[1], 0.25)
	assert.InDelta(t, 0.5, agent.Preferences[2], 0.25)

	require.NoError(t, mockDB.ExpectationsWereMet())
}

func TestPersonalizationService_PersonalizeFromStore(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	features := NewFeatureStore(mockDB, testCatalogConfig(), testLogger())
	ratings := NewRatingStore(mockDB, testLogger())
	ps := NewPersonalizationService(
		features, ratings, testWarmCache(), nil, testTrainingConfig(), testLogger(),
	)

	itemIDs := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	agentID := uuid.New()

	mockDB.ExpectQuery("SELECT item_id, rating FROM ratings").
		WithArgs(agentID).
		WillReturnRows(pgxmock.NewRows([]string{"item_id", "rating"}).
			AddRow(itemIDs[0], 1.0).
			AddRow(itemIDs[1], -2.0).
			AddRow(itemIDs[2], 0.5))

	now := time.Now()
	featureRows := [][]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	catalogRows := pgxmock.NewRows([]string{"id", "position", "name", "features", "created_at"})
	for i, id := range itemIDs {
		catalogRows.AddRow(id, i, "item", featureRows[i], now)
	}
	mockDB.ExpectQuery("SELECT id, position, name, features, created_at FROM items ORDER BY position").
		WillReturnRows(catalogRows)

	response, err := ps.PersonalizeFromStore(context.Background(), []uuid.UUID{agentID}, 2)
	require.NoError(t, err)

	require.Len(t, response.Agents, 1)
	assert.Equal(t, agentID, response.Agents[0].AgentID)
	assert.Len(t, response.Agents[0].Predictions, 2)
	assert.Less(t, response.FinalLoss, 0.5)

	require.NoError(t, mockDB.ExpectationsWereMet())
}

func TestPersonalizationService_PersonalizeFromStoreNoRatings(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	ratings := NewRatingStore(mockDB, testLogger())
	ps := NewPersonalizationService(
		nil, ratings, testWarmCache(), nil, testTrainingConfig(), testLogger(),
	)

	agentID := uuid.New()
	mockDB.ExpectQuery("SELECT item_id, rating FROM ratings").
		WithArgs(agentID).
		WillReturnRows(pgxmock.NewRows([]string{"item_id", "rating"}))

	_, err = ps.PersonalizeFromStore(context.Background(), []uuid.UUID{agentID}, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ml.ErrDegenerateInput)
}

func TestPersonalizationService_PersonalizeLimits(t *testing.T) {
	ps := newTestPersonalizationService(nil)

	t.Run("empty request", func(t *testing.T) {
		_, err := ps.Personalize(context.Background(), &models.PersonalizeRequest{})
		require.Error(t, err)
		assert.ErrorIs(t, err, ml.ErrDegenerateInput)
	})

	t.Run("too many agents", func(t *testing.T) {
		req := &models.PersonalizeRequest{}
		for i := 0; i < testTrainingConfig().MaxNewAgents+1; i++ {
			req.Agents = append(req.Agents, models.AgentRatings{AgentID: uuid.New()})
		}

		_, err := ps.Personalize(context.Background(), req)
		require.Error(t, err)
		assert.ErrorIs(t, err, ml.ErrDegenerateInput)
	})
}

func TestPersonalizationService_StateAdvancesPerRequest(t *testing.T) {
	ps := newTestPersonalizationService(nil)

	first := ps.nextState()
	second := ps.nextState()
	assert.NotEqual(t, first, second)
}
