package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/temcen/affinity/internal/config"
	"github.com/temcen/affinity/internal/ml"
	"github.com/temcen/affinity/pkg/models"
)

// PersonalizationService runs the cold-start flow: fit preference vectors
// for new agents from a handful of observed ratings, score the whole catalog
// with the fitted vectors, and cache the predictions.
type PersonalizationService struct {
	features *FeatureStore
	ratings  *RatingStore
	cache    *redis.Client // warm tier
	metrics  *MetricsCollector
	config   *config.TrainingConfig
	logger   *logrus.Logger

	// Root random state for the service. Every request splits off a child
	// and advances the root under the lock, so no state is ever drawn from
	// twice.
	stateMu sync.Mutex
	state   ml.RandState
}

func NewPersonalizationService(
	features *FeatureStore,
	ratings *RatingStore,
	cache *redis.Client,
	metrics *MetricsCollector,
	cfg *config.TrainingConfig,
	logger *logrus.Logger,
) *PersonalizationService {
	return &PersonalizationService{
		features: features,
		ratings:  ratings,
		cache:    cache,
		metrics:  metrics,
		config:   cfg,
		logger:   logger,
		state:    ml.NewRandState(cfg.Seed),
	}
}

func (ps *PersonalizationService) nextState() ml.RandState {
	ps.stateMu.Lock()
	defer ps.stateMu.Unlock()
	child, next := ps.state.Split()
	ps.state = next
	return child
}

func (ps *PersonalizationService) trainingConfig() ml.TrainingConfig {
	return ml.TrainingConfig{
		LearningRate: ps.config.LearningRate,
		Rounds:       ps.config.Rounds,
		LogEvery:     ps.config.LogEvery,
	}
}

// Personalize fits the agents in the request and returns full-catalog
// predictions for each of them.
func (ps *PersonalizationService) Personalize(ctx context.Context, req *models.PersonalizeRequest) (*models.PersonalizeResponse, error) {
	started := time.Now()

	if len(req.Agents) == 0 {
		return nil, fmt.Errorf("no agents in request: %w", ml.ErrDegenerateInput)
	}
	if ps.config.MaxNewAgents > 0 && len(req.Agents) > ps.config.MaxNewAgents {
		return nil, fmt.Errorf("request has %d agents, limit is %d: %w",
			len(req.Agents), ps.config.MaxNewAgents, ml.ErrDegenerateInput)
	}

	snapshot, err := ps.features.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog snapshot: %w", err)
	}

	observedItems, observed, err := ps.buildObservedMatrix(snapshot, req.Agents)
	if err != nil {
		return nil, err
	}

	result, err := ml.Personalize(snapshot.Matrix, observedItems, observed,
		ps.nextState(), ps.trainingConfig(), ps.logger)
	if err != nil {
		return nil, err
	}

	response := ps.buildResponse(snapshot, req, result)

	for i := range response.Agents {
		ps.cachePredictions(ctx, &response.Agents[i])
	}

	if ps.metrics != nil {
		ps.metrics.ObserveFit("personalization", result.Training.Rounds, result.Training.FinalLoss)
		ps.metrics.ObservePersonalization(len(req.Agents), time.Since(started))
	}

	ps.logger.WithFields(logrus.Fields{
		"agents":     len(req.Agents),
		"observed":   len(observedItems),
		"final_loss": result.Training.FinalLoss,
		"duration":   time.Since(started),
	}).Info("Personalization completed")

	return response, nil
}

// PersonalizeFromStore runs the same flow using ratings previously ingested
// through the rating-events topic. Only items rated by every requested agent
// participate in the fit.
func (ps *PersonalizationService) PersonalizeFromStore(ctx context.Context, agentIDs []uuid.UUID, topN int) (*models.PersonalizeResponse, error) {
	if len(agentIDs) == 0 {
		return nil, fmt.Errorf("no agents requested: %w", ml.ErrDegenerateInput)
	}

	perAgent := make([]map[uuid.UUID]float64, len(agentIDs))
	for i, agentID := range agentIDs {
		ratings, err := ps.ratings.RatingsForAgent(ctx, agentID)
		if err != nil {
			return nil, err
		}
		if len(ratings) == 0 {
			return nil, fmt.Errorf("agent %s has no stored ratings: %w", agentID, ml.ErrDegenerateInput)
		}
		perAgent[i] = ratings
	}

	// Intersect the rated item sets.
	var common []uuid.UUID
	for itemID := range perAgent[0] {
		sharedByAll := true
		for _, ratings := range perAgent[1:] {
			if _, ok := ratings[itemID]; !ok {
				sharedByAll = false
				break
			}
		}
		if sharedByAll {
			common = append(common, itemID)
		}
	}
	if len(common) == 0 {
		return nil, fmt.Errorf("agents share no rated items: %w", ml.ErrDegenerateInput)
	}
	sort.Slice(common, func(i, j int) bool { return common[i].String() < common[j].String() })

	req := &models.PersonalizeRequest{TopN: topN}
	for i, agentID := range agentIDs {
		agent := models.AgentRatings{AgentID: agentID}
		for _, itemID := range common {
			agent.Ratings = append(agent.Ratings, models.ObservedRating{
				ItemID: itemID,
				Rating: perAgent[i][itemID],
			})
		}
		req.Agents = append(req.Agents, agent)
	}

	return ps.Personalize(ctx, req)
}

// CachedPredictions returns an agent's predictions from the warm cache.
func (ps *PersonalizationService) CachedPredictions(ctx context.Context, agentID uuid.UUID) (*models.AgentPredictions, error) {
	key := fmt.Sprintf("predictions:%s", agentID)

	data, err := ps.cache.Get(ctx, key).Result()
	if err == redis.Nil {
		if ps.metrics != nil {
			ps.metrics.ObserveCacheLookup(false)
		}
		return nil, fmt.Errorf("no cached predictions for agent %s", agentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read prediction cache: %w", err)
	}

	var predictions models.AgentPredictions
	if err := json.Unmarshal([]byte(data), &predictions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached predictions: %w", err)
	}

	if ps.metrics != nil {
		ps.metrics.ObserveCacheLookup(true)
	}
	return &predictions, nil
}

// buildObservedMatrix turns per-agent rating lists into the observed-item
// index list and the R x M rating matrix the core expects. Every agent must
// rate exactly the same items.
func (ps *PersonalizationService) buildObservedMatrix(snapshot *FeatureSnapshot, agents []models.AgentRatings) ([]int, *mat.Dense, error) {
	first := agents[0].Ratings
	if len(first) == 0 {
		return nil, nil, fmt.Errorf("agent %s has no ratings: %w", agents[0].AgentID, ml.ErrDegenerateInput)
	}
	if ps.config.MaxObserved > 0 && len(first) > ps.config.MaxObserved {
		return nil, nil, fmt.Errorf("request has %d observed items, limit is %d: %w",
			len(first), ps.config.MaxObserved, ml.ErrDegenerateInput)
	}

	observedItems := make([]int, len(first))
	rowByItem := make(map[uuid.UUID]int, len(first))
	for i, rating := range first {
		row, ok := snapshot.Row(rating.ItemID)
		if !ok {
			return nil, nil, fmt.Errorf("rated item %s is not in the catalog: %w",
				rating.ItemID, ml.ErrShapeMismatch)
		}
		if _, dup := rowByItem[rating.ItemID]; dup {
			return nil, nil, fmt.Errorf("item %s rated twice by agent %s: %w",
				rating.ItemID, agents[0].AgentID, ml.ErrShapeMismatch)
		}
		observedItems[i] = row
		rowByItem[rating.ItemID] = i
	}

	observed := mat.NewDense(len(first), len(agents), nil)
	for u, agent := range agents {
		if len(agent.Ratings) != len(first) {
			return nil, nil, fmt.Errorf("agent %s rated %d items, expected %d: %w",
				agent.AgentID, len(agent.Ratings), len(first), ml.ErrShapeMismatch)
		}
		for _, rating := range agent.Ratings {
			row, ok := rowByItem[rating.ItemID]
			if !ok {
				return nil, nil, fmt.Errorf("agent %s rated item %s outside the shared item set: %w",
					agent.AgentID, rating.ItemID, ml.ErrShapeMismatch)
			}
			observed.Set(row, u, rating.Rating)
		}
	}

	return observedItems, observed, nil
}

func (ps *PersonalizationService) buildResponse(snapshot *FeatureSnapshot, req *models.PersonalizeRequest, result *ml.PersonalizationResult) *models.PersonalizeResponse {
	response := &models.PersonalizeResponse{
		JobID:       uuid.New(),
		FinalLoss:   result.Training.FinalLoss,
		Rounds:      result.Training.Rounds,
		GeneratedAt: time.Now(),
	}

	items, _ := result.Predictions.Dims()
	for u, agent := range req.Agents {
		predictions := make([]models.ItemPrediction, items)
		for i := 0; i < items; i++ {
			predictions[i] = models.ItemPrediction{
				ItemID:    snapshot.Items[i].ID,
				Name:      snapshot.Items[i].Name,
				Predicted: result.Predictions.At(i, u),
			}
		}

		if req.TopN > 0 {
			sort.SliceStable(predictions, func(a, b int) bool {
				return predictions[a].Predicted > predictions[b].Predicted
			})
			if req.TopN < len(predictions) {
				predictions = predictions[:req.TopN]
			}
		}

		response.Agents = append(response.Agents, models.AgentPredictions{
			AgentID:     agent.AgentID,
			Preferences: mat.Row(nil, u, result.Params),
			Predictions: predictions,
		})
	}

	return response
}

func (ps *PersonalizationService) cachePredictions(ctx context.Context, predictions *models.AgentPredictions) {
	data, err := json.Marshal(predictions)
	if err != nil {
		ps.logger.WithError(err).Warn("Failed to marshal predictions for cache")
		return
	}

	key := fmt.Sprintf("predictions:%s", predictions.AgentID)
	if err := ps.cache.Set(ctx, key, data, ps.config.PredictionTTL).Err(); err != nil {
		// Cache writes are best effort; the response already carries the data.
		ps.logger.WithError(err).WithField("agent_id", predictions.AgentID).
			Warn("Failed to cache predictions")
	}
}
