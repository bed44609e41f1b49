package ml

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

// TrainingConfig holds the gradient-descent hyperparameters. The zero value
// is not usable; start from DefaultTrainingConfig and override as needed.
type TrainingConfig struct {
	LearningRate float64 `json:"learning_rate" mapstructure:"learning_rate"`
	Rounds       int     `json:"rounds" mapstructure:"rounds"`
	LogEvery     int     `json:"log_every" mapstructure:"log_every"`
}

// DefaultTrainingConfig matches the reference preference-recovery scenario.
func DefaultTrainingConfig() TrainingConfig {
	return TrainingConfig{
		LearningRate: 0.2,
		Rounds:       600,
		LogEvery:     50,
	}
}

// LossPoint is one observability sample from the training loop.
type LossPoint struct {
	Round int     `json:"round"`
	Loss  float64 `json:"loss"`
}

// TrainingResult summarizes a completed Fit run.
type TrainingResult struct {
	Rounds      int         `json:"rounds"`
	FinalLoss   float64     `json:"final_loss"`
	LossHistory []LossPoint `json:"loss_history"`
}

// Fit learns one preference vector per agent by plain gradient descent on the
// mean absolute error. The parameter matrix starts from uniform random values
// drawn from a child of state, then takes exactly cfg.Rounds update steps of
// params <- params - lr * gradient. There is no convergence-based early exit;
// the loop always runs the full count. Each step allocates a fresh parameter
// matrix, so matrices handed out earlier are never mutated.
//
// The periodic loss log is diagnostic only and never affects control flow.
// Near convergence the loss commonly plateaus or oscillates between two
// nearby values instead of decreasing monotonically; that is a property of
// the sign discontinuity in the MAE subgradient, not a defect.
func Fit(features, target *mat.Dense, state RandState, cfg TrainingConfig, logger *logrus.Logger) (*mat.Dense, *TrainingResult, error) {
	items, f := features.Dims()
	ti, agents := target.Dims()
	if ti != items {
		return nil, nil, fmt.Errorf("target has %d item rows, features has %d: %w",
			ti, items, ErrShapeMismatch)
	}
	if items == 0 || agents == 0 || f == 0 {
		return nil, nil, fmt.Errorf("items=%d agents=%d features=%d: %w",
			items, agents, f, ErrDegenerateInput)
	}
	if cfg.Rounds <= 0 || cfg.LearningRate <= 0 {
		return nil, nil, fmt.Errorf("rounds=%d learning_rate=%g: %w",
			cfg.Rounds, cfg.LearningRate, ErrDegenerateInput)
	}

	initState, _ := state.Split()
	params := initState.UniformMatrix(agents, f)

	result := &TrainingResult{Rounds: cfg.Rounds}
	logEvery := cfg.LogEvery
	if logEvery <= 0 {
		logEvery = cfg.Rounds
	}

	for round := 0; round < cfg.Rounds; round++ {
		predicted, err := PredictAll(features, params)
		if err != nil {
			return nil, nil, err
		}

		loss, err := Loss(predicted, target)
		if err != nil {
			return nil, nil, fmt.Errorf("round %d: %w", round, err)
		}

		if round%logEvery == 0 {
			result.LossHistory = append(result.LossHistory, LossPoint{Round: round, Loss: loss})
			if logger != nil {
				logger.WithFields(logrus.Fields{
					"round": round,
					"loss":  loss,
				}).Debug("Training loss")
			}
		}

		grad, err := gradientFromPrediction(predicted, target, features)
		if err != nil {
			return nil, nil, fmt.Errorf("round %d: %w", round, err)
		}

		next := mat.NewDense(agents, f, nil)
		next.Scale(-cfg.LearningRate, grad)
		next.Add(next, params)
		params = next
	}

	predicted, err := PredictAll(features, params)
	if err != nil {
		return nil, nil, err
	}
	finalLoss, err := Loss(predicted, target)
	if err != nil {
		return nil, nil, fmt.Errorf("final round: %w", err)
	}

	result.FinalLoss = finalLoss
	result.LossHistory = append(result.LossHistory, LossPoint{Round: cfg.Rounds, Loss: finalLoss})

	if logger != nil {
		logger.WithFields(logrus.Fields{
			"rounds":     cfg.Rounds,
			"final_loss": finalLoss,
			"agents":     agents,
			"items":      items,
		}).Info("Training completed")
	}

	return params, result, nil
}
