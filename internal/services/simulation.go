package services

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/temcen/affinity/internal/ml"
)

// Simulator generates synthetic catalogs and rating fixtures: boolean item
// features, normally distributed ground-truth preferences, and the exact
// ratings those preferences imply. Deterministic under a seed, so fixtures
// are reproducible across runs. It exists to feed demos and tests; nothing
// in the serving path depends on it.
type Simulator struct {
	logger *logrus.Logger
}

func NewSimulator(logger *logrus.Logger) *Simulator {
	return &Simulator{logger: logger}
}

// SyntheticScenario bundles one generated world: a catalog, the hidden
// preferences, and the rating matrix they produce.
type SyntheticScenario struct {
	Features    *mat.Dense // items x F, 0/1 entries
	Preferences *mat.Dense // agents x F, ground truth
	Ratings     *mat.Dense // items x agents
}

// Scenario draws a complete synthetic world from state. The state is split
// once per independent draw so feature and preference streams stay
// uncorrelated.
func (s *Simulator) Scenario(state ml.RandState, items, agents, features int) (*SyntheticScenario, error) {
	if items <= 0 || agents <= 0 || features <= 0 {
		return nil, fmt.Errorf("items=%d agents=%d features=%d: %w",
			items, agents, features, ml.ErrDegenerateInput)
	}

	featState, prefState := state.Split()

	scenario := &SyntheticScenario{
		Features:    featState.BernoulliMatrix(items, features, 0.5),
		Preferences: prefState.NormalMatrix(agents, features),
	}

	ratings, err := ml.PredictAll(scenario.Features, scenario.Preferences)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ratings: %w", err)
	}
	scenario.Ratings = ratings

	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{
			"items":    items,
			"agents":   agents,
			"features": features,
		}).Debug("Synthetic scenario generated")
	}

	return scenario, nil
}
