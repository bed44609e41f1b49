package ml

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Predict scores a single item for a single agent: the dot product of the
// item's feature vector and the agent's preference vector.
func Predict(itemFeatures, userParams []float64) (float64, error) {
	if len(itemFeatures) != len(userParams) {
		return 0, fmt.Errorf("feature dimension %d vs preference dimension %d: %w",
			len(itemFeatures), len(userParams), ErrShapeMismatch)
	}
	return floats.Dot(itemFeatures, userParams), nil
}

// PredictAll scores every item against every agent in one dense multiply:
// features (items x F) times params transposed (F x agents) yields the
// items x agents rating matrix. Pure function; neither input is modified.
func PredictAll(features, params *mat.Dense) (*mat.Dense, error) {
	items, f := features.Dims()
	agents, fp := params.Dims()
	if f != fp {
		return nil, fmt.Errorf("feature dimension %d vs preference dimension %d: %w",
			f, fp, ErrShapeMismatch)
	}

	predicted := mat.NewDense(items, agents, nil)
	predicted.Mul(features, params.T())
	return predicted, nil
}
