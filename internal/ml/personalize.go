package ml

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

// PersonalizationResult carries the output of a cold-start fit: the learned
// preference matrix for the new agents, predicted ratings for the whole
// catalog, and the training diagnostics.
type PersonalizationResult struct {
	Params      *mat.Dense
	Predictions *mat.Dense // catalog items x new agents
	Training    *TrainingResult
}

// Personalize fits preference vectors for new agents from a handful of
// observed ratings, then scores the entire catalog with the fitted vectors.
//
// observedItems indexes catalog rows; observed is the observedItems x agents
// rating matrix. The observed set may be smaller than the feature dimension
// (an under-determined fit). In that regime the loss settles on a small
// positive plateau instead of reaching zero; the predictions are still the
// recommendation output.
func Personalize(catalog *mat.Dense, observedItems []int, observed *mat.Dense, state RandState, cfg TrainingConfig, logger *logrus.Logger) (*PersonalizationResult, error) {
	catalogItems, f := catalog.Dims()
	or, agents := observed.Dims()
	if len(observedItems) == 0 || agents == 0 {
		return nil, fmt.Errorf("observed items=%d agents=%d: %w",
			len(observedItems), agents, ErrDegenerateInput)
	}
	if or != len(observedItems) {
		return nil, fmt.Errorf("observed ratings have %d rows for %d items: %w",
			or, len(observedItems), ErrShapeMismatch)
	}

	subFeatures := mat.NewDense(len(observedItems), f, nil)
	for row, idx := range observedItems {
		if idx < 0 || idx >= catalogItems {
			return nil, fmt.Errorf("observed item index %d outside catalog of %d items: %w",
				idx, catalogItems, ErrShapeMismatch)
		}
		subFeatures.SetRow(row, mat.Row(nil, idx, catalog))
	}

	fitState, _ := state.Split()
	params, training, err := Fit(subFeatures, observed, fitState, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("cold-start fit failed: %w", err)
	}

	predictions, err := PredictAll(catalog, params)
	if err != nil {
		return nil, err
	}
	if !allFinite(predictions) {
		return nil, fmt.Errorf("catalog predictions contain non-finite entries: %w", ErrNumericAnomaly)
	}

	return &PersonalizationResult{
		Params:      params,
		Predictions: predictions,
		Training:    training,
	}, nil
}
