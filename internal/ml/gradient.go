package ml

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Gradient computes the derivative of Loss(PredictAll(features, params),
// target) with respect to params. The absolute value in the loss makes this
// a subgradient; at exact zero residual the convention sign(0) = 0 applies,
// the same convention the tests use for their numeric oracle.
//
// Closed form, for each agent u:
//
//	grad[u] = (1 / (items * agents)) * sum_i sign(pred(i,u) - target(i,u)) * features[i]
//
// which is the matrix product signs^T * features scaled by 1/(items*agents).
func Gradient(params, target, features *mat.Dense) (*mat.Dense, error) {
	if err := checkTrainingShapes(params, target, features); err != nil {
		return nil, err
	}

	predicted, err := PredictAll(features, params)
	if err != nil {
		return nil, err
	}
	return gradientFromPrediction(predicted, target, features)
}

// gradientFromPrediction is the inner computation, reused by Fit to avoid
// scoring the catalog twice per round.
func gradientFromPrediction(predicted, target, features *mat.Dense) (*mat.Dense, error) {
	items, agents := target.Dims()
	_, f := features.Dims()

	signs := mat.NewDense(items, agents, nil)
	signs.Sub(predicted, target)
	signs.Apply(func(_, _ int, v float64) float64 {
		switch {
		case v > 0:
			return 1
		case v < 0:
			return -1
		default:
			return 0
		}
	}, signs)

	grad := mat.NewDense(agents, f, nil)
	grad.Mul(signs.T(), features)
	grad.Scale(1/float64(items*agents), grad)

	if !allFinite(grad) {
		return nil, fmt.Errorf("gradient contains non-finite entries: %w", ErrNumericAnomaly)
	}
	return grad, nil
}

func checkTrainingShapes(params, target, features *mat.Dense) error {
	items, f := features.Dims()
	agents, fp := params.Dims()
	ti, ta := target.Dims()

	if f != fp {
		return fmt.Errorf("feature dimension %d vs preference dimension %d: %w",
			f, fp, ErrShapeMismatch)
	}
	if ti != items || ta != agents {
		return fmt.Errorf("target %dx%d vs expected %dx%d: %w",
			ti, ta, items, agents, ErrShapeMismatch)
	}
	if items == 0 || agents == 0 || f == 0 {
		return fmt.Errorf("items=%d agents=%d features=%d: %w",
			items, agents, f, ErrDegenerateInput)
	}
	return nil
}
