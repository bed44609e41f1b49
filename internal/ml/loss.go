package ml

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Loss is the mean absolute error between a predicted and an observed rating
// matrix of identical shape. Always >= 0, and zero only when the matrices
// are equal entrywise.
func Loss(predicted, target *mat.Dense) (float64, error) {
	pr, pc := predicted.Dims()
	tr, tc := target.Dims()
	if pr != tr || pc != tc {
		return 0, fmt.Errorf("predicted %dx%d vs target %dx%d: %w",
			pr, pc, tr, tc, ErrShapeMismatch)
	}
	if pr == 0 || pc == 0 {
		return 0, fmt.Errorf("empty rating matrix: %w", ErrDegenerateInput)
	}

	var total float64
	for i := 0; i < pr; i++ {
		for j := 0; j < pc; j++ {
			total += math.Abs(predicted.At(i, j) - target.At(i, j))
		}
	}

	loss := total / float64(pr*pc)
	if !isFinite(loss) {
		return 0, fmt.Errorf("loss is non-finite: %w", ErrNumericAnomaly)
	}
	return loss, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func allFinite(m *mat.Dense) bool {
	for _, v := range m.RawMatrix().Data {
		if !isFinite(v) {
			return false
		}
	}
	return true
}
