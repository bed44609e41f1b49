package ml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandStateDeterminism(t *testing.T) {
	a := NewRandState(42)
	b := NewRandState(42)

	assert.Equal(t, a.Uniform(16), b.Uniform(16))
	assert.Equal(t, a.Normal(16), b.Normal(16))
	assert.Equal(t, a.Bernoulli(16, 0.5), b.Bernoulli(16, 0.5))
}

func TestRandStateSeedsDiffer(t *testing.T) {
	a := NewRandState(1)
	b := NewRandState(2)

	assert.NotEqual(t, a.Uniform(16), b.Uniform(16))
}

func TestRandStateSplit(t *testing.T) {
	root := NewRandState(7)
	left, right := root.Split()

	t.Run("ChildrenAreIndependent", func(t *testing.T) {
		assert.NotEqual(t, left.Uniform(32), right.Uniform(32))
	})

	t.Run("SplitIsReproducible", func(t *testing.T) {
		l2, r2 := NewRandState(7).Split()
		assert.Equal(t, left.Uniform(8), l2.Uniform(8))
		assert.Equal(t, right.Uniform(8), r2.Uniform(8))
	})

	t.Run("ChildrenDifferFromParentStream", func(t *testing.T) {
		assert.NotEqual(t, root.Uniform(32), left.Uniform(32))
		assert.NotEqual(t, root.Uniform(32), right.Uniform(32))
	})
}

func TestUniformRange(t *testing.T) {
	values := NewRandState(11).Uniform(1000)
	for _, v := range values {
		require.GreaterOrEqual(t, v, 0.0)
		require.Less(t, v, 1.0)
	}
}

func TestBernoulliValues(t *testing.T) {
	values := NewRandState(13).Bernoulli(1000, 0.5)

	ones := 0
	for _, v := range values {
		require.Contains(t, []float64{0, 1}, v)
		if v == 1 {
			ones++
		}
	}

	// With p=0.5 over 1000 draws, the count of ones stays well inside
	// a wide sanity band.
	assert.Greater(t, ones, 350)
	assert.Less(t, ones, 650)
}

func TestNormalMoments(t *testing.T) {
	values := NewRandState(17).Normal(10000)

	var sum, sumSq float64
	for _, v := range values {
		sum += v
		sumSq += v * v
	}
	mean := sum / float64(len(values))
	variance := sumSq/float64(len(values)) - mean*mean

	assert.InDelta(t, 0.0, mean, 0.05)
	assert.InDelta(t, 1.0, variance, 0.1)
}

func TestMatrixHelpers(t *testing.T) {
	state := NewRandState(19)

	m := state.UniformMatrix(3, 4)
	r, c := m.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 4, c)

	b := state.BernoulliMatrix(5, 2, 0.5)
	r, c = b.Dims()
	assert.Equal(t, 5, r)
	assert.Equal(t, 2, c)
}
