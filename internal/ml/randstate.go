package ml

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// RandState is a splittable deterministic random source. It is a value type:
// consuming a draw does not mutate the receiver, so the same state always
// produces the same values. Call Split to derive fresh independent states and
// never reuse a state that already backed a draw - reusing one silently
// correlates values that are supposed to be independent.
type RandState struct {
	seed  uint64
	gamma uint64
}

// SplitMix64 constants (Steele, Lea, Flood 2014).
const (
	goldenGamma uint64 = 0x9e3779b97f4a7c15
	mixMul1     uint64 = 0xbf58476d1ce4e5b9
	mixMul2     uint64 = 0x94d049bb133111eb
)

// NewRandState creates a root state from a seed. Two roots with different
// seeds produce unrelated streams.
func NewRandState(seed uint64) RandState {
	return RandState{seed: mix64(seed), gamma: goldenGamma}
}

func mix64(z uint64) uint64 {
	z = (z ^ (z >> 30)) * mixMul1
	z = (z ^ (z >> 27)) * mixMul2
	return z ^ (z >> 31)
}

func mixGamma(z uint64) uint64 {
	z = mix64(z) | 1 // gammas must be odd
	return z
}

// Split derives two independent child states. The receiver is consumed:
// after splitting, draw only from the children.
func (s RandState) Split() (RandState, RandState) {
	left := RandState{
		seed:  mix64(s.seed + s.gamma),
		gamma: s.gamma,
	}
	right := RandState{
		seed:  mix64(s.seed + 2*s.gamma),
		gamma: mixGamma(s.seed + 3*s.gamma),
	}
	return left, right
}

// next advances a local copy of the stream. Unexported on purpose: callers
// draw through the typed helpers below so a state is always consumed whole.
func (s *RandState) next() uint64 {
	s.seed += s.gamma
	return mix64(s.seed)
}

// Uniform draws n values uniformly from [0, 1).
func (s RandState) Uniform(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(s.next()>>11) / (1 << 53)
	}
	return out
}

// UniformMatrix draws an r x c matrix with entries uniform in [0, 1).
func (s RandState) UniformMatrix(r, c int) *mat.Dense {
	return mat.NewDense(r, c, s.Uniform(r*c))
}

// Normal draws n standard normal values via Box-Muller.
func (s RandState) Normal(n int) []float64 {
	out := make([]float64, n)
	for i := 0; i < n; i += 2 {
		u1 := (float64(s.next()>>11) + 0.5) / (1 << 53) // (0, 1), avoids log(0)
		u2 := float64(s.next()>>11) / (1 << 53)
		r := math.Sqrt(-2 * math.Log(u1))
		out[i] = r * math.Cos(2*math.Pi*u2)
		if i+1 < n {
			out[i+1] = r * math.Sin(2*math.Pi*u2)
		}
	}
	return out
}

// NormalMatrix draws an r x c matrix with standard normal entries.
func (s RandState) NormalMatrix(r, c int) *mat.Dense {
	return mat.NewDense(r, c, s.Normal(r*c))
}

// Bernoulli draws n values that are 1.0 with probability p and 0.0 otherwise.
func (s RandState) Bernoulli(n int, p float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		if float64(s.next()>>11)/(1<<53) < p {
			out[i] = 1
		}
	}
	return out
}

// BernoulliMatrix draws an r x c matrix of 0/1 entries.
func (s RandState) BernoulliMatrix(r, c int, p float64) *mat.Dense {
	return mat.NewDense(r, c, s.Bernoulli(r*c, p))
}
