package ml

import "errors"

// Failure classes for the preference-learning core. All of them indicate
// structural problems with inputs or state, never transient conditions, so
// callers should not retry.
var (
	// ErrShapeMismatch reports disagreeing matrix dimensions between
	// feature, parameter and rating inputs.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrDegenerateInput reports an empty item set or agent set.
	ErrDegenerateInput = errors.New("degenerate input")

	// ErrNumericAnomaly reports NaN or Inf values in a loss or gradient,
	// usually caused by a pathological learning rate.
	ErrNumericAnomaly = errors.New("numeric anomaly")
)
