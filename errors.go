package optics

import "errors"

// All errors are contract violations; none of them are transient.
// Callers match them with errors.Is.
var (
	// ErrInvalidK is returned for a k-NN query with k < 0 or MinPts < 1.
	ErrInvalidK = errors.New("invalid k")

	// ErrUnknownID is returned when a query references an id that is not in
	// the point store.
	ErrUnknownID = errors.New("unknown object id")

	// ErrEmptyQueue is returned by PopMin on an empty queue.
	ErrEmptyQueue = errors.New("empty queue")

	// ErrInvalidDistance is returned when a distance or reachability is NaN
	// or negative.
	ErrInvalidDistance = errors.New("invalid distance")

	// ErrNonFinite is returned when a coordinate is NaN or infinite.
	ErrNonFinite = errors.New("non-finite coordinate")

	// ErrDimensionMismatch is returned when a vector's length differs from
	// the store's dimensionality.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrDuplicateID is returned when two points share an id.
	ErrDuplicateID = errors.New("duplicate object id")

	// ErrInvalidConfig is returned by validateConfig and LoadConfig.
	ErrInvalidConfig = errors.New("invalid config")
)
