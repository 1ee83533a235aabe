package optics

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// DistanceMetric computes the distance between two vectors of equal length.
// Implementations must be symmetric and non-negative. The KD-tree prunes with
// the bound |a[j]-b[j]| <= Distance(a, b), which holds for every Lp metric
// and is assumed, not verified, for custom metrics.
type DistanceMetric interface {
	Distance(a, b []float64) float64
}

// DistanceFunc adapts a plain function into a DistanceMetric.
type DistanceFunc func(a, b []float64) float64

func (f DistanceFunc) Distance(a, b []float64) float64 { return f(a, b) }

// EuclideanMetric computes the Euclidean (L2) distance.
type EuclideanMetric struct{}

func (EuclideanMetric) Distance(a, b []float64) float64 { return floats.Distance(a, b, 2) }

// ManhattanMetric computes the Manhattan (L1 / city-block) distance.
type ManhattanMetric struct{}

func (ManhattanMetric) Distance(a, b []float64) float64 { return floats.Distance(a, b, 1) }

// ChebyshevMetric computes the Chebyshev (L-infinity) distance.
type ChebyshevMetric struct{}

func (ChebyshevMetric) Distance(a, b []float64) float64 { return floats.Distance(a, b, math.Inf(1)) }

// MinkowskiMetric computes the Minkowski distance parameterized by P.
// P must be >= 1. Panics if P < 1.
type MinkowskiMetric struct {
	P float64
}

func (m MinkowskiMetric) Distance(a, b []float64) float64 {
	if m.P < 1 {
		panic("MinkowskiMetric: P must be >= 1")
	}
	return floats.Distance(a, b, m.P)
}

// MetricByName resolves a metric from its config-file name. p is only used
// for "minkowski".
func MetricByName(name string, p float64) (DistanceMetric, error) {
	switch strings.ToLower(name) {
	case "", "euclidean", "l2":
		return EuclideanMetric{}, nil
	case "manhattan", "l1", "cityblock":
		return ManhattanMetric{}, nil
	case "chebyshev", "linf":
		return ChebyshevMetric{}, nil
	case "minkowski":
		if p < 1 {
			return nil, fmt.Errorf("optics: minkowski p must be >= 1, got %v: %w", p, ErrInvalidConfig)
		}
		return MinkowskiMetric{P: p}, nil
	default:
		return nil, fmt.Errorf("optics: unknown metric %q: %w", name, ErrInvalidConfig)
	}
}

// checkedDistance evaluates metric and rejects NaN or negative results.
func checkedDistance(metric DistanceMetric, a, b []float64) (float64, error) {
	d := metric.Distance(a, b)
	if math.IsNaN(d) || d < 0 {
		return 0, fmt.Errorf("distance %v: %w", d, ErrInvalidDistance)
	}
	return d, nil
}
