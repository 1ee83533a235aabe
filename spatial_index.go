package optics

import (
	"fmt"
	"math"
	"slices"
)

// NeighborIndex answers exact neighborhood queries over a PointStore.
// Implementations are read-only after construction and safe for concurrent
// queries. Results are sorted by distance, ties by ascending id. KNN and
// Within include the query point itself; KNNExcluding does not.
type NeighborIndex interface {
	// Store returns the indexed point store.
	Store() PointStore

	// KNN returns the k nearest neighbors of id.
	KNN(id ID, k int, metric DistanceMetric) ([]Neighbor, error)

	// KNNExcluding returns the k nearest points to id other than id.
	KNNExcluding(id ID, k int, metric DistanceMetric) ([]Neighbor, error)

	// Within returns every point within radius of id.
	Within(id ID, radius float64, metric DistanceMetric) ([]Neighbor, error)
}

// IndexKind selects the NeighborIndex implementation built by Order.
type IndexKind string

const (
	IndexKDTree IndexKind = "kdtree"
	IndexLinear IndexKind = "linear"
)

var (
	_ NeighborIndex = (*KDTree)(nil)
	_ NeighborIndex = (*LinearScan)(nil)
)

// BuildIndex constructs the index of the given kind over store.
func BuildIndex(store PointStore, kind IndexKind, workers int) (NeighborIndex, error) {
	switch kind {
	case IndexKDTree, "":
		return NewKDTreeParallel(store, workers)
	case IndexLinear:
		return NewLinearScan(store)
	default:
		return nil, fmt.Errorf("optics: unknown index %q: %w", kind, ErrInvalidConfig)
	}
}

// LinearScan is a brute-force NeighborIndex. Every query computes the
// distance to every point. It accepts any metric, including ones that break
// the per-coordinate bound the KD-tree relies on.
type LinearScan struct {
	store  PointStore
	points []kdPoint
}

// NewLinearScan indexes store by brute force.
func NewLinearScan(store PointStore) (*LinearScan, error) {
	ids := store.IDs()
	l := &LinearScan{store: store, points: make([]kdPoint, len(ids))}
	for i, id := range ids {
		v, ok := store.Get(id)
		if !ok {
			return nil, fmt.Errorf("optics: store lists id %d but has no vector: %w", id, ErrUnknownID)
		}
		if err := checkVector(v, store.Dimensionality()); err != nil {
			return nil, fmt.Errorf("optics: id %d: %w", id, err)
		}
		l.points[i] = kdPoint{id: id, vec: v}
	}
	return l, nil
}

func (l *LinearScan) Store() PointStore { return l.store }

func (l *LinearScan) KNN(id ID, k int, metric DistanceMetric) ([]Neighbor, error) {
	if k < 0 {
		return nil, fmt.Errorf("optics: k = %d: %w", k, ErrInvalidK)
	}
	all, err := l.scan(id, metric)
	if err != nil {
		return nil, err
	}
	return all[:min(k, len(all))], nil
}

func (l *LinearScan) KNNExcluding(id ID, k int, metric DistanceMetric) ([]Neighbor, error) {
	if k < 0 {
		return nil, fmt.Errorf("optics: k = %d: %w", k, ErrInvalidK)
	}
	all, err := l.scan(id, metric)
	if err != nil {
		return nil, err
	}
	others := slices.DeleteFunc(all, func(nb Neighbor) bool { return nb.ID == id })
	return others[:min(k, len(others))], nil
}

func (l *LinearScan) Within(id ID, radius float64, metric DistanceMetric) ([]Neighbor, error) {
	if math.IsNaN(radius) || radius < 0 {
		return nil, fmt.Errorf("optics: radius %v: %w", radius, ErrInvalidDistance)
	}
	all, err := l.scan(id, metric)
	if err != nil {
		return nil, err
	}
	n, _ := slices.BinarySearchFunc(all, radius, func(nb Neighbor, r float64) int {
		if nb.Distance <= r {
			return -1
		}
		return 1
	})
	return all[:n], nil
}

// scan returns every point sorted by distance to id.
func (l *LinearScan) scan(id ID, metric DistanceMetric) ([]Neighbor, error) {
	q, ok := l.store.Get(id)
	if !ok {
		return nil, fmt.Errorf("optics: query for id %d: %w", id, ErrUnknownID)
	}
	out := make([]Neighbor, len(l.points))
	for i, p := range l.points {
		d, err := checkedDistance(metric, q, p.vec)
		if err != nil {
			return nil, fmt.Errorf("optics: id %d: %w", p.id, err)
		}
		out[i] = Neighbor{ID: p.id, Distance: d}
	}
	slices.SortFunc(out, compareNeighbors)
	return out, nil
}
