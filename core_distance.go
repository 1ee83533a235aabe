package optics

import (
	"fmt"
	"math"
)

// coreDistance returns the distance of the minPts-th entry of a sorted
// neighborhood that includes the point itself, or undefined when the
// neighborhood is smaller than minPts.
func coreDistance(nbrs []Neighbor, minPts int) float64 {
	if minPts < 1 || len(nbrs) < minPts {
		return undefined
	}
	return nbrs[minPts-1].Distance
}

// reachabilityDistance is max(core, d): a neighbor closer than the core
// distance is reached at the core distance.
func reachabilityDistance(core, d float64) float64 {
	return math.Max(core, d)
}

// CoreDistances computes the core distance of every point in the index:
// the distance to its minPts-th nearest neighbor counting the point itself,
// i.e. to its (minPts-1)-th other point. Points in a store smaller than
// minPts get undefined.
func CoreDistances(idx NeighborIndex, minPts int, metric DistanceMetric) (map[ID]float64, error) {
	if minPts < 1 {
		return nil, fmt.Errorf("optics: minPts = %d: %w", minPts, ErrInvalidK)
	}
	ids := idx.Store().IDs()
	core := make(map[ID]float64, len(ids))
	for _, id := range ids {
		nbrs, err := idx.KNN(id, minPts, metric)
		if err != nil {
			return nil, err
		}
		core[id] = coreDistance(nbrs, minPts)
	}
	return core, nil
}
