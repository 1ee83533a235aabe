// Package optics computes OPTICS cluster orders over static point sets,
// backed by an exact KD-tree nearest-neighbor index.
//
// A cluster order visits every point exactly once. Each entry records the
// point, the already visited point it was reached from, and its
// reachability distance: max(core distance of the predecessor, distance to
// the predecessor). Valleys in the reachability plot are clusters of
// arbitrary shape; extracting them is left to the caller.
//
// Basic usage:
//
//	store, err := optics.NewMemoryStore(rows)
//	cfg := optics.DefaultConfig()
//	cfg.MinPts = 10
//	order, err := optics.Order(store, cfg)
//	// order.Entries[i].ID is the i-th visited point
//	// order.Entries[i].Reachability is +Inf where a new density region starts
//
// # Neighborhoods
//
// By default (Epsilon = +Inf) the neighborhood of a point is its MinPts
// nearest neighbors, the point itself included. Setting a finite Epsilon
// switches to classic OPTICS range neighborhoods.
//
// # Determinism
//
// Given the same store, metric and config, the order is fully determined:
// neighbors tie-break by ascending id, queued points with equal
// reachability pop largest id first, and when a density region is
// exhausted the next seed is the smallest unvisited id.
//
// # Index reuse
//
// A KDTree (or LinearScan) is read-only once built. Build one with
// NewKDTree, then pass it to OrderIndex or OrderMany to run several
// configurations against the same index, concurrently if desired.
package optics
