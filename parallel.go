package optics

import (
	"fmt"

	"golang.org/x/sync/errgroup"
)

// CoreDistancesParallel computes the same result as CoreDistances using
// multiple goroutines. Each worker handles a contiguous range of ids.
// Falls back to sequential CoreDistances if numWorkers <= 1.
func CoreDistancesParallel(idx NeighborIndex, minPts int, metric DistanceMetric, numWorkers int) (map[ID]float64, error) {
	if numWorkers <= 1 {
		return CoreDistances(idx, minPts, metric)
	}
	if minPts < 1 {
		return nil, fmt.Errorf("optics: minPts = %d: %w", minPts, ErrInvalidK)
	}

	ids := idx.Store().IDs()
	n := len(ids)
	values := make([]float64, n)

	var g errgroup.Group
	rowsPerWorker := (n + numWorkers - 1) / numWorkers

	for w := 0; w < numWorkers; w++ {
		start := w * rowsPerWorker
		end := min(start+rowsPerWorker, n)
		if start >= n {
			break
		}

		g.Go(func() error {
			for i := start; i < end; i++ {
				nbrs, err := idx.KNN(ids[i], minPts, metric)
				if err != nil {
					return err
				}
				values[i] = coreDistance(nbrs, minPts)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	core := make(map[ID]float64, n)
	for i, id := range ids {
		core[id] = values[i]
	}
	return core, nil
}

// OrderMany runs one ordering per config concurrently over a shared index,
// at most numWorkers at a time (numWorkers <= 0 means unbounded). Results
// are in config order and identical to sequential OrderIndex calls. If any
// run fails, the first error is returned and no orders are.
func OrderMany(idx NeighborIndex, cfgs []Config, numWorkers int) ([]*ClusterOrder, error) {
	out := make([]*ClusterOrder, len(cfgs))

	var g errgroup.Group
	if numWorkers > 0 {
		g.SetLimit(numWorkers)
	}
	for i, cfg := range cfgs {
		i, cfg := i, cfg
		g.Go(func() error {
			o, err := OrderIndex(idx, cfg)
			if err != nil {
				return fmt.Errorf("run %d: %w", i, err)
			}
			out[i] = o
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
