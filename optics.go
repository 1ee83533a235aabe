package optics

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"runtime"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
)

// Config controls an OPTICS ordering run.
// Start with [DefaultConfig] and override the fields you need.
type Config struct {
	// MinPts is the neighborhood size, counting the point itself, a point
	// needs to be a core point. Must be >= 1. Default: 5.
	MinPts int

	// Epsilon is the generating distance. With the default +Inf the
	// neighborhood of a point is its MinPts nearest neighbors. With a finite
	// value it is every point within Epsilon, and a point is a core point
	// only if at least MinPts points lie within Epsilon. 0 means +Inf.
	Epsilon float64

	// Metric measures point distance. Built-in: EuclideanMetric,
	// ManhattanMetric, ChebyshevMetric, MinkowskiMetric. Use DistanceFunc to
	// wrap a custom function. Default: EuclideanMetric.
	Metric DistanceMetric

	// Index selects the neighbor index Order builds. Default: "kdtree".
	Index IndexKind

	// Start is the first seed. nil starts at the smallest id. Every later
	// seed, after a density region is exhausted, is the smallest unseen id.
	Start *ID

	// Workers bounds the goroutines used to build the index. 0 means
	// runtime.NumCPU(). The ordering itself is always sequential.
	Workers int

	// Logger receives debug-level progress. Default: discard.
	Logger *slog.Logger
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig() Config {
	return Config{
		MinPts:  5,
		Epsilon: math.Inf(1),
		Metric:  EuclideanMetric{},
		Index:   IndexKDTree,
	}
}

// applyDefaults fills in zero-valued config fields with their defaults.
func applyDefaults(cfg *Config) {
	if cfg.Epsilon == 0 {
		cfg.Epsilon = math.Inf(1)
	}
	if cfg.Metric == nil {
		cfg.Metric = EuclideanMetric{}
	}
	if cfg.Index == "" {
		cfg.Index = IndexKDTree
	}
	if cfg.Workers == 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
}

// validateConfig checks that cfg fields are valid and returns a descriptive error if not.
func validateConfig(cfg *Config) error {
	if cfg.MinPts < 1 {
		return fmt.Errorf("optics: MinPts must be >= 1, got %d: %w", cfg.MinPts, ErrInvalidK)
	}
	if math.IsNaN(cfg.Epsilon) || cfg.Epsilon < 0 {
		return fmt.Errorf("optics: Epsilon must be > 0, got %v: %w", cfg.Epsilon, ErrInvalidConfig)
	}
	if cfg.Index != IndexKDTree && cfg.Index != IndexLinear {
		return fmt.Errorf("optics: Index must be %q or %q, got %q: %w", IndexKDTree, IndexLinear, cfg.Index, ErrInvalidConfig)
	}
	if cfg.Workers < 0 {
		return fmt.Errorf("optics: Workers must be >= 0, got %d: %w", cfg.Workers, ErrInvalidConfig)
	}
	return nil
}

// Order builds the configured index over store and computes its cluster
// order. An empty store yields an empty order.
func Order(store PointStore, cfg Config) (*ClusterOrder, error) {
	applyDefaults(&cfg)
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	began := time.Now()
	idx, err := BuildIndex(store, cfg.Index, cfg.Workers)
	if err != nil {
		return nil, err
	}
	cfg.Logger.Debug("optics: index built",
		"index", cfg.Index,
		"points", store.Len(),
		"elapsed", time.Since(began),
	)

	return run(idx, cfg)
}

// OrderIndex computes the cluster order over a prebuilt index. The index is
// only read, so one index may serve concurrent runs.
func OrderIndex(idx NeighborIndex, cfg Config) (*ClusterOrder, error) {
	applyDefaults(&cfg)
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return run(idx, cfg)
}

// orderRun is the state of one ordering run. A point is unseen, queued
// (in queue) or processed (in order).
type orderRun struct {
	idx       NeighborIndex
	cfg       Config
	ids       []ID // ascending
	next      int  // ids[:next] are all processed or queued
	queue     *ReachabilityQueue
	processed *roaring.Bitmap
	order     *ClusterOrder
}

func run(idx NeighborIndex, cfg Config) (*ClusterOrder, error) {
	began := time.Now()
	ids := idx.Store().IDs()
	r := &orderRun{
		idx:       idx,
		cfg:       cfg,
		ids:       ids,
		queue:     NewReachabilityQueue(len(ids)),
		processed: roaring.New(),
		order:     newClusterOrder(len(ids)),
	}

	if cfg.Start != nil && len(ids) > 0 {
		if _, ok := idx.Store().Get(*cfg.Start); !ok {
			return nil, fmt.Errorf("optics: start id %d: %w", *cfg.Start, ErrUnknownID)
		}
		if err := r.seed(*cfg.Start); err != nil {
			return nil, err
		}
	}

	regions := 0
	for r.order.Len() < len(ids) {
		if r.queue.IsEmpty() {
			id := r.nextUnseen()
			if err := r.seed(id); err != nil {
				return nil, err
			}
			if regions > 0 {
				cfg.Logger.Debug("optics: queue exhausted, reseeding", "id", id, "ordered", r.order.Len())
			}
		}

		e, err := r.queue.PopMin()
		if err != nil {
			return nil, fmt.Errorf("optics: ordering loop with %d of %d points ordered: %w", r.order.Len(), len(ids), err)
		}
		if r.processed.Contains(uint32(e.ID)) {
			continue
		}
		if !e.HasPredecessor {
			regions++
		}
		if err := r.expand(e); err != nil {
			return nil, err
		}
	}

	cfg.Logger.Debug("optics: cluster order complete",
		"points", len(ids),
		"regions", regions,
		"min_pts", cfg.MinPts,
		"epsilon", cfg.Epsilon,
		"elapsed", time.Since(began),
	)
	return r.order, nil
}

// seed queues id with undefined reachability and no predecessor.
func (r *orderRun) seed(id ID) error {
	_, err := r.queue.InsertOrUpdate(Entry{ID: id, Reachability: undefined})
	return err
}

// nextUnseen returns the smallest id that is neither processed nor queued.
// Only called with an empty queue and unprocessed points left.
func (r *orderRun) nextUnseen() ID {
	for r.processed.Contains(uint32(r.ids[r.next])) || r.queue.Contains(r.ids[r.next]) {
		r.next++
	}
	return r.ids[r.next]
}

// expand finalizes e and pushes the reachability of its unprocessed
// neighbors into the queue.
func (r *orderRun) expand(e Entry) error {
	r.processed.Add(uint32(e.ID))

	nbrs, err := r.neighborhood(e.ID)
	if err != nil {
		return err
	}
	core := coreDistance(nbrs, r.cfg.MinPts)
	r.order.append(e, core)
	if math.IsInf(core, 1) {
		return nil
	}

	for _, nb := range nbrs {
		if r.processed.Contains(uint32(nb.ID)) {
			continue
		}
		_, err := r.queue.InsertOrUpdate(Entry{
			ID:             nb.ID,
			Predecessor:    e.ID,
			HasPredecessor: true,
			Reachability:   reachabilityDistance(core, nb.Distance),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *orderRun) neighborhood(id ID) ([]Neighbor, error) {
	if math.IsInf(r.cfg.Epsilon, 1) {
		return r.idx.KNN(id, r.cfg.MinPts, r.cfg.Metric)
	}
	return r.idx.Within(id, r.cfg.Epsilon, r.cfg.Metric)
}
