package optics

import (
	"bytes"
	"log/slog"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoBlobs(rng *rand.Rand, perBlob int) [][]float64 {
	rows := make([][]float64, 0, 2*perBlob)
	for _, c := range [][2]float64{{0, 0}, {50, 50}} {
		for i := 0; i < perBlob; i++ {
			rows = append(rows, []float64{c[0] + rng.NormFloat64(), c[1] + rng.NormFloat64()})
		}
	}
	// Interleave the blobs so id order says nothing about membership.
	rng.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })
	return rows
}

func TestOrder_Completeness(t *testing.T) {
	rng := rand.New(rand.NewSource(30))
	for _, n := range []int{1, 2, 3, 10, 257} {
		for _, minPts := range []int{1, 2, 5, 300} {
			store := mustStore(t, generateRows(rng, n, 2, 10))
			cfg := DefaultConfig()
			cfg.MinPts = minPts
			order, err := Order(store, cfg)
			require.NoError(t, err)

			require.Equal(t, n, order.Len())
			require.Len(t, order.CoreDistances, n)
			seen := map[ID]bool{}
			for i, e := range order.Entries {
				require.False(t, seen[e.ID], "id %d emitted twice", e.ID)
				seen[e.ID] = true
				pos, ok := order.Position(e.ID)
				require.True(t, ok)
				require.Equal(t, i, pos)
			}
		}
	}
}

func TestOrder_Deterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(31))
	store := mustStore(t, generateGrid(rng, 400, 2, 15))
	cfg := DefaultConfig()
	cfg.MinPts = 6

	a, err := Order(store, cfg)
	require.NoError(t, err)
	b, err := Order(store, cfg)
	require.NoError(t, err)
	assert.Equal(t, a.Entries, b.Entries)
	assert.Equal(t, a.CoreDistances, b.CoreDistances)
}

func TestOrder_MatchesReference(t *testing.T) {
	rng := rand.New(rand.NewSource(32))
	datasets := map[string][][]float64{
		"uniform": generateRows(rng, 120, 2, 10),
		"grid":    generateGrid(rng, 120, 2, 6),
		"blobs":   twoBlobs(rng, 60),
		"grid3d":  generateGrid(rng, 80, 3, 4),
	}
	for name, rows := range datasets {
		store := mustStore(t, rows)
		for _, minPts := range []int{1, 2, 4, 9} {
			for _, eps := range []float64{math.Inf(1), 1.5, 4} {
				cfg := DefaultConfig()
				cfg.MinPts = minPts
				cfg.Epsilon = eps
				order, err := Order(store, cfg)
				require.NoError(t, err)

				want := referenceOrder(store, minPts, eps, EuclideanMetric{})
				require.Equal(t, want, order.Entries, "%s minPts=%d eps=%v", name, minPts, eps)
			}
		}
	}
}

func TestOrder_ReachabilityFromPredecessor(t *testing.T) {
	rng := rand.New(rand.NewSource(33))
	store := mustStore(t, twoBlobs(rng, 100))
	cfg := DefaultConfig()
	cfg.MinPts = 5
	order, err := Order(store, cfg)
	require.NoError(t, err)

	for i, e := range order.Entries {
		if !e.HasPredecessor {
			assert.False(t, e.Defined())
			continue
		}
		p, ok := order.Position(e.Predecessor)
		require.True(t, ok)
		require.Less(t, p, i, "predecessor must be ordered first")

		a, _ := store.Get(e.Predecessor)
		b, _ := store.Get(e.ID)
		want := math.Max(order.CoreDistances[p], EuclideanMetric{}.Distance(a, b))
		assert.Equal(t, want, e.Reachability)
	}
}

func TestOrder_SeparatesBlobs(t *testing.T) {
	rng := rand.New(rand.NewSource(34))
	rows := twoBlobs(rng, 80)
	store := mustStore(t, rows)
	cfg := DefaultConfig()
	cfg.MinPts = 8
	cfg.Epsilon = 10
	order, err := Order(store, cfg)
	require.NoError(t, err)

	// With a generating distance far below the blob gap, each blob is one
	// density region: exactly two undefined entries and contiguous runs.
	starts := 0
	for _, e := range order.Entries {
		if !e.Defined() {
			starts++
		}
	}
	assert.Equal(t, 2, starts)

	blob := func(id ID) bool { return rows[id][0] > 25 }
	switches := 0
	for i := 1; i < order.Len(); i++ {
		if blob(order.Entries[i].ID) != blob(order.Entries[i-1].ID) {
			switches++
		}
	}
	assert.Equal(t, 1, switches)
}

func TestOrder_MinPtsOne(t *testing.T) {
	// Every neighborhood is the point itself: no point reaches another.
	store := mustStore(t, [][]float64{{3}, {1}, {2}, {0}})
	cfg := DefaultConfig()
	cfg.MinPts = 1
	order, err := Order(store, cfg)
	require.NoError(t, err)

	assert.Equal(t, []ID{0, 1, 2, 3}, order.IDs())
	for i, e := range order.Entries {
		assert.False(t, e.Defined())
		assert.Zero(t, order.CoreDistances[i])
	}
}

func TestOrder_NoCorePoints(t *testing.T) {
	store := mustStore(t, [][]float64{{0, 0}, {1, 0}, {2, 0}})
	cfg := DefaultConfig()
	cfg.MinPts = 4
	order, err := Order(store, cfg)
	require.NoError(t, err)

	assert.Equal(t, []ID{0, 1, 2}, order.IDs())
	for i, e := range order.Entries {
		assert.False(t, e.HasPredecessor)
		assert.True(t, math.IsInf(order.CoreDistances[i], 1))
	}
}

func TestOrder_LineTieBreak(t *testing.T) {
	// From the middle point both ends are reached at 1; the larger id wins.
	store := mustStore(t, [][]float64{{0}, {1}, {2}})
	cfg := DefaultConfig()
	cfg.MinPts = 3
	start := ID(1)
	cfg.Start = &start
	order, err := Order(store, cfg)
	require.NoError(t, err)

	assert.Equal(t, []Entry{
		{ID: 1, Reachability: undefined},
		{ID: 2, Predecessor: 1, HasPredecessor: true, Reachability: 1},
		{ID: 0, Predecessor: 1, HasPredecessor: true, Reachability: 1},
	}, order.Entries)
	assert.Equal(t, []float64{1, 2, 2}, order.CoreDistances)
}

func TestOrder_Start(t *testing.T) {
	rng := rand.New(rand.NewSource(35))
	store := mustStore(t, generateRows(rng, 50, 2, 1))
	cfg := DefaultConfig()
	start := ID(17)
	cfg.Start = &start
	order, err := Order(store, cfg)
	require.NoError(t, err)
	assert.Equal(t, ID(17), order.Entries[0].ID)
	assert.Equal(t, 50, order.Len())

	missing := ID(500)
	cfg.Start = &missing
	_, err = Order(store, cfg)
	assert.ErrorIs(t, err, ErrUnknownID)
}

func TestOrder_AllIdentical(t *testing.T) {
	rows := make([][]float64, 30)
	for i := range rows {
		rows[i] = []float64{1, 1}
	}
	store := mustStore(t, rows)
	cfg := DefaultConfig()
	cfg.MinPts = 4

	// k-NN neighborhoods of duplicates always resolve to the smallest ids,
	// so later duplicates start their own regions.
	order, err := Order(store, cfg)
	require.NoError(t, err)
	require.Equal(t, 30, order.Len())
	for i, e := range order.Entries {
		assert.True(t, !e.Defined() || e.Reachability == 0)
		assert.Zero(t, order.CoreDistances[i])
	}

	// A range neighborhood sees every duplicate: one region at distance 0.
	cfg.Epsilon = 1
	order, err = Order(store, cfg)
	require.NoError(t, err)
	require.Equal(t, 30, order.Len())
	assert.False(t, order.Entries[0].Defined())
	for _, e := range order.Entries[1:] {
		assert.Zero(t, e.Reachability)
	}
}

func TestOrder_EmptyStore(t *testing.T) {
	order, err := Order(mustStore(t, nil), DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, 0, order.Len())
	assert.Empty(t, order.IDs())
}

func TestOrder_LinearIndexMatchesKDTree(t *testing.T) {
	rng := rand.New(rand.NewSource(36))
	store := mustStore(t, generateGrid(rng, 200, 2, 12))
	cfg := DefaultConfig()
	cfg.MinPts = 5

	a, err := Order(store, cfg)
	require.NoError(t, err)
	cfg.Index = IndexLinear
	b, err := Order(store, cfg)
	require.NoError(t, err)
	assert.Equal(t, a.Entries, b.Entries)
}

func TestOrder_CustomIDs(t *testing.T) {
	store, err := NewMemoryStoreWithIDs([]ID{900, 40, 7000}, [][]float64{{0}, {0.5}, {100}})
	require.NoError(t, err)
	cfg := DefaultConfig()
	cfg.MinPts = 2
	order, err := Order(store, cfg)
	require.NoError(t, err)

	assert.Equal(t, []ID{40, 900, 7000}, order.IDs())
	assert.Equal(t, []float64{undefined, 0.5, undefined}, order.Reachabilities())
}

func TestOrder_InvalidConfig(t *testing.T) {
	store := mustStore(t, [][]float64{{0}, {1}})
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"MinPtsZero", func(c *Config) { c.MinPts = 0 }, ErrInvalidK},
		{"MinPtsNegative", func(c *Config) { c.MinPts = -3 }, ErrInvalidK},
		{"EpsilonNegative", func(c *Config) { c.Epsilon = -1 }, ErrInvalidConfig},
		{"EpsilonNaN", func(c *Config) { c.Epsilon = math.NaN() }, ErrInvalidConfig},
		{"Index", func(c *Config) { c.Index = "rtree" }, ErrInvalidConfig},
		{"Workers", func(c *Config) { c.Workers = -1 }, ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			_, err := Order(store, cfg)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestOrder_NaNDistanceFailsFast(t *testing.T) {
	store := mustStore(t, [][]float64{{0}, {1}, {2}})
	cfg := DefaultConfig()
	cfg.MinPts = 2
	cfg.Metric = DistanceFunc(func(a, b []float64) float64 {
		if a[0] == 2 || b[0] == 2 {
			return math.NaN()
		}
		return math.Abs(a[0] - b[0])
	})
	_, err := Order(store, cfg)
	assert.ErrorIs(t, err, ErrInvalidDistance)
}

func TestOrder_ZeroValueDefaults(t *testing.T) {
	// Only MinPts has no default.
	order, err := Order(mustStore(t, [][]float64{{0}, {1}}), Config{MinPts: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, order.Len())
}

func TestOrderIndex_SharedIndex(t *testing.T) {
	rng := rand.New(rand.NewSource(37))
	store := mustStore(t, generateRows(rng, 100, 3, 5))
	tree, err := NewKDTree(store)
	require.NoError(t, err)

	cfg := DefaultConfig()
	a, err := OrderIndex(tree, cfg)
	require.NoError(t, err)
	b, err := Order(store, cfg)
	require.NoError(t, err)
	assert.Equal(t, b.Entries, a.Entries)
}

func TestOrder_Logging(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.MinPts = 2
	cfg.Logger = slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	_, err := Order(mustStore(t, [][]float64{{0}, {1}, {100}}), cfg)
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "index built")
	assert.Contains(t, out, "reseeding")
	assert.Contains(t, out, "cluster order complete")
	assert.Contains(t, out, "regions=2")
}

func TestCoreDistances(t *testing.T) {
	store := mustStore(t, [][]float64{{0}, {1}, {3}, {7}})
	tree, err := NewKDTree(store)
	require.NoError(t, err)

	core, err := CoreDistances(tree, 2, EuclideanMetric{})
	require.NoError(t, err)
	assert.Equal(t, map[ID]float64{0: 1, 1: 1, 2: 2, 3: 4}, core)

	core, err = CoreDistances(tree, 5, EuclideanMetric{})
	require.NoError(t, err)
	for _, d := range core {
		assert.True(t, math.IsInf(d, 1))
	}

	_, err = CoreDistances(tree, 0, EuclideanMetric{})
	assert.ErrorIs(t, err, ErrInvalidK)
}
