package optics

import (
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
)

func generateRows(rng *rand.Rand, n, dims int, scale float64) [][]float64 {
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = make([]float64, dims)
		for j := range rows[i] {
			rows[i][j] = rng.Float64() * scale
		}
	}
	return rows
}

// generateGrid returns points on a small integer lattice, so that many
// distances tie and tie-breaking is exercised.
func generateGrid(rng *rand.Rand, n, dims, side int) [][]float64 {
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = make([]float64, dims)
		for j := range rows[i] {
			rows[i][j] = float64(rng.Intn(side))
		}
	}
	return rows
}

func mustStore(t testing.TB, rows [][]float64) *MemoryStore {
	t.Helper()
	s, err := NewMemoryStore(rows)
	require.NoError(t, err)
	return s
}

func mustTree(t testing.TB, rows [][]float64) *KDTree {
	t.Helper()
	tree, err := NewKDTree(mustStore(t, rows))
	require.NoError(t, err)
	return tree
}

// bruteForceKNN sorts every point by (distance, id) and keeps the first k.
func bruteForceKNN(store PointStore, q []float64, k int, metric DistanceMetric) []Neighbor {
	var all []Neighbor
	for _, id := range store.IDs() {
		v, _ := store.Get(id)
		all = append(all, Neighbor{ID: id, Distance: metric.Distance(q, v)})
	}
	slices.SortFunc(all, compareNeighbors)
	if k < len(all) {
		all = all[:k]
	}
	if all == nil {
		all = []Neighbor{}
	}
	return all
}

// referenceOrder is a direct O(n^2) OPTICS with the same neighborhood
// definition, seed rule and tie-break as Order, used as an oracle.
func referenceOrder(store PointStore, minPts int, epsilon float64, metric DistanceMetric) []Entry {
	ids := store.IDs()
	processed := map[ID]bool{}
	queued := map[ID]Entry{}
	var out []Entry

	neighborhood := func(id ID) []Neighbor {
		q, _ := store.Get(id)
		all := bruteForceKNN(store, q, len(ids), metric)
		if epsilon < undefined {
			n := 0
			for n < len(all) && all[n].Distance <= epsilon {
				n++
			}
			return all[:n]
		}
		return all[:min(minPts, len(all))]
	}

	for len(out) < len(ids) {
		if len(queued) == 0 {
			for _, id := range ids {
				if !processed[id] {
					queued[id] = Entry{ID: id, Reachability: undefined}
					break
				}
			}
		}
		var best Entry
		first := true
		for _, e := range queued {
			if first || EntryLess(e, best) {
				best, first = e, false
			}
		}
		delete(queued, best.ID)
		processed[best.ID] = true
		out = append(out, best)

		nbrs := neighborhood(best.ID)
		if len(nbrs) < minPts {
			continue
		}
		core := nbrs[minPts-1].Distance
		for _, nb := range nbrs {
			if processed[nb.ID] {
				continue
			}
			r := max(core, nb.Distance)
			cur, ok := queued[nb.ID]
			if !ok || r < cur.Reachability {
				queued[nb.ID] = Entry{ID: nb.ID, Predecessor: best.ID, HasPredecessor: true, Reachability: r}
			}
		}
	}
	return out
}

// badStore is a PointStore that hands out whatever vectors it is given.
type badStore struct {
	dims int
	rows map[ID][]float64
	ids  []ID
}

func (s *badStore) Dimensionality() int { return s.dims }
func (s *badStore) Len() int            { return len(s.ids) }
func (s *badStore) IDs() []ID           { return s.ids }

func (s *badStore) Get(id ID) ([]float64, bool) {
	v, ok := s.rows[id]
	return v, ok
}
