package optics

import (
	"container/heap"
	"fmt"
	"math"
	"slices"
)

// Neighbor is a query result: a point and its distance to the query.
type Neighbor struct {
	ID       ID
	Distance float64
}

// compareNeighbors orders by distance ascending, then id ascending.
func compareNeighbors(a, b Neighbor) int {
	switch {
	case a.Distance < b.Distance:
		return -1
	case a.Distance > b.Distance:
		return 1
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	return 0
}

// KNN returns the k nearest neighbors of the stored point id, sorted by
// distance with ties broken by ascending id. The query point itself is part
// of the result at distance 0. Fewer than k neighbors are returned only when
// the store holds fewer than k points.
func (t *KDTree) KNN(id ID, k int, metric DistanceMetric) ([]Neighbor, error) {
	q, ok := t.store.Get(id)
	if !ok {
		return nil, fmt.Errorf("optics: knn query for id %d: %w", id, ErrUnknownID)
	}
	return t.KNNVector(q, k, metric)
}

// KNNExcluding returns the k nearest points to the stored point id other
// than id itself, ordered like KNN.
func (t *KDTree) KNNExcluding(id ID, k int, metric DistanceMetric) ([]Neighbor, error) {
	q, ok := t.store.Get(id)
	if !ok {
		return nil, fmt.Errorf("optics: knn query for id %d: %w", id, ErrUnknownID)
	}
	if k < 0 {
		return nil, fmt.Errorf("optics: k = %d: %w", k, ErrInvalidK)
	}
	if k == 0 || t.root == noNode {
		return []Neighbor{}, nil
	}

	h := &knnHeap{k: k}
	if err := t.search(q, metric, skipID{collector: h, id: id}); err != nil {
		return nil, err
	}
	return h.sorted(), nil
}

// KNNVector returns the k nearest neighbors of an arbitrary query vector.
func (t *KDTree) KNNVector(q []float64, k int, metric DistanceMetric) ([]Neighbor, error) {
	if k < 0 {
		return nil, fmt.Errorf("optics: k = %d: %w", k, ErrInvalidK)
	}
	if err := t.checkQuery(q); err != nil {
		return nil, err
	}
	if k == 0 || t.root == noNode {
		return []Neighbor{}, nil
	}

	h := &knnHeap{k: k}
	if err := t.search(q, metric, h); err != nil {
		return nil, err
	}
	return h.sorted(), nil
}

// Within returns every point whose distance to the stored point id is at
// most radius, ordered like KNN. The query point itself is included.
func (t *KDTree) Within(id ID, radius float64, metric DistanceMetric) ([]Neighbor, error) {
	q, ok := t.store.Get(id)
	if !ok {
		return nil, fmt.Errorf("optics: range query for id %d: %w", id, ErrUnknownID)
	}
	return t.WithinVector(q, radius, metric)
}

// WithinVector is Within for an arbitrary query vector.
func (t *KDTree) WithinVector(q []float64, radius float64, metric DistanceMetric) ([]Neighbor, error) {
	if math.IsNaN(radius) || radius < 0 {
		return nil, fmt.Errorf("optics: radius %v: %w", radius, ErrInvalidDistance)
	}
	if err := t.checkQuery(q); err != nil {
		return nil, err
	}
	if t.root == noNode {
		return []Neighbor{}, nil
	}

	r := &rangeCollector{radius: radius, out: []Neighbor{}}
	if err := t.search(q, metric, r); err != nil {
		return nil, err
	}
	slices.SortFunc(r.out, compareNeighbors)
	return r.out, nil
}

func (t *KDTree) checkQuery(q []float64) error {
	if t.n > 0 && len(q) != t.dims {
		return fmt.Errorf("optics: query length %d, want %d: %w", len(q), t.dims, ErrDimensionMismatch)
	}
	return nil
}

// collector accumulates candidates during a search. bound is the largest
// distance a new candidate may have and still be accepted; it never grows.
type collector interface {
	bound() float64
	offer(id ID, d float64)
}

type frontier struct {
	node  int32
	bound float64 // lower bound on the distance to anything in node's subtree
}

// searchScratch is the per-query working set of search. visited is sized to
// the arena once and only the touched handles are cleared between queries.
type searchScratch struct {
	visited []bool
	touched []int32
	stack   []frontier
}

func (t *KDTree) getScratch() *searchScratch {
	s, _ := t.scratch.Get().(*searchScratch)
	if s == nil {
		s = &searchScratch{}
	}
	if len(s.visited) < len(t.nodes) {
		s.visited = make([]bool, len(t.nodes))
	}
	return s
}

func (t *KDTree) putScratch(s *searchScratch) {
	for _, h := range s.touched {
		s.visited[h] = false
	}
	s.touched = s.touched[:0]
	s.stack = s.stack[:0]
	t.scratch.Put(s)
}

// search scans outward from the cell q falls into. Every node is entered at
// most once. A child on the far side of a split is skipped when the
// hyperplane alone is already farther than the collector's bound.
func (t *KDTree) search(q []float64, metric DistanceMetric, c collector) error {
	s := t.getScratch()
	defer t.putScratch(s)
	visited := s.visited
	stack := append(s.stack, frontier{node: t.locate(q)})
	defer func() { s.stack = stack }()

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[f.node] || f.bound > c.bound() {
			continue
		}
		visited[f.node] = true
		s.touched = append(s.touched, f.node)

		nd := &t.nodes[f.node]
		for _, p := range nd.points {
			d, err := checkedDistance(metric, q, p.vec)
			if err != nil {
				return fmt.Errorf("optics: id %d: %w", p.id, err)
			}
			c.offer(p.id, d)
		}

		// LIFO: parent is explored last, the near child first.
		if nd.parent != noNode && !visited[nd.parent] {
			stack = append(stack, frontier{node: nd.parent})
		}
		splitDistance := math.Abs(nd.split - q[nd.dim])
		near, far := nd.right, nd.left
		if q[nd.dim] < nd.split {
			near, far = nd.left, nd.right
		}
		if far != noNode && !visited[far] && splitDistance <= c.bound() {
			stack = append(stack, frontier{node: far, bound: splitDistance})
		}
		if near != noNode && !visited[near] {
			stack = append(stack, frontier{node: near})
		}
	}
	return nil
}

// locate returns the deepest node on q's descent path: left while strictly
// less than the split, right otherwise, stopping at an absent child.
func (t *KDTree) locate(q []float64) int32 {
	h := t.root
	for {
		nd := &t.nodes[h]
		next := nd.right
		if q[nd.dim] < nd.split {
			next = nd.left
		}
		if next == noNode {
			return h
		}
		h = next
	}
}

// --- bounded max-heap for KNN queries ---

// knnHeap keeps the k best candidates with the worst one on top. Worse means
// larger distance, or equal distance and larger id.
type knnHeap struct {
	k     int
	items []Neighbor
}

func (h *knnHeap) Len() int           { return len(h.items) }
func (h *knnHeap) Less(i, j int) bool { return compareNeighbors(h.items[i], h.items[j]) > 0 }
func (h *knnHeap) Swap(i, j int)      { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *knnHeap) Push(x any)         { h.items = append(h.items, x.(Neighbor)) }
func (h *knnHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}

func (h *knnHeap) bound() float64 {
	if len(h.items) < h.k {
		return math.Inf(1)
	}
	return h.items[0].Distance
}

func (h *knnHeap) offer(id ID, d float64) {
	cand := Neighbor{ID: id, Distance: d}
	if len(h.items) < h.k {
		heap.Push(h, cand)
		return
	}
	if compareNeighbors(cand, h.items[0]) < 0 {
		h.items[0] = cand
		heap.Fix(h, 0)
	}
}

// sorted drains the heap into an ascending slice.
func (h *knnHeap) sorted() []Neighbor {
	out := make([]Neighbor, len(h.items))
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(Neighbor)
	}
	return out
}

// skipID drops one id and passes every other candidate through.
type skipID struct {
	collector
	id ID
}

func (s skipID) offer(id ID, d float64) {
	if id != s.id {
		s.collector.offer(id, d)
	}
}

type rangeCollector struct {
	radius float64
	out    []Neighbor
}

func (r *rangeCollector) bound() float64 { return r.radius }

func (r *rangeCollector) offer(id ID, d float64) {
	if d <= r.radius {
		r.out = append(r.out, Neighbor{ID: id, Distance: d})
	}
}
