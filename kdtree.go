package optics

import (
	"fmt"
	"math/bits"
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat"
)

// noNode marks an absent child or the root's parent.
const noNode int32 = -1

// minParallelBuild is the smallest subset that is worth forking a goroutine for.
const minParallelBuild = 2048

// KDTree is an exact k-nearest-neighbor index over a static PointStore.
//
// Each node splits on dimension depth mod dims at the exact median value of
// its subset. Points strictly less go left, strictly greater go right, and
// points equal to the median stay at the node itself. Nodes live in a
// contiguous arena in preorder and refer to each other by int32 handle; the
// parent handle is a plain back-link used by the outward search.
//
// A built tree is read-only and safe for concurrent queries.
type KDTree struct {
	store PointStore
	dims  int
	n     int
	nodes []kdNode
	root  int32

	scratch sync.Pool // *searchScratch
}

type kdNode struct {
	dim    int
	split  float64
	points []kdPoint // points whose value on dim equals split
	left   int32
	right  int32
	parent int32
}

type kdPoint struct {
	id  ID
	vec []float64
}

// NodeInfo describes one KD-tree node for inspection.
type NodeInfo struct {
	Handle    int
	Parent    int // -1 for the root
	Left      int // -1 if absent
	Right     int // -1 if absent
	Depth     int
	Dimension int // 0-based split dimension
	Split     float64
	IDs       []ID
}

// IsLeaf reports whether the node has no children.
func (n NodeInfo) IsLeaf() bool { return n.Left < 0 && n.Right < 0 }

// NewKDTree builds a KD-tree over every point in store. An empty store
// yields an empty tree that answers every query with no neighbors.
func NewKDTree(store PointStore) (*KDTree, error) {
	return NewKDTreeParallel(store, 1)
}

// NewKDTreeParallel is NewKDTree with the top levels of the recursion forked
// across up to workers goroutines. The resulting tree is identical to the
// sequential build.
func NewKDTreeParallel(store PointStore, workers int) (*KDTree, error) {
	t := &KDTree{
		store: store,
		dims:  store.Dimensionality(),
		n:     store.Len(),
		root:  noNode,
	}
	if t.n == 0 {
		return t, nil
	}
	if t.dims < 1 {
		return nil, fmt.Errorf("optics: cannot index %d points of dimensionality %d: %w", t.n, t.dims, ErrDimensionMismatch)
	}

	ids := store.IDs()
	points := make([]kdPoint, len(ids))
	for i, id := range ids {
		v, ok := store.Get(id)
		if !ok {
			return nil, fmt.Errorf("optics: store lists id %d but has no vector: %w", id, ErrUnknownID)
		}
		if err := checkVector(v, t.dims); err != nil {
			return nil, fmt.Errorf("optics: id %d: %w", id, err)
		}
		points[i] = kdPoint{id: id, vec: v}
	}

	t.nodes = buildParallel(points, 0, t.dims, parallelLevels(workers))
	t.root = 0
	return t, nil
}

// parallelLevels returns how many recursion levels fork for the given
// worker count: ceil(log2(workers)).
func parallelLevels(workers int) int {
	if workers <= 1 {
		return 0
	}
	return bits.Len(uint(workers - 1))
}

// kdBuilder builds a subtree sequentially into its own arena.
type kdBuilder struct {
	dims    int
	nodes   []kdNode
	scratch []float64
}

func (b *kdBuilder) build(pts []kdPoint, depth int, parent int32) int32 {
	if len(pts) == 0 {
		return noNode
	}

	dim := depth % b.dims
	median := b.median(pts, dim)
	lo, hi := splitAtMedian(pts, dim, median)

	h := int32(len(b.nodes))
	b.nodes = append(b.nodes, newKDNode(dim, median, pts[lo:hi], parent))

	left := b.build(pts[:lo], depth+1, h)
	right := b.build(pts[hi:], depth+1, h)
	b.nodes[h].left = left
	b.nodes[h].right = right
	return h
}

// median returns the exact lower median of pts along dim. It is always the
// value of some point, so the equal group is never empty.
func (b *kdBuilder) median(pts []kdPoint, dim int) float64 {
	b.scratch = b.scratch[:0]
	for _, p := range pts {
		b.scratch = append(b.scratch, p.vec[dim])
	}
	sort.Float64s(b.scratch)
	return stat.Quantile(0.5, stat.Empirical, b.scratch, nil)
}

func newKDNode(dim int, split float64, equal []kdPoint, parent int32) kdNode {
	pts := make([]kdPoint, len(equal))
	copy(pts, equal)
	return kdNode{
		dim:    dim,
		split:  split,
		points: pts,
		left:   noNode,
		right:  noNode,
		parent: parent,
	}
}

// splitAtMedian partitions pts in place into values < median, == median and
// > median along dim, returning the bounds [0,lo), [lo,hi), [hi,len).
// Relative order within each group is not preserved.
func splitAtMedian(pts []kdPoint, dim int, median float64) (lo, hi int) {
	lo, i, hi := 0, 0, len(pts)
	for i < hi {
		v := pts[i].vec[dim]
		switch {
		case v < median:
			pts[lo], pts[i] = pts[i], pts[lo]
			lo++
			i++
		case v > median:
			hi--
			pts[i], pts[hi] = pts[hi], pts[i]
		default:
			i++
		}
	}
	return lo, hi
}

// buildParallel builds the subtree for pts, forking the two children for the
// next levels recursion levels. Children are built into private arenas and
// grafted back in preorder, so the layout matches kdBuilder.build.
func buildParallel(pts []kdPoint, depth, dims, levels int) []kdNode {
	if levels <= 0 || len(pts) < minParallelBuild {
		b := &kdBuilder{dims: dims, scratch: make([]float64, 0, len(pts))}
		b.build(pts, depth, noNode)
		return b.nodes
	}

	b := &kdBuilder{dims: dims}
	dim := depth % dims
	median := b.median(pts, dim)
	lo, hi := splitAtMedian(pts, dim, median)

	var left, right []kdNode
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		left = buildParallel(pts[:lo], depth+1, dims, levels-1)
	}()
	go func() {
		defer wg.Done()
		right = buildParallel(pts[hi:], depth+1, dims, levels-1)
	}()
	wg.Wait()

	root := newKDNode(dim, median, pts[lo:hi], noNode)
	nodes := make([]kdNode, 1, 1+len(left)+len(right))
	nodes, root.left = graft(nodes, left, 0)
	nodes, root.right = graft(nodes, right, 0)
	nodes[0] = root
	return nodes
}

// graft appends the arena sub to dst, rebasing its handles, and returns the
// handle of sub's root in dst (noNode if sub is empty).
func graft(dst, sub []kdNode, parent int32) ([]kdNode, int32) {
	if len(sub) == 0 {
		return dst, noNode
	}
	off := int32(len(dst))
	for _, nd := range sub {
		if nd.left != noNode {
			nd.left += off
		}
		if nd.right != noNode {
			nd.right += off
		}
		if nd.parent == noNode {
			nd.parent = parent
		} else {
			nd.parent += off
		}
		dst = append(dst, nd)
	}
	return dst, off
}

// Store returns the point store the tree was built from.
func (t *KDTree) Store() PointStore { return t.store }

// Len returns the number of indexed points.
func (t *KDTree) Len() int { return t.n }

// Dimensionality returns the dimensionality of the indexed points.
func (t *KDTree) Dimensionality() int { return t.dims }

// NumNodes returns the number of nodes in the tree.
func (t *KDTree) NumNodes() int { return len(t.nodes) }

// Depth returns the number of levels in the tree (0 when empty).
func (t *KDTree) Depth() int {
	maxDepth := 0
	t.Walk(func(n NodeInfo) bool {
		maxDepth = max(maxDepth, n.Depth+1)
		return true
	})
	return maxDepth
}

// Walk calls fn for every node in preorder until fn returns false.
func (t *KDTree) Walk(fn func(NodeInfo) bool) {
	depth := make([]int, len(t.nodes))
	for h := range t.nodes {
		nd := &t.nodes[h]
		if nd.parent != noNode {
			depth[h] = depth[nd.parent] + 1
		}
		ids := make([]ID, len(nd.points))
		for i, p := range nd.points {
			ids[i] = p.id
		}
		info := NodeInfo{
			Handle:    h,
			Parent:    int(nd.parent),
			Left:      int(nd.left),
			Right:     int(nd.right),
			Depth:     depth[h],
			Dimension: nd.dim,
			Split:     nd.split,
			IDs:       ids,
		}
		if !fn(info) {
			return
		}
	}
}
