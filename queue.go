package optics

import (
	"container/heap"
	"fmt"
	"math"
)

// ReachabilityQueue is a min-priority queue of entries ordered by EntryLess,
// with at most one entry per ID. It is an indexed binary heap: a map from ID
// to heap position makes decrease-key logarithmic.
//
// A queue belongs to a single ordering run and is not safe for concurrent use.
type ReachabilityQueue struct {
	items []Entry
	pos   map[ID]int
}

// Compile time check to ensure queueHeap satisfies the heap interface.
var _ heap.Interface = (*queueHeap)(nil)

// NewReachabilityQueue returns an empty queue with room for capacity entries.
func NewReachabilityQueue(capacity int) *ReachabilityQueue {
	return &ReachabilityQueue{
		items: make([]Entry, 0, capacity),
		pos:   make(map[ID]int, capacity),
	}
}

// InsertOrUpdate inserts e if no entry with e.ID is queued. Otherwise the
// queued entry takes e's reachability and predecessor only if e.Reachability
// is strictly smaller. It reports whether the queue changed.
func (q *ReachabilityQueue) InsertOrUpdate(e Entry) (bool, error) {
	if math.IsNaN(e.Reachability) || e.Reachability < 0 {
		return false, fmt.Errorf("optics: reachability %v for id %d: %w", e.Reachability, e.ID, ErrInvalidDistance)
	}

	i, ok := q.pos[e.ID]
	if !ok {
		heap.Push((*queueHeap)(q), e)
		return true, nil
	}
	if e.Reachability >= q.items[i].Reachability {
		return false, nil
	}
	q.items[i] = e
	heap.Fix((*queueHeap)(q), i)
	return true, nil
}

// PopMin removes and returns the entry with the smallest reachability; among
// equal reachabilities the one with the largest ID.
func (q *ReachabilityQueue) PopMin() (Entry, error) {
	if len(q.items) == 0 {
		return Entry{}, ErrEmptyQueue
	}
	return heap.Pop((*queueHeap)(q)).(Entry), nil
}

// Contains reports whether an entry for id is queued.
func (q *ReachabilityQueue) Contains(id ID) bool {
	_, ok := q.pos[id]
	return ok
}

// Reachability returns the queued reachability of id.
func (q *ReachabilityQueue) Reachability(id ID) (float64, bool) {
	i, ok := q.pos[id]
	if !ok {
		return 0, false
	}
	return q.items[i].Reachability, true
}

// Len returns the number of queued entries.
func (q *ReachabilityQueue) Len() int { return len(q.items) }

// IsEmpty reports whether the queue has no entries.
func (q *ReachabilityQueue) IsEmpty() bool { return len(q.items) == 0 }

// queueHeap exposes heap.Interface without putting Push/Pop on the public type.
type queueHeap ReachabilityQueue

func (h *queueHeap) Len() int           { return len(h.items) }
func (h *queueHeap) Less(i, j int) bool { return EntryLess(h.items[i], h.items[j]) }

func (h *queueHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.pos[h.items[i].ID] = i
	h.pos[h.items[j].ID] = j
}

func (h *queueHeap) Push(x any) {
	e := x.(Entry)
	h.pos[e.ID] = len(h.items)
	h.items = append(h.items, e)
}

func (h *queueHeap) Pop() any {
	old := h.items
	n := len(old)
	e := old[n-1]
	h.items = old[:n-1]
	delete(h.pos, e.ID)
	return e
}
