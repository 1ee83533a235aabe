package optics

import (
	"fmt"
	"math"
)

// undefined is the reachability (and core distance) of a point that has no
// finite value, such as the first point of each density region. Callers
// test for it with Entry.Defined or math.IsInf(x, 1).
var undefined = math.Inf(1)

// Entry is one record of a cluster order: the point, the processed point it
// was reached from, and the reachability distance it was reached with.
//
// Inside a ReachabilityQueue two entries with the same ID denote the same
// slot regardless of their reachability.
type Entry struct {
	ID             ID
	Predecessor    ID
	HasPredecessor bool
	Reachability   float64
}

// Defined reports whether the entry has a finite reachability.
func (e Entry) Defined() bool { return !math.IsInf(e.Reachability, 1) }

func (e Entry) String() string {
	if !e.HasPredecessor {
		return fmt.Sprintf("%d(-,%v)", e.ID, e.Reachability)
	}
	return fmt.Sprintf("%d(%d,%v)", e.ID, e.Predecessor, e.Reachability)
}

// EntryLess orders entries by reachability ascending. Entries with equal
// reachability order by ID descending: the larger ID comes first.
func EntryLess(a, b Entry) bool {
	if a.Reachability != b.Reachability {
		return a.Reachability < b.Reachability
	}
	return a.ID > b.ID
}

// ClusterOrder is the output of an ordering run: one entry per point in the
// order the points were finalized. It is not modified after the run returns.
type ClusterOrder struct {
	Entries []Entry

	// CoreDistances[i] is the core distance of Entries[i].ID, or +Inf
	// when that point is not a core point.
	CoreDistances []float64

	position map[ID]int
}

func newClusterOrder(capacity int) *ClusterOrder {
	return &ClusterOrder{
		Entries:       make([]Entry, 0, capacity),
		CoreDistances: make([]float64, 0, capacity),
		position:      make(map[ID]int, capacity),
	}
}

func (o *ClusterOrder) append(e Entry, core float64) {
	o.position[e.ID] = len(o.Entries)
	o.Entries = append(o.Entries, e)
	o.CoreDistances = append(o.CoreDistances, core)
}

// Len returns the number of entries.
func (o *ClusterOrder) Len() int { return len(o.Entries) }

// IDs returns the ids in cluster order.
func (o *ClusterOrder) IDs() []ID {
	ids := make([]ID, len(o.Entries))
	for i, e := range o.Entries {
		ids[i] = e.ID
	}
	return ids
}

// Reachabilities returns the reachability distances in cluster order.
func (o *ClusterOrder) Reachabilities() []float64 {
	r := make([]float64, len(o.Entries))
	for i, e := range o.Entries {
		r[i] = e.Reachability
	}
	return r
}

// Position returns the index of id in the cluster order.
func (o *ClusterOrder) Position(id ID) (int, bool) {
	i, ok := o.position[id]
	return i, ok
}
