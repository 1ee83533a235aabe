package optics

import (
	"fmt"
	"math"

	"github.com/RoaringBitmap/roaring/v2"
)

// ID identifies a point in a PointStore. IDs are totally ordered; the
// ordering is used for deterministic tie-breaking.
type ID uint32

// PointStore is a read-only, randomly indexable collection of vectors of
// uniform dimensionality. Nothing in this package mutates a store.
type PointStore interface {
	// Dimensionality returns the length of every vector in the store.
	Dimensionality() int

	// Get returns the vector for id and whether it exists. The returned
	// slice must not be modified.
	Get(id ID) ([]float64, bool)

	// IDs returns all ids in ascending order.
	IDs() []ID

	// Len returns the number of points.
	Len() int
}

// MemoryStore is an in-memory PointStore.
type MemoryStore struct {
	dims    int
	ids     *roaring.Bitmap
	vectors map[ID][]float64
}

// NewMemoryStore builds a store from rows, assigning ids 0..len(rows)-1.
// Rows are copied.
func NewMemoryStore(rows [][]float64) (*MemoryStore, error) {
	ids := make([]ID, len(rows))
	for i := range ids {
		ids[i] = ID(i)
	}
	return NewMemoryStoreWithIDs(ids, rows)
}

// NewMemoryStoreWithIDs builds a store where rows[i] has id ids[i].
// Every row must have the same length and only finite coordinates, and ids
// must be unique.
func NewMemoryStoreWithIDs(ids []ID, rows [][]float64) (*MemoryStore, error) {
	if len(ids) != len(rows) {
		return nil, fmt.Errorf("optics: %d ids for %d rows: %w", len(ids), len(rows), ErrDimensionMismatch)
	}

	s := &MemoryStore{
		ids:     roaring.New(),
		vectors: make(map[ID][]float64, len(rows)),
	}
	if len(rows) > 0 {
		s.dims = len(rows[0])
	}

	flat := make([]float64, len(rows)*s.dims)
	for i, row := range rows {
		if err := checkVector(row, s.dims); err != nil {
			return nil, fmt.Errorf("optics: row %d: %w", i, err)
		}
		if !s.ids.CheckedAdd(uint32(ids[i])) {
			return nil, fmt.Errorf("optics: id %d: %w", ids[i], ErrDuplicateID)
		}
		v := flat[i*s.dims : (i+1)*s.dims : (i+1)*s.dims]
		copy(v, row)
		s.vectors[ids[i]] = v
	}
	s.ids.RunOptimize()

	return s, nil
}

func (s *MemoryStore) Dimensionality() int { return s.dims }
func (s *MemoryStore) Len() int            { return len(s.vectors) }

func (s *MemoryStore) Get(id ID) ([]float64, bool) {
	v, ok := s.vectors[id]
	return v, ok
}

func (s *MemoryStore) IDs() []ID {
	out := make([]ID, 0, s.ids.GetCardinality())
	it := s.ids.Iterator()
	for it.HasNext() {
		out = append(out, ID(it.Next()))
	}
	return out
}

// Contains reports whether id is in the store.
func (s *MemoryStore) Contains(id ID) bool { return s.ids.Contains(uint32(id)) }

// checkVector verifies length and finiteness of v.
func checkVector(v []float64, dims int) error {
	if len(v) != dims {
		return fmt.Errorf("length %d, want %d: %w", len(v), dims, ErrDimensionMismatch)
	}
	for j, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("component %d is %v: %w", j, x, ErrNonFinite)
		}
	}
	return nil
}
