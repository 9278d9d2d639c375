package pipe

import "math"

// Storage holds a non-negative quantity of one resource kind.
//
// Implementations handed to a network through World.LookupStorage must be
// pointer types: they are used as map keys while a tick accumulates deltas.
type Storage interface {
	Amount() float64
	SetAmount(v float64)
	// Capacity is math.Inf(1) for unbounded storages.
	Capacity() float64
	SupportsInsertion() bool
	SupportsExtraction() bool
}

// BasicStorage is the storage used for pipes, central network storages and
// host terminals.
type BasicStorage struct {
	amount   float64
	capacity float64
	insert   bool
	extract  bool
}

// NewStorage returns an empty storage. capacity <= 0 means unbounded.
func NewStorage(capacity float64, insert, extract bool) *BasicStorage {
	if capacity <= 0 || math.IsNaN(capacity) {
		capacity = math.Inf(1)
	}
	return &BasicStorage{capacity: capacity, insert: insert, extract: extract}
}

func (s *BasicStorage) Amount() float64          { return s.amount }
func (s *BasicStorage) Capacity() float64        { return s.capacity }
func (s *BasicStorage) SupportsInsertion() bool  { return s.insert }
func (s *BasicStorage) SupportsExtraction() bool { return s.extract }

// SetAmount clamps v into [0, Capacity]. Ticks never rely on the upper clamp;
// it only guards direct writes.
func (s *BasicStorage) SetAmount(v float64) {
	if math.IsNaN(v) || v < 0 {
		v = 0
	}
	if v > s.capacity {
		v = s.capacity
	}
	s.amount = v
}

// Bounded reports whether the storage has a finite capacity.
func Bounded(s Storage) bool {
	return s != nil && !math.IsInf(s.Capacity(), 1)
}
