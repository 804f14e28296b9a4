// Package entitystore implements the generational entity id allocator that
// backs the State Manager: a fixed-capacity slot table plus a free-list of
// recyclable slot indices.
package entitystore

import (
	"errors"

	"github.com/rs/zerolog"
)

// ErrExhausted is returned by Allocate when every slot is live.
var ErrExhausted = errors.New("entitystore: capacity exhausted")

// Entity is an opaque handle: a (generation, slot) pair. Equality is
// structural — two handles are the same entity iff both fields match.
type Entity struct {
	Generation uint32
	Slot       uint32
}

// Location is where a live entity's row data lives.
type Location struct {
	ArchetypeID uint32
	Row         uint32
}

type slot struct {
	generation  uint32
	archetypeID uint32
	row         uint32
}

// Store is a fixed-capacity array of slots plus a free-list. A slot's
// generation increments monotonically on Free; the free-list and the live
// set partition the slot space at all times.
type Store struct {
	slots    []slot
	freeList []uint32
	log      zerolog.Logger
}

// New creates a Store with room for exactly maxEntities live entities at
// once. All slots start at generation 0 (never allocated) and the free-list
// holds the full index range in ascending order. A nil log defaults to a
// disabled zerolog.Logger.
func New(maxEntities int, log *zerolog.Logger) *Store {
	l := zerolog.Nop()
	if log != nil {
		l = *log
	}
	s := &Store{
		slots:    make([]slot, maxEntities),
		freeList: make([]uint32, maxEntities),
		log:      l,
	}
	for i := range s.freeList {
		s.freeList[i] = uint32(i)
	}
	for i := range s.slots {
		s.slots[i].archetypeID = ^uint32(0)
		s.slots[i].row = ^uint32(0)
	}
	return s
}

// Capacity returns maxEntities.
func (s *Store) Capacity() int {
	return len(s.slots)
}

// Allocate pops a slot index from the free-list and returns a handle with
// that slot's current generation. The returned entity is not yet placed in
// any archetype — callers must follow with a State Manager insertion and
// then SetLocation.
func (s *Store) Allocate() (Entity, error) {
	n := len(s.freeList)
	if n == 0 {
		s.log.Debug().Int("capacity", len(s.slots)).Msg("entitystore: allocate failed, capacity exhausted")
		return Entity{}, ErrExhausted
	}
	idx := s.freeList[n-1]
	s.freeList = s.freeList[:n-1]
	sl := &s.slots[idx]
	if sl.generation == 0 {
		sl.generation = 1
	}
	return Entity{Generation: sl.generation, Slot: idx}, nil
}

// Free verifies handle liveness (generation must match), bumps the slot's
// generation, and pushes the slot back onto the free-list. Freeing a stale
// or out-of-range handle is a detected no-op.
func (s *Store) Free(e Entity) {
	if int(e.Slot) >= len(s.slots) {
		return
	}
	sl := &s.slots[e.Slot]
	if sl.generation == 0 || sl.generation != e.Generation {
		return
	}
	sl.generation++
	sl.archetypeID = ^uint32(0)
	sl.row = ^uint32(0)
	s.freeList = append(s.freeList, e.Slot)
}

// Resolve performs a constant-time, generation-checked lookup. It returns
// ok=false for any out-of-range or stale handle; the Location it returns in
// that case is the zero value and must not be used.
func (s *Store) Resolve(e Entity) (Location, bool) {
	if int(e.Slot) >= len(s.slots) {
		return Location{}, false
	}
	sl := &s.slots[e.Slot]
	if sl.generation == 0 || sl.generation != e.Generation {
		return Location{}, false
	}
	return Location{ArchetypeID: sl.archetypeID, Row: sl.row}, true
}

// SetLocation records where a live entity's row data lives. It is a
// programmer error to call this with a stale handle.
func (s *Store) SetLocation(e Entity, loc Location) {
	sl := &s.slots[e.Slot]
	if sl.generation != e.Generation {
		panic("entitystore: SetLocation on stale handle")
	}
	sl.archetypeID = loc.ArchetypeID
	sl.row = loc.Row
}

// IsLive reports whether e currently resolves to a slot.
func (s *Store) IsLive(e Entity) bool {
	_, ok := s.Resolve(e)
	return ok
}
