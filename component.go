// Package ecsrt implements the State Manager: component registration,
// archetype tables backed by reserve-commit column storage, and the
// query-compilation mechanism that resolves which archetype columns satisfy
// a multi-component query.
package ecsrt

import "fmt"

// ComponentID identifies a registered component type. Ids 0 and 1 are
// reserved for the implicit Entity and WorldID columns every archetype
// carries.
type ComponentID = uint32

const (
	// EntityComponentID is the implicit first column of every archetype.
	EntityComponentID ComponentID = 0
	// WorldIDComponentID is the implicit second column of every archetype.
	WorldIDComponentID ComponentID = 1

	// userComponentOffset is the number of implicit columns; user
	// components are numbered starting here in a column-index map.
	userComponentOffset = 2

	// maxComponents bounds the component id space.
	maxComponents = 256
	// maxArchetypes bounds the archetype id space.
	maxArchetypes = 1024
	// maxArchetypeComponents bounds columns per archetype, implicit
	// columns included.
	maxArchetypeComponents = 64

	// entityColumnSize is sizeof(entitystore.Entity): two uint32 fields.
	entityColumnSize = 8
	// worldIDColumnSize is sizeof(uint32).
	worldIDColumnSize = 4
)

// componentDesc is a registered component's type description: alignment
// and size are write-once, recorded at RegisterComponent and never mutated
// thereafter.
type componentDesc struct {
	alignment uint32
	size      uint32
}

// RegisterComponent emplaces a component descriptor at position id.
// Registering the same id twice, or registering outside [0, maxComponents),
// is a programmer error and panics — the core never recovers from a
// registration conflict.
func (sm *StateManager) RegisterComponent(id ComponentID, alignment, size uint32) {
	if id >= maxComponents {
		panic(fmt.Sprintf("ecsrt: component id %d exceeds maximum %d", id, maxComponents))
	}
	if sm.components[id] != nil {
		panic(fmt.Sprintf("ecsrt: component id %d already registered", id))
	}
	sm.components[id] = &componentDesc{alignment: alignment, size: size}
}

// componentInfo returns the descriptor for id, panicking if id was never
// registered — the "Unassigned component" error kind from the spec, which
// is always a programmer error at archetype-registration or query time.
func (sm *StateManager) componentInfo(id ComponentID) *componentDesc {
	if id >= maxComponents || sm.components[id] == nil {
		panic(fmt.Sprintf("ecsrt: component id %d is not registered", id))
	}
	return sm.components[id]
}
