package ecsrt

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/ridgelinehq/ecsrt/alloc"
)

// column is one reserved virtual-memory region holding a single component's
// values across all rows of an archetype's table.
type column struct {
	region *alloc.Region
	size   uint32
}

func (c *column) rowPtr(row uint32) unsafe.Pointer {
	return unsafe.Add(c.region.Base(), uintptr(row)*uintptr(c.size))
}

// table is an archetype's columnar row storage: a monotonically advancing
// row cursor plus one reserved column buffer per column.
type table struct {
	numRows atomic.Uint32
	columns []*column
	maxRows uint32
}

// archetype is a named collection of columns. The first two columns are
// always Entity and WorldID (injected implicitly); the remaining are the
// user-declared components in registration order.
type archetype struct {
	id            uint32
	componentIDs  []ComponentID  // [Entity, WorldID, user...]
	columnIndex   map[ComponentID]int // user components only, offset by userComponentOffset
	mask          *roaring.Bitmap
	tbl           *table
}

func (a *archetype) hasAll(ids []ComponentID) bool {
	for _, id := range ids {
		if id == EntityComponentID {
			continue
		}
		if !a.mask.Contains(id) {
			return false
		}
	}
	return true
}

// columnIndexFor resolves a requested component id to its column index
// within this archetype: 0 for Entity, 1 for WorldID, columnLookup[id]
// otherwise.
func (a *archetype) columnIndexFor(id ComponentID) uint32 {
	switch id {
	case EntityComponentID:
		return 0
	case WorldIDComponentID:
		return 1
	default:
		idx, ok := a.columnIndex[id]
		if !ok {
			panic(fmt.Sprintf("ecsrt: component %d not present in archetype %d", id, a.id))
		}
		return uint32(idx)
	}
}

// RegisterArchetype records the archetype: it assembles the column
// type-info array as [Entity, WorldID, userComponents...], builds the
// component-id -> column-index map (user components numbered starting at
// userComponentOffset), and reserves one column buffer per column via the
// State Manager's allocator. Every component id must already be
// registered; len(userComponents) must not exceed
// maxArchetypeComponents-2.
func (sm *StateManager) RegisterArchetype(id uint32, userComponents []ComponentID) {
	if id >= maxArchetypes {
		panic(fmt.Sprintf("ecsrt: archetype id %d exceeds maximum %d", id, maxArchetypes))
	}
	if sm.archetypes[id] != nil {
		panic(fmt.Sprintf("ecsrt: archetype id %d already registered", id))
	}
	if len(userComponents) > maxArchetypeComponents-userComponentOffset {
		panic(fmt.Sprintf("ecsrt: archetype %d has %d user components, max is %d", id, len(userComponents), maxArchetypeComponents-userComponentOffset))
	}

	componentIDs := make([]ComponentID, 0, len(userComponents)+userComponentOffset)
	componentIDs = append(componentIDs, EntityComponentID, WorldIDComponentID)
	componentIDs = append(componentIDs, userComponents...)

	columnIndex := make(map[ComponentID]int, len(userComponents))
	mask := roaring.New()
	mask.Add(EntityComponentID)
	mask.Add(WorldIDComponentID)
	for i, cid := range userComponents {
		sm.componentInfo(cid) // panics if unregistered
		columnIndex[cid] = i + userComponentOffset
		mask.Add(cid)
	}

	columns := make([]*column, len(componentIDs))
	for i, cid := range componentIDs {
		var size, alignment uint32
		switch cid {
		case EntityComponentID:
			size, alignment = entityColumnSize, entityColumnSize
		case WorldIDComponentID:
			size, alignment = worldIDColumnSize, worldIDColumnSize
		default:
			desc := sm.componentInfo(cid)
			size, alignment = desc.size, desc.alignment
		}
		if alignment > 1 {
			size = (size + alignment - 1) &^ (alignment - 1)
		}

		reserveBytes := sm.alloc.RoundUpReservation(uintptr(size) * uintptr(sm.maxRowsPerTable))
		initBytes := sm.alloc.RoundUpAlloc(uintptr(size) * uintptr(sm.numWorlds))
		region, err := sm.alloc.Reserve(reserveBytes, initBytes)
		if err != nil {
			panic(fmt.Sprintf("ecsrt: reserving column %d of archetype %d: %v", i, id, err))
		}
		columns[i] = &column{region: region, size: size}
	}

	sm.archetypes[id] = &archetype{
		id:           id,
		componentIDs: componentIDs,
		columnIndex:  columnIndex,
		mask:         mask,
		tbl:          &table{columns: columns, maxRows: sm.maxRowsPerTable},
	}
	sm.log.Debug().Int("archetype_id", int(id)).Int("num_user_components", len(userComponents)).Msg("ecsrt: archetype registered")
}

func (sm *StateManager) archetypeOrPanic(id uint32) *archetype {
	if id >= maxArchetypes || sm.archetypes[id] == nil {
		panic(fmt.Sprintf("ecsrt: archetype id %d is not registered", id))
	}
	return sm.archetypes[id]
}

// ClearTemporaries resets numRows of the archetype's table to zero. This
// does not commit-back column memory; reuse of row slots is permitted on
// the next allocation cycle.
func (sm *StateManager) ClearTemporaries(archetypeID uint32) {
	sm.archetypeOrPanic(archetypeID).tbl.numRows.Store(0)
}

// NumRows returns the archetype table's current row count.
func (sm *StateManager) NumRows(archetypeID uint32) uint32 {
	return sm.archetypeOrPanic(archetypeID).tbl.numRows.Load()
}
