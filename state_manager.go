package ecsrt

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/rs/zerolog"

	"github.com/ridgelinehq/ecsrt/alloc"
	"github.com/ridgelinehq/ecsrt/entitystore"
)

// StateManager registers components, archetypes, and queries, and owns the
// archetype tables. One mutex guards query compilation; it is uncontended
// in steady state and held only for the duration of a single compile.
// Archetype registration is assumed to be externally serialized
// (host-side, pre-launch), matching the spec.
type StateManager struct {
	alloc           alloc.Allocator
	numWorlds       uint32
	maxRowsPerTable uint32
	log             zerolog.Logger

	components [maxComponents]*componentDesc
	archetypes [maxArchetypes]*archetype

	queryMu   sync.Mutex
	queryData []uint32 // append-only arena, see MakeQuery
}

// New constructs a StateManager and registers the implicit Entity and
// WorldID components at ids 0 and 1. A nil log defaults to a disabled
// zerolog.Logger.
func New(a alloc.Allocator, numWorlds, maxRowsPerTable uint32, log *zerolog.Logger) *StateManager {
	l := zerolog.Nop()
	if log != nil {
		l = *log
	}
	sm := &StateManager{
		alloc:           a,
		numWorlds:       numWorlds,
		maxRowsPerTable: maxRowsPerTable,
		log:             l,
	}
	sm.RegisterComponent(EntityComponentID, 4, entityColumnSize)
	sm.RegisterComponent(WorldIDComponentID, 4, worldIDColumnSize)
	return sm
}

// InsertRow allocates the next row in archetypeID's table, writes e and
// worldID into the implicit columns, grows the column's committed prefix
// on demand, and returns the row index. Over-subscription of rows past
// maxRowsPerTable is a fatal invariant violation and panics.
func (sm *StateManager) InsertRow(archetypeID uint32, e entitystore.Entity, worldID uint32) uint32 {
	a := sm.archetypeOrPanic(archetypeID)
	row := a.tbl.numRows.Add(1) - 1
	if row >= a.tbl.maxRows {
		panic(fmt.Sprintf("ecsrt: archetype %d row overflow: row %d >= maxRowsPerTable %d", archetypeID, row, a.tbl.maxRows))
	}

	for _, col := range a.tbl.columns {
		needed := uintptr(row+1) * uintptr(col.size)
		if needed > col.region.Committed() {
			if err := col.region.Commit(sm.alloc.RoundUpAlloc(needed)); err != nil {
				panic(fmt.Sprintf("ecsrt: committing column for archetype %d row %d: %v", archetypeID, row, err))
			}
		}
	}

	*(*entitystore.Entity)(a.tbl.columns[0].rowPtr(row)) = e
	*(*uint32)(a.tbl.columns[1].rowPtr(row)) = worldID
	return row
}

// RowEntity returns the Entity handle stored in row of archetypeID's table.
func (sm *StateManager) RowEntity(archetypeID, row uint32) entitystore.Entity {
	a := sm.archetypeOrPanic(archetypeID)
	return *(*entitystore.Entity)(a.tbl.columns[0].rowPtr(row))
}

// Column returns the base pointer and element stride for componentID's
// column within archetypeID's table, resolved through the archetype's
// column-index map exactly as query compilation would resolve it. This is
// the access point dispatched kernels use to read/write component data —
// the core never interprets the bytes itself.
func (sm *StateManager) Column(archetypeID uint32, componentID ComponentID) (base unsafe.Pointer, stride uint32) {
	a := sm.archetypeOrPanic(archetypeID)
	idx := a.columnIndexFor(componentID)
	col := a.tbl.columns[idx]
	return col.region.Base(), col.size
}

// ColumnAt returns the base pointer and stride for an already-resolved
// column index, as produced by a compiled query's match record — avoiding
// a second columnIndexFor lookup on the query's hot path.
func (sm *StateManager) ColumnAt(archetypeID, columnIndex uint32) (base unsafe.Pointer, stride uint32) {
	a := sm.archetypeOrPanic(archetypeID)
	col := a.tbl.columns[columnIndex]
	return col.region.Base(), col.size
}
