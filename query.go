package ecsrt

import (
	"fmt"
	"sync/atomic"
)

// sentinelUnmatched marks a QueryRef as not-yet-compiled. Compilation is
// idempotent, guarded by this sentinel: a worker that observes any other
// value knows the query is already compiled and every field is
// consistently published.
const sentinelUnmatched = 0xFFFF_FFFF

// QueryRef is a compiled query: an offset into the shared query-data arena,
// a count of matching archetypes, and the number of components requested.
// Once compiled, a QueryRef's data is immutable.
type QueryRef struct {
	Offset        uint32
	NumComponents uint32

	numMatching atomic.Uint32
}

// NewQueryRef returns an uncompiled QueryRef, ready to be passed to
// MakeQuery.
func NewQueryRef() *QueryRef {
	qr := &QueryRef{}
	qr.numMatching.Store(sentinelUnmatched)
	return qr
}

// NumMatchingArchetypes returns the sentinel 0xFFFF_FFFF if the query has
// not yet been compiled, or the number of matching archetypes otherwise.
// Reading this field is the synchronization point: once it is anything but
// the sentinel, Offset and NumComponents are safe to read too.
func (qr *QueryRef) NumMatchingArchetypes() uint32 {
	return qr.numMatching.Load()
}

// QueryMatch is one matching archetype's record from the query-data arena:
// the archetype id, and the resolved column index for each requested
// component, in the caller's component-id order.
type QueryMatch struct {
	ArchetypeID uint32
	Columns     []uint32
}

// MakeQuery compiles componentIDs into qr idempotently under a single
// mutex. Archetypes are scanned in ascending id order; an archetype
// matches iff every non-Entity requested component is present in it. The
// emitted match list preserves ascending archetype-id order, and within an
// archetype, column indices follow componentIDs' order. A query matching
// zero archetypes is valid and yields NumMatchingArchetypes() == 0 — query
// compilation never fails on semantic grounds.
func (sm *StateManager) MakeQuery(componentIDs []ComponentID, qr *QueryRef) {
	if qr.NumMatchingArchetypes() != sentinelUnmatched {
		return // fast path: another worker already won the compile race
	}

	sm.queryMu.Lock()
	defer sm.queryMu.Unlock()

	if qr.NumMatchingArchetypes() != sentinelUnmatched {
		return
	}

	for _, id := range componentIDs {
		if id != EntityComponentID {
			sm.componentInfo(id) // panics on unassigned component
		}
	}

	offset := uint32(len(sm.queryData))
	var numMatching uint32
	for id := uint32(0); id < maxArchetypes; id++ {
		a := sm.archetypes[id]
		if a == nil || !a.hasAll(componentIDs) {
			continue
		}

		numMatching++
		sm.queryData = append(sm.queryData, id)
		for _, cid := range componentIDs {
			sm.queryData = append(sm.queryData, a.columnIndexFor(cid))
		}
	}

	qr.Offset = offset
	qr.NumComponents = uint32(len(componentIDs))
	qr.numMatching.Store(numMatching)
}

// Matches decodes qr's arena slice into structured records. It panics if
// qr has not yet been compiled.
func (sm *StateManager) Matches(qr *QueryRef) []QueryMatch {
	n := qr.NumMatchingArchetypes()
	if n == sentinelUnmatched {
		panic("ecsrt: Matches called on an uncompiled QueryRef")
	}
	stride := 1 + qr.NumComponents
	out := make([]QueryMatch, 0, n)
	for i := uint32(0); i < n; i++ {
		base := qr.Offset + i*stride
		if base+stride > uint32(len(sm.queryData)) {
			panic(fmt.Sprintf("ecsrt: query arena corrupt: base %d stride %d len %d", base, stride, len(sm.queryData)))
		}
		cols := make([]uint32, qr.NumComponents)
		copy(cols, sm.queryData[base+1:base+stride])
		out = append(out, QueryMatch{ArchetypeID: sm.queryData[base], Columns: cols})
	}
	return out
}
