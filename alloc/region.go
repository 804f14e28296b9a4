package alloc

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

// Region is a stable virtual address range with a committed prefix. Callers
// address rows as byte offsets from Base(); it is the caller's
// responsibility (the State Manager's, in practice) to call Commit before
// touching bytes past the currently-committed prefix.
type Region struct {
	base      []byte
	reserved  uintptr
	committed atomic.Uintptr
	commit    func(data []byte, newCommitted uintptr) error
	unmap     func(data []byte) error
	closed    atomic.Bool
}

// Base returns a pointer to the start of the reservation. The pointer is
// stable for the Region's lifetime even though bytes beyond Committed() are
// not yet backed by physical memory.
func (r *Region) Base() unsafe.Pointer {
	if len(r.base) == 0 {
		return nil
	}
	return unsafe.Pointer(&r.base[0])
}

// Reserved returns the total reserved byte count.
func (r *Region) Reserved() uintptr {
	return r.reserved
}

// Committed returns the number of bytes currently backed by physical
// memory, starting from Base().
func (r *Region) Committed() uintptr {
	return r.committed.Load()
}

// Commit grows the committed prefix to at least newCommitted bytes. It is a
// no-op if newCommitted does not exceed the current commit. Committing past
// Reserved() is a fatal invariant violation (the spec's "over-subscription
// of rows" case), so Commit panics rather than returning an error — by the
// time a caller asks to commit past the reservation, the row/column
// relationship that sized the reservation has already been violated.
func (r *Region) Commit(newCommitted uintptr) error {
	if newCommitted > r.reserved {
		panic(fmt.Sprintf("alloc: commit %d exceeds reservation %d", newCommitted, r.reserved))
	}
	for {
		cur := r.committed.Load()
		if newCommitted <= cur {
			return nil
		}
		if r.commit != nil {
			if err := r.commit(r.base, newCommitted); err != nil {
				return err
			}
		}
		if r.committed.CompareAndSwap(cur, newCommitted) {
			return nil
		}
	}
}

// Close releases the reservation. It is idempotent.
func (r *Region) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	if r.unmap != nil {
		return r.unmap(r.base)
	}
	return nil
}
