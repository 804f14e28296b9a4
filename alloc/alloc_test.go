package alloc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testAllocator(t *testing.T, a Allocator) {
	t.Helper()

	r, err := a.Reserve(1<<20, 4096)
	require.NoError(t, err)
	defer r.Close()

	require.GreaterOrEqual(t, r.Reserved(), uintptr(1<<20))
	require.GreaterOrEqual(t, r.Committed(), uintptr(4096))
	require.NotNil(t, r.Base())

	require.NoError(t, r.Commit(8192))
	require.GreaterOrEqual(t, r.Committed(), uintptr(8192))

	// committing to a smaller value is a no-op, not a shrink
	prev := r.Committed()
	require.NoError(t, r.Commit(100))
	require.Equal(t, prev, r.Committed())

	require.NoError(t, r.Close())
	require.NoError(t, r.Close()) // idempotent
}

func TestHeapAllocator(t *testing.T) {
	testAllocator(t, NewHeapAllocator(4096))
}

func TestVirtualAllocator(t *testing.T) {
	testAllocator(t, NewVirtualAllocator())
}

func TestCommitPastReservationPanics(t *testing.T) {
	a := NewHeapAllocator(4096)
	r, err := a.Reserve(4096, 0)
	require.NoError(t, err)
	defer r.Close()

	require.Panics(t, func() {
		_ = r.Commit(1 << 30)
	})
}

func TestRoundUp(t *testing.T) {
	a := NewHeapAllocator(4096)
	require.Equal(t, uintptr(4096), a.RoundUpAlloc(1))
	require.Equal(t, uintptr(8192), a.RoundUpAlloc(4097))
	require.Equal(t, uintptr(0), a.RoundUpAlloc(0))
}
