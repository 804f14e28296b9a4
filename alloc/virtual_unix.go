//go:build unix || linux || darwin || freebsd || openbsd || netbsd

package alloc

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// VirtualAllocator backs Reserve with an anonymous mmap reservation held at
// PROT_NONE, then mprotects a growing prefix to PROT_READ|PROT_WRITE on
// commit. This is the closest portable analogue to the CUDA virtual-memory
// reserve/commit contract the core is specified against.
type VirtualAllocator struct {
	pageSize uintptr
}

// NewVirtualAllocator returns an Allocator that reserves and commits in
// units of the OS page size.
func NewVirtualAllocator() *VirtualAllocator {
	return &VirtualAllocator{pageSize: uintptr(unix.Getpagesize())}
}

func (a *VirtualAllocator) RoundUpReservation(bytes uintptr) uintptr {
	return roundUp(bytes, a.pageSize)
}

func (a *VirtualAllocator) RoundUpAlloc(bytes uintptr) uintptr {
	return roundUp(bytes, a.pageSize)
}

func (a *VirtualAllocator) Reserve(reserveBytes, initCommitBytes uintptr) (*Region, error) {
	reserveBytes = a.RoundUpReservation(reserveBytes)
	initCommitBytes = a.RoundUpAlloc(initCommitBytes)
	if initCommitBytes > reserveBytes {
		return nil, fmt.Errorf("alloc: init commit %d exceeds reservation %d", initCommitBytes, reserveBytes)
	}

	data, err := unix.Mmap(-1, 0, int(reserveBytes), unix.PROT_NONE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReservationExhausted, err)
	}

	r := &Region{
		base:     data,
		reserved: reserveBytes,
		commit: func(base []byte, newCommitted uintptr) error {
			return unix.Mprotect(base[:newCommitted], unix.PROT_READ|unix.PROT_WRITE)
		},
		unmap: func(base []byte) error {
			return unix.Munmap(base)
		},
	}
	if initCommitBytes > 0 {
		if err := r.Commit(initCommitBytes); err != nil {
			_ = unix.Munmap(data)
			return nil, err
		}
	}
	return r, nil
}
