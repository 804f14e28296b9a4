package tracing

import (
	"sync/atomic"
	"time"
)

// Recorder is a fixed-capacity ring buffer of Events. Logging never blocks
// and never allocates: once the buffer fills, later events silently
// overwrite earlier slots at the same position modulo capacity. A Recorder
// is meant to be drained by the host between runs, not read concurrently
// with logging.
type Recorder struct {
	buf    []Event
	cursor atomic.Uint64
}

// NewRecorder allocates a Recorder with room for capacity events. A nil
// Recorder is valid and all its methods are no-ops, so callers that don't
// care about tracing can pass one through without a nil check at every call
// site.
func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = 4096
	}
	return &Recorder{buf: make([]Event, capacity)}
}

// Log appends one event. On overflow it wraps and overwrites the oldest
// slot; this is the "best-effort, bounded" tracing the scheduler commits to.
func (r *Recorder) Log(tag Tag, funcID, a, b, nodeIdx uint32) {
	if r == nil {
		return
	}
	idx := r.cursor.Add(1) - 1
	r.buf[idx%uint64(len(r.buf))] = Event{
		Tag:       tag,
		FuncID:    funcID,
		A:         a,
		B:         b,
		NodeIdx:   nodeIdx,
		Timestamp: time.Now().UnixNano(),
	}
}

// Reset zeroes the cursor so the buffer can be reused across runs without
// reallocating.
func (r *Recorder) Reset() {
	if r == nil {
		return
	}
	r.cursor.Store(0)
}

// Drain copies out the events logged so far, oldest-first if the buffer
// never overflowed. If it did overflow, the copy still covers the full
// capacity but the wraparound boundary within it is not reconstructed —
// callers that need strict ordering under overflow should size the
// Recorder generously instead of relying on Drain to sort it out.
func (r *Recorder) Drain() []Event {
	if r == nil {
		return nil
	}
	n := r.cursor.Load()
	if n > uint64(len(r.buf)) {
		n = uint64(len(r.buf))
	}
	out := make([]Event, n)
	copy(out, r.buf[:n])
	return out
}
