package taskgraph

import "sync"

// abortSignal is a one-shot, broadcast-once flag shared by every rendezvous
// in a run. Tripping it wakes every goroutine currently blocked in a
// rendezvous, even ones it has no generation-count relationship with —
// necessary because a panic inside a dispatched InvocationFunc happens on
// exactly one lane, and every other lane in that lane's block (and every
// other block) must still be able to observe the failure and unwind instead
// of waiting forever for a peer that is never coming.
type abortSignal struct {
	mu      sync.Mutex
	tripped bool
	err     error
	conds   []*sync.Cond
}

func newAbortSignal() *abortSignal {
	return &abortSignal{}
}

func (a *abortSignal) register(c *sync.Cond) {
	a.mu.Lock()
	a.conds = append(a.conds, c)
	a.mu.Unlock()
}

func (a *abortSignal) trip(err error) {
	a.mu.Lock()
	if a.tripped {
		a.mu.Unlock()
		return
	}
	a.tripped = true
	a.err = err
	conds := a.conds
	a.mu.Unlock()

	for _, c := range conds {
		c.L.Lock()
		c.Broadcast()
		c.L.Unlock()
	}
}

func (a *abortSignal) status() (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tripped, a.err
}

// rendezvous is a reusable counting barrier standing in for
// __syncthreads()/__syncwarp(): size participants call Arrive each round;
// the call blocks until all size have arrived, then every caller returns
// the same (totalExecuted, payload) pair computed by whichever caller
// happened to be the one that completed the round. Exactly one caller per
// round gets isLeader == true, letting callers elect a round leader without
// hardcoding lane 0 — any arrival order is correct since the computed
// payload is broadcast to everyone before any of them proceeds.
type rendezvous struct {
	size  int
	abort *abortSignal

	mu      sync.Mutex
	cond    *sync.Cond
	arrived int
	execs   uint32
	gen     uint64

	lastTotal   uint32
	lastPayload any
}

func newRendezvous(size int, abort *abortSignal) *rendezvous {
	r := &rendezvous{size: size, abort: abort}
	r.cond = sync.NewCond(&r.mu)
	abort.register(r.cond)
	return r
}

// Arrive blocks until size goroutines have called it this round. executed
// contributes to a per-round count (used for narrow-path finish
// accounting; pass false when the caller has nothing to count). compute,
// if non-nil, runs exactly once per round, on whichever goroutine completes
// it, and its result is published to every caller as payload.
//
// If the run's abort signal has tripped, Arrive returns immediately with
// isLeader == false and a stale/zero payload; callers must check the abort
// signal themselves before trusting the result.
func (r *rendezvous) Arrive(executed bool, compute func() any) (totalExecuted uint32, payload any, isLeader bool) {
	r.mu.Lock()
	if tripped, _ := r.abort.status(); tripped {
		r.mu.Unlock()
		return 0, nil, false
	}

	gen := r.gen
	r.arrived++
	if executed {
		r.execs++
	}

	if r.arrived == r.size {
		total := r.execs
		var p any
		if compute != nil {
			p = compute()
		}
		r.lastTotal = total
		r.lastPayload = p
		r.arrived = 0
		r.execs = 0
		r.gen++
		r.cond.Broadcast()
		r.mu.Unlock()
		return total, p, true
	}

	for gen == r.gen {
		if tripped, _ := r.abort.status(); tripped {
			break
		}
		r.cond.Wait()
	}
	total, p := r.lastTotal, r.lastPayload
	r.mu.Unlock()
	return total, p, false
}
