// Package taskgraph implements the task-graph megakernel scheduler: a
// persistent pool of worker goroutines that pulls work from a DAG of nodes,
// each node dispatching some number of invocations of one function over
// some number of worker "lanes" per invocation.
//
// The design is a direct port of a GPU megakernel scheduler originally
// written against CUDA's block/warp/thread hierarchy and its
// __syncthreads/__syncwarp/__ballot_sync primitives. Lanes here are
// goroutines instead of SIMT threads, and the primitives below are their Go
// equivalents: a reusable barrier (rendezvous) stands in for
// __syncthreads(), and grid-wide coordination runs on sync/atomic instead
// of relaxed/acquire/release memory orderings a real GPU would need.
package taskgraph

import "sync/atomic"

// NodeHeader is the part of a node's associated data every node data type
// must embed. NumDynamicInvocations lets a node decide its own invocation
// count at run time, read once when the scheduler first assigns a block to
// the node.
type NodeHeader struct {
	NumDynamicInvocations uint32
}

// NodeData is user data associated with one node: typically a pointer to
// inputs/outputs the node's function reads and writes, headed by a
// NodeHeader the scheduler consults for dynamic invocation counts.
type NodeData interface {
	Header() *NodeHeader
}

// InvocationFunc is one node's unit of work, called by every lane assigned
// to an invocation offset. invocationOffset ranges over [0,
// totalNumInvocations); each offset is handed to the
// NumThreadsPerInvocation lanes that cooperate on it (a single lane when
// NumThreadsPerInvocation is 1) and to no other lane across the whole run —
// that is the scheduler's one load-bearing guarantee.
type InvocationFunc func(data NodeData, invocationOffset uint32)

// Node is one entry in the task graph. FixedCount, when nonzero, fixes the
// node's invocation count at graph-construction time; otherwise the count
// is read from the node's NodeData at assignment time
// (NumDynamicInvocations). NumThreadsPerInvocation selects the narrow path
// (<=32, many invocations share a warp) or the wide path (>32, the
// NumThreadsPerInvocation lanes of several warps cooperate on each
// invocation, and a block runs NumThreadsPerBlock/NumThreadsPerInvocation
// invocations per round).
//
// The three atomic fields are scheduler-owned scratch state, reset by
// advanceTo whenever a node is (re)entered; callers never touch them.
type Node struct {
	FuncID                  uint32
	DataIdx                 uint32
	FixedCount              uint32
	NumThreadsPerInvocation uint32

	curOffset           atomic.Int32
	numRemaining        atomic.Uint32
	totalNumInvocations atomic.Uint32
}

// NumRemaining returns the node's current remaining-invocation count. It is
// meant for tests and diagnostics; schedulers never need to read it back.
func (n *Node) NumRemaining() uint32 {
	return n.numRemaining.Load()
}

// TotalNumInvocations returns the node's invocation count as computed and
// cached when the node was started, or zero if it has not been reached yet.
func (n *Node) TotalNumInvocations() uint32 {
	return n.totalNumInvocations.Load()
}

func computeNumInvocations(node *Node, data NodeData) uint32 {
	if node.FixedCount != 0 {
		return node.FixedCount
	}
	if data == nil {
		return 0
	}
	return data.Header().NumDynamicInvocations
}

func fetchAddInt32(a *atomic.Int32, delta int32) int32 {
	return a.Add(delta) - delta
}

func fetchSubUint32(a *atomic.Uint32, delta uint32) uint32 {
	return a.Add(-delta) + delta
}
