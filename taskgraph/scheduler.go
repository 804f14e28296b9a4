package taskgraph

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/ridgelinehq/ecsrt/taskgraph/tracing"
)

// FuncTable maps a node's FuncID to the function it dispatches.
type FuncTable map[uint32]InvocationFunc

// Config sizes one Run: NumBlocks block-goroutine-groups, each with
// NumThreadsPerBlock lane goroutines, cooperatively draining nodes.
// MaxActiveBlocks, if nonzero, bounds how many blocks run concurrently —
// the portable stand-in for a GPU's per-SM resident-block limit, applied
// globally rather than per streaming multiprocessor since Go has no SM
// concept to bound against.
type Config struct {
	NumBlocks          uint32
	NumThreadsPerBlock uint32
	MaxActiveBlocks    uint32
}

func (c Config) validate() error {
	if c.NumBlocks == 0 {
		return fmt.Errorf("taskgraph: NumBlocks must be > 0")
	}
	if c.NumThreadsPerBlock == 0 {
		return fmt.Errorf("taskgraph: NumThreadsPerBlock must be > 0")
	}
	return nil
}

// graph is the run-scoped scheduler state: the node array, its associated
// data, the dispatch table, and the grid-wide cursor every block polls.
type graph struct {
	nodes     []Node
	nodeDatas []NodeData
	funcs     FuncTable
	rec       *tracing.Recorder

	curNodeIdx atomic.Int32
	abort      *abortSignal
}

// advanceTo scans forward from idx, skipping any node whose computed
// invocation count is zero, initializing the first non-empty node's
// counters (curOffset, numRemaining, totalNumInvocations) as it goes. It
// returns the index it stopped at: either a freshly initialized node, or
// len(nodes) if the scan ran off the end — the scheduler's Exit sentinel.
// This same logic handles the empty-DAG case (len(nodes)==0, the loop never
// runs) and the dynamic-zero-invocation case (a node computes 0 and is
// skipped without ever being assigned to a block).
func (g *graph) advanceTo(idx uint32) uint32 {
	for idx < uint32(len(g.nodes)) {
		n := &g.nodes[idx]
		var data NodeData
		if int(n.DataIdx) < len(g.nodeDatas) {
			data = g.nodeDatas[n.DataIdx]
		}
		total := computeNumInvocations(n, data)
		if total == 0 {
			idx++
			continue
		}
		n.curOffset.Store(0)
		n.numRemaining.Store(total)
		n.totalNumInvocations.Store(total)
		g.rec.Log(tracing.NodeStart, n.FuncID, 0, total, idx)
		return idx
	}
	return uint32(len(g.nodes))
}

func (g *graph) init() {
	g.rec.Log(tracing.Calibration, 0, 0, 0, 0)
	g.curNodeIdx.Store(int32(g.advanceTo(0)))
}

// finishNode accounts numFinished completed invocations against nodeIdx's
// remaining count. Exactly one caller across the whole run observes
// numRemaining hit zero (fetchSubUint32 returns the pre-subtraction value,
// and only the caller whose subtraction made it cross from >0 to <=0 sees
// prev == numFinished for the final chunk); that caller retires the node
// and publishes the next one.
func (g *graph) finishNode(nodeIdx uint32, numFinished uint32) {
	if numFinished == 0 {
		return
	}
	n := &g.nodes[nodeIdx]
	prev := fetchSubUint32(&n.numRemaining, numFinished)
	if prev == numFinished {
		g.rec.Log(tracing.NodeFinish, n.FuncID, numFinished, n.totalNumInvocations.Load(), nodeIdx)
		next := g.advanceTo(nodeIdx + 1)
		g.curNodeIdx.Store(int32(next))
	}
}

func (g *graph) dispatch(funcID uint32, nodeIdx uint32, invocationOffset uint32) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("taskgraph: node %d funcID %d invocation %d panicked: %v", nodeIdx, funcID, invocationOffset, rec)
		}
	}()
	fn, ok := g.funcs[funcID]
	if !ok {
		return fmt.Errorf("taskgraph: no function registered for funcID %d", funcID)
	}
	var data NodeData
	if int(g.nodes[nodeIdx].DataIdx) < len(g.nodeDatas) {
		data = g.nodeDatas[g.nodes[nodeIdx].DataIdx]
	}
	fn(data, invocationOffset)
	return nil
}

// roundDecision is the payload one round's elected leader computes and
// publishes to the rest of its block, standing in for the CUDA scheduler's
// shared block state struct.
type roundDecision struct {
	exit          bool
	fresh         bool
	nodeIdx       uint32
	total         uint32
	funcID        uint32
	threadsPerInv uint32
	blockBase     int32
}

// block is the per-block-goroutine-group state: its round barrier (shared
// by all its lanes) and one narrow-reclaim rendezvous per warp, plus the
// node assignment this block currently believes is live — mutated only
// from inside decide, which runs as the round rendezvous's compute callback
// on exactly one lane per round, so it needs no lock of its own.
type block struct {
	idx      uint32
	numLanes uint32
	round    *rendezvous
	warps    []*rendezvous

	curNodeIdx int32
	curTotal   uint32
	curFuncID  uint32
	curThreads uint32
}

func newBlock(idx, numLanes uint32, abort *abortSignal) *block {
	numWarps := (numLanes + 31) / 32
	warps := make([]*rendezvous, numWarps)
	for w := range warps {
		lanes := 32
		if remaining := int(numLanes) - w*32; remaining < 32 {
			lanes = remaining
		}
		warps[w] = newRendezvous(lanes, abort)
	}
	return &block{
		idx:        idx,
		numLanes:   numLanes,
		round:      newRendezvous(int(numLanes), abort),
		warps:      warps,
		curNodeIdx: -1,
	}
}

func (blk *block) decide(g *graph) *roundDecision {
	globalIdx := uint32(g.curNodeIdx.Load())
	if globalIdx == uint32(len(g.nodes)) {
		return &roundDecision{exit: true}
	}

	n := &g.nodes[globalIdx]
	fresh := int32(globalIdx) != blk.curNodeIdx
	if fresh {
		blk.curNodeIdx = int32(globalIdx)
		blk.curTotal = n.totalNumInvocations.Load()
		blk.curFuncID = n.FuncID
		blk.curThreads = n.NumThreadsPerInvocation
	}

	d := &roundDecision{
		nodeIdx:       globalIdx,
		total:         blk.curTotal,
		funcID:        blk.curFuncID,
		threadsPerInv: blk.curThreads,
		fresh:         fresh,
	}
	if fresh || blk.curThreads > 32 {
		chunk := int32(blk.numLanes) / int32(blk.curThreads)
		if chunk == 0 {
			chunk = 1
		}
		d.blockBase = fetchAddInt32(&n.curOffset, chunk)
	}
	if fresh {
		g.rec.Log(tracing.BlockStart, d.funcID, blk.idx, d.total, d.nodeIdx)
	}
	return d
}

func (blk *block) run(ctx context.Context, g *graph, laneIdx uint32) error {
	warpIdx := laneIdx / 32
	laneInWarp := laneIdx % 32

	for {
		if tripped, err := g.abort.status(); tripped {
			return err
		}
		if err := ctx.Err(); err != nil {
			g.abort.trip(err)
			return err
		}

		_, raw, isRoundLeader := blk.round.Arrive(false, func() any { return blk.decide(g) })
		if tripped, err := g.abort.status(); tripped {
			return err
		}
		d := raw.(*roundDecision)

		if d.exit {
			if isRoundLeader {
				g.rec.Log(tracing.BlockExit, 0, 0, 0, uint32(len(g.nodes)))
			}
			return nil
		}

		var baseOffset int32

		if d.threadsPerInv > 32 {
			baseOffset = d.blockBase + int32(warpIdx*32)/int32(d.threadsPerInv)
		} else if d.fresh {
			baseOffset = d.blockBase + int32(warpIdx*32)/int32(d.threadsPerInv)
		} else {
			w := blk.warps[warpIdx]
			_, payload, _ := w.Arrive(false, func() any {
				chunk := int32(32) / int32(d.threadsPerInv)
				if chunk == 0 {
					chunk = 1
				}
				return fetchAddInt32(&g.nodes[d.nodeIdx].curOffset, chunk)
			})
			if tripped, err := g.abort.status(); tripped {
				return err
			}
			baseOffset = payload.(int32)
		}

		if baseOffset >= int32(d.total) {
			continue
		}

		threadOffset := baseOffset + int32(laneInWarp)/int32(d.threadsPerInv)
		executed := threadOffset < int32(d.total)
		if executed {
			if err := g.dispatch(d.funcID, d.nodeIdx, uint32(threadOffset)); err != nil {
				g.abort.trip(err)
				return err
			}
		}

		if d.threadsPerInv > 32 {
			_, _, isLeader := blk.round.Arrive(executed, nil)
			if isLeader {
				g.rec.Log(tracing.BlockWait, d.funcID, blk.idx, d.total, d.nodeIdx)
				g.finishNode(d.nodeIdx, blk.numLanes/d.threadsPerInv)
			}
		} else {
			w := blk.warps[warpIdx]
			totalExec, _, isLeader := w.Arrive(executed, nil)
			if isLeader {
				g.rec.Log(tracing.BlockWait, d.funcID, blk.idx, totalExec, d.nodeIdx)
				g.finishNode(d.nodeIdx, totalExec/d.threadsPerInv)
			}
		}
	}
}

// Run launches cfg.NumBlocks block-goroutine-groups, each with
// cfg.NumThreadsPerBlock lane goroutines, and drains nodes until the grid's
// cursor reaches len(nodes). It returns the first error encountered by any
// lane — a dispatch panic, or ctx cancellation — after which every other
// lane unwinds via the shared abort signal rather than running to
// completion on stale state.
func Run(ctx context.Context, cfg Config, nodes []Node, nodeDatas []NodeData, funcs FuncTable, rec *tracing.Recorder) error {
	if err := cfg.validate(); err != nil {
		return err
	}
	if rec == nil {
		rec = tracing.NewRecorder(0)
	}

	g := &graph{nodes: nodes, nodeDatas: nodeDatas, funcs: funcs, rec: rec, abort: newAbortSignal()}
	g.init()

	eg, egCtx := errgroup.WithContext(ctx)

	var sem *semaphore.Weighted
	if cfg.MaxActiveBlocks > 0 && cfg.MaxActiveBlocks < cfg.NumBlocks {
		sem = semaphore.NewWeighted(int64(cfg.MaxActiveBlocks))
	}

	for b := uint32(0); b < cfg.NumBlocks; b++ {
		blockIdx := b
		eg.Go(func() error {
			if sem != nil {
				if err := sem.Acquire(egCtx, 1); err != nil {
					return err
				}
				defer sem.Release(1)
			}

			blk := newBlock(blockIdx, cfg.NumThreadsPerBlock, g.abort)
			laneGroup, laneCtx := errgroup.WithContext(egCtx)
			for t := uint32(0); t < cfg.NumThreadsPerBlock; t++ {
				laneIdx := t
				laneGroup.Go(func() error {
					return blk.run(laneCtx, g, laneIdx)
				})
			}
			return laneGroup.Wait()
		})
	}

	err := eg.Wait()
	if tripped, abortErr := g.abort.status(); tripped {
		return abortErr
	}
	return err
}

// MaxInvocationOffset is a sanity ceiling on dynamic invocation counts — no
// node may claim more invocations than fit in the int32 offsets the
// scheduler's atomics use.
const MaxInvocationOffset = uint32(math.MaxInt32)
