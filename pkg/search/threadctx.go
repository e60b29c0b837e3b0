package search

import (
	"encoding/binary"
	"math/rand"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// ThreadCtx is component E: the per-thread mutable state a playout
// goroutine carries across its descents. It is never shared between
// goroutines.
type ThreadCtx struct {
	ThreadIdx int

	Board   Board
	History History

	rand *rand.Rand

	evalBuf EvalResult

	// scratch is reused across recomputeNodeStats calls on this thread to
	// avoid an allocation per backup (§4.E: "scratch stats buffer sized to
	// the policy length").
	scratch []childStatSlot

	// deferredCleanup holds replaced *nnOutputHandle pointers freed by this
	// thread's root NN-output refreshes, merged into the global list after
	// each RunSinglePlayout (§5, "Shared-resource policy").
	deferredCleanup []*nnOutputHandle

	illegalMoveHashes map[Hash128]struct{}

	// upperBoundVisitsLeft is a best-effort cap used by futile-visit
	// pruning within this descent (§4.E, §4.G).
	upperBoundVisitsLeft float64
}

// childStatSlot is the per-child accumulator recomputeNodeStats builds
// (§4.F): visits, weight, utility, scoreMean, scoreMeanSq, lead, wlv, nrv.
type childStatSlot struct {
	visits       int64
	weight       float64
	utility      float64
	scoreMean    float64
	scoreMeanSq  float64
	lead         float64
	winLossValue float64
	noResultValue float64
}

// NewThreadCtx builds a thread context with a deterministically seeded RNG:
// the seed folds the search-wide seed, thread index, root hash, move count,
// and search counter through xxhash, matching §4.E's seeding recipe. Using
// the same recipe for every thread of a given search is what makes the
// "single-thread equivalence" testable property (§8) reproducible for
// NumThreads==1.
func NewThreadCtx(threadIdx int, board Board, history History, searchSeed int64, rootHash Hash128, moveCount int, searchCounter int64) *ThreadCtx {
	seed := mixSeed(searchSeed, threadIdx, rootHash, moveCount, searchCounter)
	return &ThreadCtx{
		ThreadIdx:         threadIdx,
		Board:             board,
		History:           history,
		rand:              rand.New(rand.NewSource(seed)),
		illegalMoveHashes: make(map[Hash128]struct{}),
	}
}

func mixSeed(searchSeed int64, threadIdx int, rootHash Hash128, moveCount int, searchCounter int64) int64 {
	var buf [8 + 8 + 16 + 8 + 8]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(searchSeed))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(threadIdx))
	copy(buf[16:32], rootHash[:])
	binary.LittleEndian.PutUint64(buf[32:40], uint64(moveCount))
	binary.LittleEndian.PutUint64(buf[40:48], uint64(searchCounter))
	return int64(xxhash.Sum64(buf[:]))
}

func (t *ThreadCtx) Rand() *rand.Rand { return t.rand }

func (t *ThreadCtx) Uint32() uint32 { return t.rand.Uint32() }

// scratchFor returns a zeroed slice of length n, reusing backing storage
// when possible.
func (t *ThreadCtx) scratchFor(n int) []childStatSlot {
	if cap(t.scratch) < n {
		t.scratch = make([]childStatSlot, n)
	}
	s := t.scratch[:n]
	for i := range s {
		s[i] = childStatSlot{}
	}
	return s
}

// markIllegalFirstSeen rate-limits "regenerated NN output due to illegal move"
// warnings to once per thread per search per position (§4.E, §7 kind 2).
// Returns true the first time this hash is seen this search.
func (t *ThreadCtx) markIllegalFirstSeen(h Hash128) bool {
	if _, seen := t.illegalMoveHashes[h]; seen {
		return false
	}
	t.illegalMoveHashes[h] = struct{}{}
	return true
}

func (t *ThreadCtx) deferCleanup(h *nnOutputHandle) {
	if h != nil {
		t.deferredCleanup = append(t.deferredCleanup, h)
	}
}

// globalCleanupList collects deferred cleanup entries from all threads
// after each playout, merged under a mutex (§5, "Shared-resource policy").
type globalCleanupList struct {
	mu    sync.Mutex
	items []*nnOutputHandle
}

func (g *globalCleanupList) mergeFrom(t *ThreadCtx) {
	if len(t.deferredCleanup) == 0 {
		return
	}
	g.mu.Lock()
	g.items = append(g.items, t.deferredCleanup...)
	g.mu.Unlock()
	t.deferredCleanup = nil
}

// clearOldNNOutputs drops every reference in the list, letting the garbage
// collector reclaim them. There is no explicit free in Go; this exists so
// the operation named in §5 has a concrete home and a point where callers
// can bound the list's lifetime.
func (g *globalCleanupList) clearOldNNOutputs() {
	g.mu.Lock()
	g.items = nil
	g.mu.Unlock()
}
