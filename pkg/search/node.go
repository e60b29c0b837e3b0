package search

import (
	"sync/atomic"
)

// nodeState is the CAS-serialized state ladder from §3:
//
//	UNEVALUATED -> EVALUATING -> EXPANDED0 -> GROWING1 -> EXPANDED1 -> GROWING2 -> EXPANDED2
//
// Only a state in {EXPANDED0, EXPANDED1, EXPANDED2} carries a valid current
// children array.
type nodeState int32

const (
	stateUnevaluated nodeState = iota
	stateEvaluating
	stateExpanded0
	stateGrowing1
	stateExpanded1
	stateGrowing2
	stateExpanded2
)

func (s nodeState) isExpanded() bool {
	return s == stateExpanded0 || s == stateExpanded1 || s == stateExpanded2
}

func (s nodeState) capacityIndex() int {
	switch s {
	case stateExpanded0:
		return 0
	case stateExpanded1:
		return 1
	case stateExpanded2:
		return 2
	default:
		return -1
	}
}

// Child-array capacities. Chosen so that the vast majority of nodes never
// grow past the first array, matching the teacher's "start small, grow on
// demand" philosophy applied at the array level instead of the slice level
// (slices would let readers observe a torn append; these arrays are
// allocated whole and published by a single atomic store, §4.B).
const (
	Children0Size = 8
	Children1Size = 64
)

// Children2Size varies per search (policy vector length); it is supplied by
// SearchParams.PolicySize and stored per-node at construction.

// errBusy is returned by growChildren when another thread is mid-growth;
// the caller re-reads state and retries the whole selection step (§4.B).
var errBusy = busyErr{}

type busyErr struct{}

func (busyErr) Error() string { return "search: node busy growing" }

// Node represents one reachable position, owned by the transposition table
// (or, for the root, directly by the Search) as described in §3.
type Node struct {
	nextPla          Player
	forceNonTerminal bool
	patternBonusHash Hash128
	mutexIdx         uint32

	identity Hash128 // graph hash, or positionHash XOR random128 in non-graph mode

	state nodeState32

	nnOutput atomic.Pointer[nnOutputHandle]

	nodeAge atomic.Int64

	children0 [Children0Size]ChildSlot
	children1 atomic.Pointer[[Children1Size]ChildSlot]
	children2 atomic.Pointer[[]ChildSlot] // length == policySize
	policySize int

	stats      NodeStats
	statsLock  atomic.Bool // test-and-set spinlock guarding multi-field publish
	dirtyCounter atomic.Int64

	virtualLosses atomic.Int64

	// Subtree value-bias bookkeeping (§4.D).
	biasEntry       *valueBiasEntry
	lastBiasDelta   atomicFloat64
	lastBiasWeight  atomicFloat64
}

// nodeState32 is a thin wrapper giving nodeState CAS/Load/Store without
// repeating the int32 cast at every call site.
type nodeState32 struct {
	v atomic.Int32
}

func (s *nodeState32) Load() nodeState { return nodeState(s.v.Load()) }
func (s *nodeState32) Store(ns nodeState) { s.v.Store(int32(ns)) }
func (s *nodeState32) CAS(old, new nodeState) bool {
	return s.v.CompareAndSwap(int32(old), int32(new))
}

// NewNode allocates a fresh, UNEVALUATED node. policySize bounds the final
// (largest) child-capacity ladder rung.
func NewNode(nextPla Player, forceNonTerminal bool, identity Hash128, policySize int) *Node {
	n := &Node{
		nextPla:          nextPla,
		forceNonTerminal: forceNonTerminal,
		identity:         identity,
		policySize:       policySize,
	}
	return n
}

func (n *Node) State() nodeState { return n.state.Load() }

func (n *Node) NextPla() Player { return n.nextPla }

func (n *Node) ForceNonTerminal() bool { return n.forceNonTerminal }

// currentChildren returns the slots for whatever state the caller already
// observed. The slice length is the rung's capacity, not its occupancy —
// occupancy is discovered by walking until a nil pointer (numAllocated),
// since slots are prefix-packed per §3's invariant.
func (n *Node) currentChildren(observed nodeState) []ChildSlot {
	switch observed.capacityIndex() {
	case 0:
		return n.children0[:]
	case 1:
		if p := n.children1.Load(); p != nil {
			return p[:]
		}
		return n.children0[:]
	case 2:
		if p := n.children2.Load(); p != nil {
			return *p
		}
		if p := n.children1.Load(); p != nil {
			return p[:]
		}
		return n.children0[:]
	default:
		return nil
	}
}

// numAllocated walks the prefix-packed slots and returns the count of
// non-nil children plus whether the array is entirely full.
func numAllocated(slots []ChildSlot) (count int, full bool) {
	for i := range slots {
		if slots[i].Child() == nil {
			return i, false
		}
	}
	return len(slots), true
}

// growChildren implements the three-step grow algorithm of §4.B. It must
// only be invoked once the caller has confirmed the current array is full.
func (n *Node) growChildren() error {
	cur := n.state.Load()
	switch cur {
	case stateExpanded0:
		if !n.state.CAS(stateExpanded0, stateGrowing1) {
			return errBusy
		}
		next := &[Children1Size]ChildSlot{}
		copyChildSlots(next[:], n.children0[:])
		n.children1.Store(next)
		n.state.Store(stateExpanded1)
		return nil
	case stateExpanded1:
		if !n.state.CAS(stateExpanded1, stateGrowing2) {
			return errBusy
		}
		size := n.policySize
		if size < Children1Size {
			size = Children1Size
		}
		next := make([]ChildSlot, size)
		if old := n.children1.Load(); old != nil {
			copyChildSlots(next, old[:])
		}
		n.children2.Store(&next)
		n.state.Store(stateExpanded2)
		return nil
	case stateGrowing1, stateGrowing2:
		return errBusy
	default:
		// Already at max capacity, or not expanded yet: nothing to do.
		return nil
	}
}

// copyChildSlots copies child pointers, edge-visits, and move locs with
// relaxed loads/stores: safe because every source observation here is
// already acquire-synchronized (we hold it via a state CAS we just won)
// and the destination is not yet visible to any other goroutine.
func copyChildSlots(dst, src []ChildSlot) {
	for i := range src {
		child := src[i].Child()
		if child == nil {
			return // prefix-packed: nothing further to copy
		}
		dst[i].moveLoc.Store(int32(src[i].MoveLoc()))
		dst[i].edgeVisits.Store(src[i].EdgeVisits())
		dst[i].child.Store(child)
	}
}

// EnsureCapacity grows the node (possibly twice, in a retry loop) until
// there is room for at least one more child beyond numFound or the node is
// already at its largest rung (EXPANDED2, which never grows further), or
// returns errBusy if another thread is already mid-growth (caller should
// re-read state and retry the whole selection instead of spinning here).
func (n *Node) EnsureCapacity(numFound int) error {
	for {
		st := n.state.Load()
		slots := n.currentChildren(st)
		if numFound < len(slots) || st == stateExpanded2 {
			return nil
		}
		if err := n.growChildren(); err != nil {
			return err
		}
	}
}

// AcquireStatsLock is the test-and-set spinlock guarding multi-field stats
// publication (§5, suspension point 5). Every stats publish (the
// dirtyCounter-driven backup, terminal-leaf addLeafValue, and maintenance
// recompute) runs under it, and readers that need several stats fields as
// one coherent unit (e.g. GetRootValues) take it too.
func (n *Node) AcquireStatsLock() {
	for !n.statsLock.CompareAndSwap(false, true) {
	}
}

func (n *Node) ReleaseStatsLock() {
	n.statsLock.Store(false)
}

func (n *Node) AddVirtualLoss(delta int64) int64 {
	return n.virtualLosses.Add(delta)
}

func (n *Node) VirtualLosses() int64 {
	return n.virtualLosses.Load()
}

func (n *Node) NNOutput() *nnOutputHandle {
	return n.nnOutput.Load()
}

// tryBeginEvaluating CASes UNEVALUATED->EVALUATING. Returns true if this
// goroutine won the race and must now call the evaluator (§4.F step 2).
func (n *Node) tryBeginEvaluating() bool {
	return n.state.CAS(stateUnevaluated, stateEvaluating)
}

// finishEvaluating publishes the NN result and moves EVALUATING->EXPANDED0.
func (n *Node) finishEvaluating(out *nnOutputHandle) {
	n.nnOutput.Store(out)
	n.state.Store(stateExpanded0)
}

func (n *Node) SetNodeAge(age int64) { n.nodeAge.Store(age) }
func (n *Node) NodeAge() int64       { return n.nodeAge.Load() }

// claimNodeAge atomically swaps in age and reports whether this call is the
// one that changed it — i.e. whether the caller won the race to "own" this
// node for the current maintenance walk generation. Used by the any-order
// and post-order walkers (maintenance.go) so a node reached twice (a shared
// DAG parent, a cycle, or two racing goroutines) is only ever claimed once.
func (n *Node) claimNodeAge(age int64) bool {
	return n.nodeAge.Swap(age) != age
}
