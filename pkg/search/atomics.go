package search

import (
	"math"
	"sync/atomic"
)

// atomicFloat64 stores a float64 behind an atomic.Uint64 bit pattern, the
// same trick the teacher's NodeStats uses for its fixed-point Q value,
// generalized to full float64 precision since the aggregates here (weight
// sums, score means) need it. Load/Store are plain atomic ops; Add is a
// CAS-retry loop, which is the standard way to do read-modify-write on a
// value sync/atomic has no native add for.
type atomicFloat64 struct {
	bits atomic.Uint64
}

func (f *atomicFloat64) Load() float64 {
	return math.Float64frombits(f.bits.Load())
}

func (f *atomicFloat64) Store(v float64) {
	f.bits.Store(math.Float64bits(v))
}

func (f *atomicFloat64) Add(delta float64) float64 {
	for {
		old := f.bits.Load()
		newV := math.Float64frombits(old) + delta
		if f.bits.CompareAndSwap(old, math.Float64bits(newV)) {
			return newV
		}
	}
}

// NodeStats is the atomic aggregate form of a node's search statistics
// (§3, "NodeStats (atomic form)"). Every field is written only through its
// method, all reads are load-consistent snapshots of a single field — the
// caller wanting several fields together must go through statsLock-guarded
// recomputeNodeStats or accept that fields may be observed from
// slightly different backup generations.
type NodeStats struct {
	visits atomic.Int64

	weightSum   atomicFloat64
	weightSqSum atomicFloat64

	winLossValueAvg atomicFloat64
	noResultValueAvg atomicFloat64
	scoreMeanAvg    atomicFloat64
	scoreMeanSqAvg  atomicFloat64
	leadAvg         atomicFloat64
	utilityAvg      atomicFloat64
	utilitySqAvg    atomicFloat64
}

func (s *NodeStats) Visits() int64 { return s.visits.Load() }

// snapshot is a value copy of every averaged field, used by
// recomputeNodeStats and by reporting so callers see a coherent set even
// though the individual atomics are not read together.
type statsSnapshot struct {
	visits          int64
	weightSum       float64
	weightSqSum     float64
	winLossValueAvg float64
	noResultValueAvg float64
	scoreMeanAvg    float64
	scoreMeanSqAvg  float64
	leadAvg         float64
	utilityAvg      float64
	utilitySqAvg    float64
}

func (s *NodeStats) snapshot() statsSnapshot {
	return statsSnapshot{
		visits:           s.visits.Load(),
		weightSum:        s.weightSum.Load(),
		weightSqSum:      s.weightSqSum.Load(),
		winLossValueAvg:  s.winLossValueAvg.Load(),
		noResultValueAvg: s.noResultValueAvg.Load(),
		scoreMeanAvg:     s.scoreMeanAvg.Load(),
		scoreMeanSqAvg:   s.scoreMeanSqAvg.Load(),
		leadAvg:          s.leadAvg.Load(),
		utilityAvg:       s.utilityAvg.Load(),
		utilitySqAvg:     s.utilitySqAvg.Load(),
	}
}

// publish overwrites every averaged field from a freshly recomputed
// snapshot. Callers hold the node's stats lock: the single thread that
// currently owns the node's dirtyCounter drain (playout.go,
// updateStatsAfterPlayout), addLeafValue, and RecursivelyRecomputeStats.
func (s *NodeStats) publish(snap statsSnapshot) {
	s.visits.Store(snap.visits)
	s.weightSum.Store(snap.weightSum)
	s.weightSqSum.Store(snap.weightSqSum)
	s.winLossValueAvg.Store(snap.winLossValueAvg)
	s.noResultValueAvg.Store(snap.noResultValueAvg)
	s.scoreMeanAvg.Store(snap.scoreMeanAvg)
	s.scoreMeanSqAvg.Store(snap.scoreMeanSqAvg)
	s.leadAvg.Store(snap.leadAvg)
	s.utilityAvg.Store(snap.utilityAvg)
	s.utilitySqAvg.Store(snap.utilitySqAvg)
}

// ChildSlot is one edge out of a node: an atomic pointer to the child plus
// the edge-local visit count and move location (§3, "ChildSlot (edge)").
// edgeVisits is distinct from the child node's own Visits() under graph
// search, where several parents can share one transposed child.
type ChildSlot struct {
	child      atomic.Pointer[Node]
	edgeVisits atomic.Int64
	moveLoc    atomic.Int32
}

func (c *ChildSlot) Child() *Node   { return c.child.Load() }
func (c *ChildSlot) EdgeVisits() int64 { return c.edgeVisits.Load() }
func (c *ChildSlot) MoveLoc() Loc   { return Loc(c.moveLoc.Load()) }

// storeAll publishes a brand-new slot. Move and edge-visits are written
// before the child pointer so that any goroutine observing a non-nil
// pointer via Child() is guaranteed (by sync/atomic's happens-before
// semantics on the same memory location) to also observe the move and
// edge-visit count written here, matching §4.A.
func (c *ChildSlot) storeAll(move Loc, edgeVisits int64, child *Node) {
	c.moveLoc.Store(int32(move))
	c.edgeVisits.Store(edgeVisits)
	c.child.Store(child)
}

// storeIfNull is the strong CAS a descending playout uses to claim an empty
// slot for a newly discovered child (§4.F step 8). Move and edge-visits are
// written before the CAS that publishes the child pointer, for the same
// release-ordering reason as storeAll: a reader that observes a non-nil
// Child() must also observe this call's move and edge-visit count.
// Returns false if another thread won the race.
func (c *ChildSlot) storeIfNull(move Loc, edgeVisits int64, child *Node) bool {
	c.moveLoc.Store(int32(move))
	c.edgeVisits.Store(edgeVisits)
	return c.child.CompareAndSwap(nil, child)
}

// compareExchangeWeakEdgeVisits is used by catch-up reconciliation
// (§4.F step 10): a single-attempt CAS, contention just means the caller
// falls through to descending instead of retrying the CAS itself.
func (c *ChildSlot) compareExchangeWeakEdgeVisits(old, new int64) bool {
	return c.edgeVisits.CompareAndSwap(old, new)
}

func (c *ChildSlot) incrEdgeVisits() {
	c.edgeVisits.Add(1)
}
