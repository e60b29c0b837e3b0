package search

import (
	"math/rand"
	"sync"
)

// shuffledIndices returns a Fisher-Yates permutation of [0,n), one per call,
// the same "thread-shuffled traversal order" trick used to spread the
// maintenance walkers below across a wide tree with minimal cross-thread
// contention (§4.I).
func shuffledIndices(n int, rnd *rand.Rand) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	for i := n - 1; i > 0; i-- {
		j := rnd.Intn(i + 1)
		idx[i], idx[j] = idx[j], idx[i]
	}
	return idx
}

// walkerRand builds one thread's PRNG for a maintenance walk, folding the
// walk's generation number in so repeated walks over the same search don't
// all shuffle identically (mirrors NewThreadCtx's seeding recipe).
func (s *Search) walkerRand(threadIdx int, walkAge int64) *rand.Rand {
	return rand.New(rand.NewSource(mixSeed(s.searchSeed, threadIdx, s.rootHash, int(walkAge), 0)))
}

func (s *Search) maintenanceThreadCount() int {
	n := s.Params.NumThreads
	if n < 1 {
		n = 1
	}
	return n
}

// applyRecursivelyPostOrder is component I's post-order walker (§4.I): f
// runs on a node only after it has already run on every one of that node's
// children, which RecursivelyRecomputeStats depends on since a parent's
// recompute reads its children's already-published stats. Traversal fans
// out across NumThreads goroutines, each with its own PRNG shuffling
// visitation order so concurrent workers tend to diverge into different
// branches instead of piling onto the same fringe.
//
// Node dedup and cycle-safety are both handled by a per-thread visited-set:
// a node already on the current goroutine's own recursion stack (a true
// cycle, e.g. a superko transposition looping back on itself) or already
// finished (nodeAge==walkAge) is treated as done and skipped rather than
// recursed into again. f itself still only ever runs once per node, since
// only the goroutine that wins the nodeAge claim below calls it.
func (s *Search) applyRecursivelyPostOrder(roots []*Node, f func(*Node)) {
	if len(roots) == 0 {
		return
	}
	walkAge := s.searchNodeAge.Add(1)

	var wg sync.WaitGroup
	for t, n := 0, s.maintenanceThreadCount(); t < n; t++ {
		threadIdx := t
		wg.Add(1)
		go func() {
			defer wg.Done()
			rnd := s.walkerRand(threadIdx, walkAge)
			visiting := make(map[Hash128]bool)
			for _, idx := range shuffledIndices(len(roots), rnd) {
				s.postOrderWalk(roots[idx], walkAge, rnd, visiting, f)
			}
		}()
	}
	wg.Wait()
}

func (s *Search) postOrderWalk(node *Node, walkAge int64, rnd *rand.Rand, visiting map[Hash128]bool, f func(*Node)) {
	if node == nil {
		return
	}
	if node.NodeAge() == walkAge {
		return
	}
	if visiting[node.identity] {
		return
	}
	st := node.State()
	if st.isExpanded() {
		visiting[node.identity] = true
		slots := node.currentChildren(st)
		n, _ := numAllocated(slots)
		for _, i := range shuffledIndices(n, rnd) {
			s.postOrderWalk(slots[i].Child(), walkAge, rnd, visiting, f)
		}
		delete(visiting, node.identity)
	}
	if !node.claimNodeAge(walkAge) {
		return
	}
	f(node)
}

// RecursivelyRecomputeStats is component I's post-order maintenance
// operation: it recomputes every reachable node's aggregate stats bottom-up,
// used after tree reuse (§4.H step 9) where a promoted subtree's cached
// stats reflect an earlier search-wide state (dynamic score center, subtree
// value bias weights) that may since have shifted.
func (s *Search) RecursivelyRecomputeStats(node *Node) {
	if node == nil {
		return
	}
	s.applyRecursivelyPostOrder([]*Node{node}, func(n *Node) {
		tctx := &ThreadCtx{}
		snap := s.recomputeNodeStats(n, tctx, s.Patterns)
		n.AcquireStatsLock()
		n.stats.publish(snap)
		n.ReleaseStatsLock()
	})
}

// applyRecursivelyAnyOrder is component I's other maintenance walker
// (§4.I): f is called exactly once per node reachable from roots, with no
// ordering relative to children — used where the caller only needs "every
// reachable node touched," such as marking the reachable set before a
// bulk-deletion sweep. A nil f still performs the marking walk with no
// per-node side effect, matching a "just mark everything reachable" call.
//
// Like applyRecursivelyPostOrder, traversal is split across NumThreads
// goroutines with per-thread shuffled order, and correctness (f called at
// most once per node, including across a graph-search DAG merge or a true
// cycle) comes from a single atomic claim of nodeAge per node rather than a
// visited-set: whichever goroutine's claim first swaps nodeAge to walkAge
// owns that node, so any other arrival — a shared parent, a cycle, or a
// racing thread — sees the already-current age and returns without
// recursing further.
func (s *Search) applyRecursivelyAnyOrder(roots []*Node, f func(*Node)) int64 {
	walkAge := s.searchNodeAge.Add(1)
	if len(roots) == 0 {
		return walkAge
	}

	var wg sync.WaitGroup
	for t, n := 0, s.maintenanceThreadCount(); t < n; t++ {
		threadIdx := t
		wg.Add(1)
		go func() {
			defer wg.Done()
			rnd := s.walkerRand(threadIdx, walkAge)
			for _, idx := range shuffledIndices(len(roots), rnd) {
				s.anyOrderWalk(roots[idx], walkAge, rnd, f)
			}
		}()
	}
	wg.Wait()
	return walkAge
}

func (s *Search) anyOrderWalk(node *Node, walkAge int64, rnd *rand.Rand, f func(*Node)) {
	if node == nil {
		return
	}
	if node.NodeAge() == walkAge {
		return
	}
	if !node.claimNodeAge(walkAge) {
		return
	}
	if f != nil {
		f(node)
	}
	st := node.State()
	if st.isExpanded() {
		slots := node.currentChildren(st)
		n, _ := numAllocated(slots)
		for _, i := range shuffledIndices(n, rnd) {
			s.anyOrderWalk(slots[i].Child(), walkAge, rnd, f)
		}
	}
}

// filterIllegalRootChildren marks any of the (possibly reused) root's
// existing children whose move is no longer legal on the fresh root board
// as pruned, so selection skips them via applyRootAdjustment (§4.H step 6
// neighbor: legality can change move to move even without a symmetry
// argument, e.g. superko).
func (s *Search) filterIllegalRootChildren(board Board, pla Player) {
	if s.Root == nil {
		return
	}
	st := s.Root.State()
	if !st.isExpanded() {
		return
	}
	slots := s.Root.currentChildren(st)
	n, _ := numAllocated(slots)
	for i := 0; i < n; i++ {
		loc := slots[i].MoveLoc()
		if !board.IsLegalTolerant(pla, loc) {
			if s.prunedRootMoves == nil {
				s.prunedRootMoves = make(map[Loc]bool)
			}
			s.prunedRootMoves[loc] = true
		}
	}
}

// MarkAndSweep is component I's bulk deletion pass: mark every node
// reachable from the current root via the any-order walker, then delete
// every table entry whose age didn't just get marked. The caller (MakeMove)
// is responsible for not running this concurrently with live playouts.
func (s *Search) MarkAndSweep() {
	var roots []*Node
	if s.Root != nil {
		roots = []*Node{s.Root}
	}
	currentAge := s.applyRecursivelyAnyOrder(roots, nil)
	s.Table.forEachShardIndex(func(idx int) {
		snap := s.Table.shardSnapshot(idx)
		for hash, n := range snap {
			if n.NodeAge() != currentAge {
				releaseBiasContribution(n, s.Params.SubtreeValueBiasFreeProp)
				s.Table.shardDelete(idx, hash)
			}
		}
	})
}

// sweepAll unconditionally empties the transposition table, used when a
// search is discarded outright rather than reused (§4.H step 1/9 "clear").
func (s *Search) sweepAll() {
	s.Table.forEachShardIndex(func(idx int) {
		snap := s.Table.shardSnapshot(idx)
		for hash, n := range snap {
			releaseBiasContribution(n, s.Params.SubtreeValueBiasFreeProp)
			s.Table.shardDelete(idx, hash)
		}
	})
}
