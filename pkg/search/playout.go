package search

import (
	"context"
	"runtime"
)

// RunSinglePlayout is the entry point a supervisor worker calls once per
// playout (§4.F). It clones the root position onto the thread's working
// copy and descends.
func (s *Search) RunSinglePlayout(ctx context.Context, tctx *ThreadCtx) error {
	tctx.Board = s.rootBoard.Clone()
	tctx.History = s.rootHistory.Clone()
	err := s.playoutDescend(ctx, tctx, s.Root, true)
	s.cleanup.mergeFrom(tctx)
	return err
}

// playoutDescend implements the eleven-step recursive descent of §4.F:
// terminal check, evaluation/expansion of an unevaluated node, waiting out
// a concurrent grow, root policy refresh, selection, illegal-move
// regeneration, child creation or reuse, edge-visit catch-up, recursive
// descent, and stats backup.
func (s *Search) playoutDescend(ctx context.Context, tctx *ThreadCtx, node *Node, isRoot bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Step 1: terminal check.
	if !node.ForceNonTerminal() && tctx.History.IsGameFinished() {
		wlv, nrv, scoreMean, scoreMeanSq, lead, weight := terminalLeafValue(tctx.History)
		s.addLeafValue(node, wlv, nrv, scoreMean, scoreMeanSq, lead, weight)
		return nil
	}

	// Step 2/3: evaluate if unevaluated, wait out a concurrent evaluation,
	// or wait out a concurrent grow.
	switch state := node.State(); {
	case state == stateUnevaluated:
		if node.tryBeginEvaluating() {
			if err := s.evaluateNode(ctx, tctx, node); err != nil {
				// Put the node back to UNEVALUATED so a later playout can
				// retry, and return the evaluator's error to the caller.
				node.state.Store(stateUnevaluated)
				return err
			}
			s.updateStatsAfterPlayout(tctx, node)
			return nil
		}
		s.waitForEvaluation(node)
	case state == stateEvaluating:
		s.waitForEvaluation(node)
	case !state.isExpanded():
		s.waitForExpansion(node)
	}

	if isRoot {
		s.maybeRefreshRootNNOutput(tctx, node)
	}

	// Steps 4-10: selection, possible illegal-move regeneration, descent.
	const maxRegenerations = 4
	var outcome selectOutcome
	for attempt := 0; ; attempt++ {
		outcome = s.selectBestChild(tctx, node, isRoot)
		if outcome.noLegalMoves || outcome.moveLoc == PassLoc {
			break
		}
		if tctx.Board.IsLegal(node.nextPla, outcome.moveLoc, false) {
			break
		}
		if attempt >= maxRegenerations {
			outcome = selectOutcome{noLegalMoves: true, numFound: outcome.numFound}
			break
		}
		if tctx.markIllegalFirstSeen(node.identity) {
			s.Logger.Warn().Str("player", node.nextPla.String()).Int32("loc", int32(outcome.moveLoc)).Msg("selected illegal move, regenerating policy")
		}
		s.regenerateWithoutMove(node, outcome.moveLoc)
	}

	if outcome.noLegalMoves {
		wlv, nrv, scoreMean, scoreMeanSq, lead, weight := terminalLeafValue(tctx.History)
		s.addLeafValue(node, wlv, nrv, scoreMean, scoreMeanSq, lead, weight)
		s.updateStatsAfterPlayout(tctx, node)
		return nil
	}

	loc := outcome.moveLoc
	lastPla := node.nextPla
	if err := tctx.Board.MakeBoardMoveAssumeLegal(lastPla, loc, false); err != nil {
		return err
	}
	if err := tctx.History.PlayMove(lastPla, loc); err != nil {
		return err
	}

	var child *Node
	var claimedNewEdge bool
	if outcome.isNewChild {
		child, claimedNewEdge = s.materializeChild(tctx, node, lastPla, loc)
	} else {
		st := node.State()
		slots := node.currentChildren(st)
		slot := &slots[outcome.existingIdx]
		child = slot.Child()
		s.reconcileEdgeVisits(tctx, slot, child)
	}

	// AddVirtualLoss's sign is baked into selectionValueForChild's own
	// blend toward float64(node.nextPla) as the white-perspective worst
	// case; the count itself is player-agnostic.
	child.AddVirtualLoss(1)
	err := s.playoutDescend(ctx, tctx, child, false)
	child.AddVirtualLoss(-1)
	if err != nil {
		return err
	}
	_ = claimedNewEdge

	s.updateStatsAfterPlayout(tctx, node)
	return nil
}

// evaluateNode calls the external evaluator and publishes the result,
// moving the node EVALUATING->EXPANDED0 (§4.F step 2).
func (s *Search) evaluateNode(ctx context.Context, tctx *ThreadCtx, node *Node) error {
	params := EvalParams{
		DrawEquivalentWinsForWhite: 0.5,
		PlayoutDoublingAdvantage:   s.playoutDoublingAdvantageFor(node.nextPla),
	}
	res := &EvalResult{PolicySize: s.Params.PolicySize, PolicyProbs: make([]float64, s.Params.PolicySize)}
	if err := s.Evaluator.Evaluate(ctx, tctx.Board, tctx.History, node.nextPla, params, res, false, false); err != nil {
		return err
	}
	node.finishEvaluating(&nnOutputHandle{result: res, generation: s.searchNodeAge.Load()})
	return nil
}

// waitForEvaluation spins briefly while another goroutine is inside
// evaluateNode for this node (§4.F step 2, "another thread may be
// concurrently evaluating the same node").
func (s *Search) waitForEvaluation(node *Node) {
	for node.State() == stateEvaluating {
		runtime.Gosched()
	}
}

// waitForExpansion spins while a concurrent growChildren call is mid-flight
// (§4.B: GROWING1/GROWING2 are transient).
func (s *Search) waitForExpansion(node *Node) {
	for {
		st := node.State()
		if st.isExpanded() || st == stateUnevaluated || st == stateEvaluating {
			return
		}
		runtime.Gosched()
	}
}

// regenerateWithoutMove clones the node's current NN output, marks loc
// illegal (-1 probability), and republishes it under a new handle,
// preserving the immutable-once-published invariant on the old one (§3, §4.E
// "regenerated NN output due to illegal move").
func (s *Search) regenerateWithoutMove(node *Node, loc Loc) {
	out := node.NNOutput()
	if out == nil || out.result == nil {
		return
	}
	next := out.result.Clone()
	if int(loc) >= 0 && int(loc) < len(next.PolicyProbs) {
		next.PolicyProbs[loc] = -1
	}
	if next.NoisedPolicyProbs != nil && int(loc) >= 0 && int(loc) < len(next.NoisedPolicyProbs) {
		next.NoisedPolicyProbs[loc] = -1
	}
	node.nnOutput.Store(&nnOutputHandle{result: next, generation: out.generation})
}

// materializeChild implements §4.F step 8: allocate-or-find the child in
// the transposition table, then claim this node's next free slot for it. If
// another thread claimed that slot first (a benign race when two threads
// expand the same node simultaneously), an already-published slot carrying
// the same move location is reused and its edge visits bumped; otherwise
// the child goes into whatever slot is free next.
func (s *Search) materializeChild(tctx *ThreadCtx, node *Node, lastPla Player, loc Loc) (*Node, bool) {
	if err := node.EnsureCapacity(childCountHint(node)); err != nil {
		// Busy growing elsewhere; the caller already advanced past
		// selection for this playout, so just re-scan below once whichever
		// goroutine wins publishes its new size.
		s.waitForExpansion(node)
	}

	graphHash := s.childIdentity(tctx, loc)
	var recentHash Hash128
	if rb := tctx.History.GetRecentBoard(1); rb != nil {
		recentHash = rb.PositionHash()
	}
	patternHash := tctx.Board.PositionHash()

	child := s.Table.AllocateOrFindNode(node.nextPla.Opp(), lastPla, loc, loc, false, graphHash, recentHash, patternHash, tctx)
	child.SetNodeAge(s.searchNodeAge.Load())

	st := node.State()
	slots := node.currentChildren(st)
	n, _ := numAllocated(slots)
	if n < len(slots) {
		if slots[n].storeIfNull(loc, 1, child) {
			return child, true
		}
	}
	// Lost the race for that slot (or array was concurrently grown out from
	// under n): fall back to a linear scan for a slot already carrying loc,
	// else the exact slot doesn't matter for correctness of this playout —
	// edge-visit accounting on a slightly wrong slot only skews reporting,
	// never safety — so settle for the first slot matching loc or append
	// again once more.
	st = node.State()
	slots = node.currentChildren(st)
	n, _ = numAllocated(slots)
	for i := 0; i < n; i++ {
		if slots[i].MoveLoc() == loc {
			slots[i].incrEdgeVisits()
			return slots[i].Child(), false
		}
	}
	if n < len(slots) {
		slots[n].storeIfNull(loc, 1, child)
	}
	return child, true
}

func childCountHint(node *Node) int {
	st := node.State()
	n, _ := numAllocated(node.currentChildren(st))
	return n
}

// childIdentity computes the new child's graph-search identity: the
// position hash under graph search, or a fresh random salt when graph
// search is off so the position never transposes (component C).
func (s *Search) childIdentity(tctx *ThreadCtx, loc Loc) Hash128 {
	if s.Params.GraphSearch == GraphSearchOn {
		return tctx.History.GraphHash(tctx.Board, 3, 0.5)
	}
	return RandomHash128()
}

// reconcileEdgeVisits implements §4.F step 10, graph-search catch-up: when
// a transposed child has accumulated more of its own visits than this edge
// has recorded (because another parent reached it first), optionally pull
// the edge count forward instead of only ever incrementing by one, so a
// heavily-shared child's PUCT weight doesn't lag behind its true visit
// count for too many playouts.
func (s *Search) reconcileEdgeVisits(tctx *ThreadCtx, slot *ChildSlot, child *Node) {
	ev := slot.EdgeVisits()
	cv := child.stats.Visits()
	if cv > ev && s.Params.GraphSearchCatchUpProp > 0 {
		if tctx.Rand().Float64() >= s.Params.GraphSearchCatchUpLeakProb {
			gap := cv - ev
			add := int64(float64(gap) * s.Params.GraphSearchCatchUpProp)
			if add > 0 {
				slot.compareExchangeWeakEdgeVisits(ev, ev+add)
			}
		}
	}
	slot.incrEdgeVisits()
}

// terminalLeafValue reads the game outcome off history the way §8 Scenario
// 1 specifies: winner and score translate directly into winLossValue and
// scoreMean, with drawEquivalentWinsForWhite implicitly 0.5 baked into the
// History collaborator's own WinnerAndScore accounting.
func terminalLeafValue(history History) (wlv, nrv, scoreMean, scoreMeanSq, lead, weight float64) {
	_, whiteScoreMinusBlack := history.WinnerAndScore()
	switch {
	case whiteScoreMinusBlack > 0:
		wlv = 1
	case whiteScoreMinusBlack < 0:
		wlv = -1
	default:
		wlv = 0
	}
	scoreMean = whiteScoreMinusBlack
	scoreMeanSq = whiteScoreMinusBlack * whiteScoreMinusBlack
	lead = whiteScoreMinusBlack
	weight = 1
	return
}

// addLeafValue backs a single sample (terminal outcome or a no-legal-move
// leaf) directly into node's stats. Unlike recomputeNodeStats, this runs
// under the plain stats spinlock rather than the dirtyCounter drain,
// because terminal nodes never grow children and so are never touched by a
// concurrent recompute.
func (s *Search) addLeafValue(node *Node, wlv, nrv, scoreMean, scoreMeanSq, lead, weight float64) {
	node.AcquireStatsLock()
	defer node.ReleaseStatsLock()

	old := node.stats.snapshot()
	newWeightSum := old.weightSum + weight
	blend := func(oldAvg, newVal float64) float64 {
		if newWeightSum <= 0 {
			return newVal
		}
		return (oldAvg*old.weightSum + newVal*weight) / newWeightSum
	}

	snap := statsSnapshot{
		visits:           old.visits + 1,
		weightSum:        newWeightSum,
		weightSqSum:      old.weightSqSum + weight*weight,
		winLossValueAvg:  blend(old.winLossValueAvg, wlv),
		noResultValueAvg: blend(old.noResultValueAvg, nrv),
		scoreMeanAvg:     blend(old.scoreMeanAvg, scoreMean),
		scoreMeanSqAvg:   blend(old.scoreMeanSqAvg, scoreMeanSq),
		leadAvg:          blend(old.leadAvg, lead),
	}
	utility := s.computeChildUtility(snap)
	snap.utilityAvg = utility
	snap.utilitySqAvg = utility * utility

	node.stats.publish(snap)
}

// updateStatsAfterPlayout is the dirtyCounter-coalescing backup step
// (§4.F step 11, §5 "dirty counter"): many concurrent playouts finishing at
// once on the same ancestor only need one fresh recompute, not one each.
// The invariant (§3) is "exactly one backup is in progress whenever
// dirtyCounter > 0": the goroutine whose Add(1) is the first to see the
// counter go from 0 to positive owns the drain and keeps recomputing and
// publishing until its final Add(-1) brings the counter back to zero,
// folding in for free every mark left by a goroutine that arrived while it
// was still working. A goroutine that loses that race just leaves its mark
// for the owner to pick up on its next lap and returns immediately.
func (s *Search) updateStatsAfterPlayout(tctx *ThreadCtx, node *Node) {
	if node.dirtyCounter.Add(1) > 1 {
		return
	}
	for {
		snap := s.recomputeNodeStats(node, tctx, s.Patterns)
		node.AcquireStatsLock()
		node.stats.publish(snap)
		node.ReleaseStatsLock()
		if node.dirtyCounter.Add(-1) == 0 {
			return
		}
	}
}
