package search

import "math"

// selectOutcome is the result of one selection pass over a node's current
// children plus the best not-yet-expanded policy move (§4.F "Selection").
type selectOutcome struct {
	noLegalMoves bool

	isNewChild bool
	moveLoc    Loc

	existingIdx int // valid when !isNewChild
	numFound    int // number of currently allocated (non-nil) slots
}

// policyOf returns the prior probability the node's (possibly noised) NN
// output assigns to loc, or -1 if loc is out of range / marked illegal.
func policyOf(out *nnOutputHandle, loc Loc) float64 {
	if out == nil || out.result == nil {
		return -1
	}
	probs := out.result.PolicyProbs
	if out.result.NoisedPolicyProbs != nil {
		probs = out.result.NoisedPolicyProbs
	}
	if int(loc) < 0 || int(loc) >= len(probs) {
		return -1
	}
	return probs[loc]
}

func cpuctOf(p *SearchParams, parentWeight float64) float64 {
	base2 := p.CpuctBase2
	if base2 <= 0 {
		base2 = 1
	}
	return p.CpuctBase + p.CpuctLog*math.Log((parentWeight+base2)/base2)
}

func stdevFactorOf(p *SearchParams, childUtilitySq, childUtilityAvg, priorSigma float64) float64 {
	if p.CpuctVarianceScale == 0 {
		return 1
	}
	variance := childUtilitySq - childUtilityAvg*childUtilityAvg
	if variance < 0 {
		variance = 0
	}
	sigma := math.Sqrt(variance)
	if priorSigma <= 0 {
		priorSigma = 1
	}
	return 1 + p.CpuctVarianceScale*(sigma/priorSigma-1)
}

// selectionValueForChild implements the PUCT+FPU+virtual-loss formula of
// §4.F for an already-expanded child.
func (s *Search) selectionValueForChild(node *Node, slot *ChildSlot, parentWeight float64, priorSigma float64) float64 {
	child := slot.Child()
	childSnap := child.stats.snapshot()
	cv := childSnap.visits
	ev := slot.EdgeVisits()

	ratio := 1.0
	if cv > 0 {
		ratio = float64(ev) / float64(cv)
		if ratio > 1 {
			ratio = 1
		}
	}
	w := childSnap.weightSum * ratio
	utility := biasedUtility(s.computeChildUtility(childSnap), child.biasEntry, s.Params.SubtreeValueBiasFactor)

	vl := child.VirtualLosses()
	if vl > 0 {
		perThread := s.Params.VirtualLossPerThread
		extreme := float64(node.nextPla) // white-perspective value of the mover's worst case
		penaltyWeight := float64(vl) * perThread
		totalWeight := w + penaltyWeight
		if totalWeight > 0 {
			utility = (utility*w + extreme*penaltyWeight) / totalWeight
		} else {
			utility = extreme
		}
		w = totalWeight
	}

	prior := policyOf(node.NNOutput(), slot.MoveLoc())
	if prior < 0 {
		prior = 0
	}

	cpuct := cpuctOf(s.Params, parentWeight)
	stdevFactor := stdevFactorOf(s.Params, childSnap.utilitySqAvg, childSnap.utilityAvg, priorSigma)

	exploration := cpuct * stdevFactor * prior * math.Sqrt(parentWeight+1e-9) / (1 + w)
	// utility is always white-perspective; the mover (node.nextPla) wants to
	// maximize its own perspective, which is -nextPla*utility since
	// Black==+1 and White==-1 in this package's Player encoding.
	return exploration - float64(node.nextPla)*utility
}

// fpuValueFor implements the first-play-urgency estimate for a
// not-yet-expanded sibling (§4.F, GLOSSARY "FPU").
func (s *Search) fpuValueFor(node *Node, parentUtility float64, visitedPolicyMass float64) float64 {
	reduction := s.Params.FpuReductionMax * math.Sqrt(math.Max(0, visitedPolicyMass))
	// reduction is a non-negative amount the FPU estimate is worse than the
	// parent from the mover's own perspective; converting that back to the
	// white-perspective units parentUtility is stored in flips sign the
	// same way selectionValueForChild's utility term does.
	fpu := parentUtility + float64(node.nextPla)*reduction

	if s.Params.FpuLossProp > 0 {
		extreme := float64(node.nextPla)
		fpu = fpu*(1-s.Params.FpuLossProp) + extreme*s.Params.FpuLossProp
	}
	return fpu
}

// selectionValueForFPU scores the best not-yet-expanded move the same way
// as an existing child, but using the FPU utility estimate instead of a
// backed-up average and prior==the move's raw policy probability with
// zero own weight (so the exploration term reduces to prior*sqrt(W)/1).
func (s *Search) selectionValueForFPU(node *Node, prior float64, parentWeight float64, fpu float64) float64 {
	cpuct := cpuctOf(s.Params, parentWeight)
	exploration := cpuct * 1.0 * prior * math.Sqrt(parentWeight+1e-9) / 1
	return exploration - float64(node.nextPla)*fpu
}

// selectBestChild is component F's "Select best child" step. It scans the
// node's current allocated slots plus the single best not-yet-expanded
// policy move, and returns which one wins. Root-only adjustments (noise,
// hint clamp, mirror forcing, avoid-until gating, symmetry pruning) are
// layered on by applyRootAdjustment, called from here when isRoot.
func (s *Search) selectBestChild(tctx *ThreadCtx, node *Node, isRoot bool) selectOutcome {
	st := node.State()
	slots := node.currentChildren(st)
	numFound, _ := numAllocated(slots)

	parentSnap := node.stats.snapshot()
	parentWeight := parentSnap.weightSum
	priorSigma := math.Sqrt(math.Max(0, parentSnap.utilitySqAvg-parentSnap.utilityAvg*parentSnap.utilityAvg))

	bestVal := math.Inf(-1)
	bestIsNew := false
	bestIdx := -1
	var bestMove Loc = NullLoc

	var maxEdgeVisits int64
	if isRoot && s.Params.FutileVisitsThreshold > 0 {
		for i := 0; i < numFound; i++ {
			if v := slots[i].EdgeVisits(); v > maxEdgeVisits {
				maxEdgeVisits = v
			}
		}
	}

	visitedPolicyMass := 0.0
	used := make(map[Loc]bool, numFound)
	for i := 0; i < numFound; i++ {
		loc := slots[i].MoveLoc()
		used[loc] = true
		visitedPolicyMass += math.Max(0, policyOf(node.NNOutput(), loc))

		if isRoot && s.isFutileRootChild(tctx, &slots[i], maxEdgeVisits) {
			continue
		}

		val := s.selectionValueForChild(node, &slots[i], parentWeight, priorSigma)
		if isRoot {
			val = s.applyRootAdjustment(tctx, node, loc, val, false)
		}
		if val > bestVal {
			bestVal = val
			bestIsNew = false
			bestIdx = i
			bestMove = loc
		}
	}

	// Best not-yet-expanded move, by raw policy prior.
	out := node.NNOutput()
	newLoc, newPrior := bestUnusedPolicyMove(out, used)
	if newLoc != NullLoc {
		fpu := s.fpuValueFor(node, parentSnap.utilityAvg, visitedPolicyMass)
		val := s.selectionValueForFPU(node, newPrior, parentWeight, fpu)
		if isRoot {
			val = s.applyRootAdjustment(tctx, node, newLoc, val, true)
		}
		if val > bestVal {
			bestVal = val
			bestIsNew = true
			bestMove = newLoc
		}
	}

	if bestMove == NullLoc {
		return selectOutcome{noLegalMoves: true, numFound: numFound}
	}
	return selectOutcome{isNewChild: bestIsNew, moveLoc: bestMove, existingIdx: bestIdx, numFound: numFound}
}

// isFutileRootChild is the per-descent counterpart of §4.G's futile-visit
// shrink: a root child that could not reach FutileVisitsThreshold times the
// current leader's edge visits even with every visit this thread's time
// budget has left (tctx.upperBoundVisitsLeft, populated by runWholeSearch)
// is never worth selecting again this playout, so it is skipped rather than
// scored. A child with at least the leader's edge visits (the leader
// itself) is always exempt.
func (s *Search) isFutileRootChild(tctx *ThreadCtx, slot *ChildSlot, maxEdgeVisits int64) bool {
	// upperBoundVisitsLeft<=0 covers both "genuinely unlimited" (the field's
	// zero value, e.g. a caller driving RunSinglePlayout directly without a
	// supervisor) and "no time-derived bound was computed this search";
	// only a positive, finite bound from runWholeSearch's clock enables the
	// prune.
	if maxEdgeVisits <= 0 || tctx.upperBoundVisitsLeft <= 0 || math.IsInf(tctx.upperBoundVisitsLeft, 1) {
		return false
	}
	ev := slot.EdgeVisits()
	if ev >= maxEdgeVisits {
		return false
	}
	required := s.numVisitsNeededToBeNonFutile(float64(maxEdgeVisits))
	return float64(ev)+tctx.upperBoundVisitsLeft < required
}

func bestUnusedPolicyMove(out *nnOutputHandle, used map[Loc]bool) (Loc, float64) {
	if out == nil || out.result == nil {
		return NullLoc, 0
	}
	probs := out.result.PolicyProbs
	if out.result.NoisedPolicyProbs != nil {
		probs = out.result.NoisedPolicyProbs
	}
	best := NullLoc
	bestP := -1.0
	for loc, p := range probs {
		if p < 0 || used[Loc(loc)] {
			continue
		}
		if p > bestP {
			bestP = p
			best = Loc(loc)
		}
	}
	return best, math.Max(0, bestP)
}
