package search

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// PatternBonusSource is the external "pattern bonus table" collaborator
// (§1: construction is out of scope, consumption is not). Bonus returns a
// utility-space shift for the given (player, move, localBoard) fingerprint,
// or 0 if none is installed.
type PatternBonusSource interface {
	Bonus(hash Hash128) float64
}

// computeChildUtility folds a child's averaged stats into the single
// utility scalar the parent's aggregation and PUCT selection compare,
// through the external ScoreUtility contract (§1, §6).
func (s *Search) computeChildUtility(snap statsSnapshot) float64 {
	scoreValue := s.ScoreUtility.ExpectedWhiteScoreValue(snap.scoreMeanAvg, scoreStdev(snap), s.recentScoreCenter, math.Sqrt(s.safeArea))
	return s.ScoreUtility.Utility(snap.winLossValueAvg, scoreValue, snap.noResultValueAvg)
}

func scoreStdev(snap statsSnapshot) float64 {
	v := snap.scoreMeanSqAvg - snap.scoreMeanAvg*snap.scoreMeanAvg
	if v < 0 {
		v = 0
	}
	return math.Sqrt(v)
}

// computeWeightFromNNOutput is component F's self-evaluation weight
// (§4.F): 1 when uncertainty weighting is off, otherwise an inverse
// function of the evaluator's shortterm error estimates so a less certain
// evaluation contributes less to the parent's aggregate.
func computeWeightFromNNOutput(p *SearchParams, res *EvalResult) float64 {
	if !p.UncertaintyWeightingEnabled {
		return 1
	}
	uncertainty := p.UncertaintyWinlossFactor*res.ShorttermWinlossError +
		p.UncertaintyDScoreUtilDScore*res.ShorttermScoreError
	if uncertainty < 1e-9 {
		uncertainty = 1e-9
	}
	denom := math.Pow(uncertainty, 2) + p.UncertaintyCoeff/p.UncertaintyMaxWeight
	return p.UncertaintyCoeff / denom
}

// recomputeNodeStats rebuilds node's aggregate stats from every allocated
// child plus its own NN evaluation (§4.F). It is called by
// updateStatsAfterPlayout while that goroutine owns the dirtyCounter drain,
// so no other goroutine will publish to node concurrently; children's own
// stats, read here, may of course change concurrently (they use their own
// locks) which is fine because this function is inherently taking a
// point-in-time snapshot.
func (s *Search) recomputeNodeStats(node *Node, tctx *ThreadCtx, patterns PatternBonusSource) statsSnapshot {
	st := node.State()
	slots := node.currentChildren(st)
	n, _ := numAllocated(slots)

	buf := tctx.scratchFor(n)
	totalRawWeight := 0.0

	for i := 0; i < n; i++ {
		child := slots[i].Child()
		cv := child.stats.Visits()
		ev := slots[i].EdgeVisits()
		ratio := 1.0
		if cv > 0 {
			ratio = float64(ev) / float64(cv)
			if ratio > 1 {
				ratio = 1
			}
		}
		childSnap := child.stats.snapshot()
		utility := biasedUtility(s.computeChildUtility(childSnap), child.biasEntry, s.Params.SubtreeValueBiasFactor)

		buf[i] = childStatSlot{
			visits:        ev,
			weight:        childSnap.weightSum * ratio,
			utility:       utility,
			scoreMean:     childSnap.scoreMeanAvg,
			scoreMeanSq:   childSnap.scoreMeanSqAvg,
			lead:          childSnap.leadAvg,
			winLossValue:  childSnap.winLossValueAvg,
			noResultValue: childSnap.noResultValueAvg,
		}
		totalRawWeight += buf[i].weight
	}

	if s.Params.NoisePruneEnabled && n > 1 {
		applyNoisePruning(buf, totalRawWeight, s.Params)
	}
	if s.Params.ValueWeightEnabled && n > 1 {
		applyValueWeightDownweighting(buf, s.Params)
	}

	out := node.NNOutput()
	var selfWeight, selfUtility, selfWLV, selfNRV, selfScoreMean, selfScoreMeanSq, selfLead float64
	if out != nil {
		res := out.result
		selfWeight = computeWeightFromNNOutput(s.Params, res)
		selfWLV = res.WhiteWinProb - res.WhiteLossProb
		selfNRV = res.WhiteNoResultProb
		selfScoreMean = res.WhiteScoreMean
		selfScoreMeanSq = res.WhiteScoreMeanSq
		selfLead = res.WhiteLead
		selfUtility = s.computeChildUtility(statsSnapshot{
			winLossValueAvg:  selfWLV,
			noResultValueAvg: selfNRV,
			scoreMeanAvg:     selfScoreMean,
			scoreMeanSqAvg:   selfScoreMeanSq,
		})
		if patterns != nil {
			if bonus := patterns.Bonus(node.patternBonusHash); bonus != 0 {
				// Utility is shifted by the bonus directly; utilitySqAvg
				// follows automatically below since it's recomputed from
				// selfUtility*selfUtility*selfWeight rather than carried
				// forward from a stale second moment (§4.F: "adjusts
				// utilitySqAvg consistently").
				selfUtility += bonus
			}
		}
	}

	var snap statsSnapshot
	weightSum := selfWeight
	utilitySum := selfUtility * selfWeight
	utilitySqSum := selfUtility * selfUtility * selfWeight
	wlvSum := selfWLV * selfWeight
	nrvSum := selfNRV * selfWeight
	scoreMeanSum := selfScoreMean * selfWeight
	scoreMeanSqSum := selfScoreMeanSq * selfWeight
	leadSum := selfLead * selfWeight
	weightSqSum := selfWeight * selfWeight
	var visits int64 = 1
	var utilityOfChildren, childWeightSum float64

	for i := 0; i < n; i++ {
		c := buf[i]
		if c.weight <= 0 {
			continue
		}
		weightSum += c.weight
		childWeightSum += c.weight
		utilitySum += c.utility * c.weight
		utilitySqSum += c.utility * c.utility * c.weight
		wlvSum += c.winLossValue * c.weight
		nrvSum += c.noResultValue * c.weight
		scoreMeanSum += c.scoreMean * c.weight
		scoreMeanSqSum += c.scoreMeanSq * c.weight
		leadSum += c.lead * c.weight
		weightSqSum += c.weight * c.weight
		visits += c.visits
		utilityOfChildren += c.utility * c.weight
	}

	if weightSum <= 0 {
		weightSum = 1e-9 // avoid division by zero; asserted away at non-root leaves in production builds (§7)
	}
	if childWeightSum > 0 {
		utilityOfChildren /= childWeightSum
	}

	snap.visits = visits
	snap.weightSum = weightSum
	snap.weightSqSum = weightSqSum
	snap.winLossValueAvg = wlvSum / weightSum
	snap.noResultValueAvg = nrvSum / weightSum
	snap.scoreMeanAvg = scoreMeanSum / weightSum
	snap.scoreMeanSqAvg = scoreMeanSqSum / weightSum
	snap.leadAvg = leadSum / weightSum
	snap.utilityAvg = utilitySum / weightSum
	snap.utilitySqAvg = utilitySqSum / weightSum

	if n > 0 {
		nodeContributeBias(node, utilityOfChildren, selfUtility, weightSum, s.Params.SubtreeValueBiasWeightExp)
	}

	return snap
}

// applyNoisePruning downweights children whose own utility is worse than
// the weighted-average utility of earlier-in-policy-order siblings and
// whose weight exceeds a lenient share of the raw policy weight (§4.F,
// GLOSSARY "Noise pruning"). buf is assumed to already be in policy-prior
// order, matching how new children are appended during selection.
func applyNoisePruning(buf []childStatSlot, totalRawWeight float64, p *SearchParams) {
	runningWeight := 0.0
	runningUtilWeight := 0.0
	for i := range buf {
		if runningWeight > 0 {
			avgSoFar := runningUtilWeight / runningWeight
			share := buf[i].weight / math.Max(totalRawWeight, 1e-9)
			if buf[i].utility < avgSoFar && share > p.NoisePruneLenientPolicyShare {
				gap := avgSoFar - buf[i].utility
				factor := 1 - math.Exp(-gap/math.Max(p.NoisePruneScale, 1e-9))
				if factor > p.NoisePruneCap {
					factor = p.NoisePruneCap
				}
				buf[i].weight *= (1 - factor)
			}
		}
		runningWeight += buf[i].weight
		runningUtilWeight += buf[i].utility * buf[i].weight
	}
}

// applyValueWeightDownweighting reweights children by the Student's-t CDF
// of their utility z-score relative to the simple (unweighted-by-t) mean,
// with 3 degrees of freedom per §4.F, then renormalizes so the total
// weight is unchanged. gonum's distuv.StudentsT supplies the CDF; this is
// the one place in the package where the numerical distribution work is
// not hand-rolled, per §11's domain-stack wiring.
func applyValueWeightDownweighting(buf []childStatSlot, p *SearchParams) {
	totalWeight := 0.0
	mean := 0.0
	for _, c := range buf {
		totalWeight += c.weight
		mean += c.utility * c.weight
	}
	if totalWeight <= 0 {
		return
	}
	mean /= totalWeight

	variance := 0.0
	for _, c := range buf {
		d := c.utility - mean
		variance += d * d * c.weight
	}
	variance /= totalWeight
	sigma := math.Sqrt(variance)
	if sigma < 1e-6 {
		return
	}

	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: 3}

	before := 0.0
	factors := make([]float64, len(buf))
	for i, c := range buf {
		z := (c.utility - mean) / sigma
		cdf := dist.CDF(z)
		// Values on both tails of the fit are down-weighted symmetrically:
		// use the CDF distance from the median (0.5) as the factor base.
		f := 1 - 2*math.Abs(cdf-0.5)
		if f < 0 {
			f = 0
		}
		factors[i] = math.Pow(f, p.ValueWeightExponent)
		before += c.weight
	}

	after := 0.0
	for i := range buf {
		buf[i].weight *= factors[i]
		after += buf[i].weight
	}
	if after > 1e-12 {
		scale := before / after
		for i := range buf {
			buf[i].weight *= scale
		}
	}
}
