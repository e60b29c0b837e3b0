package search

import "math"

// ReportedSearchValues is component J: the aggregated, user-facing snapshot
// of a search-in-progress or completed search, derived entirely through the
// ScoreUtility contract (§1, §6) and the root's own published stats — never
// by re-deriving numerical helpers the engine doesn't own.
type ReportedSearchValues struct {
	Visits int64

	WinLossValue  float64 // white perspective, [-1, 1], clamped
	WinValue      float64 // clamped win probability, [0, 1]
	LossValue     float64 // clamped loss probability, [0, 1]
	NoResultValue float64 // clamped no-result probability, [0, 1]

	ScoreMean         float64 // raw white score mean, unbounded
	ScoreStdev        float64
	StaticScoreValue  float64 // ExpectedWhiteScoreValue centered at 0
	DynamicScoreValue float64 // ExpectedWhiteScoreValue centered at the search's recentScoreCenter
	ExpectedScore     float64 // DynamicScoreValue; the utility-space value callers should act on

	Lead    float64
	Utility float64

	BestMove       Loc
	BestMoveVisits int64
	PV             []Loc
}

// clampedWinLossNoResult enforces the invariant winValue+lossValue+noResultValue==1
// (§4.J, §8): winLossValue is clamped to [-1, 1] and noResultValue is then
// clamped to [0, 1-|winLossValue|] so neither derived probability below can
// go negative.
func clampedWinLossNoResult(winLossValue, noResultValue float64) (wl, nr float64) {
	switch {
	case winLossValue > 1:
		winLossValue = 1
	case winLossValue < -1:
		winLossValue = -1
	}
	maxNoResult := 1 - math.Abs(winLossValue)
	switch {
	case noResultValue < 0:
		noResultValue = 0
	case noResultValue > maxNoResult:
		noResultValue = maxNoResult
	}
	return winLossValue, noResultValue
}

// GetRootValues implements §4.J: a coherent snapshot of the root's current
// aggregate, taken under the stats spinlock so every field in the result
// corresponds to the same backup generation.
func (s *Search) GetRootValues() ReportedSearchValues {
	if s.Root == nil {
		return ReportedSearchValues{BestMove: NullLoc}
	}
	s.Root.AcquireStatsLock()
	snap := s.Root.stats.snapshot()
	s.Root.ReleaseStatsLock()

	wlv, nrv := clampedWinLossNoResult(snap.winLossValueAvg, snap.noResultValueAvg)
	winValue := (1 - nrv + wlv) / 2
	lossValue := (1 - nrv - wlv) / 2

	stdev := scoreStdev(snap)
	scale := math.Sqrt(s.safeArea)
	staticScoreValue := s.ScoreUtility.ExpectedWhiteScoreValue(snap.scoreMeanAvg, stdev, 0, scale)
	dynamicScoreValue := s.ScoreUtility.ExpectedWhiteScoreValue(snap.scoreMeanAvg, stdev, s.recentScoreCenter, scale)

	best, bestVisits := s.bestRootChild()
	return ReportedSearchValues{
		Visits:            snap.visits,
		WinLossValue:      wlv,
		WinValue:          winValue,
		LossValue:         lossValue,
		NoResultValue:     nrv,
		ScoreMean:         snap.scoreMeanAvg,
		ScoreStdev:        stdev,
		StaticScoreValue:  staticScoreValue,
		DynamicScoreValue: dynamicScoreValue,
		ExpectedScore:     dynamicScoreValue,
		Lead:              snap.leadAvg,
		Utility:           snap.utilityAvg,
		BestMove:          best,
		BestMoveVisits:    bestVisits,
		PV:                s.principalVariation(32),
	}
}

// bestRootChild picks the root child with the most edge visits, the
// standard "final move selection is by visit count, not raw utility" rule
// that keeps a search's chosen move robust to PUCT's exploration noise.
func (s *Search) bestRootChild() (Loc, int64) {
	if s.Root == nil {
		return NullLoc, 0
	}
	st := s.Root.State()
	if !st.isExpanded() {
		return NullLoc, 0
	}
	slots := s.Root.currentChildren(st)
	n, _ := numAllocated(slots)
	best := NullLoc
	var bestVisits int64 = -1
	for i := 0; i < n; i++ {
		loc := slots[i].MoveLoc()
		if s.prunedRootMoves != nil && s.prunedRootMoves[loc] {
			continue
		}
		if v := slots[i].EdgeVisits(); v > bestVisits {
			bestVisits = v
			best = loc
		}
	}
	if bestVisits < 0 {
		bestVisits = 0
	}
	return best, bestVisits
}

// principalVariation walks the most-visited child at each step, up to
// maxLen plies or until a leaf/unexpanded node is reached.
func (s *Search) principalVariation(maxLen int) []Loc {
	pv := make([]Loc, 0, maxLen)
	node := s.Root
	for len(pv) < maxLen && node != nil {
		st := node.State()
		if !st.isExpanded() {
			break
		}
		slots := node.currentChildren(st)
		n, _ := numAllocated(slots)
		if n == 0 {
			break
		}
		bestIdx := -1
		var bestVisits int64 = -1
		for i := 0; i < n; i++ {
			if v := slots[i].EdgeVisits(); v > bestVisits {
				bestVisits = v
				bestIdx = i
			}
		}
		if bestIdx < 0 {
			break
		}
		pv = append(pv, slots[bestIdx].MoveLoc())
		node = slots[bestIdx].Child()
	}
	return pv
}

// scoreVarianceIsFinite guards reporting against a NaN making its way into
// a shown score, which can otherwise happen transiently on a brand-new,
// never-evaluated root.
func scoreVarianceIsFinite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
