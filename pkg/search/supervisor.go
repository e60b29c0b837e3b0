package search

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// RunWholeSearch is component G's top-level entrypoint for a normal,
// clocked move search: prepares the root, fans playouts out across
// NumThreads worker goroutines via errgroup, and stops on whichever of the
// visit/playout/time-control caps fires first (§4.G).
func (s *Search) RunWholeSearch(ctx context.Context, board Board, history History, pla Player) (ReportedSearchValues, error) {
	return s.runWholeSearch(ctx, board, history, pla, false)
}

// RunWholeSearchPondering runs the same loop during the opponent's clock:
// pondering caps replace the normal move caps and the time-control clock is
// never consulted, since there is no move deadline to respect (§4.G "hasTc
// = !pondering && ...").
func (s *Search) RunWholeSearchPondering(ctx context.Context, board Board, history History, pla Player) (ReportedSearchValues, error) {
	return s.runWholeSearch(ctx, board, history, pla, true)
}

func orInf(x float64) float64 {
	if x <= 0 {
		return math.Inf(1)
	}
	return x
}

func (s *Search) runWholeSearch(ctx context.Context, board Board, history History, pla Player, pondering bool) (ReportedSearchValues, error) {
	if err := s.BeginSearch(ctx, board, history, pla, pondering); err != nil {
		return ReportedSearchValues{}, err
	}
	s.stop.Store(false)

	searchFactor := s.Params.SearchFactor * s.timeFactorAdjustment()

	maxVisits, maxPlayouts, maxTime := s.Params.MaxVisits, s.Params.MaxPlayouts, s.Params.MaxTimeSeconds
	if pondering {
		maxVisits, maxPlayouts, maxTime = s.Params.MaxVisitsPondering, s.Params.MaxPlayoutsPondering, s.Params.MaxTimeSecondsPondering
	} else if searchFactor != 1.0 {
		if maxVisits > 0 {
			maxVisits = int64(math.Ceil(float64(maxVisits) * searchFactor))
		}
		if maxPlayouts > 0 {
			maxPlayouts = int64(math.Ceil(float64(maxPlayouts) * searchFactor))
		}
		if maxTime > 0 {
			maxTime *= searchFactor
		}
	}

	hasTc := !pondering && s.TimeControls != nil && !s.TimeControls.IsEffectivelyUnlimitedTime()
	hasMaxTime := maxTime > 0
	nonPlayoutVisits := int64(0)
	if s.Root != nil {
		nonPlayoutVisits = s.Root.stats.Visits()
	}

	start := time.Now()
	var playoutsDone atomic.Int64

	var tcLimit atomicFloat64
	tcLimit.Store(orInf(maxTime))
	var upperBoundVisitsLeft atomicFloat64
	upperBoundVisitsLeft.Store(math.Inf(1))
	var lastRecomputed atomicFloat64
	lastRecomputed.Store(-1)

	// recomputeTimeState is thread 0's job, throttled to at most 10Hz
	// (§4.G); every thread reads the shared atomics it publishes here.
	recomputeTimeState := func(timeUsed float64) {
		rootVisits := playoutsDone.Load() + nonPlayoutVisits
		limit := orInf(maxTime)
		if hasTc {
			tcRec := s.recomputeSearchTimeLimit(timeUsed, searchFactor, rootVisits)
			if tcRec < limit {
				limit = tcRec
			}
			tcLimit.Store(limit)
		}
		upperBoundVisitsLeft.Store(s.computeUpperBoundVisitsLeftDueToTime(rootVisits, timeUsed, limit))
		lastRecomputed.Store(timeUsed)
	}
	if hasTc || hasMaxTime {
		recomputeTimeState(0)
	}

	g, gctx := errgroup.WithContext(ctx)
	numThreads := s.Params.NumThreads
	if numThreads < 1 {
		numThreads = 1
	}
	moveCount := history.MoveNum()

	for i := 0; i < numThreads; i++ {
		threadIdx := i
		g.Go(func() error {
			tctx := NewThreadCtx(threadIdx, nil, nil, s.searchSeed, s.rootHash, moveCount, s.searchCounter.Load())
			for {
				if gctx.Err() != nil {
					return nil
				}
				if s.stop.Load() {
					return nil
				}

				playouts := playoutsDone.Load()
				timeUsed := 0.0
				if hasTc || hasMaxTime {
					timeUsed = time.Since(start).Seconds()
				}

				if s.capsExceeded(playouts, nonPlayoutVisits, maxPlayouts, maxVisits, timeUsed, hasMaxTime, maxTime, hasTc, tcLimit.Load()) {
					s.stop.Store(true)
					return nil
				}

				if threadIdx == 0 && (hasTc || hasMaxTime) && timeUsed-lastRecomputed.Load() >= 0.1 {
					recomputeTimeState(timeUsed)
				}

				tctx.upperBoundVisitsLeft = math.Inf(1)
				if hasTc {
					tctx.upperBoundVisitsLeft = upperBoundVisitsLeft.Load()
				}
				if maxPlayouts > 0 {
					tctx.upperBoundVisitsLeft = math.Min(tctx.upperBoundVisitsLeft, float64(maxPlayouts-playouts))
				}
				if maxVisits > 0 {
					tctx.upperBoundVisitsLeft = math.Min(tctx.upperBoundVisitsLeft, float64(maxVisits-playouts-nonPlayoutVisits))
				}

				if err := s.RunSinglePlayout(gctx, tctx); err != nil {
					if gctx.Err() != nil {
						return nil
					}
					// Component G / §7 kind 4: a playout's failure (evaluator
					// error, board rejecting a move) is logged, then returned
					// so errgroup cancels the other workers and Wait hands
					// the error to the caller.
					s.Logger.Warn().Err(err).Int("thread", threadIdx).Msg("playout failed")
					return err
				}
				playoutsDone.Add(1)
				s.searchCounter.Add(1)
			}
		})
	}

	if err := g.Wait(); err != nil {
		return ReportedSearchValues{}, err
	}

	s.effectiveSearchTimeCarriedOver = time.Since(start).Seconds()
	s.cleanup.clearOldNNOutputs()
	return s.GetRootValues(), nil
}

func (s *Search) capsExceeded(playouts, nonPlayoutVisits, maxPlayouts, maxVisits int64, timeUsed float64, hasMaxTime bool, maxTime float64, hasTc bool, tcLimit float64) bool {
	if maxPlayouts > 0 && playouts >= maxPlayouts {
		return true
	}
	if maxVisits > 0 && playouts+nonPlayoutVisits >= maxVisits {
		return true
	}
	if playouts < 2 {
		// The search as a whole gets at least a couple of playouts in before
		// a time cap can end it, so a single slow evaluation right at the
		// start can't starve the root of any real search.
		return false
	}
	if hasMaxTime && timeUsed >= maxTime {
		return true
	}
	if hasTc && timeUsed >= tcLimit {
		return true
	}
	return false
}

// timeFactorAdjustment discounts the time budget once a pass would end the
// game or the current scoring phase, since further search matters much less
// once the opponent is expected to end things (§4.G).
func (s *Search) timeFactorAdjustment() float64 {
	if s.rootHistory == nil || s.rootBoard == nil {
		return 1
	}
	if s.rootHistory.PassWouldEndGame(s.rootBoard, s.rootPla) {
		return s.Params.AfterTwoPassFactor
	}
	if s.rootHistory.PassWouldEndPhase(s.rootBoard, s.rootPla) {
		return s.Params.AfterOnePassFactor
	}
	return 1
}

// recomputeSearchTimeLimit is §4.G/§6's central time-management recipe:
// start from the clock's own recommendation, scale by the midgame-peak
// curve and the obvious-move shrink, discount by thinking already carried
// over from a prior move, clamp to tcMax, then check whether the leading
// root move is already unassailable in the time remaining and if so shrink
// straight down to roughly timeUsed.
func (s *Search) recomputeSearchTimeLimit(timeUsed, searchFactor float64, rootVisits int64) float64 {
	if s.TimeControls == nil {
		return math.Inf(1)
	}
	tcMin, tcRec, tcMax := s.TimeControls.Recommend(s.rootBoard, s.rootHistory, s.Params.LagBuffer)
	tcRec *= s.Params.Overallocate

	if s.Params.MidgameTimeFactor != 1.0 {
		tcRec *= s.midgameCurveFactor()
	}
	if s.Params.ObviousMovesTimeFactor != 1.0 {
		tcRec *= s.obviousMoveFactor()
	}

	if tcRec > 1e-9 && s.effectiveSearchTimeCarriedOver > 0 {
		// A soft-plus shrink: as much of tcRec as has already been thought
		// about (via tree reuse) counts toward it, but never drives tcRec
		// negative; it tends toward zero as carried-over time exceeds tcRec,
		// and only the later tcMin clamp puts a floor under it.
		remainingFrac := 1 - s.effectiveSearchTimeCarriedOver/tcRec
		shrink := math.Log(1+math.Exp(remainingFrac*6)) / 6
		if shrink > 1 {
			shrink = 1
		}
		tcRec *= shrink
	}

	tcRec = s.TimeControls.RoundUpTimeLimitIfNeeded(s.Params.LagBuffer, timeUsed, tcRec)
	if tcRec > tcMax {
		tcRec = tcMax
	}

	if s.Params.FutileVisitsThreshold > 0 {
		upperBound := s.computeUpperBoundVisitsLeftDueToTime(rootVisits, timeUsed, tcRec)
		if s.leadingRootMoveIsUnassailable(upperBound) {
			tcRec = timeUsed * (1 - 1e-9)
		}
	}

	tcRec = s.TimeControls.RoundUpTimeLimitIfNeeded(s.Params.LagBuffer, timeUsed, tcRec)
	if tcRec > tcMax {
		tcRec = tcMax
	}
	if tcRec < tcMin {
		tcRec = tcMin
	}

	tcRec *= searchFactor
	if tcRec > tcMax {
		tcRec = tcMax
	}
	return tcRec
}

// midgameCurveFactor scales the board-area-normalized turn number against
// MidgameTurnPeakTime: linear rise to the peak, exponential decay with time
// constant EndgameTurnTimeDecay after it, both area-scaled by safeArea/361
// (the 19x19-Go-board convention the teacher's constants were tuned for).
func (s *Search) midgameCurveFactor() float64 {
	areaScale := s.safeArea / 361.0
	if areaScale <= 0 {
		areaScale = 1
	}
	peak := s.Params.MidgameTurnPeakTime * areaScale
	turnNumber := 0.0
	if s.rootHistory != nil {
		turnNumber = float64(s.rootHistory.MoveNum())
	}

	var weight float64
	if peak > 0 && turnNumber < peak {
		weight = turnNumber / peak
	} else {
		decay := s.Params.EndgameTurnTimeDecay * areaScale
		if decay <= 0 {
			decay = 1
		}
		weight = math.Exp(-(turnNumber - peak) / decay)
	}
	if weight < 0 {
		weight = 0
	} else if weight > 1 {
		weight = 1
	}
	return 1 + weight*(s.Params.MidgameTimeFactor-1)
}

// obviousMoveFactor interpolates toward ObviousMovesTimeFactor based on how
// confidently the root's raw policy already agrees with the root's own
// visit distribution: low entropy (one clearly best move) and low surprise
// (search visits track the raw prior closely) both indicate an obvious
// move, and the less confident of the two signals sets the obviousness
// (§4.G).
func (s *Search) obviousMoveFactor() float64 {
	entropy, surprise, ok := s.rootPolicyEntropyAndSurprise()
	if !ok {
		return 1
	}
	obviousByEntropy := math.Exp(-entropy / math.Max(s.Params.ObviousMovesPolicyEntropyTolerance, 1e-9))
	obviousBySurprise := math.Exp(-surprise / math.Max(s.Params.ObviousMovesPolicySurpriseTolerance, 1e-9))
	obviousness := math.Min(obviousByEntropy, obviousBySurprise)
	if obviousness < 0 {
		obviousness = 0
	} else if obviousness > 1 {
		obviousness = 1
	}
	return 1 + obviousness*(s.Params.ObviousMovesTimeFactor-1)
}

// rootPolicyEntropyAndSurprise reads the root's raw policy and current
// child edge-visit distribution: entropy is the raw policy's own Shannon
// entropy, surprise is the KL divergence of the visit distribution from
// that policy (how far the search has moved probability mass away from the
// prior). ok is false when the root has no evaluation yet.
func (s *Search) rootPolicyEntropyAndSurprise() (entropy, surprise float64, ok bool) {
	if s.Root == nil {
		return 0, 0, false
	}
	out := s.Root.NNOutput()
	if out == nil || out.result == nil {
		return 0, 0, false
	}
	probs := out.result.PolicyProbs

	for _, p := range probs {
		if p > 0 {
			entropy -= p * math.Log(p)
		}
	}

	st := s.Root.State()
	if !st.isExpanded() {
		return entropy, 0, true
	}
	slots := s.Root.currentChildren(st)
	n, _ := numAllocated(slots)

	totalVisits := 0.0
	for i := 0; i < n; i++ {
		totalVisits += float64(slots[i].EdgeVisits())
	}
	if totalVisits <= 0 {
		return entropy, 0, true
	}
	for i := 0; i < n; i++ {
		loc := slots[i].MoveLoc()
		visitFrac := float64(slots[i].EdgeVisits()) / totalVisits
		if visitFrac <= 0 {
			continue
		}
		prior := 1e-9
		if int(loc) >= 0 && int(loc) < len(probs) && probs[loc] > 0 {
			prior = probs[loc]
		}
		surprise += visitFrac * math.Log(visitFrac/prior)
	}
	return entropy, surprise, true
}

// numVisitsNeededToBeNonFutile is the visit count a trailing root child
// needs to reach to stay non-futile: FutileVisitsThreshold times
// maxEdgeVisits, not parity with the leader (§4.G).
func (s *Search) numVisitsNeededToBeNonFutile(maxEdgeVisits float64) float64 {
	return s.Params.FutileVisitsThreshold * maxEdgeVisits
}

// leadingRootMoveIsUnassailable reports whether, given upperBoundVisitsLeft
// more visits total could still land anywhere in the tree before the clock
// runs out, every trailing root child is mathematically unable to catch the
// current leader by edge visits (§4.G's futile-visit shrink).
func (s *Search) leadingRootMoveIsUnassailable(upperBoundVisitsLeft float64) bool {
	if s.Root == nil || math.IsInf(upperBoundVisitsLeft, 1) {
		return false
	}
	st := s.Root.State()
	if !st.isExpanded() {
		return false
	}
	slots := s.Root.currentChildren(st)
	n, _ := numAllocated(slots)
	if n < 2 {
		return false
	}

	var maxVisits int64 = -1
	leaderIdx := -1
	for i := 0; i < n; i++ {
		if v := slots[i].EdgeVisits(); v > maxVisits {
			maxVisits = v
			leaderIdx = i
		}
	}
	if maxVisits <= 0 {
		return false
	}
	required := s.numVisitsNeededToBeNonFutile(float64(maxVisits))
	for i := 0; i < n; i++ {
		if i == leaderIdx {
			continue
		}
		if float64(slots[i].EdgeVisits())+upperBoundVisitsLeft >= required {
			return false
		}
	}
	return true
}

// computeUpperBoundVisitsLeftDueToTime estimates how many more visits could
// land anywhere in the tree before plannedTimeLimit is reached, from the
// visit rate observed so far this move plus carried-over thinking (§4.G).
// Effectively infinite until the root has accumulated enough visits and
// wall-clock time for the rate estimate to be meaningful.
func (s *Search) computeUpperBoundVisitsLeftDueToTime(rootVisits int64, timeUsed, plannedTimeLimit float64) float64 {
	if rootVisits <= 1 {
		return math.Inf(1)
	}
	timeThoughtSoFar := s.effectiveSearchTimeCarriedOver + timeUsed
	if timeThoughtSoFar < 0.1 {
		return math.Inf(1)
	}
	timeLeft := plannedTimeLimit - timeUsed
	if timeLeft < 0 {
		timeLeft = 0
	}
	numThreads := s.Params.NumThreads
	if numThreads < 1 {
		numThreads = 1
	}
	return math.Ceil((timeLeft/timeThoughtSoFar)*float64(rootVisits) + float64(numThreads-1))
}

// Stop requests every worker goroutine of an in-flight RunWholeSearch exit
// at its next check, without waiting for a cap to fire naturally.
func (s *Search) Stop() { s.stop.Store(true) }
