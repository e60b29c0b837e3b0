package search

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// fixedTimeControls is a TimeControls stub returning constant recommendations,
// isolating recomputeSearchTimeLimit's own curve/shrink math from any real
// clock allocation policy.
type fixedTimeControls struct {
	tcMin, tcRec, tcMax float64
	unlimited           bool
}

func (f fixedTimeControls) Recommend(board Board, history History, lagBuffer float64) (float64, float64, float64) {
	return f.tcMin, f.tcRec, f.tcMax
}

func (f fixedTimeControls) RoundUpTimeLimitIfNeeded(lagBuffer, timeUsed, tcRec float64) float64 {
	return tcRec
}

func (f fixedTimeControls) IsEffectivelyUnlimitedTime() bool { return f.unlimited }

func newTimeControlTestSearch(t *testing.T, stones int) *Search {
	t.Helper()
	params := DefaultSearchParams(2)
	params.SetNumThreads(1)
	params.MidgameTimeFactor = 1.0
	params.ObviousMovesTimeFactor = 1.0

	s, err := NewSearch(params, fakeEvaluator{}, fakeScoreUtility{}, 7)
	require.NoError(t, err)

	board := &fakeBoard{stones: stones}
	history := newFakeHistory(stones)
	require.NoError(t, s.BeginSearch(context.Background(), board, history, Black, false))

	require.True(t, s.Root.tryBeginEvaluating())
	s.Root.finishEvaluating(&nnOutputHandle{result: &EvalResult{PolicyProbs: []float64{0.5, 0.5}}})
	return s
}

// TestRecomputeSearchTimeLimitShrinksOnDominantMove is §8 Scenario 6: once
// one root move has pulled far enough ahead in edge visits that no sibling
// could catch up in the visits the remaining planned time could still buy,
// recomputeSearchTimeLimit shrinks the effective limit down to roughly the
// time already used instead of letting the clock run to tcRec.
func TestRecomputeSearchTimeLimitShrinksOnDominantMove(t *testing.T) {
	s := newTimeControlTestSearch(t, 6)
	s.SetTimeControls(fixedTimeControls{tcMin: 0, tcRec: 5, tcMax: 100})

	slots := s.Root.currentChildren(s.Root.State())
	slots[0].storeAll(0, 2000, NewNode(White, false, RandomHash128(), 2))
	slots[1].storeAll(1, 40, NewNode(White, false, RandomHash128(), 2))

	timeUsed := 4.99
	limit := s.recomputeSearchTimeLimit(timeUsed, 1.0, 2040)
	require.InDelta(t, timeUsed, limit, 1e-6)
	require.Less(t, limit, 5.0)
}

// TestRecomputeSearchTimeLimitDoesNotShrinkOnCloseRace is the negative
// counterpart: with two root moves close in edge visits, a sibling could
// still plausibly catch the leader, so the futile-visit branch must not
// fire and tcRec should be returned close to the clock's own
// recommendation.
func TestRecomputeSearchTimeLimitDoesNotShrinkOnCloseRace(t *testing.T) {
	s := newTimeControlTestSearch(t, 6)
	s.SetTimeControls(fixedTimeControls{tcMin: 0, tcRec: 5, tcMax: 100})

	slots := s.Root.currentChildren(s.Root.State())
	slots[0].storeAll(0, 1000, NewNode(White, false, RandomHash128(), 2))
	slots[1].storeAll(1, 995, NewNode(White, false, RandomHash128(), 2))

	limit := s.recomputeSearchTimeLimit(4.99, 1.0, 1995)
	require.InDelta(t, 5.0, limit, 1e-6)
}

func TestRecomputeSearchTimeLimitNilTimeControlsIsUnlimited(t *testing.T) {
	s := newTimeControlTestSearch(t, 4)
	require.True(t, math.IsInf(s.recomputeSearchTimeLimit(1.0, 1.0, 10), 1))
}

func TestComputeUpperBoundVisitsLeftDueToTimeEarlyIsUnbounded(t *testing.T) {
	s := newTimeControlTestSearch(t, 4)
	require.True(t, math.IsInf(s.computeUpperBoundVisitsLeftDueToTime(1, 5, 10), 1))
	require.True(t, math.IsInf(s.computeUpperBoundVisitsLeftDueToTime(100, 0.01, 10), 1))
}

func TestComputeUpperBoundVisitsLeftDueToTimeScalesWithRate(t *testing.T) {
	s := newTimeControlTestSearch(t, 4)
	got := s.computeUpperBoundVisitsLeftDueToTime(1000, 1.0, 2.0)
	require.InDelta(t, 1000.0, got, 1e-9)
}

func TestIsFutileRootChildExemptsLeader(t *testing.T) {
	s := newTimeControlTestSearch(t, 6)
	slots := s.Root.currentChildren(s.Root.State())
	slots[0].storeAll(0, 500, NewNode(White, false, RandomHash128(), 2))

	tctx := &ThreadCtx{upperBoundVisitsLeft: 1}
	require.False(t, s.isFutileRootChild(tctx, &slots[0], 500))
}

func TestIsFutileRootChildPrunesUnreachableTrailer(t *testing.T) {
	s := newTimeControlTestSearch(t, 6)
	slots := s.Root.currentChildren(s.Root.State())
	slots[0].storeAll(0, 500, NewNode(White, false, RandomHash128(), 2))
	slots[1].storeAll(1, 5, NewNode(White, false, RandomHash128(), 2))

	tctx := &ThreadCtx{upperBoundVisitsLeft: 1}
	require.True(t, s.isFutileRootChild(tctx, &slots[1], 500))
}

func TestIsFutileRootChildIgnoresUnboundedBudget(t *testing.T) {
	s := newTimeControlTestSearch(t, 6)
	slots := s.Root.currentChildren(s.Root.State())
	slots[0].storeAll(0, 500, NewNode(White, false, RandomHash128(), 2))
	slots[1].storeAll(1, 5, NewNode(White, false, RandomHash128(), 2))

	tctx := &ThreadCtx{} // zero value: no budget computed this search
	require.False(t, s.isFutileRootChild(tctx, &slots[1], 500))
}

func TestRunWholeSearchPonderingIgnoresTimeControls(t *testing.T) {
	params := DefaultSearchParams(2)
	params.SetNumThreads(1)
	params.MaxPlayoutsPondering = 50

	s, err := NewSearch(params, fakeEvaluator{}, fakeScoreUtility{}, 11)
	require.NoError(t, err)
	// tcRec/tcMax are absurdly small; RunWholeSearchPondering must never
	// consult TimeControls at all (hasTc requires !pondering), so this
	// clock would stop the search almost instantly if it were wired in.
	s.SetTimeControls(fixedTimeControls{tcMin: 0, tcRec: 0.0001, tcMax: 0.0001})

	values, err := s.RunWholeSearchPondering(context.Background(), &fakeBoard{stones: 6}, newFakeHistory(6), Black)
	require.NoError(t, err)
	require.GreaterOrEqual(t, values.Visits, int64(50))
}
