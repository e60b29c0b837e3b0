package search

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClampedWinLossNoResultSumsToOne(t *testing.T) {
	cases := []struct {
		wlv, nrv float64
	}{
		{0, 0},
		{0.5, 0.2},
		{-0.5, 0.2},
		{1, 0},
		{-1, 0},
		{2, 0.5},  // out-of-range winLossValue, must clamp to 1
		{-2, 0.5}, // out-of-range winLossValue, must clamp to -1
		{0.3, 5},  // out-of-range noResultValue, must clamp down
		{0.9, 0.9},
	}
	for _, c := range cases {
		wl, nr := clampedWinLossNoResult(c.wlv, c.nrv)
		winValue := (1 - nr + wl) / 2
		lossValue := (1 - nr - wl) / 2

		require.GreaterOrEqual(t, winValue, 0.0)
		require.GreaterOrEqual(t, lossValue, 0.0)
		require.GreaterOrEqual(t, nr, 0.0)
		require.InDelta(t, 1.0, winValue+lossValue+nr, 1e-10)
	}
}

func TestGetRootValuesWinLossNoResultSumToOne(t *testing.T) {
	s := newTestSearch(t, 1)
	board := &fakeBoard{stones: 5}
	history := newFakeHistory(5)

	values, err := s.RunWholeSearch(context.Background(), board, history, Black)
	require.NoError(t, err)
	require.InDelta(t, 1.0, values.WinValue+values.LossValue+values.NoResultValue, 1e-10)
}

func TestGetRootValuesRoutesScoreThroughScoreUtility(t *testing.T) {
	s := newTestSearch(t, 1)
	board := &fakeBoard{stones: 5}
	history := newFakeHistory(5)

	values, err := s.RunWholeSearch(context.Background(), board, history, Black)
	require.NoError(t, err)

	expectedDynamic := s.ScoreUtility.ExpectedWhiteScoreValue(values.ScoreMean, values.ScoreStdev, s.recentScoreCenter, math.Sqrt(s.safeArea))
	require.InDelta(t, expectedDynamic, values.DynamicScoreValue, 1e-9)
	require.InDelta(t, expectedDynamic, values.ExpectedScore, 1e-9)

	expectedStatic := s.ScoreUtility.ExpectedWhiteScoreValue(values.ScoreMean, values.ScoreStdev, 0, math.Sqrt(s.safeArea))
	require.InDelta(t, expectedStatic, values.StaticScoreValue, 1e-9)
}
