package search

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValueBiasEntryContributeAccumulates(t *testing.T) {
	e := &valueBiasEntry{}

	deltaSum, weightSum := e.contribute(1.0, 2.0)
	require.Equal(t, 1.0, deltaSum)
	require.Equal(t, 2.0, weightSum)

	deltaSum, weightSum = e.contribute(0.5, 1.0)
	require.Equal(t, 1.5, deltaSum)
	require.Equal(t, 3.0, weightSum)

	gotDelta, gotWeight := e.snapshot()
	require.Equal(t, deltaSum, gotDelta)
	require.Equal(t, weightSum, gotWeight)
}

func TestSubtreeValueBiasTableEntryForIsStableAndShared(t *testing.T) {
	table := NewSubtreeValueBiasTable()
	key := biasKey{prevPla: Black, prevLoc: 3, newLoc: 5, recentBoardHash: RandomHash128()}

	first := table.entryFor(key)
	second := table.entryFor(key)
	require.Same(t, first, second)

	other := table.entryFor(biasKey{prevPla: White, prevLoc: 3, newLoc: 5, recentBoardHash: key.recentBoardHash})
	require.NotSame(t, first, other)
}

func TestBiasedUtilityFallsBackToDirectWhenUnset(t *testing.T) {
	require.Equal(t, 1.5, biasedUtility(1.5, nil, 0.5))

	e := &valueBiasEntry{}
	require.Equal(t, 1.5, biasedUtility(1.5, e, 0.5)) // weightSum still zero
}

func TestBiasedUtilityAppliesCorrection(t *testing.T) {
	e := &valueBiasEntry{}
	e.contribute(2.0, 4.0) // deltaSum/weightSum == 0.5

	got := biasedUtility(1.0, e, 0.5)
	require.InDelta(t, 1.25, got, 1e-9)
}

func TestNodeContributeBiasTracksMarginalDelta(t *testing.T) {
	table := NewSubtreeValueBiasTable()
	key := biasKey{prevPla: Black, prevLoc: 1, newLoc: 2, recentBoardHash: RandomHash128()}
	entry := table.entryFor(key)

	n := NewNode(White, false, Hash128{}, 4)
	n.biasEntry = entry

	// First contribution: full amount goes in.
	nodeContributeBias(n, 1.0, 0.5, 4.0, 1.0)
	deltaSum, weightSum := entry.snapshot()
	require.InDelta(t, 0.5*4.0, deltaSum, 1e-9)
	require.InDelta(t, 4.0, weightSum, 1e-9)

	// Second contribution at higher weight: only the marginal delta over the
	// node's own last contribution is added, not the full new value again.
	nodeContributeBias(n, 1.0, 0.5, 6.0, 1.0)
	deltaSum, weightSum = entry.snapshot()
	require.InDelta(t, 0.5*6.0, deltaSum, 1e-9)
	require.InDelta(t, 6.0, weightSum, 1e-9)
}

func TestNodeContributeBiasNoopWithoutEntry(t *testing.T) {
	n := NewNode(White, false, Hash128{}, 4)
	require.NotPanics(t, func() {
		nodeContributeBias(n, 1.0, 0.5, 4.0, 1.0)
	})
}

func TestReleaseBiasContributionSubtractsLastContribution(t *testing.T) {
	table := NewSubtreeValueBiasTable()
	key := biasKey{prevPla: White, prevLoc: 1, newLoc: 2, recentBoardHash: RandomHash128()}
	entry := table.entryFor(key)

	n := NewNode(Black, false, Hash128{}, 4)
	n.biasEntry = entry

	nodeContributeBias(n, 1.0, 0.5, 4.0, 1.0)
	releaseBiasContribution(n, 1.0)

	deltaSum, weightSum := entry.snapshot()
	require.InDelta(t, 0.0, deltaSum, 1e-9)
	require.InDelta(t, 0.0, weightSum, 1e-9)
	require.Equal(t, 0.0, n.lastBiasDelta.Load())
	require.Equal(t, 0.0, n.lastBiasWeight.Load())
}

func TestReleaseBiasContributionScalesByFreeProp(t *testing.T) {
	table := NewSubtreeValueBiasTable()
	key := biasKey{prevPla: White, prevLoc: 1, newLoc: 2, recentBoardHash: RandomHash128()}
	entry := table.entryFor(key)

	n := NewNode(Black, false, Hash128{}, 4)
	n.biasEntry = entry

	nodeContributeBias(n, 1.0, 0.5, 4.0, 1.0) // delta 2.0, weight 4.0
	releaseBiasContribution(n, 0.25)

	deltaSum, weightSum := entry.snapshot()
	require.InDelta(t, 2.0-0.5, deltaSum, 1e-9)
	require.InDelta(t, 4.0-1.0, weightSum, 1e-9)
}

func TestReleaseBiasContributionNoopWithoutEntry(t *testing.T) {
	n := NewNode(Black, false, Hash128{}, 4)
	require.NotPanics(t, func() {
		releaseBiasContribution(n, 1.0)
	})
}
