package search

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAtomicFloat64LoadStore(t *testing.T) {
	var f atomicFloat64
	require.Equal(t, 0.0, f.Load())
	f.Store(3.25)
	require.Equal(t, 3.25, f.Load())
}

func TestAtomicFloat64AddConcurrent(t *testing.T) {
	var f atomicFloat64
	const goroutines = 50
	const perGoroutine = 200

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				f.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, float64(goroutines*perGoroutine), f.Load())
}

func TestChildSlotStoreAll(t *testing.T) {
	var slot ChildSlot
	child := NewNode(White, false, Hash128{}, 4)
	slot.storeAll(3, 7, child)

	require.Same(t, child, slot.Child())
	require.EqualValues(t, 7, slot.EdgeVisits())
	require.Equal(t, Loc(3), slot.MoveLoc())
}

func TestChildSlotStoreIfNullOnlyWinsOnce(t *testing.T) {
	var slot ChildSlot
	first := NewNode(White, false, Hash128{}, 4)
	second := NewNode(Black, false, Hash128{}, 4)

	require.True(t, slot.storeIfNull(1, 1, first))
	require.False(t, slot.storeIfNull(2, 1, second))
	require.Same(t, first, slot.Child())
}

func TestChildSlotCompareExchangeWeakEdgeVisits(t *testing.T) {
	var slot ChildSlot
	slot.storeAll(0, 5, NewNode(White, false, Hash128{}, 4))

	require.False(t, slot.compareExchangeWeakEdgeVisits(4, 10))
	require.EqualValues(t, 5, slot.EdgeVisits())

	require.True(t, slot.compareExchangeWeakEdgeVisits(5, 10))
	require.EqualValues(t, 10, slot.EdgeVisits())
}

func TestChildSlotIncrEdgeVisits(t *testing.T) {
	var slot ChildSlot
	slot.storeAll(0, 0, NewNode(White, false, Hash128{}, 4))
	slot.incrEdgeVisits()
	slot.incrEdgeVisits()
	require.EqualValues(t, 2, slot.EdgeVisits())
}

func TestNodeStatsSnapshotPublishRoundTrip(t *testing.T) {
	var stats NodeStats
	snap := statsSnapshot{
		visits:           12,
		weightSum:        9.5,
		weightSqSum:      3.2,
		winLossValueAvg:  0.4,
		noResultValueAvg: 0.0,
		scoreMeanAvg:     1.5,
		scoreMeanSqAvg:   2.5,
		leadAvg:          1.5,
		utilityAvg:       0.8,
		utilitySqAvg:     0.9,
	}
	stats.publish(snap)

	require.Equal(t, snap, stats.snapshot())
	require.Equal(t, int64(12), stats.Visits())
}
