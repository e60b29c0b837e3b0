package search

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func fillSlots(n int) []ChildSlot {
	slots := make([]ChildSlot, n)
	for i := range slots {
		slots[i].storeAll(Loc(i), int64(i), NewNode(White, false, Hash128{}, 4))
	}
	return slots
}

func TestNodeStartsUnevaluated(t *testing.T) {
	n := NewNode(Black, false, Hash128{}, 4)
	require.Equal(t, stateUnevaluated, n.State())
	require.False(t, n.State().isExpanded())
}

func TestNodeEvaluationHandoff(t *testing.T) {
	n := NewNode(Black, false, Hash128{}, 4)

	require.True(t, n.tryBeginEvaluating())
	require.Equal(t, stateEvaluating, n.State())
	// A second caller must not also win the race to evaluate.
	require.False(t, n.tryBeginEvaluating())

	out := &nnOutputHandle{}
	n.finishEvaluating(out)
	require.Equal(t, stateExpanded0, n.State())
	require.Same(t, out, n.NNOutput())
	require.True(t, n.State().isExpanded())
}

func TestNumAllocatedStopsAtFirstNil(t *testing.T) {
	slots := make([]ChildSlot, 4)
	slots[0].storeAll(0, 0, NewNode(White, false, Hash128{}, 4))
	slots[1].storeAll(1, 0, NewNode(White, false, Hash128{}, 4))

	count, full := numAllocated(slots)
	require.Equal(t, 2, count)
	require.False(t, full)
}

func TestNumAllocatedReportsFull(t *testing.T) {
	slots := fillSlots(Children0Size)
	count, full := numAllocated(slots)
	require.Equal(t, Children0Size, count)
	require.True(t, full)
}

// TestGrowChildrenLadder exercises the full EXPANDED0 -> EXPANDED1 ->
// EXPANDED2 climb, checking that previously published slots survive each
// grow and that capacity strictly increases at each rung.
func TestGrowChildrenLadder(t *testing.T) {
	n := NewNode(Black, false, Hash128{}, 4)
	out := &nnOutputHandle{}
	require.True(t, n.tryBeginEvaluating())
	n.finishEvaluating(out)

	full := fillSlots(Children0Size)
	copy(n.children0[:], full)

	require.NoError(t, n.EnsureCapacity(Children0Size))
	require.Equal(t, stateExpanded1, n.State())

	slots := n.currentChildren(n.State())
	require.Len(t, slots, Children1Size)
	for i := 0; i < Children0Size; i++ {
		require.Same(t, full[i].Child(), slots[i].Child())
		require.Equal(t, full[i].MoveLoc(), slots[i].MoveLoc())
		require.Equal(t, full[i].EdgeVisits(), slots[i].EdgeVisits())
	}

	for i := Children0Size; i < Children1Size; i++ {
		slots[i].storeAll(Loc(i), 0, NewNode(White, false, Hash128{}, 4))
	}

	require.NoError(t, n.EnsureCapacity(Children1Size))
	require.Equal(t, stateExpanded2, n.State())

	slots2 := n.currentChildren(n.State())
	require.True(t, len(slots2) >= Children1Size)
	require.Same(t, full[0].Child(), slots2[0].Child())
}

func TestEnsureCapacityNoopWhenRoom(t *testing.T) {
	n := NewNode(Black, false, Hash128{}, 4)
	require.True(t, n.tryBeginEvaluating())
	n.finishEvaluating(&nnOutputHandle{})

	n.children0[0].storeAll(0, 0, NewNode(White, false, Hash128{}, 4))
	require.NoError(t, n.EnsureCapacity(1))
	require.Equal(t, stateExpanded0, n.State())
}

func TestStatsLockExcludesConcurrentAcquire(t *testing.T) {
	n := NewNode(Black, false, Hash128{}, 4)
	n.AcquireStatsLock()

	acquired := make(chan struct{})
	go func() {
		n.AcquireStatsLock()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second goroutine acquired the stats lock while it was held")
	default:
	}

	n.ReleaseStatsLock()
	<-acquired
	n.ReleaseStatsLock()
}

func TestVirtualLossAddAndRead(t *testing.T) {
	n := NewNode(Black, false, Hash128{}, 4)
	require.EqualValues(t, 1, n.AddVirtualLoss(1))
	require.EqualValues(t, 3, n.AddVirtualLoss(2))
	require.EqualValues(t, 3, n.VirtualLosses())
}

func TestNodeAgeRoundTrip(t *testing.T) {
	n := NewNode(Black, false, Hash128{}, 4)
	n.SetNodeAge(42)
	require.EqualValues(t, 42, n.NodeAge())
}
