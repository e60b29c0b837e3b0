package search

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestTable(t *testing.T, graph GraphSearch) *TranspositionTable {
	t.Helper()
	mutexes := NewNodeMutexPool(16, newSplitmixRandSource(1))
	bias := NewSubtreeValueBiasTable()
	table, err := NewTranspositionTable(4, bias, mutexes, graph)
	require.NoError(t, err)
	return table
}

func TestNewTranspositionTableRejectsNonPositivePolicySize(t *testing.T) {
	mutexes := NewNodeMutexPool(16, newSplitmixRandSource(1))
	bias := NewSubtreeValueBiasTable()

	_, err := NewTranspositionTable(0, bias, mutexes, GraphSearchOn)
	require.Error(t, err)
}

func TestAllocateOrFindNodeDedupsUnderGraphSearchOn(t *testing.T) {
	table := newTestTable(t, GraphSearchOn)
	rnd := newSplitmixRandSource(2)

	hash := RandomHash128()
	first := table.AllocateOrFindNode(White, Black, 0, 1, false, hash, Hash128{}, Hash128{}, rnd)
	second := table.AllocateOrFindNode(White, Black, 0, 1, false, hash, Hash128{}, Hash128{}, rnd)

	require.Same(t, first, second)
	require.Equal(t, 1, table.Len())
}

func TestAllocateOrFindNodeDoesNotDedupUnderGraphSearchOff(t *testing.T) {
	table := newTestTable(t, GraphSearchOff)
	rnd := newSplitmixRandSource(2)

	hash := RandomHash128()
	first := table.AllocateOrFindNode(White, Black, 0, 1, false, hash, Hash128{}, Hash128{}, rnd)
	second := table.AllocateOrFindNode(White, Black, 0, 1, false, hash, Hash128{}, Hash128{}, rnd)

	require.NotSame(t, first, second)
	require.Equal(t, 2, table.Len())
}

func TestAllocateOrFindNodeAssignsBiasEntry(t *testing.T) {
	table := newTestTable(t, GraphSearchOn)
	rnd := newSplitmixRandSource(3)

	n := table.AllocateOrFindNode(White, Black, 5, 7, false, RandomHash128(), Hash128{}, Hash128{}, rnd)
	require.NotNil(t, n.biasEntry)
}

func TestDeleteIfAgeHonorsKeepPredicate(t *testing.T) {
	table := newTestTable(t, GraphSearchOn)
	rnd := newSplitmixRandSource(4)

	hash := RandomHash128()
	n := table.AllocateOrFindNode(White, Black, 0, 1, false, hash, Hash128{}, Hash128{}, rnd)
	n.SetNodeAge(5)

	// keep everything: node must survive.
	removed := table.deleteIfAge(n.identity, func(age int64) bool { return true })
	require.Nil(t, removed)
	require.Equal(t, 1, table.Len())

	// keep nothing: node must be removed and returned.
	removed = table.deleteIfAge(n.identity, func(age int64) bool { return false })
	require.Same(t, n, removed)
	require.Equal(t, 0, table.Len())
}

func TestShardSnapshotAndDelete(t *testing.T) {
	table := newTestTable(t, GraphSearchOn)
	rnd := newSplitmixRandSource(5)

	hash := RandomHash128()
	n := table.AllocateOrFindNode(White, Black, 0, 1, false, hash, Hash128{}, Hash128{}, rnd)
	idx := int(shardIndex(n.identity))

	snap := table.shardSnapshot(idx)
	require.Contains(t, snap, n.identity)

	table.shardDelete(idx, n.identity)
	require.Equal(t, 0, table.Len())
}

func TestNodeMutexPoolLockUnlockDoesNotDeadlock(t *testing.T) {
	pool := NewNodeMutexPool(4, newSplitmixRandSource(6))
	idx := pool.drawIndex()
	pool.Lock(idx)
	pool.Unlock(idx)
}
