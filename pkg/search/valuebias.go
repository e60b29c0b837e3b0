package search

import (
	"math"
	"sync"
)

// valueBiasEntry is the shared correction term for one (prevMove, curMove,
// localBoard) fingerprint (§4.D, §9). weightExp is baked in at Add time by
// the caller (recomputeNodeStats), since it's a search-wide parameter
// rather than per-entry state.
type valueBiasEntry struct {
	spin sync.Mutex // test-and-set in spirit; a plain mutex is fine since the critical section is a few float adds

	deltaUtilitySum atomicFloat64
	weightSum       atomicFloat64
}

func (e *valueBiasEntry) snapshot() (deltaSum, weightSum float64) {
	return e.deltaUtilitySum.Load(), e.weightSum.Load()
}

// contribute adds (deltaUtility, weight) to the entry and returns the new
// totals, used by backup (§4.D: "incremented by the delta since its last
// contribution").
func (e *valueBiasEntry) contribute(deltaUtility, weight float64) (deltaSum, weightSum float64) {
	e.spin.Lock()
	defer e.spin.Unlock()
	deltaSum = e.deltaUtilitySum.Add(deltaUtility)
	weightSum = e.weightSum.Add(weight)
	return
}

// SubtreeValueBiasTable is component D: a sharded map from bias fingerprint
// to entry, aggregating correction deltas across all nodes that share a
// local context.
type SubtreeValueBiasTable struct {
	shards [numTableShards]biasShard
}

type biasShard struct {
	mu      sync.Mutex
	entries map[biasKey]*valueBiasEntry
}

func NewSubtreeValueBiasTable() *SubtreeValueBiasTable {
	t := &SubtreeValueBiasTable{}
	for i := range t.shards {
		t.shards[i].entries = make(map[biasKey]*valueBiasEntry)
	}
	return t
}

func biasShardIndex(k biasKey) uint32 {
	// Cheap FNV-ish fold over the fixed-size key fields; the recent-board
	// hash already carries most of the entropy so this need not be
	// cryptographic.
	h := uint64(k.prevLoc)*1000003 + uint64(k.newLoc)
	for _, b := range k.recentBoardHash {
		h = h*1000003 + uint64(b)
	}
	if k.prevPla == White {
		h ^= 0x9e3779b97f4a7c15
	}
	return uint32(h & (numTableShards - 1))
}

func (t *SubtreeValueBiasTable) entryFor(k biasKey) *valueBiasEntry {
	shard := &t.shards[biasShardIndex(k)]
	shard.mu.Lock()
	defer shard.mu.Unlock()
	e, ok := shard.entries[k]
	if !ok {
		e = &valueBiasEntry{}
		shard.entries[k] = e
	}
	return e
}

// biasedUtility applies the correction described in §4.D: "A node's direct
// evaluation is shifted by biasFactor × deltaSum/weightSum when included in
// aggregations."
func biasedUtility(direct float64, entry *valueBiasEntry, biasFactor float64) float64 {
	if entry == nil || biasFactor == 0 {
		return direct
	}
	deltaSum, weightSum := entry.snapshot()
	if weightSum <= 0 {
		return direct
	}
	return direct + biasFactor*deltaSum/weightSum
}

// nodeContributeBias is called once per backup on every expanded non-leaf
// node, per §4.D: contributes (utilityOfChildren - directUtility) *
// weight^exp, incremented by the delta since the node's own last
// contribution (tracked in Node.lastBiasDelta/lastBiasWeight so repeated
// backups only add the marginal change).
func nodeContributeBias(n *Node, utilityOfChildren, directUtility, weight, exp float64) {
	if n.biasEntry == nil {
		return
	}
	w := weight
	if exp != 1 {
		w = math.Pow(weight, exp)
	}
	delta := (utilityOfChildren - directUtility) * w

	prevDelta := n.lastBiasDelta.Load()
	prevWeight := n.lastBiasWeight.Load()

	n.biasEntry.contribute(delta-prevDelta, w-prevWeight)
	n.lastBiasDelta.Store(delta)
	n.lastBiasWeight.Store(w)
}

// releaseBiasContribution subtracts a node's last contribution from its
// bias entry, keyed by subtreeValueBiasFreeProp (§4.D: "On node deletion the
// node's last contribution is subtracted"; §12 names the free-proportion
// knob).
func releaseBiasContribution(n *Node, freeProp float64) {
	if n.biasEntry == nil {
		return
	}
	delta := n.lastBiasDelta.Load() * freeProp
	weight := n.lastBiasWeight.Load() * freeProp
	if delta == 0 && weight == 0 {
		return
	}
	n.biasEntry.contribute(-delta, -weight)
	n.lastBiasDelta.Store(0)
	n.lastBiasWeight.Store(0)
}

