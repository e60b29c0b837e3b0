package search

import (
	"runtime"
	"sync"

	"github.com/cespare/xxhash/v2"

	"golang.org/x/sync/errgroup"
)

// numTableShards must be a power of two (component C: "sharded by low bits
// of the position hash into 2^k buckets").
const numTableShardsLog2 = 10
const numTableShards = 1 << numTableShardsLog2

// shardIndex folds a 128-bit identity down to a well-distributed shard
// selector. The identity's own low bits would work too, but for graph
// hashes built by XOR-folding several game-state components (§4.C) an
// explicit mix avoids correlated low bits between neighboring positions;
// xxhash is a cheap, good-avalanche mixer for this internal-only use (it is
// never used as the position hash itself, which is supplied externally).
func shardIndex(h Hash128) uint32 {
	d := xxhash.Sum64(h[:])
	return uint32(d & (numTableShards - 1))
}

type tableShard struct {
	mu     sync.Mutex
	byHash map[Hash128]*Node
}

// NodeMutexPool hands out node-level mutexes drawn uniformly at random so
// that no two arbitrary nodes are guaranteed distinct locks, but
// contention stays low in expectation (component C: "mutex index for a new
// Node is drawn uniformly from the mutex pool").
type NodeMutexPool struct {
	mus []sync.Mutex
	rng RandSource
}

type RandSource interface {
	Uint32() uint32
}

func NewNodeMutexPool(size int, rng RandSource) *NodeMutexPool {
	if size <= 0 {
		size = 1 << 12
	}
	return &NodeMutexPool{mus: make([]sync.Mutex, size), rng: rng}
}

func (p *NodeMutexPool) drawIndex() uint32 {
	return p.rng.Uint32() % uint32(len(p.mus))
}

func (p *NodeMutexPool) Lock(idx uint32)   { p.mus[idx%uint32(len(p.mus))].Lock() }
func (p *NodeMutexPool) Unlock(idx uint32) { p.mus[idx%uint32(len(p.mus))].Unlock() }

// GraphSearch controls whether TranspositionTable.AllocateOrFindNode
// transposes identical positions to a shared node (true) or disables
// sharing by salting identity with a fresh random value per node (false),
// per component C.
type GraphSearch bool

const (
	GraphSearchOn  GraphSearch = true
	GraphSearchOff GraphSearch = false
)

// TranspositionTable is component C: a sharded map from position hash to
// Node, plus the mutex pool used for node-level coordination during
// selection (child-slot publication) and growth.
type TranspositionTable struct {
	shards   [numTableShards]tableShard
	mutexes  *NodeMutexPool
	bias     *SubtreeValueBiasTable
	graph    GraphSearch
	policySize int
}

func NewTranspositionTable(policySize int, bias *SubtreeValueBiasTable, mutexes *NodeMutexPool, graph GraphSearch) (*TranspositionTable, error) {
	if policySize <= 0 {
		return nil, newConfigError("policy size must be positive, got %d", policySize)
	}
	t := &TranspositionTable{mutexes: mutexes, bias: bias, graph: graph, policySize: policySize}
	for i := range t.shards {
		t.shards[i].byHash = make(map[Hash128]*Node)
	}
	return t, nil
}

// biasKey identifies the shared subtree-value-bias entry a node should
// contribute to, per component C/D: keyed on the previous move's player and
// location, the new move's location, and a fingerprint of a recent board.
type biasKey struct {
	prevPla         Player
	prevLoc         Loc
	newLoc          Loc
	recentBoardHash Hash128
}

// AllocateOrFindNode implements component C's allocateOrFindNode. Under the
// shard mutex it either returns the existing node for identity, or
// constructs, installs bias/pattern-bonus bookkeeping, and inserts a new
// one. rnd is not consulted: the mutex-pool index comes from the pool's own
// drawIndex, and the non-graph-mode identity salt from RandomHash128.
func (t *TranspositionTable) AllocateOrFindNode(
	nextPla Player,
	lastPla Player,
	lastLoc Loc,
	loc Loc,
	forceNonTerminal bool,
	graphHash Hash128,
	recentBoardHash Hash128,
	patternBonusHash Hash128,
	rnd RandSource,
) *Node {
	identity := graphHash
	if t.graph == GraphSearchOff {
		identity = graphHash.XOR(RandomHash128())
	}

	shard := &t.shards[shardIndex(identity)]
	shard.mu.Lock()
	defer shard.mu.Unlock()

	if t.graph == GraphSearchOn {
		if existing, ok := shard.byHash[identity]; ok {
			return existing
		}
	}

	n := NewNode(nextPla, forceNonTerminal, identity, t.policySize)
	n.patternBonusHash = patternBonusHash
	n.mutexIdx = t.mutexes.drawIndex()

	if t.bias != nil {
		n.biasEntry = t.bias.entryFor(biasKey{
			prevPla:         lastPla,
			prevLoc:         lastLoc,
			newLoc:          loc,
			recentBoardHash: recentBoardHash,
		})
	}

	shard.byHash[identity] = n
	return n
}

// deleteIfAge removes the node keyed by identity from its shard iff its
// current stored age does not satisfy keep. MarkAndSweep (maintenance.go)
// does not use it; it deletes through shardSnapshot/shardDelete.
func (t *TranspositionTable) deleteIfAge(identity Hash128, keep func(age int64) bool) *Node {
	shard := &t.shards[shardIndex(identity)]
	shard.mu.Lock()
	defer shard.mu.Unlock()
	n, ok := shard.byHash[identity]
	if !ok {
		return nil
	}
	if keep(n.NodeAge()) {
		return nil
	}
	delete(shard.byHash, identity)
	return n
}

// forEachShardIndex runs fn over every shard index concurrently, capped at
// GOMAXPROCS workers at a time. Used by the mark-and-sweep and full-clear
// sweeps (maintenance.go, §4.I "bulk-deletion sweep ... in parallel"); fn is
// responsible for its own concurrency-safety (each shard has its own mutex,
// so distinct shard indices never contend with each other).
func (t *TranspositionTable) forEachShardIndex(fn func(shardIdx int)) {
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range t.shards {
		idx := i
		g.Go(func() error {
			fn(idx)
			return nil
		})
	}
	_ = g.Wait()
}

func (t *TranspositionTable) shardSnapshot(i int) map[Hash128]*Node {
	s := &t.shards[i]
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[Hash128]*Node, len(s.byHash))
	for k, v := range s.byHash {
		out[k] = v
	}
	return out
}

func (t *TranspositionTable) shardDelete(i int, hash Hash128) {
	s := &t.shards[i]
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byHash, hash)
}

func (t *TranspositionTable) Len() int {
	n := 0
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		n += len(s.byHash)
		s.mu.Unlock()
	}
	return n
}
