package search

import (
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Search owns one root and everything shared by its concurrent playouts:
// the transposition table, subtree value-bias table, mutex pool, and
// search-wide counters. It is the rough analogue of the teacher's
// MCTS[T, S, R] type, generalized to the graph-search / atomic-node model
// of §3.
type Search struct {
	Params *SearchParams

	Evaluator    Evaluator
	ScoreUtility ScoreUtility

	// TimeControls is the optional clock collaborator consulted by
	// recomputeSearchTimeLimit (§4.G, §6). Nil means the search has no
	// clock of its own and only the MaxTimeSeconds/MaxVisits/MaxPlayouts
	// caps in Params apply.
	TimeControls TimeControls

	Table   *TranspositionTable
	Bias    *SubtreeValueBiasTable
	Mutexes *NodeMutexPool

	// Patterns is the optional external pattern-bonus collaborator (§1,
	// recompute.go). Nil means no bonus is ever applied.
	Patterns PatternBonusSource

	Root *Node

	rootBoard   Board
	rootHistory History
	rootPla     Player

	searchNodeAge   atomic.Int64
	numSearchesBegun atomic.Int64
	searchCounter   atomic.Int64
	searchSeed      int64

	rootHash Hash128

	cleanup globalCleanupList

	Logger zerolog.Logger

	// mirroringPla/mirrorAdvantage/mirrorCenterSymmetryError are recomputed
	// once per beginSearch call (§4.H step 5) and read by selection.
	mirroringPla             Player
	mirrorAdvantage          float64
	mirrorCenterSymmetryError float64

	// recentScoreCenter is recomputed at root prep (§4.H step 3) and used
	// by both selection's FPU/utility math and reporting.
	recentScoreCenter float64
	safeArea          float64

	// prunedRootMoves holds moves pruned as board-symmetry duplicates during
	// the current root preparation (§4.H step 6); nil means nothing pruned.
	prunedRootMoves map[Loc]bool

	stop atomic.Bool

	// effectiveSearchTimeCarriedOver models reuse of prior thinking across
	// moves (§4.G, §4.H step 9).
	effectiveSearchTimeCarriedOver float64
}

// NewSearch wires the collaborators together. Returns a ConfigError (§7
// kind 3) if the evaluator's policy size is non-positive.
func NewSearch(params *SearchParams, evaluator Evaluator, scoreUtility ScoreUtility, seed int64) (*Search, error) {
	if evaluator.PolicySize() <= 0 {
		return nil, newConfigError("evaluator policy size must be positive, got %d", evaluator.PolicySize())
	}
	params.PolicySize = evaluator.PolicySize()

	bias := NewSubtreeValueBiasTable()
	mutexes := NewNodeMutexPool(1<<14, newSplitmixRandSource(int64(uint64(seed)^0x9e3779b97f4a7c15)))
	table, err := NewTranspositionTable(params.PolicySize, bias, mutexes, params.GraphSearch)
	if err != nil {
		return nil, err
	}

	s := &Search{
		Params:       params,
		Evaluator:    evaluator,
		ScoreUtility: scoreUtility,
		Table:        table,
		Bias:         bias,
		Mutexes:      mutexes,
		searchSeed:   seed,
		Logger:       zerolog.Nop(),
	}
	return s, nil
}

// SetLogger installs a structured logger for the Warn/Worker-exception
// events named in §7. Defaults to a disabled logger (zerolog.Nop()) so the
// package is silent unless a caller opts in.
func (s *Search) SetLogger(l zerolog.Logger) { s.Logger = l }

func (s *Search) IsGraphSearch() bool { return bool(s.Params.GraphSearch) }

// SetPatternBonusSource installs the optional pattern-bonus collaborator.
func (s *Search) SetPatternBonusSource(p PatternBonusSource) { s.Patterns = p }

// SetTimeControls installs the optional clock collaborator (§4.G, §6). A nil
// TimeControls (the default) means recomputeSearchTimeLimit never fires and
// only Params' MaxTimeSeconds/MaxVisits/MaxPlayouts caps apply.
func (s *Search) SetTimeControls(tc TimeControls) *Search {
	s.TimeControls = tc
	return s
}

// splitmixRandSource is a tiny deterministic RandSource used to seed the
// mutex pool's draws; it exists only because NodeMutexPool wants a
// RandSource and we don't want the package-wide math/rand global for that
// (it would create hidden cross-search coupling under NumThreads>1 use of
// multiple *Search instances).
type splitmixRandSource struct {
	state uint64
}

func newSplitmixRandSource(seed int64) *splitmixRandSource {
	return &splitmixRandSource{state: uint64(seed)}
}

func (r *splitmixRandSource) Uint32() uint32 {
	r.state += 0x9e3779b97f4a7c15
	z := r.state
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	z = z ^ (z >> 31)
	return uint32(z >> 32)
}
