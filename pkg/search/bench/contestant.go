package bench

import (
	"context"

	"github.com/boardtree/search/pkg/search"
	"lukechampine.com/frand"
)

// Contestant wraps one Search configuration for arena play, playing the
// role of the teacher's ExtMCTS: reset a fresh tree per game, feed it the
// opponent's moves so tree reuse (MakeMove) still applies, and ask it to
// pick a move.
type Contestant struct {
	Name string

	params       *search.SearchParams
	evaluator    search.Evaluator
	scoreUtility search.ScoreUtility
	seed         int64

	engine *search.Search
}

func NewContestant(name string, params *search.SearchParams, evaluator search.Evaluator, scoreUtility search.ScoreUtility, seed int64) (*Contestant, error) {
	c := &Contestant{
		Name:         name,
		params:       params,
		evaluator:    evaluator,
		scoreUtility: scoreUtility,
		seed:         seed,
	}
	if err := c.Reset(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reset discards the current tree and starts a fresh Search, the arena's
// per-game equivalent of the teacher's ExtMCTS.Reset.
func (c *Contestant) Reset() error {
	engine, err := search.NewSearch(c.params, c.evaluator, c.scoreUtility, c.seed)
	if err != nil {
		return err
	}
	c.engine = engine
	return nil
}

// SearchMove runs a whole search from the given position and returns the
// chosen move, the arena's equivalent of the teacher's ExtMCTS.Search.
func (c *Contestant) SearchMove(ctx context.Context, board search.Board, history search.History, pla search.Player) (search.Loc, error) {
	values, err := c.engine.RunWholeSearch(ctx, board, history, pla)
	if err != nil {
		return search.NullLoc, err
	}
	return values.BestMove, nil
}

// MakeMove advances this contestant's own tree by move, whether or not the
// move came from its own search (§4.H step 9 tree reuse also applies when
// syncing the opponent's played move).
func (c *Contestant) MakeMove(move search.Loc) { c.engine.MakeMove(move) }

// Clone builds an independent Contestant with the same configuration but a
// freshly drawn seed, so concurrent arena workers never share one Search's
// internal state (teacher's "always use a clone, to avoid race conditions
// when cloning" comment in versus_arena.go).
func (c *Contestant) Clone() (*Contestant, error) {
	return NewContestant(c.Name, c.params, c.evaluator, c.scoreUtility, int64(frand.Uint64n(1<<62))^c.seed)
}
