// Command searchdemo smoke-drives the engine against the toy nim game in
// this directory: it plays a full self-play game, printing the reported
// search values at each move, then runs a short two-config arena through
// pkg/search/bench.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/boardtree/search/pkg/search"
	"github.com/boardtree/search/pkg/search/bench"
	"github.com/rs/zerolog"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()

	if err := runSelfPlay(logger); err != nil {
		logger.Fatal().Err(err).Msg("self-play run failed")
	}
	if err := runArena(logger); err != nil {
		logger.Fatal().Err(err).Msg("arena run failed")
	}
}

func runSelfPlay(logger zerolog.Logger) error {
	const startStones = 13

	params := search.DefaultSearchParams(2)
	params.SetNumThreads(4)
	params.MaxPlayouts = 800

	s, err := search.NewSearch(params, nimEvaluator{}, nimScoreUtility{}, 1)
	if err != nil {
		return err
	}
	s.SetLogger(logger)

	board := &nimBoard{stones: startStones}
	history := newNimHistory(startStones)
	pla := search.Black

	fmt.Printf("searchdemo: nim game, %d stones, %s to move first\n", startStones, pla)

	ctx := context.Background()
	for !history.IsGameFinished() {
		values, err := s.RunWholeSearch(ctx, board, history, pla)
		if err != nil {
			return err
		}
		fmt.Printf("%-6s move=%d visits=%d wlv=%+.3f score=%+.2f pv=%v\n",
			pla, values.BestMove, values.Visits, values.WinLossValue, values.ExpectedScore, values.PV)

		if err := board.MakeBoardMoveAssumeLegal(pla, values.BestMove, false); err != nil {
			return err
		}
		if err := history.PlayMove(pla, values.BestMove); err != nil {
			return err
		}
		s.MakeMove(values.BestMove)
		pla = pla.Opp()
	}

	winner, score := history.WinnerAndScore()
	fmt.Printf("searchdemo: game over, winner=%s score=%+.1f\n", winner, score)
	return nil
}

// arenaPosition adapts the nim game to pkg/search/bench.Position.
type arenaPosition struct {
	board   *nimBoard
	history *nimHistory
}

func newArenaPosition(startStones int) *arenaPosition {
	return &arenaPosition{board: &nimBoard{stones: startStones}, history: newNimHistory(startStones)}
}

func (p *arenaPosition) Board() search.Board     { return p.board }
func (p *arenaPosition) History() search.History { return p.history }
func (p *arenaPosition) Pla() search.Player      { return p.history.nextPlayer() }

func (p *arenaPosition) MakeMove(loc search.Loc) error {
	pla := p.Pla()
	if err := p.board.MakeBoardMoveAssumeLegal(pla, loc, false); err != nil {
		return err
	}
	return p.history.PlayMove(pla, loc)
}

func (p *arenaPosition) IsTerminated() bool { return p.history.IsGameFinished() }
func (p *arenaPosition) IsDraw() bool       { return false }

func (p *arenaPosition) Clone() bench.Position {
	return &arenaPosition{
		board:   p.board.Clone().(*nimBoard),
		history: p.history.Clone().(*nimHistory),
	}
}

func runArena(logger zerolog.Logger) error {
	const startStones = 11

	fewPlayouts := search.DefaultSearchParams(2)
	fewPlayouts.SetNumThreads(1)
	fewPlayouts.MaxPlayouts = 50

	manyPlayouts := search.DefaultSearchParams(2)
	manyPlayouts.SetNumThreads(1)
	manyPlayouts.MaxPlayouts = 500

	weak, err := bench.NewContestant("weak-50", fewPlayouts, nimEvaluator{}, nimScoreUtility{}, 2)
	if err != nil {
		return err
	}
	strong, err := bench.NewContestant("strong-500", manyPlayouts, nimEvaluator{}, nimScoreUtility{}, 3)
	if err != nil {
		return err
	}

	arena := bench.NewVersusArena(newArenaPosition(startStones), strong, weak)
	arena.Setup(8, 2)
	arena.Start(bench.NewLoggingListener(logger))
	arena.Wait()

	fmt.Printf("searchdemo: arena done, %s %d - %d %s, draws=%d\n",
		strong.Name, arena.P1Wins(), arena.P2Wins(), weak.Name, arena.Draws())
	return nil
}
