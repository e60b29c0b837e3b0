package search

import (
	"context"
	"encoding/binary"
	"fmt"
)

// The tests in this package exercise the engine against a tiny two-move
// subtraction (Nim-like) game rather than real board rules, matching §1's
// boundary: this package never encodes move legality or scoring itself.
// Loc 0 takes one stone, loc 1 takes two; whoever takes the last stone
// wins. It is just complex enough to produce a real game tree with more
// than one legal move at most positions.

type fakeBoard struct {
	stones int
}

func (b *fakeBoard) PositionHash() Hash128 {
	var h Hash128
	binary.LittleEndian.PutUint64(h[0:8], uint64(b.stones))
	return h
}

func (b *fakeBoard) IsLegal(pla Player, loc Loc, preventEncore bool) bool {
	return b.IsLegalTolerant(pla, loc)
}

func (b *fakeBoard) IsLegalTolerant(pla Player, loc Loc) bool {
	switch loc {
	case 0:
		return b.stones >= 1
	case 1:
		return b.stones >= 2
	default:
		return false
	}
}

func (b *fakeBoard) MakeBoardMoveAssumeLegal(pla Player, loc Loc, preventEncore bool) error {
	switch loc {
	case 0:
		if b.stones < 1 {
			return fmt.Errorf("fakeBoard: no stones left to take one")
		}
		b.stones--
	case 1:
		if b.stones < 2 {
			return fmt.Errorf("fakeBoard: fewer than two stones left")
		}
		b.stones -= 2
	default:
		return fmt.Errorf("fakeBoard: unknown loc %d", loc)
	}
	return nil
}

func (b *fakeBoard) NumLegalMoves(pla Player) int {
	n := 0
	if b.IsLegalTolerant(pla, 0) {
		n++
	}
	if b.IsLegalTolerant(pla, 1) {
		n++
	}
	return n
}

func (b *fakeBoard) ComputeNumHandicapStones() int { return 0 }

func (b *fakeBoard) Symmetry(idx int) Board { return b.Clone() }

func (b *fakeBoard) Clone() Board { return &fakeBoard{stones: b.stones} }

type fakeHistory struct {
	moveNum      int
	stones       int
	recentBoards []*fakeBoard
	lastPla      Player
	lastLoc      Loc
	hasLastMove  bool
}

func newFakeHistory(startStones int) *fakeHistory {
	return &fakeHistory{stones: startStones, recentBoards: []*fakeBoard{{stones: startStones}}}
}

func (h *fakeHistory) nextPlayer() Player {
	if h.moveNum%2 == 0 {
		return Black
	}
	return White
}

func (h *fakeHistory) PassWouldEndGame(board Board, pla Player) bool  { return false }
func (h *fakeHistory) PassWouldEndPhase(board Board, pla Player) bool { return false }

func (h *fakeHistory) IsGameFinished() bool { return h.stones <= 0 }

func (h *fakeHistory) WinnerAndScore() (Player, float64) {
	if h.stones > 0 || !h.hasLastMove {
		return 0, 0
	}
	if h.lastPla == White {
		return White, 1
	}
	return Black, -1
}

func (h *fakeHistory) GetRecentBoard(k int) Board {
	if len(h.recentBoards) == 0 {
		return nil
	}
	idx := len(h.recentBoards) - 1 - k
	if idx < 0 {
		idx = 0
	}
	return h.recentBoards[idx].Clone()
}

func (h *fakeHistory) GraphHash(board Board, repetitionBound int, drawEquivalentWinsForWhite float64) Hash128 {
	fb := board.(*fakeBoard)
	var out Hash128
	binary.LittleEndian.PutUint64(out[0:8], uint64(fb.stones))
	binary.LittleEndian.PutUint64(out[8:16], uint64(h.nextPlayer())+1)
	return out
}

func (h *fakeHistory) LastMove() (Player, Loc, bool) {
	if !h.hasLastMove {
		return 0, NullLoc, false
	}
	return h.lastPla, h.lastLoc, true
}

func (h *fakeHistory) Clone() History {
	c := *h
	c.recentBoards = append([]*fakeBoard(nil), h.recentBoards...)
	return &c
}

func (h *fakeHistory) MoveNum() int { return h.moveNum }

func (h *fakeHistory) PlayMove(pla Player, loc Loc) error {
	if pla != h.nextPlayer() {
		return fmt.Errorf("fakeHistory: expected %s to move, got %s", h.nextPlayer(), pla)
	}
	switch loc {
	case 0:
		h.stones--
	case 1:
		h.stones -= 2
	default:
		return fmt.Errorf("fakeHistory: unknown loc %d", loc)
	}
	h.moveNum++
	h.lastPla = pla
	h.lastLoc = loc
	h.hasLastMove = true
	h.recentBoards = append(h.recentBoards, &fakeBoard{stones: h.stones})
	return nil
}

// fakeEvaluator scores positions with a closed-form Nim heuristic (a player
// to move on a multiple of three stones is losing under optimal play)
// instead of a neural net, so search results are deterministic and cheap.
type fakeEvaluator struct{}

func (fakeEvaluator) PolicySize() int { return 2 }

func (fakeEvaluator) Evaluate(ctx context.Context, board Board, history History, pla Player, params EvalParams, resultBuf *EvalResult, skipCache, includeOwnerMap bool) error {
	fb := board.(*fakeBoard)
	if cap(resultBuf.PolicyProbs) < 2 {
		resultBuf.PolicyProbs = make([]float64, 2)
	}
	resultBuf.PolicyProbs = resultBuf.PolicyProbs[:2]
	resultBuf.PolicySize = 2

	legal0 := fb.stones >= 1
	legal1 := fb.stones >= 2
	switch {
	case legal0 && legal1:
		resultBuf.PolicyProbs[0], resultBuf.PolicyProbs[1] = 0.5, 0.5
	case legal0:
		resultBuf.PolicyProbs[0], resultBuf.PolicyProbs[1] = 1, -1
	default:
		resultBuf.PolicyProbs[0], resultBuf.PolicyProbs[1] = -1, -1
	}

	moverLosing := fb.stones > 0 && fb.stones%3 == 0
	favored := pla
	if moverLosing {
		favored = pla.Opp()
	}
	if favored == White {
		resultBuf.WhiteWinProb, resultBuf.WhiteLossProb = 0.9, 0.1
		resultBuf.WhiteScoreMean = 1
	} else {
		resultBuf.WhiteWinProb, resultBuf.WhiteLossProb = 0.1, 0.9
		resultBuf.WhiteScoreMean = -1
	}
	resultBuf.WhiteNoResultProb = 0
	resultBuf.WhiteScoreMeanSq = resultBuf.WhiteScoreMean * resultBuf.WhiteScoreMean
	resultBuf.WhiteLead = resultBuf.WhiteScoreMean
	resultBuf.ShorttermWinlossError = 0.1
	resultBuf.ShorttermScoreError = 0.1
	resultBuf.NNHash = fb.PositionHash()
	return nil
}

// fakeScoreUtility is a minimal, deliberately simple stand-in for the
// external numerical-helpers contract (§1, §6).
type fakeScoreUtility struct{}

func (fakeScoreUtility) ExpectedWhiteScoreValue(mean, stdev, center, scale float64) float64 {
	if scale <= 0 {
		scale = 1
	}
	return (mean - center) / scale
}

func (fakeScoreUtility) Utility(winLossValue, scoreValue, noResultValue float64) float64 {
	return winLossValue*0.9 + scoreValue*0.1*(1-noResultValue)
}
