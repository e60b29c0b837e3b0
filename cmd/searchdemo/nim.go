package main

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/boardtree/search/pkg/search"
)

// nimBoard is a tiny subtraction game (take one or two stones, whoever
// takes the last one wins) used only to smoke-drive the engine end to end
// without any real board-rules package attached. Loc 0 takes one stone,
// loc 1 takes two.
type nimBoard struct {
	stones int
}

func (b *nimBoard) PositionHash() search.Hash128 {
	var h search.Hash128
	binary.LittleEndian.PutUint64(h[0:8], uint64(b.stones))
	return h
}

func (b *nimBoard) IsLegal(pla search.Player, loc search.Loc, preventEncore bool) bool {
	return b.IsLegalTolerant(pla, loc)
}

func (b *nimBoard) IsLegalTolerant(pla search.Player, loc search.Loc) bool {
	switch loc {
	case 0:
		return b.stones >= 1
	case 1:
		return b.stones >= 2
	default:
		return false
	}
}

func (b *nimBoard) MakeBoardMoveAssumeLegal(pla search.Player, loc search.Loc, preventEncore bool) error {
	switch loc {
	case 0:
		b.stones--
	case 1:
		b.stones -= 2
	default:
		return fmt.Errorf("nimBoard: unknown loc %d", loc)
	}
	if b.stones < 0 {
		return fmt.Errorf("nimBoard: stones went negative")
	}
	return nil
}

func (b *nimBoard) NumLegalMoves(pla search.Player) int {
	n := 0
	if b.IsLegalTolerant(pla, 0) {
		n++
	}
	if b.IsLegalTolerant(pla, 1) {
		n++
	}
	return n
}

func (b *nimBoard) ComputeNumHandicapStones() int { return 0 }

func (b *nimBoard) Symmetry(idx int) search.Board { return b.Clone() }

func (b *nimBoard) Clone() search.Board { return &nimBoard{stones: b.stones} }

// nimHistory tracks move count and last move for the small slice of
// History the demo actually exercises.
type nimHistory struct {
	moveNum     int
	stones      int
	lastPla     search.Player
	lastLoc     search.Loc
	hasLastMove bool
}

func newNimHistory(startStones int) *nimHistory { return &nimHistory{stones: startStones} }

func (h *nimHistory) nextPlayer() search.Player {
	if h.moveNum%2 == 0 {
		return search.Black
	}
	return search.White
}

func (h *nimHistory) PassWouldEndGame(search.Board, search.Player) bool  { return false }
func (h *nimHistory) PassWouldEndPhase(search.Board, search.Player) bool { return false }

func (h *nimHistory) IsGameFinished() bool { return h.hasLastMove && h.stones <= 0 }

func (h *nimHistory) WinnerAndScore() (search.Player, float64) {
	if !h.hasLastMove {
		return 0, 0
	}
	if h.lastPla == search.White {
		return search.White, 1
	}
	return search.Black, -1
}

func (h *nimHistory) GetRecentBoard(k int) search.Board { return nil }

func (h *nimHistory) GraphHash(board search.Board, repetitionBound int, drawEquivalentWinsForWhite float64) search.Hash128 {
	fb := board.(*nimBoard)
	var out search.Hash128
	binary.LittleEndian.PutUint64(out[0:8], uint64(fb.stones))
	binary.LittleEndian.PutUint64(out[8:16], uint64(h.nextPlayer())+1)
	return out
}

func (h *nimHistory) LastMove() (search.Player, search.Loc, bool) {
	if !h.hasLastMove {
		return 0, search.NullLoc, false
	}
	return h.lastPla, h.lastLoc, true
}

func (h *nimHistory) Clone() search.History {
	c := *h
	return &c
}

func (h *nimHistory) MoveNum() int { return h.moveNum }

func (h *nimHistory) PlayMove(pla search.Player, loc search.Loc) error {
	if pla != h.nextPlayer() {
		return fmt.Errorf("nimHistory: expected %s to move, got %s", h.nextPlayer(), pla)
	}
	switch loc {
	case 0:
		h.stones--
	case 1:
		h.stones -= 2
	default:
		return fmt.Errorf("nimHistory: unknown loc %d", loc)
	}
	h.moveNum++
	h.lastPla = pla
	h.lastLoc = loc
	h.hasLastMove = true
	return nil
}

// nimEvaluator scores a position with the closed-form Nim rule (a mover
// facing a multiple of three stones is losing under optimal play) instead
// of a neural network.
type nimEvaluator struct{}

func (nimEvaluator) PolicySize() int { return 2 }

func (nimEvaluator) Evaluate(ctx context.Context, board search.Board, history search.History, pla search.Player, params search.EvalParams, resultBuf *search.EvalResult, skipCache, includeOwnerMap bool) error {
	fb := board.(*nimBoard)
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
	if favored == search.White {
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

// nimScoreUtility is a minimal stand-in for the external numerical-helpers
// contract (§1, §6): a fixed center/scale linear score value, blended 90/10
// against win/loss the way the real production utility formula shapes are
// documented to behave.
type nimScoreUtility struct{}

func (nimScoreUtility) ExpectedWhiteScoreValue(mean, stdev, center, scale float64) float64 {
	if scale <= 0 {
		scale = 1
	}
	return (mean - center) / scale
}

func (nimScoreUtility) Utility(winLossValue, scoreValue, noResultValue float64) float64 {
	return winLossValue*0.9 + scoreValue*0.1*(1-noResultValue)
}
