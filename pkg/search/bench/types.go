// Package bench adapts the engine's versus-arena benchmark harness: playing
// a series of games between two Search configurations across worker
// goroutines and tallying wins/losses/draws. It never encodes game rules
// itself, only drives the Position contract callers supply.
package bench

import (
	"sync/atomic"

	"github.com/boardtree/search/pkg/search"
)

// VersusMatchResult is the outcome of a single game from the arena's own
// numbering, independent of which contestant played which color.
type VersusMatchResult int

const (
	VersusPl1Win VersusMatchResult = 1
	VersusPl2Win VersusMatchResult = -1
	VersusDraw   VersusMatchResult = 0
)

// VersusArenaStats holds the running win/loss/draw counters, updated with
// plain atomics so many worker goroutines can report into the same arena
// without a shared mutex.
type VersusArenaStats struct {
	p1Wins uint32
	p2Wins uint32
	draws  uint32
}

func (vas *VersusArenaStats) Total() int { return vas.P1Wins() + vas.P2Wins() + vas.Draws() }

func (vas *VersusArenaStats) P1Wins() int { return int(atomic.LoadUint32(&vas.p1Wins)) }

func (vas *VersusArenaStats) P2Wins() int { return int(atomic.LoadUint32(&vas.p2Wins)) }

func (vas *VersusArenaStats) Draws() int { return int(atomic.LoadUint32(&vas.draws)) }

// Position is the game-level driver the arena needs: enough to play a
// complete game move by move and clone a fresh copy per game, without the
// arena ever inspecting board contents itself (§1, §6).
type Position interface {
	Board() search.Board
	History() search.History
	Pla() search.Player
	MakeMove(loc search.Loc) error
	IsTerminated() bool
	IsDraw() bool
	Clone() Position
}

// VersusWorkerInfo is a snapshot handed to a ListenerLike callback: enough
// to render progress without the listener reaching back into the arena.
type VersusWorkerInfo struct {
	WorkerID      int
	NGames        int
	FinishedGames int
	GameMoveNum   int
	Moves         []search.Loc
	P1Wins        int
	P2Wins        int
	Draws         int
	P1Name        string
	P2Name        string
}

// VersusSummaryInfo is the final tally handed to ListenerLike.Summary once
// every worker has finished its share of games.
type VersusSummaryInfo struct {
	TotalGames int
	P1Wins     int
	P2Wins     int
	Draws      int
	Workers    int
	P1Name     string
	P2Name     string
}

// toArenaResult maps a game's actual winner color to which contestant
// (pl1 or pl2) played that color in this particular game, given which side
// pl1 was assigned before the game started.
func toArenaResult(winner search.Player, pl1Pla search.Player) VersusMatchResult {
	if winner == 0 {
		return VersusDraw
	}
	if winner == pl1Pla {
		return VersusPl1Win
	}
	return VersusPl2Win
}

// contestantResult reports a single playGame's outcome plus an error, kept
// separate from VersusMatchResult so a playout/evaluator failure can abort a
// worker's remaining games cleanly (a failed game has no well-defined
// winner to tally).
type contestantResult struct {
	result VersusMatchResult
	err    error
}
