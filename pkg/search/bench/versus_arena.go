package bench

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/boardtree/search/pkg/search"
	"lukechampine.com/frand"
)

// statsRowStart mirrors the teacher's terminal-progress row offset: worker 0
// starts one line below whatever a caller's own status line occupies.
const statsRowStart = 1

// VersusArena plays NGames games between two Contestants across NThreads
// worker goroutines, following the teacher's pkg/bench.VersusArena shape
// generalized away from its MoveLike/NodeStatsLike/GameResult type
// parameters to this package's concrete Search/Board/History/Loc types.
type VersusArena struct {
	VersusArenaStats

	Player1  *Contestant
	Player2  *Contestant
	NGames   uint
	NThreads uint
	Position Position

	wg       sync.WaitGroup
	finished atomic.Bool
	ctx      context.Context
}

func NewVersusArena(position Position, player1, player2 *Contestant) *VersusArena {
	return &VersusArena{
		Player1:  player1,
		Player2:  player2,
		NGames:   100,
		NThreads: 2,
		Position: position,
		ctx:      context.Background(),
	}
}

func (va *VersusArena) WithContext(ctx context.Context) *VersusArena {
	va.ctx = ctx
	return va
}

func (va *VersusArena) Setup(nGames, nThreads uint) {
	va.NGames = nGames
	va.NThreads = nThreads
}

// Wait blocks until every worker has finished and the final Summary/OnEnd
// callbacks have run.
func (va *VersusArena) Wait() {
	va.wg.Wait()
	for !va.finished.Load() {
		runtime.Gosched()
	}
}

// Start splits NGames as evenly as possible across NThreads worker
// goroutines and begins play. Each worker gets its own clone of both
// contestants so concurrent games never share one Search's tree or RNG.
func (va *VersusArena) Start(listener ListenerLike) {
	va.finished.Store(false)
	listener.OnStart()

	if va.NThreads == 0 {
		va.NThreads = 1
	}
	perWorker := va.NGames / va.NThreads
	rest := uint(0)
	if va.NThreads > 1 {
		rest = va.NGames % va.NThreads
	}

	for i := uint(0); i < va.NThreads; i++ {
		delta := uint(0)
		if rest > 0 {
			delta = 1
			rest--
		}
		va.wg.Add(1)

		p1, err1 := va.Player1.Clone()
		p2, err2 := va.Player2.Clone()
		l := listener.Clone()
		l.SetRow(int(i) + statsRowStart)

		go va.worker(int(i), int(perWorker+delta), l, p1, p2, err1, err2)
	}
}

func (va *VersusArena) worker(id, nGames int, listener ListenerLike, p1, p2 *Contestant, err1, err2 error) {
	localStats := VersusArenaStats{}

Loop:
	for i := 0; i < nGames; i++ {
		if err1 != nil || err2 != nil {
			break Loop
		}

		select {
		case <-va.ctx.Done():
			break Loop
		default:
		}

		pos := va.Position.Clone()
		var res contestantResult
		if frand.Uint64n(2) == 0 {
			res = playGame(va.ctx, p1, p2, pos, listener, id, nGames, va.Total())
		} else {
			res = playGame(va.ctx, p2, p1, pos, listener, id, nGames, va.Total())
			res.result = -res.result
		}

		if res.err != nil {
			break Loop
		}

		switch res.result {
		case VersusDraw:
			atomic.AddUint32(&va.draws, 1)
			localStats.draws++
		case VersusPl1Win:
			atomic.AddUint32(&va.p1Wins, 1)
			localStats.p1Wins++
		case VersusPl2Win:
			atomic.AddUint32(&va.p2Wins, 1)
			localStats.p2Wins++
		}
	}

	listener.OnFinishedWork(VersusWorkerInfo{
		WorkerID:      id,
		NGames:        nGames,
		FinishedGames: va.Total(),
		P1Wins:        int(localStats.p1Wins),
		P2Wins:        int(localStats.p2Wins),
		Draws:         int(localStats.draws),
		P1Name:        va.Player1.Name,
		P2Name:        va.Player2.Name,
	})
	// Done before worker 0's wg.Wait below, so that wait can complete.
	va.wg.Done()

	if id == 0 {
		va.wg.Wait()
		listener.Summary(VersusSummaryInfo{
			P1Wins:     va.P1Wins(),
			P2Wins:     va.P2Wins(),
			Draws:      va.Draws(),
			Workers:    int(va.NThreads),
			TotalGames: va.Total(),
			P1Name:     va.Player1.Name,
			P2Name:     va.Player2.Name,
		})
		listener.OnEnd()
		va.finished.Store(true)
	}
}

// playGame plays first to Position.IsTerminated(), with pl1 always moving
// first (matching the teacher's "player 1 begins" convention); the caller
// maps colors back onto its own Player1/Player2 accounting.
func playGame(ctx context.Context, pl1, pl2 *Contestant, pos Position, listener ListenerLike, workerID, nGames, finishedGames int) contestantResult {
	if err := pl1.Reset(); err != nil {
		return contestantResult{err: err}
	}
	if err := pl2.Reset(); err != nil {
		return contestantResult{err: err}
	}

	pl1Pla := pos.Pla()
	moves := make([]search.Loc, 0, 128)

	listener.OnGameStart()
	defer listener.OnFinishedGame(VersusWorkerInfo{
		WorkerID:      workerID,
		Moves:         moves,
		GameMoveNum:   len(moves),
		NGames:        nGames,
		FinishedGames: finishedGames,
	})

	for !pos.IsTerminated() {
		select {
		case <-ctx.Done():
			return contestantResult{result: VersusDraw}
		default:
		}

		mv, err := pl1.SearchMove(ctx, pos.Board(), pos.History(), pos.Pla())
		if err != nil {
			return contestantResult{err: err}
		}
		pl1.MakeMove(mv)
		if err := pos.MakeMove(mv); err != nil {
			return contestantResult{err: err}
		}
		moves = append(moves, mv)
		listener.OnMoveMade(VersusWorkerInfo{WorkerID: workerID, Moves: moves, GameMoveNum: len(moves), NGames: nGames, FinishedGames: finishedGames})

		if pos.IsTerminated() {
			break
		}
		pl2.MakeMove(mv)

		mv, err = pl2.SearchMove(ctx, pos.Board(), pos.History(), pos.Pla())
		if err != nil {
			return contestantResult{err: err}
		}
		pl2.MakeMove(mv)
		if err := pos.MakeMove(mv); err != nil {
			return contestantResult{err: err}
		}
		moves = append(moves, mv)
		listener.OnMoveMade(VersusWorkerInfo{WorkerID: workerID, Moves: moves, GameMoveNum: len(moves), NGames: nGames, FinishedGames: finishedGames})

		pl1.MakeMove(mv)
	}

	if pos.IsDraw() {
		return contestantResult{result: VersusDraw}
	}
	winner, _ := pos.History().WinnerAndScore()
	return contestantResult{result: toArenaResult(winner, pl1Pla)}
}
