package bench

import "github.com/rs/zerolog"

// LoggingListener reports game completions and the final summary through a
// structured logger instead of discarding them, following the same
// zerolog-based logging surface Search itself exposes (search.go's Logger
// field).
type LoggingListener struct {
	row    int
	logger zerolog.Logger
}

func NewLoggingListener(logger zerolog.Logger) *LoggingListener {
	return &LoggingListener{logger: logger}
}

func (l *LoggingListener) OnStart() {}

func (l *LoggingListener) OnGameStart() {}

func (l *LoggingListener) OnMoveMade(VersusWorkerInfo) {}

func (l *LoggingListener) OnFinishedGame(info VersusWorkerInfo) {
	l.logger.Info().
		Int("worker", info.WorkerID).
		Int("finished", info.FinishedGames).
		Int("total", info.NGames).
		Int("p1_wins", info.P1Wins).
		Int("p2_wins", info.P2Wins).
		Int("draws", info.Draws).
		Msg("game finished")
}

func (l *LoggingListener) OnFinishedWork(info VersusWorkerInfo) {
	l.logger.Info().Int("worker", info.WorkerID).Msg("worker finished")
}

func (l *LoggingListener) Summary(info VersusSummaryInfo) {
	l.logger.Info().
		Str("p1", info.P1Name).
		Str("p2", info.P2Name).
		Int("p1_wins", info.P1Wins).
		Int("p2_wins", info.P2Wins).
		Int("draws", info.Draws).
		Int("total", info.TotalGames).
		Msg("arena finished")
}

func (l *LoggingListener) OnEnd() {}

func (l *LoggingListener) SetRow(row int) { l.row = row }

func (l *LoggingListener) Clone() ListenerLike {
	return &LoggingListener{row: l.row, logger: l.logger}
}
