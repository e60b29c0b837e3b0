package bench

// ListenerLike mirrors the teacher's per-worker progress callback shape:
// one instance per worker goroutine (via Clone), fed a stream of
// game/move/finish events.
type ListenerLike interface {
	OnStart()
	OnGameStart()
	OnMoveMade(info VersusWorkerInfo)
	OnFinishedGame(info VersusWorkerInfo)
	OnFinishedWork(info VersusWorkerInfo)
	Summary(info VersusSummaryInfo)
	OnEnd()
	SetRow(row int)
	Clone() ListenerLike
}

// DefaultListener discards every event; useful when a caller only wants the
// final VersusArenaStats and doesn't care about progress.
type DefaultListener struct{ row int }

func (d *DefaultListener) OnStart()                        {}
func (d *DefaultListener) OnGameStart()                    {}
func (d *DefaultListener) OnMoveMade(VersusWorkerInfo)     {}
func (d *DefaultListener) OnFinishedGame(VersusWorkerInfo) {}
func (d *DefaultListener) OnFinishedWork(VersusWorkerInfo) {}
func (d *DefaultListener) Summary(VersusSummaryInfo)       {}
func (d *DefaultListener) OnEnd()                          {}
func (d *DefaultListener) SetRow(row int)                  { d.row = row }
func (d *DefaultListener) Clone() ListenerLike              { return &DefaultListener{row: d.row} }
