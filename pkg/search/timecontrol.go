package search

import "math"

// TimeControls is the external time-management collaborator §6 requires:
// runWholeSearch never encodes a clock itself, it only asks this interface
// for a recommendation and folds that into recomputeSearchTimeLimit's own
// curve. A caller with no clock at all can leave Search.TimeControls nil,
// which recomputeSearchTimeLimit treats as "unlimited".
type TimeControls interface {
	// Recommend returns the minimum, recommended, and maximum thinking time
	// (seconds) for the position, given lagBuffer seconds reserved for
	// network/GUI overhead that must never be spent thinking.
	Recommend(board Board, history History, lagBuffer float64) (tcMin, tcRec, tcMax float64)

	// RoundUpTimeLimitIfNeeded lets a controller enforce its own coarse
	// granularity (e.g. never plan to stop mid-second) on a limit
	// recomputeSearchTimeLimit derived, given how much time is already used.
	RoundUpTimeLimitIfNeeded(lagBuffer, timeUsed, tcRec float64) float64

	// IsEffectivelyUnlimitedTime reports whether this controller has no
	// meaningful time pressure (e.g. an untimed or byoyomi-only clock with a
	// huge main bank), letting the caller skip clock enforcement entirely.
	IsEffectivelyUnlimitedTime() bool
}

// BankTimeControls is a concrete main-time-bank-plus-increment-plus-
// moves-to-go clock, the classic chess/GTP shape grounded on
// Soomi's TimeControl.allocateTime and chessvariantengine-lib's TimeControl.
// It has no notion of board rules, only of the clock, so it satisfies
// TimeControls for any Board/History pair.
type BankTimeControls struct {
	// MainTimeSeconds is the remaining time on the bank.
	MainTimeSeconds float64
	// IncrementSeconds is added back to the bank after every move (Fischer
	// increment); 0 disables it.
	IncrementSeconds float64
	// MovesToGo, when positive, is a hard cutoff (as in a classical
	// time-control period) the allocation divides the remaining bank by;
	// 0 means "assume the game continues indefinitely" and a fixed
	// divisor (EstimatedMovesLeft) is used instead.
	MovesToGo int
	// EstimatedMovesLeft is the fallback divisor when MovesToGo is unset.
	EstimatedMovesLeft int
	// MinTimeSeconds is a floor under tcMin regardless of the bank.
	MinTimeSeconds float64
	// RoundUpGranularitySeconds, when positive, rounds a computed limit up
	// to the next multiple, matching a controller that only checks the
	// clock at coarse ticks.
	RoundUpGranularitySeconds float64
	// UnlimitedThresholdSeconds marks the bank as "effectively unlimited"
	// once it exceeds this many seconds (e.g. an untimed correspondence
	// clock represented as a very large bank).
	UnlimitedThresholdSeconds float64
}

// NewBankTimeControls builds a controller with the teacher-style sensible
// defaults for the divisor/rounding knobs, leaving only the clock itself to
// be set by the caller.
func NewBankTimeControls(mainTimeSeconds, incrementSeconds float64, movesToGo int) *BankTimeControls {
	return &BankTimeControls{
		MainTimeSeconds:           mainTimeSeconds,
		IncrementSeconds:          incrementSeconds,
		MovesToGo:                 movesToGo,
		EstimatedMovesLeft:        30,
		MinTimeSeconds:            0.05,
		RoundUpGranularitySeconds: 0,
		UnlimitedThresholdSeconds: 1e6,
	}
}

func (tc *BankTimeControls) IsEffectivelyUnlimitedTime() bool {
	return tc.MainTimeSeconds >= tc.UnlimitedThresholdSeconds
}

// Recommend implements the bank/increment/moves-to-go allocation of
// Soomi.allocateTime: divide the bank (after reserving lagBuffer) by the
// moves remaining, add the increment back, and bound by a floor/ceiling so
// a single move never claims either too little or the whole clock.
func (tc *BankTimeControls) Recommend(board Board, history History, lagBuffer float64) (tcMin, tcRec, tcMax float64) {
	usable := tc.MainTimeSeconds - lagBuffer
	if usable < 0 {
		usable = 0
	}

	divisor := tc.EstimatedMovesLeft
	if tc.MovesToGo > 0 {
		divisor = tc.MovesToGo
	}
	if divisor < 1 {
		divisor = 1
	}

	tcRec = usable/float64(divisor) + tc.IncrementSeconds
	tcMin = tc.MinTimeSeconds
	if tcRec < tcMin {
		tcRec = tcMin
	}

	// A single move is never allowed to claim more than half of what is
	// left, so a mis-estimate of moves remaining cannot flash the clock.
	tcMax = usable*0.5 + tc.IncrementSeconds
	if tcMax < tcRec {
		tcMax = tcRec
	}
	return tcMin, tcRec, tcMax
}

func (tc *BankTimeControls) RoundUpTimeLimitIfNeeded(lagBuffer, timeUsed, tcRec float64) float64 {
	if tc.RoundUpGranularitySeconds > 0 {
		tcRec = math.Ceil(tcRec/tc.RoundUpGranularitySeconds) * tc.RoundUpGranularitySeconds
	}
	// Never plan to stop before lagBuffer has been accounted for against
	// time already spent.
	if floor := timeUsed + lagBuffer*0.01; tcRec < floor {
		tcRec = floor
	}
	return tcRec
}
