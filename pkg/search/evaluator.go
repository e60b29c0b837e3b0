package search

import "context"

// EvalParams mirrors §6's evaluate() inputParams. The evaluator external
// collaborator interprets these; the search core only sets and forwards
// them.
type EvalParams struct {
	DrawEquivalentWinsForWhite float64
	ConservativePass           bool
	NNPolicyTemperature        float64
	AvoidMYTDaggerHack         bool
	PlayoutDoublingAdvantage   float64
	Symmetry                   int
}

// EvalResult is the external evaluator's per-position output (§6). Fields
// are populated by the caller's Evaluator implementation; NoisedPolicyProbs
// is the one field the search core itself ever writes, when building a
// root-noised extension of an otherwise-immutable result (§4.H).
type EvalResult struct {
	PolicyProbs []float64 // length PolicySize; negative entries are illegal moves
	PolicySize  int

	WhiteWinProb     float64
	WhiteLossProb    float64
	WhiteNoResultProb float64
	WhiteScoreMean   float64
	WhiteScoreMeanSq float64
	WhiteLead        float64

	WhiteOwnerMap []float64 // optional, length PolicySize, nil if not requested

	ShorttermWinlossError float64
	ShorttermScoreError   float64

	NNHash Hash128

	NoisedPolicyProbs []float64 // nil until root preparation builds one (§4.H)
}

// Clone makes a value-independent copy suitable for the mutation root
// preparation performs when building a noised policy (§4.H: "clone and
// build it").
func (r *EvalResult) Clone() *EvalResult {
	c := *r
	c.PolicyProbs = append([]float64(nil), r.PolicyProbs...)
	if r.WhiteOwnerMap != nil {
		c.WhiteOwnerMap = append([]float64(nil), r.WhiteOwnerMap...)
	}
	c.NoisedPolicyProbs = nil
	return &c
}

// nnOutputHandle is the atomic owning handle to a shared immutable
// evaluator result mentioned in §3. It is never mutated once published;
// installing a noised-policy extension replaces the whole handle rather
// than writing into the pointed-to EvalResult (§3 invariant).
type nnOutputHandle struct {
	result *EvalResult
	// generation marks which searchNodeAge the noise/temperature mixing in
	// this handle was computed for, so playoutDescend step 4 knows whether
	// to recompute it (§4.F step 4, "once per search age").
	generation int64
}

// Evaluator is the external neural network collaborator (§6). Implementers
// may block on a GPU batch; the search core treats that as an ordinary
// blocking call (§5 suspension point 1).
type Evaluator interface {
	Evaluate(ctx context.Context, board Board, history History, pla Player, params EvalParams, resultBuf *EvalResult, skipCache, includeOwnerMap bool) error
	PolicySize() int
}

// ScoreUtility is the external numerical-helpers collaborator (§1: "the
// score-value / utility numerical helpers beyond their contracts" are out
// of scope). The search core only ever calls through this contract; it
// never computes expectedWhiteScoreValue or utility-from-winloss itself.
type ScoreUtility interface {
	// ExpectedWhiteScoreValue maps a score distribution (mean, stdev) plus
	// a dynamic center/scale into a value in [-1, 1] from White's
	// perspective, used by both backup and reporting.
	ExpectedWhiteScoreValue(mean, stdev, center, scale float64) float64

	// Utility combines winloss/noresult/score components (already
	// oriented to the player whose utility is being computed) into the
	// single scalar the PUCT selection formula compares.
	Utility(winLossValue, scoreValue, noResultValue float64) float64
}
