package search

// SearchParams collects the tunable constants referenced across §4 and §9.
// It follows the teacher's Limits pattern: a plain value struct built by
// DefaultSearchParams and refined with chained SetX methods, rather than a
// config file — ownership of the wider engine config lives outside this
// package (§1).
type SearchParams struct {
	// PUCT / FPU (§4.F "Selection").
	CpuctBase    float64
	CpuctBase2   float64 // cpuctBase' in cpuct(W) = cpuctBase + cpuctLog*log((W+cpuctBase2)/cpuctBase2)
	CpuctLog     float64
	CpuctVarianceScale float64 // "scale" in stdevFactor
	FpuReductionMax    float64
	FpuLossProp        float64

	// Virtual loss.
	VirtualLossPerThread float64

	// Root noise/temperature (§4.H).
	RootNoiseEnabled     bool
	RootDirichletAlpha   float64
	RootDirichletWeight  float64
	RootPolicyTemperature float64
	RootPolicyTemperatureEarly float64
	RootHintLoc          Loc
	RootHintWeight       float64
	WideRootNoise        bool

	// Noise-pruning and value-weight downweighting (§4.F recomputeNodeStats).
	NoisePruneEnabled       bool
	NoisePruneScale         float64
	NoisePruneCap           float64
	NoisePruneLenientPolicyShare float64
	ValueWeightExponent     float64
	ValueWeightEnabled      bool
	AmountToSubtractAtRoot  float64
	AmountToPruneAtRoot     float64

	// Uncertainty-weighted own evaluation (§4.F recomputeNodeStats).
	UncertaintyWeightingEnabled bool
	UncertaintyCoeff            float64
	UncertaintyMaxWeight        float64
	UncertaintyWinlossFactor    float64
	UncertaintyDScoreUtilDScore float64

	// Subtree value bias (§4.D, §9, §12).
	SubtreeValueBiasFactor   float64
	SubtreeValueBiasWeightExp float64
	SubtreeValueBiasFreeProp  float64

	// Futile-visit pruning / graph search (§4.F, §4.G, §9). A trailing root
	// child only needs to reach FutileVisitsThreshold*maxEdgeVisits, not
	// full parity with the leader, to remain worth selecting.
	FutileVisitsThreshold      float64
	GraphSearchCatchUpLeakProb float64
	GraphSearchCatchUpProp     float64 // §9(ii): optional, numToAdd=1 by default when unset

	// Mirror-opponent heuristics (§4.H, §9(iii)); tunables kept exposed as
	// the spec requires rather than hardcoded.
	MirrorMinMatchProp       float64 // "0.75" style constant
	MirrorMinRecentMoves     int
	MirrorCenterErrorScale   float64 // "0.50" style constant

	// Score-value dynamic centering (§4.H step 3).
	DynamicScoreCenterZeroWeight float64
	DynamicScoreCenterScale      float64

	// Playout doubling advantage sign convention (§12).
	PlayoutDoublingAdvantage    float64
	PlayoutDoublingAdvantagePla PlayoutDoublingAdvantageMode

	// avoidMoveUntilByLoc gating (§12), indexed [ply][loc-bucket]; nil means
	// no gating for that color.
	AvoidMoveUntilByLocBlack [][]Loc
	AvoidMoveUntilByLocWhite [][]Loc

	// Graph search toggle (component C).
	GraphSearch GraphSearch

	// Time control post-pass discounts and search factor (§4.G).
	AfterOnePassFactor float64
	AfterTwoPassFactor float64
	SearchFactor       float64

	// recomputeSearchTimeLimit's midgame-peak curve (§4.G): turn number is
	// scaled by board area (via safeArea/361) and compared against
	// MidgameTurnPeakTime; before the peak, tcRec is scaled linearly up to
	// MidgameTimeFactor, after the peak it decays back toward 1 with time
	// constant EndgameTurnTimeDecay (also area-scaled). MidgameTimeFactor==1
	// disables the curve entirely.
	MidgameTurnPeakTime  float64
	EndgameTurnTimeDecay float64
	MidgameTimeFactor    float64

	// recomputeSearchTimeLimit's obvious-move shrink (§4.G): the smaller of
	// exp(-policyEntropy/tolerance) and exp(-surprise/tolerance) is treated
	// as an "obviousness" in [0,1], which interpolates tcRec toward
	// tcRec*ObviousMovesTimeFactor. ObviousMovesTimeFactor==1 disables it.
	ObviousMovesPolicyEntropyTolerance  float64
	ObviousMovesPolicySurpriseTolerance float64
	ObviousMovesTimeFactor              float64

	// LagBuffer is reserved network/GUI overhead time (seconds) never spent
	// thinking, passed through to TimeControls.Recommend (§4.G, §6).
	LagBuffer float64

	TreeReuseCarryOverTimeFactor float64
	// Overallocate multiplies tcRec once at the start of
	// recomputeSearchTimeLimit's curve, letting a caller trade a slightly
	// riskier clock for stronger per-move search (§4.G).
	Overallocate float64

	NumThreads int

	// Time/visit/playout caps (§4.G). Zero/non-positive means "no cap" for
	// that dimension; the supervisor stops on the first cap it hits.
	MaxVisits   int64
	MaxPlayouts int64
	MaxTimeSeconds float64

	// Pondering caps (§4.G): used instead of the above whenever
	// runWholeSearch is called with pondering==true, since a pondering
	// search has no clock of its own and needs its own bound.
	MaxVisitsPondering   int64
	MaxPlayoutsPondering int64
	MaxTimeSecondsPondering float64

	// PolicySize is the evaluator's fixed policy vector length (component B
	// capacity-ladder rung 2, "policy-size").
	PolicySize int
}

type PlayoutDoublingAdvantageMode int

const (
	PlayoutDoublingAdvantageFixed     PlayoutDoublingAdvantageMode = iota
	PlayoutDoublingAdvantageForRootPla
)

func DefaultSearchParams(policySize int) *SearchParams {
	return &SearchParams{
		CpuctBase:                  1.0,
		CpuctBase2:                 19652,
		CpuctLog:                   0.4,
		CpuctVarianceScale:         0.0,
		FpuReductionMax:            0.2,
		FpuLossProp:                0.0,
		VirtualLossPerThread:       1.0,
		RootNoiseEnabled:           false,
		RootDirichletAlpha:         0.03,
		RootDirichletWeight:        0.25,
		RootPolicyTemperature:      1.0,
		RootPolicyTemperatureEarly: 1.0,
		RootHintLoc:                NullLoc,
		RootHintWeight:             0,
		WideRootNoise:              false,
		NoisePruneEnabled:          true,
		NoisePruneScale:            0.02,
		NoisePruneCap:              1.0,
		NoisePruneLenientPolicyShare: 0.03,
		ValueWeightExponent:        0.25,
		ValueWeightEnabled:         true,
		UncertaintyWeightingEnabled: false,
		UncertaintyCoeff:           0.05,
		UncertaintyMaxWeight:       1e8,
		UncertaintyWinlossFactor:   1.0,
		UncertaintyDScoreUtilDScore: 0.5,
		SubtreeValueBiasFactor:     0.35,
		SubtreeValueBiasWeightExp:  0.85,
		SubtreeValueBiasFreeProp:   1.0,
		FutileVisitsThreshold:      0.03,
		GraphSearchCatchUpLeakProb: 0.0,
		GraphSearchCatchUpProp:     0.0,
		MirrorMinMatchProp:         0.75,
		MirrorMinRecentMoves:       6,
		MirrorCenterErrorScale:     0.50,
		DynamicScoreCenterZeroWeight: 0.2,
		DynamicScoreCenterScale:     0.75,
		PlayoutDoublingAdvantage:    0,
		PlayoutDoublingAdvantagePla: PlayoutDoublingAdvantageFixed,
		GraphSearch:                 GraphSearchOn,
		AfterOnePassFactor:          1.0,
		AfterTwoPassFactor:          1.0,
		SearchFactor:                1.0,
		MidgameTurnPeakTime:         40,
		EndgameTurnTimeDecay:        40,
		MidgameTimeFactor:           1.0,
		ObviousMovesPolicyEntropyTolerance:  0.30,
		ObviousMovesPolicySurpriseTolerance: 0.15,
		ObviousMovesTimeFactor:      1.0,
		LagBuffer:                   0.0,
		TreeReuseCarryOverTimeFactor: 0.5,
		Overallocate:                1.0,
		NumThreads:                  1,
		MaxVisits:                   0,
		MaxPlayouts:                 0,
		MaxTimeSeconds:              0,
		MaxVisitsPondering:          0,
		MaxPlayoutsPondering:        0,
		MaxTimeSecondsPondering:     0,
		PolicySize:                  policySize,
	}
}

func (p *SearchParams) SetNumThreads(n int) *SearchParams {
	if n < 1 {
		n = 1
	}
	p.NumThreads = n
	return p
}

func (p *SearchParams) SetRootNoise(enabled bool) *SearchParams {
	p.RootNoiseEnabled = enabled
	return p
}

func (p *SearchParams) SetGraphSearch(g GraphSearch) *SearchParams {
	p.GraphSearch = g
	return p
}

func (p *SearchParams) SetSearchFactor(f float64) *SearchParams {
	p.SearchFactor = f
	return p
}
