package assessment

import (
	"math"
	"time"
)

// SynthesisConfig holds the aggregation tunables. DefaultSynthesisConfig
// matches the production weighting; deployments override via configuration.
type SynthesisConfig struct {
	// Weights in percent per factor. Must sum to 100 across AllFactors.
	Weights map[Factor]int
	// Thresholds are the upper bounds (exclusive) for very_low, low,
	// moderate, and high. Scores at or above the last bound are very_high.
	Thresholds [4]int
	// ConfidenceFloor forces manual review when the aggregate confidence
	// falls below it.
	ConfidenceFloor float64
}

// DefaultSynthesisConfig returns the standard weighting: credit history
// dominates, identity anchors the floor.
func DefaultSynthesisConfig() SynthesisConfig {
	return SynthesisConfig{
		Weights: map[Factor]int{
			FactorIdentity: 15,
			FactorCredit:   40,
			FactorHistory:  25,
			FactorMarket:   20,
		},
		Thresholds:      [4]int{20, 40, 60, 80},
		ConfidenceFloor: 0.5,
	}
}

// confidenceDecimals bounds aggregate-confidence precision so equal inputs
// always produce byte-equal archived assessments.
const confidenceDecimals = 4

// Synthesize folds the gathered factor assessments into one RiskAssessment.
// Pure domain logic: no I/O, no randomness, iteration in AllFactors order.
// Identical inputs produce identical output except CreatedAt, which is
// whatever now the caller passes.
//
// Returns *InsufficientDataError when no factor is usable.
func Synthesize(cfg SynthesisConfig, req AssessmentRequest, gathered []FactorAssessment, now time.Time) (*RiskAssessment, error) {
	// Index by factor; a duplicate report for the same factor keeps the last
	// entry, matching the gather loop which emits at most one per factor.
	byFactor := make(map[Factor]FactorAssessment, len(gathered))
	for _, fa := range gathered {
		byFactor[fa.Factor] = fa
	}

	usable := make(map[Factor]FactorAssessment, len(AllFactors))
	var omitted []OmittedFactor
	for _, f := range AllFactors {
		fa, ok := byFactor[f]
		switch {
		case !ok:
			omitted = append(omitted, OmittedFactor{Factor: f, Reason: "no result from source"})
		case fa.Usable():
			usable[f] = fa
		default:
			omitted = append(omitted, OmittedFactor{Factor: f, Reason: fa.UnavailableReason()})
		}
	}

	totalWeight := 0
	for _, f := range AllFactors {
		if _, ok := usable[f]; ok {
			totalWeight += cfg.Weights[f]
		}
	}
	if len(usable) == 0 || totalWeight == 0 {
		return nil, &InsufficientDataError{
			RequestID: req.RequestID,
			SubjectID: req.SubjectID,
			Omitted:   omitted,
			Partial:   gathered,
		}
	}

	// Renormalize the configured weights over the usable set so the
	// composite stays on the [0,100] scale no matter which sources reported.
	var composite, aggConfidence float64
	for _, f := range AllFactors {
		fa, ok := usable[f]
		if !ok {
			continue
		}
		effective := float64(cfg.Weights[f]) / float64(totalWeight)
		composite += effective * fa.Score
		aggConfidence += effective * fa.Confidence
	}

	score := clampScore(int(math.Round(composite)))
	aggConfidence = roundTo(aggConfidence, confidenceDecimals)

	category := categorize(cfg.Thresholds, score)
	recommendation := recommend(category)
	// Thin evidence forces a human decision regardless of the score.
	if len(omitted) > 1 || aggConfidence < cfg.ConfidenceFloor {
		recommendation = RecommendManualReview
	}

	return &RiskAssessment{
		SubjectID:      req.SubjectID,
		RequestID:      req.RequestID,
		Factors:        usable,
		Omitted:        omitted,
		CompositeScore: score,
		Category:       category,
		Confidence:     aggConfidence,
		Recommendation: recommendation,
		Terms:          SuggestTerms(score, req.Invoice),
		FactorDigest:   FactorDigest(usable),
		CreatedAt:      now,
	}, nil
}

func categorize(thresholds [4]int, score int) RiskCategory {
	switch {
	case score < thresholds[0]:
		return CategoryVeryLow
	case score < thresholds[1]:
		return CategoryLow
	case score < thresholds[2]:
		return CategoryModerate
	case score < thresholds[3]:
		return CategoryHigh
	default:
		return CategoryVeryHigh
	}
}

func recommend(category RiskCategory) Recommendation {
	switch category {
	case CategoryVeryLow, CategoryLow:
		return RecommendApprove
	case CategoryModerate:
		return RecommendWithConditions
	case CategoryHigh:
		return RecommendManualReview
	default:
		return RecommendReject
	}
}

func clampScore(s int) int {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}

func roundTo(v float64, decimals int) float64 {
	shift := math.Pow(10, float64(decimals))
	return math.Round(v*shift) / shift
}
