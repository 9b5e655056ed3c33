package assessment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "arbiter/pkg/domain"
	dErrors "arbiter/pkg/domain-errors"
)

var testTime = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func testRequest() AssessmentRequest {
	return AssessmentRequest{
		SubjectID: id.SubjectID("INV-2026-00117"),
		RequestID: id.RequestID{0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88, 0x99, 0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff, 0x01},
		Invoice: InvoicePayload{
			Amount:   50_000,
			Currency: id.Currency("USD"),
			DueDate:  testTime.AddDate(0, 2, 0),
		},
	}
}

func factor(f Factor, score, confidence float64, status FactorStatus) FactorAssessment {
	return FactorAssessment{
		Factor:     f,
		Score:      score,
		Confidence: confidence,
		Evidence:   []EvidencePair{{Key: "source", Value: string(f)}},
		FetchedAt:  testTime,
		Status:     status,
	}
}

// TestSynthesize_DegradedSourceScenario encodes the canonical walkthrough:
// identity 90/0.9, credit 95/0.95, market 80/0.8, history unavailable.
// Weights renormalize over 75 points, the composite lands on exactly 90,
// and a single missing factor does not force manual review.
func TestSynthesize_DegradedSourceScenario(t *testing.T) {
	cfg := DefaultSynthesisConfig()
	gathered := []FactorAssessment{
		factor(FactorIdentity, 90, 0.9, StatusOk),
		factor(FactorCredit, 95, 0.95, StatusOk),
		factor(FactorMarket, 80, 0.8, StatusOk),
		UnavailableFactor(FactorHistory, "ledger timeout", testTime),
	}

	result, err := Synthesize(cfg, testRequest(), gathered, testTime)
	require.NoError(t, err)

	assert.Equal(t, 90, result.CompositeScore)
	assert.Equal(t, CategoryVeryHigh, result.Category)
	assert.Equal(t, RecommendReject, result.Recommendation)
	assert.InDelta(t, 0.9, result.Confidence, 1e-9)

	require.Len(t, result.Omitted, 1)
	assert.Equal(t, FactorHistory, result.Omitted[0].Factor)
	assert.Equal(t, "ledger timeout", result.Omitted[0].Reason)

	require.Len(t, result.Factors, 3)
	_, hasHistory := result.Factors[FactorHistory]
	assert.False(t, hasHistory, "unavailable factors must not enter the result set")
}

// TestSynthesize_Deterministic verifies the core reproducibility property:
// identical inputs yield identical assessments, including the digest.
func TestSynthesize_Deterministic(t *testing.T) {
	cfg := DefaultSynthesisConfig()
	gathered := []FactorAssessment{
		factor(FactorIdentity, 33, 0.7, StatusOk),
		factor(FactorCredit, 48, 0.9, StatusDegraded),
		factor(FactorMarket, 55, 0.6, StatusOk),
		factor(FactorHistory, 20, 0.4, StatusOk),
	}

	first, err := Synthesize(cfg, testRequest(), gathered, testTime)
	require.NoError(t, err)
	second, err := Synthesize(cfg, testRequest(), gathered, testTime)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestSynthesize_WeightRenormalization(t *testing.T) {
	cfg := DefaultSynthesisConfig()

	t.Run("single usable factor carries full weight", func(t *testing.T) {
		gathered := []FactorAssessment{
			factor(FactorCredit, 73, 0.8, StatusOk),
			UnavailableFactor(FactorIdentity, "outage", testTime),
			UnavailableFactor(FactorMarket, "outage", testTime),
			UnavailableFactor(FactorHistory, "outage", testTime),
		}

		result, err := Synthesize(cfg, testRequest(), gathered, testTime)
		require.NoError(t, err)

		assert.Equal(t, 73, result.CompositeScore, "one factor at weight 1.0 passes its score through")
		assert.InDelta(t, 0.8, result.Confidence, 1e-9)
	})

	t.Run("two usable factors split weight 40:25", func(t *testing.T) {
		gathered := []FactorAssessment{
			factor(FactorCredit, 100, 1.0, StatusOk),
			factor(FactorHistory, 0, 1.0, StatusOk),
		}

		result, err := Synthesize(cfg, testRequest(), gathered, testTime)
		require.NoError(t, err)

		// 100*(40/65) + 0*(25/65) = 61.54 -> 62
		assert.Equal(t, 62, result.CompositeScore)
	})

	t.Run("all four usable reproduces configured weighting", func(t *testing.T) {
		gathered := []FactorAssessment{
			factor(FactorIdentity, 100, 1.0, StatusOk),
			factor(FactorCredit, 0, 1.0, StatusOk),
			factor(FactorMarket, 0, 1.0, StatusOk),
			factor(FactorHistory, 0, 1.0, StatusOk),
		}

		result, err := Synthesize(cfg, testRequest(), gathered, testTime)
		require.NoError(t, err)

		assert.Equal(t, 15, result.CompositeScore, "identity alone at 100 contributes its 15%")
	})
}

func TestSynthesize_InsufficientData(t *testing.T) {
	cfg := DefaultSynthesisConfig()

	t.Run("all factors unavailable", func(t *testing.T) {
		gathered := []FactorAssessment{
			UnavailableFactor(FactorIdentity, "timeout", testTime),
			UnavailableFactor(FactorCredit, "outage", testTime),
			UnavailableFactor(FactorMarket, "circuit_open", testTime),
			UnavailableFactor(FactorHistory, "no data", testTime),
		}

		_, err := Synthesize(cfg, testRequest(), gathered, testTime)
		require.Error(t, err)

		var insErr *InsufficientDataError
		require.ErrorAs(t, err, &insErr)
		assert.Len(t, insErr.Omitted, 4)
		assert.Len(t, insErr.Partial, 4, "partial evidence must survive for the audit trail")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInsufficientData))
	})

	t.Run("no factors at all", func(t *testing.T) {
		_, err := Synthesize(cfg, testRequest(), nil, testTime)
		require.Error(t, err)

		var insErr *InsufficientDataError
		require.ErrorAs(t, err, &insErr)
		assert.Len(t, insErr.Omitted, 4)
	})

	t.Run("usable factors with zero configured weight", func(t *testing.T) {
		cfg := DefaultSynthesisConfig()
		cfg.Weights = map[Factor]int{
			FactorIdentity: 0,
			FactorCredit:   50,
			FactorMarket:   50,
			FactorHistory:  0,
		}
		gathered := []FactorAssessment{
			factor(FactorIdentity, 40, 0.9, StatusOk),
		}

		_, err := Synthesize(cfg, testRequest(), gathered, testTime)
		require.Error(t, err, "zero total weight cannot be renormalized")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInsufficientData))
	})
}

func TestSynthesize_ManualReviewOverrides(t *testing.T) {
	cfg := DefaultSynthesisConfig()

	t.Run("more than one missing factor forces review", func(t *testing.T) {
		gathered := []FactorAssessment{
			factor(FactorCredit, 10, 1.0, StatusOk),
			factor(FactorHistory, 10, 1.0, StatusOk),
		}

		result, err := Synthesize(cfg, testRequest(), gathered, testTime)
		require.NoError(t, err)

		assert.Equal(t, CategoryVeryLow, result.Category, "category still reflects the score")
		assert.Equal(t, RecommendManualReview, result.Recommendation,
			"two missing factors override an approve-grade score")
	})

	t.Run("low aggregate confidence forces review", func(t *testing.T) {
		gathered := []FactorAssessment{
			factor(FactorIdentity, 15, 0.4, StatusDegraded),
			factor(FactorCredit, 15, 0.45, StatusDegraded),
			factor(FactorMarket, 15, 0.5, StatusDegraded),
			factor(FactorHistory, 15, 0.3, StatusDegraded),
		}

		result, err := Synthesize(cfg, testRequest(), gathered, testTime)
		require.NoError(t, err)

		assert.Less(t, result.Confidence, cfg.ConfidenceFloor)
		assert.Equal(t, RecommendManualReview, result.Recommendation)
	})

	t.Run("one missing with solid confidence keeps category recommendation", func(t *testing.T) {
		gathered := []FactorAssessment{
			factor(FactorIdentity, 10, 0.9, StatusOk),
			factor(FactorCredit, 10, 0.9, StatusOk),
			factor(FactorMarket, 10, 0.9, StatusOk),
		}

		result, err := Synthesize(cfg, testRequest(), gathered, testTime)
		require.NoError(t, err)

		assert.Equal(t, RecommendApprove, result.Recommendation)
	})
}

// TestSynthesize_CategoryBoundaries pins the threshold semantics: bounds are
// exclusive upper limits, so a score equal to a threshold lands in the next
// bucket up.
func TestSynthesize_CategoryBoundaries(t *testing.T) {
	cfg := DefaultSynthesisConfig()

	tests := []struct {
		score    float64
		category RiskCategory
		rec      Recommendation
	}{
		{0, CategoryVeryLow, RecommendApprove},
		{19, CategoryVeryLow, RecommendApprove},
		{20, CategoryLow, RecommendApprove},
		{39, CategoryLow, RecommendApprove},
		{40, CategoryModerate, RecommendWithConditions},
		{59, CategoryModerate, RecommendWithConditions},
		{60, CategoryHigh, RecommendManualReview},
		{79, CategoryHigh, RecommendManualReview},
		{80, CategoryVeryHigh, RecommendReject},
		{100, CategoryVeryHigh, RecommendReject},
	}

	for _, tt := range tests {
		gathered := []FactorAssessment{
			factor(FactorIdentity, tt.score, 1.0, StatusOk),
			factor(FactorCredit, tt.score, 1.0, StatusOk),
			factor(FactorMarket, tt.score, 1.0, StatusOk),
			factor(FactorHistory, tt.score, 1.0, StatusOk),
		}

		result, err := Synthesize(cfg, testRequest(), gathered, testTime)
		require.NoError(t, err)

		assert.Equal(t, int(tt.score), result.CompositeScore)
		assert.Equal(t, tt.category, result.Category, "score %v", tt.score)
		assert.Equal(t, tt.rec, result.Recommendation, "score %v", tt.score)
	}
}

func TestSynthesize_DegradedCountsAsUsable(t *testing.T) {
	cfg := DefaultSynthesisConfig()
	gathered := []FactorAssessment{
		factor(FactorIdentity, 50, 0.8, StatusOk),
		factor(FactorCredit, 50, 0.8, StatusDegraded),
		factor(FactorMarket, 50, 0.8, StatusOk),
		factor(FactorHistory, 50, 0.8, StatusDegraded),
	}

	result, err := Synthesize(cfg, testRequest(), gathered, testTime)
	require.NoError(t, err)

	assert.Len(t, result.Factors, 4)
	assert.Empty(t, result.Omitted)
	assert.Equal(t, 50, result.CompositeScore)
}

func TestSynthesize_ResultBounds(t *testing.T) {
	cfg := DefaultSynthesisConfig()

	// Scores outside [0,100] should never arrive from adapters, but the
	// composite must stay clamped even if one slips through.
	gathered := []FactorAssessment{
		factor(FactorIdentity, 140, 1.0, StatusOk),
		factor(FactorCredit, 130, 1.0, StatusOk),
		factor(FactorMarket, 120, 1.0, StatusOk),
		factor(FactorHistory, 150, 1.0, StatusOk),
	}

	result, err := Synthesize(cfg, testRequest(), gathered, testTime)
	require.NoError(t, err)
	assert.Equal(t, 100, result.CompositeScore)

	gathered = []FactorAssessment{
		factor(FactorIdentity, -30, 0, StatusOk),
		factor(FactorCredit, -10, 0, StatusOk),
	}
	result, err = Synthesize(cfg, testRequest(), gathered, testTime)
	require.NoError(t, err)
	assert.Equal(t, 0, result.CompositeScore)
	assert.GreaterOrEqual(t, result.Confidence, 0.0)
}

func TestSynthesize_OmittedKeepsFactorOrder(t *testing.T) {
	cfg := DefaultSynthesisConfig()
	gathered := []FactorAssessment{
		UnavailableFactor(FactorHistory, "h", testTime),
		UnavailableFactor(FactorIdentity, "i", testTime),
		factor(FactorCredit, 50, 0.9, StatusOk),
		UnavailableFactor(FactorMarket, "m", testTime),
	}

	result, err := Synthesize(cfg, testRequest(), gathered, testTime)
	require.NoError(t, err)

	require.Len(t, result.Omitted, 3)
	assert.Equal(t, FactorIdentity, result.Omitted[0].Factor)
	assert.Equal(t, FactorMarket, result.Omitted[1].Factor)
	assert.Equal(t, FactorHistory, result.Omitted[2].Factor)
}

func TestSynthesize_DuplicateFactorKeepsLast(t *testing.T) {
	cfg := DefaultSynthesisConfig()
	gathered := []FactorAssessment{
		factor(FactorCredit, 10, 0.5, StatusOk),
		factor(FactorCredit, 90, 0.9, StatusOk),
	}

	result, err := Synthesize(cfg, testRequest(), gathered, testTime)
	require.NoError(t, err)

	assert.Equal(t, 90, result.CompositeScore)
}

func TestSynthesize_ConfidenceRounding(t *testing.T) {
	cfg := DefaultSynthesisConfig()
	gathered := []FactorAssessment{
		factor(FactorIdentity, 50, 0.333333333, StatusOk),
		factor(FactorCredit, 50, 0.666666666, StatusOk),
		factor(FactorMarket, 50, 0.123456789, StatusOk),
		factor(FactorHistory, 50, 0.987654321, StatusOk),
	}

	result, err := Synthesize(cfg, testRequest(), gathered, testTime)
	require.NoError(t, err)

	// 0.15*0.333333333 + 0.40*0.666666666 + 0.20*0.123456789 + 0.25*0.987654321
	// = 0.58827... which rounds to 0.5883 at four decimals.
	assert.Equal(t, 0.5883, result.Confidence)
}
