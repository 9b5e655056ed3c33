// Package history scores the history factor from the subject's own
// settlement record on the ledger. There is no external bureau here: the
// ledger the engine writes to is also the source it reads from.
package history

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"arbiter/internal/assessment"
	"arbiter/internal/ledger"
	"arbiter/internal/sources"
)

// ProviderID identifies this source in logs and evidence.
const ProviderID = "ledger-history"

const (
	// Cold-start subjects get a neutral score at low confidence: no history
	// must not read as verified-bad, and must not read as trusted either.
	coldStartScore      = 50.0
	coldStartConfidence = 0.3

	// fullConfidenceAt is the sample count at which confidence reaches 1.
	fullConfidenceAt = 10
)

// SettlementReader is the slice of the ledger the resolver needs.
type SettlementReader interface {
	Settlements(ctx context.Context, subjectID string) ([]ledger.Settlement, error)
}

// Resolver derives the history factor from prior settlements. Risk is the
// amount-weighted late rate: paying a large invoice late moves the score
// more than paying a small one late.
type Resolver struct {
	reader SettlementReader
}

// NewResolver builds a resolver over the given ledger reader.
func NewResolver(reader SettlementReader) *Resolver {
	return &Resolver{reader: reader}
}

func (r *Resolver) Factor() assessment.Factor { return assessment.FactorHistory }
func (r *Resolver) Name() string              { return ProviderID }

// Query resolves the subject's settlement history into a factor assessment.
func (r *Resolver) Query(ctx context.Context, req assessment.AssessmentRequest) (assessment.FactorAssessment, error) {
	settlements, err := r.reader.Settlements(ctx, req.SubjectID.String())
	if err != nil {
		return assessment.FactorAssessment{}, mapLedgerError(err)
	}
	return resolve(settlements, time.Now().UTC()), nil
}

func mapLedgerError(err error) error {
	switch {
	case errors.Is(err, ledger.ErrTimeout):
		return sources.NewProviderError(sources.ErrorTimeout, ProviderID, "settlement lookup timed out", err)
	case errors.Is(err, ledger.ErrUnavailable):
		return sources.NewProviderError(sources.ErrorProviderOutage, ProviderID, "ledger unavailable", err)
	default:
		return sources.NewProviderError(sources.ErrorInternal, ProviderID, "settlement lookup failed", err)
	}
}

// resolve turns a settlement list into the history factor.
func resolve(settlements []ledger.Settlement, now time.Time) assessment.FactorAssessment {
	if len(settlements) == 0 {
		return assessment.FactorAssessment{
			Factor:     assessment.FactorHistory,
			Score:      coldStartScore,
			Confidence: coldStartConfidence,
			Evidence: []assessment.EvidencePair{
				{Key: "sample_count", Value: "0"},
				{Key: "note", Value: "no settlement history for subject"},
			},
			FetchedAt: now,
			Status:    assessment.StatusDegraded,
		}
	}

	var totalAmount, onTimeAmount float64
	var onTimeCount int
	var lastSettled time.Time
	for _, s := range settlements {
		amount := s.Amount
		if amount < 0 {
			amount = 0
		}
		totalAmount += amount
		if s.OnTime {
			onTimeAmount += amount
			onTimeCount++
		}
		if s.SettledAt.After(lastSettled) {
			lastSettled = s.SettledAt
		}
	}

	// Weight by amount; fall back to a plain count rate when the ledger
	// reports no amounts.
	var onTimeRate float64
	if totalAmount > 0 {
		onTimeRate = onTimeAmount / totalAmount
	} else {
		onTimeRate = float64(onTimeCount) / float64(len(settlements))
	}

	confidence := float64(len(settlements)) / fullConfidenceAt
	if confidence > 1 {
		confidence = 1
	}

	return assessment.FactorAssessment{
		Factor:     assessment.FactorHistory,
		Score:      (1 - onTimeRate) * 100,
		Confidence: confidence,
		Evidence: []assessment.EvidencePair{
			{Key: "sample_count", Value: strconv.Itoa(len(settlements))},
			{Key: "on_time_rate", Value: fmt.Sprintf("%.4f", onTimeRate)},
			{Key: "weighted_by", Value: weightBasis(totalAmount)},
			{Key: "last_settled_at", Value: lastSettled.UTC().Format(time.RFC3339)},
		},
		FetchedAt: now,
		Status:    assessment.StatusOk,
	}
}

func weightBasis(totalAmount float64) string {
	if totalAmount > 0 {
		return "amount"
	}
	return "count"
}
