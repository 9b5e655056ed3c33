package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"arbiter/internal/assessment"
	"arbiter/internal/ledger/metrics"
	"arbiter/internal/ledger/store"
	"arbiter/internal/platform/config"
	dErrors "arbiter/pkg/domain-errors"
	"arbiter/pkg/platform/backoff"
)

const (
	defaultSubmitAttempts = 5
	defaultSubmitBackoff  = 200 * time.Millisecond
	submitBackoffCap      = 5 * time.Second
)

// Recorder writes completed assessments to the ledger exactly once per
// request ID. It consults the reference store and then the ledger itself
// before submitting, and retries transient submit failures with jittered
// backoff. A failed recording never discards the assessment; the caller
// keeps the score and marks it unrecorded.
type Recorder struct {
	client  Client
	refs    store.ReferenceStore
	policy  backoff.Policy
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewRecorder builds a recorder over the given ledger client and reference
// store.
func NewRecorder(client Client, refs store.ReferenceStore, cfg config.Ledger, m *metrics.Metrics, logger *slog.Logger) *Recorder {
	attempts := cfg.SubmitAttempts
	if attempts <= 0 {
		attempts = defaultSubmitAttempts
	}
	base := cfg.SubmitBackoff
	if base <= 0 {
		base = defaultSubmitBackoff
	}
	return &Recorder{
		client: client,
		refs:   refs,
		policy: backoff.Policy{
			Attempts: attempts,
			Base:     base,
			Cap:      submitBackoffCap,
		},
		logger:  logger,
		metrics: m,
	}
}

func submissionFrom(a *assessment.RiskAssessment) Submission {
	return Submission{
		RequestID:      a.RequestID.String(),
		SubjectID:      a.SubjectID.String(),
		CompositeScore: a.CompositeScore,
		Category:       string(a.Category),
		Recommendation: string(a.Recommendation),
		Confidence:     a.Confidence,
		FactorDigest:   a.FactorDigest,
		AssessedAt:     a.CreatedAt,
	}
}

func retryableSubmit(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrTimeout)
}

// Record submits the assessment and returns its ledger reference. Calling
// Record again with the same request ID returns the original reference
// without a second submission. Errors carry domain codes: conflict for a
// rejection, timeout or unavailable for exhausted transient failures.
func (r *Recorder) Record(ctx context.Context, a *assessment.RiskAssessment) (string, error) {
	requestID := a.RequestID.String()
	start := time.Now()
	defer func() { r.metrics.ObserveLatency(time.Since(start)) }()

	if ref, err := r.refs.Find(ctx, requestID); err == nil {
		r.metrics.IncrementOutcome("deduped")
		return ref.Ref, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		r.logger.WarnContext(ctx, "reference store lookup failed",
			"request_id", requestID,
			"error", err,
		)
	}

	if ref, err := r.client.Lookup(ctx, requestID); err == nil {
		r.saveReference(ctx, ref)
		r.metrics.IncrementOutcome("deduped")
		return ref.Ref, nil
	} else if !errors.Is(err, ErrNotFound) {
		r.logger.WarnContext(ctx, "ledger lookup failed, proceeding to submit",
			"request_id", requestID,
			"error", err,
		)
	}

	sub := submissionFrom(a)
	attempts := 0
	ref, err := backoff.Retry(ctx, r.policy, retryableSubmit, func() (Reference, error) {
		attempts++
		return r.client.Submit(ctx, sub)
	})
	r.metrics.ObserveAttempts(attempts)
	if err != nil {
		return "", r.classify(ctx, requestID, attempts, err)
	}

	r.saveReference(ctx, ref)
	r.metrics.IncrementOutcome("recorded")
	r.logger.InfoContext(ctx, "assessment recorded",
		"request_id", requestID,
		"ledger_ref", ref.Ref,
		"attempts", attempts,
	)
	return ref.Ref, nil
}

func (r *Recorder) classify(ctx context.Context, requestID string, attempts int, err error) error {
	switch {
	case errors.Is(err, ErrRejected):
		r.metrics.IncrementOutcome("rejected")
		r.logger.ErrorContext(ctx, "ledger rejected submission",
			"request_id", requestID,
			"error", err,
		)
		return dErrors.Wrap(err, dErrors.CodeConflict, "ledger rejected the submission")
	case errors.Is(err, ErrTimeout):
		r.metrics.IncrementOutcome("unavailable")
		return dErrors.Wrap(err, dErrors.CodeTimeout, fmt.Sprintf("ledger timed out after %d attempts", attempts))
	default:
		r.metrics.IncrementOutcome("unavailable")
		r.logger.ErrorContext(ctx, "ledger unavailable, assessment left unrecorded",
			"request_id", requestID,
			"attempts", attempts,
			"error", err,
		)
		return dErrors.Wrap(err, dErrors.CodeUnavailable, fmt.Sprintf("ledger unavailable after %d attempts", attempts))
	}
}

// saveReference is best-effort: a store write failure only costs a future
// dedup shortcut, the ledger itself still deduplicates.
func (r *Recorder) saveReference(ctx context.Context, ref Reference) {
	if err := r.refs.Save(ctx, ref); err != nil {
		r.logger.WarnContext(ctx, "failed to store ledger reference",
			"request_id", ref.RequestID,
			"error", err,
		)
	}
}
