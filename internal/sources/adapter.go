package sources

import (
	"context"
	"log/slog"
	"time"

	"arbiter/internal/assessment"
	"arbiter/internal/platform/config"
	"arbiter/pkg/platform/backoff"
	"arbiter/pkg/platform/circuit"
)

const (
	defaultQueryTimeout = 30 * time.Second

	// Retry pacing between attempts against the same provider. The per-call
	// timeout and the coordinator's gather deadline bound the total, so the
	// cap stays short.
	retryBase = 200 * time.Millisecond
	retryCap  = 2 * time.Second
)

// ReasonCircuitOpen marks factors skipped because the provider's breaker is
// open.
const ReasonCircuitOpen = "circuit_open"

// Adapter wraps one Provider with the call policy shared by every factor
// source: a hard per-call timeout, bounded retries with jittered backoff for
// transient failures only, and a consecutive-failure circuit breaker. Fetch
// never returns an error; any failure collapses to an Unavailable factor
// whose evidence carries the reason.
type Adapter struct {
	provider Provider
	timeout  time.Duration
	retry    backoff.Policy
	breaker  *circuit.Breaker
	logger   *slog.Logger
}

// NewAdapter builds the adapter for one provider from its source settings.
func NewAdapter(provider Provider, cfg config.SourceSettings, logger *slog.Logger) *Adapter {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultQueryTimeout
	}
	retries := cfg.Retries
	if retries < 0 {
		retries = 0
	}
	return &Adapter{
		provider: provider,
		timeout:  timeout,
		retry: backoff.Policy{
			Attempts: 1 + retries,
			Base:     retryBase,
			Cap:      retryCap,
		},
		breaker: circuit.New(provider.Name()),
		logger:  logger,
	}
}

// Factor identifies the risk dimension this adapter serves.
func (a *Adapter) Factor() assessment.Factor {
	return a.provider.Factor()
}

// Timeout is the per-call ceiling for this source. The coordinator derives
// its gather deadline from the largest timeout across adapters.
func (a *Adapter) Timeout() time.Duration {
	return a.timeout
}

// Fetch queries the provider under the adapter's policy. It always returns a
// factor assessment: on success the provider's normalized verdict, on any
// failure an Unavailable placeholder naming the reason.
func (a *Adapter) Fetch(ctx context.Context, req assessment.AssessmentRequest) assessment.FactorAssessment {
	factor := a.provider.Factor()

	if !a.breaker.Allow() {
		a.logger.WarnContext(ctx, "factor source short-circuited",
			"factor", factor,
			"provider", a.provider.Name(),
		)
		return assessment.UnavailableFactor(factor, ReasonCircuitOpen, time.Now().UTC())
	}

	fa, err := backoff.Retry(ctx, a.retry, IsRetryable, func() (assessment.FactorAssessment, error) {
		qctx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()
		return a.provider.Query(qctx, req)
	})
	if err != nil {
		if _, change := a.breaker.RecordFailure(); change.Opened {
			a.logger.ErrorContext(ctx, "factor source circuit opened",
				"factor", factor,
				"provider", a.provider.Name(),
			)
		}
		reason := FailureReason(err)
		a.logger.WarnContext(ctx, "factor source unavailable",
			"factor", factor,
			"provider", a.provider.Name(),
			"reason", reason,
			"error", err,
		)
		return assessment.UnavailableFactor(factor, reason, time.Now().UTC())
	}

	if _, change := a.breaker.RecordSuccess(); change.Closed {
		a.logger.InfoContext(ctx, "factor source circuit closed",
			"factor", factor,
			"provider", a.provider.Name(),
		)
	}
	return a.normalize(ctx, fa)
}

// normalize enforces the factor contract on whatever the provider returned.
// A provider answering for the wrong factor is a contract violation and
// yields an Unavailable placeholder; out-of-range numbers are clamped.
func (a *Adapter) normalize(ctx context.Context, fa assessment.FactorAssessment) assessment.FactorAssessment {
	if fa.Factor != a.provider.Factor() {
		a.logger.ErrorContext(ctx, "provider answered for wrong factor",
			"want", a.provider.Factor(),
			"got", fa.Factor,
			"provider", a.provider.Name(),
		)
		return assessment.UnavailableFactor(a.provider.Factor(), string(ErrorContractMismatch), time.Now().UTC())
	}
	if fa.FetchedAt.IsZero() {
		fa.FetchedAt = time.Now().UTC()
	}
	if fa.Status == "" {
		fa.Status = assessment.StatusOk
	}
	if fa.Status != assessment.StatusUnavailable {
		fa.Score = clamp(fa.Score, 0, 100)
		fa.Confidence = clamp(fa.Confidence, 0, 1)
	}
	return fa
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
