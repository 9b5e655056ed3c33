package assessment

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// FactorSource delivers one factor's assessment. Implementations absorb
// their own failures: Fetch never errors, an unusable source reports an
// Unavailable factor with the reason in evidence.
type FactorSource interface {
	Factor() Factor
	Timeout() time.Duration
	Fetch(ctx context.Context, req AssessmentRequest) FactorAssessment
}

// gatherDeadline is the overall budget for one gathering pass: the slowest
// source's own timeout. Faster sources finish earlier on their per-call
// timeouts; nothing is allowed to outlive the slowest.
func gatherDeadline(sources []FactorSource) time.Duration {
	var max time.Duration
	for _, src := range sources {
		if t := src.Timeout(); t > max {
			max = t
		}
	}
	if max <= 0 {
		max = 30 * time.Second
	}
	return max
}

// gather fans out to every source in parallel and collects one assessment
// per factor, returned in AllFactors order. Sources that miss the deadline
// are marked Unavailable; their late results are discarded with the run.
func (s *Service) gather(ctx context.Context, req AssessmentRequest) []FactorAssessment {
	ctx, span := s.tracer.Start(ctx, "assessment.gather",
		trace.WithAttributes(attribute.Int("sources", len(s.sources))))
	defer span.End()

	gctx, cancel := context.WithTimeout(ctx, gatherDeadline(s.sources))
	defer cancel()

	g, fctx := errgroup.WithContext(gctx)
	results := make(chan FactorAssessment, len(s.sources))
	for _, src := range s.sources {
		src := src // per-iteration copy; module targets go 1.21 loop semantics
		g.Go(func() error {
			sctx, fspan := s.tracer.Start(fctx, "assessment.factor",
				trace.WithAttributes(attribute.String("factor", string(src.Factor()))))
			start := time.Now()
			fa := src.Fetch(sctx, req)
			s.metrics.ObserveFactorLatency(string(src.Factor()), string(fa.Status), time.Since(start))
			fspan.SetAttributes(attribute.String("status", string(fa.Status)))
			fspan.End()
			results <- fa
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-gctx.Done():
	}

	gathered := make(map[Factor]FactorAssessment, len(s.sources))
	for {
		select {
		case fa := <-results:
			gathered[fa.Factor] = fa
			continue
		default:
		}
		break
	}

	// Whatever has not reported by now is a straggler.
	if len(gathered) < len(s.sources) {
		reason := "timeout"
		if errors.Is(gctx.Err(), context.Canceled) {
			reason = "cancelled"
		}
		now := time.Now().UTC()
		for _, src := range s.sources {
			if _, ok := gathered[src.Factor()]; !ok {
				gathered[src.Factor()] = UnavailableFactor(src.Factor(), reason, now)
			}
		}
	}

	out := make([]FactorAssessment, 0, len(gathered))
	for _, f := range AllFactors {
		if fa, ok := gathered[f]; ok {
			out = append(out, fa)
		}
	}
	span.SetAttributes(attribute.Int("gathered", len(out)))
	return out
}
