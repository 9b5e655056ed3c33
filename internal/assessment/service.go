package assessment

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"arbiter/internal/assessment/metrics"
	"arbiter/internal/events"
	"arbiter/internal/platform/config"
	id "arbiter/pkg/domain"
	dErrors "arbiter/pkg/domain-errors"
	"arbiter/pkg/requestcontext"
)

// Service coordinates one assessment end to end: gather factors in parallel,
// synthesize the verdict, attach the explanation, anchor it on the ledger,
// and archive the outcome. Duplicate request IDs are collapsed, concurrent
// ones onto the live run and later ones onto the archived copy.
type Service struct {
	cfg       SynthesisConfig
	maxAmount float64

	sources   []FactorSource
	recorder  LedgerRecorder
	explainer Explainer
	archive   Archive
	publisher EventPublisher

	inflight *inflightRegistry
	metrics  *metrics.Metrics
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewService wires the coordinator. Explainer and publisher may be nil; the
// service then skips explanations and lifecycle events.
func NewService(
	cfg config.Synthesis,
	sources []FactorSource,
	recorder LedgerRecorder,
	explainer Explainer,
	archive Archive,
	publisher EventPublisher,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Service {
	return &Service{
		cfg: SynthesisConfig{
			Weights: map[Factor]int{
				FactorIdentity: cfg.WeightIdentity,
				FactorCredit:   cfg.WeightCredit,
				FactorHistory:  cfg.WeightHistory,
				FactorMarket:   cfg.WeightMarket,
			},
			Thresholds:      cfg.Thresholds,
			ConfidenceFloor: cfg.ConfidenceFloor,
		},
		maxAmount: cfg.MaxAmount,
		sources:   sources,
		recorder:  recorder,
		explainer: explainer,
		archive:   archive,
		publisher: publisher,
		inflight:  newInflightRegistry(),
		metrics:   m,
		logger:    logger,
		tracer:    otel.Tracer("arbiter-assessment"),
	}
}

// Assess runs one assessment request through the pipeline. The request ID is
// the idempotency key: a concurrent duplicate attaches to the live run, a
// later duplicate is served from the archive without touching any source.
func (s *Service) Assess(ctx context.Context, req AssessmentRequest) (*RiskAssessment, error) {
	if err := req.Validate(s.maxAmount); err != nil {
		return nil, err
	}

	key := req.RequestID.String()
	run, owner := s.inflight.begin(key)
	if !owner {
		s.metrics.IncrementDedup()
		s.logger.DebugContext(ctx, "attached to in-flight assessment", slog.String("request_id", key))
		return s.inflight.wait(ctx, run)
	}
	result, err := s.run(ctx, req)
	s.inflight.finish(key, run, result, err)
	return result, err
}

func (s *Service) run(ctx context.Context, req AssessmentRequest) (*RiskAssessment, error) {
	release := s.metrics.TrackInFlight()
	defer release()
	start := time.Now()
	defer func() { s.metrics.ObserveAssessLatency(time.Since(start)) }()

	ctx, span := s.tracer.Start(ctx, "assessment.assess", trace.WithAttributes(
		attribute.String("request_id", req.RequestID.String()),
		attribute.String("subject_id", req.SubjectID.String()),
	))
	defer span.End()

	// A request that already ran is served from the archive.
	prior, err := s.archive.Get(ctx, req.RequestID)
	switch {
	case err == nil:
		s.metrics.IncrementDedup()
		return s.replay(ctx, prior)
	case !dErrors.HasCode(err, dErrors.CodeNotFound):
		s.logger.WarnContext(ctx, "archive lookup failed, running fresh",
			slog.String("request_id", req.RequestID.String()),
			slog.String("error", err.Error()))
	}

	s.publish(ctx, req.RequestID, req.SubjectID, events.StagePending, nil)
	s.publish(ctx, req.RequestID, req.SubjectID, events.StageGathering, map[string]string{
		"sources": strconv.Itoa(len(s.sources)),
	})

	gathered := s.gather(ctx, req)
	if err := ctx.Err(); err != nil {
		// The caller is gone; nothing gathered under a dead context is worth
		// synthesizing or archiving.
		s.publish(context.WithoutCancel(ctx), req.RequestID, req.SubjectID, events.StageFailed,
			map[string]string{"reason": "cancelled"})
		return nil, err
	}

	usable := 0
	for _, fa := range gathered {
		if fa.Usable() {
			usable++
		}
	}
	s.publish(ctx, req.RequestID, req.SubjectID, events.StageSynthesizing, map[string]string{
		"usable_factors": strconv.Itoa(usable),
	})

	_, synthSpan := s.tracer.Start(ctx, "assessment.synthesize")
	a, err := Synthesize(s.cfg, req, gathered, requestcontext.Now(ctx).UTC())
	if err != nil {
		synthSpan.RecordError(err)
	}
	synthSpan.End()
	if err != nil {
		// Failures are not archived: a resubmission with the same request ID
		// re-runs against sources that may have recovered.
		s.metrics.IncrementOutcome("insufficient_data", string(RecommendManualReview))
		s.publish(ctx, req.RequestID, req.SubjectID, events.StageFailed,
			map[string]string{"reason": "insufficient_data"})
		s.logger.WarnContext(ctx, "assessment failed, no usable factors",
			slog.String("request_id", req.RequestID.String()),
			slog.String("subject_id", req.SubjectID.String()))
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("composite_score", a.CompositeScore),
		attribute.String("category", string(a.Category)),
	)

	s.explain(ctx, a)

	// Recording and archival outlive a client disconnect: the verdict exists
	// once synthesis succeeds, whether or not anyone is still listening.
	rctx := context.WithoutCancel(ctx)
	s.publish(rctx, req.RequestID, req.SubjectID, events.StageRecording, nil)
	s.record(rctx, a)
	s.save(rctx, a)

	s.metrics.IncrementOutcome(string(a.Category), string(a.Recommendation))
	s.publish(rctx, req.RequestID, req.SubjectID, events.StageCompleted, completionDetail(a))
	s.logger.InfoContext(ctx, "assessment completed",
		slog.String("request_id", a.RequestID.String()),
		slog.String("subject_id", a.SubjectID.String()),
		slog.Int("composite_score", a.CompositeScore),
		slog.String("category", string(a.Category)),
		slog.String("recommendation", string(a.Recommendation)),
		slog.Bool("recorded", a.Recording.Recorded))
	return a, nil
}

// replay serves a duplicate submission from the archive. An archived run
// that never reached the ledger gets its recording retried; everything else
// is returned untouched.
func (s *Service) replay(ctx context.Context, prior *RiskAssessment) (*RiskAssessment, error) {
	if prior.Recording.Recorded {
		s.logger.DebugContext(ctx, "served archived assessment",
			slog.String("request_id", prior.RequestID.String()))
		return prior, nil
	}

	rctx := context.WithoutCancel(ctx)
	s.publish(rctx, prior.RequestID, prior.SubjectID, events.StageRecording,
		map[string]string{"replay": "true"})
	s.record(rctx, prior)
	s.save(rctx, prior)
	s.publish(rctx, prior.RequestID, prior.SubjectID, events.StageCompleted, completionDetail(prior))
	return prior, nil
}

// Get returns one archived assessment by request ID.
func (s *Service) Get(ctx context.Context, requestID id.RequestID) (*RiskAssessment, error) {
	return s.archive.Get(ctx, requestID)
}

// ListBySubject returns the archived assessments for a subject, newest first.
func (s *Service) ListBySubject(ctx context.Context, subjectID id.SubjectID, limit int) ([]*RiskAssessment, error) {
	return s.archive.ListBySubject(ctx, subjectID, limit)
}

func (s *Service) explain(ctx context.Context, a *RiskAssessment) {
	if s.explainer == nil {
		return
	}
	text, err := s.explainer.Explain(ctx, a)
	if err != nil {
		s.logger.WarnContext(ctx, "explanation generation failed",
			slog.String("request_id", a.RequestID.String()),
			slog.String("error", err.Error()))
		return
	}
	a.Explanation = text
}

func (s *Service) record(ctx context.Context, a *RiskAssessment) {
	ctx, span := s.tracer.Start(ctx, "assessment.record")
	defer span.End()

	ref, err := s.recorder.Record(ctx, a)
	if err != nil {
		span.RecordError(err)
		a.LedgerRef = ""
		a.Recording = RecordingStatus{Reason: recordingReason(err)}
		s.logger.WarnContext(ctx, "ledger recording failed",
			slog.String("request_id", a.RequestID.String()),
			slog.String("reason", a.Recording.Reason),
			slog.String("error", err.Error()))
		return
	}
	a.LedgerRef = ref
	a.Recording = RecordingStatus{Recorded: true}
}

func recordingReason(err error) string {
	switch {
	case dErrors.HasCode(err, dErrors.CodeConflict):
		return "rejected"
	case dErrors.HasCode(err, dErrors.CodeTimeout):
		return "ledger_timeout"
	default:
		return "ledger_unavailable"
	}
}

func (s *Service) save(ctx context.Context, a *RiskAssessment) {
	if err := s.archive.Save(ctx, a); err != nil {
		s.logger.ErrorContext(ctx, "archival failed",
			slog.String("request_id", a.RequestID.String()),
			slog.String("error", err.Error()))
	}
}

func (s *Service) publish(ctx context.Context, requestID id.RequestID, subjectID id.SubjectID, stage events.Stage, detail map[string]string) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(ctx, events.Event{
		RequestID: requestID.String(),
		SubjectID: subjectID.String(),
		Stage:     stage,
		At:        time.Now().UTC(),
		Detail:    detail,
	})
}

func completionDetail(a *RiskAssessment) map[string]string {
	return map[string]string{
		"composite_score": strconv.Itoa(a.CompositeScore),
		"category":        string(a.Category),
		"recommendation":  string(a.Recommendation),
		"recorded":        strconv.FormatBool(a.Recording.Recorded),
	}
}
