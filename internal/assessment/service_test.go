package assessment

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arbiter/internal/events"
	"arbiter/internal/platform/config"
	id "arbiter/pkg/domain"
	dErrors "arbiter/pkg/domain-errors"
)

type stubSource struct {
	factor  Factor
	timeout time.Duration
	delay   time.Duration
	result  FactorAssessment
	calls   atomic.Int32
}

func (s *stubSource) Factor() Factor { return s.factor }

func (s *stubSource) Timeout() time.Duration {
	if s.timeout == 0 {
		return time.Second
	}
	return s.timeout
}

func (s *stubSource) Fetch(ctx context.Context, _ AssessmentRequest) FactorAssessment {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return UnavailableFactor(s.factor, "timeout", time.Now().UTC())
		}
	}
	return s.result
}

type stubRecorder struct {
	mu    sync.Mutex
	calls int
	ref   string
	err   error
}

func (r *stubRecorder) Record(_ context.Context, _ *RiskAssessment) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return "", r.err
	}
	if r.ref == "" {
		return "0xref", nil
	}
	return r.ref, nil
}

func (r *stubRecorder) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type stubExplainer struct {
	text string
	err  error
}

func (e *stubExplainer) Explain(_ context.Context, _ *RiskAssessment) (string, error) {
	return e.text, e.err
}

type fakeArchive struct {
	mu   sync.Mutex
	byID map[string]RiskAssessment
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{byID: make(map[string]RiskAssessment)}
}

func (f *fakeArchive) Save(_ context.Context, a *RiskAssessment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[a.RequestID.String()] = *a
	return nil
}

func (f *fakeArchive) Get(_ context.Context, requestID id.RequestID) (*RiskAssessment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.byID[requestID.String()]; ok {
		return &a, nil
	}
	return nil, dErrors.New(dErrors.CodeNotFound, "assessment not found")
}

func (f *fakeArchive) ListBySubject(_ context.Context, subjectID id.SubjectID, limit int) ([]*RiskAssessment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*RiskAssessment
	for _, a := range f.byID {
		if a.SubjectID == subjectID {
			cp := a
			out = append(out, &cp)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (e *eventRecorder) Publish(_ context.Context, ev events.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *eventRecorder) stages() []events.Stage {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]events.Stage, len(e.events))
	for i, ev := range e.events {
		out[i] = ev.Stage
	}
	return out
}

func (e *eventRecorder) last() events.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.events) == 0 {
		return events.Event{}
	}
	return e.events[len(e.events)-1]
}

func testSettings() config.Synthesis {
	return config.Synthesis{
		WeightIdentity:  15,
		WeightCredit:    40,
		WeightHistory:   25,
		WeightMarket:    20,
		Thresholds:      [4]int{20, 40, 60, 80},
		ConfidenceFloor: 0.5,
		MaxAmount:       1_000_000,
	}
}

func healthySources() []FactorSource {
	return []FactorSource{
		&stubSource{factor: FactorIdentity, result: factor(FactorIdentity, 20, 0.9, StatusOk)},
		&stubSource{factor: FactorCredit, result: factor(FactorCredit, 35, 0.9, StatusOk)},
		&stubSource{factor: FactorHistory, result: factor(FactorHistory, 10, 0.8, StatusOk)},
		&stubSource{factor: FactorMarket, result: factor(FactorMarket, 50, 0.7, StatusOk)},
	}
}

func newTestService(sources []FactorSource, rec LedgerRecorder, exp Explainer, arch Archive, pub EventPublisher) *Service {
	return NewService(testSettings(), sources, rec, exp, arch, pub,
		nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestService_AssessHappyPath(t *testing.T) {
	sources := healthySources()
	recorder := &stubRecorder{ref: "0xabc123"}
	archive := newFakeArchive()
	recorded := &eventRecorder{}
	svc := newTestService(sources, recorder, &stubExplainer{text: "Low risk."}, archive, recorded)

	req := testRequest()
	got, err := svc.Assess(context.Background(), req)
	require.NoError(t, err)

	// 0.15*20 + 0.40*35 + 0.25*10 + 0.20*50 = 29.5, rounds to 30.
	assert.Equal(t, 30, got.CompositeScore)
	assert.Equal(t, CategoryLow, got.Category)
	assert.Equal(t, RecommendApprove, got.Recommendation)
	assert.Equal(t, "Low risk.", got.Explanation)
	assert.Equal(t, "0xabc123", got.LedgerRef)
	assert.True(t, got.Recording.Recorded)
	assert.Empty(t, got.Omitted)
	assert.Equal(t, 1, recorder.callCount())

	assert.Equal(t, []events.Stage{
		events.StagePending,
		events.StageGathering,
		events.StageSynthesizing,
		events.StageRecording,
		events.StageCompleted,
	}, recorded.stages())
	assert.Equal(t, "true", recorded.last().Detail["recorded"])

	archived, err := archive.Get(context.Background(), req.RequestID)
	require.NoError(t, err)
	assert.True(t, archived.Recording.Recorded)
	assert.Equal(t, got.FactorDigest, archived.FactorDigest)
}

func TestService_ValidationRejects(t *testing.T) {
	recorder := &stubRecorder{}
	svc := newTestService(healthySources(), recorder, nil, newFakeArchive(), nil)

	req := testRequest()
	req.Invoice.Amount = 0
	_, err := svc.Assess(context.Background(), req)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	assert.Zero(t, recorder.callCount())
}

func TestService_InsufficientData(t *testing.T) {
	sources := []FactorSource{
		&stubSource{factor: FactorIdentity, result: UnavailableFactor(FactorIdentity, "provider_outage", testTime)},
		&stubSource{factor: FactorCredit, result: UnavailableFactor(FactorCredit, "timeout", testTime)},
		&stubSource{factor: FactorHistory, result: UnavailableFactor(FactorHistory, "provider_outage", testTime)},
		&stubSource{factor: FactorMarket, result: UnavailableFactor(FactorMarket, "timeout", testTime)},
	}
	recorder := &stubRecorder{}
	archive := newFakeArchive()
	recorded := &eventRecorder{}
	svc := newTestService(sources, recorder, nil, archive, recorded)

	req := testRequest()
	_, err := svc.Assess(context.Background(), req)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInsufficientData))

	var ins *InsufficientDataError
	require.ErrorAs(t, err, &ins)
	assert.Len(t, ins.Omitted, 4)

	assert.Zero(t, recorder.callCount())
	assert.Equal(t, events.StageFailed, recorded.last().Stage)
	assert.Equal(t, "insufficient_data", recorded.last().Detail["reason"])

	// Failures are not archived; a retry runs fresh.
	_, err = archive.Get(context.Background(), req.RequestID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestService_ArchivedReplayServes(t *testing.T) {
	sources := healthySources()
	recorder := &stubRecorder{}
	archive := newFakeArchive()
	svc := newTestService(sources, recorder, nil, archive, nil)

	req := testRequest()
	prior := &RiskAssessment{
		SubjectID:      req.SubjectID,
		RequestID:      req.RequestID,
		CompositeScore: 44,
		Category:       CategoryModerate,
		Confidence:     0.9,
		Recommendation: RecommendWithConditions,
		FactorDigest:   "feedface",
		CreatedAt:      testTime,
		LedgerRef:      "0xold",
		Recording:      RecordingStatus{Recorded: true},
	}
	require.NoError(t, archive.Save(context.Background(), prior))

	got, err := svc.Assess(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 44, got.CompositeScore)
	assert.Equal(t, "0xold", got.LedgerRef)
	assert.Zero(t, recorder.callCount())
	for _, src := range sources {
		assert.Zero(t, src.(*stubSource).calls.Load())
	}
}

func TestService_ReplayRetriesRecording(t *testing.T) {
	sources := healthySources()
	recorder := &stubRecorder{ref: "0xsecond"}
	archive := newFakeArchive()
	recorded := &eventRecorder{}
	svc := newTestService(sources, recorder, nil, archive, recorded)

	req := testRequest()
	prior := &RiskAssessment{
		SubjectID:      req.SubjectID,
		RequestID:      req.RequestID,
		CompositeScore: 44,
		Category:       CategoryModerate,
		Confidence:     0.9,
		Recommendation: RecommendWithConditions,
		FactorDigest:   "feedface",
		CreatedAt:      testTime,
		Recording:      RecordingStatus{Reason: "ledger_unavailable"},
	}
	require.NoError(t, archive.Save(context.Background(), prior))

	got, err := svc.Assess(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, got.Recording.Recorded)
	assert.Equal(t, "0xsecond", got.LedgerRef)
	assert.Equal(t, 1, recorder.callCount())
	for _, src := range sources {
		assert.Zero(t, src.(*stubSource).calls.Load())
	}

	assert.Equal(t, []events.Stage{events.StageRecording, events.StageCompleted}, recorded.stages())
	assert.Equal(t, "true", recorded.events[0].Detail["replay"])

	archivedCopy, err := archive.Get(context.Background(), req.RequestID)
	require.NoError(t, err)
	assert.True(t, archivedCopy.Recording.Recorded)
}

func TestService_RecordingFailureDoesNotFailAssessment(t *testing.T) {
	recorder := &stubRecorder{err: dErrors.New(dErrors.CodeUnavailable, "ledger down")}
	archive := newFakeArchive()
	svc := newTestService(healthySources(), recorder, nil, archive, nil)

	req := testRequest()
	got, err := svc.Assess(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, got.Recording.Recorded)
	assert.Equal(t, "ledger_unavailable", got.Recording.Reason)
	assert.Empty(t, got.LedgerRef)

	// The unrecorded outcome is still archived so a replay can fix it.
	archivedCopy, err := archive.Get(context.Background(), req.RequestID)
	require.NoError(t, err)
	assert.False(t, archivedCopy.Recording.Recorded)
}

func TestService_RejectedRecordingReason(t *testing.T) {
	recorder := &stubRecorder{err: dErrors.New(dErrors.CodeConflict, "ledger rejected submission")}
	svc := newTestService(healthySources(), recorder, nil, newFakeArchive(), nil)

	got, err := svc.Assess(context.Background(), testRequest())
	require.NoError(t, err)
	assert.False(t, got.Recording.Recorded)
	assert.Equal(t, "rejected", got.Recording.Reason)
}

func TestService_ExplainerFailureAbsorbed(t *testing.T) {
	svc := newTestService(healthySources(), &stubRecorder{},
		&stubExplainer{err: errors.New("model overloaded")}, newFakeArchive(), nil)

	got, err := svc.Assess(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Empty(t, got.Explanation)
	assert.True(t, got.Recording.Recorded)
}

func TestService_ConcurrentDuplicatesCollapse(t *testing.T) {
	sources := []FactorSource{
		&stubSource{factor: FactorIdentity, delay: 50 * time.Millisecond, result: factor(FactorIdentity, 20, 0.9, StatusOk)},
		&stubSource{factor: FactorCredit, delay: 50 * time.Millisecond, result: factor(FactorCredit, 35, 0.9, StatusOk)},
		&stubSource{factor: FactorHistory, delay: 50 * time.Millisecond, result: factor(FactorHistory, 10, 0.8, StatusOk)},
		&stubSource{factor: FactorMarket, delay: 50 * time.Millisecond, result: factor(FactorMarket, 50, 0.7, StatusOk)},
	}
	recorder := &stubRecorder{}
	svc := newTestService(sources, recorder, nil, newFakeArchive(), nil)

	req := testRequest()
	var wg sync.WaitGroup
	results := make([]*RiskAssessment, 2)
	errs := make([]error, 2)
	for i := range results {
		i := i // per-iteration copy; module targets go 1.21 loop semantics
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = svc.Assess(context.Background(), req)
		}()
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, results[0].FactorDigest, results[1].FactorDigest)
	assert.Equal(t, results[0].CreatedAt, results[1].CreatedAt)
	// One run served both callers: every source and the ledger saw one call.
	assert.Equal(t, 1, recorder.callCount())
	for _, src := range sources {
		assert.Equal(t, int32(1), src.(*stubSource).calls.Load())
	}
}

func TestService_CancelledCallerAbandonsRun(t *testing.T) {
	recorder := &stubRecorder{}
	archive := newFakeArchive()
	recorded := &eventRecorder{}
	svc := newTestService(healthySources(), recorder, nil, archive, recorded)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := testRequest()
	_, err := svc.Assess(ctx, req)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, recorder.callCount())
	assert.Equal(t, events.StageFailed, recorded.last().Stage)
	assert.Equal(t, "cancelled", recorded.last().Detail["reason"])

	_, err = archive.Get(context.Background(), req.RequestID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestService_StragglerMarkedUnavailable(t *testing.T) {
	sources := []FactorSource{
		&stubSource{factor: FactorIdentity, result: factor(FactorIdentity, 20, 0.9, StatusOk)},
		&stubSource{factor: FactorCredit, result: factor(FactorCredit, 35, 0.9, StatusOk)},
		&stubSource{factor: FactorHistory, result: factor(FactorHistory, 10, 0.8, StatusOk)},
		// Sleeps past its own budget; the gather pass must not wait for it.
		&stubSource{factor: FactorMarket, timeout: 30 * time.Millisecond, delay: 5 * time.Second,
			result: factor(FactorMarket, 50, 0.7, StatusOk)},
	}
	svc := newTestService(sources, &stubRecorder{}, nil, newFakeArchive(), nil)

	start := time.Now()
	got, err := svc.Assess(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	require.Len(t, got.Omitted, 1)
	assert.Equal(t, FactorMarket, got.Omitted[0].Factor)
	assert.Equal(t, "timeout", got.Omitted[0].Reason)
}

func TestService_GetAndListBySubject(t *testing.T) {
	archive := newFakeArchive()
	svc := newTestService(healthySources(), &stubRecorder{}, nil, archive, nil)

	req := testRequest()
	want, err := svc.Assess(context.Background(), req)
	require.NoError(t, err)

	got, err := svc.Get(context.Background(), req.RequestID)
	require.NoError(t, err)
	assert.Equal(t, want.FactorDigest, got.FactorDigest)

	list, err := svc.ListBySubject(context.Background(), req.SubjectID, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, want.RequestID, list[0].RequestID)

	_, err = svc.Get(context.Background(), id.NewRequestID())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}
