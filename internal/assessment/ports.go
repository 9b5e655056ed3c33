package assessment

import (
	"context"

	"arbiter/internal/events"
	id "arbiter/pkg/domain"
)

// LedgerRecorder anchors a completed assessment on the external ledger and
// returns the ledger reference. Implementations own their retry policy;
// a returned error is final for this attempt.
type LedgerRecorder interface {
	Record(ctx context.Context, a *RiskAssessment) (string, error)
}

// Explainer turns a completed assessment into a short narrative for the
// financing desk. Failures are absorbed: an assessment without an
// explanation is still served.
type Explainer interface {
	Explain(ctx context.Context, a *RiskAssessment) (string, error)
}

// Archive persists completed assessments for idempotent replay and the read
// API. Save upserts: recording a previously unrecorded assessment overwrites
// the archived copy.
//
// Get returns a CodeNotFound-coded error when the request was never archived.
type Archive interface {
	Save(ctx context.Context, a *RiskAssessment) error
	Get(ctx context.Context, requestID id.RequestID) (*RiskAssessment, error)
	ListBySubject(ctx context.Context, subjectID id.SubjectID, limit int) ([]*RiskAssessment, error)
}

// EventPublisher fans lifecycle events out to in-process subscribers and any
// configured external sink. Publish never blocks the assessment pipeline.
type EventPublisher interface {
	Publish(ctx context.Context, e events.Event)
}
