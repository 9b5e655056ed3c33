// Package storage persists completed assessments. The archive serves two
// jobs: idempotent replay (a resubmitted request ID returns the prior
// outcome) and the read API. Implementations are value-safe: callers may
// mutate what they get back without affecting the stored copy.
package storage

import (
	"context"

	"arbiter/internal/assessment"
	id "arbiter/pkg/domain"
)

// ArchiveStore is implemented by the in-memory archive and the Postgres
// archive. Save upserts on request ID.
type ArchiveStore interface {
	Save(ctx context.Context, a *assessment.RiskAssessment) error
	Get(ctx context.Context, requestID id.RequestID) (*assessment.RiskAssessment, error)
	ListBySubject(ctx context.Context, subjectID id.SubjectID, limit int) ([]*assessment.RiskAssessment, error)
}
