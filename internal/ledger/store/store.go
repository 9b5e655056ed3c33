// Package store persists the request ID to ledger reference mapping that
// keeps recording idempotent across retries and process restarts.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no reference is stored for a request ID.
var ErrNotFound = errors.New("no stored reference")

// Reference is the ledger's acknowledgment of a recorded submission. It is
// declared here so both this package and package ledger can share it without
// an import cycle; package ledger re-exports it as ledger.Reference.
type Reference struct {
	Ref        string    `json:"ref"`
	RequestID  string    `json:"request_id"`
	RecordedAt time.Time `json:"recorded_at"`
}

// ReferenceStore caches ledger references by request ID. The recorder
// consults it before touching the ledger; a miss here is never fatal because
// the ledger itself is still checked.
type ReferenceStore interface {
	Save(ctx context.Context, ref Reference) error
	Find(ctx context.Context, requestID string) (Reference, error)
}
