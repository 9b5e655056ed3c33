// Package ledger records completed assessments on an external ledger and
// reads prior settlement history back from it. The ledger is the system of
// record for tamper evidence: each submission carries the assessment's
// factor digest and is content-addressed by a Keccak-256 hash.
package ledger

//go:generate mockgen -source=ledger.go -destination=mocks/mocks.go -package=mocks Client

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/sha3"

	"arbiter/internal/ledger/store"
)

// Sentinel errors returned by Client implementations. Unavailable and
// timeout are transient and safe to retry; a rejection is the ledger's final
// word on a submission.
var (
	ErrUnavailable = errors.New("ledger unavailable")
	ErrTimeout     = errors.New("ledger timed out")
	ErrRejected    = errors.New("ledger rejected the submission")
	ErrNotFound    = errors.New("no ledger record for request")
)

// Submission is the tamper-evident summary of one assessment. It carries the
// factor digest rather than raw factor data: the ledger proves what the
// engine concluded, not what the bureaus reported.
type Submission struct {
	RequestID      string    `json:"request_id"`
	SubjectID      string    `json:"subject_id"`
	CompositeScore int       `json:"composite_score"`
	Category       string    `json:"category"`
	Recommendation string    `json:"recommendation"`
	Confidence     float64   `json:"confidence"`
	FactorDigest   string    `json:"factor_digest"`
	AssessedAt     time.Time `json:"assessed_at"`
}

// Hash content-addresses the submission with Keccak-256, the digest family
// of the target chain.
func (s Submission) Hash() string {
	h := sha3.NewLegacyKeccak256()
	fmt.Fprintf(h, "%s\x1f%s\x1f%d\x1f%s\x1f%s\x1f%.4f\x1f%s\x1f%d",
		s.RequestID, s.SubjectID, s.CompositeScore, s.Category,
		s.Recommendation, s.Confidence, s.FactorDigest, s.AssessedAt.UTC().UnixNano())
	return "0x" + hex.EncodeToString(h.Sum(nil))
}

// Reference is the ledger's acknowledgment of a recorded submission. The
// struct is declared in the store subpackage to avoid an import cycle; this
// alias preserves the ledger.Reference name with identical type identity.
type Reference = store.Reference

// Settlement is one historical invoice outcome read back from the ledger.
// The history factor derives its score from these.
type Settlement struct {
	SubjectID  string    `json:"subject_id"`
	InvoiceRef string    `json:"invoice_ref"`
	Amount     float64   `json:"amount"`
	Currency   string    `json:"currency"`
	DueDate    time.Time `json:"due_date"`
	SettledAt  time.Time `json:"settled_at"`
	OnTime     bool      `json:"on_time"`
}

// Client talks to one ledger backend.
type Client interface {
	// Submit records a submission and returns its reference. Submitting the
	// same request ID twice returns the original reference.
	Submit(ctx context.Context, sub Submission) (Reference, error)

	// Lookup returns the reference for a previously recorded request, or
	// ErrNotFound.
	Lookup(ctx context.Context, requestID string) (Reference, error)

	// Settlements lists a subject's settled invoices, newest first.
	Settlements(ctx context.Context, subjectID string) ([]Settlement, error)
}
