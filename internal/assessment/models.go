// Package assessment implements the invoice risk-synthesis engine: the data
// model, the pure scoring rules, and the coordinator that drives gathering,
// synthesis, and ledger recording for each assessment request.
package assessment

import (
	"time"

	id "arbiter/pkg/domain"
	dErrors "arbiter/pkg/domain-errors"
)

// Factor identifies one risk dimension consulted during synthesis.
type Factor string

const (
	FactorIdentity Factor = "identity"
	FactorCredit   Factor = "credit"
	FactorMarket   Factor = "market"
	FactorHistory  Factor = "history"
)

// AllFactors fixes the iteration order for every loop that touches factor
// maps. Synthesis must be deterministic, so nothing may range over a map.
var AllFactors = [4]Factor{FactorIdentity, FactorCredit, FactorMarket, FactorHistory}

// FactorStatus describes how much to trust one factor's data.
type FactorStatus string

const (
	// StatusOk means fresh, complete data.
	StatusOk FactorStatus = "ok"
	// StatusDegraded means usable data with caveats (stale, partial, or
	// schema drift); it still enters the weighted sum.
	StatusDegraded FactorStatus = "degraded"
	// StatusUnavailable means the source produced nothing usable. The factor
	// is excluded from synthesis and its weight redistributed.
	StatusUnavailable FactorStatus = "unavailable"
)

// EvidencePair is one key/value observation backing a factor score.
// Evidence is an ordered sequence, not a map: reviewers see the entries in
// the order the source reported them.
type EvidencePair struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// FactorAssessment is the normalized verdict of one source about one factor.
type FactorAssessment struct {
	Factor     Factor         `json:"factor"`
	Score      float64        `json:"score"`      // [0,100]; higher is riskier
	Confidence float64        `json:"confidence"` // [0,1]
	Evidence   []EvidencePair `json:"evidence,omitempty"`
	FetchedAt  time.Time      `json:"fetched_at"`
	Status     FactorStatus   `json:"status"`
}

// Usable reports whether the factor may enter the weighted sum.
func (fa FactorAssessment) Usable() bool {
	return fa.Status == StatusOk || fa.Status == StatusDegraded
}

// UnavailableFactor builds the placeholder recorded when a source fails.
// Score and confidence are zero and must never be read; the reason lives in
// the evidence for the audit trail.
func UnavailableFactor(factor Factor, reason string, at time.Time) FactorAssessment {
	return FactorAssessment{
		Factor:    factor,
		Evidence:  []EvidencePair{{Key: "reason", Value: reason}},
		FetchedAt: at,
		Status:    StatusUnavailable,
	}
}

// UnavailableReason extracts the failure reason from an unavailable factor.
func (fa FactorAssessment) UnavailableReason() string {
	for _, ev := range fa.Evidence {
		if ev.Key == "reason" {
			return ev.Value
		}
	}
	return "unknown"
}

// RiskCategory is the coarse bucket derived from the composite score.
type RiskCategory string

const (
	CategoryVeryLow  RiskCategory = "very_low"
	CategoryLow      RiskCategory = "low"
	CategoryModerate RiskCategory = "moderate"
	CategoryHigh     RiskCategory = "high"
	CategoryVeryHigh RiskCategory = "very_high"
)

// Recommendation is the action the engine suggests to the financing desk.
type Recommendation string

const (
	RecommendApprove        Recommendation = "approve"
	RecommendWithConditions Recommendation = "approve_with_conditions"
	RecommendManualReview   Recommendation = "manual_review"
	RecommendReject         Recommendation = "reject"
)

// OmittedFactor records a factor excluded from synthesis and why, so a
// reviewer can see what the composite score is not based on.
type OmittedFactor struct {
	Factor Factor `json:"factor"`
	Reason string `json:"reason"`
}

// RecordingStatus tracks whether the assessment reached the ledger.
type RecordingStatus struct {
	Recorded bool `json:"recorded"`
	// Reason explains an unrecorded assessment (ledger outage, rejection).
	Reason string `json:"reason,omitempty"`
}

// SuggestedTerms are the financing terms derived from the composite score.
type SuggestedTerms struct {
	InterestRatePct   float64 `json:"interest_rate_pct"`
	AdvanceRatePct    int     `json:"advance_rate_pct"`
	CreditLimit       float64 `json:"credit_limit"`
	RequireCollateral bool    `json:"require_collateral"`
}

// RiskAssessment is the immutable outcome of one assessment request. The
// only post-creation write is LedgerRef/Recording once the ledger
// acknowledges the submission.
type RiskAssessment struct {
	SubjectID id.SubjectID `json:"subject_id"`
	RequestID id.RequestID `json:"request_id"`

	// Factors holds exactly the usable (ok or degraded) set.
	Factors map[Factor]FactorAssessment `json:"factors"`
	// Omitted lists the unavailable factors with reasons, in AllFactors order.
	Omitted []OmittedFactor `json:"omitted,omitempty"`

	CompositeScore int            `json:"composite_score"` // [0,100]
	Category       RiskCategory   `json:"category"`
	Confidence     float64        `json:"confidence"` // [0,1]
	Recommendation Recommendation `json:"recommendation"`
	Explanation    string         `json:"explanation,omitempty"`
	Terms          SuggestedTerms `json:"terms"`

	// FactorDigest is the canonical SHA-256 of the usable factor set,
	// submitted to the ledger for tamper evidence.
	FactorDigest string    `json:"factor_digest"`
	CreatedAt    time.Time `json:"created_at"`

	LedgerRef string          `json:"ledger_ref,omitempty"`
	Recording RecordingStatus `json:"recording"`
}

// InvoicePayload carries the invoice facts submitted for assessment.
type InvoicePayload struct {
	Amount          float64     `json:"amount"`
	Currency        id.Currency `json:"currency"`
	DueDate         time.Time   `json:"due_date"`
	CounterpartyRef string      `json:"counterparty_ref,omitempty"`
	PaymentTerms    string      `json:"payment_terms,omitempty"`
}

// AssessmentRequest is one request to assess an invoice. RequestID is the
// idempotency key: resubmitting the same ID returns the prior result.
type AssessmentRequest struct {
	SubjectID id.SubjectID   `json:"subject_id"`
	RequestID id.RequestID   `json:"request_id"`
	Invoice   InvoicePayload `json:"invoice"`
}

// NewRequest builds an assessment request with a fresh request ID from raw
// inputs, parsing them at this trust boundary. Callers supplying their own
// idempotency key overwrite RequestID afterwards.
func NewRequest(subjectID string, amount float64, currency string, dueDate time.Time) (AssessmentRequest, error) {
	sid, err := id.ParseSubjectID(subjectID)
	if err != nil {
		return AssessmentRequest{}, err
	}
	cur, err := id.ParseCurrency(currency)
	if err != nil {
		return AssessmentRequest{}, err
	}
	return AssessmentRequest{
		SubjectID: sid,
		RequestID: id.NewRequestID(),
		Invoice: InvoicePayload{
			Amount:   amount,
			Currency: cur,
			DueDate:  dueDate,
		},
	}, nil
}

// Validate enforces the request invariants before any source is contacted.
func (r AssessmentRequest) Validate(maxAmount float64) error {
	if r.SubjectID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "subject_id is required")
	}
	if r.RequestID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "request_id is required")
	}
	if r.Invoice.Amount <= 0 {
		return dErrors.New(dErrors.CodeValidation, "invoice amount must be positive")
	}
	if r.Invoice.Amount > maxAmount {
		return dErrors.New(dErrors.CodeValidation, "invoice amount exceeds the configured maximum")
	}
	if r.Invoice.Currency.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "invoice currency is required")
	}
	if r.Invoice.DueDate.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "invoice due date is required")
	}
	return nil
}
