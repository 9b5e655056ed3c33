package handler

import (
	"strings"
	"time"

	"arbiter/internal/assessment"
	id "arbiter/pkg/domain"
	dErrors "arbiter/pkg/domain-errors"
)

// SubmitRequest is the HTTP request body for POST /v1/assessments.
// request_id is the caller's idempotency key; when omitted the service mints
// one and returns it in the response.
type SubmitRequest struct {
	SubjectID string         `json:"subject_id"`
	RequestID string         `json:"request_id,omitempty"`
	Invoice   InvoiceRequest `json:"invoice"`

	parsedSubjectID id.SubjectID
	parsedRequestID id.RequestID
	parsedCurrency  id.Currency
}

// InvoiceRequest carries the invoice facts under assessment.
type InvoiceRequest struct {
	Amount          float64   `json:"amount"`
	Currency        string    `json:"currency"`
	DueDate         time.Time `json:"due_date"`
	CounterpartyRef string    `json:"counterparty_ref,omitempty"`
	PaymentTerms    string    `json:"payment_terms,omitempty"`
}

// Prepare parses the identifier fields at the trust boundary. Amount and
// due-date invariants stay with the service, which owns the configured caps.
func (r *SubmitRequest) Prepare() error {
	r.SubjectID = strings.TrimSpace(r.SubjectID)
	if r.SubjectID == "" {
		return dErrors.New(dErrors.CodeValidation, "subject_id is required")
	}
	subjectID, err := id.ParseSubjectID(r.SubjectID)
	if err != nil {
		return err
	}
	r.parsedSubjectID = subjectID

	r.RequestID = strings.TrimSpace(r.RequestID)
	if r.RequestID == "" {
		r.parsedRequestID = id.NewRequestID()
	} else {
		requestID, err := id.ParseRequestID(r.RequestID)
		if err != nil {
			return err
		}
		r.parsedRequestID = requestID
	}

	currency, err := id.ParseCurrency(strings.TrimSpace(r.Invoice.Currency))
	if err != nil {
		return err
	}
	r.parsedCurrency = currency
	return nil
}

// ToDomain builds the domain request from the parsed fields.
func (r *SubmitRequest) ToDomain() assessment.AssessmentRequest {
	return assessment.AssessmentRequest{
		SubjectID: r.parsedSubjectID,
		RequestID: r.parsedRequestID,
		Invoice: assessment.InvoicePayload{
			Amount:          r.Invoice.Amount,
			Currency:        r.parsedCurrency,
			DueDate:         r.Invoice.DueDate,
			CounterpartyRef: strings.TrimSpace(r.Invoice.CounterpartyRef),
			PaymentTerms:    strings.TrimSpace(r.Invoice.PaymentTerms),
		},
	}
}
