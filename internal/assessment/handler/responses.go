package handler

import (
	"time"

	"arbiter/internal/assessment"
)

// AssessmentResponse is the HTTP shape of one completed assessment. Factors
// are a list in fixed factor order rather than a map, so clients and humans
// always see the same layout.
type AssessmentResponse struct {
	SubjectID      string            `json:"subject_id"`
	RequestID      string            `json:"request_id"`
	CompositeScore int               `json:"composite_score"`
	Category       string            `json:"category"`
	Confidence     float64           `json:"confidence"`
	Recommendation string            `json:"recommendation"`
	Explanation    string            `json:"explanation,omitempty"`
	Terms          TermsResponse     `json:"terms"`
	Factors        []FactorResponse  `json:"factors"`
	Omitted        []OmittedResponse `json:"omitted,omitempty"`
	FactorDigest   string            `json:"factor_digest"`
	LedgerRef      string            `json:"ledger_ref,omitempty"`
	Recording      RecordingResponse `json:"recording"`
	CreatedAt      time.Time         `json:"created_at"`
}

// FactorResponse is one factor's verdict with its evidence in source order.
type FactorResponse struct {
	Factor     string         `json:"factor"`
	Score      float64        `json:"score"`
	Confidence float64        `json:"confidence"`
	Status     string         `json:"status"`
	Evidence   []EvidencePair `json:"evidence,omitempty"`
	FetchedAt  time.Time      `json:"fetched_at"`
}

// EvidencePair is one key/value observation backing a factor score.
type EvidencePair struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// OmittedResponse names a factor excluded from synthesis and why.
type OmittedResponse struct {
	Factor string `json:"factor"`
	Reason string `json:"reason"`
}

// TermsResponse carries the suggested financing terms.
type TermsResponse struct {
	InterestRatePct   float64 `json:"interest_rate_pct"`
	AdvanceRatePct    int     `json:"advance_rate_pct"`
	CreditLimit       float64 `json:"credit_limit"`
	RequireCollateral bool    `json:"require_collateral"`
}

// RecordingResponse reports whether the assessment reached the ledger.
type RecordingResponse struct {
	Recorded bool   `json:"recorded"`
	Reason   string `json:"reason,omitempty"`
}

// ListResponse wraps GET /v1/subjects/{subjectID}/assessments.
type ListResponse struct {
	SubjectID   string               `json:"subject_id"`
	Assessments []AssessmentResponse `json:"assessments"`
}

// FromAssessment converts a domain assessment to its HTTP shape.
func FromAssessment(a *assessment.RiskAssessment) AssessmentResponse {
	resp := AssessmentResponse{
		SubjectID:      a.SubjectID.String(),
		RequestID:      a.RequestID.String(),
		CompositeScore: a.CompositeScore,
		Category:       string(a.Category),
		Confidence:     a.Confidence,
		Recommendation: string(a.Recommendation),
		Explanation:    a.Explanation,
		Terms: TermsResponse{
			InterestRatePct:   a.Terms.InterestRatePct,
			AdvanceRatePct:    a.Terms.AdvanceRatePct,
			CreditLimit:       a.Terms.CreditLimit,
			RequireCollateral: a.Terms.RequireCollateral,
		},
		FactorDigest: a.FactorDigest,
		LedgerRef:    a.LedgerRef,
		Recording: RecordingResponse{
			Recorded: a.Recording.Recorded,
			Reason:   a.Recording.Reason,
		},
		CreatedAt: a.CreatedAt,
	}
	for _, f := range assessment.AllFactors {
		fa, ok := a.Factors[f]
		if !ok {
			continue
		}
		resp.Factors = append(resp.Factors, fromFactor(fa))
	}
	for _, om := range a.Omitted {
		resp.Omitted = append(resp.Omitted, OmittedResponse{
			Factor: string(om.Factor),
			Reason: om.Reason,
		})
	}
	return resp
}

func fromFactor(fa assessment.FactorAssessment) FactorResponse {
	out := FactorResponse{
		Factor:     string(fa.Factor),
		Score:      fa.Score,
		Confidence: fa.Confidence,
		Status:     string(fa.Status),
		FetchedAt:  fa.FetchedAt,
	}
	for _, ev := range fa.Evidence {
		out.Evidence = append(out.Evidence, EvidencePair{Key: ev.Key, Value: ev.Value})
	}
	return out
}

// insufficientDataResponse extends the standard error envelope with the
// factors that were attempted, so the reviewer sees what the verdict could
// not be based on.
type insufficientDataResponse struct {
	Error            string            `json:"error"`
	ErrorDescription string            `json:"error_description"`
	Omitted          []OmittedResponse `json:"omitted"`
}

func fromInsufficientData(e *assessment.InsufficientDataError) insufficientDataResponse {
	resp := insufficientDataResponse{
		Error:            "insufficient_data",
		ErrorDescription: "no risk factor produced usable data; route to manual review",
	}
	for _, om := range e.Omitted {
		resp.Omitted = append(resp.Omitted, OmittedResponse{
			Factor: string(om.Factor),
			Reason: om.Reason,
		})
	}
	return resp
}
