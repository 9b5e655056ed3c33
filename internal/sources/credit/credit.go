// Package credit scores the credit factor from a bureau report. Bureau
// scores on the 300-850 scale are banded into risk; payment behavior rides
// along as evidence.
package credit

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"arbiter/internal/assessment"
	"arbiter/internal/sources"
)

// ProviderID identifies this source in logs and evidence.
const ProviderID = "credit-bureau"

const (
	bureauScoreMin = 300
	bureauScoreMax = 850

	// defaultRisk stands in when the bureau omits the score entirely.
	defaultRisk       = 70.0
	defaultConfidence = 0.8
)

// Client queries the credit bureau over HTTP with a static API key.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{},
	}
}

func (c *Client) Factor() assessment.Factor { return assessment.FactorCredit }
func (c *Client) Name() string              { return ProviderID }

// Query fetches the subject's bureau report and normalizes it.
func (c *Client) Query(ctx context.Context, req assessment.AssessmentRequest) (assessment.FactorAssessment, error) {
	endpoint := fmt.Sprintf("%s/v2/reports/%s", c.baseURL, url.PathEscape(req.SubjectID.String()))
	headers := http.Header{"X-API-Key": []string{c.apiKey}}

	var resp reportResponse
	if err := sources.GetJSON(ctx, c.httpClient, ProviderID, endpoint, headers, &resp); err != nil {
		return assessment.FactorAssessment{}, err
	}
	return normalizeReport(resp, time.Now().UTC()), nil
}

// reportResponse is the bureau's wire format.
type reportResponse struct {
	SubjectID       string   `json:"subject_id"`
	BureauScore     *int     `json:"bureau_score"` // 300-850
	Rating          string   `json:"rating,omitempty"`
	OnTimeRate      *float64 `json:"on_time_rate,omitempty"`
	LatePayments12M *int     `json:"late_payments_12m,omitempty"`
	Confidence      *float64 `json:"confidence,omitempty"`
}

// bandBureauScore converts the 300-850 bureau scale into risk. The bands are
// coarse on purpose: bureau scores are ordinal, not linear.
func bandBureauScore(score int) float64 {
	switch {
	case score >= 750:
		return 10
	case score >= 700:
		return 20
	case score >= 650:
		return 35
	case score >= 600:
		return 50
	case score >= 550:
		return 70
	default:
		return 85
	}
}

// normalizeReport converts a bureau report into the factor model. A missing
// bureau score degrades the factor; an out-of-scale score is clamped into
// range and also degrades, since it means the bureau contract drifted.
func normalizeReport(resp reportResponse, now time.Time) assessment.FactorAssessment {
	status := assessment.StatusOk
	var evidence []assessment.EvidencePair

	var risk float64
	switch {
	case resp.BureauScore == nil:
		status = assessment.StatusDegraded
		risk = defaultRisk
		evidence = append(evidence, assessment.EvidencePair{Key: "warning", Value: "bureau_score missing from report"})
	default:
		score := *resp.BureauScore
		if score < bureauScoreMin || score > bureauScoreMax {
			status = assessment.StatusDegraded
			evidence = append(evidence, assessment.EvidencePair{Key: "warning", Value: fmt.Sprintf("bureau_score %d outside 300-850 scale", score)})
			if score < bureauScoreMin {
				score = bureauScoreMin
			} else {
				score = bureauScoreMax
			}
		}
		risk = bandBureauScore(score)
		evidence = append(evidence, assessment.EvidencePair{Key: "bureau_score", Value: strconv.Itoa(score)})
	}

	if resp.Rating != "" {
		evidence = append(evidence, assessment.EvidencePair{Key: "rating", Value: resp.Rating})
	}
	if resp.OnTimeRate != nil {
		evidence = append(evidence, assessment.EvidencePair{Key: "on_time_rate", Value: strconv.FormatFloat(*resp.OnTimeRate, 'f', 2, 64)})
	}
	if resp.LatePayments12M != nil {
		evidence = append(evidence, assessment.EvidencePair{Key: "late_payments_12m", Value: strconv.Itoa(*resp.LatePayments12M)})
	}

	confidence := defaultConfidence
	if resp.Confidence != nil {
		confidence = *resp.Confidence
	}

	return assessment.FactorAssessment{
		Factor:     assessment.FactorCredit,
		Score:      risk,
		Confidence: confidence,
		Evidence:   evidence,
		FetchedAt:  now,
		Status:     status,
	}
}
