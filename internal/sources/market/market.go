// Package market scores the market factor from a sector intelligence feed.
// A neutral base is adjusted for sector growth, volatility, economic
// outlook, and geographic risk.
package market

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
const ProviderID = "market-intel"

const (
	baseRisk = 50.0

	// defaultRisk stands in when the feed returns no usable signals at all.
	defaultRisk       = 60.0
	defaultConfidence = 0.75

	// geoRiskWeight scales how far geographic risk can move the score:
	// 0.3 maps the full 0-100 geo scale onto a +/-15 adjustment.
	geoRiskWeight = 0.3
)

// Client queries the market intelligence feed over HTTP with a static API
// key.
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

func (c *Client) Factor() assessment.Factor { return assessment.FactorMarket }
func (c *Client) Name() string              { return ProviderID }

// Query fetches the subject's sector snapshot and normalizes it.
func (c *Client) Query(ctx context.Context, req assessment.AssessmentRequest) (assessment.FactorAssessment, error) {
	endpoint := fmt.Sprintf("%s/v1/sectors/%s", c.baseURL, url.PathEscape(req.SubjectID.String()))
	headers := http.Header{"X-API-Key": []string{c.apiKey}}

	var resp sectorResponse
	if err := sources.GetJSON(ctx, c.httpClient, ProviderID, endpoint, headers, &resp); err != nil {
		return assessment.FactorAssessment{}, err
	}
	return normalizeSector(resp, time.Now().UTC()), nil
}

// sectorResponse is the feed's wire format.
type sectorResponse struct {
	SubjectID     string   `json:"subject_id"`
	Sector        string   `json:"sector,omitempty"`
	GrowthRatePct *float64 `json:"industry_growth_rate_pct,omitempty"`
	Volatility    string   `json:"market_volatility,omitempty"` // low|medium|high
	Outlook       string   `json:"economic_outlook,omitempty"`  // positive|neutral|negative
	GeoRiskScore  *float64 `json:"geographic_risk_score,omitempty"`
	Confidence    *float64 `json:"confidence,omitempty"`
}

func (r sectorResponse) empty() bool {
	return r.GrowthRatePct == nil && r.Volatility == "" && r.Outlook == "" && r.GeoRiskScore == nil
}

// normalizeSector converts a sector snapshot into the factor model. Each
// signal nudges the neutral base; missing signals simply do not nudge, and
// an unrecognized enum value degrades the factor with a warning.
func normalizeSector(resp sectorResponse, now time.Time) assessment.FactorAssessment {
	if resp.empty() {
		return assessment.FactorAssessment{
			Factor:     assessment.FactorMarket,
			Score:      defaultRisk,
			Confidence: 0.3,
			Evidence: []assessment.EvidencePair{
				{Key: "warning", Value: "no market signals in feed response"},
			},
			FetchedAt: now,
			Status:    assessment.StatusDegraded,
		}
	}

	status := assessment.StatusOk
	var evidence []assessment.EvidencePair
	if resp.Sector != "" {
		evidence = append(evidence, assessment.EvidencePair{Key: "sector", Value: resp.Sector})
	}

	risk := baseRisk

	if resp.GrowthRatePct != nil {
		growth := *resp.GrowthRatePct
		switch {
		case growth > 10:
			risk -= 15
		case growth > 5:
			risk -= 10
		case growth < 0:
			risk += 20
		}
		evidence = append(evidence, assessment.EvidencePair{Key: "industry_growth_rate_pct", Value: strconv.FormatFloat(growth, 'f', 1, 64)})
	}

	if resp.Volatility != "" {
		switch strings.ToLower(resp.Volatility) {
		case "low":
			risk -= 10
		case "medium":
		case "high":
			risk += 15
		default:
			status = assessment.StatusDegraded
			evidence = append(evidence, assessment.EvidencePair{Key: "warning", Value: "unrecognized market_volatility " + strconv.Quote(resp.Volatility)})
		}
		evidence = append(evidence, assessment.EvidencePair{Key: "market_volatility", Value: resp.Volatility})
	}

	if resp.Outlook != "" {
		switch strings.ToLower(resp.Outlook) {
		case "positive":
			risk -= 10
		case "neutral":
		case "negative":
			risk += 15
		default:
			status = assessment.StatusDegraded
			evidence = append(evidence, assessment.EvidencePair{Key: "warning", Value: "unrecognized economic_outlook " + strconv.Quote(resp.Outlook)})
		}
		evidence = append(evidence, assessment.EvidencePair{Key: "economic_outlook", Value: resp.Outlook})
	}

	if resp.GeoRiskScore != nil {
		risk += (*resp.GeoRiskScore - 50) * geoRiskWeight
		evidence = append(evidence, assessment.EvidencePair{Key: "geographic_risk_score", Value: strconv.FormatFloat(*resp.GeoRiskScore, 'f', 0, 64)})
	}

	if risk < 0 {
		risk = 0
	}
	if risk > 100 {
		risk = 100
	}

	confidence := defaultConfidence
	if resp.Confidence != nil {
		confidence = *resp.Confidence
	}

	return assessment.FactorAssessment{
		Factor:     assessment.FactorMarket,
		Score:      risk,
		Confidence: confidence,
		Evidence:   evidence,
		FetchedAt:  now,
		Status:     status,
	}
}
