// Package identity scores the identity factor from a KYC bureau. The bureau
// reports a trust score, KYC level, and risk flags; the client inverts trust
// into risk and adds a capped penalty per flag.
package identity

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"arbiter/internal/assessment"
	"arbiter/internal/sources"
)

// ProviderID identifies this source in logs and evidence.
const ProviderID = "identity-bureau"

const (
	tokenTTL = 2 * time.Minute
	audience = "identity-bureau"
	issuer   = "arbiter"

	// defaultTrustScore stands in when the bureau omits the trust score.
	defaultTrustScore = 30.0
	// defaultConfidence stands in when the bureau omits its confidence.
	defaultConfidence = 0.85

	flagPenalty    = 10.0
	maxFlagPenalty = 30.0
)

// Client queries the identity bureau over HTTP, authenticating each request
// with a short-lived HS256 service token.
type Client struct {
	baseURL    string
	signingKey []byte
	httpClient *http.Client
}

// NewClient builds the bureau client. The signing key must match the key the
// bureau validates service tokens against.
func NewClient(baseURL, signingKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		signingKey: []byte(signingKey),
		httpClient: &http.Client{},
	}
}

func (c *Client) Factor() assessment.Factor { return assessment.FactorIdentity }
func (c *Client) Name() string              { return ProviderID }

// Query fetches the subject's verification record and normalizes it.
func (c *Client) Query(ctx context.Context, req assessment.AssessmentRequest) (assessment.FactorAssessment, error) {
	token, err := c.serviceToken(req.SubjectID.String(), time.Now().UTC())
	if err != nil {
		return assessment.FactorAssessment{}, sources.NewProviderError(sources.ErrorInternal, ProviderID, "minting service token", err)
	}

	endpoint := fmt.Sprintf("%s/v1/verifications/%s", c.baseURL, url.PathEscape(req.SubjectID.String()))
	headers := http.Header{"Authorization": []string{"Bearer " + token}}

	var resp verificationResponse
	if err := sources.GetJSON(ctx, c.httpClient, ProviderID, endpoint, headers, &resp); err != nil {
		return assessment.FactorAssessment{}, err
	}
	return normalizeVerification(resp, time.Now().UTC()), nil
}

// serviceToken mints the per-request bearer token. Each token names the
// subject under verification and expires quickly, so a leaked token cannot
// be replayed for other subjects later.
func (c *Client) serviceToken(subjectID string, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   subjectID,
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		ID:        uuid.NewString(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.signingKey)
}

// verificationResponse is the bureau's wire format. Pointer fields separate
// "absent" from zero so schema drift can be detected.
type verificationResponse struct {
	SubjectID  string   `json:"subject_id"`
	Verified   bool     `json:"verified"`
	KYCLevel   string   `json:"kyc_level"`
	TrustScore *float64 `json:"trust_score"`
	Confidence *float64 `json:"confidence"`
	RiskFlags  []string `json:"risk_flags"`
}

// normalizeVerification converts a bureau record into the factor model.
// Risk is the inverse of trust plus a penalty per risk flag, capped so flags
// alone cannot saturate the score. A missing trust score degrades the factor
// instead of failing it.
func normalizeVerification(resp verificationResponse, now time.Time) assessment.FactorAssessment {
	status := assessment.StatusOk
	evidence := []assessment.EvidencePair{
		{Key: "verified", Value: strconv.FormatBool(resp.Verified)},
	}
	if resp.KYCLevel != "" {
		evidence = append(evidence, assessment.EvidencePair{Key: "kyc_level", Value: resp.KYCLevel})
	}

	trust := defaultTrustScore
	if resp.TrustScore != nil {
		trust = *resp.TrustScore
		evidence = append(evidence, assessment.EvidencePair{Key: "trust_score", Value: strconv.FormatFloat(trust, 'f', -1, 64)})
	} else {
		status = assessment.StatusDegraded
		evidence = append(evidence, assessment.EvidencePair{Key: "warning", Value: "trust_score missing from bureau response"})
	}

	penalty := flagPenalty * float64(len(resp.RiskFlags))
	if penalty > maxFlagPenalty {
		penalty = maxFlagPenalty
	}
	if len(resp.RiskFlags) > 0 {
		evidence = append(evidence, assessment.EvidencePair{Key: "risk_flags", Value: strings.Join(resp.RiskFlags, ",")})
	}

	score := (100 - trust) + penalty
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}

	confidence := defaultConfidence
	if resp.Confidence != nil {
		confidence = *resp.Confidence
	}

	return assessment.FactorAssessment{
		Factor:     assessment.FactorIdentity,
		Score:      score,
		Confidence: confidence,
		Evidence:   evidence,
		FetchedAt:  now,
		Status:     status,
	}
}
