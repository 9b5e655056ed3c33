package identity

import (
	"context"
	"hash/fnv"
	"time"

	"arbiter/internal/assessment"
)

// Simulator fabricates deterministic verification records keyed on the
// subject ID, for dev mode and tests. Latency, when set, delays each query
// to mimic a real bureau.
type Simulator struct {
	Latency time.Duration
}

func (s *Simulator) Factor() assessment.Factor { return assessment.FactorIdentity }
func (s *Simulator) Name() string              { return "identity-simulator" }

func (s *Simulator) Query(ctx context.Context, req assessment.AssessmentRequest) (assessment.FactorAssessment, error) {
	if s.Latency > 0 {
		select {
		case <-time.After(s.Latency):
		case <-ctx.Done():
			return assessment.FactorAssessment{}, ctx.Err()
		}
	}

	h := fnv.New64a()
	h.Write([]byte("identity:"))
	h.Write([]byte(req.SubjectID.String()))
	seed := h.Sum64()

	// Mostly well-established subjects with the occasional flagged one.
	trust := 55 + float64(seed%46)
	kyc := [4]string{"FULL", "FULL", "ENHANCED", "BASIC"}[seed>>8%4]
	var flags []string
	if seed>>16%11 == 0 {
		flags = append(flags, "recently_registered")
	}
	if seed>>24%17 == 0 {
		flags = append(flags, "document_inconsistency")
	}
	confidence := 0.75 + float64(seed>>32%26)/100

	resp := verificationResponse{
		SubjectID:  req.SubjectID.String(),
		Verified:   true,
		KYCLevel:   kyc,
		TrustScore: &trust,
		Confidence: &confidence,
		RiskFlags:  flags,
	}
	fa := normalizeVerification(resp, time.Now().UTC())
	fa.Evidence = append(fa.Evidence, assessment.EvidencePair{Key: "simulated", Value: "true"})
	return fa, nil
}
