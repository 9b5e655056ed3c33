package credit

import (
	"context"
	"hash/fnv"
	"time"

	"arbiter/internal/assessment"
)

// Simulator fabricates deterministic bureau reports keyed on the subject ID,
// for dev mode and tests.
type Simulator struct {
	Latency time.Duration
}

func (s *Simulator) Factor() assessment.Factor { return assessment.FactorCredit }
func (s *Simulator) Name() string              { return "credit-simulator" }

func (s *Simulator) Query(ctx context.Context, req assessment.AssessmentRequest) (assessment.FactorAssessment, error) {
	if s.Latency > 0 {
		select {
		case <-time.After(s.Latency):
		case <-ctx.Done():
			return assessment.FactorAssessment{}, ctx.Err()
		}
	}

	h := fnv.New64a()
	h.Write([]byte("credit:"))
	h.Write([]byte(req.SubjectID.String()))
	seed := h.Sum64()

	score := 520 + int(seed%331) // 520-850
	onTime := 0.6 + float64(seed>>8%41)/100
	late := int(seed >> 16 % 4)
	confidence := 0.8 + float64(seed>>24%21)/100

	resp := reportResponse{
		SubjectID:       req.SubjectID.String(),
		BureauScore:     &score,
		OnTimeRate:      &onTime,
		LatePayments12M: &late,
		Confidence:      &confidence,
	}
	fa := normalizeReport(resp, time.Now().UTC())
	fa.Evidence = append(fa.Evidence, assessment.EvidencePair{Key: "simulated", Value: "true"})
	return fa, nil
}
