package market

import (
	"context"
	"hash/fnv"
	"time"

	"arbiter/internal/assessment"
)

// Simulator fabricates deterministic sector snapshots keyed on the subject
// ID, for dev mode and tests.
type Simulator struct {
	Latency time.Duration
}

func (s *Simulator) Factor() assessment.Factor { return assessment.FactorMarket }
func (s *Simulator) Name() string              { return "market-simulator" }

func (s *Simulator) Query(ctx context.Context, req assessment.AssessmentRequest) (assessment.FactorAssessment, error) {
	if s.Latency > 0 {
		select {
		case <-time.After(s.Latency):
		case <-ctx.Done():
			return assessment.FactorAssessment{}, ctx.Err()
		}
	}

	h := fnv.New64a()
	h.Write([]byte("market:"))
	h.Write([]byte(req.SubjectID.String()))
	seed := h.Sum64()

	sectors := [5]string{"manufacturing", "logistics", "retail", "services", "agriculture"}
	growth := -2.0 + float64(seed%16)
	volatility := [3]string{"low", "medium", "high"}[seed>>8%3]
	outlook := [3]string{"positive", "neutral", "negative"}[seed>>16%3]
	geo := 30 + float64(seed>>24%41)
	confidence := 0.7 + float64(seed>>32%26)/100

	resp := sectorResponse{
		SubjectID:     req.SubjectID.String(),
		Sector:        sectors[seed>>40%5],
		GrowthRatePct: &growth,
		Volatility:    volatility,
		Outlook:       outlook,
		GeoRiskScore:  &geo,
		Confidence:    &confidence,
	}
	fa := normalizeSector(resp, time.Now().UTC())
	fa.Evidence = append(fa.Evidence, assessment.EvidencePair{Key: "simulated", Value: "true"})
	return fa, nil
}
