// Package sources connects the assessment engine to the upstream systems
// that score each risk factor. A Provider speaks one upstream's protocol and
// normalizes its payload into a FactorAssessment; the Adapter wraps every
// provider with the uniform call policy (hard timeout, bounded jittered
// retries, circuit breaking) so the coordinator never sees a raw failure.
package sources

import (
	"context"

	"arbiter/internal/assessment"
)

// Provider is the interface every upstream factor source implements.
// Implementations normalize provider payloads into the engine's factor
// model and report failures through the ProviderError taxonomy; the Adapter
// decides what is retried and what becomes an unavailable factor.
type Provider interface {
	// Factor identifies the risk dimension this provider scores.
	Factor() assessment.Factor

	// Name returns a stable identifier for logs and evidence.
	Name() string

	// Query fetches and normalizes one subject's data. The returned
	// assessment must have a finite score in [0,100] and confidence in
	// [0,1]; out-of-range values are clamped by the Adapter.
	Query(ctx context.Context, req assessment.AssessmentRequest) (assessment.FactorAssessment, error)
}
