// Package explain turns a completed assessment into a short narrative for
// the financing desk. The OpenAI generator produces the narrative when a key
// is configured; the template generator is both the no-key default and the
// fallback when a completion call fails, so an assessment always has
// something readable to attach.
package explain

import (
	"context"
	"fmt"
	"strings"

	"arbiter/internal/assessment"
)

// Template renders a deterministic narrative from the assessment itself.
// Identical assessments produce identical text.
type Template struct{}

func NewTemplate() *Template {
	return &Template{}
}

func (t *Template) Explain(_ context.Context, a *assessment.RiskAssessment) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Composite risk %d/100 places this invoice in the %s band; the recommendation is %s.",
		a.CompositeScore, readable(string(a.Category)), readable(string(a.Recommendation)))

	var parts []string
	for _, f := range assessment.AllFactors {
		fa, ok := a.Factors[f]
		if !ok {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %.0f (%s)", f, fa.Score, fa.Status))
	}
	if len(parts) > 0 {
		fmt.Fprintf(&b, " Weighted factors: %s.", strings.Join(parts, ", "))
	}
	for _, om := range a.Omitted {
		fmt.Fprintf(&b, " The %s factor was unavailable (%s) and its weight was redistributed.",
			om.Factor, om.Reason)
	}
	fmt.Fprintf(&b, " Aggregate confidence %.2f.", a.Confidence)
	if a.Recommendation == assessment.RecommendManualReview {
		b.WriteString(" Review by an analyst is required before financing.")
	}
	return b.String(), nil
}

func readable(v string) string {
	return strings.ReplaceAll(v, "_", " ")
}
