package explain

import (
	"fmt"
	"strings"

	"arbiter/internal/assessment"
)

const systemPrompt = `You are a credit risk analyst at an invoice financing desk. ` +
	`Explain completed risk assessments to underwriters in two to four plain sentences. ` +
	`State the decisive factors and any data gaps. No markdown, no lists, no caveats about being an AI.`

// userPrompt lays out the assessment for the model. Factor lines follow the
// fixed factor order so identical assessments produce identical prompts.
func userPrompt(a *assessment.RiskAssessment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Invoice %s was assessed at composite risk %d/100 (%s), recommendation %s, aggregate confidence %.2f.\n",
		a.SubjectID, a.CompositeScore, a.Category, a.Recommendation, a.Confidence)
	b.WriteString("Factors:\n")
	for _, f := range assessment.AllFactors {
		fa, ok := a.Factors[f]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "- %s: score %.1f, confidence %.2f, status %s\n", f, fa.Score, fa.Confidence, fa.Status)
	}
	for _, om := range a.Omitted {
		fmt.Fprintf(&b, "- %s: omitted (%s)\n", om.Factor, om.Reason)
	}
	b.WriteString("Explain why this score and recommendation were assigned.")
	return b.String()
}
