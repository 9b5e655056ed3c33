package assessment

import "math"

// baseInterestRatePct is the anchor rate all spreads are added to.
const baseInterestRatePct = 8.0

// SuggestTerms derives financing terms from the composite risk score.
// Pure function: the bands below are the underwriting desk's standing
// policy, not configuration.
//
// The advance rate is the share of invoice face value paid out up front,
// clamped to [70, 90] percent.
func SuggestTerms(score int, invoice InvoicePayload) SuggestedTerms {
	var spread float64
	var collateral bool
	switch {
	case score <= 20:
		spread, collateral = 0.5, false
	case score <= 35:
		spread, collateral = 1.0, false
	case score <= 55:
		spread, collateral = 2.0, false
	case score <= 75:
		spread, collateral = 4.0, true
	default:
		spread, collateral = 8.0, true
	}

	baseLimit := invoice.Amount * 2
	var limit float64
	switch {
	case score > 55:
		limit = baseLimit * 0.5
	case score > 35:
		limit = baseLimit * 0.75
	default:
		limit = baseLimit
	}

	advance := 100 - score
	if advance > 90 {
		advance = 90
	}
	if advance < 70 {
		advance = 70
	}

	return SuggestedTerms{
		InterestRatePct:   roundTo(baseInterestRatePct+spread, 2),
		AdvanceRatePct:    advance,
		CreditLimit:       math.Trunc(limit),
		RequireCollateral: collateral,
	}
}
