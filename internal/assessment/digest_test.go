package assessment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func digestFactors(evidence []EvidencePair, fetchedAt time.Time) map[Factor]FactorAssessment {
	return map[Factor]FactorAssessment{
		FactorCredit: {
			Factor:     FactorCredit,
			Score:      42.5,
			Confidence: 0.9,
			Evidence:   evidence,
			FetchedAt:  fetchedAt,
			Status:     StatusOk,
		},
	}
}

func TestFactorDigest(t *testing.T) {
	evidence := []EvidencePair{
		{Key: "bureau_score", Value: "712"},
		{Key: "on_time_rate", Value: "0.94"},
	}

	t.Run("stable across calls", func(t *testing.T) {
		a := FactorDigest(digestFactors(evidence, testTime))
		b := FactorDigest(digestFactors(evidence, testTime))
		assert.Equal(t, a, b)
		require.Len(t, a, 64, "hex-encoded SHA-256")
	})

	t.Run("fetch time does not affect the digest", func(t *testing.T) {
		a := FactorDigest(digestFactors(evidence, testTime))
		b := FactorDigest(digestFactors(evidence, testTime.Add(3*time.Hour)))
		assert.Equal(t, a, b)
	})

	t.Run("score change alters the digest", func(t *testing.T) {
		a := digestFactors(evidence, testTime)
		b := digestFactors(evidence, testTime)
		mutated := b[FactorCredit]
		mutated.Score = 43
		b[FactorCredit] = mutated
		assert.NotEqual(t, FactorDigest(a), FactorDigest(b))
	})

	t.Run("evidence order matters", func(t *testing.T) {
		reversed := []EvidencePair{evidence[1], evidence[0]}
		a := FactorDigest(digestFactors(evidence, testTime))
		b := FactorDigest(digestFactors(reversed, testTime))
		assert.NotEqual(t, a, b, "evidence is an ordered sequence, not a set")
	})

	t.Run("evidence values cannot shift between keys", func(t *testing.T) {
		// Same byte soup, different key/value split.
		a := FactorDigest(digestFactors([]EvidencePair{{Key: "ab", Value: "c"}}, testTime))
		b := FactorDigest(digestFactors([]EvidencePair{{Key: "a", Value: "bc"}}, testTime))
		assert.NotEqual(t, a, b)
	})

	t.Run("factor set membership matters", func(t *testing.T) {
		one := digestFactors(evidence, testTime)
		two := digestFactors(evidence, testTime)
		two[FactorMarket] = FactorAssessment{
			Factor: FactorMarket, Score: 50, Confidence: 0.5, Status: StatusOk, FetchedAt: testTime,
		}
		assert.NotEqual(t, FactorDigest(one), FactorDigest(two))
	})
}
