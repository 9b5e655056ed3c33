package assessment

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// FactorDigest computes the canonical SHA-256 over the usable factor set,
// hex encoded. The encoding is deterministic: factors in AllFactors order,
// evidence in its recorded order, numeric fields in shortest round-trip
// form. FetchedAt is excluded so identical factor data always digests the
// same regardless of when it was gathered.
//
// The digest travels with the ledger submission; anyone holding the factor
// set can recompute it and detect tampering.
func FactorDigest(factors map[Factor]FactorAssessment) string {
	var b strings.Builder
	for _, f := range AllFactors {
		fa, ok := factors[f]
		if !ok {
			continue
		}
		b.WriteString(string(fa.Factor))
		b.WriteByte('\x1f')
		b.WriteString(strconv.FormatFloat(fa.Score, 'f', -1, 64))
		b.WriteByte('\x1f')
		b.WriteString(strconv.FormatFloat(fa.Confidence, 'f', -1, 64))
		b.WriteByte('\x1f')
		b.WriteString(string(fa.Status))
		for _, ev := range fa.Evidence {
			b.WriteByte('\x1f')
			b.WriteString(ev.Key)
			b.WriteByte('\x1e')
			b.WriteString(ev.Value)
		}
		b.WriteByte('\n')
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
