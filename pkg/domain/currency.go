package domain

import dErrors "arbiter/pkg/domain-errors"

// Currency is an ISO 4217 style alphabetic currency code.
// Invariant: exactly three ASCII uppercase letters. The allowlist of codes a
// deployment accepts is a configuration concern, not a parsing one.
type Currency string

// ParseCurrency constructs a Currency from external input.
//
// Errors: returns CodeInvalidInput when the value is not exactly three
// uppercase ASCII letters.
func ParseCurrency(s string) (Currency, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "currency cannot be empty")
	}
	if len(s) != 3 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "currency must be a three-letter code")
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return "", dErrors.New(dErrors.CodeInvalidInput, "currency must be uppercase letters")
		}
	}
	return Currency(s), nil
}

// String returns the string representation of the currency code.
func (c Currency) String() string {
	return string(c)
}

// IsNil reports whether the currency is empty.
func (c Currency) IsNil() bool {
	return c == ""
}
