// Package domain defines shared domain primitives used across services.
//
// Identifiers are parsed at trust boundaries via the Parse* constructors so
// downstream code can rely on their validity. Direct casting bypasses
// validation and should only appear in tests.
package domain

import (
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	dErrors "arbiter/pkg/domain-errors"
)

// RequestID identifies one assessment request. Callers may supply their own
// (for idempotent retries) or let the service mint one.
// Invariant: a valid, non-nil UUID.
type RequestID uuid.UUID

// NewRequestID mints a fresh random request ID.
func NewRequestID() RequestID {
	return RequestID(uuid.New())
}

// ParseRequestID constructs a RequestID from external input.
//
// Errors: returns CodeInvalidInput when the value is empty, malformed, or the
// nil UUID; no other errors are expected.
func ParseRequestID(s string) (RequestID, error) {
	u, err := parseUUID(s, "request_id")
	if err != nil {
		return RequestID{}, err
	}
	return RequestID(u), nil
}

// String returns the canonical lowercase hyphenated form.
func (r RequestID) String() string {
	return uuid.UUID(r).String()
}

// IsNil reports whether the ID is the zero value.
func (r RequestID) IsNil() bool {
	return uuid.UUID(r) == uuid.Nil
}

// MarshalText renders the canonical form, so JSON documents carry the ID as
// a string rather than a byte array.
func (r RequestID) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText parses external input through the same validation as
// ParseRequestID.
func (r *RequestID) UnmarshalText(text []byte) error {
	parsed, err := ParseRequestID(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

func parseUUID(s, field string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" cannot be empty")
	}
	if !utf8.ValidString(s) {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" must be valid UTF-8")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, field+" must be a valid UUID")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" cannot be the nil UUID")
	}
	return u, nil
}

// maxSubjectIDLength bounds external invoice references; real-world invoice
// numbers are far shorter, this only guards against abuse.
const maxSubjectIDLength = 128

// SubjectID identifies the invoice (or receivable) under assessment. External
// systems supply these, so the format is opaque: any printable, non-empty
// string up to maxSubjectIDLength runes.
type SubjectID string

// ParseSubjectID constructs a SubjectID from external input.
//
// Errors: returns CodeInvalidInput when the value is empty, oversized, or
// contains control or whitespace characters.
func ParseSubjectID(s string) (SubjectID, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "subject_id cannot be empty")
	}
	if !utf8.ValidString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "subject_id must be valid UTF-8")
	}
	if utf8.RuneCountInString(s) > maxSubjectIDLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "subject_id exceeds maximum length")
	}
	for _, r := range s {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "subject_id contains control or whitespace characters")
		}
	}
	return SubjectID(s), nil
}

// String returns the string representation of the subject ID.
func (s SubjectID) String() string {
	return string(s)
}

// IsNil reports whether the subject ID is empty.
func (s SubjectID) IsNil() bool {
	return s == ""
}
