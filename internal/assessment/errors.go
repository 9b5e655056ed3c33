package assessment

import (
	"fmt"

	id "arbiter/pkg/domain"
	dErrors "arbiter/pkg/domain-errors"
)

// InsufficientDataError is returned when synthesis has nothing to weigh: no
// factor reported usable data. It carries the evidence gathered so far so
// callers can show the reviewer what was attempted.
type InsufficientDataError struct {
	RequestID id.RequestID
	SubjectID id.SubjectID
	Omitted   []OmittedFactor
	// Partial holds every factor assessment received, including the
	// unavailable placeholders with their failure reasons.
	Partial []FactorAssessment
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for subject %s: no usable risk factors (%d omitted)",
		e.SubjectID, len(e.Omitted))
}

// Unwrap ties the typed error into the domain-errors code taxonomy so
// dErrors.HasCode(err, dErrors.CodeInsufficientData) holds across wrapping.
func (e *InsufficientDataError) Unwrap() error {
	return errInsufficientData
}

var errInsufficientData = dErrors.New(dErrors.CodeInsufficientData, "no usable risk factors")
