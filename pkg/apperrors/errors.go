package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrValidation          = errors.New("validation failed")
	ErrEmptyResult         = errors.New("no valid rows")
	ErrRemoteNotConfigured = errors.New("cloud sync is not configured")
	ErrQuotaExceeded       = errors.New("remote quota exceeded")
)

// ClaimConflict names one (label, source) pair that is already claimed.
type ClaimConflict struct {
	RawLabel     string `json:"raw_label"`
	SurveySource string `json:"survey_source"`
	// MappingID is empty when the pair is repeated within the same request.
	MappingID     string `json:"mapping_id,omitempty"`
	CanonicalName string `json:"canonical_name,omitempty"`
}

// ConflictError reports duplicate claims on source labels.
// It matches ErrConflict with errors.Is.
type ConflictError struct {
	Conflicts []ClaimConflict
}

func (e *ConflictError) Error() string {
	parts := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		if c.CanonicalName != "" {
			parts = append(parts, fmt.Sprintf("%q (%s) already mapped to %q", c.RawLabel, c.SurveySource, c.CanonicalName))
		} else {
			parts = append(parts, fmt.Sprintf("%q (%s) listed more than once", c.RawLabel, c.SurveySource))
		}
	}
	return "conflict: " + strings.Join(parts, "; ")
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// Validationf returns an error wrapping ErrValidation with a formatted message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
