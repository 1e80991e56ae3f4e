package policy

import (
	"errors"
	"fmt"
	"time"
)

// InvalidModelError reports a structurally unusable model: malformed or
// non-monotonic bin edges, or a table inconsistent with its declared shape.
// It is raised only on the load/publish path; the decision path cannot fail.
// The prior valid snapshot always remains in effect when one is raised.
type InvalidModelError struct {
	Reason string
}

func (e *InvalidModelError) Error() string {
	return fmt.Sprintf("invalid model: %s", e.Reason)
}

// invalidModelf builds an InvalidModelError with a formatted reason.
func invalidModelf(format string, args ...any) *InvalidModelError {
	return &InvalidModelError{Reason: fmt.Sprintf(format, args...)}
}

// IsInvalidModel returns true if err is, or wraps, an InvalidModelError.
func IsInvalidModel(err error) bool {
	var ime *InvalidModelError
	return errors.As(err, &ime)
}

// StaleVersionError reports a publish attempt whose candidate is not newer
// than the currently served snapshot. The current snapshot is retained.
type StaleVersionError struct {
	CandidateVersion string
	CandidateTime    time.Time
	CurrentVersion   string
	CurrentTime      time.Time
}

func (e *StaleVersionError) Error() string {
	return fmt.Sprintf("stale snapshot version %q (%s) is not newer than current %q (%s)",
		e.CandidateVersion, e.CandidateTime.Format(time.RFC3339Nano),
		e.CurrentVersion, e.CurrentTime.Format(time.RFC3339Nano))
}

// IsStaleVersion returns true if err is, or wraps, a StaleVersionError.
func IsStaleVersion(err error) bool {
	var sve *StaleVersionError
	return errors.As(err, &sve)
}
