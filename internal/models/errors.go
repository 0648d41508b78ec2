package models

import "errors"

// Error kinds surfaced by the core. Point-level defects (coordinate, range,
// interpolation bounds) are handled by exclusion and counting inside the
// component that detects them; key-level defects and dependency faults are
// returned to the caller and matched with errors.Is.
var (
	// ErrInvalidCoordinate reports a latitude/longitude outside
	// [-90,90] x [-180,180].
	ErrInvalidCoordinate = errors.New("invalid coordinate")

	// ErrOutOfRange reports a target horizon offset outside the native
	// offset range of a source; the point is omitted, never extrapolated.
	ErrOutOfRange = errors.New("offset outside native range")

	// ErrRangeViolation reports a value outside the plausible bounds
	// configured for its variable.
	ErrRangeViolation = errors.New("value outside plausible range")

	// ErrInsufficientData reports that evaluation found zero
	// forecast/observation pairs; any previous profile remains current.
	ErrInsufficientData = errors.New("insufficient forecast/observation pairs")

	// ErrNoData reports that blending found no contributing sources.
	ErrNoData = errors.New("no data")

	// ErrDependency wraps failures of the backing store. Never retried
	// inside the core; retry policy belongs to the orchestration layer.
	ErrDependency = errors.New("store unavailable")
)
