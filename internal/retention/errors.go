package retention

import "errors"

var (
	// ErrInvariantViolation reports history data the platform should never
	// produce: a version kind other than MAJOR or MINOR, an empty history, or
	// a head that does not lead the version list.
	ErrInvariantViolation = errors.New("retention: invariant violation")

	// ErrNoRemovableVersion is returned when a track is over its cap but no
	// version can be chosen for removal.
	ErrNoRemovableVersion = errors.New("retention: no removable version")

	// ErrMalformedLabel reports a version label that is not "<major>.<minor>".
	ErrMalformedLabel = errors.New("retention: malformed version label")
)
