package matrix

import "errors"

// Domain errors for the matrix bridge package.
var (
	// ErrInvalidChannel is returned when a channel number is not 1-based.
	ErrInvalidChannel = errors.New("matrix: invalid channel")

	// ErrNoActiveChannels is returned when a sweep is requested with an
	// empty input or output list. Nothing is sent in this case; callers can
	// distinguish it from an in-flight command failure.
	ErrNoActiveChannels = errors.New("matrix: no active channels configured")
)
