package atlas

import "errors"

var (
	// ErrUnknownZone is returned when a zone id resolves to nothing.
	ErrUnknownZone = errors.New("atlas: unknown zone")

	// ErrInvalidChannel is returned for a zone channel below 1.
	ErrInvalidChannel = errors.New("atlas: invalid channel")

	// ErrNoChannel is returned when a zone carries no hardware index and
	// none can be parsed from its id.
	ErrNoChannel = errors.New("atlas: zone has no resolvable channel")

	// ErrUnknownOutput is returned when an output index is outside the
	// zone's output list.
	ErrUnknownOutput = errors.New("atlas: unknown output")

	// ErrBatchReverted is returned when a multi-output update partially
	// failed and the optimistic state was discarded in favour of a
	// hardware reload.
	ErrBatchReverted = errors.New("atlas: batch failed, state reloaded from hardware")

	// ErrCommandFailed is returned when the device rejected or never
	// acknowledged a command.
	ErrCommandFailed = errors.New("atlas: command failed")
)
