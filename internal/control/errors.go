package control

import "errors"

// Domain errors for the control package.
var (
	// ErrUnknownDevice is returned when a device id has no registered connection.
	ErrUnknownDevice = errors.New("control: unknown device")

	// ErrConnectFailed is returned when a probe cannot reach the endpoint.
	ErrConnectFailed = errors.New("control: connect failed")

	// ErrInvalidEndpoint is returned when an endpoint is misconfigured.
	ErrInvalidEndpoint = errors.New("control: invalid endpoint")

	// ErrEmptyCommand is returned when a request carries no wire text.
	ErrEmptyCommand = errors.New("control: empty command")
)

// ErrorTimeout is the canonical error string recorded on an Outcome when a
// command times out. Callers match on this exact value.
const ErrorTimeout = "timeout"
