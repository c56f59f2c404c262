package control

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Transport selects how commands reach an endpoint.
type Transport string

// Supported transports.
const (
	TransportTCP Transport = "tcp"
	TransportUDP Transport = "udp"
)

// Endpoint identifies one physical unit's control socket.
// Immutable once a Conn is built from it; reconfiguration creates a new
// Endpoint and a new Conn.
type Endpoint struct {
	// DeviceID is the registry key (e.g. "matrix-main").
	DeviceID string

	// Address is the IP or hostname on the control network.
	Address string

	// Port is the control port for the selected transport.
	Port int

	// Transport is TCP (stream, reply expected) or UDP (datagram, no reply).
	Transport Transport
}

// Addr returns the endpoint as a host:port dial string.
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Address, strconv.Itoa(e.Port))
}

// Validate checks the endpoint fields.
func (e Endpoint) Validate() error {
	if e.DeviceID == "" {
		return fmt.Errorf("%w: device id is required", ErrInvalidEndpoint)
	}
	if e.Address == "" {
		return fmt.Errorf("%w: address is required", ErrInvalidEndpoint)
	}
	if e.Port < 1 || e.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidEndpoint, e.Port)
	}
	if e.Transport != TransportTCP && e.Transport != TransportUDP {
		return fmt.Errorf("%w: transport %q", ErrInvalidEndpoint, e.Transport)
	}
	return nil
}

// Request is one encoded command ready for the wire.
// Built by a device-family codec, never mutated after creation.
type Request struct {
	// Command is the wire text, line terminator included for stream transports.
	Command string

	// Kind labels the command for the audit trail
	// ("switch", "volume", "mute", "output_volume").
	Kind string

	// Timeout overrides the connection's default response timeout when > 0.
	Timeout time.Duration
}

// Outcome is the classified result of sending one command.
// An Outcome is always produced, even on timeout.
type Outcome struct {
	// Success reports whether the device accepted the command.
	Success bool

	// Response holds the raw bytes received, as a string, for diagnosis.
	Response string

	// Err is empty on success; "timeout" on timeout; otherwise the
	// connectivity or protocol error text.
	Err string

	// Duration is the elapsed time from dial to verdict.
	Duration time.Duration
}

// DurationMs returns the outcome duration in whole milliseconds, the unit
// the audit trail records.
func (o Outcome) DurationMs() int64 {
	return o.Duration.Milliseconds()
}

// Verdict is a classifier's decision about accumulated response bytes.
type Verdict int

// Verdict values, in escalation order.
const (
	// Pending means no decision yet; keep reading until timeout.
	Pending Verdict = iota

	// Accepted means the device acknowledged the command.
	Accepted

	// Rejected means the device refused the command.
	Rejected
)

// Classification carries a verdict and, for rejections, the reason text.
type Classification struct {
	Verdict Verdict
	Reason  string
}

// Classifier decides success or failure from response bytes.
//
// buf is everything received so far, sent is the command text as written to
// the wire, and closed reports whether the device has closed the stream.
// Implementations are pure functions over these inputs, so they are
// unit-testable with synthetic buffers. A Pending verdict after close is
// treated by the Conn as a protocol ambiguity.
type Classifier interface {
	Classify(buf []byte, sent string, closed bool) Classification
}

// State is the per-endpoint connection state machine position.
type State int

// Connection states.
const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateAwaitingResponse
	StateFailed
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateAwaitingResponse:
		return "awaiting_response"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}
