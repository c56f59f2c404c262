package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Default timeouts for device communication.
const (
	// defaultCommandTimeout is the response timeout when neither the Conn
	// nor the Request specifies one.
	defaultCommandTimeout = 10 * time.Second

	// defaultProbeTimeout is the connect timeout for liveness probes.
	defaultProbeTimeout = 2 * time.Second

	// readChunkSize is the read buffer size for response bytes. Device
	// replies are short ASCII lines; 256 bytes is generous.
	readChunkSize = 256
)

// Stats holds operational statistics for one connection.
type Stats struct {
	CommandsTx     uint64    `json:"commands_tx"`
	CommandsFailed uint64    `json:"commands_failed"`
	Timeouts       uint64    `json:"timeouts"`
	LastActivity   time.Time `json:"last_activity"`
	State          string    `json:"state"`
}

// Options configures optional Conn behaviour.
type Options struct {
	// Timeout is the default per-command response timeout.
	// Zero means defaultCommandTimeout.
	Timeout time.Duration
}

// Conn manages command traffic to a single device endpoint.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Concurrent Send calls are serialised; exactly one command is on the
//     wire per endpoint at a time, because the devices have no request-ID
//     framing to disambiguate replies.
//
// Each TCP command dials a fresh socket and closes it once the outcome is
// known; a failed or timed-out socket is destroyed so the next command
// starts clean. There is no automatic retry at this layer.
type Conn struct {
	endpoint   Endpoint
	classifier Classifier
	timeout    time.Duration

	// sendMu serialises commands to the wire.
	sendMu sync.Mutex

	// State machine position, for introspection and the API metrics view.
	stateMu sync.RWMutex
	state   State

	// Logger (optional)
	logger   Logger
	loggerMu sync.RWMutex

	// Statistics (atomic for performance)
	commandsTx     atomic.Uint64
	commandsFailed atomic.Uint64
	timeouts       atomic.Uint64
	lastActivity   atomic.Int64 // Unix timestamp
}

// NewConn creates a connection manager for the given endpoint.
//
// A Classifier is required for TCP endpoints; UDP endpoints never read a
// reply, so the classifier may be nil there.
//
// Parameters:
//   - endpoint: Device endpoint (validated)
//   - classifier: Response classifier for the device family
//   - opts: Optional behaviour overrides
//
// Returns:
//   - *Conn: Ready connection manager (no socket is opened yet)
//   - error: If the endpoint is invalid or a required classifier is missing
func NewConn(endpoint Endpoint, classifier Classifier, opts Options) (*Conn, error) {
	if err := endpoint.Validate(); err != nil {
		return nil, err
	}
	if endpoint.Transport == TransportTCP && classifier == nil {
		return nil, fmt.Errorf("%w: TCP endpoint %s requires a classifier",
			ErrInvalidEndpoint, endpoint.DeviceID)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}

	return &Conn{
		endpoint:   endpoint,
		classifier: classifier,
		timeout:    timeout,
		state:      StateIdle,
	}, nil
}

// Endpoint returns the endpoint this connection is bound to.
func (c *Conn) Endpoint() Endpoint {
	return c.endpoint
}

// Send transmits one command and waits for its classified outcome.
//
// The call suspends until success, failure, or timeout - an Outcome is
// always produced. Concurrent callers queue on the internal mutex and are
// served one at a time in lock-acquisition order.
//
// Parameters:
//   - ctx: Context for cancellation; its deadline caps the command timeout
//   - req: Encoded command request
//
// Returns:
//   - Outcome: Classified result, never partial
func (c *Conn) Send(ctx context.Context, req Request) Outcome {
	if req.Command == "" {
		return Outcome{Success: false, Err: ErrEmptyCommand.Error()}
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	defer c.setState(StateIdle)

	start := time.Now()

	timeout := c.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	deadline := start.Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.setState(StateConnecting)
	dialer := net.Dialer{Deadline: deadline}
	conn, err := dialer.DialContext(ctx, string(c.endpoint.Transport), c.endpoint.Addr())
	if err != nil {
		return c.fail(start, "", connectError(err))
	}
	defer conn.Close()

	c.setState(StateConnected)
	c.lastActivity.Store(time.Now().Unix())

	if err := conn.SetWriteDeadline(deadline); err != nil {
		return c.fail(start, "", err.Error())
	}
	if _, err := conn.Write([]byte(req.Command)); err != nil {
		return c.fail(start, "", connectError(err))
	}
	c.commandsTx.Add(1)

	// UDP is fire-and-forget: no reply is expected or consumed.
	if c.endpoint.Transport == TransportUDP {
		c.lastActivity.Store(time.Now().Unix())
		return Outcome{Success: true, Duration: time.Since(start)}
	}

	c.setState(StateAwaitingResponse)
	return c.awaitResponse(conn, req.Command, start, deadline)
}

// awaitResponse reads reply bytes until the classifier reaches a verdict,
// the stream closes, or the deadline fires.
func (c *Conn) awaitResponse(conn net.Conn, sent string, start time.Time, deadline time.Time) Outcome {
	if err := conn.SetReadDeadline(deadline); err != nil {
		return c.fail(start, "", err.Error())
	}

	var received []byte
	chunk := make([]byte, readChunkSize)

	for {
		n, err := conn.Read(chunk)
		if n > 0 {
			received = append(received, chunk[:n]...)
			c.lastActivity.Store(time.Now().Unix())

			cls := c.classifier.Classify(received, sent, false)
			if o, done := c.outcomeFor(cls, received, start); done {
				return o
			}
		}

		if err == nil {
			continue
		}

		// Stream closed: give the classifier its final word on whatever
		// arrived. Data received with no status token still counts per the
		// close rules.
		if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
			cls := c.classifier.Classify(received, sent, true)
			if o, done := c.outcomeFor(cls, received, start); done {
				return o
			}
			return c.fail(start, string(received), "connection closed before response classified")
		}

		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			// Never silently assume success: ambiguity past the deadline
			// is a timeout failure.
			c.timeouts.Add(1)
			return c.fail(start, string(received), ErrorTimeout)
		}

		return c.fail(start, string(received), connectError(err))
	}
}

// outcomeFor converts a classification into a final outcome.
// The second return is false while the verdict is still Pending.
func (c *Conn) outcomeFor(cls Classification, received []byte, start time.Time) (Outcome, bool) {
	switch cls.Verdict {
	case Accepted:
		return Outcome{
			Success:  true,
			Response: string(received),
			Duration: time.Since(start),
		}, true
	case Rejected:
		c.commandsFailed.Add(1)
		return Outcome{
			Success:  false,
			Response: string(received),
			Err:      cls.Reason,
			Duration: time.Since(start),
		}, true
	default:
		return Outcome{}, false
	}
}

// fail records a failed command and builds its outcome.
func (c *Conn) fail(start time.Time, response, errText string) Outcome {
	c.commandsFailed.Add(1)
	c.setState(StateFailed)
	c.logWarn("command failed",
		"device", c.endpoint.DeviceID,
		"error", errText,
	)
	return Outcome{
		Success:  false,
		Response: response,
		Err:      errText,
		Duration: time.Since(start),
	}
}

// Probe performs a lightweight liveness check: a short-timeout connect that
// is immediately closed. It bypasses the command queue, so health checks
// never delay real traffic. UDP endpoints cannot be probed this way and
// report success once the socket is created.
//
// Parameters:
//   - ctx: Context for cancellation
//
// Returns:
//   - error: nil if the endpoint accepted a connection
func (c *Conn) Probe(ctx context.Context) error {
	dialer := net.Dialer{Timeout: defaultProbeTimeout}
	conn, err := dialer.DialContext(ctx, string(c.endpoint.Transport), c.endpoint.Addr())
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrConnectFailed, c.endpoint.Addr(), err)
	}
	conn.Close()
	return nil
}

// State returns the current state machine position.
func (c *Conn) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

func (c *Conn) setState(s State) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

// SetLogger sets the logger for this connection.
func (c *Conn) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// Stats returns current operational statistics.
func (c *Conn) Stats() Stats {
	return Stats{
		CommandsTx:     c.commandsTx.Load(),
		CommandsFailed: c.commandsFailed.Load(),
		Timeouts:       c.timeouts.Load(),
		LastActivity:   time.Unix(c.lastActivity.Load(), 0),
		State:          c.State().String(),
	}
}

func (c *Conn) logWarn(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

// connectError trims the noisy dial prefix Go puts on net.OpError text so
// outcomes read cleanly in the audit trail.
func connectError(err error) string {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Err != nil {
		return opErr.Err.Error()
	}
	return err.Error()
}
