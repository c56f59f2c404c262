package matrix

import (
	"fmt"
	"strings"

	"github.com/quarterline/avops-core/internal/control"
)

// commandTerminator is appended to commands on stream transports.
// The switcher treats carriage return as end-of-command.
const commandTerminator = "\r"

// defaultEchoSlack is how many bytes beyond the echoed command a response
// must grow before the implicit-acknowledgement rule fires.
const defaultEchoSlack = 2

// EncodeSwitch builds the wire text for a routing command.
//
// The syntax is "{input}X{output}." with 1-based channels on both sides.
//
// Parameters:
//   - input: 1-based source channel
//   - output: 1-based destination channel
//
// Returns:
//   - string: Wire text without line terminator
//   - error: If either channel is below 1
func EncodeSwitch(input, output int) (string, error) {
	if input < 1 {
		return "", fmt.Errorf("%w: input %d (channels are 1-based)", ErrInvalidChannel, input)
	}
	if output < 1 {
		return "", fmt.Errorf("%w: output %d (channels are 1-based)", ErrInvalidChannel, output)
	}
	return fmt.Sprintf("%dX%d.", input, output), nil
}

// SwitchRequest builds a complete control.Request for one routing command,
// appending the line terminator for stream transports.
func SwitchRequest(input, output int, transport control.Transport) (control.Request, error) {
	cmd, err := EncodeSwitch(input, output)
	if err != nil {
		return control.Request{}, err
	}
	if transport == control.TransportTCP {
		cmd += commandTerminator
	}
	return control.Request{Command: cmd, Kind: "switch"}, nil
}

// ClassifierConfig is the per-family response classification policy.
type ClassifierConfig struct {
	// EchoSlack is the margin beyond the echoed command length required
	// for the implicit-acknowledgement rule. Zero means defaultEchoSlack.
	EchoSlack int

	// ImplicitSuccess enables the echo-length rule. Firmware with explicit
	// OK/ERR replies should keep this off.
	ImplicitSuccess bool
}

// Classifier turns raw response bytes into a verdict using an ordered rule
// list. It is a pure function over its inputs and holds no connection state.
type Classifier struct {
	cfg ClassifierConfig
}

// NewClassifier creates a classifier with the given policy.
func NewClassifier(cfg ClassifierConfig) *Classifier {
	if cfg.EchoSlack <= 0 {
		cfg.EchoSlack = defaultEchoSlack
	}
	return &Classifier{cfg: cfg}
}

// Ensure Classifier satisfies the control-layer contract.
var _ control.Classifier = (*Classifier)(nil)

// Classify applies the family rules in priority order:
//
//  1. Response contains "OK" → accepted.
//  2. Response contains "ERR" or "Error" → rejected, raw text as reason.
//  3. Response exceeds the echoed command length by the configured margin
//     with no status token → implicit acceptance (policy-gated).
//  4. Stream closed after non-empty bytes → accepted (data received means
//     the command most likely applied).
//  5. Stream closed with zero bytes → rejected.
//
// Anything else is Pending and the caller keeps waiting until timeout.
func (c *Classifier) Classify(buf []byte, sent string, closed bool) control.Classification {
	response := string(buf)

	if strings.Contains(response, "OK") {
		return control.Classification{Verdict: control.Accepted}
	}

	if strings.Contains(response, "ERR") || strings.Contains(response, "Error") {
		return control.Classification{
			Verdict: control.Rejected,
			Reason:  strings.TrimSpace(response),
		}
	}

	if c.cfg.ImplicitSuccess {
		echo := strings.TrimRight(sent, "\r\n")
		if len(buf) > len(echo)+c.cfg.EchoSlack {
			return control.Classification{Verdict: control.Accepted}
		}
	}

	if closed {
		if len(buf) > 0 {
			return control.Classification{Verdict: control.Accepted}
		}
		return control.Classification{
			Verdict: control.Rejected,
			Reason:  "connection closed with no data",
		}
	}

	return control.Classification{Verdict: control.Pending}
}
