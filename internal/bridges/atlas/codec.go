package atlas

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/quarterline/avops-core/internal/control"
)

// commandTerminator ends every command on the wire.
const commandTerminator = "\r"

// Parameter name stems. The unit exposes one numbered parameter per zone or
// output; custom DSP configs may override output names via ParameterName.
const (
	paramZoneGain   = "ZoneGain"
	paramZoneMute   = "ZoneMute"
	paramOutputGain = "OutputGain"
)

// zoneGainParam derives the gain parameter for a 1-based channel. This is
// the only place the channel-to-index conversion happens.
func zoneGainParam(channel int) (string, error) {
	if channel < 1 {
		return "", fmt.Errorf("%w: %d", ErrInvalidChannel, channel)
	}
	return fmt.Sprintf("%s_%d", paramZoneGain, channel-1), nil
}

func zoneMuteParam(channel int) (string, error) {
	if channel < 1 {
		return "", fmt.Errorf("%w: %d", ErrInvalidChannel, channel)
	}
	return fmt.Sprintf("%s_%d", paramZoneMute, channel-1), nil
}

// outputGainParam returns the output's explicit parameter name, or derives
// one from its already 0-based hardware index.
func outputGainParam(out ZoneOutput) string {
	if out.ParameterName != "" {
		return out.ParameterName
	}
	return fmt.Sprintf("%s_%d", paramOutputGain, out.AtlasIndex)
}

// VolumeRequest encodes a zone volume change for a 1-based channel.
func VolumeRequest(channel int, volume float64) (control.Request, error) {
	param, err := zoneGainParam(channel)
	if err != nil {
		return control.Request{}, err
	}
	return setRequest(param, formatGain(volume), "volume"), nil
}

// MuteRequest encodes a zone mute change for a 1-based channel.
func MuteRequest(channel int, muted bool) (control.Request, error) {
	param, err := zoneMuteParam(channel)
	if err != nil {
		return control.Request{}, err
	}
	value := "0"
	if muted {
		value = "1"
	}
	return setRequest(param, value, "mute"), nil
}

// OutputVolumeRequest encodes a per-output gain change.
func OutputVolumeRequest(out ZoneOutput, volume float64) control.Request {
	return setRequest(outputGainParam(out), formatGain(volume), "output_volume")
}

// QueryVolumeRequest encodes a zone gain read, used by the hardware reload
// path after a failed command.
func QueryVolumeRequest(channel int) (control.Request, error) {
	param, err := zoneGainParam(channel)
	if err != nil {
		return control.Request{}, err
	}
	return getRequest(param), nil
}

// QueryMuteRequest encodes a zone mute read.
func QueryMuteRequest(channel int) (control.Request, error) {
	param, err := zoneMuteParam(channel)
	if err != nil {
		return control.Request{}, err
	}
	return getRequest(param), nil
}

// QueryOutputVolumeRequest encodes a per-output gain read.
func QueryOutputVolumeRequest(out ZoneOutput) control.Request {
	return getRequest(outputGainParam(out))
}

func setRequest(param, value, kind string) control.Request {
	return control.Request{
		Command: "set " + param + " " + value + commandTerminator,
		Kind:    kind,
	}
}

func getRequest(param string) control.Request {
	return control.Request{
		Command: "get " + param + commandTerminator,
		Kind:    "query",
	}
}

// formatGain renders a gain value without trailing zeros: 50 not 50.000000,
// 97.5 as 97.5. The unit accepts both but echoes the short form.
func formatGain(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ParseGainReply extracts the numeric value from a parameter reply such as
// "ZoneGain_0 42.5". The unit echoes "<param> <value>"; anything after the
// value is ignored.
func ParseGainReply(response, param string) (float64, error) {
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		rest, ok := strings.CutPrefix(line, param)
		if !ok {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			continue
		}
		v, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return 0, fmt.Errorf("atlas: malformed reply %q for %s: %w", line, param, err)
		}
		return v, nil
	}
	return 0, fmt.Errorf("%w: no %s value in reply %q", ErrCommandFailed, param, strings.TrimSpace(response))
}

// ParseMuteReply extracts a boolean from a mute parameter reply.
func ParseMuteReply(response, param string) (bool, error) {
	v, err := ParseGainReply(response, param)
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// Classifier classifies zone-processor replies. The firmware always answers
// with an explicit token or a parameter echo, so the echo-length guesswork
// used for matrix switchers stays off here.
type Classifier struct{}

// NewClassifier creates the zone-processor response classifier.
func NewClassifier() *Classifier { return &Classifier{} }

var _ control.Classifier = (*Classifier)(nil)

// Classify applies the family rules in priority order:
//
//  1. Response contains "OK" → accepted.
//  2. Response contains "ERR", "Error", or "NAK" → rejected with the raw
//     text as reason.
//  3. Response echoes the addressed parameter name → accepted (the unit
//     confirms sets and answers gets by echoing "<param> <value>").
//  4. Stream closed after non-empty bytes → accepted; closed with zero
//     bytes → rejected.
//
// Anything else is Pending until the command times out.
func (c *Classifier) Classify(buf []byte, sent string, closed bool) control.Classification {
	response := string(buf)

	if strings.Contains(response, "OK") {
		return control.Classification{Verdict: control.Accepted}
	}

	if strings.Contains(response, "ERR") || strings.Contains(response, "Error") || strings.Contains(response, "NAK") {
		return control.Classification{
			Verdict: control.Rejected,
			Reason:  strings.TrimSpace(response),
		}
	}

	if param := sentParam(sent); param != "" && strings.Contains(response, param) {
		return control.Classification{Verdict: control.Accepted}
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

// sentParam pulls the parameter name out of a "set <param> <value>" or
// "get <param>" command.
func sentParam(sent string) string {
	fields := strings.Fields(strings.TrimSpace(sent))
	if len(fields) < 2 {
		return ""
	}
	switch fields[0] {
	case "set", "get":
		return fields[1]
	}
	return ""
}
