package atlas

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Zone action names accepted on the external control surface.
const (
	ActionVolume       = "volume"
	ActionMute         = "mute"
	ActionOutputVolume = "output-volume"
)

// ErrInvalidAction is returned for an unknown or malformed zone action.
var ErrInvalidAction = errors.New("atlas: invalid zone action")

// ZoneAction is one inbound control request for a zone, arriving over MQTT
// or the HTTP API.
type ZoneAction struct {
	// Action is one of "volume", "mute", or "output-volume".
	Action string `json:"action"`

	// Value carries the volume for volume actions (clamped to [0,100])
	// or 0/1 for mute.
	Value float64 `json:"value"`

	// OutputIndex selects the output for "output-volume", 0-based within
	// the zone's output list.
	OutputIndex *int `json:"output_index,omitempty"`
}

// Validate checks the action is well formed before any command is built.
func (a ZoneAction) Validate() error {
	switch a.Action {
	case ActionVolume, ActionMute:
		return nil
	case ActionOutputVolume:
		if a.OutputIndex == nil {
			return fmt.Errorf("%w: output-volume requires output_index", ErrInvalidAction)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidAction, a.Action)
	}
}

// Apply executes a zone action against the controller. A volume action on a
// multi-output zone runs as a master-volume change so the outputs shift
// together.
func (c *Controller) Apply(ctx context.Context, zoneID string, action ZoneAction) (*Zone, error) {
	if err := action.Validate(); err != nil {
		return nil, err
	}

	switch action.Action {
	case ActionVolume:
		zone, err := c.GetZone(ctx, zoneID)
		if err != nil {
			return nil, err
		}
		if zone.MultiOutput() {
			return c.SetMasterVolume(ctx, zoneID, action.Value)
		}
		return c.SetVolume(ctx, zoneID, action.Value)
	case ActionMute:
		return c.SetMute(ctx, zoneID, action.Value != 0)
	case ActionOutputVolume:
		return c.SetOutputVolume(ctx, zoneID, *action.OutputIndex, action.Value)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidAction, action.Action)
	}
}

// HandleCommandPayload decodes a JSON zone action and applies it. This is
// the MQTT subscription entry point; the zone ID comes from the topic.
func (c *Controller) HandleCommandPayload(ctx context.Context, zoneID string, payload []byte) error {
	var action ZoneAction
	if err := json.Unmarshal(payload, &action); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAction, err)
	}
	_, err := c.Apply(ctx, zoneID, action)
	return err
}
