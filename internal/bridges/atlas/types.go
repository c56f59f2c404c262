package atlas

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// minVolume and maxVolume bound every stored gain value.
	minVolume = 0.0
	maxVolume = 100.0
)

// Zone models one audio zone: its displayed volume, mute state, and the
// physical outputs it drives. A zone with more than one output treats the
// displayed volume as informational; the true state lives in Outputs.
type Zone struct {
	ID         string       `json:"id"`
	DeviceID   string       `json:"device_id"`
	Name       string       `json:"name"`
	AtlasIndex *int         `json:"atlas_index,omitempty"`
	Volume     float64      `json:"volume"`
	Muted      bool         `json:"muted"`
	Outputs    []ZoneOutput `json:"outputs,omitempty"`
}

// ZoneOutput is one physical output owned exclusively by its parent zone.
// AtlasIndex is the 0-based hardware address; ParameterName overrides the
// derived gain parameter when the unit uses a custom DSP label.
type ZoneOutput struct {
	ID            string  `json:"id"`
	AtlasIndex    int     `json:"atlas_index"`
	Volume        float64 `json:"volume"`
	ParameterName string  `json:"parameter_name,omitempty"`
	Position      int     `json:"position"`
}

// Channel returns the zone's 1-based hardware channel. When AtlasIndex is
// absent the trailing digits of the zone id serve as the channel, matching
// the "zone-3" naming convention used throughout site configs.
func (z *Zone) Channel() (int, error) {
	if z.AtlasIndex != nil {
		if *z.AtlasIndex < 0 {
			return 0, fmt.Errorf("%w: atlas index %d on zone %s", ErrInvalidChannel, *z.AtlasIndex, z.ID)
		}
		return *z.AtlasIndex + 1, nil
	}
	ch, ok := channelFromID(z.ID)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNoChannel, z.ID)
	}
	return ch, nil
}

// MultiOutput reports whether zone state is governed by per-output volumes.
func (z *Zone) MultiOutput() bool {
	return len(z.Outputs) > 1
}

// MasterVolume returns the mean of the output volumes, or the zone volume
// when the zone has no output list.
func (z *Zone) MasterVolume() float64 {
	if len(z.Outputs) == 0 {
		return z.Volume
	}
	var sum float64
	for _, out := range z.Outputs {
		sum += out.Volume
	}
	return sum / float64(len(z.Outputs))
}

// clampVolume bounds a gain value to the storable range.
func clampVolume(v float64) float64 {
	if v < minVolume {
		return minVolume
	}
	if v > maxVolume {
		return maxVolume
	}
	return v
}

// channelFromID extracts the trailing digit run of an id as a 1-based
// channel. "zone-3" yields 3; ids without trailing digits yield false.
func channelFromID(id string) (int, bool) {
	i := len(id)
	for i > 0 && id[i-1] >= '0' && id[i-1] <= '9' {
		i--
	}
	if i == len(id) {
		return 0, false
	}
	ch, err := strconv.Atoi(strings.TrimLeft(id[i:], "0"))
	if err != nil || ch < 1 {
		return 0, false
	}
	return ch, true
}
