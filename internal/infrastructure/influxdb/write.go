package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteCommandMetric records one device command: its kind, outcome, and
// duration. The write is non-blocking; points are batched and sent
// asynchronously.
//
// Parameters:
//   - deviceID: The device the command was sent to (e.g. "matrix-main")
//   - kind: The command kind ("switch", "volume", "mute", "output_volume")
//   - success: Whether the device accepted the command
//   - durationMs: Elapsed time from dial to verdict in milliseconds
func (c *Client) WriteCommandMetric(deviceID, kind string, success bool, durationMs int64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"commands",
		map[string]string{
			"device_id": deviceID,
			"kind":      kind,
			"success":   strconv.FormatBool(success),
		},
		map[string]interface{}{
			"duration_ms": durationMs,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteSweepMetric records the aggregate of one completed switch sweep.
//
// Parameters:
//   - deviceID: The matrix the sweep ran against
//   - total, succeeded, failed: Pair counts from the sweep summary
//   - successRate: Percentage of pairs that succeeded
func (c *Client) WriteSweepMetric(deviceID string, total, succeeded, failed int, successRate float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"sweeps",
		map[string]string{
			"device_id": deviceID,
		},
		map[string]interface{}{
			"total":        total,
			"succeeded":    succeeded,
			"failed":       failed,
			"success_rate": successRate,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteZoneVolume records a zone's volume and mute state after a change.
func (c *Client) WriteZoneVolume(zoneID string, volume float64, muted bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"zone_state",
		map[string]string{
			"zone_id": zoneID,
		},
		map[string]interface{}{
			"volume": volume,
			"muted":  muted,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
// Tags should stay low cardinality; fields carry the data.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
