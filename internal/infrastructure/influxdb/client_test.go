package influxdb

import (
	"context"
	"errors"
	"testing"

	"github.com/quarterline/avops-core/internal/infrastructure/config"
)

func TestConnect_Disabled(t *testing.T) {
	cfg := config.InfluxDBConfig{Enabled: false}

	_, err := Connect(cfg)
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestDisconnectedClientIsSafe(t *testing.T) {
	c := &Client{}

	if c.IsConnected() {
		t.Error("zero-value client should report disconnected")
	}

	// Writes on a disconnected client are silent no-ops rather than panics.
	c.WriteCommandMetric("matrix-main", "switch", true, 42)
	c.WriteSweepMetric("matrix-main", 6, 6, 0, 100)
	c.WriteZoneVolume("zone-1", 55, false)
	c.WritePoint("custom", nil, map[string]interface{}{"v": 1})
	c.Flush()

	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}
