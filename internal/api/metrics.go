package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/quarterline/avops-core/internal/control"
	"github.com/quarterline/avops-core/internal/device"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string           `json:"timestamp"`
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Runtime       RuntimeMetrics   `json:"runtime"`
	WebSocket     WSMetrics        `json:"websocket"`
	MQTT          MQTTMetrics      `json:"mqtt"`
	InfluxDB      InfluxMetrics    `json:"influxdb"`
	Devices       DeviceMetrics    `json:"devices"`
	Database      *DatabaseMetrics `json:"database,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Connected bool `json:"connected"`
}

// InfluxMetrics contains InfluxDB client statistics.
type InfluxMetrics struct {
	Connected bool `json:"connected"`
}

// DeviceMetrics contains device and control connection statistics.
type DeviceMetrics struct {
	Total       int                     `json:"total"`
	ByFamily    map[string]int          `json:"by_family"`
	Connections map[string]control.Stats `json:"connections,omitempty"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics returns comprehensive system metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		Devices: s.collectDeviceMetrics(),
	}

	if s.hub != nil {
		metrics.WebSocket.ConnectedClients = s.hub.ClientCount()
	}
	if s.mqtt != nil {
		metrics.MQTT.Connected = s.mqtt.IsConnected()
	}
	if s.influx != nil {
		metrics.InfluxDB.Connected = s.influx.IsConnected()
	}
	if s.db != nil {
		stats := s.db.Stats()
		metrics.Database = &DatabaseMetrics{
			OpenConnections: stats.OpenConnections,
			InUse:           stats.InUse,
			Idle:            stats.Idle,
			WaitCount:       stats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}

// collectDeviceMetrics summarises the device registry and per-connection
// command counters.
func (s *Server) collectDeviceMetrics() DeviceMetrics {
	byFamily := map[string]int{
		string(device.FamilyMatrix): len(s.devices.ListByFamily(device.FamilyMatrix)),
		string(device.FamilyAtlas):  len(s.devices.ListByFamily(device.FamilyAtlas)),
	}

	m := DeviceMetrics{
		Total:    s.devices.Count(),
		ByFamily: byFamily,
	}

	if s.conns != nil {
		conns := s.conns.List()
		if len(conns) > 0 {
			m.Connections = make(map[string]control.Stats, len(conns))
			for _, conn := range conns {
				m.Connections[conn.Endpoint().DeviceID] = conn.Stats()
			}
		}
	}

	return m
}
