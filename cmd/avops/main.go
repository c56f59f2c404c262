// AV Ops Core - device command and control for fixed AV installations.
//
// This is the main entry point for the AV Ops Core service. It drives a
// video matrix switcher and an AtlasIED zone processor over the control
// network, keeps an auditable trail of every command, and exposes a REST
// and WebSocket API for the operations console.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/quarterline/avops-core/migrations"

	"github.com/quarterline/avops-core/internal/api"
	"github.com/quarterline/avops-core/internal/audit"
	"github.com/quarterline/avops-core/internal/bridges/atlas"
	"github.com/quarterline/avops-core/internal/bridges/matrix"
	"github.com/quarterline/avops-core/internal/control"
	"github.com/quarterline/avops-core/internal/device"
	"github.com/quarterline/avops-core/internal/infrastructure/config"
	"github.com/quarterline/avops-core/internal/infrastructure/database"
	"github.com/quarterline/avops-core/internal/infrastructure/influxdb"
	"github.com/quarterline/avops-core/internal/infrastructure/logging"
	"github.com/quarterline/avops-core/internal/infrastructure/mqtt"
	"github.com/quarterline/avops-core/internal/schedule"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// Well-known device IDs for the two configured devices.
const (
	matrixDeviceID = "matrix-main"
	atlasDeviceID  = "atlas-audio"
)

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting AV Ops Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Device registry: seed the configured devices, then load the cache
	deviceRepo := device.NewSQLiteRepository(db.DB)
	deviceRegistry := device.NewRegistry(deviceRepo)
	if seedErr := seedDevices(ctx, cfg, deviceRegistry); seedErr != nil {
		return fmt.Errorf("seeding devices: %w", seedErr)
	}
	if loadErr := deviceRegistry.Load(ctx); loadErr != nil {
		return fmt.Errorf("loading device registry: %w", loadErr)
	}
	log.Info("device registry initialised", "devices", deviceRegistry.Count())

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Command trail: every dispatched command lands in SQLite, and the same
	// sink fans results out to MQTT and InfluxDB when those are connected.
	trail := audit.NewSQLiteRepository(db.DB)
	sink := &commandSink{
		trail:  trail,
		mqtt:   mqttClient,
		influx: influxClient,
		log:    log,
	}

	// Control connections
	conns := control.NewRegistry()

	// Matrix switcher (if enabled)
	var orchestrator *matrix.Orchestrator
	if cfg.Devices.Matrix.Enabled {
		orchestrator, err = startMatrix(cfg, conns, sink, log)
		if err != nil {
			return fmt.Errorf("starting matrix control: %w", err)
		}
	} else {
		log.Info("matrix control disabled")
	}

	// AtlasIED zone processor (if enabled)
	var audioController *atlas.Controller
	var zoneStore *atlas.SQLiteStore
	if cfg.Devices.Audio.Enabled {
		audioController, zoneStore, err = startAudio(ctx, cfg, db, conns, sink, mqttClient, influxClient, log)
		if err != nil {
			return fmt.Errorf("starting audio control: %w", err)
		}
	} else {
		log.Info("audio control disabled")
	}

	// Inbound zone commands from the broker
	if mqttClient != nil && audioController != nil {
		if subErr := subscribeZoneCommands(mqttClient, audioController, cfg.MQTT.QoS, log); subErr != nil {
			return fmt.Errorf("subscribing to zone commands: %w", subErr)
		}
	}

	// Keep-awake loop: periodically re-assert routes so the switcher never
	// drops into standby
	if cfg.Devices.KeepAwake.Enabled && orchestrator != nil {
		routes, routeErr := schedule.ParseRoutes(cfg.Devices.KeepAwake.Routes)
		if routeErr != nil {
			return fmt.Errorf("parsing keep-awake routes: %w", routeErr)
		}
		keepAwake := schedule.NewKeepAwake(orchestrator, routes, cfg.Devices.KeepAwake.Interval, log)
		keepAwake.Start(ctx)
		defer func() {
			log.Info("stopping keep-awake loop")
			keepAwake.Stop()
		}()
		log.Info("keep-awake loop started",
			"routes", len(routes),
			"interval", cfg.Devices.KeepAwake.Interval,
		)
	}

	// API server
	apiServer, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Matrix:   cfg.Devices.Matrix,
		Logger:   log,
		Devices:  deviceRegistry,
		Conns:    conns,
		Audit:    trail,
		Switcher: switcherOrNil(orchestrator),
		Audio:    audioOrNil(audioController),
		Zones:    zonesOrNil(zoneStore),
		MQTT:     mqttClient,
		Influx:   influxClient,
		DB:       db,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. Keep-awake loop
	// 3. InfluxDB (if enabled)
	// 4. MQTT (if enabled)
	// 5. Database

	log.Info("AV Ops Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses AVOPS_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("AVOPS_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// seedDevices upserts the configured devices into the registry's backing
// store. Existing rows keep their ID; address and channel changes in the
// config take effect on restart.
func seedDevices(ctx context.Context, cfg *config.Config, registry *device.Registry) error {
	now := time.Now().UTC()

	if cfg.Devices.Matrix.Enabled {
		dev := &device.Device{
			ID:        matrixDeviceID,
			Name:      "Matrix Switcher",
			Family:    device.FamilyMatrix,
			IPAddress: cfg.Devices.Matrix.IPAddress,
			TCPPort:   cfg.Devices.Matrix.TCPPort,
			UDPPort:   cfg.Devices.Matrix.UDPPort,
			Protocol:  control.Transport(cfg.Devices.Matrix.Protocol),
			Inputs:    cfg.Devices.Matrix.Inputs,
			Outputs:   cfg.Devices.Matrix.Outputs,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := registry.Upsert(ctx, dev); err != nil {
			return fmt.Errorf("matrix device: %w", err)
		}
	}

	if cfg.Devices.Audio.Enabled {
		dev := &device.Device{
			ID:        atlasDeviceID,
			Name:      "Audio Processor (" + cfg.Devices.Audio.Model + ")",
			Family:    device.FamilyAtlas,
			IPAddress: cfg.Devices.Audio.IPAddress,
			TCPPort:   cfg.Devices.Audio.TCPPort,
			// The zone processor exposes a single control port; reuse it
			// for either transport the config selects.
			UDPPort:   cfg.Devices.Audio.TCPPort,
			Protocol:  control.Transport(cfg.Devices.Audio.Protocol),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := registry.Upsert(ctx, dev); err != nil {
			return fmt.Errorf("audio device: %w", err)
		}
	}

	return nil
}

// startMatrix creates the matrix control connection and sweep orchestrator.
func startMatrix(cfg *config.Config, conns *control.Registry, sink matrix.Sink, log *logging.Logger) (*matrix.Orchestrator, error) {
	mc := cfg.Devices.Matrix

	transport := control.Transport(mc.Protocol)
	port := mc.TCPPort
	if transport == control.TransportUDP {
		port = mc.UDPPort
	}

	classifier := matrix.NewClassifier(matrix.ClassifierConfig{
		EchoSlack:       mc.EchoSlack,
		ImplicitSuccess: mc.ImplicitSuccess,
	})

	conn, err := control.NewConn(control.Endpoint{
		DeviceID:  matrixDeviceID,
		Address:   mc.IPAddress,
		Port:      port,
		Transport: transport,
	}, classifier, control.Options{Timeout: mc.CommandTimeout})
	if err != nil {
		return nil, fmt.Errorf("creating matrix connection: %w", err)
	}
	conn.SetLogger(log)

	if err := conns.Register(conn); err != nil {
		return nil, fmt.Errorf("registering matrix connection: %w", err)
	}

	orchestrator := matrix.NewOrchestrator(conn, matrix.OrchestratorConfig{
		Pacing:         cfg.Devices.SwitchTest.Pacing,
		CommandTimeout: mc.CommandTimeout,
	}, sink, log)

	log.Info("matrix control started",
		"address", mc.IPAddress,
		"port", port,
		"transport", transport,
		"inputs", len(mc.Inputs),
		"outputs", len(mc.Outputs),
	)

	return orchestrator, nil
}

// startAudio creates the zone processor connection, the zone store, and the
// zone controller, seeding default zones on first run.
func startAudio(ctx context.Context, cfg *config.Config, db *database.DB, conns *control.Registry, sink atlas.Sink, mqttClient *mqtt.Client, influxClient *influxdb.Client, log *logging.Logger) (*atlas.Controller, *atlas.SQLiteStore, error) {
	ac := cfg.Devices.Audio

	conn, err := control.NewConn(control.Endpoint{
		DeviceID:  atlasDeviceID,
		Address:   ac.IPAddress,
		Port:      ac.TCPPort,
		Transport: control.Transport(ac.Protocol),
	}, atlas.NewClassifier(), control.Options{Timeout: ac.CommandTimeout})
	if err != nil {
		return nil, nil, fmt.Errorf("creating audio connection: %w", err)
	}
	conn.SetLogger(log)

	if err := conns.Register(conn); err != nil {
		return nil, nil, fmt.Errorf("registering audio connection: %w", err)
	}

	store := atlas.NewSQLiteStore(db.DB)
	if err := seedZones(ctx, store, ac.ZoneCount()); err != nil {
		return nil, nil, fmt.Errorf("seeding zones: %w", err)
	}

	var publisher atlas.StatePublisher
	if mqttClient != nil || influxClient != nil {
		publisher = &zoneStatePublisher{mqtt: mqttClient, influx: influxClient, log: log}
	}

	controller := atlas.NewController(conn, store, sink, publisher, log)

	log.Info("audio control started",
		"address", ac.IPAddress,
		"port", ac.TCPPort,
		"model", ac.Model,
		"zones", ac.ZoneCount(),
	)

	return controller, store, nil
}

// seedZones creates default zone rows for the configured processor model.
// Existing zones are left untouched so renames and calibrated volumes
// survive restarts.
func seedZones(ctx context.Context, store *atlas.SQLiteStore, count int) error {
	for i := 0; i < count; i++ {
		id := fmt.Sprintf("zone-%d", i+1)

		_, err := store.LoadZone(ctx, id)
		if err == nil {
			continue
		}
		if !errors.Is(err, atlas.ErrUnknownZone) {
			return fmt.Errorf("checking zone %s: %w", id, err)
		}

		index := i
		zone := &atlas.Zone{
			ID:         id,
			DeviceID:   atlasDeviceID,
			Name:       fmt.Sprintf("Zone %d", i+1),
			AtlasIndex: &index,
		}
		if err := store.SaveZone(ctx, zone); err != nil {
			return fmt.Errorf("creating zone %s: %w", id, err)
		}
	}
	return nil
}

// subscribeZoneCommands wires inbound broker commands to the zone controller.
func subscribeZoneCommands(client *mqtt.Client, controller *atlas.Controller, qos int, log *logging.Logger) error {
	topics := mqtt.Topics{}
	topic := topics.AllZoneCommands()
	log.Info("subscribing to zone commands", "topic", topic)

	return client.Subscribe(topic, byte(qos), func(t string, payload []byte) error {
		zoneID, ok := mqtt.ZoneIDFromCommandTopic(t)
		if !ok {
			log.Warn("ignoring zone command on malformed topic", "topic", t)
			return nil
		}
		if err := controller.HandleCommandPayload(context.Background(), zoneID, payload); err != nil {
			log.Warn("zone command failed", "zone_id", zoneID, "error", err)
		}
		return nil
	})
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}

// switcherOrNil avoids storing a typed nil in the api.Switcher interface.
func switcherOrNil(o *matrix.Orchestrator) api.Switcher {
	if o == nil {
		return nil
	}
	return o
}

// audioOrNil avoids storing a typed nil in the api.AudioController interface.
func audioOrNil(c *atlas.Controller) api.AudioController {
	if c == nil {
		return nil
	}
	return c
}

// zonesOrNil avoids storing a typed nil in the api.ZoneLister interface.
func zonesOrNil(s *atlas.SQLiteStore) api.ZoneLister {
	if s == nil {
		return nil
	}
	return s
}

// commandSink persists command outcomes to the audit trail and fans them out
// to the broker and the time-series store. Trail persistence is the one
// required leg; broker and metrics writes are best-effort.
type commandSink struct {
	trail  audit.Repository
	mqtt   *mqtt.Client
	influx *influxdb.Client
	log    *logging.Logger
}

// Create implements the command sink used by the matrix orchestrator and the
// zone controller.
func (s *commandSink) Create(ctx context.Context, rec *audit.Record) error {
	if err := s.trail.Create(ctx, rec); err != nil {
		return err
	}

	if s.mqtt != nil {
		payload, err := json.Marshal(rec)
		if err == nil {
			topics := mqtt.Topics{}
			topic := topics.CommandEvent(rec.DeviceID)
			if rec.TestType == "sweep_summary" {
				topic = topics.SweepReport(rec.DeviceID)
			}
			if pubErr := s.mqtt.PublishEvent(topic, payload); pubErr != nil {
				s.log.Warn("failed to publish command event", "topic", topic, "error", pubErr)
			}
		}
	}

	if s.influx != nil {
		s.influx.WriteCommandMetric(rec.DeviceID, rec.TestType, rec.Success, rec.DurationMs)
	}

	return nil
}

// zoneStatePublisher pushes zone snapshots to the broker (retained, so a
// reconnecting console immediately sees current state) and records the
// volume level in the time-series store.
type zoneStatePublisher struct {
	mqtt   *mqtt.Client
	influx *influxdb.Client
	log    *logging.Logger
}

// PublishZoneState implements atlas.StatePublisher.
func (p *zoneStatePublisher) PublishZoneState(_ context.Context, zone *atlas.Zone) error {
	if p.influx != nil {
		p.influx.WriteZoneVolume(zone.ID, zone.MasterVolume(), zone.Muted)
	}

	if p.mqtt == nil {
		return nil
	}

	payload, err := json.Marshal(zone)
	if err != nil {
		return fmt.Errorf("marshalling zone state: %w", err)
	}

	topics := mqtt.Topics{}
	return p.mqtt.PublishRetained(topics.ZoneState(zone.ID), payload)
}
