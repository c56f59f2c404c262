package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

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
)

// gracefulShutdownTimeout is how long Close waits for in-flight requests.
const gracefulShutdownTimeout = 10 * time.Second

// Switcher runs matrix routing commands. Satisfied by *matrix.Orchestrator.
type Switcher interface {
	RunFullSweep(ctx context.Context, inputs, outputs []int) (*matrix.SweepReport, error)
	RunSingleSwitch(ctx context.Context, input, output int) (matrix.PairResult, error)
}

// AudioController applies zone changes. Satisfied by *atlas.Controller.
type AudioController interface {
	GetZone(ctx context.Context, zoneID string) (*atlas.Zone, error)
	Apply(ctx context.Context, zoneID string, action atlas.ZoneAction) (*atlas.Zone, error)
	ReloadZone(ctx context.Context, zoneID string) (*atlas.Zone, error)
}

// ZoneLister enumerates persisted zones. Satisfied by *atlas.SQLiteStore.
type ZoneLister interface {
	ListZones(ctx context.Context, deviceID string) ([]atlas.Zone, error)
}

// Deps contains the dependencies for the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Matrix   config.MatrixConfig

	Logger  *logging.Logger
	Devices *device.Registry
	Conns   *control.Registry
	Audit   audit.Repository

	// Switcher and Audio are nil when the corresponding device is disabled.
	Switcher Switcher
	Audio    AudioController
	Zones    ZoneLister

	// Optional integrations.
	MQTT   *mqtt.Client
	Influx *influxdb.Client
	DB     *database.DB

	Version string
}

// Server is the HTTP API server.
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	secCfg    config.SecurityConfig
	matrixCfg config.MatrixConfig

	logger   *logging.Logger
	devices  *device.Registry
	conns    *control.Registry
	trail    audit.Repository
	switcher Switcher
	audio    AudioController
	zones    ZoneLister
	mqtt     *mqtt.Client
	influx   *influxdb.Client
	db       *database.DB

	version   string
	startTime time.Time
	server    *http.Server
	hub       *Hub
	tickets   *ticketStore
	cancel    context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, device registry)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Devices == nil {
		return nil, fmt.Errorf("device registry is required")
	}
	if deps.Audit == nil {
		return nil, fmt.Errorf("audit repository is required")
	}

	return &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		secCfg:    deps.Security,
		matrixCfg: deps.Matrix,
		logger:    deps.Logger,
		devices:   deps.Devices,
		conns:     deps.Conns,
		trail:     deps.Audit,
		switcher:  deps.Switcher,
		audio:     deps.Audio,
		zones:     deps.Zones,
		mqtt:      deps.MQTT,
		influx:    deps.Influx,
		db:        deps.DB,
		version:   deps.Version,
		startTime: time.Now(),
		tickets:   newTicketStore(),
	}, nil
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub, subscribes to MQTT state topics for live
// WebSocket relay, and launches the HTTP listener in a background goroutine.
// The server is stopped with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	// Internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.hub = NewHub(s.wsCfg, s.logger)
	go s.hub.Run(srvCtx)

	// Periodic ticket cleanup so unredeemed tickets don't accumulate
	go s.cleanTicketsLoop(srvCtx)

	// Relay zone state and command events from the broker to WebSocket clients
	if err := s.subscribeEventRelay(); err != nil {
		s.logger.Warn("failed to subscribe to broker events for WebSocket relay", "error", err)
	}

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	// Stop the hub and ticket cleanup goroutines
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
