package schedule

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/quarterline/avops-core/internal/bridges/matrix"
	"github.com/quarterline/avops-core/internal/control"
)

// defaultInterval between route re-assertions.
const defaultInterval = 5 * time.Minute

// ErrInvalidRoute is returned when a configured route string cannot be
// parsed.
var ErrInvalidRoute = errors.New("schedule: invalid route")

// Switcher sends one switch command. Satisfied by *matrix.Orchestrator.
type Switcher interface {
	RunSingleSwitch(ctx context.Context, input, output int) (matrix.PairResult, error)
}

// Route is one input-to-output assignment to hold.
type Route struct {
	Input  int
	Output int
}

// ParseRoute parses a "input:output" config string into a Route.
func ParseRoute(s string) (Route, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return Route{}, fmt.Errorf("%w: %q (want \"input:output\")", ErrInvalidRoute, s)
	}
	input, err := strconv.Atoi(parts[0])
	if err != nil {
		return Route{}, fmt.Errorf("%w: %q: %v", ErrInvalidRoute, s, err)
	}
	output, err := strconv.Atoi(parts[1])
	if err != nil {
		return Route{}, fmt.Errorf("%w: %q: %v", ErrInvalidRoute, s, err)
	}
	if input < 1 || output < 1 {
		return Route{}, fmt.Errorf("%w: %q (channels are 1-based)", ErrInvalidRoute, s)
	}
	return Route{Input: input, Output: output}, nil
}

// ParseRoutes parses a configured route list, rejecting the whole list on
// the first malformed entry so a typo is caught at startup.
func ParseRoutes(specs []string) ([]Route, error) {
	routes := make([]Route, 0, len(specs))
	for _, s := range specs {
		route, err := ParseRoute(s)
		if err != nil {
			return nil, err
		}
		routes = append(routes, route)
	}
	return routes, nil
}

// KeepAwake periodically re-asserts a fixed set of matrix routes.
type KeepAwake struct {
	switcher Switcher
	routes   []Route
	interval time.Duration
	logger   control.Logger

	// ticker is swapped for a manual channel in tests.
	ticker func(time.Duration) (<-chan time.Time, func())

	done chan struct{}
	wg   sync.WaitGroup

	startMu sync.Mutex
	started bool
}

// NewKeepAwake creates the loop. interval <= 0 means the 5 minute default;
// logger may be nil.
func NewKeepAwake(switcher Switcher, routes []Route, interval time.Duration, logger control.Logger) *KeepAwake {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &KeepAwake{
		switcher: switcher,
		routes:   routes,
		interval: interval,
		logger:   logger,
		ticker: func(d time.Duration) (<-chan time.Time, func()) {
			t := time.NewTicker(d)
			return t.C, t.Stop
		},
		done: make(chan struct{}),
	}
}

// Start launches the loop. The first assertion happens immediately, then
// once per interval. Start is idempotent.
func (k *KeepAwake) Start(ctx context.Context) {
	k.startMu.Lock()
	defer k.startMu.Unlock()
	if k.started || len(k.routes) == 0 {
		return
	}
	k.started = true

	k.wg.Add(1)
	go k.run(ctx)
}

// Stop terminates the loop and waits for the in-flight pass to finish.
func (k *KeepAwake) Stop() {
	k.startMu.Lock()
	defer k.startMu.Unlock()
	if !k.started {
		return
	}
	k.started = false

	close(k.done)
	k.wg.Wait()
	k.done = make(chan struct{})
}

func (k *KeepAwake) run(ctx context.Context) {
	defer k.wg.Done()

	tick, stop := k.ticker(k.interval)
	defer stop()

	k.assertRoutes(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-k.done:
			return
		case <-tick:
			k.assertRoutes(ctx)
		}
	}
}

// assertRoutes re-sends every configured route once. Failures are logged
// and retried on the next tick.
func (k *KeepAwake) assertRoutes(ctx context.Context) {
	for _, route := range k.routes {
		result, err := k.switcher.RunSingleSwitch(ctx, route.Input, route.Output)
		if err != nil {
			k.logWarn("keep-awake route rejected",
				"input", route.Input, "output", route.Output, "error", err)
			continue
		}
		if !result.Success {
			k.logWarn("keep-awake route failed",
				"input", route.Input, "output", route.Output, "error", result.Error)
		}
	}
}

func (k *KeepAwake) logWarn(msg string, keysAndValues ...any) {
	if k.logger != nil {
		k.logger.Warn(msg, keysAndValues...)
	}
}
