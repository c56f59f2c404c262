package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/quarterline/avops-core/internal/bridges/matrix"
)

type recordingSwitcher struct {
	mu     sync.Mutex
	calls  []Route
	notify chan struct{}
}

func (r *recordingSwitcher) RunSingleSwitch(_ context.Context, input, output int) (matrix.PairResult, error) {
	r.mu.Lock()
	r.calls = append(r.calls, Route{Input: input, Output: output})
	r.mu.Unlock()
	if r.notify != nil {
		r.notify <- struct{}{}
	}
	return matrix.PairResult{Input: input, Output: output, Success: true}, nil
}

func (r *recordingSwitcher) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func TestParseRoute(t *testing.T) {
	tests := []struct {
		in      string
		want    Route
		wantErr bool
	}{
		{in: "4:1", want: Route{Input: 4, Output: 1}},
		{in: " 12:8 ", want: Route{Input: 12, Output: 8}},
		{in: "4", wantErr: true},
		{in: "a:1", wantErr: true},
		{in: "1:b", wantErr: true},
		{in: "0:1", wantErr: true},
		{in: "1:-2", wantErr: true},
		{in: "1:2:3", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRoute(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidRoute) {
					t.Fatalf("ParseRoute(%q) error = %v, want ErrInvalidRoute", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRoute(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseRoute(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseRoutes_RejectsWholeListOnTypo(t *testing.T) {
	if _, err := ParseRoutes([]string{"1:1", "oops", "2:2"}); !errors.Is(err, ErrInvalidRoute) {
		t.Errorf("error = %v, want ErrInvalidRoute", err)
	}

	routes, err := ParseRoutes([]string{"1:1", "2:2"})
	if err != nil {
		t.Fatalf("ParseRoutes() error = %v", err)
	}
	if len(routes) != 2 {
		t.Errorf("routes = %d, want 2", len(routes))
	}
}

func TestKeepAwake_AssertsOnStartAndTick(t *testing.T) {
	switcher := &recordingSwitcher{notify: make(chan struct{}, 16)}
	routes := []Route{{Input: 4, Output: 1}, {Input: 2, Output: 3}}

	tick := make(chan time.Time)
	k := NewKeepAwake(switcher, routes, time.Minute, nil)
	k.ticker = func(time.Duration) (<-chan time.Time, func()) {
		return tick, func() {}
	}

	k.Start(context.Background())
	defer k.Stop()

	// Initial pass: both routes asserted immediately.
	waitCalls(t, switcher, 2)

	tick <- time.Now()
	waitCalls(t, switcher, 4)

	switcher.mu.Lock()
	first := switcher.calls[0]
	switcher.mu.Unlock()
	if first != (Route{Input: 4, Output: 1}) {
		t.Errorf("first call = %+v, want configured order", first)
	}
}

func TestKeepAwake_StopTerminatesLoop(t *testing.T) {
	switcher := &recordingSwitcher{}
	k := NewKeepAwake(switcher, []Route{{Input: 1, Output: 1}}, time.Minute, nil)
	tick := make(chan time.Time)
	k.ticker = func(time.Duration) (<-chan time.Time, func()) {
		return tick, func() {}
	}

	k.Start(context.Background())
	k.Stop()

	calls := switcher.callCount()
	// No ticks can be consumed after Stop; the count stays frozen.
	select {
	case tick <- time.Now():
		t.Fatal("loop still consuming ticks after Stop")
	case <-time.After(50 * time.Millisecond):
	}
	if switcher.callCount() != calls {
		t.Error("routes asserted after Stop")
	}
}

func TestKeepAwake_NoRoutesNeverStarts(t *testing.T) {
	switcher := &recordingSwitcher{}
	k := NewKeepAwake(switcher, nil, time.Minute, nil)

	k.Start(context.Background())
	k.Stop()

	if switcher.callCount() != 0 {
		t.Errorf("calls = %d, want 0", switcher.callCount())
	}
}

func waitCalls(t *testing.T, s *recordingSwitcher, want int) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for s.callCount() < want {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %d calls, have %d", want, s.callCount())
		case <-time.After(5 * time.Millisecond):
		}
	}
}
