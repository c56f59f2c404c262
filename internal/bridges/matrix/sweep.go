package matrix

import (
	"context"
	"fmt"
	"time"

	"github.com/quarterline/avops-core/internal/audit"
	"github.com/quarterline/avops-core/internal/control"
)

// defaultPacing is the pause between consecutive switch commands during a
// sweep. Matrix units drop commands that arrive back to back, so each pair
// gets a breather before the next dial.
const defaultPacing = 100 * time.Millisecond

// Sender is the slice of control.Conn the orchestrator needs. Satisfied by
// *control.Conn; tests substitute a scripted fake.
type Sender interface {
	Send(ctx context.Context, req control.Request) control.Outcome
	Endpoint() control.Endpoint
}

// Sink receives one audit record per command plus a summary per sweep.
// Satisfied by audit.SQLiteRepository. A nil Sink disables recording.
type Sink interface {
	Create(ctx context.Context, rec *audit.Record) error
}

// PairResult captures the outcome of one input-to-output switch attempt.
type PairResult struct {
	Input      int    `json:"input"`
	Output     int    `json:"output"`
	Command    string `json:"command"`
	Success    bool   `json:"success"`
	Response   string `json:"response,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Summary aggregates a completed sweep.
type Summary struct {
	Total       int     `json:"total"`
	Succeeded   int     `json:"succeeded"`
	Failed      int     `json:"failed"`
	SuccessRate float64 `json:"success_rate"`
}

// SweepReport is the full result of a matrix sweep: every pair attempted,
// in order, plus the aggregate.
type SweepReport struct {
	DeviceID  string       `json:"device_id"`
	StartedAt time.Time    `json:"started_at"`
	Duration  string       `json:"duration"`
	Pairs     []PairResult `json:"pairs"`
	Summary   Summary      `json:"summary"`
}

// Orchestrator runs switch tests against one matrix. It owns pacing and
// audit recording; wire-level behaviour belongs to the Sender.
//
// Thread Safety: the Sender serializes its own commands, so concurrent
// sweeps interleave at command granularity rather than corrupting each
// other. Callers should still run one sweep at a time per device for
// legible results.
type Orchestrator struct {
	sender  Sender
	sink    Sink
	logger  control.Logger
	pacing  time.Duration
	timeout time.Duration

	// sleep is swapped for a no-op in tests.
	sleep func(time.Duration)
}

// OrchestratorConfig configures a sweep orchestrator.
type OrchestratorConfig struct {
	// Pacing is the pause between commands. Zero means 100ms.
	Pacing time.Duration

	// CommandTimeout overrides the Sender's per-command timeout when > 0.
	CommandTimeout time.Duration
}

// NewOrchestrator creates an orchestrator over an established device
// connection. sink and logger may be nil.
func NewOrchestrator(sender Sender, cfg OrchestratorConfig, sink Sink, logger control.Logger) *Orchestrator {
	pacing := cfg.Pacing
	if pacing <= 0 {
		pacing = defaultPacing
	}
	return &Orchestrator{
		sender:  sender,
		sink:    sink,
		logger:  logger,
		pacing:  pacing,
		timeout: cfg.CommandTimeout,
		sleep:   time.Sleep,
	}
}

// RunFullSweep switches every input to every output, in the order the
// channel lists are given: all outputs for the first input, then the next
// input. Validation failures abort before anything is sent; a failed pair
// mid-sweep does not. Every attempted pair appears in the report.
//
// Parameters:
//   - ctx: cancels the sweep between commands; in-flight commands run to
//     their own timeout
//   - inputs, outputs: 1-based active channel lists
//
// Returns ErrNoActiveChannels when either list is empty.
func (o *Orchestrator) RunFullSweep(ctx context.Context, inputs, outputs []int) (*SweepReport, error) {
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, ErrNoActiveChannels
	}
	for _, in := range inputs {
		if in < 1 {
			return nil, fmt.Errorf("%w: input %d", ErrInvalidChannel, in)
		}
	}
	for _, out := range outputs {
		if out < 1 {
			return nil, fmt.Errorf("%w: output %d", ErrInvalidChannel, out)
		}
	}

	endpoint := o.sender.Endpoint()
	report := &SweepReport{
		DeviceID:  endpoint.DeviceID,
		StartedAt: time.Now().UTC(),
		Pairs:     make([]PairResult, 0, len(inputs)*len(outputs)),
	}

	o.logInfo("matrix sweep started",
		"device_id", endpoint.DeviceID,
		"inputs", len(inputs),
		"outputs", len(outputs))

	start := time.Now()
	first := true
	for _, in := range inputs {
		for _, out := range outputs {
			if !first {
				o.sleep(o.pacing)
			}
			first = false

			if err := ctx.Err(); err != nil {
				report.finish(start)
				o.recordSummary(report)
				return report, fmt.Errorf("sweep interrupted: %w", err)
			}

			report.Pairs = append(report.Pairs, o.runPair(ctx, in, out))
		}
	}

	report.finish(start)
	o.recordSummary(report)

	o.logInfo("matrix sweep complete",
		"device_id", endpoint.DeviceID,
		"total", report.Summary.Total,
		"succeeded", report.Summary.Succeeded,
		"failed", report.Summary.Failed)

	return report, nil
}

// RunSingleSwitch sends one switch command and records it. Used by the
// manual route endpoint and the keep-awake scheduler.
func (o *Orchestrator) RunSingleSwitch(ctx context.Context, input, output int) (PairResult, error) {
	if input < 1 {
		return PairResult{}, fmt.Errorf("%w: input %d", ErrInvalidChannel, input)
	}
	if output < 1 {
		return PairResult{}, fmt.Errorf("%w: output %d", ErrInvalidChannel, output)
	}
	return o.runPair(ctx, input, output), nil
}

func (o *Orchestrator) runPair(ctx context.Context, input, output int) PairResult {
	endpoint := o.sender.Endpoint()

	req, err := SwitchRequest(input, output, endpoint.Transport)
	if err != nil {
		// Unreachable after channel validation, but a pair result beats
		// a panic if the lists are ever built elsewhere.
		return PairResult{Input: input, Output: output, Error: err.Error()}
	}
	req.Timeout = o.timeout

	outcome := o.sender.Send(ctx, req)

	result := PairResult{
		Input:      input,
		Output:     output,
		Command:    req.Command,
		Success:    outcome.Success,
		Response:   outcome.Response,
		Error:      outcome.Err,
		DurationMs: outcome.DurationMs(),
	}

	if !outcome.Success {
		o.logWarn("switch command failed",
			"device_id", endpoint.DeviceID,
			"input", input,
			"output", output,
			"error", outcome.Err)
	}

	o.record(ctx, &audit.Record{
		TestType:     "switch",
		DeviceID:     endpoint.DeviceID,
		Command:      req.Command,
		Response:     outcome.Response,
		Success:      outcome.Success,
		ErrorMessage: outcome.Err,
		DurationMs:   outcome.DurationMs(),
		Metadata: map[string]any{
			"input":  input,
			"output": output,
		},
	})

	return result
}

func (r *SweepReport) finish(start time.Time) {
	r.Duration = time.Since(start).Round(time.Millisecond).String()
	s := Summary{Total: len(r.Pairs)}
	for _, p := range r.Pairs {
		if p.Success {
			s.Succeeded++
		} else {
			s.Failed++
		}
	}
	if s.Total > 0 {
		s.SuccessRate = float64(s.Succeeded) / float64(s.Total) * 100 //nolint:mnd // percentage
	}
	r.Summary = s
}

func (o *Orchestrator) recordSummary(report *SweepReport) {
	o.record(context.Background(), &audit.Record{
		TestType: "sweep_summary",
		DeviceID: report.DeviceID,
		Command:  fmt.Sprintf("full sweep %d pairs", report.Summary.Total),
		Success:  report.Summary.Failed == 0,
		Metadata: map[string]any{
			"total":        report.Summary.Total,
			"succeeded":    report.Summary.Succeeded,
			"failed":       report.Summary.Failed,
			"success_rate": report.Summary.SuccessRate,
			"duration":     report.Duration,
		},
	})
}

// record writes to the sink without letting audit failures disturb the
// sweep. Uses a detached context so a cancelled sweep still gets recorded.
func (o *Orchestrator) record(ctx context.Context, rec *audit.Record) {
	if o.sink == nil {
		return
	}
	if ctx.Err() != nil {
		ctx = context.Background()
	}
	if err := o.sink.Create(ctx, rec); err != nil {
		o.logWarn("audit record failed", "test_type", rec.TestType, "error", err)
	}
}

func (o *Orchestrator) logInfo(msg string, keysAndValues ...any) {
	if o.logger != nil {
		o.logger.Info(msg, keysAndValues...)
	}
}

func (o *Orchestrator) logWarn(msg string, keysAndValues ...any) {
	if o.logger != nil {
		o.logger.Warn(msg, keysAndValues...)
	}
}
