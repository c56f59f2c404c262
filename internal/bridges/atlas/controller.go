package atlas

import (
	"context"
	"fmt"
	"sync"

	"github.com/quarterline/avops-core/internal/audit"
	"github.com/quarterline/avops-core/internal/control"
)

// Sender is the slice of control.Conn the controller needs. Satisfied by
// *control.Conn; tests substitute a scripted fake.
type Sender interface {
	Send(ctx context.Context, req control.Request) control.Outcome
	Endpoint() control.Endpoint
}

// Store persists zone state between operations. Satisfied by
// device.ZoneRepository.
type Store interface {
	LoadZone(ctx context.Context, id string) (*Zone, error)
	SaveZone(ctx context.Context, zone *Zone) error
}

// Sink receives one audit record per command. A nil Sink disables recording.
type Sink interface {
	Create(ctx context.Context, rec *audit.Record) error
}

// StatePublisher pushes zone state to external observers after each applied
// change. Satisfied by the MQTT client; nil disables publishing.
type StatePublisher interface {
	PublishZoneState(ctx context.Context, zone *Zone) error
}

// Controller drives one zone processor. Commands are applied optimistically:
// local state first, wire second, hardware reload on failure.
//
// Thread Safety: a mutex serializes operations per controller so two
// concurrent writes to the same zone cannot interleave their
// optimistic-apply and reload phases. Wire-level ordering is the Sender's
// job.
type Controller struct {
	sender    Sender
	store     Store
	sink      Sink
	publisher StatePublisher
	logger    control.Logger

	mu sync.Mutex
}

// NewController creates a zone controller. sink, publisher, and logger may
// be nil.
func NewController(sender Sender, store Store, sink Sink, publisher StatePublisher, logger control.Logger) *Controller {
	return &Controller{
		sender:    sender,
		store:     store,
		sink:      sink,
		publisher: publisher,
		logger:    logger,
	}
}

// GetZone returns the stored state of one zone.
func (c *Controller) GetZone(ctx context.Context, zoneID string) (*Zone, error) {
	return c.store.LoadZone(ctx, zoneID)
}

// SetVolume sets a single-output zone's volume. The value is clamped to
// [0,100], applied locally, then sent to the unit; a failed command reloads
// the zone from hardware so the optimistic value is discarded.
//
// Returns the zone state after the operation, which on failure is the
// reloaded hardware truth alongside a non-nil error.
func (c *Controller) SetVolume(ctx context.Context, zoneID string, volume float64) (*Zone, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	zone, err := c.store.LoadZone(ctx, zoneID)
	if err != nil {
		return nil, err
	}

	channel, err := zone.Channel()
	if err != nil {
		return nil, err
	}

	req, err := VolumeRequest(channel, clampVolume(volume))
	if err != nil {
		return nil, err
	}

	zone.Volume = clampVolume(volume)

	outcome := c.dispatch(ctx, req, zone.ID)
	if !outcome.Success {
		return c.revert(ctx, zone, outcome.Err)
	}

	return c.commit(ctx, zone)
}

// SetMute sets a zone's mute state with the same optimistic-apply and
// revert-on-failure discipline as SetVolume.
func (c *Controller) SetMute(ctx context.Context, zoneID string, muted bool) (*Zone, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	zone, err := c.store.LoadZone(ctx, zoneID)
	if err != nil {
		return nil, err
	}

	channel, err := zone.Channel()
	if err != nil {
		return nil, err
	}

	req, err := MuteRequest(channel, muted)
	if err != nil {
		return nil, err
	}

	zone.Muted = muted

	outcome := c.dispatch(ctx, req, zone.ID)
	if !outcome.Success {
		return c.revert(ctx, zone, outcome.Err)
	}

	return c.commit(ctx, zone)
}

// SetOutputVolume sets one physical output's volume by its position in the
// zone's output list.
func (c *Controller) SetOutputVolume(ctx context.Context, zoneID string, outputIndex int, volume float64) (*Zone, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	zone, err := c.store.LoadZone(ctx, zoneID)
	if err != nil {
		return nil, err
	}
	if outputIndex < 0 || outputIndex >= len(zone.Outputs) {
		return nil, fmt.Errorf("%w: index %d in zone %s", ErrUnknownOutput, outputIndex, zoneID)
	}

	out := &zone.Outputs[outputIndex]
	out.Volume = clampVolume(volume)
	req := OutputVolumeRequest(*out, out.Volume)

	outcome := c.dispatch(ctx, req, zone.ID)
	if !outcome.Success {
		return c.revert(ctx, zone, outcome.Err)
	}

	return c.commit(ctx, zone)
}

// SetMasterVolume shifts every output of a multi-output zone by the delta
// between the requested master value and the current output mean. Relative
// spacing between outputs is preserved except where the [0,100] clamp
// truncates it.
//
// The per-output commands are dispatched concurrently and the call resolves
// only when all of them have completed. Any failure discards the whole
// optimistic batch and reloads the zone from hardware; a partially applied
// master change is never left as displayed state.
func (c *Controller) SetMasterVolume(ctx context.Context, zoneID string, master float64) (*Zone, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	zone, err := c.store.LoadZone(ctx, zoneID)
	if err != nil {
		return nil, err
	}

	if !zone.MultiOutput() {
		return c.setVolumeLocked(ctx, zone, master)
	}

	delta := clampVolume(master) - zone.MasterVolume()
	for i := range zone.Outputs {
		zone.Outputs[i].Volume = clampVolume(zone.Outputs[i].Volume + delta)
	}
	zone.Volume = zone.MasterVolume()

	var wg sync.WaitGroup
	failures := make([]string, len(zone.Outputs))
	for i := range zone.Outputs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out := zone.Outputs[i]
			outcome := c.dispatch(ctx, OutputVolumeRequest(out, out.Volume), zone.ID)
			if !outcome.Success {
				failures[i] = outcome.Err
			}
		}(i)
	}
	wg.Wait()

	for i, errText := range failures {
		if errText != "" {
			c.logWarn("master volume batch failed",
				"zone_id", zone.ID,
				"output", zone.Outputs[i].ID,
				"error", errText)
			reloaded, reloadErr := c.reloadLocked(ctx, zone)
			if reloadErr != nil {
				return nil, fmt.Errorf("%w: reload also failed: %v", ErrBatchReverted, reloadErr)
			}
			return reloaded, ErrBatchReverted
		}
	}

	return c.commit(ctx, zone)
}

// setVolumeLocked is SetVolume without re-locking, for the single-output
// master path.
func (c *Controller) setVolumeLocked(ctx context.Context, zone *Zone, volume float64) (*Zone, error) {
	channel, err := zone.Channel()
	if err != nil {
		return nil, err
	}
	req, err := VolumeRequest(channel, clampVolume(volume))
	if err != nil {
		return nil, err
	}

	zone.Volume = clampVolume(volume)
	if len(zone.Outputs) == 1 {
		zone.Outputs[0].Volume = zone.Volume
	}

	outcome := c.dispatch(ctx, req, zone.ID)
	if !outcome.Success {
		return c.revert(ctx, zone, outcome.Err)
	}
	return c.commit(ctx, zone)
}

// ReloadZone refetches a zone's state from hardware and persists it,
// discarding whatever the store held.
func (c *Controller) ReloadZone(ctx context.Context, zoneID string) (*Zone, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	zone, err := c.store.LoadZone(ctx, zoneID)
	if err != nil {
		return nil, err
	}
	return c.reloadLocked(ctx, zone)
}

// reloadLocked queries the unit for every gain and mute value the zone
// carries and persists the result as the new truth.
func (c *Controller) reloadLocked(ctx context.Context, zone *Zone) (*Zone, error) {
	channel, err := zone.Channel()
	if err != nil {
		return nil, err
	}

	fresh := *zone
	fresh.Outputs = make([]ZoneOutput, len(zone.Outputs))
	copy(fresh.Outputs, zone.Outputs)

	volReq, err := QueryVolumeRequest(channel)
	if err != nil {
		return nil, err
	}
	volParam, _ := zoneGainParam(channel)
	outcome := c.dispatch(ctx, volReq, zone.ID)
	if !outcome.Success {
		return nil, fmt.Errorf("%w: zone gain query: %s", ErrCommandFailed, outcome.Err)
	}
	v, err := ParseGainReply(outcome.Response, volParam)
	if err != nil {
		return nil, fmt.Errorf("%w: zone gain reply: %s", ErrCommandFailed, err)
	}
	fresh.Volume = clampVolume(v)

	muteReq, err := QueryMuteRequest(channel)
	if err != nil {
		return nil, err
	}
	muteParam, _ := zoneMuteParam(channel)
	outcome = c.dispatch(ctx, muteReq, zone.ID)
	if !outcome.Success {
		return nil, fmt.Errorf("%w: zone mute query: %s", ErrCommandFailed, outcome.Err)
	}
	muted, err := ParseMuteReply(outcome.Response, muteParam)
	if err != nil {
		return nil, fmt.Errorf("%w: zone mute reply: %s", ErrCommandFailed, err)
	}
	fresh.Muted = muted

	for i := range fresh.Outputs {
		out := fresh.Outputs[i]
		outcome := c.dispatch(ctx, QueryOutputVolumeRequest(out), zone.ID)
		if !outcome.Success {
			return nil, fmt.Errorf("%w: output %s query: %s", ErrCommandFailed, out.ID, outcome.Err)
		}
		v, err := ParseGainReply(outcome.Response, outputGainParam(out))
		if err != nil {
			return nil, fmt.Errorf("%w: output %s reply: %s", ErrCommandFailed, out.ID, err)
		}
		fresh.Outputs[i].Volume = clampVolume(v)
	}
	if fresh.MultiOutput() {
		fresh.Volume = fresh.MasterVolume()
	}

	if err := c.store.SaveZone(ctx, &fresh); err != nil {
		return nil, fmt.Errorf("persist reloaded zone: %w", err)
	}
	c.publish(ctx, &fresh)

	c.logInfo("zone reloaded from hardware", "zone_id", fresh.ID, "volume", fresh.Volume, "muted", fresh.Muted)
	return &fresh, nil
}

// commit persists and publishes a successfully applied zone state.
func (c *Controller) commit(ctx context.Context, zone *Zone) (*Zone, error) {
	if err := c.store.SaveZone(ctx, zone); err != nil {
		return nil, fmt.Errorf("persist zone: %w", err)
	}
	c.publish(ctx, zone)
	return zone, nil
}

// revert discards an optimistic update by reloading from hardware. The
// returned error carries the original command failure.
func (c *Controller) revert(ctx context.Context, zone *Zone, cmdErr string) (*Zone, error) {
	c.logWarn("command failed, reloading zone", "zone_id", zone.ID, "error", cmdErr)

	reloaded, err := c.reloadLocked(ctx, zone)
	if err != nil {
		return nil, fmt.Errorf("%w: %s (reload also failed: %v)", ErrCommandFailed, cmdErr, err)
	}
	return reloaded, fmt.Errorf("%w: %s", ErrCommandFailed, cmdErr)
}

// dispatch sends one command and records it in the audit trail.
func (c *Controller) dispatch(ctx context.Context, req control.Request, zoneID string) control.Outcome {
	outcome := c.sender.Send(ctx, req)

	if c.sink != nil {
		auditCtx := ctx
		if auditCtx.Err() != nil {
			auditCtx = context.Background()
		}
		rec := &audit.Record{
			TestType:     req.Kind,
			DeviceID:     c.sender.Endpoint().DeviceID,
			Command:      req.Command,
			Response:     outcome.Response,
			Success:      outcome.Success,
			ErrorMessage: outcome.Err,
			DurationMs:   outcome.DurationMs(),
			Metadata:     map[string]any{"zone_id": zoneID},
		}
		if err := c.sink.Create(auditCtx, rec); err != nil {
			c.logWarn("audit record failed", "test_type", req.Kind, "error", err)
		}
	}

	return outcome
}

func (c *Controller) publish(ctx context.Context, zone *Zone) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.PublishZoneState(ctx, zone); err != nil {
		c.logWarn("zone state publish failed", "zone_id", zone.ID, "error", err)
	}
}

func (c *Controller) logInfo(msg string, keysAndValues ...any) {
	if c.logger != nil {
		c.logger.Info(msg, keysAndValues...)
	}
}

func (c *Controller) logWarn(msg string, keysAndValues ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, keysAndValues...)
	}
}
