package device

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Registry is an in-memory device cache over a Repository. Reads come from
// the cache; writes go through to the repository first and update the cache
// only on success.
//
// Thread Safety: all methods are safe for concurrent use. Returned devices
// are clones, so callers cannot corrupt the cache through them.
type Registry struct {
	repo Repository

	mu      sync.RWMutex
	devices map[string]*Device
}

// NewRegistry creates an empty registry over the given repository.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:    repo,
		devices: make(map[string]*Device),
	}
}

// Load replaces the cache with the repository's current contents. Called
// once at startup after configuration has been synced in.
func (r *Registry) Load(ctx context.Context) error {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	fresh := make(map[string]*Device, len(devices))
	for i := range devices {
		fresh[devices[i].ID] = devices[i].Clone()
	}

	r.mu.Lock()
	r.devices = fresh
	r.mu.Unlock()
	return nil
}

// Get returns a device by ID.
// Returns ErrDeviceNotFound if the device does not exist.
func (r *Registry) Get(id string) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	return d.Clone(), nil
}

// List returns all devices sorted by name, then ID for a stable order.
func (r *Registry) List() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	devices := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		devices = append(devices, *d.Clone())
	}
	sort.Slice(devices, func(i, j int) bool {
		if devices[i].Name != devices[j].Name {
			return devices[i].Name < devices[j].Name
		}
		return devices[i].ID < devices[j].ID
	})
	return devices
}

// ListByFamily returns all cached devices of one family, sorted by name.
func (r *Registry) ListByFamily(family Family) []Device {
	all := r.List()
	matched := make([]Device, 0, len(all))
	for _, d := range all {
		if d.Family == family {
			matched = append(matched, d)
		}
	}
	return matched
}

// Upsert persists a device and updates the cache on success.
func (r *Registry) Upsert(ctx context.Context, device *Device) error {
	if err := device.Validate(); err != nil {
		return err
	}
	if err := r.repo.Upsert(ctx, device); err != nil {
		return err
	}

	r.mu.Lock()
	r.devices[device.ID] = device.Clone()
	r.mu.Unlock()
	return nil
}

// Delete removes a device from the repository and the cache.
func (r *Registry) Delete(ctx context.Context, id string) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.devices, id)
	r.mu.Unlock()
	return nil
}

// Count returns the number of cached devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}
