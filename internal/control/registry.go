package control

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds one Conn per configured device, keyed by device id.
//
// It replaces the "one global live connection per device" pattern with an
// explicit object constructed at startup and injected into callers, while
// preserving the one-connection-per-device invariant.
//
// Thread Safety: all methods are safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Conn
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]*Conn),
	}
}

// Register adds a connection under its endpoint's device id.
// Registering the same id twice is a configuration error.
func (r *Registry) Register(conn *Conn) error {
	id := conn.Endpoint().DeviceID

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conns[id]; exists {
		return fmt.Errorf("%w: device %q already registered", ErrInvalidEndpoint, id)
	}
	r.conns[id] = conn
	return nil
}

// Get returns the connection for a device id.
func (r *Registry) Get(deviceID string) (*Conn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[deviceID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDevice, deviceID)
	}
	return conn, nil
}

// List returns all registered connections, ordered by device id.
func (r *Registry) List() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	sort.Slice(conns, func(i, j int) bool {
		return conns[i].Endpoint().DeviceID < conns[j].Endpoint().DeviceID
	})
	return conns
}

// Count returns the number of registered devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
