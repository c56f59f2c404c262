package device

import (
	"fmt"
	"time"

	"github.com/quarterline/avops-core/internal/control"
)

// Family identifies a device's protocol family, which selects the codec and
// response classifier used for it.
type Family string

// Supported device families.
const (
	// FamilyMatrix is an ASCII-protocol video matrix switcher.
	FamilyMatrix Family = "matrix"

	// FamilyAtlas is an AtlasIED zone processor (AZM4, AZM8, Atmosphere).
	FamilyAtlas Family = "atlas"
)

// Valid reports whether the family is one the console can drive.
func (f Family) Valid() bool {
	return f == FamilyMatrix || f == FamilyAtlas
}

// Device is one physical AV unit: its network endpoint and, for matrix
// switchers, the active channel lists used by sweep tests.
type Device struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Family Family `json:"family"`

	// Endpoint configuration. Protocol selects the transport used for
	// commands; both ports stay configured so the transport can be
	// switched without re-provisioning.
	IPAddress string            `json:"ip_address"`
	TCPPort   int               `json:"tcp_port"`
	UDPPort   int               `json:"udp_port"`
	Protocol  control.Transport `json:"protocol"`

	// Active channel lists, 1-based. Empty for zone processors.
	Inputs  []int `json:"inputs,omitempty"`
	Outputs []int `json:"outputs,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Endpoint builds the control-layer endpoint for the device's configured
// transport.
func (d *Device) Endpoint() control.Endpoint {
	port := d.TCPPort
	if d.Protocol == control.TransportUDP {
		port = d.UDPPort
	}
	return control.Endpoint{
		DeviceID:  d.ID,
		Address:   d.IPAddress,
		Port:      port,
		Transport: d.Protocol,
	}
}

// Validate checks the record is complete enough to dial.
func (d *Device) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidDevice)
	}
	if !d.Family.Valid() {
		return fmt.Errorf("%w: unknown family %q", ErrInvalidDevice, d.Family)
	}
	if d.IPAddress == "" {
		return fmt.Errorf("%w: %s has no ip address", ErrInvalidDevice, d.ID)
	}
	switch d.Protocol {
	case control.TransportTCP:
		if d.TCPPort < 1 || d.TCPPort > 65535 {
			return fmt.Errorf("%w: %s tcp port %d", ErrInvalidDevice, d.ID, d.TCPPort)
		}
	case control.TransportUDP:
		if d.UDPPort < 1 || d.UDPPort > 65535 {
			return fmt.Errorf("%w: %s udp port %d", ErrInvalidDevice, d.ID, d.UDPPort)
		}
	default:
		return fmt.Errorf("%w: %s protocol %q", ErrInvalidDevice, d.ID, d.Protocol)
	}
	for _, ch := range d.Inputs {
		if ch < 1 {
			return fmt.Errorf("%w: %s input channel %d", ErrInvalidDevice, d.ID, ch)
		}
	}
	for _, ch := range d.Outputs {
		if ch < 1 {
			return fmt.Errorf("%w: %s output channel %d", ErrInvalidDevice, d.ID, ch)
		}
	}
	return nil
}

// Clone returns an independent copy so cached records cannot be mutated
// through returned pointers.
func (d *Device) Clone() *Device {
	if d == nil {
		return nil
	}
	cpy := *d
	if d.Inputs != nil {
		cpy.Inputs = append([]int(nil), d.Inputs...)
	}
	if d.Outputs != nil {
		cpy.Outputs = append([]int(nil), d.Outputs...)
	}
	return &cpy
}
