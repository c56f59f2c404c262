package device

import "errors"

var (
	// ErrDeviceNotFound is returned when a device ID resolves to nothing.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when creating a device whose ID is taken.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidDevice is returned when a device record fails validation.
	ErrInvalidDevice = errors.New("device: invalid record")
)
