package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/quarterline/avops-core/internal/control"
)

// Repository defines device persistence operations. The abstraction keeps
// the registry testable without a database.
type Repository interface {
	// GetByID retrieves a device by its unique identifier.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// List retrieves all devices ordered by name.
	List(ctx context.Context) ([]Device, error)

	// ListByFamily retrieves all devices of one protocol family.
	ListByFamily(ctx context.Context, family Family) ([]Device, error)

	// Upsert inserts the device or replaces the existing record with the
	// same ID. Used at startup to sync configuration into the store.
	Upsert(ctx context.Context, device *Device) error

	// Delete removes a device by ID.
	// Returns ErrDeviceNotFound if the device does not exist.
	Delete(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetByID retrieves a device by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	query := `
		SELECT id, name, family, ip_address, tcp_port, udp_port, protocol,
			inputs, outputs, created_at, updated_at
		FROM devices
		WHERE id = ?`

	device, err := scanDevice(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return device, nil
}

// List retrieves all devices ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	query := `
		SELECT id, name, family, ip_address, tcp_port, udp_port, protocol,
			inputs, outputs, created_at, updated_at
		FROM devices
		ORDER BY name`

	return r.queryDevices(ctx, query)
}

// ListByFamily retrieves all devices of one protocol family.
func (r *SQLiteRepository) ListByFamily(ctx context.Context, family Family) ([]Device, error) {
	query := `
		SELECT id, name, family, ip_address, tcp_port, udp_port, protocol,
			inputs, outputs, created_at, updated_at
		FROM devices
		WHERE family = ?
		ORDER BY name`

	return r.queryDevices(ctx, query, string(family))
}

// Upsert inserts or replaces a device record.
func (r *SQLiteRepository) Upsert(ctx context.Context, device *Device) error {
	if err := device.Validate(); err != nil {
		return err
	}

	inputs, err := json.Marshal(device.Inputs)
	if err != nil {
		return fmt.Errorf("marshaling inputs: %w", err)
	}
	outputs, err := json.Marshal(device.Outputs)
	if err != nil {
		return fmt.Errorf("marshaling outputs: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	query := `
		INSERT INTO devices (id, name, family, ip_address, tcp_port, udp_port,
			protocol, inputs, outputs, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			family = excluded.family,
			ip_address = excluded.ip_address,
			tcp_port = excluded.tcp_port,
			udp_port = excluded.udp_port,
			protocol = excluded.protocol,
			inputs = excluded.inputs,
			outputs = excluded.outputs,
			updated_at = excluded.updated_at`

	_, err = r.db.ExecContext(ctx, query,
		device.ID, device.Name, string(device.Family),
		device.IPAddress, device.TCPPort, device.UDPPort, string(device.Protocol),
		string(inputs), string(outputs), now, now)
	if err != nil {
		return fmt.Errorf("upserting device %s: %w", device.ID, err)
	}
	return nil
}

// Delete removes a device by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM devices WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting device %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if affected == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

func (r *SQLiteRepository) queryDevices(ctx context.Context, query string, args ...any) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	devices := make([]Device, 0)
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *device)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// scanner abstracts sql.Row and sql.Rows for scanDevice.
type scanner interface {
	Scan(dest ...any) error
}

func scanDevice(row scanner) (*Device, error) {
	var (
		d                Device
		family, protocol string
		inputs, outputs  string
		created, updated string
	)

	err := row.Scan(&d.ID, &d.Name, &family, &d.IPAddress, &d.TCPPort,
		&d.UDPPort, &protocol, &inputs, &outputs, &created, &updated)
	if err != nil {
		return nil, err
	}

	d.Family = Family(family)
	d.Protocol = control.Transport(protocol)

	if inputs != "" {
		if err := json.Unmarshal([]byte(inputs), &d.Inputs); err != nil {
			return nil, fmt.Errorf("unmarshaling inputs for %s: %w", d.ID, err)
		}
	}
	if outputs != "" {
		if err := json.Unmarshal([]byte(outputs), &d.Outputs); err != nil {
			return nil, fmt.Errorf("unmarshaling outputs for %s: %w", d.ID, err)
		}
	}

	if t, err := time.Parse(time.RFC3339, created); err == nil {
		d.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, updated); err == nil {
		d.UpdatedAt = t
	}
	return &d, nil
}
