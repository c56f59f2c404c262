package atlas

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLiteStore persists zones and their outputs. It implements Store.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLite-backed zone store.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

var _ Store = (*SQLiteStore)(nil)

// LoadZone retrieves a zone and its outputs ordered by position.
// Returns ErrUnknownZone if the zone does not exist.
func (s *SQLiteStore) LoadZone(ctx context.Context, id string) (*Zone, error) {
	var (
		zone       Zone
		atlasIndex sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, device_id, name, atlas_index, volume, muted
		FROM zones
		WHERE id = ?`, id).
		Scan(&zone.ID, &zone.DeviceID, &zone.Name, &atlasIndex, &zone.Volume, &zone.Muted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownZone, id)
		}
		return nil, fmt.Errorf("querying zone %s: %w", id, err)
	}
	if atlasIndex.Valid {
		idx := int(atlasIndex.Int64)
		zone.AtlasIndex = &idx
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, atlas_index, volume, parameter_name, position
		FROM zone_outputs
		WHERE zone_id = ?
		ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("querying outputs for %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			out   ZoneOutput
			param sql.NullString
		)
		if err := rows.Scan(&out.ID, &out.AtlasIndex, &out.Volume, &param, &out.Position); err != nil {
			return nil, fmt.Errorf("scanning output: %w", err)
		}
		out.ParameterName = param.String
		zone.Outputs = append(zone.Outputs, out)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating outputs: %w", err)
	}

	return &zone, nil
}

// SaveZone upserts a zone and replaces its output rows in one transaction.
func (s *SQLiteStore) SaveZone(ctx context.Context, zone *Zone) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning zone save: %w", err)
	}
	defer tx.Rollback()

	var atlasIndex any
	if zone.AtlasIndex != nil {
		atlasIndex = *zone.AtlasIndex
	}
	now := time.Now().UTC().Format(time.RFC3339)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO zones (id, device_id, name, atlas_index, volume, muted, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			device_id = excluded.device_id,
			name = excluded.name,
			atlas_index = excluded.atlas_index,
			volume = excluded.volume,
			muted = excluded.muted,
			updated_at = excluded.updated_at`,
		zone.ID, zone.DeviceID, zone.Name, atlasIndex,
		clampVolume(zone.Volume), zone.Muted, now)
	if err != nil {
		return fmt.Errorf("upserting zone %s: %w", zone.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM zone_outputs WHERE zone_id = ?`, zone.ID); err != nil {
		return fmt.Errorf("clearing outputs for %s: %w", zone.ID, err)
	}
	for _, out := range zone.Outputs {
		// parameter_name is NOT NULL; empty means "derive OutputGain_{i}".
		_, err := tx.ExecContext(ctx, `
			INSERT INTO zone_outputs (id, zone_id, atlas_index, volume, parameter_name, position)
			VALUES (?, ?, ?, ?, ?, ?)`,
			out.ID, zone.ID, out.AtlasIndex, clampVolume(out.Volume), out.ParameterName, out.Position)
		if err != nil {
			return fmt.Errorf("inserting output %s: %w", out.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing zone save: %w", err)
	}
	return nil
}

// ListZones returns zones with their outputs, ordered by name then id.
// An empty deviceID returns every zone.
func (s *SQLiteStore) ListZones(ctx context.Context, deviceID string) ([]Zone, error) {
	query := `SELECT id FROM zones ORDER BY name, id`
	args := []any{}
	if deviceID != "" {
		query = `SELECT id FROM zones WHERE device_id = ? ORDER BY name, id`
		args = append(args, deviceID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing zones: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning zone id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating zones: %w", err)
	}

	zones := make([]Zone, 0, len(ids))
	for _, id := range ids {
		zone, err := s.LoadZone(ctx, id)
		if err != nil {
			return nil, err
		}
		zones = append(zones, *zone)
	}
	return zones, nil
}
