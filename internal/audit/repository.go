// Package audit persists the device command trail: every command sent to
// hardware, its raw response, classified outcome, and duration, plus one
// summary row per verification sweep.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Record is a single command-trail entry.
type Record struct {
	ID           string         `json:"id"`
	TestType     string         `json:"test_type"` // switch, sweep_summary, volume, mute, output_volume, query, probe
	DeviceID     string         `json:"device_id,omitempty"`
	Command      string         `json:"command"`
	Response     string         `json:"response,omitempty"`
	Success      bool           `json:"success"`
	ErrorMessage string         `json:"error_message,omitempty"`
	DurationMs   int64          `json:"duration_ms"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Filter controls which records to return.
type Filter struct {
	TestType     string // optional: filter by test type
	DeviceID     string // optional: filter by device
	FailuresOnly bool   // optional: only unsuccessful commands
	Limit        int    // default 50, max 200
	Offset       int    // pagination offset
}

// ListResult contains the paginated command trail results.
type ListResult struct {
	Records []Record `json:"records"`
	Total   int      `json:"total"`
	Limit   int      `json:"limit"`
	Offset  int      `json:"offset"`
}

// Repository defines the interface for command trail operations.
type Repository interface {
	Create(ctx context.Context, rec *Record) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores command records in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new command trail repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a new command record. The ID and CreatedAt are generated
// if empty.
func (r *SQLiteRepository) Create(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = "cmd-" + uuid.NewString()[:8]
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	var metadataJSON *string
	if rec.Metadata != nil {
		b, err := json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("marshalling command metadata: %w", err)
		}
		s := string(b)
		metadataJSON = &s
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO command_logs (id, test_type, device_id, command, response, success, error_message, duration_ms, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.TestType,
		nullableString(rec.DeviceID),
		rec.Command,
		nullableString(rec.Response),
		rec.Success,
		nullableString(rec.ErrorMessage),
		rec.DurationMs, metadataJSON,
		rec.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting command record: %w", err)
	}

	return nil
}

// nullableString returns nil for empty strings, or the string otherwise.
// Used for nullable TEXT columns in SQLite.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns command records matching the filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 { //nolint:mnd // max page size for trail queries
		filter.Limit = 200
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any

	if filter.TestType != "" {
		conditions = append(conditions, "test_type = ?")
		args = append(args, filter.TestType)
	}
	if filter.DeviceID != "" {
		conditions = append(conditions, "device_id = ?")
		args = append(args, filter.DeviceID)
	}
	if filter.FailuresOnly {
		conditions = append(conditions, "success = 0")
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	// WHERE clause is assembled from parameterised conditions only.
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM command_logs %s", where) //nolint:gosec // parameterised
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting command records: %w", err)
	}

	query := fmt.Sprintf( //nolint:gosec // parameterised
		`SELECT id, test_type, device_id, command, response, success, error_message, duration_ms, metadata, created_at
		 FROM command_logs %s ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		where,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying command records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating command records: %w", err)
	}

	if records == nil {
		records = []Record{}
	}

	return &ListResult{
		Records: records,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}

// scanRecord reads one row into a Record, handling nullable columns.
func scanRecord(rows *sql.Rows) (Record, error) {
	var rec Record
	var deviceID, response, errorMessage, metadataJSON sql.NullString
	var createdAt string

	if err := rows.Scan(&rec.ID, &rec.TestType, &deviceID, &rec.Command,
		&response, &rec.Success, &errorMessage, &rec.DurationMs,
		&metadataJSON, &createdAt); err != nil {
		return rec, fmt.Errorf("scanning command record: %w", err)
	}

	if deviceID.Valid {
		rec.DeviceID = deviceID.String
	}
	if response.Valid {
		rec.Response = response.String
	}
	if errorMessage.Valid {
		rec.ErrorMessage = errorMessage.String
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		var metadata map[string]any
		if json.Unmarshal([]byte(metadataJSON.String), &metadata) == nil {
			rec.Metadata = metadata
		}
	}

	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return rec, fmt.Errorf("parsing command record timestamp %q: %w", createdAt, err)
	}
	rec.CreatedAt = t

	return rec, nil
}
