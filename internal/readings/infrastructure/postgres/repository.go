package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	readings "machinery-cloud/internal/readings/domain"
)

const defaultReadingTable = "machine_readings"

// ReadingStore is a Postgres implementation of the append-only reading store.
// The table is expected to be time-partitioned on ts with a unique key
// (machine_id, parameter, ts).
type ReadingStore struct {
	db    *sql.DB
	table string
}

// StoreOption configures the store.
type StoreOption func(*ReadingStore)

// WithTable overrides the default table name.
func WithTable(table string) StoreOption {
	return func(s *ReadingStore) {
		if table != "" {
			s.table = table
		}
	}
}

// NewReadingStore constructs a store with the default table name.
func NewReadingStore(db *sql.DB, opts ...StoreOption) *ReadingStore {
	store := &ReadingStore{db: db, table: defaultReadingTable}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Append inserts a reading.
func (s *ReadingStore) Append(ctx context.Context, r readings.Reading) error {
	if s == nil || s.db == nil {
		return errors.New("reading store: nil db")
	}
	if err := r.Validate(); err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (machine_id, parameter, value, ts)
VALUES ($1, $2, $3, $4)`, s.table)
	_, err := s.db.ExecContext(ctx, query, r.MachineID, r.Parameter, r.Value, r.Timestamp)
	return err
}

// Query returns readings in ascending timestamp order within [from, to].
func (s *ReadingStore) Query(ctx context.Context, machineID, parameter string, from, to time.Time, limit int) ([]readings.Reading, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("reading store: nil db")
	}
	if to.IsZero() {
		to = time.Now().UTC().Add(24 * time.Hour)
	}
	if limit <= 0 {
		limit = 10000
	}
	query := fmt.Sprintf(`
SELECT machine_id, parameter, value, ts
FROM %s
WHERE machine_id = $1 AND parameter = $2 AND ts >= $3 AND ts <= $4
ORDER BY ts ASC
LIMIT $5`, s.table)
	rows, err := s.db.QueryContext(ctx, query, machineID, parameter, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]readings.Reading, 0)
	for rows.Next() {
		var r readings.Reading
		if err := rows.Scan(&r.MachineID, &r.Parameter, &r.Value, &r.Timestamp); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// LastTimestamp returns the newest stored timestamp for the key.
func (s *ReadingStore) LastTimestamp(ctx context.Context, machineID, parameter string) (time.Time, error) {
	if s == nil || s.db == nil {
		return time.Time{}, errors.New("reading store: nil db")
	}
	query := fmt.Sprintf(`
SELECT ts FROM %s
WHERE machine_id = $1 AND parameter = $2
ORDER BY ts DESC LIMIT 1`, s.table)
	var ts time.Time
	err := s.db.QueryRowContext(ctx, query, machineID, parameter).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return ts, nil
}
