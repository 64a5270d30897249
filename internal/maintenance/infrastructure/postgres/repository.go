package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	maintenance "machinery-cloud/internal/maintenance/domain"
)

const defaultScheduleTable = "maintenance_schedule"

// ScheduleRepository is a Postgres implementation of the schedule repository.
type ScheduleRepository struct {
	db    *sql.DB
	table string
}

// RepositoryOption configures the repository.
type RepositoryOption func(*ScheduleRepository)

// WithTable overrides the default table name.
func WithTable(table string) RepositoryOption {
	return func(repo *ScheduleRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// NewScheduleRepository constructs a repository with the default table name.
func NewScheduleRepository(db *sql.DB, opts ...RepositoryOption) *ScheduleRepository {
	repo := &ScheduleRepository{db: db, table: defaultScheduleTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

const scheduleColumns = "id, machine_id, entry_type, scheduled_at, duration_minutes, priority, status, components, created_at, updated_at"

// Insert stores a new entry.
func (r *ScheduleRepository) Insert(ctx context.Context, e maintenance.Entry) error {
	if r == nil || r.db == nil {
		return errors.New("schedule repo: nil db")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (%s)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`, r.table, scheduleColumns)
	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.MachineID, string(e.Type), e.ScheduledAt, int(e.Duration.Minutes()),
		string(e.Priority), string(e.Status), strings.Join(e.Components, ","), e.CreatedAt, e.UpdatedAt)
	return err
}

// Update replaces an existing entry.
func (r *ScheduleRepository) Update(ctx context.Context, e maintenance.Entry) error {
	if r == nil || r.db == nil {
		return errors.New("schedule repo: nil db")
	}
	query := fmt.Sprintf(`
UPDATE %s SET entry_type = $2, scheduled_at = $3, duration_minutes = $4,
	priority = $5, status = $6, components = $7, updated_at = $8
WHERE id = $1`, r.table)
	res, err := r.db.ExecContext(ctx, query,
		e.ID, string(e.Type), e.ScheduledAt, int(e.Duration.Minutes()),
		string(e.Priority), string(e.Status), strings.Join(e.Components, ","), e.UpdatedAt)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return maintenance.ErrNotFound
	}
	return nil
}

// GetByID loads an entry.
func (r *ScheduleRepository) GetByID(ctx context.Context, id string) (*maintenance.Entry, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("schedule repo: nil db")
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, scheduleColumns, r.table)
	entry, err := scanEntry(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, maintenance.ErrNotFound
	}
	return entry, err
}

// List returns entries matching the filter ordered by scheduled date.
func (r *ScheduleRepository) List(ctx context.Context, filter maintenance.Filter) ([]maintenance.Entry, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("schedule repo: nil db")
	}
	conditions := []string{"1=1"}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.MachineID != "" {
		conditions = append(conditions, "machine_id = "+arg(filter.MachineID))
	}
	if filter.Priority != "" {
		conditions = append(conditions, "priority = "+arg(string(filter.Priority)))
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = "+arg(string(filter.Status)))
	}
	query := fmt.Sprintf(`
SELECT %s FROM %s
WHERE %s
ORDER BY scheduled_at ASC, id ASC`, scheduleColumns, r.table, strings.Join(conditions, " AND "))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]maintenance.Entry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *entry)
	}
	return result, rows.Err()
}

// FindScheduled returns scheduled entries of the type due inside the horizon.
func (r *ScheduleRepository) FindScheduled(ctx context.Context, machineID string, entryType maintenance.EntryType, now time.Time, horizon time.Duration) ([]maintenance.Entry, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("schedule repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT %s FROM %s
WHERE machine_id = $1 AND entry_type = $2 AND status = 'scheduled'
	AND scheduled_at >= $3 AND scheduled_at <= $4
ORDER BY scheduled_at ASC`, scheduleColumns, r.table)
	rows, err := r.db.QueryContext(ctx, query, machineID, string(entryType), now, now.Add(horizon))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]maintenance.Entry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *entry)
	}
	return result, rows.Err()
}

// CountDueWithin counts scheduled entries due inside the horizon.
func (r *ScheduleRepository) CountDueWithin(ctx context.Context, now time.Time, horizon time.Duration) (int, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("schedule repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT COUNT(*) FROM %s
WHERE status = 'scheduled' AND scheduled_at <= $1`, r.table)
	var count int
	err := r.db.QueryRowContext(ctx, query, now.Add(horizon)).Scan(&count)
	return count, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*maintenance.Entry, error) {
	var e maintenance.Entry
	var entryType, priority, status, components string
	var durationMinutes int
	if err := row.Scan(&e.ID, &e.MachineID, &entryType, &e.ScheduledAt, &durationMinutes,
		&priority, &status, &components, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.Type = maintenance.EntryType(entryType)
	e.Priority = maintenance.Priority(priority)
	e.Status = maintenance.EntryStatus(status)
	e.Duration = time.Duration(durationMinutes) * time.Minute
	if components != "" {
		e.Components = strings.Split(components, ",")
	}
	return &e, nil
}
