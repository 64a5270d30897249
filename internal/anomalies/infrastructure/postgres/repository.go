package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	anomalies "machinery-cloud/internal/anomalies/domain"
)

const defaultAnomalyTable = "anomaly_records"

// AnomalyRepository is a Postgres implementation of the anomaly repository.
type AnomalyRepository struct {
	db    *sql.DB
	table string
}

// RepositoryOption configures the repository.
type RepositoryOption func(*AnomalyRepository)

// WithTable overrides the default table name.
func WithTable(table string) RepositoryOption {
	return func(repo *AnomalyRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// NewAnomalyRepository constructs a repository with the default table name.
func NewAnomalyRepository(db *sql.DB, opts ...RepositoryOption) *AnomalyRepository {
	repo := &AnomalyRepository{db: db, table: defaultAnomalyTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

const anomalyColumns = "id, machine_id, parameter, observed, expected, deviation_pct, score, status, created_at, updated_at, resolved_at"

// Insert stores a new record.
func (r *AnomalyRepository) Insert(ctx context.Context, rec anomalies.Record) error {
	if r == nil || r.db == nil {
		return errors.New("anomaly repo: nil db")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (%s)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`, r.table, anomalyColumns)
	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.MachineID, rec.Parameter, rec.Observed, rec.Expected,
		rec.DeviationPct, rec.Score, string(rec.Status), rec.CreatedAt, rec.UpdatedAt, nullTime(rec.ResolvedAt))
	return err
}

// Update replaces an existing record.
func (r *AnomalyRepository) Update(ctx context.Context, rec anomalies.Record) error {
	if r == nil || r.db == nil {
		return errors.New("anomaly repo: nil db")
	}
	query := fmt.Sprintf(`
UPDATE %s SET observed = $2, expected = $3, deviation_pct = $4, score = $5,
	status = $6, updated_at = $7, resolved_at = $8
WHERE id = $1`, r.table)
	res, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.Observed, rec.Expected, rec.DeviationPct, rec.Score,
		string(rec.Status), rec.UpdatedAt, nullTime(rec.ResolvedAt))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return anomalies.ErrNotFound
	}
	return nil
}

// GetByID loads a record.
func (r *AnomalyRepository) GetByID(ctx context.Context, id string) (*anomalies.Record, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("anomaly repo: nil db")
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, anomalyColumns, r.table)
	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, anomalies.ErrNotFound
	}
	return rec, err
}

// FindActive returns the open or investigating record for the key, or nil.
func (r *AnomalyRepository) FindActive(ctx context.Context, machineID, parameter string) (*anomalies.Record, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("anomaly repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT %s FROM %s
WHERE machine_id = $1 AND parameter = $2 AND status IN ('open', 'investigating')
ORDER BY created_at DESC LIMIT 1`, anomalyColumns, r.table)
	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, machineID, parameter))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

// FindLatestResolved returns the most recently resolved record for the key, or nil.
func (r *AnomalyRepository) FindLatestResolved(ctx context.Context, machineID, parameter string) (*anomalies.Record, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("anomaly repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT %s FROM %s
WHERE machine_id = $1 AND parameter = $2 AND status = 'resolved'
ORDER BY resolved_at DESC LIMIT 1`, anomalyColumns, r.table)
	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, machineID, parameter))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

// List returns records matching the filter, newest first.
func (r *AnomalyRepository) List(ctx context.Context, filter anomalies.Filter) ([]anomalies.Record, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("anomaly repo: nil db")
	}
	conditions := []string{"1=1"}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = "+arg(string(filter.Status)))
	}
	if filter.MachineID != "" {
		conditions = append(conditions, "machine_id = "+arg(filter.MachineID))
	}
	if filter.Search != "" {
		placeholder := arg("%" + strings.ToLower(filter.Search) + "%")
		conditions = append(conditions, fmt.Sprintf("(LOWER(parameter) LIKE %s OR LOWER(machine_id) LIKE %s)", placeholder, placeholder))
	}
	if !filter.From.IsZero() {
		conditions = append(conditions, "created_at >= "+arg(filter.From))
	}
	if !filter.To.IsZero() {
		conditions = append(conditions, "created_at <= "+arg(filter.To))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`
SELECT %s FROM %s
WHERE %s
ORDER BY created_at DESC, id ASC
LIMIT %s OFFSET %s`, anomalyColumns, r.table, strings.Join(conditions, " AND "), arg(limit), arg(filter.Offset))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]anomalies.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rec)
	}
	return result, rows.Err()
}

// CountActive returns the number of open and investigating records.
func (r *AnomalyRepository) CountActive(ctx context.Context) (int, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("anomaly repo: nil db")
	}
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE status IN ('open', 'investigating')`, r.table)
	var count int
	err := r.db.QueryRowContext(ctx, query).Scan(&count)
	return count, err
}

// CountActiveByMachine returns the active record count per machine.
func (r *AnomalyRepository) CountActiveByMachine(ctx context.Context) (map[string]int, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("anomaly repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT machine_id, COUNT(*) FROM %s
WHERE status IN ('open', 'investigating')
GROUP BY machine_id`, r.table)
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var machineID string
		var count int
		if err := rows.Scan(&machineID, &count); err != nil {
			return nil, err
		}
		counts[machineID] = count
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*anomalies.Record, error) {
	var rec anomalies.Record
	var status string
	var resolvedAt sql.NullTime
	if err := row.Scan(&rec.ID, &rec.MachineID, &rec.Parameter, &rec.Observed, &rec.Expected,
		&rec.DeviationPct, &rec.Score, &status, &rec.CreatedAt, &rec.UpdatedAt, &resolvedAt); err != nil {
		return nil, err
	}
	rec.Status = anomalies.Status(status)
	if resolvedAt.Valid {
		rec.ResolvedAt = resolvedAt.Time
	}
	return &rec, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
