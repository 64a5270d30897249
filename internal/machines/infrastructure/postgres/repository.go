package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	machines "machinery-cloud/internal/machines/domain"
)

const defaultMachineTable = "machines"

// MachineRepository is a Postgres implementation of the machine repository.
type MachineRepository struct {
	db    *sql.DB
	table string
}

// RepositoryOption configures the repository.
type RepositoryOption func(*MachineRepository)

// WithTable overrides the default table name.
func WithTable(table string) RepositoryOption {
	return func(repo *MachineRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// NewMachineRepository constructs a repository with the default table name.
func NewMachineRepository(db *sql.DB, opts ...RepositoryOption) *MachineRepository {
	repo := &MachineRepository{db: db, table: defaultMachineTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// Insert stores a new machine.
func (r *MachineRepository) Insert(ctx context.Context, m machines.Machine) error {
	if r == nil || r.db == nil {
		return errors.New("machine repo: nil db")
	}
	if err := m.Validate(); err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (id, name, machine_type, status, efficiency, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`, r.table)
	_, err := r.db.ExecContext(ctx, query, m.ID, m.Name, string(m.Type), string(m.Status), m.Efficiency, m.CreatedAt, m.UpdatedAt)
	return err
}

// Get loads a machine by id.
func (r *MachineRepository) Get(ctx context.Context, id string) (*machines.Machine, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("machine repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT id, name, machine_type, status, efficiency, created_at, updated_at
FROM %s WHERE id = $1`, r.table)
	row := r.db.QueryRowContext(ctx, query, id)
	var m machines.Machine
	var machineType, status string
	if err := row.Scan(&m.ID, &m.Name, &machineType, &status, &m.Efficiency, &m.CreatedAt, &m.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, machines.ErrNotFound
		}
		return nil, err
	}
	m.Type = machines.Type(machineType)
	m.Status = machines.Status(status)
	return &m, nil
}

// List returns all machines ordered by id.
func (r *MachineRepository) List(ctx context.Context) ([]machines.Machine, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("machine repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT id, name, machine_type, status, efficiency, created_at, updated_at
FROM %s ORDER BY id`, r.table)
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []machines.Machine
	for rows.Next() {
		var m machines.Machine
		var machineType, status string
		if err := rows.Scan(&m.ID, &m.Name, &machineType, &status, &m.Efficiency, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		m.Type = machines.Type(machineType)
		m.Status = machines.Status(status)
		result = append(result, m)
	}
	return result, rows.Err()
}

// Update replaces an existing machine record.
func (r *MachineRepository) Update(ctx context.Context, m machines.Machine) error {
	if r == nil || r.db == nil {
		return errors.New("machine repo: nil db")
	}
	if err := m.Validate(); err != nil {
		return err
	}
	query := fmt.Sprintf(`
UPDATE %s SET name = $2, machine_type = $3, status = $4, efficiency = $5, updated_at = $6
WHERE id = $1`, r.table)
	res, err := r.db.ExecContext(ctx, query, m.ID, m.Name, string(m.Type), string(m.Status), m.Efficiency, m.UpdatedAt)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return machines.ErrNotFound
	}
	return nil
}
