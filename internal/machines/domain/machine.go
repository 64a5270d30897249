package machines

import (
	"context"
	"errors"
	"time"
)

// Type identifies the kind of industrial machine.
type Type string

const (
	TypeLathe      Type = "lathe"
	TypeMill       Type = "mill"
	TypeInjector   Type = "injector"
	TypeRobot      Type = "robot"
	TypeCompressor Type = "compressor"
)

// Status is the operational state of a machine.
type Status string

const (
	StatusOperational    Status = "operational"
	StatusMaintenance    Status = "maintenance"
	StatusWarning        Status = "warning"
	StatusError          Status = "error"
	StatusDecommissioned Status = "decommissioned"
)

// ErrNotFound indicates a missing machine record.
var ErrNotFound = errors.New("machines: not found")

// ErrDecommissioned indicates the machine has been retired.
var ErrDecommissioned = errors.New("machines: decommissioned")

// Machine is a registered industrial machine.
// Status and efficiency are mutated only by the maintenance estimator
// and operator overrides; machines are retired, never deleted.
type Machine struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Type       Type      `json:"type"`
	Status     Status    `json:"status"`
	Efficiency float64   `json:"efficiency"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Validate checks machine invariants.
func (m Machine) Validate() error {
	if m.ID == "" {
		return errors.New("machines: empty id")
	}
	if m.Name == "" {
		return errors.New("machines: empty name")
	}
	if !m.Type.Valid() {
		return errors.New("machines: invalid type")
	}
	if !m.Status.Valid() {
		return errors.New("machines: invalid status")
	}
	if m.Efficiency < 0 || m.Efficiency > 100 {
		return errors.New("machines: efficiency out of range")
	}
	return nil
}

// Valid returns true when the type is supported.
func (t Type) Valid() bool {
	switch t {
	case TypeLathe, TypeMill, TypeInjector, TypeRobot, TypeCompressor:
		return true
	default:
		return false
	}
}

// Valid returns true when the status is supported.
func (s Status) Valid() bool {
	switch s {
	case StatusOperational, StatusMaintenance, StatusWarning, StatusError, StatusDecommissioned:
		return true
	default:
		return false
	}
}

// Repository persists machine records.
type Repository interface {
	Insert(ctx context.Context, m Machine) error
	Get(ctx context.Context, id string) (*Machine, error)
	List(ctx context.Context) ([]Machine, error)
	Update(ctx context.Context, m Machine) error
}
