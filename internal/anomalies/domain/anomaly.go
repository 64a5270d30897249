package anomalies

import (
	"context"
	"errors"
	"time"
)

// Status is the lifecycle state of an anomaly record.
type Status string

const (
	StatusOpen          Status = "open"
	StatusInvestigating Status = "investigating"
	StatusResolved      Status = "resolved"
)

// ErrNotFound indicates a missing anomaly record.
var ErrNotFound = errors.New("anomalies: not found")

// ErrInvalidTransition rejects an illegal status change.
var ErrInvalidTransition = errors.New("anomalies: invalid transition")

// Record is a lifecycle-tracked anomaly. Records are retained indefinitely;
// resolution is a status, not removal.
type Record struct {
	ID           string    `json:"id"`
	MachineID    string    `json:"machine_id"`
	Parameter    string    `json:"parameter"`
	Observed     float64   `json:"observed"`
	Expected     float64   `json:"expected"`
	DeviationPct float64   `json:"deviation_pct"`
	Score        float64   `json:"score"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	ResolvedAt   time.Time `json:"resolved_at,omitempty"`
}

// Active reports whether the record still requires attention.
func (r Record) Active() bool {
	return r.Status == StatusOpen || r.Status == StatusInvestigating
}

// Valid returns true when the status is supported.
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusInvestigating, StatusResolved:
		return true
	default:
		return false
	}
}

// CanTransition enforces the one-directional lifecycle
// open -> investigating -> resolved, with investigating -> open allowed.
// Resolved is terminal.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusOpen:
		return to == StatusInvestigating || to == StatusResolved
	case StatusInvestigating:
		return to == StatusOpen || to == StatusResolved
	default:
		return false
	}
}

// Filter narrows anomaly listings.
type Filter struct {
	Status    Status
	MachineID string
	Search    string
	From      time.Time
	To        time.Time
	Limit     int
	Offset    int
}

// Repository persists anomaly records.
type Repository interface {
	Insert(ctx context.Context, r Record) error
	Update(ctx context.Context, r Record) error
	GetByID(ctx context.Context, id string) (*Record, error)
	// FindActive returns the single open or investigating record for the
	// key, or nil. At most one such record may exist per key.
	FindActive(ctx context.Context, machineID, parameter string) (*Record, error)
	// FindLatestResolved returns the most recently resolved record for the
	// key, or nil, for debounce checks.
	FindLatestResolved(ctx context.Context, machineID, parameter string) (*Record, error)
	List(ctx context.Context, filter Filter) ([]Record, error)
	CountActive(ctx context.Context) (int, error)
	CountActiveByMachine(ctx context.Context) (map[string]int, error)
}
