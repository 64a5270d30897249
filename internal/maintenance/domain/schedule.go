package maintenance

import (
	"context"
	"errors"
	"time"
)

// EntryType classifies maintenance work.
type EntryType string

const (
	TypePreventive EntryType = "preventive"
	TypePredictive EntryType = "predictive"
	TypeCorrective EntryType = "corrective"
	TypeRoutine    EntryType = "routine"
)

// Priority orders maintenance urgency. It is derived from the machine's RUL
// bucket, never set directly.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// EntryStatus tracks the schedule entry lifecycle. Entries are cancelled,
// never deleted.
type EntryStatus string

const (
	StatusScheduled EntryStatus = "scheduled"
	StatusCompleted EntryStatus = "completed"
	StatusCancelled EntryStatus = "cancelled"
)

// RULBucket classifies remaining useful life.
type RULBucket string

const (
	BucketHealthy  RULBucket = "healthy"
	BucketWarning  RULBucket = "warning"
	BucketCritical RULBucket = "critical"
)

// ErrNotFound indicates a missing schedule entry.
var ErrNotFound = errors.New("maintenance: not found")

// Entry is one scheduled maintenance action.
type Entry struct {
	ID          string        `json:"id"`
	MachineID   string        `json:"machine_id"`
	Type        EntryType     `json:"type"`
	ScheduledAt time.Time     `json:"scheduled_at"`
	Duration    time.Duration `json:"duration"`
	Priority    Priority      `json:"priority"`
	Status      EntryStatus   `json:"status"`
	Components  []string      `json:"components"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Valid returns true when the entry type is supported.
func (t EntryType) Valid() bool {
	switch t {
	case TypePreventive, TypePredictive, TypeCorrective, TypeRoutine:
		return true
	default:
		return false
	}
}

// Valid returns true when the priority is known.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	default:
		return false
	}
}

// Valid returns true when the status is known.
func (s EntryStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// Estimate is a computed remaining-useful-life result.
type Estimate struct {
	MachineID  string    `json:"machine_id"`
	Parameter  string    `json:"parameter"`
	Hours      float64   `json:"hours"`
	Bucket     RULBucket `json:"bucket"`
	Unbounded  bool      `json:"unbounded"`
	ComputedAt time.Time `json:"computed_at"`
}

// BucketFor classifies an RUL in hours against the configured cutoffs.
func BucketFor(hours float64, warningHours, criticalHours float64) RULBucket {
	switch {
	case hours < criticalHours:
		return BucketCritical
	case hours <= warningHours:
		return BucketWarning
	default:
		return BucketHealthy
	}
}

// PriorityFor derives the schedule priority from an RUL bucket. The warning
// band splits at its midpoint so both medium and high stay in use.
func PriorityFor(bucket RULBucket, hours, warningHours, criticalHours float64) Priority {
	switch bucket {
	case BucketCritical:
		return PriorityCritical
	case BucketWarning:
		if hours < criticalHours+(warningHours-criticalHours)/2 {
			return PriorityHigh
		}
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// Filter narrows schedule listings.
type Filter struct {
	MachineID string
	Priority  Priority
	Status    EntryStatus
}

// Repository persists maintenance schedule entries.
type Repository interface {
	Insert(ctx context.Context, e Entry) error
	Update(ctx context.Context, e Entry) error
	GetByID(ctx context.Context, id string) (*Entry, error)
	List(ctx context.Context, filter Filter) ([]Entry, error)
	// FindScheduled returns scheduled entries of the given type for the
	// machine with scheduled_at inside [now, now+horizon].
	FindScheduled(ctx context.Context, machineID string, entryType EntryType, now time.Time, horizon time.Duration) ([]Entry, error)
	// CountDueWithin counts scheduled entries due inside the horizon.
	CountDueWithin(ctx context.Context, now time.Time, horizon time.Duration) (int, error)
}
