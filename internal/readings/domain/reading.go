package readings

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidReading rejects malformed, unknown-machine, or out-of-order readings.
var ErrInvalidReading = errors.New("readings: invalid reading")

// ErrOutOfOrder marks a reading older than the last one seen for its key.
// It wraps ErrInvalidReading so callers can match either.
var ErrOutOfOrder = fmt.Errorf("%w: out of order", ErrInvalidReading)

// Reading is a raw per-machine parameter sample. Immutable once stored.
type Reading struct {
	MachineID string    `json:"machine_id"`
	Parameter string    `json:"parameter"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// Validate checks field-level invariants. Machine existence and ordering
// are checked by the ingest pipeline.
func (r Reading) Validate() error {
	if r.MachineID == "" {
		return fmt.Errorf("%w: empty machine id", ErrInvalidReading)
	}
	if r.Parameter == "" {
		return fmt.Errorf("%w: empty parameter", ErrInvalidReading)
	}
	if r.Timestamp.IsZero() {
		return fmt.Errorf("%w: zero timestamp", ErrInvalidReading)
	}
	if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
		return fmt.Errorf("%w: non-finite value", ErrInvalidReading)
	}
	return nil
}

// Key returns the serialization key for a reading.
func (r Reading) Key() string {
	return r.MachineID + "|" + r.Parameter
}

// Store is an append-only holder of readings.
type Store interface {
	Append(ctx context.Context, r Reading) error
	// Query returns readings for the key in ascending timestamp order.
	// The (from, to, limit) triple acts as a restartable cursor: callers
	// resume by re-issuing the query from the last seen timestamp.
	Query(ctx context.Context, machineID, parameter string, from, to time.Time, limit int) ([]Reading, error)
	// LastTimestamp returns the newest stored timestamp for the key,
	// or the zero time when the key has no readings.
	LastTimestamp(ctx context.Context, machineID, parameter string) (time.Time, error)
}
