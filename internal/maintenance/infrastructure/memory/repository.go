package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	maintenance "machinery-cloud/internal/maintenance/domain"
)

// ScheduleRepository is an in-memory maintenance schedule repository.
type ScheduleRepository struct {
	mu   sync.RWMutex
	data map[string]maintenance.Entry
}

// NewScheduleRepository constructs a repository.
func NewScheduleRepository() *ScheduleRepository {
	return &ScheduleRepository{data: make(map[string]maintenance.Entry)}
}

// Insert stores a new entry.
func (r *ScheduleRepository) Insert(ctx context.Context, e maintenance.Entry) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[e.ID]; ok {
		return errors.New("maintenance: duplicate id")
	}
	r.data[e.ID] = e
	return nil
}

// Update replaces an existing entry.
func (r *ScheduleRepository) Update(ctx context.Context, e maintenance.Entry) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[e.ID]; !ok {
		return maintenance.ErrNotFound
	}
	r.data[e.ID] = e
	return nil
}

// GetByID loads an entry.
func (r *ScheduleRepository) GetByID(ctx context.Context, id string) (*maintenance.Entry, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.data[id]
	if !ok {
		return nil, maintenance.ErrNotFound
	}
	copied := e
	return &copied, nil
}

// List returns entries matching the filter ordered by scheduled date.
func (r *ScheduleRepository) List(ctx context.Context, filter maintenance.Filter) ([]maintenance.Entry, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]maintenance.Entry, 0)
	for _, e := range r.data {
		if filter.MachineID != "" && e.MachineID != filter.MachineID {
			continue
		}
		if filter.Priority != "" && e.Priority != filter.Priority {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].ScheduledAt.Equal(result[j].ScheduledAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].ScheduledAt.Before(result[j].ScheduledAt)
	})
	return result, nil
}

// FindScheduled returns scheduled entries of the type due inside the horizon.
func (r *ScheduleRepository) FindScheduled(ctx context.Context, machineID string, entryType maintenance.EntryType, now time.Time, horizon time.Duration) ([]maintenance.Entry, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	deadline := now.Add(horizon)
	result := make([]maintenance.Entry, 0)
	for _, e := range r.data {
		if e.MachineID != machineID || e.Type != entryType || e.Status != maintenance.StatusScheduled {
			continue
		}
		if e.ScheduledAt.Before(now) || e.ScheduledAt.After(deadline) {
			continue
		}
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ScheduledAt.Before(result[j].ScheduledAt) })
	return result, nil
}

// CountDueWithin counts scheduled entries due inside the horizon.
func (r *ScheduleRepository) CountDueWithin(ctx context.Context, now time.Time, horizon time.Duration) (int, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	deadline := now.Add(horizon)
	count := 0
	for _, e := range r.data {
		if e.Status != maintenance.StatusScheduled {
			continue
		}
		if e.ScheduledAt.After(deadline) {
			continue
		}
		count++
	}
	return count, nil
}
