package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	anomalies "machinery-cloud/internal/anomalies/domain"
)

// AnomalyRepository is an in-memory anomaly repository.
type AnomalyRepository struct {
	mu   sync.RWMutex
	data map[string]anomalies.Record
	// order preserves insertion order for stable listings.
	order []string
}

// NewAnomalyRepository constructs a repository.
func NewAnomalyRepository() *AnomalyRepository {
	return &AnomalyRepository{data: make(map[string]anomalies.Record)}
}

// Insert stores a new record.
func (r *AnomalyRepository) Insert(ctx context.Context, rec anomalies.Record) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[rec.ID]; ok {
		return errors.New("anomalies: duplicate id")
	}
	r.data[rec.ID] = rec
	r.order = append(r.order, rec.ID)
	return nil
}

// Update replaces an existing record.
func (r *AnomalyRepository) Update(ctx context.Context, rec anomalies.Record) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[rec.ID]; !ok {
		return anomalies.ErrNotFound
	}
	r.data[rec.ID] = rec
	return nil
}

// GetByID loads a record.
func (r *AnomalyRepository) GetByID(ctx context.Context, id string) (*anomalies.Record, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.data[id]
	if !ok {
		return nil, anomalies.ErrNotFound
	}
	copied := rec
	return &copied, nil
}

// FindActive returns the open or investigating record for the key, or nil.
func (r *AnomalyRepository) FindActive(ctx context.Context, machineID, parameter string) (*anomalies.Record, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.order {
		rec := r.data[id]
		if rec.MachineID == machineID && rec.Parameter == parameter && rec.Active() {
			copied := rec
			return &copied, nil
		}
	}
	return nil, nil
}

// FindLatestResolved returns the most recently resolved record for the key, or nil.
func (r *AnomalyRepository) FindLatestResolved(ctx context.Context, machineID, parameter string) (*anomalies.Record, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *anomalies.Record
	for _, id := range r.order {
		rec := r.data[id]
		if rec.MachineID != machineID || rec.Parameter != parameter || rec.Status != anomalies.StatusResolved {
			continue
		}
		if latest == nil || rec.ResolvedAt.After(latest.ResolvedAt) {
			copied := rec
			latest = &copied
		}
	}
	return latest, nil
}

// List returns records matching the filter, newest first.
func (r *AnomalyRepository) List(ctx context.Context, filter anomalies.Filter) ([]anomalies.Record, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]anomalies.Record, 0)
	for _, id := range r.order {
		rec := r.data[id]
		if !matches(rec, filter) {
			continue
		}
		result = append(result, rec)
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []anomalies.Record{}, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// CountActive returns the number of open and investigating records.
func (r *AnomalyRepository) CountActive(ctx context.Context) (int, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, rec := range r.data {
		if rec.Active() {
			count++
		}
	}
	return count, nil
}

// CountActiveByMachine returns the active record count per machine.
func (r *AnomalyRepository) CountActiveByMachine(ctx context.Context) (map[string]int, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[string]int)
	for _, rec := range r.data {
		if rec.Active() {
			counts[rec.MachineID]++
		}
	}
	return counts, nil
}

func matches(rec anomalies.Record, filter anomalies.Filter) bool {
	if filter.Status != "" && rec.Status != filter.Status {
		return false
	}
	if filter.MachineID != "" && rec.MachineID != filter.MachineID {
		return false
	}
	if filter.Search != "" {
		needle := strings.ToLower(filter.Search)
		if !strings.Contains(strings.ToLower(rec.Parameter), needle) &&
			!strings.Contains(strings.ToLower(rec.MachineID), needle) {
			return false
		}
	}
	if !filter.From.IsZero() && rec.CreatedAt.Before(filter.From) {
		return false
	}
	if !filter.To.IsZero() && rec.CreatedAt.After(filter.To) {
		return false
	}
	return true
}
