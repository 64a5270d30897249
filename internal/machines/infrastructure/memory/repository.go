package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	machines "machinery-cloud/internal/machines/domain"
)

// MachineRepository is an in-memory machine repository.
type MachineRepository struct {
	mu   sync.RWMutex
	data map[string]machines.Machine
}

// NewMachineRepository constructs a repository.
func NewMachineRepository() *MachineRepository {
	return &MachineRepository{data: make(map[string]machines.Machine)}
}

// Insert stores a new machine.
func (r *MachineRepository) Insert(ctx context.Context, m machines.Machine) error {
	_ = ctx
	if err := m.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[m.ID]; ok {
		return errors.New("machines: duplicate id")
	}
	r.data[m.ID] = m
	return nil
}

// Get loads a machine by id.
func (r *MachineRepository) Get(ctx context.Context, id string) (*machines.Machine, error) {
	_ = ctx
	if id == "" {
		return nil, machines.ErrNotFound
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.data[id]
	if !ok {
		return nil, machines.ErrNotFound
	}
	copied := m
	return &copied, nil
}

// List returns all machines ordered by id.
func (r *MachineRepository) List(ctx context.Context) ([]machines.Machine, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]machines.Machine, 0, len(r.data))
	for _, m := range r.data {
		result = append(result, m)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// Update replaces an existing machine record.
func (r *MachineRepository) Update(ctx context.Context, m machines.Machine) error {
	_ = ctx
	if err := m.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[m.ID]; !ok {
		return machines.ErrNotFound
	}
	r.data[m.ID] = m
	return nil
}
