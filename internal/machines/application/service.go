package application

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"time"

	machines "machinery-cloud/internal/machines/domain"
)

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Service handles machine registration and operator overrides.
type Service struct {
	repo  machines.Repository
	clock Clock
}

// ServiceOption customizes the machine service.
type ServiceOption func(*Service)

// WithClock assigns a clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewService constructs a machine service.
func NewService(repo machines.Repository, opts ...ServiceOption) (*Service, error) {
	if repo == nil {
		return nil, errors.New("machines: nil repository")
	}
	service := &Service{repo: repo, clock: systemClock{}}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Register creates a machine record. An empty id derives one from the name.
func (s *Service) Register(ctx context.Context, id, name string, machineType machines.Type) (*machines.Machine, error) {
	if s == nil {
		return nil, errors.New("machines: nil service")
	}
	if name == "" {
		return nil, errors.New("machines: empty name")
	}
	if id == "" {
		id = deriveMachineID(name, machineType)
	}
	now := s.clock.Now()
	machine := machines.Machine{
		ID:         id,
		Name:       name,
		Type:       machineType,
		Status:     machines.StatusOperational,
		Efficiency: 100,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Insert(ctx, machine); err != nil {
		return nil, err
	}
	return &machine, nil
}

// Get loads a machine by id.
func (s *Service) Get(ctx context.Context, id string) (*machines.Machine, error) {
	if s == nil {
		return nil, errors.New("machines: nil service")
	}
	return s.repo.Get(ctx, id)
}

// List returns all machines.
func (s *Service) List(ctx context.Context) ([]machines.Machine, error) {
	if s == nil {
		return nil, errors.New("machines: nil service")
	}
	return s.repo.List(ctx)
}

// OverrideStatus applies an operator-supplied status.
func (s *Service) OverrideStatus(ctx context.Context, id string, status machines.Status) (*machines.Machine, error) {
	if s == nil {
		return nil, errors.New("machines: nil service")
	}
	if !status.Valid() || status == machines.StatusDecommissioned {
		return nil, errors.New("machines: invalid status override")
	}
	machine, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if machine.Status == machines.StatusDecommissioned {
		return nil, machines.ErrDecommissioned
	}
	machine.Status = status
	machine.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, *machine); err != nil {
		return nil, err
	}
	return machine, nil
}

// Retire decommissions a machine. Retired machines keep their history.
func (s *Service) Retire(ctx context.Context, id string) (*machines.Machine, error) {
	if s == nil {
		return nil, errors.New("machines: nil service")
	}
	machine, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if machine.Status == machines.StatusDecommissioned {
		return machine, nil
	}
	machine.Status = machines.StatusDecommissioned
	machine.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, *machine); err != nil {
		return nil, err
	}
	return machine, nil
}

func deriveMachineID(name string, machineType machines.Type) string {
	sum := sha1.Sum([]byte(string(machineType) + "|" + name))
	return "m-" + hex.EncodeToString(sum[:])[:12]
}
