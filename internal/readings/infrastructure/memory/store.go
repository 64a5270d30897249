package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	readings "machinery-cloud/internal/readings/domain"
)

// ReadingStore is an in-memory append-only reading store.
type ReadingStore struct {
	mu   sync.RWMutex
	data map[string][]readings.Reading
}

// NewReadingStore constructs a store.
func NewReadingStore() *ReadingStore {
	return &ReadingStore{data: make(map[string][]readings.Reading)}
}

// Append stores a reading. Ordering per key is enforced by the ingest
// pipeline; the store only refuses readings older than its newest entry.
func (s *ReadingStore) Append(ctx context.Context, r readings.Reading) error {
	_ = ctx
	if err := r.Validate(); err != nil {
		return err
	}
	key := r.Key()
	s.mu.Lock()
	defer s.mu.Unlock()
	series := s.data[key]
	if n := len(series); n > 0 && r.Timestamp.Before(series[n-1].Timestamp) {
		return readings.ErrOutOfOrder
	}
	s.data[key] = append(series, r)
	return nil
}

// Query returns readings in ascending timestamp order within [from, to].
func (s *ReadingStore) Query(ctx context.Context, machineID, parameter string, from, to time.Time, limit int) ([]readings.Reading, error) {
	_ = ctx
	key := machineID + "|" + parameter
	s.mu.RLock()
	defer s.mu.RUnlock()
	series := s.data[key]
	start := sort.Search(len(series), func(i int) bool {
		return !series[i].Timestamp.Before(from)
	})
	result := make([]readings.Reading, 0)
	for i := start; i < len(series); i++ {
		if !to.IsZero() && series[i].Timestamp.After(to) {
			break
		}
		result = append(result, series[i])
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

// LastTimestamp returns the newest stored timestamp for the key.
func (s *ReadingStore) LastTimestamp(ctx context.Context, machineID, parameter string) (time.Time, error) {
	_ = ctx
	key := machineID + "|" + parameter
	s.mu.RLock()
	defer s.mu.RUnlock()
	series := s.data[key]
	if len(series) == 0 {
		return time.Time{}, nil
	}
	return series[len(series)-1].Timestamp, nil
}
