// Package analytics maintains rolling per-machine, per-parameter statistics.
// Statistics update incrementally (Welford) so mean and variance never
// require re-scanning stored readings; replaying the same reading sequence
// reproduces identical values.
package analytics

import (
	"errors"
	"math"
	"sort"
	"sync"
	"time"
)

// ErrInsufficientData signals a baseline below the minimum sample count.
var ErrInsufficientData = errors.New("analytics: insufficient data")

// ErrUnknownWindow signals an unconfigured window name.
var ErrUnknownWindow = errors.New("analytics: unknown window")

// ErrNoData signals that no readings were seen for the key.
var ErrNoData = errors.New("analytics: no data")

// Window is one rolling aggregation span.
type Window struct {
	Name       string
	Span       time.Duration
	MaxSamples int
}

// DefaultWindows returns the standard 1h/24h/7d window set.
func DefaultWindows() []Window {
	return []Window{
		{Name: "1h", Span: time.Hour, MaxSamples: 720},
		{Name: "24h", Span: 24 * time.Hour, MaxSamples: 2880},
		{Name: "7d", Span: 7 * 24 * time.Hour, MaxSamples: 5040},
	}
}

// RollingStat is a point-in-time view of one window's statistics.
type RollingStat struct {
	Count       int64     `json:"count"`
	Mean        float64   `json:"mean"`
	Variance    float64   `json:"variance"`
	Min         float64   `json:"min"`
	Max         float64   `json:"max"`
	LastUpdated time.Time `json:"last_updated"`
}

// StdDev returns the sample standard deviation.
func (s RollingStat) StdDev() float64 {
	return math.Sqrt(s.Variance)
}

// Baseline is the expected value and spread for a parameter.
type Baseline struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Count  int64   `json:"count"`
}

// Trend is the degradation slope of a parameter over a window.
type Trend struct {
	SlopePerHour float64 `json:"slope_per_hour"`
	Mean         float64 `json:"mean"`
	Samples      int64   `json:"samples"`
}

type sample struct {
	at    time.Time
	value float64
}

type extremum struct {
	seq   uint64
	value float64
}

// windowStat keeps a sliding time window of samples in a ring buffer.
// Mean and variance move incrementally on both append and evict (Welford
// forward and in reverse), and min/max come from monotonic deques, so one
// reading costs O(1) amortized no matter how large the window is.
type windowStat struct {
	span       time.Duration
	maxSamples int

	ring []sample
	head int
	size int

	// seq is the 1-based sequence number of the newest sample; sequence
	// numbers are consecutive, so the oldest is seq-size+1.
	seq  uint64
	mean float64
	m2   float64
	minq []extremum
	maxq []extremum

	lastUpdated time.Time
}

func (w *windowStat) add(at time.Time, value float64) {
	cutoff := at.Add(-w.span)
	for w.size > 0 && !w.ring[w.head].at.After(cutoff) {
		w.evictOldest()
	}
	if w.maxSamples > 0 && w.size == w.maxSamples {
		w.evictOldest()
	}
	w.push(at, value)
	w.lastUpdated = at
}

func (w *windowStat) push(at time.Time, value float64) {
	if len(w.ring) == 0 {
		capacity := w.maxSamples
		if capacity <= 0 {
			capacity = 64
		}
		w.ring = make([]sample, capacity)
	} else if w.size == len(w.ring) {
		w.grow()
	}
	w.ring[(w.head+w.size)%len(w.ring)] = sample{at: at, value: value}
	w.size++
	w.seq++

	delta := value - w.mean
	w.mean += delta / float64(w.size)
	w.m2 += delta * (value - w.mean)

	for len(w.minq) > 0 && w.minq[len(w.minq)-1].value >= value {
		w.minq = w.minq[:len(w.minq)-1]
	}
	w.minq = append(w.minq, extremum{seq: w.seq, value: value})
	for len(w.maxq) > 0 && w.maxq[len(w.maxq)-1].value <= value {
		w.maxq = w.maxq[:len(w.maxq)-1]
	}
	w.maxq = append(w.maxq, extremum{seq: w.seq, value: value})
}

// evictOldest removes the oldest sample, reversing its Welford contribution.
func (w *windowStat) evictOldest() {
	oldestSeq := w.seq - uint64(w.size) + 1
	x := w.ring[w.head].value
	w.head = (w.head + 1) % len(w.ring)
	w.size--
	if w.size == 0 {
		w.mean = 0
		w.m2 = 0
	} else {
		oldMean := w.mean
		w.mean = (oldMean*float64(w.size+1) - x) / float64(w.size)
		w.m2 -= (x - oldMean) * (x - w.mean)
		// Reverse Welford can drift a hair below zero.
		if w.m2 < 0 {
			w.m2 = 0
		}
	}
	if len(w.minq) > 0 && w.minq[0].seq == oldestSeq {
		w.minq = w.minq[1:]
	}
	if len(w.maxq) > 0 && w.maxq[0].seq == oldestSeq {
		w.maxq = w.maxq[1:]
	}
	if len(w.minq) == 0 {
		w.minq = nil
	}
	if len(w.maxq) == 0 {
		w.maxq = nil
	}
}

func (w *windowStat) grow() {
	next := make([]sample, len(w.ring)*2)
	for i := 0; i < w.size; i++ {
		next[i] = w.ring[(w.head+i)%len(w.ring)]
	}
	w.ring = next
	w.head = 0
}

func (w *windowStat) stat() RollingStat {
	st := RollingStat{
		Count:       int64(w.size),
		Mean:        w.mean,
		LastUpdated: w.lastUpdated,
	}
	if w.size == 0 {
		return st
	}
	if w.size > 1 {
		st.Variance = w.m2 / float64(w.size-1)
	}
	if len(w.minq) > 0 {
		st.Min = w.minq[0].value
	}
	if len(w.maxq) > 0 {
		st.Max = w.maxq[0].value
	}
	return st
}

// trend fits value = a + slope*hours by least squares over the buffer.
// This walks the ring; it runs on trend queries, not on the ingest path.
func (w *windowStat) trend() (float64, bool) {
	if w.size < 2 {
		return 0, false
	}
	origin := w.ring[w.head].at
	var sumX, sumY, sumXX, sumXY float64
	for i := 0; i < w.size; i++ {
		s := w.ring[(w.head+i)%len(w.ring)]
		x := s.at.Sub(origin).Hours()
		sumX += x
		sumY += s.value
		sumXX += x * x
		sumXY += x * s.value
	}
	n := float64(w.size)
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, false
	}
	return (n*sumXY - sumX*sumY) / denom, true
}

// Aggregator owns all RollingStat state. Per-key update serialization is the
// ingest pipeline's job; the aggregator's lock only protects its maps against
// concurrent readers.
type Aggregator struct {
	mu         sync.RWMutex
	windows    []Window
	minSamples int
	keys       map[string]map[string]*windowStat
	machines   map[string]map[string]struct{}
}

// AggregatorOption customizes the aggregator.
type AggregatorOption func(*Aggregator)

// WithWindows overrides the window set.
func WithWindows(windows []Window) AggregatorOption {
	return func(a *Aggregator) {
		if len(windows) > 0 {
			a.windows = windows
		}
	}
}

// WithMinSamples overrides the baseline minimum sample count.
func WithMinSamples(n int) AggregatorOption {
	return func(a *Aggregator) {
		if n > 0 {
			a.minSamples = n
		}
	}
}

// NewAggregator constructs an aggregator with the default windows.
func NewAggregator(opts ...AggregatorOption) *Aggregator {
	agg := &Aggregator{
		windows:    DefaultWindows(),
		minSamples: 5,
		keys:       make(map[string]map[string]*windowStat),
		machines:   make(map[string]map[string]struct{}),
	}
	for _, opt := range opts {
		opt(agg)
	}
	return agg
}

// Windows returns the configured window set.
func (a *Aggregator) Windows() []Window {
	return append([]Window(nil), a.windows...)
}

// LongestWindow returns the widest configured window.
func (a *Aggregator) LongestWindow() Window {
	longest := a.windows[0]
	for _, w := range a.windows[1:] {
		if w.Span > longest.Span {
			longest = w
		}
	}
	return longest
}

// Update folds a reading into every window for its key.
func (a *Aggregator) Update(machineID, parameter string, value float64, at time.Time) {
	key := machineID + "|" + parameter
	a.mu.Lock()
	defer a.mu.Unlock()
	stats, ok := a.keys[key]
	if !ok {
		stats = make(map[string]*windowStat, len(a.windows))
		for _, w := range a.windows {
			stats[w.Name] = &windowStat{span: w.Span, maxSamples: w.MaxSamples}
		}
		a.keys[key] = stats
		params, ok := a.machines[machineID]
		if !ok {
			params = make(map[string]struct{})
			a.machines[machineID] = params
		}
		params[parameter] = struct{}{}
	}
	for _, ws := range stats {
		ws.add(at, value)
	}
}

// Baseline returns (mean, stdev, count) for the key and window.
// Fails with ErrInsufficientData below the minimum sample count, signaling
// that classification should be deferred.
func (a *Aggregator) Baseline(machineID, parameter, window string) (Baseline, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	ws, err := a.lookup(machineID, parameter, window)
	if err != nil {
		return Baseline{}, err
	}
	st := ws.stat()
	if st.Count < int64(a.minSamples) {
		return Baseline{Count: st.Count}, ErrInsufficientData
	}
	return Baseline{Mean: st.Mean, StdDev: st.StdDev(), Count: st.Count}, nil
}

// Stat returns the rolling statistics for one key and window.
func (a *Aggregator) Stat(machineID, parameter, window string) (RollingStat, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	ws, err := a.lookup(machineID, parameter, window)
	if err != nil {
		return RollingStat{}, err
	}
	return ws.stat(), nil
}

// Stats returns the rolling statistics for one key across all windows.
func (a *Aggregator) Stats(machineID, parameter string) (map[string]RollingStat, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	stats, ok := a.keys[machineID+"|"+parameter]
	if !ok {
		return nil, ErrNoData
	}
	result := make(map[string]RollingStat, len(stats))
	for name, ws := range stats {
		result[name] = ws.stat()
	}
	return result, nil
}

// Trend returns the least-squares slope of the key over a window.
func (a *Aggregator) Trend(machineID, parameter, window string) (Trend, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	ws, err := a.lookup(machineID, parameter, window)
	if err != nil {
		return Trend{}, err
	}
	st := ws.stat()
	if st.Count < int64(a.minSamples) {
		return Trend{Samples: st.Count}, ErrInsufficientData
	}
	slope, ok := ws.trend()
	if !ok {
		return Trend{Samples: st.Count}, ErrInsufficientData
	}
	return Trend{SlopePerHour: slope, Mean: st.Mean, Samples: st.Count}, nil
}

// Parameters returns the parameters seen for a machine, sorted.
func (a *Aggregator) Parameters(machineID string) []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	params := a.machines[machineID]
	result := make([]string, 0, len(params))
	for p := range params {
		result = append(result, p)
	}
	sort.Strings(result)
	return result
}

func (a *Aggregator) lookup(machineID, parameter, window string) (*windowStat, error) {
	known := false
	for _, w := range a.windows {
		if w.Name == window {
			known = true
			break
		}
	}
	if !known {
		return nil, ErrUnknownWindow
	}
	stats, ok := a.keys[machineID+"|"+parameter]
	if !ok {
		return nil, ErrNoData
	}
	return stats[window], nil
}
