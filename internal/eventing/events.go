package eventing

import "time"

// Topics carried by the in-process bus.
const (
	TopicReadingIngested  = "readings.ingested"
	TopicAnomalyRaised    = "anomalies.raised"
	TopicAnomalyEscalated = "anomalies.escalated"
	TopicRULRecomputed    = "maintenance.rul_recomputed"
)

// ReadingIngested is published after a reading and its aggregate update
// are both durable.
type ReadingIngested struct {
	MachineID string    `json:"machine_id"`
	Parameter string    `json:"parameter"`
	Value     float64   `json:"value"`
	At        time.Time `json:"at"`
}

// Topic implements Event.
func (ReadingIngested) Topic() string { return TopicReadingIngested }

// AnomalyRaised is published when a new anomaly record opens.
type AnomalyRaised struct {
	AnomalyID    string    `json:"anomaly_id"`
	MachineID    string    `json:"machine_id"`
	Parameter    string    `json:"parameter"`
	Observed     float64   `json:"observed"`
	Expected     float64   `json:"expected"`
	DeviationPct float64   `json:"deviation_pct"`
	Score        float64   `json:"score"`
	At           time.Time `json:"at"`
}

// Topic implements Event.
func (AnomalyRaised) Topic() string { return TopicAnomalyRaised }

// AnomalyEscalated is published when an existing open record is re-breached
// with a higher score.
type AnomalyEscalated struct {
	AnomalyID string    `json:"anomaly_id"`
	MachineID string    `json:"machine_id"`
	Parameter string    `json:"parameter"`
	Score     float64   `json:"score"`
	At        time.Time `json:"at"`
}

// Topic implements Event.
func (AnomalyEscalated) Topic() string { return TopicAnomalyEscalated }

// RULRecomputed is published when the maintenance estimator recomputes a
// machine's remaining useful life.
type RULRecomputed struct {
	MachineID string    `json:"machine_id"`
	Hours     float64   `json:"hours"`
	Bucket    string    `json:"bucket"`
	Unbounded bool      `json:"unbounded"`
	At        time.Time `json:"at"`
}

// Topic implements Event.
func (RULRecomputed) Topic() string { return TopicRULRecomputed }
