// Package metrics exposes the Prometheus counters and histograms the
// servicing core emits for every phase of Install, Update, Commit, and
// Rollback, plus a small JSON-lines sink that appends the same
// observations to /var/log/trident-metrics.jsonl for log-based collection
// when nothing is scraping the /metrics endpoint.
package metrics

import (
	"encoding/json"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PhaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trident_phase_duration_seconds",
			Help:    "Duration of one servicing phase (stage/finalize) by operation and phase.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "phase"},
	)

	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trident_operations_total",
			Help: "Total number of servicing operations by kind and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	ServicingStateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trident_servicing_state_transitions_total",
			Help: "Total number of HostStatus servicing-state transitions, by resulting state.",
		},
		[]string{"state"},
	)

	RollbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trident_rollbacks_total",
			Help: "Total number of rollbacks performed, by trigger.",
		},
		[]string{"trigger"},
	)

	DatastoreAppendDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "trident_datastore_append_duration_seconds",
			Help:    "Time taken to append a HostStatus record to the datastore log.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(
		PhaseDuration,
		OperationsTotal,
		ServicingStateTransitions,
		RollbacksTotal,
		DatastoreAppendDuration,
	)
}

// Handler returns the Prometheus scrape handler; `tridentctl serve` mounts
// it at /metrics on its own --metrics-listen listener.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures the duration of one phase and records it to both the
// Prometheus histogram and the JSON-lines sink.
type Timer struct {
	start     time.Time
	operation string
	phase     string
}

// NewTimer starts timing operation/phase.
func NewTimer(operation, phase string) *Timer {
	return &Timer{start: time.Now(), operation: operation, phase: phase}
}

// Stop records the elapsed duration since NewTimer, to the Prometheus
// histogram and, if a sink is configured, as a JSON line.
func (t *Timer) Stop(sink *Sink) time.Duration {
	d := time.Since(t.start)
	PhaseDuration.WithLabelValues(t.operation, t.phase).Observe(d.Seconds())
	if sink != nil {
		sink.record(event{
			Operation:  t.operation,
			Phase:      t.phase,
			DurationMs: d.Milliseconds(),
		})
	}
	return d
}

// event is one JSON-line record appended to the metrics sink file.
type event struct {
	Operation  string `json:"operation"`
	Phase      string `json:"phase"`
	DurationMs int64  `json:"durationMs"`
	Timestamp  string `json:"timestamp,omitempty"`
}

// Sink appends phase-duration observations as JSON lines to a file,
// serializing writes so concurrent phases never interleave partial lines.
type Sink struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
	now  func() time.Time
}

// DefaultPath is the log file the servicing core appends metrics to when no
// override is configured.
const DefaultPath = "/var/log/trident-metrics.jsonl"

// OpenSink opens (creating if necessary) the JSON-lines metrics file at
// path for appending.
func OpenSink(path string) (*Sink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &Sink{file: f, enc: json.NewEncoder(f), now: time.Now}, nil
}

// Close closes the underlying file.
func (s *Sink) Close() error {
	if s == nil {
		return nil
	}
	return s.file.Close()
}

func (s *Sink) record(e event) {
	if s == nil {
		return
	}
	e.Timestamp = s.now().UTC().Format(time.RFC3339Nano)
	s.mu.Lock()
	defer s.mu.Unlock()
	// Encoding errors here are not actionable by the caller mid-phase;
	// metrics are best-effort and never fail a servicing operation.
	_ = s.enc.Encode(e)
}

// RecordOperation increments OperationsTotal for one completed public
// operation and appends a matching JSON line.
func RecordOperation(sink *Sink, operation, outcome string) {
	OperationsTotal.WithLabelValues(operation, outcome).Inc()
	if sink != nil {
		sink.record(event{Operation: operation, Phase: "outcome:" + outcome})
	}
}

// RecordStateTransition increments ServicingStateTransitions for state.
func RecordStateTransition(state string) {
	ServicingStateTransitions.WithLabelValues(state).Inc()
}

// RecordRollback increments RollbacksTotal for trigger ("manual",
// "boot-validation", "health-check").
func RecordRollback(trigger string) {
	RollbacksTotal.WithLabelValues(trigger).Inc()
}
