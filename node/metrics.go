package node

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/DF-AutoPilot/droneforce-contract/task"
	"github.com/DF-AutoPilot/droneforce-contract/txn"
)

// Metrics tracks submissions and the task population.
type Metrics struct {
	submissions *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	tasks       *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "droneforce",
				Name:      "submissions_total",
				Help:      "Submitted transactions by operation and result",
			},
			[]string{"op", "result"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "droneforce",
				Name:      "submission_duration_seconds",
				Help:      "Time to verify and apply a transaction",
				Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
			},
			[]string{"op"},
		),
		tasks: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "droneforce",
				Name:      "tasks",
				Help:      "Tasks by status",
			},
			[]string{"status"},
		),
	}

	reg.MustRegister(
		m.submissions,
		m.duration,
		m.tasks,
	)
	m.setCounts(nil)
	return m
}

func (m *Metrics) observe(op txn.Op, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(op.String(), resultLabel(err)).Inc()
	m.duration.WithLabelValues(op.String()).Observe(elapsed.Seconds())
}

// transition moves one task between status buckets. from is ignored for
// newly created tasks.
func (m *Metrics) transition(op txn.Op, from, to task.Status) {
	if m == nil {
		return
	}
	switch op {
	case txn.OpCreate:
		m.tasks.WithLabelValues(to.String()).Inc()
	case txn.OpAccept, txn.OpComplete:
		m.tasks.WithLabelValues(from.String()).Dec()
		m.tasks.WithLabelValues(to.String()).Inc()
	}
}

func (m *Metrics) setCounts(counts map[task.Status]int) {
	if m == nil {
		return
	}
	for _, s := range []task.Status{task.StatusCreated, task.StatusAccepted, task.StatusCompleted} {
		m.tasks.WithLabelValues(s.String()).Set(float64(counts[s]))
	}
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if te, ok := task.AsError(err); ok {
		return string(te.Code)
	}
	switch {
	case errors.Is(err, txn.ErrBadSignature):
		return "bad_signature"
	case errors.Is(err, txn.ErrMalformed):
		return "malformed"
	case errors.Is(err, ErrTaskExists):
		return "exists"
	case errors.Is(err, ErrTaskNotFound):
		return "not_found"
	default:
		return "error"
	}
}
