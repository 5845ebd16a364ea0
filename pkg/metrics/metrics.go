// Package metrics exposes runtime counters for lifecycle transitions, poll
// cycles, message retries, restarts and pooled tasks as Prometheus collectors.
//
// A nil *Recorder is valid and records nothing, so components can accept an
// optional recorder without checking for nil.
package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bft-labs/flowhost/pkg/lifecycle"
)

const namespace = "flowhost"

// Restart and resubmission outcomes.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeRejected  = "rejected"
	OutcomeSkipped   = "skipped"
)

// Recorder holds every flowhost collector.
type Recorder struct {
	transitions   *prometheus.CounterVec
	pollCycles    *prometheus.CounterVec
	retryWaiting  prometheus.Gauge
	resubmissions *prometheus.CounterVec
	retryFailed   prometheus.Counter
	restarts      *prometheus.CounterVec
	poolTasks     *prometheus.CounterVec
}

// New creates a Recorder and registers its collectors with reg.
// A nil reg returns a nil Recorder (metrics disabled).
func New(reg prometheus.Registerer) (*Recorder, error) {
	if reg == nil {
		return nil, nil
	}

	r := &Recorder{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "transitions_total",
			Help:      "Completed lifecycle transitions by component and state pair",
		}, []string{"component", "from", "to"}),

		pollCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "cycles_total",
			Help:      "Poll triggers by consumer and outcome (ran/skipped/failed)",
		}, []string{"consumer", "outcome"}),

		retryWaiting: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "retry",
			Name:      "waiting",
			Help:      "Messages currently waiting for resubmission",
		}),

		resubmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retry",
			Name:      "resubmissions_total",
			Help:      "Message resubmissions by outcome",
		}, []string{"outcome"}),

		retryFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retry",
			Name:      "failed_total",
			Help:      "Messages forwarded to the failure sink",
		}),

		restarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "restarts_total",
			Help:      "Workflow and channel restarts by target and outcome",
		}, []string{"target", "outcome"}),

		poolTasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "tasks_total",
			Help:      "Worker pool tasks by outcome",
		}, []string{"outcome"}),
	}

	var err error
	if r.transitions, err = register(reg, r.transitions); err != nil {
		return nil, err
	}
	if r.pollCycles, err = register(reg, r.pollCycles); err != nil {
		return nil, err
	}
	if r.retryWaiting, err = register(reg, r.retryWaiting); err != nil {
		return nil, err
	}
	if r.resubmissions, err = register(reg, r.resubmissions); err != nil {
		return nil, err
	}
	if r.retryFailed, err = register(reg, r.retryFailed); err != nil {
		return nil, err
	}
	if r.restarts, err = register(reg, r.restarts); err != nil {
		return nil, err
	}
	if r.poolTasks, err = register(reg, r.poolTasks); err != nil {
		return nil, err
	}
	return r, nil
}

// register adds c to reg. A collector already registered under the same
// descriptor is returned instead, so a rebuilt topology keeps its counters.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(T); ok {
			return existing, nil
		}
	}
	return c, fmt.Errorf("register metrics: %w", err)
}

// OnStateChange implements lifecycle.EventEmitter.
func (r *Recorder) OnStateChange(component string, previous, current lifecycle.State, _ string) {
	if r == nil {
		return
	}
	r.transitions.WithLabelValues(component, previous.String(), current.String()).Inc()
}

// ObservePoll records one poll trigger.
func (r *Recorder) ObservePoll(consumer, outcome string) {
	if r == nil {
		return
	}
	r.pollCycles.WithLabelValues(consumer, outcome).Inc()
}

// SetRetryWaiting records the number of messages waiting for resubmission.
func (r *Recorder) SetRetryWaiting(n int) {
	if r == nil {
		return
	}
	r.retryWaiting.Set(float64(n))
}

// ObserveResubmission records one resubmission attempt.
func (r *Recorder) ObserveResubmission(outcome string) {
	if r == nil {
		return
	}
	r.resubmissions.WithLabelValues(outcome).Inc()
}

// ObserveRetryFailed records a message forwarded to the failure sink.
func (r *Recorder) ObserveRetryFailed() {
	if r == nil {
		return
	}
	r.retryFailed.Inc()
}

// ObserveRestart records a restart of target ("workflow" or "channel").
func (r *Recorder) ObserveRestart(target, outcome string) {
	if r == nil {
		return
	}
	r.restarts.WithLabelValues(target, outcome).Inc()
}

// ObserveTask records a worker pool task outcome.
func (r *Recorder) ObserveTask(outcome string) {
	if r == nil {
		return
	}
	r.poolTasks.WithLabelValues(outcome).Inc()
}
