package space

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "taskspace"

// Metrics groups the space's prometheus collectors. Each space owns its
// registry so several spaces can live in one process.
type Metrics struct {
	registry *prometheus.Registry

	TasksPut        prometheus.Counter
	Dispatched      prometheus.Counter
	DispatchErrors  prometheus.Counter
	Splits          prometheus.Counter
	Children        prometheus.Counter
	Results         *prometheus.CounterVec
	SuccessorsFired prometheus.Counter
	SharedUpdates   *prometheus.CounterVec
	TaskDuration    prometheus.Histogram

	ReadyTasks     prometheus.GaugeFunc
	PendingJoins   prometheus.GaugeFunc
	InFlightTasks  prometheus.GaugeFunc
	Computers      prometheus.Gauge
	ComputerEvents *prometheus.CounterVec
}

func newMetrics(readyTasks, pendingJoins, inFlight func() float64) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		TasksPut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_put_total",
			Help:      "Root tasks admitted by Put.",
		}),
		Dispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_dispatched_total",
			Help:      "Tasks handed to computers.",
		}),
		DispatchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_errors_total",
			Help:      "Tasks lost because their computer failed.",
		}),
		Splits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "splits_total",
			Help:      "Tasks decomposed into children and a successor.",
		}),
		Children: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "children_total",
			Help:      "Child tasks stored by splits.",
		}),
		Results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_total",
			Help:      "Results stored, by join outcome.",
		}, []string{"outcome"}),
		SuccessorsFired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "successors_fired_total",
			Help:      "Successors whose join counter reached zero.",
		}),
		SharedUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shared_updates_total",
			Help:      "Shared value proposals, by outcome.",
		}, []string{"outcome"}),
		TaskDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Execution time reported with stored results.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		ReadyTasks: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ready_tasks",
			Help:      "Runnable tasks waiting for a computer.",
		}, readyTasks),
		PendingJoins: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_joins",
			Help:      "Successors waiting for children's results.",
		}, pendingJoins),
		InFlightTasks: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "in_flight_tasks",
			Help:      "Tasks queued or executing.",
		}, inFlight),
		Computers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "computers",
			Help:      "Registered computers.",
		}),
		ComputerEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "computer_events_total",
			Help:      "Computer registry events, by type.",
		}, []string{"type"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		m.TasksPut,
		m.Dispatched,
		m.DispatchErrors,
		m.Splits,
		m.Children,
		m.Results,
		m.SuccessorsFired,
		m.SharedUpdates,
		m.TaskDuration,
		m.ReadyTasks,
		m.PendingJoins,
		m.InFlightTasks,
		m.Computers,
		m.ComputerEvents,
	)
	return m
}

// Registry returns the registry holding the space's collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
