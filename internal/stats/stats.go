// Package stats wires the node manager's operational metrics into
// prometheus/client_golang (kept from the teacher's own dependency graph,
// adapted from its per-target counters/histograms into a much smaller
// command-latency and fleet-size surface — ambient observability carried
// regardless of spec.md's non-goal on autonomous decisions).
package stats

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bubbaloop",
		Subsystem: "daemon",
		Name:      "commands_total",
		Help:      "Number of execute_command invocations by command type and outcome.",
	}, []string{"command", "success"})

	CommandLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "bubbaloop",
		Subsystem: "daemon",
		Name:      "command_latency_seconds",
		Help:      "execute_command latency in seconds by command type.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"command"})

	NodesTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "bubbaloop",
		Subsystem: "daemon",
		Name:      "nodes_total",
		Help:      "Number of nodes currently cached by the node manager.",
	})

	NodesRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "bubbaloop",
		Subsystem: "daemon",
		Name:      "nodes_running",
		Help:      "Number of cached nodes whose lifecycle status is Running.",
	})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bubbaloop",
		Subsystem: "daemon",
		Name:      "events_dropped_total",
		Help:      "Number of broadcast events dropped because a subscriber lagged.",
	})
)
