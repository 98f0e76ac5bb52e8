// Package metrics exposes the daemon's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CyclesTotal counts completed poll cycles by outcome ("ok" or "error").
	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Name:      "poll_cycles_total",
		Help:      "Completed poll cycles by outcome.",
	}, []string{"outcome"})

	// EventsFlagged counts flagged events by category.
	EventsFlagged = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Name:      "events_flagged_total",
		Help:      "Events flagged by the risk rules, by category.",
	}, []string{"category"})

	// WarningsAccepted counts warnings newly accepted by the store.
	WarningsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sentinel",
		Name:      "warnings_accepted_total",
		Help:      "Warnings newly persisted (idempotent upserts that inserted).",
	})

	// QueueDepth tracks the number of entries retained in the event log.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sentinel",
		Name:      "queue_depth",
		Help:      "Entries currently retained in the bounded event log.",
	})

	// Subscribers tracks connected stream clients.
	Subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sentinel",
		Name:      "stream_subscribers",
		Help:      "Currently connected stream subscribers.",
	})
)
