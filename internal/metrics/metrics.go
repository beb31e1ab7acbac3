package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SignalsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beacon_signals_total",
		Help: "Total number of page signals dispatched, labelled by kind.",
	}, []string{"kind"})

	EventsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beacon_events_emitted_total",
		Help: "Total number of envelopes placed on the delivery queue, labelled by event type.",
	}, []string{"type"})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beacon_events_dropped_total",
		Help: "Total number of envelopes discarded because the delivery queue was full.",
	})

	Deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beacon_deliveries_total",
		Help: "Total number of delivery attempts, labelled by status.",
	}, []string{"status"})

	DeliveryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "beacon_delivery_duration_ms",
		Help:    "Round-trip latency of envelope delivery in milliseconds.",
		Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	})

	QueueUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "beacon_delivery_queue_utilization",
		Help: "Fraction of the delivery queue currently in use (0-1).",
	})

	StorageFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beacon_storage_fallbacks_total",
		Help: "Total number of storage tier failures that fell through to the next tier.",
	}, []string{"tier"})

	CollectorReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beacon_collector_received_total",
		Help: "Total number of envelopes accepted by the development collector, labelled by event type.",
	}, []string{"type"})
)
