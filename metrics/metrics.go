// Package metrics mirrors the engine's aggregate counters into
// Prometheus. Purely observational: the engine's own counters in the
// store remain the source of truth, these are operational mirrors that
// reset with the process.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/warp/ledger-engine/engine"
)

var (
	batchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_batches_total",
		Help: "Batches processed, by service",
	}, []string{"service"})
	itemsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_items_total",
		Help: "Batch items processed, by service and outcome",
	}, []string{"service", "outcome"})
	volumeMovedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_volume_moved_total",
		Help: "Total amount moved by succeeded items, by service",
	}, []string{"service"})
)

func init() {
	// Register eagerly. Harmless if no /metrics endpoint is exposed.
	prometheus.MustRegister(batchesTotal, itemsTotal, volumeMovedTotal)
}

// Observer implements engine.Observer on top of the package counters.
type Observer struct{}

var _ engine.Observer = Observer{}

func (Observer) BatchProcessed(service string, succeeded, failed int, volume engine.Amount) {
	batchesTotal.WithLabelValues(service).Inc()
	itemsTotal.WithLabelValues(service, "succeeded").Add(float64(succeeded))
	itemsTotal.WithLabelValues(service, "failed").Add(float64(failed))

	// Counter values are float64; precision loss above 2^53 is accepted
	// for a monitoring mirror. Exact figures live in the counter store.
	f, _ := volume.Value.Float64()
	volumeMovedTotal.WithLabelValues(service).Add(f)
}
