// Package metrics defines the optional instrumentation hook the storage
// engine calls into. No concrete backend is wired: nothing in the
// retrieved reference corpus imports a metrics client (Prometheus or
// otherwise), so the only shipped implementation is a no-op. The engine's
// correctness never depends on a Collector being present.
package metrics

import "time"

// Collector receives counters and latency samples from the storage engine.
// Implementations must be safe for concurrent use.
type Collector interface {
	IncrCounter(name string, delta int64)
	ObserveLatency(name string, d time.Duration)
}

// Noop discards everything. It is the default Collector when none is
// configured.
type Noop struct{}

// IncrCounter implements Collector.
func (Noop) IncrCounter(string, int64) {}

// ObserveLatency implements Collector.
func (Noop) ObserveLatency(string, time.Duration) {}

// Default returns the shared Noop collector.
func Default() Collector { return Noop{} }
