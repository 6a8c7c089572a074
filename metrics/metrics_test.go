package metrics_test

import (
	"testing"
	"time"

	"github.com/Qksidmx/skgraph/metrics"
)

func TestNoop_NeverPanics(t *testing.T) {
	c := metrics.Default()
	c.IncrCounter("edges.added", 1)
	c.ObserveLatency("get_edge_attributes", 5*time.Millisecond)
}
