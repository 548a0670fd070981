// Package metrics aggregates per-request counters in memory and mirrors
// them onto OTEL instruments. Aggregation is process-local only; nothing
// here persists.
package metrics

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/villenero912/hybridgen/internal/model"
	"github.com/villenero912/hybridgen/internal/telemetry"
)

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Requests        int64
	Succeeded       int64
	Failed          int64
	Fallbacks       int64
	ByMethod        map[model.Method]int64
	CostByMethod    map[model.Method]float64
	TotalCost       float64
	TotalProcessing time.Duration
}

// Recorder owns the mutable counters. Updates are applied atomically per
// completed request so concurrent orchestration cannot lose updates.
type Recorder struct {
	mu   sync.Mutex
	snap Snapshot

	requests  metric.Int64Counter
	fallbacks metric.Int64Counter
	cost      metric.Float64Counter
	procTime  metric.Float64Histogram
}

// NewRecorder creates a Recorder backed by the global OTEL meter (no-op
// when telemetry is disabled).
func NewRecorder() *Recorder {
	meter := telemetry.Meter("hybridgen")

	requests, _ := meter.Int64Counter("hybridgen.requests",
		metric.WithDescription("Processed requests by method and outcome"))
	fallbacks, _ := meter.Int64Counter("hybridgen.fallbacks",
		metric.WithDescription("Single re-routes after a retryable failure"))
	cost, _ := meter.Float64Counter("hybridgen.cost",
		metric.WithDescription("Realized cost in currency units"))
	procTime, _ := meter.Float64Histogram("hybridgen.processing_seconds",
		metric.WithDescription("Wall-clock processing time per request"))

	return &Recorder{
		snap: Snapshot{
			ByMethod:     make(map[model.Method]int64),
			CostByMethod: make(map[model.Method]float64),
		},
		requests:  requests,
		fallbacks: fallbacks,
		cost:      cost,
		procTime:  procTime,
	}
}

// Record applies one completed request's result to the counters.
func (r *Recorder) Record(ctx context.Context, res model.Result) {
	r.mu.Lock()
	r.snap.Requests++
	if res.Success {
		r.snap.Succeeded++
	} else {
		r.snap.Failed++
	}
	if res.FellBack {
		r.snap.Fallbacks++
	}
	if res.Method != "" {
		r.snap.ByMethod[res.Method]++
		r.snap.CostByMethod[res.Method] += res.Cost
	}
	r.snap.TotalCost += res.Cost
	r.snap.TotalProcessing += res.ProcessingTime
	r.mu.Unlock()

	attrs := metric.WithAttributes(
		attribute.String("method", string(res.Method)),
		attribute.Bool("success", res.Success),
	)
	r.requests.Add(ctx, 1, attrs)
	if res.FellBack {
		r.fallbacks.Add(ctx, 1)
	}
	if res.Cost > 0 {
		r.cost.Add(ctx, res.Cost, attrs)
	}
	r.procTime.Record(ctx, res.ProcessingTime.Seconds(), attrs)
}

// Snapshot returns a deep copy of the counters.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.snap
	out.ByMethod = make(map[model.Method]int64, len(r.snap.ByMethod))
	for k, v := range r.snap.ByMethod {
		out.ByMethod[k] = v
	}
	out.CostByMethod = make(map[model.Method]float64, len(r.snap.CostByMethod))
	for k, v := range r.snap.CostByMethod {
		out.CostByMethod[k] = v
	}
	return out
}
