// Package segment splits long-form requests into bounded chunks, drives
// their processing, and stitches the outputs back into one logical result.
// Segments are independent until stitching; outputs are always reassembled
// in index order regardless of how processing is scheduled.
package segment

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/villenero912/hybridgen/internal/cache"
	"github.com/villenero912/hybridgen/internal/model"
)

// FailureError aborts a long-form request when any segment fails. It carries
// the cost already accrued by segments that completed before the abort —
// callers must treat that cost as sunk.
type FailureError struct {
	Index       int
	AccruedCost float64
	Err         error
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("segment: segment %d failed (%.2f accrued): %v", e.Index, e.AccruedCost, e.Err)
}

func (e *FailureError) Unwrap() error { return e.Err }

// Split derives ordered sub-requests of at most chunkSeconds each. The last
// segment takes the remainder, so per-segment durations sum to the parent's
// target duration. Script text is sliced on word boundaries proportionally
// to each window's share of the total duration.
func Split(req model.Request, chunkSeconds float64) []model.Request {
	total := int(math.Ceil(req.DurationSeconds / chunkSeconds))
	if total < 1 {
		total = 1
	}

	words := strings.Fields(req.Script)
	segments := make([]model.Request, 0, total)
	for i := 0; i < total; i++ {
		start := float64(i) * chunkSeconds
		end := math.Min(start+chunkSeconds, req.DurationSeconds)
		script := sliceScript(words, start/req.DurationSeconds, end/req.DurationSeconds)
		if script == "" {
			script = req.Script
		}
		segments = append(segments, req.Segment(i, total, end-start, script))
	}
	return segments
}

func sliceScript(words []string, fromFrac, toFrac float64) string {
	n := len(words)
	a := int(math.Round(fromFrac * float64(n)))
	b := int(math.Round(toFrac * float64(n)))
	if a < 0 {
		a = 0
	}
	if b > n {
		b = n
	}
	if b <= a {
		return ""
	}
	return strings.Join(words[a:b], " ")
}

// Runner processes one segment request end to end.
type Runner func(ctx context.Context, req model.Request) (model.Result, error)

// Processor drives segmented processing with optional caching and bounded
// parallelism. workers=1 preserves strictly sequential processing.
type Processor struct {
	chunkSeconds float64
	workers      int
	run          Runner
	cache        *cache.Cache // nil when caching is disabled
	group        singleflight.Group
	logger       *slog.Logger
}

// NewProcessor creates a Processor that routes segments through run.
func NewProcessor(chunkSeconds float64, workers int, run Runner, c *cache.Cache, logger *slog.Logger) *Processor {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{chunkSeconds: chunkSeconds, workers: workers, run: run, cache: c, logger: logger}
}

// ProcessLong splits req, processes every segment, and stitches the outputs.
// The first segment failure aborts the whole request; the returned
// FailureError carries the cost accrued by segments that already completed.
func (p *Processor) ProcessLong(ctx context.Context, req model.Request) (model.Result, error) {
	segments := Split(req, p.chunkSeconds)
	results := make([]model.Result, len(segments))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, seg := range segments {
		i, seg := i, seg
		g.Go(func() error {
			res, err := p.processSegment(gctx, seg)
			results[i] = res
			if err != nil {
				return &FailureError{Index: i, Err: err}
			}
			return nil
		})
	}

	err := g.Wait()

	var cost float64
	for _, r := range results {
		cost += r.Cost
	}

	if err != nil {
		var fe *FailureError
		if fErr, ok := err.(*FailureError); ok {
			fe = fErr
		} else {
			fe = &FailureError{Err: err}
		}
		fe.AccruedCost = cost
		p.logger.Warn("long-form request aborted",
			"request_id", req.ID, "failed_segment", fe.Index, "accrued_cost", cost)
		return model.Result{}, fe
	}

	outputs := make([]string, len(results))
	var duration float64
	for i, r := range results {
		outputs[i] = r.OutputPath
		duration += r.DurationSeconds
	}

	return model.Result{
		RequestID:       req.ID,
		Success:         true,
		OutputPath:      fmt.Sprintf("stitch://%s", req.ID),
		DurationSeconds: duration,
		Cost:            cost,
		NumSegments:     len(segments),
		SegmentOutputs:  outputs,
	}, nil
}

// renderOutcome is the shared result of one de-duplicated render. Cost is
// claimed exactly once so concurrent identical segments never double-count.
type renderOutcome struct {
	outputPath      string
	durationSeconds float64
	cost            float64
	claimed         atomic.Bool
}

func (p *Processor) processSegment(ctx context.Context, seg model.Request) (model.Result, error) {
	if p.cache == nil {
		return p.run(ctx, seg)
	}

	key := cache.Key(seg.CharacterID, seg.DurationSeconds, seg.Script)
	if e, ok := p.cache.Get(key); ok {
		p.logger.Debug("segment cache hit", "request_id", seg.ID, "segment", seg.SegmentIndex)
		return model.Result{
			RequestID:       seg.ID,
			Success:         true,
			OutputPath:      e.OutputPath,
			DurationSeconds: e.DurationSeconds,
		}, nil
	}

	// Collapse concurrent identical renders into one provider call.
	v, err, _ := p.group.Do(key, func() (any, error) {
		res, err := p.run(ctx, seg)
		if err != nil {
			return nil, err
		}
		p.cache.Set(key, cache.Entry{OutputPath: res.OutputPath, DurationSeconds: res.DurationSeconds})
		return &renderOutcome{
			outputPath:      res.OutputPath,
			durationSeconds: res.DurationSeconds,
			cost:            res.Cost,
		}, nil
	})
	if err != nil {
		return model.Result{}, err
	}

	outcome := v.(*renderOutcome)
	res := model.Result{
		RequestID:       seg.ID,
		Success:         true,
		OutputPath:      outcome.outputPath,
		DurationSeconds: outcome.durationSeconds,
	}
	if outcome.claimed.CompareAndSwap(false, true) {
		res.Cost = outcome.cost
	}
	return res, nil
}
