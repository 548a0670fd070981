package hybridgen

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/villenero912/hybridgen/internal/apierr"
)

// stubFast is a FastService that succeeds with a canned path, or fails the
// first failN calls with a retryable server error.
type stubFast struct {
	calls atomic.Int64
	failN int64
}

func (s *stubFast) Generate(ctx context.Context, req FastServiceRequest) (FastServiceResponse, error) {
	n := s.calls.Add(1)
	if n <= s.failN {
		return FastServiceResponse{}, &apierr.StatusError{
			Service: "fast_service", Op: "generate", StatusCode: 503, Message: "queue full",
		}
	}
	return FastServiceResponse{OutputPath: fmt.Sprintf("/fast/%s-%d.mp4", req.CharacterID, n)}, nil
}

// stubProvider is a ComputeProvider whose instances come up immediately and
// whose jobs complete on first poll.
type stubProvider struct {
	name    string
	created atomic.Int64
	deleted atomic.Int64
	jobs    atomic.Int64
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) CreateInstance(ctx context.Context, hardwareType, containerImage string) (string, error) {
	return fmt.Sprintf("inst-%d", s.created.Add(1)), nil
}

func (s *stubProvider) InstanceStatus(ctx context.Context, instanceID string) (InstanceState, error) {
	return InstanceState{Status: "running", Endpoint: "http://10.0.0.2:8080"}, nil
}

func (s *stubProvider) SubmitJob(ctx context.Context, instanceID, script string, input map[string]string) (string, error) {
	return fmt.Sprintf("job-%d", s.jobs.Add(1)), nil
}

func (s *stubProvider) JobStatus(ctx context.Context, jobID string) (JobState, error) {
	return JobState{Status: "completed", Progress: 1, OutputRef: "/compute/" + jobID + ".mp4"}, nil
}

func (s *stubProvider) DeleteInstance(ctx context.Context, instanceID string) error {
	s.deleted.Add(1)
	return nil
}

func (s *stubProvider) ListHardware(ctx context.Context) ([]string, error) {
	return []string{"RTX_3090", "RTX_4090", "A100_80GB", "H100_80GB"}, nil
}

func newTestOrchestrator(t *testing.T, fast FastService, prov ComputeProvider, opts ...Option) *Orchestrator {
	t.Helper()
	t.Setenv("HYBRIDGEN_POLL_INTERVAL", "1ms")
	t.Setenv("HYBRIDGEN_READY_TIMEOUT", "1s")
	t.Setenv("HYBRIDGEN_JOB_TIMEOUT", "1s")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	opts = append([]Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithFastService(fast),
		WithProvider("runpod", prov),
		WithProvider("vast", prov),
	}, opts...)

	orch, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = orch.Shutdown(context.Background()) })
	return orch
}

func TestProcessShortNormalGoesFast(t *testing.T) {
	fast := &stubFast{}
	prov := &stubProvider{name: "runpod"}
	orch := newTestOrchestrator(t, fast, prov)

	res := orch.Process(context.Background(), Request{
		CharacterID:     "miko",
		Script:          "a quick greeting",
		DurationSeconds: 30,
	})

	require.True(t, res.Success, "error: %s", res.Error)
	assert.Equal(t, MethodFastService, res.Method)
	assert.Contains(t, res.OutputPath, "/fast/miko")
	// 30 seconds at the per-second unit rate.
	assert.InDelta(t, 30*0.02, res.Cost, 1e-9)
	assert.False(t, res.FellBack)
	assert.Equal(t, int64(0), prov.created.Load())

	m := orch.Metrics()
	assert.Equal(t, int64(1), m.Requests)
	assert.Equal(t, int64(1), m.Succeeded)
	assert.InDelta(t, 0.6, m.BudgetSpent, 1e-9)
}

func TestProcessMediumNormalUsesRentedCompute(t *testing.T) {
	fast := &stubFast{}
	prov := &stubProvider{name: "runpod"}
	orch := newTestOrchestrator(t, fast, prov)

	// Between the fast-service ceiling (60s) and the chunk size (300s) the
	// fast service cannot serve the request at all; normal priority must
	// still succeed, in one piece, on rented compute.
	res := orch.Process(context.Background(), Request{
		CharacterID:     "miko",
		Script:          "a story too long for the fast lane",
		DurationSeconds: 100,
	})

	require.True(t, res.Success, "error: %s", res.Error)
	assert.Equal(t, MethodRentedCompute, res.Method)
	assert.False(t, res.FellBack)
	assert.Equal(t, 0, res.NumSegments)
	assert.InDelta(t, 0.44, res.Cost, 1e-9)
	assert.Equal(t, int64(0), fast.calls.Load())
	assert.Equal(t, int64(1), prov.created.Load())
	assert.Equal(t, int64(1), prov.deleted.Load())
}

func TestProcessLongFormSegments(t *testing.T) {
	fast := &stubFast{}
	prov := &stubProvider{name: "runpod"}
	orch := newTestOrchestrator(t, fast, prov)

	// 900s over a 300s chunk size: three rented segments, stitched.
	res := orch.Process(context.Background(), Request{
		CharacterID:     "miko",
		Script:          strings.Repeat("word ", 90),
		DurationSeconds: 900,
	})

	require.True(t, res.Success, "error: %s", res.Error)
	assert.Equal(t, MethodRentedCompute, res.Method)
	assert.Equal(t, 3, res.NumSegments)
	assert.Len(t, res.SegmentOutputs, 3)
	assert.True(t, strings.HasPrefix(res.OutputPath, "stitch://"))
	assert.InDelta(t, 900, res.DurationSeconds, 1e-9)
	// Each 300s segment runs 0.5 GPU-hours + setup, under the one-hour
	// billing floor of RTX_4090.
	assert.InDelta(t, 3*0.44, res.Cost, 1e-9)

	// One instance per segment, all stopped.
	assert.Equal(t, int64(3), prov.created.Load())
	assert.Equal(t, int64(3), prov.deleted.Load())
	assert.Equal(t, int64(0), fast.calls.Load())
}

func TestProcessFallbackFastToRented(t *testing.T) {
	fast := &stubFast{failN: 10}
	prov := &stubProvider{name: "runpod"}
	orch := newTestOrchestrator(t, fast, prov)

	// Urgent short request routes fast; the 503 triggers one re-route onto
	// rented compute.
	res := orch.Process(context.Background(), Request{
		CharacterID:     "miko",
		Script:          "say it now",
		DurationSeconds: 20,
		Priority:        PriorityUrgent,
	})

	require.True(t, res.Success, "error: %s", res.Error)
	assert.True(t, res.FellBack)
	assert.Equal(t, MethodRentedCompute, res.Method)
	assert.Contains(t, res.OutputPath, "/compute/")
	assert.InDelta(t, 0.44, res.Cost, 1e-9)

	// The fast service is tried exactly once; no retry loop.
	assert.Equal(t, int64(1), fast.calls.Load())
	assert.Equal(t, int64(1), prov.created.Load())

	m := orch.Metrics()
	assert.Equal(t, int64(1), m.Fallbacks)
}

func TestProcessBudgetExceededNeverFallsBack(t *testing.T) {
	fast := &stubFast{}
	prov := &stubProvider{name: "runpod"}
	// 30s at the unit rate estimates cheaper on rented compute, so a
	// budget-conscious request picks it; the ledger cannot cover even the
	// first hour.
	orch := newTestOrchestrator(t, fast, prov, WithBudgetLimit(0.3))

	res := orch.Process(context.Background(), Request{
		CharacterID:     "miko",
		Script:          "frugal scene",
		DurationSeconds: 30,
		Priority:        PriorityBudget,
	})

	require.False(t, res.Success)
	assert.Equal(t, MethodRentedCompute, res.Method)
	assert.Contains(t, res.Error, "budget")
	assert.False(t, res.FellBack)
	assert.InDelta(t, 0, res.Cost, 1e-9)

	// Nothing was provisioned and the ledger is untouched.
	assert.Equal(t, int64(0), prov.created.Load())
	m := orch.Metrics()
	assert.Equal(t, int64(0), m.Fallbacks)
	assert.InDelta(t, 0, m.BudgetSpent, 1e-9)
	assert.InDelta(t, 0.3, m.BudgetRemaining, 1e-9)
}

func TestProcessForcedMethodWins(t *testing.T) {
	fast := &stubFast{}
	prov := &stubProvider{name: "runpod"}
	orch := newTestOrchestrator(t, fast, prov)

	res := orch.Process(context.Background(), Request{
		CharacterID:     "miko",
		Script:          "force the gpu",
		DurationSeconds: 10,
		Method:          MethodRentedCompute,
	})

	require.True(t, res.Success, "error: %s", res.Error)
	assert.Equal(t, MethodRentedCompute, res.Method)
	assert.Equal(t, int64(0), fast.calls.Load())
}

func TestProcessForcedMethodNeverFallsBack(t *testing.T) {
	fast := &stubFast{failN: 10}
	prov := &stubProvider{name: "runpod"}
	orch := newTestOrchestrator(t, fast, prov)

	res := orch.Process(context.Background(), Request{
		CharacterID:     "miko",
		Script:          "fast or nothing",
		DurationSeconds: 10,
		Method:          MethodFastService,
	})

	require.False(t, res.Success)
	assert.False(t, res.FellBack)
	assert.Equal(t, int64(0), prov.created.Load())
}

func TestProcessInvalidRequest(t *testing.T) {
	fast := &stubFast{}
	prov := &stubProvider{name: "runpod"}
	orch := newTestOrchestrator(t, fast, prov)

	res := orch.Process(context.Background(), Request{
		CharacterID:     "miko",
		Script:          "",
		DurationSeconds: 30,
	})

	require.False(t, res.Success)
	assert.Contains(t, res.Error, "script")
	assert.Equal(t, int64(0), fast.calls.Load())
	assert.Equal(t, int64(0), prov.created.Load())
}

func TestProcessAssignsRequestID(t *testing.T) {
	fast := &stubFast{}
	prov := &stubProvider{name: "runpod"}
	orch := newTestOrchestrator(t, fast, prov)

	res := orch.Process(context.Background(), Request{
		CharacterID:     "miko",
		Script:          "hello",
		DurationSeconds: 10,
	})
	require.True(t, res.Success)
	assert.NotEmpty(t, res.RequestID)
}

func TestSegmentCacheAcrossRequests(t *testing.T) {
	fast := &stubFast{}
	prov := &stubProvider{name: "runpod"}
	orch := newTestOrchestrator(t, fast, prov)

	req := Request{
		CharacterID:     "miko",
		Script:          strings.Repeat("word ", 90),
		DurationSeconds: 900,
	}
	first := orch.Process(context.Background(), req)
	require.True(t, first.Success, "error: %s", first.Error)
	require.Equal(t, int64(3), prov.created.Load())
	assert.Equal(t, 3, orch.CacheLen())

	// Identical scripts replay from the cache: no new instances, no new cost.
	second := orch.Process(context.Background(), req)
	require.True(t, second.Success, "error: %s", second.Error)
	assert.Equal(t, int64(3), prov.created.Load())
	assert.InDelta(t, 0, second.Cost, 1e-9)

	orch.ClearCache()
	assert.Equal(t, 0, orch.CacheLen())
}

func TestCacheDisabled(t *testing.T) {
	fast := &stubFast{}
	prov := &stubProvider{name: "runpod"}
	orch := newTestOrchestrator(t, fast, prov, WithCache(false))

	req := Request{
		CharacterID:     "miko",
		Script:          strings.Repeat("word ", 90),
		DurationSeconds: 900,
	}
	first := orch.Process(context.Background(), req)
	require.True(t, first.Success, "error: %s", first.Error)
	assert.Equal(t, 0, orch.CacheLen())

	second := orch.Process(context.Background(), req)
	require.True(t, second.Success, "error: %s", second.Error)
	assert.Equal(t, int64(6), prov.created.Load())
	assert.InDelta(t, 3*0.44, second.Cost, 1e-9)
}

func TestEstimate(t *testing.T) {
	fast := &stubFast{}
	prov := &stubProvider{name: "runpod"}
	orch := newTestOrchestrator(t, fast, prov)

	req := Request{CharacterID: "miko", Script: "hello", DurationSeconds: 30}

	fastEst, err := orch.Estimate(MethodFastService, req)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, fastEst.Cost, 1e-9)
	assert.InDelta(t, 0.9, fastEst.Confidence, 1e-9)
	assert.Equal(t, time.Minute, fastEst.EstimatedTime)

	rentedEst, err := orch.Estimate(MethodRentedCompute, req)
	require.NoError(t, err)
	assert.InDelta(t, 0.44, rentedEst.Cost, 1e-9)
	assert.Greater(t, fastEst.Confidence, rentedEst.Confidence)
}

func TestListHardware(t *testing.T) {
	fast := &stubFast{}
	prov := &stubProvider{name: "runpod"}
	orch := newTestOrchestrator(t, fast, prov)

	hws := orch.ListHardware(context.Background())
	require.Len(t, hws, 4)
	types := make([]string, len(hws))
	for i, hw := range hws {
		types[i] = hw.Type
	}
	assert.Contains(t, types, "RTX_4090")
	assert.Contains(t, types, "A100_80GB")
}

func TestShutdownStopsInstances(t *testing.T) {
	fast := &stubFast{}
	prov := &stubProvider{name: "runpod"}
	orch := newTestOrchestrator(t, fast, prov)

	res := orch.Process(context.Background(), Request{
		CharacterID:     "miko",
		Script:          "scene",
		DurationSeconds: 10,
		Method:          MethodRentedCompute,
	})
	require.True(t, res.Success)

	// Process already tears its instance down; Shutdown must be safe to
	// call with an empty registry.
	require.NoError(t, orch.Shutdown(context.Background()))
	assert.Equal(t, prov.created.Load(), prov.deleted.Load())
}
