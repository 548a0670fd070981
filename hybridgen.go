// Package hybridgen is the public API for embedding the hybrid processing
// orchestrator: the subsystem that routes each video-generation request to
// the bounded-latency fast service or to rented GPU compute, segments
// long-form requests, enforces the cost budget, and falls back between
// methods on retryable failures.
//
//	orch, err := hybridgen.New(
//	    hybridgen.WithLogger(logger),
//	    hybridgen.WithVersion(version),
//	)
//	if err != nil { ... }
//	defer orch.Shutdown(context.Background())
//	result := orch.Process(ctx, req)
//
// The import graph enforces a strict no-cycle rule: hybridgen (root)
// imports internal/*, but internal/* never imports the root. Public types
// are standalone structs; conversion helpers live here because this is the
// only file that sees both sides of the boundary.
package hybridgen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/villenero912/hybridgen/internal/budget"
	"github.com/villenero912/hybridgen/internal/cache"
	"github.com/villenero912/hybridgen/internal/catalog"
	"github.com/villenero912/hybridgen/internal/compute"
	"github.com/villenero912/hybridgen/internal/config"
	"github.com/villenero912/hybridgen/internal/fallback"
	"github.com/villenero912/hybridgen/internal/fastservice"
	"github.com/villenero912/hybridgen/internal/metrics"
	"github.com/villenero912/hybridgen/internal/model"
	"github.com/villenero912/hybridgen/internal/pricing"
	"github.com/villenero912/hybridgen/internal/provider"
	"github.com/villenero912/hybridgen/internal/segment"
	"github.com/villenero912/hybridgen/internal/selector"
	"github.com/villenero912/hybridgen/internal/telemetry"
)

// Orchestrator wires the selector, segmenter, compute manager, budget
// ledger, and fallback coordinator behind one Process entry point.
// Construct with New(); all methods are safe for concurrent use.
type Orchestrator struct {
	cfg          config.Config
	catalog      *catalog.Catalog
	ledger       *budget.Ledger
	estimator    *pricing.Estimator
	selector     *selector.Selector
	manager      *compute.Manager
	fast         FastService
	segments     *segment.Processor
	fallback     *fallback.Coordinator
	cache        *cache.Cache
	recorder     *metrics.Recorder
	tracer       trace.Tracer
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string
}

// New initialises the orchestrator: loads configuration (env vars, with an
// optional .env file), the hardware catalog, telemetry, the provider
// clients, and all internal subsystems. It does not start any goroutines
// and makes no network calls.
func New(opts ...Option) (*Orchestrator, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.catalogPath != "" {
		cfg.CatalogPath = o.catalogPath
	}
	if o.budgetLimit > 0 {
		cfg.BudgetLimit = o.budgetLimit
	}
	if o.segmentWorkers > 0 {
		cfg.SegmentWorkers = o.segmentWorkers
	}
	if o.fallback != nil {
		cfg.EnableFallback = *o.fallback
	}
	if o.cache != nil {
		cfg.CacheEnabled = *o.cache
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("hybridgen starting", "version", version,
		"budget_limit", cfg.BudgetLimit, "chunk_duration", cfg.ChunkDuration)

	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("catalog: %w", err)
	}

	ledger := budget.NewLedger(cfg.BudgetLimit)

	estimator, err := pricing.NewEstimator(cat, pricing.Rates{
		FastUnitRate:          cfg.FastUnitRate,
		FastRealtimeFactor:    cfg.FastRealtimeFactor,
		ComputeRealtimeFactor: cfg.ComputeRealtimeFactor,
	}, cfg.DefaultHardware)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("estimator: %w", err)
	}

	// Provider clients — built-ins first, then external overrides.
	providers := map[string]provider.Provider{
		"runpod": provider.NewRunPod(cfg.RunPodURL, cfg.RunPodAPIKey),
		"vast":   provider.NewVast(cfg.VastURL, cfg.VastAPIKey),
	}
	for name, p := range o.providers {
		providers[name] = &providerAdapter{p: p}
	}

	manager := compute.NewManager(compute.Options{
		Catalog:         cat,
		Ledger:          ledger,
		Providers:       providers,
		Logger:          logger,
		DefaultHardware: cfg.DefaultHardware,
		ContainerImage:  cfg.ContainerImage,
		PollInterval:    cfg.PollInterval,
		ReadyTimeout:    cfg.ReadyTimeout,
		JobTimeout:      cfg.JobTimeout,
		ComputeHours:    estimator.ComputeHours,
	})

	var fast FastService
	if o.fastService != nil {
		fast = o.fastService
	} else {
		fast = &fastServiceAdapter{
			client: fastservice.New(cfg.FastServiceURL, cfg.MaxFastDuration, cfg.FastServiceRPS),
		}
	}

	var segCache *cache.Cache
	if cfg.CacheEnabled {
		segCache = cache.New()
	}

	orch := &Orchestrator{
		cfg:          cfg,
		catalog:      cat,
		ledger:       ledger,
		estimator:    estimator,
		selector:     selector.New(cfg.MaxFastDuration, estimator),
		manager:      manager,
		fast:         fast,
		fallback:     fallback.New(cfg.EnableFallback, cfg.MaxFastDuration),
		cache:        segCache,
		recorder:     metrics.NewRecorder(),
		tracer:       telemetry.Tracer("hybridgen"),
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}
	orch.segments = segment.NewProcessor(cfg.ChunkDuration, cfg.SegmentWorkers, manager.Process, segCache, logger)

	return orch, nil
}

// Process runs one request end to end and always returns a Result; failures
// are reported in the Result rather than as an error so the caller sees the
// cost and time accrued on every path.
func (o *Orchestrator) Process(ctx context.Context, req Request) Result {
	start := time.Now()
	mreq := toInternalRequest(req)

	ctx, span := o.tracer.Start(ctx, "hybridgen.process",
		trace.WithAttributes(
			attribute.String("request_id", mreq.ID.String()),
			attribute.Float64("duration_seconds", mreq.DurationSeconds),
			attribute.String("priority", string(mreq.Priority)),
		))
	defer span.End()

	if err := mreq.Validate(); err != nil {
		res := model.Result{RequestID: mreq.ID, Error: err.Error()}
		return o.finish(ctx, start, res)
	}

	method := o.selector.Select(mreq)
	o.logger.Info("request routed",
		"request_id", mreq.ID, "method", method,
		"duration_seconds", mreq.DurationSeconds, "priority", mreq.Priority)

	res, err := o.execute(ctx, mreq, method)
	res.Method = method

	if err != nil {
		sunk := res.Cost
		if alt, ok := o.fallback.Reroute(mreq, method, err); ok {
			o.logger.Warn("falling back",
				"request_id", mreq.ID, "from", method, "to", alt, "error", err)
			span.AddEvent("fallback", trace.WithAttributes(attribute.String("to", string(alt))))

			retryRes, retryErr := o.execute(ctx, mreq, alt)
			retryRes.Method = alt
			retryRes.Cost += sunk // first attempt's cost stays sunk
			retryRes.FellBack = true
			res, err = retryRes, retryErr
		}
	}

	res.RequestID = mreq.ID
	if err != nil {
		res.Success = false
		res.Error = err.Error()
	}
	return o.finish(ctx, start, res)
}

// execute runs one attempt of req via method. Long-form rented-compute
// requests go through the segmenter; everything else is a single shot.
func (o *Orchestrator) execute(ctx context.Context, req model.Request, method model.Method) (model.Result, error) {
	switch method {
	case model.MethodFastService:
		return o.executeFast(ctx, req)
	case model.MethodRentedCompute:
		if req.DurationSeconds > o.cfg.ChunkDuration {
			res, err := o.segments.ProcessLong(ctx, req)
			res.Method = model.MethodRentedCompute
			if err != nil {
				var fe *segment.FailureError
				if errors.As(err, &fe) {
					res.Cost = fe.AccruedCost
				}
			}
			return res, err
		}
		return o.manager.Process(ctx, req)
	default:
		return model.Result{}, &model.ValidationError{
			Field:  "method",
			Reason: fmt.Sprintf("cannot execute method %q", method),
		}
	}
}

func (o *Orchestrator) executeFast(ctx context.Context, req model.Request) (model.Result, error) {
	resp, err := o.fast.Generate(ctx, FastServiceRequest{
		CharacterID:     req.CharacterID,
		Script:          req.Script,
		DurationSeconds: req.DurationSeconds,
		Quality:         req.Quality,
		Format:          req.OutputFormat,
	})
	if err != nil {
		return model.Result{}, err
	}

	cost := pricing.FastServiceCost(req.DurationSeconds, o.cfg.FastUnitRate)
	o.ledger.Charge(cost)

	return model.Result{
		RequestID:       req.ID,
		Success:         true,
		OutputPath:      resp.OutputPath,
		Method:          model.MethodFastService,
		DurationSeconds: req.DurationSeconds,
		Cost:            cost,
	}, nil
}

// finish stamps timing, records metrics, and converts to the public Result.
func (o *Orchestrator) finish(ctx context.Context, start time.Time, res model.Result) Result {
	res.ProcessingTime = time.Since(start)
	o.recorder.Record(ctx, res)

	if res.Success {
		o.logger.Info("request completed",
			"request_id", res.RequestID, "method", res.Method,
			"cost", res.Cost, "processing_time", res.ProcessingTime)
	} else {
		o.logger.Warn("request failed",
			"request_id", res.RequestID, "method", res.Method,
			"cost", res.Cost, "error", res.Error)
	}
	return toPublicResult(res)
}

// Estimate projects cost and wall time for req under method without
// processing anything.
func (o *Orchestrator) Estimate(method Method, req Request) (CostEstimate, error) {
	est, err := o.estimator.Estimate(model.Method(method), toInternalRequest(req))
	if err != nil {
		return CostEstimate{}, err
	}
	return CostEstimate{
		Method:        Method(est.Method),
		Cost:          est.Cost,
		EstimatedTime: est.EstimatedTime,
		Confidence:    est.Confidence,
		Rationale:     est.Rationale,
	}, nil
}

// Metrics returns a snapshot of the in-memory counters and budget state.
func (o *Orchestrator) Metrics() Metrics {
	snap := o.recorder.Snapshot()
	m := Metrics{
		Requests:        snap.Requests,
		Succeeded:       snap.Succeeded,
		Failed:          snap.Failed,
		Fallbacks:       snap.Fallbacks,
		ByMethod:        make(map[Method]int64, len(snap.ByMethod)),
		CostByMethod:    make(map[Method]float64, len(snap.CostByMethod)),
		TotalCost:       snap.TotalCost,
		TotalProcessing: snap.TotalProcessing,
		BudgetSpent:     o.ledger.Spent(),
		BudgetLimit:     o.ledger.Limit(),
		BudgetRemaining: o.ledger.Remaining(),
	}
	for k, v := range snap.ByMethod {
		m.ByMethod[Method(k)] = v
	}
	for k, v := range snap.CostByMethod {
		m.CostByMethod[Method(k)] = v
	}
	if o.cache != nil {
		m.CacheEntries = o.cache.Len()
	}
	return m
}

// ListHardware returns the catalog entries currently available across the
// configured providers.
func (o *Orchestrator) ListHardware(ctx context.Context) []Hardware {
	hws := o.manager.ListAvailableHardware(ctx)
	out := make([]Hardware, len(hws))
	for i, hw := range hws {
		out[i] = Hardware{
			Type:            hw.Type,
			MemoryGB:        hw.MemoryGB,
			HourlyRate:      hw.HourlyRate,
			DefaultProvider: hw.DefaultProvider,
		}
	}
	return out
}

// ClearCache drops every cached segment output.
func (o *Orchestrator) ClearCache() {
	if o.cache != nil {
		o.cache.Clear()
	}
}

// CacheLen returns the number of cached segment outputs.
func (o *Orchestrator) CacheLen() int {
	if o.cache == nil {
		return 0
	}
	return o.cache.Len()
}

// Shutdown stops every tracked instance, clears the cache, and flushes
// telemetry. Safe to call when nothing was ever provisioned.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	stopped := o.manager.CleanupAll(ctx)
	o.ClearCache()
	if err := o.otelShutdown(ctx); err != nil {
		o.logger.Error("telemetry shutdown error", "error", err)
	}
	o.logger.Info("hybridgen stopped", "instances_stopped", stopped)
	return nil
}

// ── Adapters (defined here because this file imports both sides) ──────────────

// fastServiceAdapter wraps the internal HTTP client to satisfy FastService.
type fastServiceAdapter struct {
	client *fastservice.Client
}

func (a *fastServiceAdapter) Generate(ctx context.Context, req FastServiceRequest) (FastServiceResponse, error) {
	resp, err := a.client.Generate(ctx, fastservice.GenerateRequest{
		CharacterID:     req.CharacterID,
		Script:          req.Script,
		DurationSeconds: req.DurationSeconds,
		Quality:         req.Quality,
		Format:          req.Format,
	})
	if err != nil {
		return FastServiceResponse{}, err
	}
	return FastServiceResponse{OutputPath: resp.OutputPath, Metadata: resp.Metadata}, nil
}

// providerAdapter wraps a public ComputeProvider to satisfy the internal
// provider.Provider interface, converting states at the boundary.
type providerAdapter struct {
	p ComputeProvider
}

func (a *providerAdapter) Name() string { return a.p.Name() }

func (a *providerAdapter) CreateInstance(ctx context.Context, hardwareType, containerImage string) (string, error) {
	return a.p.CreateInstance(ctx, hardwareType, containerImage)
}

func (a *providerAdapter) InstanceStatus(ctx context.Context, instanceID string) (provider.InstanceState, error) {
	st, err := a.p.InstanceStatus(ctx, instanceID)
	if err != nil {
		return provider.InstanceState{}, err
	}
	return provider.InstanceState{
		Status:   model.InstanceStatus(st.Status),
		Endpoint: st.Endpoint,
	}, nil
}

func (a *providerAdapter) SubmitJob(ctx context.Context, instanceID, script string, input map[string]string) (string, error) {
	return a.p.SubmitJob(ctx, instanceID, script, input)
}

func (a *providerAdapter) JobStatus(ctx context.Context, jobID string) (provider.JobState, error) {
	st, err := a.p.JobStatus(ctx, jobID)
	if err != nil {
		return provider.JobState{}, err
	}
	return provider.JobState{
		Status:    model.JobStatus(st.Status),
		Progress:  st.Progress,
		OutputRef: st.OutputRef,
		Error:     st.Error,
	}, nil
}

func (a *providerAdapter) DeleteInstance(ctx context.Context, instanceID string) error {
	return a.p.DeleteInstance(ctx, instanceID)
}

func (a *providerAdapter) ListHardware(ctx context.Context) ([]string, error) {
	return a.p.ListHardware(ctx)
}

// ── Type converters ────────────────────────────────────────────────────────────

func toInternalRequest(req Request) model.Request {
	m := model.Request{
		ID:              req.ID,
		CharacterID:     req.CharacterID,
		Script:          req.Script,
		DurationSeconds: req.DurationSeconds,
		Method:          model.Method(req.Method),
		Priority:        model.Priority(req.Priority),
		Quality:         req.Quality,
		OutputFormat:    req.OutputFormat,
		Metadata:        req.Metadata,
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.Method == "" {
		m.Method = model.MethodAuto
	}
	if m.Priority == "" {
		m.Priority = model.PriorityNormal
	}
	return m
}

func toPublicResult(res model.Result) Result {
	return Result{
		RequestID:       res.RequestID,
		Success:         res.Success,
		OutputPath:      res.OutputPath,
		Method:          Method(res.Method),
		DurationSeconds: res.DurationSeconds,
		Cost:            res.Cost,
		ProcessingTime:  res.ProcessingTime,
		Error:           res.Error,
		FellBack:        res.FellBack,
		NumSegments:     res.NumSegments,
		SegmentOutputs:  res.SegmentOutputs,
	}
}
