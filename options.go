package hybridgen

import "log/slog"

// Option configures an Orchestrator.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	logger         *slog.Logger
	version        string
	catalogPath    string
	budgetLimit    float64
	segmentWorkers int
	fallback       *bool
	cache          *bool
	fastService    FastService
	providers      map[string]ComputeProvider
}

// WithLogger sets the structured logger.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in logs and telemetry.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithCatalogPath overrides the hardware catalog file from config
// (HYBRIDGEN_CATALOG_PATH env var).
func WithCatalogPath(path string) Option {
	return func(o *resolvedOptions) { o.catalogPath = path }
}

// WithBudgetLimit overrides the spend limit from config
// (HYBRIDGEN_BUDGET_LIMIT env var).
func WithBudgetLimit(limit float64) Option {
	return func(o *resolvedOptions) { o.budgetLimit = limit }
}

// WithSegmentWorkers overrides the segment parallelism from config.
// 1 keeps segment processing strictly sequential.
func WithSegmentWorkers(n int) Option {
	return func(o *resolvedOptions) { o.segmentWorkers = n }
}

// WithFallback overrides the enable_fallback config toggle.
func WithFallback(enabled bool) Option {
	return func(o *resolvedOptions) { o.fallback = &enabled }
}

// WithCache overrides the cache_enabled config toggle.
func WithCache(enabled bool) Option {
	return func(o *resolvedOptions) { o.cache = &enabled }
}

// WithFastService replaces the built-in fast-service HTTP client.
func WithFastService(fs FastService) Option {
	return func(o *resolvedOptions) { o.fastService = fs }
}

// WithProvider registers a rental backend under name, replacing the
// built-in client of the same name if one exists. The catalog's
// default_provider field selects backends by this name.
func WithProvider(name string, p ComputeProvider) Option {
	return func(o *resolvedOptions) {
		if o.providers == nil {
			o.providers = make(map[string]ComputeProvider)
		}
		o.providers[name] = p
	}
}
