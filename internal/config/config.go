// Package config loads and validates orchestrator configuration from
// environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all orchestrator configuration.
type Config struct {
	// Routing thresholds (seconds of output video).
	MaxFastDuration float64 // hard ceiling of the fast service
	ChunkDuration   float64 // requests above this are segmented

	// Budget.
	BudgetLimit float64 // currency units per session/month

	// Rented compute.
	DefaultHardware string
	ContainerImage  string
	PollInterval    time.Duration
	ReadyTimeout    time.Duration
	JobTimeout      time.Duration
	CatalogPath     string // optional override of the embedded hardware catalog

	// Fast service.
	FastServiceURL string
	FastServiceRPS float64 // outgoing request rate limit
	FastUnitRate   float64 // currency units per second of output video

	// Wall-time estimation factors: seconds of processing per second of video.
	FastRealtimeFactor    float64
	ComputeRealtimeFactor float64

	// Behavior toggles.
	EnableFallback bool
	CacheEnabled   bool
	SegmentWorkers int // 1 = strictly sequential segment processing

	// Provider endpoints.
	RunPodURL    string
	RunPodAPIKey string
	VastURL      string
	VastAPIKey   string

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Operational settings.
	LogLevel string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		MaxFastDuration:       envFloat("HYBRIDGEN_MAX_FAST_DURATION", 60),
		ChunkDuration:         envFloat("HYBRIDGEN_CHUNK_DURATION", 300),
		BudgetLimit:           envFloat("HYBRIDGEN_BUDGET_LIMIT", 500),
		DefaultHardware:       envStr("HYBRIDGEN_DEFAULT_HARDWARE", "RTX_4090"),
		ContainerImage:        envStr("HYBRIDGEN_CONTAINER_IMAGE", "hybridgen/worker:latest"),
		PollInterval:          envDuration("HYBRIDGEN_POLL_INTERVAL", 5*time.Second),
		ReadyTimeout:          envDuration("HYBRIDGEN_READY_TIMEOUT", 5*time.Minute),
		JobTimeout:            envDuration("HYBRIDGEN_JOB_TIMEOUT", 30*time.Minute),
		CatalogPath:           envStr("HYBRIDGEN_CATALOG_PATH", ""),
		FastServiceURL:        envStr("HYBRIDGEN_FAST_SERVICE_URL", "http://localhost:8188"),
		FastServiceRPS:        envFloat("HYBRIDGEN_FAST_SERVICE_RPS", 5),
		FastUnitRate:          envFloat("HYBRIDGEN_FAST_UNIT_RATE", 0.02),
		FastRealtimeFactor:    envFloat("HYBRIDGEN_FAST_REALTIME_FACTOR", 2),
		ComputeRealtimeFactor: envFloat("HYBRIDGEN_COMPUTE_REALTIME_FACTOR", 6),
		EnableFallback:        envBool("HYBRIDGEN_ENABLE_FALLBACK", true),
		CacheEnabled:          envBool("HYBRIDGEN_CACHE_ENABLED", true),
		SegmentWorkers:        envInt("HYBRIDGEN_SEGMENT_WORKERS", 1),
		RunPodURL:             envStr("RUNPOD_URL", "https://api.runpod.io"),
		RunPodAPIKey:          envStr("RUNPOD_API_KEY", ""),
		VastURL:               envStr("VAST_URL", "https://console.vast.ai"),
		VastAPIKey:            envStr("VAST_API_KEY", ""),
		OTELEndpoint:          envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:          envBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		ServiceName:           envStr("OTEL_SERVICE_NAME", "hybridgen"),
		LogLevel:              envStr("HYBRIDGEN_LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that configuration values are internally consistent.
func (c Config) Validate() error {
	if c.MaxFastDuration <= 0 {
		return fmt.Errorf("config: HYBRIDGEN_MAX_FAST_DURATION must be positive")
	}
	if c.ChunkDuration <= 0 {
		return fmt.Errorf("config: HYBRIDGEN_CHUNK_DURATION must be positive")
	}
	if c.ChunkDuration < c.MaxFastDuration {
		return fmt.Errorf("config: HYBRIDGEN_CHUNK_DURATION (%v) must be >= HYBRIDGEN_MAX_FAST_DURATION (%v)",
			c.ChunkDuration, c.MaxFastDuration)
	}
	if c.BudgetLimit <= 0 {
		return fmt.Errorf("config: HYBRIDGEN_BUDGET_LIMIT must be positive")
	}
	if c.FastUnitRate < 0 {
		return fmt.Errorf("config: HYBRIDGEN_FAST_UNIT_RATE must not be negative")
	}
	if c.SegmentWorkers < 1 {
		return fmt.Errorf("config: HYBRIDGEN_SEGMENT_WORKERS must be >= 1")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("config: HYBRIDGEN_POLL_INTERVAL must be positive")
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
