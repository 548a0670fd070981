package hybridgen

import (
	"time"

	"github.com/google/uuid"
)

// Method identifies a processing route.
type Method string

const (
	// MethodFastService routes to the bounded-latency generation API.
	MethodFastService Method = "fast_service"
	// MethodRentedCompute routes to an hourly-billed GPU instance.
	MethodRentedCompute Method = "rented_compute"
	// MethodAuto lets the orchestrator pick and enables fallback.
	MethodAuto Method = "auto"
)

// Priority expresses the caller's latency/cost preference.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityNormal Priority = "normal"
	PriorityBudget Priority = "budget_conscious"
)

// Request is a single video-generation request.
// ID may be left zero; the orchestrator assigns one.
type Request struct {
	ID              uuid.UUID
	CharacterID     string
	Script          string
	DurationSeconds float64
	Method          Method   // empty or MethodAuto means "orchestrator decides"
	Priority        Priority // empty means PriorityNormal
	Quality         map[string]string
	OutputFormat    string
	Metadata        map[string]string
}

// Result is the outcome of processing one request. Cost is sunk even when
// Success is false — failures report whatever was legitimately accrued.
type Result struct {
	RequestID       uuid.UUID
	Success         bool
	OutputPath      string
	Method          Method
	DurationSeconds float64
	Cost            float64
	ProcessingTime  time.Duration
	Error           string
	FellBack        bool
	NumSegments     int
	SegmentOutputs  []string
}

// CostEstimate is a projected cost/wall-time for one candidate method.
type CostEstimate struct {
	Method        Method
	Cost          float64
	EstimatedTime time.Duration
	Confidence    float64
	Rationale     string
}

// Metrics is a snapshot of the orchestrator's in-memory counters plus the
// budget ledger state.
type Metrics struct {
	Requests        int64
	Succeeded       int64
	Failed          int64
	Fallbacks       int64
	ByMethod        map[Method]int64
	CostByMethod    map[Method]float64
	TotalCost       float64
	TotalProcessing time.Duration

	BudgetSpent     float64
	BudgetLimit     float64
	BudgetRemaining float64
	CacheEntries    int
}

// Hardware is a public view of one catalog entry.
type Hardware struct {
	Type            string
	MemoryGB        int
	HourlyRate      float64
	DefaultProvider string
}

// InstanceState is a provider's view of one instance, for external
// ComputeProvider implementations.
type InstanceState struct {
	Status   string // pending, running, failed, terminated
	Endpoint string
}

// JobState is a provider's view of one job, for external ComputeProvider
// implementations.
type JobState struct {
	Status    string // queued, running, completed, failed
	Progress  float64
	OutputRef string
	Error     string
}
