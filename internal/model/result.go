package model

import (
	"time"

	"github.com/google/uuid"
)

// Result is the outcome of processing one request. Failure results still
// carry whatever cost and duration were legitimately accrued before the
// failure — callers must treat Cost as sunk even when Success is false.
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

	// Stitching metadata, populated for long-form requests.
	NumSegments    int
	SegmentOutputs []string
}

// CostEstimate is a projected cost/wall-time for one candidate method.
// Produced on demand, never persisted.
type CostEstimate struct {
	Method        Method
	Cost          float64
	EstimatedTime time.Duration
	Confidence    float64 // 0..1
	Rationale     string
}
