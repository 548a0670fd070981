// Package model defines the core domain types shared across the orchestrator:
// processing requests and results, cost estimates, and the rented-compute
// instance and job entities.
package model

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Method identifies how a request is (or was) processed.
type Method string

const (
	// MethodFastService is the bounded-latency external generation API.
	MethodFastService Method = "fast_service"
	// MethodRentedCompute is an hourly-billed GPU instance from a provider.
	MethodRentedCompute Method = "rented_compute"
	// MethodAuto lets the selector pick; fallback is only legal in this mode.
	MethodAuto Method = "auto"
)

// Priority expresses the caller's latency/cost preference.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityNormal Priority = "normal"
	PriorityBudget Priority = "budget_conscious"
)

// Request is a single video-generation request. Immutable once created;
// segments are derived copies built with Segment().
type Request struct {
	ID              uuid.UUID
	CharacterID     string
	Script          string
	DurationSeconds float64
	Method          Method // requested method; MethodAuto means "selector decides"
	Priority        Priority
	Quality         map[string]string
	OutputFormat    string
	Metadata        map[string]string

	// Segment bookkeeping. Zero values on a parent request.
	ParentID      *uuid.UUID
	SegmentIndex  int
	TotalSegments int
}

// IsSegment reports whether r was derived from a longer parent request.
func (r Request) IsSegment() bool { return r.ParentID != nil }

// Segment derives a sub-request covering seconds of the parent's duration
// with the given script slice. The derived request keeps the parent's
// character, quality, and format, and carries the bookkeeping fields the
// stitcher needs to reassemble outputs in order.
func (r Request) Segment(index, total int, seconds float64, script string) Request {
	parent := r.ID
	seg := r
	seg.ID = uuid.New()
	seg.ParentID = &parent
	seg.SegmentIndex = index
	seg.TotalSegments = total
	seg.DurationSeconds = seconds
	seg.Script = script
	return seg
}

// Validate checks the fields every request must carry before it is routed.
func (r Request) Validate() error {
	if strings.TrimSpace(r.CharacterID) == "" {
		return &ValidationError{Field: "character_id", Reason: "must not be empty"}
	}
	if strings.TrimSpace(r.Script) == "" {
		return &ValidationError{Field: "script", Reason: "must not be empty"}
	}
	if r.DurationSeconds <= 0 {
		return &ValidationError{Field: "duration_seconds", Reason: "must be positive"}
	}
	switch r.Method {
	case MethodFastService, MethodRentedCompute, MethodAuto:
	default:
		return &ValidationError{Field: "method", Reason: fmt.Sprintf("unknown method %q", r.Method)}
	}
	switch r.Priority {
	case PriorityUrgent, PriorityNormal, PriorityBudget:
	default:
		return &ValidationError{Field: "priority", Reason: fmt.Sprintf("unknown priority %q", r.Priority)}
	}
	if r.IsSegment() {
		if r.SegmentIndex < 0 || r.SegmentIndex >= r.TotalSegments {
			return &ValidationError{Field: "segment_index", Reason: "must be in [0, total_segments)"}
		}
	}
	return nil
}

// ValidationError reports a malformed request or an unknown catalog entry.
// Terminal: never retried, never falls back.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("model: invalid %s: %s", e.Field, e.Reason)
}
