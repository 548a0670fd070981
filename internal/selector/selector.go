// Package selector is the routing decision engine: given request attributes
// and static cost estimates it picks fast-service or rented-compute. Pure —
// no network calls, no side effects.
package selector

import (
	"github.com/villenero912/hybridgen/internal/model"
	"github.com/villenero912/hybridgen/internal/pricing"
)

// metaComputeOptIn is the request metadata key a caller sets to push a
// short normal-priority request onto rented compute.
const metaComputeOptIn = "prefer_compute"

// Selector classifies requests by duration and priority.
type Selector struct {
	maxFastDuration float64
	estimator       *pricing.Estimator
}

// New creates a Selector. maxFast is the fast service's hard duration
// ceiling.
func New(maxFast float64, est *pricing.Estimator) *Selector {
	return &Selector{maxFastDuration: maxFast, estimator: est}
}

// Select picks the processing method for req.
//
// A caller-forced method always wins. Otherwise duration is classified as
// short (≤ maxFast) or not, and priority decides:
//   - urgent: short → fast; everything else → rented compute
//   - budget_conscious: cheaper of the two estimates, ties favor fast
//   - normal: short → fast unless metadata opts into compute; anything
//     above the fast-service ceiling → rented compute
func (s *Selector) Select(req model.Request) model.Method {
	if req.Method != model.MethodAuto && req.Method != "" {
		return req.Method
	}

	short := req.DurationSeconds <= s.maxFastDuration

	switch req.Priority {
	case model.PriorityUrgent:
		if short {
			return model.MethodFastService
		}
		return model.MethodRentedCompute

	case model.PriorityBudget:
		return s.cheaper(req)

	default: // PriorityNormal
		if short && req.Metadata[metaComputeOptIn] != "true" {
			return model.MethodFastService
		}
		// Anything above the fast-service ceiling can only be served by
		// rented compute, same as the structural rule in cheaper.
		return model.MethodRentedCompute
	}
}

func (s *Selector) cheaper(req model.Request) model.Method {
	// Above the fast-service ceiling only one method is structurally valid.
	if req.DurationSeconds > s.maxFastDuration {
		return model.MethodRentedCompute
	}
	fast, errFast := s.estimator.Estimate(model.MethodFastService, req)
	rented, errRented := s.estimator.Estimate(model.MethodRentedCompute, req)
	if errFast != nil || errRented != nil {
		return model.MethodFastService
	}
	if rented.Cost < fast.Cost {
		return model.MethodRentedCompute
	}
	return model.MethodFastService
}
