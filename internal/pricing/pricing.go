// Package pricing computes projected costs and wall times for a request
// under each candidate method. All functions are pure; both the selector
// and the compute manager's budget guard call into this package.
package pricing

import (
	"fmt"
	"time"

	"github.com/villenero912/hybridgen/internal/catalog"
	"github.com/villenero912/hybridgen/internal/model"
)

// Rates carries the tunables the estimator needs beyond the hardware catalog.
type Rates struct {
	FastUnitRate          float64 // currency per second of output video
	FastRealtimeFactor    float64 // processing seconds per output second
	ComputeRealtimeFactor float64
}

// Estimator produces CostEstimates for both methods.
type Estimator struct {
	catalog  *catalog.Catalog
	rates    Rates
	hardware string // default hardware type for rented-compute estimates
}

// NewEstimator builds an Estimator around the catalog's default hardware.
func NewEstimator(cat *catalog.Catalog, rates Rates, defaultHardware string) (*Estimator, error) {
	if _, err := cat.Lookup(defaultHardware); err != nil {
		return nil, err
	}
	return &Estimator{catalog: cat, rates: rates, hardware: defaultHardware}, nil
}

// FastServiceCost is linear in output duration.
func FastServiceCost(durationSeconds, unitRate float64) float64 {
	return durationSeconds * unitRate
}

// ComputeCost applies the hourly billing rule:
//
//	cost = max(processingHours + setupOverhead, minimumBillingHours) × hourlyRate
//
// The round-up-to-minimum-billing floor must match the providers' invoices
// exactly; the selector's budget comparisons depend on it.
func ComputeCost(hw catalog.Hardware, processingHours float64) float64 {
	billed := processingHours + hw.SetupOverheadHours
	if billed < hw.MinimumBillingHours {
		billed = hw.MinimumBillingHours
	}
	return billed * hw.HourlyRate
}

// ComputeHours converts output seconds into projected GPU processing hours.
func (e *Estimator) ComputeHours(durationSeconds float64) float64 {
	return durationSeconds * e.rates.ComputeRealtimeFactor / 3600
}

// Estimate projects cost, wall time, and confidence for one method.
// Rented-compute estimates carry lower confidence: setup time and queueing
// on the provider side are not observable up front.
func (e *Estimator) Estimate(method model.Method, req model.Request) (model.CostEstimate, error) {
	switch method {
	case model.MethodFastService:
		wall := time.Duration(req.DurationSeconds * e.rates.FastRealtimeFactor * float64(time.Second))
		return model.CostEstimate{
			Method:        model.MethodFastService,
			Cost:          FastServiceCost(req.DurationSeconds, e.rates.FastUnitRate),
			EstimatedTime: wall,
			Confidence:    0.9,
			Rationale:     fmt.Sprintf("%.0fs at %.4f/s flat rate", req.DurationSeconds, e.rates.FastUnitRate),
		}, nil
	case model.MethodRentedCompute:
		hw, err := e.catalog.Lookup(e.hardware)
		if err != nil {
			return model.CostEstimate{}, err
		}
		hours := e.ComputeHours(req.DurationSeconds)
		wall := time.Duration((hours + hw.SetupOverheadHours) * float64(time.Hour))
		return model.CostEstimate{
			Method:        model.MethodRentedCompute,
			Cost:          ComputeCost(hw, hours),
			EstimatedTime: wall,
			Confidence:    0.6,
			Rationale: fmt.Sprintf("%s at %.2f/h, %.2fh projected (%.2fh minimum billing)",
				hw.Type, hw.HourlyRate, hours+hw.SetupOverheadHours, hw.MinimumBillingHours),
		}, nil
	default:
		return model.CostEstimate{}, &model.ValidationError{
			Field:  "method",
			Reason: fmt.Sprintf("cannot estimate method %q", method),
		}
	}
}

// DefaultHardware returns the hardware type used for rented-compute estimates.
func (e *Estimator) DefaultHardware() string { return e.hardware }
