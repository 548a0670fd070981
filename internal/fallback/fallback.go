// Package fallback decides whether a failed request may be re-routed once
// to the other method. A fallback is one-way and never loops: at most one
// re-route per request, and only when the caller left the method choice to
// the selector (automatic mode).
package fallback

import (
	"errors"

	"github.com/villenero912/hybridgen/internal/apierr"
	"github.com/villenero912/hybridgen/internal/budget"
	"github.com/villenero912/hybridgen/internal/compute"
	"github.com/villenero912/hybridgen/internal/model"
	"github.com/villenero912/hybridgen/internal/poll"
	"github.com/villenero912/hybridgen/internal/segment"
)

// Coordinator holds the fallback policy; fallback counts live with the rest
// of the request metrics.
type Coordinator struct {
	enabled         bool
	maxFastDuration float64
}

// New creates a Coordinator. enabled mirrors the enable_fallback config;
// maxFast is the fast service's duration ceiling.
func New(enabled bool, maxFast float64) *Coordinator {
	return &Coordinator{enabled: enabled, maxFastDuration: maxFast}
}

// Reroute returns the alternate method and true when the failure qualifies
// for a single fallback attempt:
//   - the caller requested automatic selection,
//   - fallback is enabled in config,
//   - the error is retryable (provider 5xx/network, timeout, or a
//     provider-side instance/job failure — never validation or budget),
//   - the alternate method can structurally serve the request.
//
// Callers must invoke Reroute at most once per request.
func (c *Coordinator) Reroute(req model.Request, failed model.Method, err error) (model.Method, bool) {
	if !c.enabled || req.Method != model.MethodAuto {
		return "", false
	}
	if !retryable(err) {
		return "", false
	}

	switch failed {
	case model.MethodFastService:
		// Rented compute can always absorb a fast-service request.
		return model.MethodRentedCompute, true
	case model.MethodRentedCompute:
		if req.DurationSeconds <= c.maxFastDuration {
			return model.MethodFastService, true
		}
	}
	return "", false
}

func retryable(err error) bool {
	var exceeded *budget.ExceededError
	var invalid *model.ValidationError
	if errors.As(err, &exceeded) || errors.As(err, &invalid) {
		return false
	}

	// Segment failures wrap the failing segment's underlying error; the
	// wrapped cause decides retryability.
	var segErr *segment.FailureError
	if errors.As(err, &segErr) {
		return retryable(segErr.Err)
	}

	var timeout *poll.TimeoutError
	if errors.As(err, &timeout) {
		return true
	}
	if apierr.IsRetryable(err) {
		return true
	}
	return errors.Is(err, compute.ErrInstanceFailed) || errors.Is(err, compute.ErrJobFailed)
}
