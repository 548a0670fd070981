package selector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/villenero912/hybridgen/internal/catalog"
	"github.com/villenero912/hybridgen/internal/model"
	"github.com/villenero912/hybridgen/internal/pricing"
)

const testCatalogYAML = `
hardware:
  RTX_4090:
    memory_gb: 24
    hourly_rate: 0.44
    default_provider: runpod
    minimum_billing_hours: 1
    setup_overhead_hours: 0.1
`

func testSelector(t *testing.T, fastUnitRate float64) *Selector {
	t.Helper()
	cat, err := catalog.Parse([]byte(testCatalogYAML))
	require.NoError(t, err)
	est, err := pricing.NewEstimator(cat, pricing.Rates{
		FastUnitRate:          fastUnitRate,
		FastRealtimeFactor:    2,
		ComputeRealtimeFactor: 6,
	}, "RTX_4090")
	require.NoError(t, err)
	return New(60, est)
}

func req(duration float64, priority model.Priority) model.Request {
	return model.Request{
		DurationSeconds: duration,
		Method:          model.MethodAuto,
		Priority:        priority,
	}
}

func TestSelectForcedMethodWins(t *testing.T) {
	s := testSelector(t, 0.02)

	r := req(10, model.PriorityUrgent)
	r.Method = model.MethodRentedCompute
	assert.Equal(t, model.MethodRentedCompute, s.Select(r))

	r.Method = model.MethodFastService
	r.DurationSeconds = 900 // forced even where structurally questionable
	assert.Equal(t, model.MethodFastService, s.Select(r))
}

func TestSelectUrgent(t *testing.T) {
	s := testSelector(t, 0.02)

	// Short urgent requests always take the fast service.
	for _, d := range []float64{1, 30, 60} {
		assert.Equal(t, model.MethodFastService, s.Select(req(d, model.PriorityUrgent)), "duration %v", d)
	}
	// Medium and long urgent requests go to rented compute.
	for _, d := range []float64{61, 300, 900} {
		assert.Equal(t, model.MethodRentedCompute, s.Select(req(d, model.PriorityUrgent)), "duration %v", d)
	}
}

func TestSelectNormal(t *testing.T) {
	s := testSelector(t, 0.02)

	assert.Equal(t, model.MethodFastService, s.Select(req(30, model.PriorityNormal)))
	assert.Equal(t, model.MethodFastService, s.Select(req(60, model.PriorityNormal)))

	// Everything above the fast-service ceiling must land on rented
	// compute; the fast service would reject it outright.
	for _, d := range []float64{61, 100, 200, 300, 301, 900} {
		assert.Equal(t, model.MethodRentedCompute, s.Select(req(d, model.PriorityNormal)), "duration %v", d)
	}

	// Short requests may opt into rented compute via metadata.
	r := req(30, model.PriorityNormal)
	r.Metadata = map[string]string{"prefer_compute": "true"}
	assert.Equal(t, model.MethodRentedCompute, s.Select(r))
}

func TestSelectBudgetConscious(t *testing.T) {
	// Cheap fast rate: 30s × 0.002 = 0.06 < 0.44 floor → fast wins.
	cheap := testSelector(t, 0.002)
	assert.Equal(t, model.MethodFastService, cheap.Select(req(30, model.PriorityBudget)))

	// Expensive fast rate: 60s × 1.0 = 60 > 0.44 floor → rented wins.
	pricey := testSelector(t, 1.0)
	assert.Equal(t, model.MethodRentedCompute, pricey.Select(req(60, model.PriorityBudget)))

	// Above the fast ceiling there is only one valid method.
	assert.Equal(t, model.MethodRentedCompute, cheap.Select(req(120, model.PriorityBudget)))
}

func TestSelectBudgetTieFavorsFast(t *testing.T) {
	// Pick a rate where fast cost equals the rented floor exactly:
	// 44s × 0.01 = 0.44 = 1h × 0.44.
	s := testSelector(t, 0.01)
	assert.Equal(t, model.MethodFastService, s.Select(req(44, model.PriorityBudget)))
}
