package costmodel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/praxis-sh/praxis/api/schemas"
	"github.com/praxis-sh/praxis/internal/config"
	"github.com/praxis-sh/praxis/internal/taxonomy"
)

func testCostConfig() config.CostConfig {
	return config.CostConfig{
		IterationBase:     1.0,
		GrowthFactor:      1.5,
		BatchScale:        0.2,
		DefaultComplexity: 1.5,
	}
}

type stubWeights struct {
	weights map[string]float64
	err     error
}

func (s *stubWeights) LoadWeights(ctx context.Context) (map[string]float64, error) {
	return s.weights, s.err
}

func TestIterationCost_ExponentialGrowthLaw(t *testing.T) {
	m := New(context.Background(), testCostConfig(), nil, zaptest.NewLogger(t))

	assert.InDelta(t, 1.0, m.IterationCost(0), 1e-9)
	for n := 0; n < 10; n++ {
		ratio := m.IterationCost(n+1) / m.IterationCost(n)
		assert.InDelta(t, 1.5, ratio, 1e-9, "growth law must hold exactly at n=%d", n)
	}
}

func TestActionComplexity_FallbackChain(t *testing.T) {
	t.Run("static table without live weights", func(t *testing.T) {
		m := New(context.Background(), testCostConfig(), nil, zaptest.NewLogger(t))
		assert.InDelta(t, 2.0, m.ActionComplexity("recall"), 1e-9)
		assert.InDelta(t, 1.5, m.ActionComplexity("totally_unknown_type"), 1e-9)
	})

	t.Run("live weight wins over static entry", func(t *testing.T) {
		src := &stubWeights{weights: map[string]float64{"recall": 1.1}}
		m := New(context.Background(), testCostConfig(), src, zaptest.NewLogger(t))
		assert.InDelta(t, 1.1, m.ActionComplexity("recall"), 1e-9)
		// Types the live table has not observed still use the static table.
		assert.InDelta(t, 2.2, m.ActionComplexity("web_search"), 1e-9)
	})

	t.Run("weight source failure degrades to static table", func(t *testing.T) {
		src := &stubWeights{err: errors.New("db unavailable")}
		m := New(context.Background(), testCostConfig(), src, zaptest.NewLogger(t))
		assert.InDelta(t, 2.0, m.ActionComplexity("recall"), 1e-9)
	})
}

func TestBatchCost(t *testing.T) {
	m := New(context.Background(), testCostConfig(), nil, zaptest.NewLogger(t))

	batch := []schemas.ActionRequest{
		{Type: "recall"},               // 2.0
		{Type: "get_time"},             // 1.0
		{Type: "totally_unknown_type"}, // 1.5
	}
	assert.InDelta(t, (2.0+1.0+1.5)*0.2, m.BatchCost(batch), 1e-9)
	assert.Zero(t, m.BatchCost(nil))
}

func TestFatigueWeightedBatchCost(t *testing.T) {
	m := New(context.Background(), testCostConfig(), nil, zaptest.NewLogger(t))
	tax, err := taxonomy.New()
	require.NoError(t, err)

	batch := []schemas.ActionRequest{
		{Type: "web_search"}, // 2.2 * 0.2 * 1.8 fatigue
		{Type: "get_time"},   // 1.0 * 0.2 * 1.0 (no override)
	}
	assert.InDelta(t, 2.2*0.2*1.8+1.0*0.2, m.FatigueWeightedBatchCost(tax, batch), 1e-9)
	// Without overrides the fatigue-weighted price collapses to the base one.
	plain := []schemas.ActionRequest{{Type: "recall"}, {Type: "get_time"}}
	assert.InDelta(t, m.BatchCost(plain), m.FatigueWeightedBatchCost(tax, plain), 1e-9)
}

func TestMapEffort(t *testing.T) {
	m := New(context.Background(), testCostConfig(), nil, zaptest.NewLogger(t))

	cases := map[string]float64{
		"low":        0.8,
		"medium":     1.0,
		"high":       1.2,
		"very_high":  1.5,
		"":           1.0,
		"ridiculous": 1.0,
	}
	for label, want := range cases {
		assert.InDelta(t, want, m.MapEffort(label), 1e-9, "label %q", label)
	}
}
