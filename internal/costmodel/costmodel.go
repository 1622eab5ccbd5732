// Package costmodel prices iterations and action batches so the action loop
// can decide whether another round fits the request's effort budget. Pricing
// prefers live per-type weights learned from past outcomes and falls back to
// a static table.
package costmodel

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/praxis-sh/praxis/api/schemas"
	"github.com/praxis-sh/praxis/internal/config"
	"github.com/praxis-sh/praxis/internal/taxonomy"
)

// WeightSource supplies the live outcome-weight table written by the feedback
// path. Implementations are expected to be cheap enough to call once per
// model construction.
type WeightSource interface {
	LoadWeights(ctx context.Context) (map[string]float64, error)
}

// staticComplexity holds the compiled-in relative reasoning cost per action
// type, values in [1.0, 2.5].
var staticComplexity = map[string]float64{
	taxonomy.ActionRecall:       2.0,
	taxonomy.ActionRemember:     1.6,
	taxonomy.ActionUpdateMemory: 1.8,
	taxonomy.ActionForget:       1.2,
	taxonomy.ActionGetTime:      1.0,
	taxonomy.ActionListTools:    1.0,
	taxonomy.ActionWebSearch:    2.2,
}

// effortLabels maps a coarse effort label to a budget multiplier. Unrecognized
// labels resolve to 1.0; bad input never raises.
var effortLabels = map[string]float64{
	"low":       0.8,
	"medium":    1.0,
	"high":      1.2,
	"very_high": 1.5,
}

// Model is constructed once per request. The live weight snapshot is loaded
// at construction and deliberately never refreshed mid-request: staleness
// within one request's lifetime is acceptable.
type Model struct {
	cfg    config.CostConfig
	live   map[string]float64
	logger *zap.Logger
}

// New builds a cost model, snapshotting live weights from src. A nil src or a
// load failure degrades to the static table with a warning; pricing must
// never block a request on the weight store.
func New(ctx context.Context, cfg config.CostConfig, src WeightSource, logger *zap.Logger) *Model {
	m := &Model{
		cfg:    cfg,
		logger: logger.Named("costmodel"),
	}
	if src == nil {
		return m
	}
	weights, err := src.LoadWeights(ctx)
	if err != nil {
		m.logger.Warn("Live weight load failed, falling back to static complexity table", zap.Error(err))
		return m
	}
	m.live = weights
	return m
}

// IterationCost prices round n of a reasoning cycle: base * growth^n. Later
// rounds are intrinsically more expensive, discouraging runaway loops.
func (m *Model) IterationCost(n int) float64 {
	return m.cfg.IterationBase * math.Pow(m.cfg.GrowthFactor, float64(n))
}

// ActionComplexity resolves the complexity multiplier for an action type:
// live weight if observed, else static table, else the configured default for
// totally unknown types.
func (m *Model) ActionComplexity(actionType string) float64 {
	if w, ok := m.live[actionType]; ok {
		return w
	}
	if c, ok := staticComplexity[actionType]; ok {
		return c
	}
	return m.cfg.DefaultComplexity
}

// BatchCost prices a batch of requested actions in iteration-cost units.
func (m *Model) BatchCost(actions []schemas.ActionRequest) float64 {
	var sum float64
	for _, a := range actions {
		sum += m.ActionComplexity(a.Type) * m.cfg.BatchScale
	}
	return sum
}

// FatigueWeightedBatchCost prices a batch for effort-budget accounting:
// BatchCost with each action's fatigue multiplier applied on top.
func (m *Model) FatigueWeightedBatchCost(tax *taxonomy.Taxonomy, actions []schemas.ActionRequest) float64 {
	var sum float64
	for _, a := range actions {
		sum += m.ActionComplexity(a.Type) * m.cfg.BatchScale * tax.FatigueCost(a.Type)
	}
	return sum
}

// MapEffort converts a coarse effort label into a budget multiplier.
func (m *Model) MapEffort(label string) float64 {
	if f, ok := effortLabels[label]; ok {
		return f
	}
	return 1.0
}
