// Package feedback closes the loop between execution outcomes and future
// scheduling: innate primitive outcomes flow into the live weight table the
// cost model reads, and novel tool outputs are queued for asynchronous
// reflection. Everything here is cheap and bounded; a feedback failure never
// fails the request that produced it.
package feedback

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/praxis-sh/praxis/api/schemas"
	"github.com/praxis-sh/praxis/internal/taxonomy"
)

// OutcomeStore is the slice of the weight store the recorder writes to.
type OutcomeStore interface {
	RecordOutcome(ctx context.Context, actionType string, success bool, utility float64, contextTag string) error
}

// Recorder runs after a batch of actions completes.
type Recorder struct {
	store  OutcomeStore
	gate   *NoveltyGate
	tax    *taxonomy.Taxonomy
	logger *zap.Logger
}

// NewRecorder wires the post-batch feedback path. gate may be nil when no
// reflection queue is deployed.
func NewRecorder(store OutcomeStore, gate *NoveltyGate, tax *taxonomy.Taxonomy, logger *zap.Logger) *Recorder {
	return &Recorder{
		store:  store,
		gate:   gate,
		tax:    tax,
		logger: logger.Named("feedback"),
	}
}

// ProcessBatch records procedural-memory outcomes for the innate primitives
// and offers every result to the novelty gate. Dynamic tools record their own
// outcomes independently, so only primitives hit the weight table.
func (r *Recorder) ProcessBatch(ctx context.Context, results []schemas.ActionResult, contextTag string) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, res := range results {
		res := res
		if r.tax.IsInnate(res.ActionType) && r.store != nil {
			g.Go(func() error {
				success, utility := scoreOutcome(res)
				if err := r.store.RecordOutcome(gctx, res.ActionType, success, utility, contextTag); err != nil {
					r.logger.Warn("Failed to record action outcome",
						zap.String("action_type", res.ActionType), zap.Error(err))
				}
				return nil
			})
		}
		if r.gate != nil {
			r.gate.Consider(ctx, res)
		}
	}
	return g.Wait()
}

// scoreOutcome computes the scalar utility of one result. Per-type: a
// successful non-empty lookup scores high, a successful no-op scores near
// zero, failures score negative, timeouts worse.
func scoreOutcome(res schemas.ActionResult) (bool, float64) {
	switch res.Status {
	case schemas.StatusTimeout:
		return false, -0.7
	case schemas.StatusError:
		return false, -0.5
	}

	switch res.ActionType {
	case taxonomy.ActionRecall:
		if isEmptyLookup(res.Result) {
			return true, 0.05
		}
		return true, 0.8
	case taxonomy.ActionRemember:
		return true, 0.6
	case taxonomy.ActionUpdateMemory:
		return true, 0.5
	case taxonomy.ActionForget:
		return true, 0.4
	default:
		return true, 0.3
	}
}

func isEmptyLookup(result string) bool {
	trimmed := strings.TrimSpace(result)
	return trimmed == "" || strings.HasPrefix(strings.ToLower(trimmed), "no memories")
}
