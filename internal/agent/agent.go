// Package agent is the driving caller of the action-execution engine: it
// turns one reasoning cycle into bounded rounds of dispatched actions, with
// the cost model gating each round and the feedback path closing the loop
// afterwards.
package agent

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/praxis-sh/praxis/api/schemas"
	"github.com/praxis-sh/praxis/internal/config"
	"github.com/praxis-sh/praxis/internal/costmodel"
	"github.com/praxis-sh/praxis/internal/loop"
	"github.com/praxis-sh/praxis/internal/taxonomy"
)

// InferenceSubmitter is the background queue's producer contract: nil means
// the caller must degrade gracefully.
type InferenceSubmitter interface {
	Submit(ctx context.Context, requesterTag, systemPrompt, userMessage string) *schemas.Completion
}

// ActionDispatcher executes one action and always returns a result.
type ActionDispatcher interface {
	Dispatch(ctx context.Context, req schemas.ActionRequest) schemas.ActionResult
}

// FeedbackSink records batch outcomes after the loop completes.
type FeedbackSink interface {
	ProcessBatch(ctx context.Context, results []schemas.ActionResult, contextTag string) error
}

const systemPrompt = `You are the action planner of a personal cognitive agent.
Decide which actions, if any, to take next. Emit one directive per line:

ACTION: action_type {"param": "value"}

Emit no directives when the goal is satisfied; answer in plain text instead.`

// CycleReport summarizes one completed reasoning cycle.
type CycleReport struct {
	CycleID     string
	Rounds      int
	EffortSpent float64
	FinalText   string
	Results     []schemas.ActionResult
}

// Agent composes the loop, dispatcher, cost model and inference queue.
type Agent struct {
	inference InferenceSubmitter
	dispatch  ActionDispatcher
	cost      *costmodel.Model
	tax       *taxonomy.Taxonomy
	feedback  FeedbackSink
	loopCfg   config.LoopConfig
	budget    float64
	logger    *zap.Logger
}

// New wires an agent. feedback may be nil.
func New(
	inference InferenceSubmitter,
	dispatch ActionDispatcher,
	cost *costmodel.Model,
	tax *taxonomy.Taxonomy,
	feedback FeedbackSink,
	loopCfg config.LoopConfig,
	effortBudget float64,
	logger *zap.Logger,
) *Agent {
	return &Agent{
		inference: inference,
		dispatch:  dispatch,
		cost:      cost,
		tax:       tax,
		feedback:  feedback,
		loopCfg:   loopCfg,
		budget:    effortBudget,
		logger:    logger.Named("agent"),
	}
}

// RunCycle executes one bounded reasoning cycle against a goal. Every request
// gets its own loop state; nothing here is shared across concurrent cycles.
func (a *Agent) RunCycle(ctx context.Context, goal string) (*CycleReport, error) {
	if goal == "" {
		return nil, fmt.Errorf("goal cannot be empty")
	}

	cycleID := uuid.NewString()
	logger := a.logger.With(zap.String("cycle_id", cycleID))
	state := loop.NewState(a.loopCfg)

	report := &CycleReport{CycleID: cycleID}

	for state.CanContinue() {
		round := state.RoundsTaken()
		roundCost := a.cost.IterationCost(round)
		if report.EffortSpent+roundCost > a.budget {
			logger.Info("Effort budget exhausted before round",
				zap.Int("round", round),
				zap.Float64("spent", report.EffortSpent),
				zap.Float64("budget", a.budget))
			break
		}

		completion := a.inference.Submit(ctx, "agent:"+cycleID, systemPrompt, goal+"\n\n"+state.HistoryContext())
		if completion == nil {
			// Queue full or inference unavailable: stop the cycle with
			// whatever has been accomplished so far.
			logger.Warn("Inference unavailable, ending cycle early", zap.Int("round", round))
			break
		}

		actions, prose := ParseActions(completion.Text)
		report.FinalText = prose
		if len(actions) == 0 {
			logger.Debug("No actions requested, cycle complete", zap.Int("round", round))
			break
		}

		// Fatigue multipliers make costly action kinds eat the budget faster
		// than their base batch price alone.
		report.EffortSpent += roundCost + a.cost.FatigueWeightedBatchCost(a.tax, actions)

		batch := make([]schemas.ActionResult, 0, len(actions))
		for _, action := range actions {
			batch = append(batch, a.dispatch.Dispatch(ctx, action))
		}
		state.AppendResults(batch)

		logger.Debug("Round complete",
			zap.Int("round", round),
			zap.Int("batch_size", len(batch)),
			zap.Float64("cumulative_elapsed", state.CumulativeElapsed()))
	}

	report.Rounds = state.RoundsTaken()
	report.Results = state.History()

	if a.feedback != nil && len(report.Results) > 0 {
		// The request is done; feedback must not be cancelled with it.
		if err := a.feedback.ProcessBatch(context.WithoutCancel(ctx), report.Results, "cycle:"+cycleID); err != nil {
			logger.Warn("Feedback recording failed", zap.Error(err))
		}
	}
	return report, nil
}
