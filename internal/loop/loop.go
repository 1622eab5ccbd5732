// Package loop owns the per-request action budget: how many rounds a single
// request may take and how much wall clock it may burn. One State per
// request; never shared across requests.
package loop

import (
	"fmt"
	"strings"

	"github.com/praxis-sh/praxis/api/schemas"
	"github.com/praxis-sh/praxis/internal/config"
)

// State is the budget state machine for one request. It transitions from
// active to exhausted when either the iteration count or the cumulative
// wall-clock limit is reached; exhaustion is terminal.
type State struct {
	iterationsRemaining int
	maxIterations       int
	cumulativeElapsed   float64 // seconds
	cumulativeTimeout   float64 // seconds
	historyEntryChars   int
	history             []schemas.ActionResult
}

// NewState seeds a fresh budget from configuration.
func NewState(cfg config.LoopConfig) *State {
	entryChars := cfg.HistoryEntryChars
	if entryChars <= 0 {
		entryChars = 240
	}
	return &State{
		iterationsRemaining: cfg.MaxIterations,
		maxIterations:       cfg.MaxIterations,
		cumulativeTimeout:   cfg.CumulativeTimeout.Seconds(),
		historyEntryChars:   entryChars,
	}
}

// CanContinue reports whether the loop may start another round. Once false it
// stays false for the lifetime of this State.
func (s *State) CanContinue() bool {
	return s.iterationsRemaining > 0 && s.cumulativeElapsed < s.cumulativeTimeout
}

// AppendResults records one completed round: the batch is appended to history
// in arrival order, elapsed time grows by the sum of the batch's execution
// times, and exactly one iteration is consumed regardless of batch size.
func (s *State) AppendResults(batch []schemas.ActionResult) {
	s.history = append(s.history, batch...)
	for _, r := range batch {
		s.cumulativeElapsed += r.ExecutionSeconds
	}
	if s.iterationsRemaining > 0 {
		s.iterationsRemaining--
	}
}

// IterationsRemaining returns the rounds left in the budget.
func (s *State) IterationsRemaining() int {
	return s.iterationsRemaining
}

// RoundsTaken returns how many rounds have been recorded so far.
func (s *State) RoundsTaken() int {
	return s.maxIterations - s.iterationsRemaining
}

// CumulativeElapsed returns the summed execution seconds recorded so far.
func (s *State) CumulativeElapsed() float64 {
	return s.cumulativeElapsed
}

// History returns a copy of the ordered result history.
func (s *State) History() []schemas.ActionResult {
	out := make([]schemas.ActionResult, len(s.history))
	copy(out, s.history)
	return out
}

// HistoryContext renders the ordered history into a bounded textual summary
// for re-injection into the next reasoning call. Output is deterministic for
// an unmutated State.
func (s *State) HistoryContext() string {
	if len(s.history) == 0 {
		return "No actions taken yet."
	}
	var b strings.Builder
	b.WriteString("Previous actions this cycle:\n")
	for i, r := range s.history {
		fmt.Fprintf(&b, "%d. %s [%s] %s\n", i+1, r.ActionType, r.Status, truncate(r.Result, s.historyEntryChars))
	}
	return b.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
