package loop

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praxis-sh/praxis/api/schemas"
	"github.com/praxis-sh/praxis/internal/config"
)

func testLoopConfig() config.LoopConfig {
	return config.LoopConfig{
		MaxIterations:     3,
		CumulativeTimeout: 60 * time.Second,
		PerActionTimeout:  10 * time.Second,
		HistoryEntryChars: 240,
	}
}

func result(actionType string, status schemas.ActionStatus, out string, secs float64) schemas.ActionResult {
	return schemas.ActionResult{ActionType: actionType, Status: status, Result: out, ExecutionSeconds: secs}
}

func TestIterationAccounting(t *testing.T) {
	s := NewState(testLoopConfig())
	require.True(t, s.CanContinue())

	for k := 1; k <= 3; k++ {
		s.AppendResults([]schemas.ActionResult{result("recall", schemas.StatusSuccess, "ok", 0.1)})
		assert.Equal(t, 3-k, s.IterationsRemaining(), "after %d rounds", k)
	}

	assert.False(t, s.CanContinue(), "budget exhausted after max_iterations rounds")
	assert.InDelta(t, 0.3, s.CumulativeElapsed(), 1e-9)

	// Exhaustion is terminal and iterations never go negative.
	s.AppendResults([]schemas.ActionResult{result("recall", schemas.StatusSuccess, "ok", 0.1)})
	assert.Equal(t, 0, s.IterationsRemaining())
	assert.False(t, s.CanContinue())
}

func TestOneRoundConsumesOneIteration_RegardlessOfBatchSize(t *testing.T) {
	s := NewState(testLoopConfig())

	batch := []schemas.ActionResult{
		result("recall", schemas.StatusSuccess, "a", 0.2),
		result("web_search", schemas.StatusError, "b", 0.3),
		result("get_time", schemas.StatusSuccess, "c", 0.1),
	}
	s.AppendResults(batch)

	assert.Equal(t, 2, s.IterationsRemaining())
	assert.InDelta(t, 0.6, s.CumulativeElapsed(), 1e-9)
	assert.Len(t, s.History(), 3)
}

func TestCumulativeTimeoutExhaustsBudget(t *testing.T) {
	cfg := testLoopConfig()
	cfg.CumulativeTimeout = 1 * time.Second
	s := NewState(cfg)

	s.AppendResults([]schemas.ActionResult{result("web_search", schemas.StatusSuccess, "slow", 1.5)})
	assert.Equal(t, 2, s.IterationsRemaining(), "iterations remain but time is spent")
	assert.False(t, s.CanContinue(), "cumulative timeout exceeded")
}

func TestHistoryContext_DeterministicAndOrdered(t *testing.T) {
	s := NewState(testLoopConfig())
	assert.Equal(t, "No actions taken yet.", s.HistoryContext())

	s.AppendResults([]schemas.ActionResult{
		result("recall", schemas.StatusSuccess, "found three notes", 0.05),
		result("web_search", schemas.StatusTimeout, "", 10.0),
	})

	first := s.HistoryContext()
	second := s.HistoryContext()
	assert.Equal(t, first, second, "idempotent on an unmutated state")

	idx1 := strings.Index(first, "recall")
	idx2 := strings.Index(first, "web_search")
	require.GreaterOrEqual(t, idx1, 0)
	require.Greater(t, idx2, idx1, "history order preserved")
	assert.Contains(t, first, string(schemas.StatusTimeout))
}

func TestHistoryContext_TruncatesLongResults(t *testing.T) {
	cfg := testLoopConfig()
	cfg.HistoryEntryChars = 16
	s := NewState(cfg)

	long := strings.Repeat("x", 500)
	s.AppendResults([]schemas.ActionResult{result("web_search", schemas.StatusSuccess, long, 0.5)})

	ctx := s.HistoryContext()
	assert.Contains(t, ctx, strings.Repeat("x", 16)+"...")
	assert.NotContains(t, ctx, strings.Repeat("x", 17))
}

func TestHistoryReturnsCopy(t *testing.T) {
	s := NewState(testLoopConfig())
	s.AppendResults([]schemas.ActionResult{result("recall", schemas.StatusSuccess, "ok", 0.1)})

	h := s.History()
	h[0].Result = "mutated"
	assert.Equal(t, "ok", s.History()[0].Result)
}
