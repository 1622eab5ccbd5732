package taxonomy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_InvariantsHold(t *testing.T) {
	tax, err := New()
	require.NoError(t, err)

	// Every critic-skippable type must also be read-only.
	for at := range tax.criticSkippable {
		assert.True(t, tax.IsReadOnly(at), "critic-skippable type %q must be read-only", at)
	}

	// Every classified type must be part of the known universe.
	for _, set := range []map[string]struct{}{tax.innate, tax.readOnly, tax.deterministic, tax.safe, tax.criticSkippable} {
		for at := range set {
			assert.True(t, tax.Known(at), "classified type %q must be known", at)
		}
	}
}

func TestMembershipQueries(t *testing.T) {
	tax, err := New()
	require.NoError(t, err)

	assert.True(t, tax.IsInnate(ActionRecall))
	assert.True(t, tax.IsInnate(ActionForget))
	assert.False(t, tax.IsInnate(ActionWebSearch), "web_search is a tool, not a primitive")

	assert.True(t, tax.IsReadOnly(ActionRecall))
	assert.True(t, tax.IsReadOnly(ActionWebSearch))
	assert.False(t, tax.IsReadOnly(ActionRemember))

	assert.True(t, tax.IsSafe(ActionGetTime))
	assert.False(t, tax.IsSafe(ActionWebSearch), "network-touching actions are not safety-exempt")

	assert.True(t, tax.CriticSkippable(ActionRecall))
	assert.True(t, tax.CriticSkippable(ActionWebSearch))
	assert.False(t, tax.CriticSkippable(ActionRemember))

	assert.False(t, tax.Known("totally_unknown_type"))
}

func TestFatigueCost(t *testing.T) {
	tax, err := New()
	require.NoError(t, err)

	assert.InDelta(t, 1.8, tax.FatigueCost(ActionWebSearch), 1e-9)
	assert.InDelta(t, 1.0, tax.FatigueCost(ActionRecall), 1e-9, "no override defaults to 1.0")
	assert.InDelta(t, 1.0, tax.FatigueCost("totally_unknown_type"), 1e-9)
}

func TestPrimitives_StableAndOwned(t *testing.T) {
	tax, err := New()
	require.NoError(t, err)

	p1 := tax.Primitives()
	p2 := tax.Primitives()
	require.Equal(t, p1, p2)

	// Mutating the returned slice must not leak into the taxonomy.
	p1[0] = "mutated"
	assert.Equal(t, ActionRecall, tax.Primitives()[0])
}
