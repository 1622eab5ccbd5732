// Package taxonomy is the single authoritative classification of action
// types. Every component that needs to know whether an action is read-only,
// safe, deterministic, innate or critic-skippable consults this package; no
// caller defines a parallel category set.
package taxonomy

import "fmt"

// Innate primitive action types. These are the always-available, non-sandboxed
// handlers whose outcomes procedural memory tracks.
const (
	ActionRecall       = "recall"
	ActionRemember     = "remember"
	ActionUpdateMemory = "update_memory"
	ActionForget       = "forget"
)

// Built-in non-primitive action types.
const (
	ActionGetTime   = "get_time"
	ActionListTools = "list_tools"
	ActionWebSearch = "web_search"
)

// Static tables. These are configuration compiled into the binary, immutable
// after New validates them.
var (
	universe = []string{
		ActionRecall, ActionRemember, ActionUpdateMemory, ActionForget,
		ActionGetTime, ActionListTools, ActionWebSearch,
	}

	innateSet = []string{
		ActionRecall, ActionRemember, ActionUpdateMemory, ActionForget,
	}

	readOnlySet = []string{
		ActionRecall, ActionGetTime, ActionListTools, ActionWebSearch,
	}

	deterministicSet = []string{
		ActionListTools,
	}

	// safeSet is exempt from the critic entirely: no side effects, no
	// network, nothing to veto.
	safeSet = []string{
		ActionRecall, ActionGetTime, ActionListTools,
	}

	// criticSkippableSet must be a subset of readOnlySet; the skip is a
	// latency optimization, never a correctness requirement.
	criticSkippableSet = []string{
		ActionRecall, ActionListTools, ActionWebSearch,
	}

	// fatigueOverrides is sparse; absent types cost 1.0.
	fatigueOverrides = map[string]float64{
		ActionWebSearch:    1.8,
		ActionUpdateMemory: 1.3,
		ActionForget:       0.8,
	}
)

// Taxonomy answers membership queries over the static action classification.
type Taxonomy struct {
	known           map[string]struct{}
	innate          map[string]struct{}
	readOnly        map[string]struct{}
	deterministic   map[string]struct{}
	safe            map[string]struct{}
	criticSkippable map[string]struct{}
	fatigue         map[string]float64
}

// New builds the taxonomy from the compiled-in tables and verifies its
// invariants: every set is a subset of the known universe, and every
// critic-skippable type is read-only.
func New() (*Taxonomy, error) {
	t := &Taxonomy{
		known:           toSet(universe),
		innate:          toSet(innateSet),
		readOnly:        toSet(readOnlySet),
		deterministic:   toSet(deterministicSet),
		safe:            toSet(safeSet),
		criticSkippable: toSet(criticSkippableSet),
		fatigue:         fatigueOverrides,
	}

	for name, set := range map[string]map[string]struct{}{
		"innate":           t.innate,
		"read_only":        t.readOnly,
		"deterministic":    t.deterministic,
		"safe":             t.safe,
		"critic_skippable": t.criticSkippable,
	} {
		for at := range set {
			if _, ok := t.known[at]; !ok {
				return nil, fmt.Errorf("taxonomy: %s set contains unknown action type %q", name, at)
			}
		}
	}
	for at := range t.fatigue {
		if _, ok := t.known[at]; !ok {
			return nil, fmt.Errorf("taxonomy: fatigue override for unknown action type %q", at)
		}
	}
	for at := range t.criticSkippable {
		if _, ok := t.readOnly[at]; !ok {
			return nil, fmt.Errorf("taxonomy: critic-skippable type %q is not read-only", at)
		}
	}
	return t, nil
}

// Known reports whether the action type appears in the static universe.
func (t *Taxonomy) Known(actionType string) bool {
	_, ok := t.known[actionType]
	return ok
}

// IsInnate reports whether the type is one of the core primitives tracked by
// procedural memory.
func (t *Taxonomy) IsInnate(actionType string) bool {
	_, ok := t.innate[actionType]
	return ok
}

// IsReadOnly reports whether the action has no side effects.
func (t *Taxonomy) IsReadOnly(actionType string) bool {
	_, ok := t.readOnly[actionType]
	return ok
}

// IsDeterministic reports whether the action's output depends only on its
// parameters.
func (t *Taxonomy) IsDeterministic(actionType string) bool {
	_, ok := t.deterministic[actionType]
	return ok
}

// IsSafe reports whether the action is exempt from the critic.
func (t *Taxonomy) IsSafe(actionType string) bool {
	_, ok := t.safe[actionType]
	return ok
}

// CriticSkippable reports whether the critic may be skipped for this type
// when dispatcher confidence clears the configured threshold.
func (t *Taxonomy) CriticSkippable(actionType string) bool {
	_, ok := t.criticSkippable[actionType]
	return ok
}

// FatigueCost returns the fatigue multiplier for the type, 1.0 when no
// override exists.
func (t *Taxonomy) FatigueCost(actionType string) float64 {
	if c, ok := t.fatigue[actionType]; ok {
		return c
	}
	return 1.0
}

// Primitives returns the innate primitive types in a stable order.
func (t *Taxonomy) Primitives() []string {
	out := make([]string, len(innateSet))
	copy(out, innateSet)
	return out
}

func toSet(items []string) map[string]struct{} {
	s := make(map[string]struct{}, len(items))
	for _, it := range items {
		s[it] = struct{}{}
	}
	return s
}
