package schemas

// ActionStatus classifies the terminal outcome of a dispatched action.
type ActionStatus string

const (
	StatusSuccess ActionStatus = "success"
	StatusError   ActionStatus = "error"
	StatusTimeout ActionStatus = "timeout"
)

// ActionRequest is a single typed, parameterized request for an effect,
// produced by the reasoning layer. It is immutable once handed to the
// dispatcher.
type ActionRequest struct {
	Type   string         `json:"type"`
	Params map[string]any `json:"params,omitempty"`
}

// ActionResult records the outcome of exactly one ActionRequest. Results are
// created by the dispatcher and appended, never mutated, to the owning loop's
// history.
type ActionResult struct {
	ActionType       string       `json:"action_type"`
	Status           ActionStatus `json:"status"`
	Result           string       `json:"result"`
	ExecutionSeconds float64      `json:"execution_time_seconds"`
}

// Succeeded reports whether the action completed without error or timeout.
func (r ActionResult) Succeeded() bool {
	return r.Status == StatusSuccess
}
