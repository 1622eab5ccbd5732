package schemas

import (
	"context"
	"time"
)

// GenerationRequest carries the two prompt channels of a single model call.
type GenerationRequest struct {
	SystemPrompt string  `json:"system_prompt"`
	UserPrompt   string  `json:"user_prompt"`
	Temperature  float64 `json:"temperature,omitempty"`
}

// Completion is a provider-agnostic model response.
type Completion struct {
	Text         string `json:"text"`
	Model        string `json:"model"`
	Provider     string `json:"provider"`
	TokensInput  int    `json:"tokens_input"`
	TokensOutput int    `json:"tokens_output"`
	LatencyMS    int64  `json:"latency_ms"`
}

// LLMClient is the contract for the scarce external inference resource. The
// call is opaque to this system: prompts in, completion or failure out.
type LLMClient interface {
	GenerateResponse(ctx context.Context, req GenerationRequest) (*Completion, error)
}

// InferenceJob is one queued background model call. The job is owned by the
// single consuming worker until a matching InferenceResult is produced or the
// submitter abandons its wait; RetryCount is informational only.
type InferenceJob struct {
	JobID        string    `json:"job_id"`
	RequesterTag string    `json:"requester_tag"`
	SystemPrompt string    `json:"system_prompt"`
	UserMessage  string    `json:"user_message"`
	EnqueuedAt   time.Time `json:"enqueued_at"`
	RetryCount   int       `json:"retry_count"`
}

// InferenceResult is the worker's reply to a single InferenceJob, delivered
// on a per-job result key so no submitter ever observes another's result.
type InferenceResult struct {
	JobID      string      `json:"job_id"`
	Completion *Completion `json:"completion,omitempty"`
	Err        string      `json:"error,omitempty"`
}
