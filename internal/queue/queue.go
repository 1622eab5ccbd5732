// Package queue serializes background calls to the scarce external inference
// resource. Many uncoordinated producers submit jobs onto a durable FIFO; a
// single consuming worker drains it, so downstream calls are fully serialized
// by construction. This trades latency for protection against thundering
// herds, deliberately: low-priority background work takes the queue, the
// interactive path does not go through here at all.
package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/praxis-sh/praxis/api/schemas"
	"github.com/praxis-sh/praxis/internal/config"
	"github.com/praxis-sh/praxis/internal/observability"
)

var jsonFast = jsoniter.ConfigCompatibleWithStandardLibrary

// Queue is the producer side: submit a job, block for its result.
type Queue struct {
	transport Transport
	cfg       config.QueueConfig
	logger    *zap.Logger
}

// New builds the producer-side queue client.
func New(transport Transport, cfg config.QueueConfig, logger *zap.Logger) *Queue {
	return &Queue{
		transport: transport,
		cfg:       cfg,
		logger:    logger.Named("queue"),
	}
}

// Submit enqueues one inference job and blocks for its result. It returns nil
// in every failure mode — queue full, enqueue failure, wait timeout, worker
// error — and callers must treat nil as "try later" and degrade gracefully.
// Submit never panics and never blocks past the configured wait.
func (q *Queue) Submit(ctx context.Context, requesterTag, systemPrompt, userMessage string) *schemas.Completion {
	depth, err := q.transport.Len(ctx, q.cfg.JobList)
	if err != nil {
		q.logger.Warn("Queue depth check failed, rejecting submission", zap.Error(err))
		return nil
	}
	observability.QueueDepth.Set(float64(depth))
	if depth >= q.cfg.MaxDepth {
		observability.QueueRejections.Inc()
		q.logger.Warn("Queue at max depth, rejecting submission",
			zap.Int64("depth", depth),
			zap.Int64("max_depth", q.cfg.MaxDepth),
			zap.String("requester", requesterTag))
		return nil
	}

	job := schemas.InferenceJob{
		JobID:        uuid.NewString(),
		RequesterTag: requesterTag,
		SystemPrompt: systemPrompt,
		UserMessage:  userMessage,
		EnqueuedAt:   time.Now().UTC(),
	}
	payload, err := jsonFast.Marshal(job)
	if err != nil {
		q.logger.Error("Failed to marshal inference job", zap.Error(err))
		return nil
	}
	if err := q.transport.PushTail(ctx, q.cfg.JobList, payload); err != nil {
		q.logger.Warn("Failed to enqueue inference job", zap.Error(err), zap.String("job_id", job.JobID))
		return nil
	}

	// Block on the per-job result key. Result delivery is addressed by job
	// id, never by position: no producer can observe another's result.
	raw, err := q.transport.PopHead(ctx, q.resultKey(job.JobID), q.cfg.SubmitWait)
	if err != nil {
		q.logger.Warn("Result wait failed", zap.Error(err), zap.String("job_id", job.JobID))
		return nil
	}
	if raw == nil {
		// The job may still complete later; this caller abandons the wait.
		observability.QueueWaitTimeouts.Inc()
		q.logger.Warn("Abandoned wait for inference result",
			zap.String("job_id", job.JobID),
			zap.Duration("waited", q.cfg.SubmitWait))
		return nil
	}

	var result schemas.InferenceResult
	if err := jsonFast.Unmarshal(raw, &result); err != nil {
		q.logger.Error("Malformed inference result", zap.Error(err), zap.String("job_id", job.JobID))
		return nil
	}
	if result.Err != "" {
		q.logger.Warn("Worker reported inference failure",
			zap.String("job_id", job.JobID),
			zap.String("error", result.Err))
		return nil
	}
	return result.Completion
}

func (q *Queue) resultKey(jobID string) string {
	return q.cfg.ResultKeyPrefix + jobID
}
