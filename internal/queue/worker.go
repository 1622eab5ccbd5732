package queue

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/praxis-sh/praxis/api/schemas"
	"github.com/praxis-sh/praxis/internal/config"
)

// Worker is the single consumer of the job list. Exactly one Worker runs per
// deployment; that is what serializes access to the inference resource.
type Worker struct {
	transport Transport
	llm       schemas.LLMClient
	limiter   *rate.Limiter
	cfg       config.QueueConfig
	logger    *zap.Logger
}

// NewWorker wires the consumer. The rate limiter paces outbound calls so a
// full backlog cannot hammer the provider even from a single goroutine.
func NewWorker(transport Transport, llm schemas.LLMClient, cfg config.QueueConfig, logger *zap.Logger) *Worker {
	perMin := cfg.WorkerCallsPerMin
	if perMin <= 0 {
		perMin = 30
	}
	return &Worker{
		transport: transport,
		llm:       llm,
		limiter:   rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMin)), 1),
		cfg:       cfg,
		logger:    logger.Named("queue.worker"),
	}
}

// Run consumes jobs until the context is cancelled. The pop timeout doubles
// as the heartbeat cadence: every pass through the loop refreshes the
// heartbeat key the watchdog reads.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("Inference worker started", zap.String("job_list", w.cfg.JobList))
	for {
		if err := ctx.Err(); err != nil {
			w.logger.Info("Inference worker stopping", zap.Error(err))
			return err
		}

		w.beat(ctx)

		raw, err := w.transport.PopHead(ctx, w.cfg.JobList, w.cfg.HeartbeatInterval)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Warn("Job pop failed, backing off", zap.Error(err))
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		if raw == nil {
			continue // idle pass
		}

		w.process(ctx, raw)
	}
}

func (w *Worker) process(ctx context.Context, raw []byte) {
	var job schemas.InferenceJob
	if err := jsonFast.Unmarshal(raw, &job); err != nil {
		w.logger.Error("Dropping malformed job payload", zap.Error(err))
		return
	}

	logger := w.logger.With(zap.String("job_id", job.JobID), zap.String("requester", job.RequesterTag))

	if err := w.limiter.Wait(ctx); err != nil {
		logger.Warn("Rate limiter wait aborted", zap.Error(err))
		return
	}

	result := schemas.InferenceResult{JobID: job.JobID}
	completion, err := w.llm.GenerateResponse(ctx, schemas.GenerationRequest{
		SystemPrompt: job.SystemPrompt,
		UserPrompt:   job.UserMessage,
	})
	if err != nil {
		logger.Warn("Inference call failed", zap.Error(err))
		result.Err = err.Error()
	} else {
		result.Completion = completion
	}

	payload, err := jsonFast.Marshal(result)
	if err != nil {
		logger.Error("Failed to marshal inference result", zap.Error(err))
		return
	}

	key := w.cfg.ResultKeyPrefix + job.JobID
	if err := w.transport.PushTail(ctx, key, payload); err != nil {
		logger.Error("Failed to deliver inference result", zap.Error(err))
		return
	}
	// The submitter may already have abandoned its wait; the TTL stops
	// orphaned results from accumulating.
	if err := w.transport.Expire(ctx, key, w.cfg.ResultTTL); err != nil {
		logger.Warn("Failed to set result TTL", zap.Error(err))
	}
	logger.Debug("Inference result delivered", zap.Duration("queued_for", time.Since(job.EnqueuedAt)))
}

// beat refreshes the worker liveness timestamp the watchdog observes.
func (w *Worker) beat(ctx context.Context) {
	now := strconv.FormatInt(time.Now().Unix(), 10)
	if err := w.transport.Set(ctx, w.cfg.HeartbeatKey, []byte(now), 0); err != nil {
		w.logger.Warn("Failed to write worker heartbeat", zap.Error(err))
	}
}
