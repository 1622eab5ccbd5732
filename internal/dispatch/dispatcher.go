// Package dispatch routes typed action requests to in-process handlers or
// the sandboxed execution substrate, times every invocation against the
// per-action budget, and maps every failure mode to a typed, inspectable
// result. Dispatch never returns an error to the loop.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/praxis-sh/praxis/api/schemas"
	"github.com/praxis-sh/praxis/internal/config"
	"github.com/praxis-sh/praxis/internal/observability"
	"github.com/praxis-sh/praxis/internal/sandbox"
	"github.com/praxis-sh/praxis/internal/taxonomy"
)

// SandboxRunner is the slice of the sandbox substrate the dispatcher needs.
type SandboxRunner interface {
	Run(ctx context.Context, m *schemas.ToolManifest, payload any, timeout time.Duration) (json.RawMessage, error)
}

// Critic validates a side-effecting action before commit. The critic itself
// is an external collaborator; only the skip decision lives here. A non-nil
// error vetoes the action.
type Critic func(ctx context.Context, req schemas.ActionRequest) error

// Dispatcher owns the handler registry and the per-action timeout policy.
type Dispatcher struct {
	reg       *Registry
	tax       *taxonomy.Taxonomy
	substrate SandboxRunner
	critic    Critic
	cfg       config.DispatchConfig
	timeout   time.Duration
	logger    *zap.Logger
}

// New wires a dispatcher. critic may be nil when no validation step is
// deployed; substrate may be nil in deployments with no dynamic tools.
func New(
	reg *Registry,
	tax *taxonomy.Taxonomy,
	substrate SandboxRunner,
	critic Critic,
	cfg config.DispatchConfig,
	perActionTimeout time.Duration,
	logger *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		reg:       reg,
		tax:       tax,
		substrate: substrate,
		critic:    critic,
		cfg:       cfg,
		timeout:   perActionTimeout,
		logger:    logger.Named("dispatch"),
	}
}

type handlerOutcome struct {
	out string
	err error
}

// Dispatch executes one action request and always returns a result: handler
// failures surface as status=error, deadline breaches as status=timeout. The
// handler runs on its own goroutine raced against the per-action deadline so
// the caller is never blocked past the bound.
func (d *Dispatcher) Dispatch(ctx context.Context, req schemas.ActionRequest) schemas.ActionResult {
	start := time.Now()
	finish := func(status schemas.ActionStatus, result string) schemas.ActionResult {
		elapsed := time.Since(start).Seconds()
		observability.DispatchDuration.WithLabelValues(req.Type, string(status)).Observe(elapsed)
		return schemas.ActionResult{
			ActionType:       req.Type,
			Status:           status,
			Result:           result,
			ExecutionSeconds: elapsed,
		}
	}

	resolved := d.reg.Resolve(req.Type)

	handler, hasHandler := d.reg.Handler(resolved)
	manifest, hasTool := d.reg.Manifest(resolved)
	if !hasHandler && !hasTool {
		d.logger.Warn("Unknown action type", zap.String("action_type", req.Type))
		return finish(schemas.StatusError, "unknown action type")
	}

	if err := d.runCritic(ctx, resolved, req); err != nil {
		return finish(schemas.StatusError, fmt.Sprintf("vetoed by critic: %v", err))
	}

	if hasHandler {
		return d.dispatchHandler(ctx, handler, resolved, req, finish)
	}
	return d.dispatchTool(ctx, manifest, req, finish)
}

// runCritic applies the safety policy: actions in the safe set never see the
// critic; critic-skippable reads skip it only when dispatcher confidence
// strictly exceeds the threshold (a borderline confidence runs the critic).
// The skip is a latency optimization, never a correctness requirement.
func (d *Dispatcher) runCritic(ctx context.Context, resolved string, req schemas.ActionRequest) error {
	if d.critic == nil || d.tax.IsSafe(resolved) {
		return nil
	}
	if d.tax.CriticSkippable(resolved) && d.cfg.Confidence > d.cfg.CriticConfidenceThreshold {
		d.logger.Debug("Skipping critic for high-confidence read",
			zap.String("action_type", resolved),
			zap.Float64("confidence", d.cfg.Confidence))
		return nil
	}
	return d.critic(ctx, req)
}

func (d *Dispatcher) dispatchHandler(
	ctx context.Context,
	handler ActionHandler,
	resolved string,
	req schemas.ActionRequest,
	finish func(schemas.ActionStatus, string) schemas.ActionResult,
) schemas.ActionResult {
	runCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	outCh := make(chan handlerOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				outCh <- handlerOutcome{err: fmt.Errorf("handler panic: %v", r)}
			}
		}()
		out, err := handler.Execute(runCtx, resolved, req.Params)
		outCh <- handlerOutcome{out: out, err: err}
	}()

	select {
	case o := <-outCh:
		if o.err != nil {
			return finish(schemas.StatusError, o.err.Error())
		}
		return finish(schemas.StatusSuccess, o.out)
	case <-runCtx.Done():
		d.logger.Warn("Handler exceeded per-action timeout",
			zap.String("action_type", resolved),
			zap.Duration("timeout", d.timeout))
		return finish(schemas.StatusTimeout, fmt.Sprintf("action exceeded %s per-action timeout", d.timeout))
	}
}

func (d *Dispatcher) dispatchTool(
	ctx context.Context,
	manifest *schemas.ToolManifest,
	req schemas.ActionRequest,
	finish func(schemas.ActionStatus, string) schemas.ActionResult,
) schemas.ActionResult {
	if d.substrate == nil {
		return finish(schemas.StatusError, fmt.Sprintf("tool %s requires a sandbox substrate and none is configured", manifest.Name))
	}

	// The deadline bounds the whole engine interaction, not just the wait on
	// the running unit: a wedged create or start call must not block the loop
	// either.
	runCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	out, err := d.substrate.Run(runCtx, manifest, req.Params, d.timeout)
	if err != nil {
		if errors.Is(err, sandbox.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			// The substrate has already force-killed and reaped the unit.
			return finish(schemas.StatusTimeout, fmt.Sprintf("action exceeded %s per-action timeout", d.timeout))
		}
		return finish(schemas.StatusError, err.Error())
	}

	// Tool output feeds the next reasoning step; strip anything shaped like
	// an action instruction first.
	return finish(schemas.StatusSuccess, sandbox.SanitizeToolOutput(string(out)))
}
