package feedback

import (
	"context"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/praxis-sh/praxis/api/schemas"
	"github.com/praxis-sh/praxis/internal/config"
	"github.com/praxis-sh/praxis/internal/queue"
	"github.com/praxis-sh/praxis/internal/taxonomy"
)

var jsonFast = jsoniter.ConfigCompatibleWithStandardLibrary

// ManifestLookup resolves the tool manifest for an action type, if the type
// is a registered dynamic tool.
type ManifestLookup func(actionType string) (*schemas.ToolManifest, bool)

// ReflectionItem is the truncated copy of a tool output queued for
// out-of-band processing.
type ReflectionItem struct {
	ActionType string    `json:"action_type"`
	Result     string    `json:"result"`
	QueuedAt   time.Time `json:"queued_at"`
}

// NoveltyGate decides whether a tool's output is worth queuing for deeper
// asynchronous reflection. Innate skills, ephemeral outputs and trivially
// short results are rejected; everything else is truncated and enqueued with
// a TTL. Cheap and bounded by design.
type NoveltyGate struct {
	tax       *taxonomy.Taxonomy
	manifests ManifestLookup
	transport queue.Transport
	cfg       config.FeedbackConfig
	logger    *zap.Logger
}

// NewNoveltyGate wires the gate. manifests may be nil when no dynamic tools
// are registered.
func NewNoveltyGate(tax *taxonomy.Taxonomy, manifests ManifestLookup, transport queue.Transport, cfg config.FeedbackConfig, logger *zap.Logger) *NoveltyGate {
	return &NoveltyGate{
		tax:       tax,
		manifests: manifests,
		transport: transport,
		cfg:       cfg,
		logger:    logger.Named("novelty"),
	}
}

// Consider evaluates one result and enqueues it when it passes the gate.
// Returns whether the result was accepted.
func (g *NoveltyGate) Consider(ctx context.Context, res schemas.ActionResult) bool {
	if !g.Accepts(res) {
		return false
	}

	result := res.Result
	if len(result) > g.cfg.TruncateChars {
		result = result[:g.cfg.TruncateChars]
	}
	item := ReflectionItem{
		ActionType: res.ActionType,
		Result:     result,
		QueuedAt:   time.Now().UTC(),
	}
	payload, err := jsonFast.Marshal(item)
	if err != nil {
		g.logger.Error("Failed to marshal reflection item", zap.Error(err))
		return false
	}
	if err := g.transport.PushTail(ctx, g.cfg.ReflectionList, payload); err != nil {
		g.logger.Warn("Failed to enqueue reflection item", zap.Error(err))
		return false
	}
	if err := g.transport.Expire(ctx, g.cfg.ReflectionList, g.cfg.ReflectionTTL); err != nil {
		g.logger.Warn("Failed to set reflection TTL", zap.Error(err))
	}
	return true
}

// Accepts applies the gate's rejection rules without side effects.
func (g *NoveltyGate) Accepts(res schemas.ActionResult) bool {
	if res.Status != schemas.StatusSuccess {
		return false
	}
	if g.tax.IsInnate(res.ActionType) {
		return false
	}
	if g.manifests != nil {
		if m, ok := g.manifests(res.ActionType); ok && m.Output.Ephemeral {
			return false
		}
	}
	if len(res.Result) < g.cfg.MinResultChars {
		return false
	}
	return true
}
