package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/praxis-sh/praxis/api/schemas"
	"github.com/praxis-sh/praxis/internal/agent"
	"github.com/praxis-sh/praxis/internal/config"
	"github.com/praxis-sh/praxis/internal/costmodel"
	"github.com/praxis-sh/praxis/internal/dispatch"
	"github.com/praxis-sh/praxis/internal/feedback"
	"github.com/praxis-sh/praxis/internal/memstore"
	"github.com/praxis-sh/praxis/internal/observability"
	"github.com/praxis-sh/praxis/internal/queue"
	"github.com/praxis-sh/praxis/internal/sandbox"
	"github.com/praxis-sh/praxis/internal/taxonomy"
)

var jsonCfg = jsoniter.ConfigCompatibleWithStandardLibrary

// newRunCmd creates the `run` command: one bounded reasoning cycle against a
// goal given on the command line.
func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run [goal...]",
		Short: "Runs one bounded reasoning cycle against the given goal",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			logger := observability.GetLogger()

			components, err := initializeEngine(ctx, cfg, logger)
			if err != nil {
				if components != nil {
					components.Shutdown()
				}
				return fmt.Errorf("failed to initialize engine: %w", err)
			}
			defer components.Shutdown()

			goal := strings.Join(args, " ")
			report, err := components.Agent.RunCycle(ctx, goal)
			if err != nil {
				logger.Error("Cycle failed", zap.Error(err))
				return err
			}

			logger.Info("Cycle complete",
				zap.String("cycle_id", report.CycleID),
				zap.Int("rounds", report.Rounds),
				zap.Int("actions", len(report.Results)),
				zap.Float64("effort_spent", report.EffortSpent))

			if report.FinalText != "" {
				fmt.Println(report.FinalText)
			}
			for _, res := range report.Results {
				fmt.Printf("  [%s] %s: %s\n", res.Status, res.ActionType, res.Result)
			}
			return nil
		},
	}
}

// engineComponents holds initialized services for one `run` invocation.
type engineComponents struct {
	Agent     *agent.Agent
	Transport *queue.RedisTransport
	DBPool    *pgxpool.Pool
}

// Shutdown closes the external connections.
func (ec *engineComponents) Shutdown() {
	if ec.Transport != nil {
		if err := ec.Transport.Close(); err != nil {
			observability.GetLogger().Warn("Error closing redis transport", zap.Error(err))
		}
	}
	if ec.DBPool != nil {
		ec.DBPool.Close()
	}
}

// initializeEngine is the composition root: every external client (redis,
// postgres, docker) is constructed exactly once here and threaded through
// explicitly.
func initializeEngine(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*engineComponents, error) {
	components := &engineComponents{}

	tax, err := taxonomy.New()
	if err != nil {
		return components, fmt.Errorf("failed to load action taxonomy: %w", err)
	}

	// 1. Redis transport and the background inference queue.
	transport, err := queue.NewRedisTransport(ctx, cfg.Redis())
	if err != nil {
		return components, fmt.Errorf("failed to connect to redis: %w", err)
	}
	components.Transport = transport
	inferenceQueue := queue.New(transport, cfg.Queue(), logger)

	// 2. Database-backed stores.
	if cfg.Database().URL == "" {
		return components, fmt.Errorf("database URL is not configured (PRAXIS_DATABASE_URL)")
	}
	dbPool, err := pgxpool.New(ctx, cfg.Database().URL)
	if err != nil {
		return components, fmt.Errorf("failed to connect to database: %w", err)
	}
	components.DBPool = dbPool

	memories, err := memstore.New(ctx, dbPool, logger)
	if err != nil {
		return components, err
	}
	weights, err := feedback.NewWeightStore(ctx, dbPool, logger)
	if err != nil {
		return components, err
	}

	// 3. Cost model, snapshotting live weights once for this invocation.
	cost := costmodel.New(ctx, cfg.Cost(), weights, logger)

	// 4. Sandbox substrate. Docker being down disables dynamic tools but must
	// not take the innate primitives with it.
	var substrate *sandbox.Substrate
	runtime, err := sandbox.NewDockerRuntime()
	if err != nil {
		logger.Warn("Docker unavailable, dynamic tools disabled", zap.Error(err))
	} else {
		substrate = sandbox.New(runtime, cfg.Sandbox(), logger)
	}

	// 5. Action registry: innate primitives, built-ins, aliases, then any
	// dynamic tool manifests found on disk.
	reg := dispatch.NewRegistry()
	if err := memories.RegisterHandlers(reg); err != nil {
		return components, err
	}
	if err := registerBuiltins(reg); err != nil {
		return components, err
	}
	for legacy, current := range cfg.Dispatch().Aliases {
		if err := reg.RegisterAlias(legacy, current); err != nil {
			return components, err
		}
	}
	if substrate != nil {
		if err := registerTools(ctx, reg, substrate, cfg.Sandbox().ToolSourceDir, logger); err != nil {
			return components, err
		}
	}

	dispatcher := dispatch.New(reg, tax, substrate, directiveCritic, cfg.Dispatch(), cfg.Loop().PerActionTimeout, logger)

	// 6. Feedback path.
	gate := feedback.NewNoveltyGate(tax, reg.Manifest, transport, cfg.Feedback(), logger)
	recorder := feedback.NewRecorder(weights, gate, tax, logger)

	components.Agent = agent.New(inferenceQueue, dispatcher, cost, tax, recorder, cfg.Loop(), cfg.Cost().CycleEffortBudget, logger)
	return components, nil
}

// directiveCritic is a minimal guardrail: it vetoes side-effecting actions
// whose params smuggle action directives, the textual shape the output
// sanitizer strips on the way back in.
func directiveCritic(_ context.Context, req schemas.ActionRequest) error {
	for key, raw := range req.Params {
		s, ok := raw.(string)
		if !ok {
			continue
		}
		if strings.Contains(strings.ToUpper(s), "ACTION:") {
			return fmt.Errorf("param %q contains an embedded action directive", key)
		}
	}
	return nil
}

// registerBuiltins installs the deterministic in-process actions.
func registerBuiltins(reg *dispatch.Registry) error {
	if err := reg.RegisterHandler(taxonomy.ActionGetTime, dispatch.HandlerFunc(
		func(_ context.Context, _ string, _ map[string]any) (string, error) {
			return time.Now().Format(time.RFC1123), nil
		})); err != nil {
		return err
	}
	return reg.RegisterHandler(taxonomy.ActionListTools, dispatch.HandlerFunc(
		func(_ context.Context, _ string, _ map[string]any) (string, error) {
			names := reg.Types()
			return "Available actions: " + strings.Join(names, ", "), nil
		}))
}

// registerTools scans sourceDir for dynamic tool manifests, ensures each image
// is built against the current source hash, and registers the manifest. A
// missing tools directory is not an error.
func registerTools(ctx context.Context, reg *dispatch.Registry, substrate *sandbox.Substrate, sourceDir string, logger *zap.Logger) error {
	entries, err := os.ReadDir(sourceDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read tool source dir %s: %w", sourceDir, err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		toolDir := filepath.Join(sourceDir, entry.Name())
		raw, err := os.ReadFile(filepath.Join(toolDir, "manifest.json"))
		if err != nil {
			logger.Warn("Skipping tool without readable manifest",
				zap.String("tool", entry.Name()), zap.Error(err))
			continue
		}

		var manifest schemas.ToolManifest
		if err := jsonCfg.Unmarshal(raw, &manifest); err != nil {
			logger.Warn("Skipping tool with malformed manifest",
				zap.String("tool", entry.Name()), zap.Error(err))
			continue
		}

		if err := substrate.EnsureBuilt(ctx, &manifest, toolDir); err != nil {
			return fmt.Errorf("failed to build tool %s: %w", manifest.Name, err)
		}
		if err := reg.RegisterTool(&manifest); err != nil {
			return err
		}
		logger.Info("Registered dynamic tool",
			zap.String("tool", manifest.Name),
			zap.String("image", manifest.Image))
	}
	return nil
}
