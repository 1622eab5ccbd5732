package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/praxis-sh/praxis/internal/llmclient"
	"github.com/praxis-sh/praxis/internal/observability"
	"github.com/praxis-sh/praxis/internal/queue"
)

// newWorkerCmd creates the `worker` command: the single consuming side of the
// background inference queue, plus the heartbeat watchdog.
func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Runs the background inference worker and its heartbeat watchdog",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			logger := observability.GetLogger()

			transport, err := queue.NewRedisTransport(ctx, cfg.Redis())
			if err != nil {
				return fmt.Errorf("failed to connect to redis: %w", err)
			}
			defer transport.Close()

			llm, err := llmclient.NewClient(cfg.LLM(), logger)
			if err != nil {
				return fmt.Errorf("failed to build inference client: %w", err)
			}

			worker := queue.NewWorker(transport, llm, cfg.Queue(), logger)
			watchdog := queue.NewWatchdog(transport, cfg.Queue(), logger)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return worker.Run(gctx) })
			g.Go(func() error {
				watchdog.Run(gctx)
				return nil
			})

			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			logger.Info("Worker shut down cleanly")
			return nil
		},
	}
}
