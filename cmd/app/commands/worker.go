package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/allisson/escrowd/internal/app"
	"github.com/allisson/escrowd/internal/config"
)

// RunWorker starts the lifecycle, delivery and incoming workers concurrently.
// Blocks until receiving SIGINT/SIGTERM; a cancelled context is a clean
// shutdown, not an error.
func RunWorker(ctx context.Context, version string) error {
	cfg := config.Load()

	container := app.NewContainer(cfg)

	logger := container.Logger()
	logger.Info("starting workers", slog.String("version", version))

	defer closeContainer(container, logger)

	lifecycle, err := container.LifecycleUseCase(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize lifecycle worker: %w", err)
	}

	delivery, err := container.DeliveryUseCase(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize delivery worker: %w", err)
	}

	incoming, err := container.IncomingUseCase()
	if err != nil {
		return fmt.Errorf("failed to initialize incoming worker: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return lifecycle.Start(ctx) })
	g.Go(func() error { return delivery.Start(ctx) })
	g.Go(func() error { return incoming.Start(ctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("worker error: %w", err)
	}

	logger.Info("workers stopped")
	return nil
}
