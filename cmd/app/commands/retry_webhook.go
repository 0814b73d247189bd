package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/allisson/escrowd/internal/app"
	"github.com/allisson/escrowd/internal/config"
)

// RunRetryWebhook requeues a failed outbound webhook for delivery.
func RunRetryWebhook(ctx context.Context, idStr string) error {
	id, err := uuid.Parse(idStr)
	if err != nil {
		return fmt.Errorf("invalid webhook id: %w", err)
	}

	cfg := config.Load()
	container := app.NewContainer(cfg)
	logger := container.Logger()

	defer closeContainer(container, logger)

	delivery, err := container.DeliveryUseCase(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize delivery use case: %w", err)
	}

	if err := delivery.RetryWebhook(ctx, id); err != nil {
		return fmt.Errorf("failed to retry webhook: %w", err)
	}

	logger.Info("webhook requeued", slog.String("webhook_id", id.String()))
	return nil
}
