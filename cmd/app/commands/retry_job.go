package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/allisson/escrowd/internal/app"
	"github.com/allisson/escrowd/internal/config"
)

// RunRetryJob requeues a failed job for processing. The job resumes from the
// launched status when its escrow already exists on chain, otherwise it
// restarts from paid.
func RunRetryJob(ctx context.Context, idStr string) error {
	id, err := uuid.Parse(idStr)
	if err != nil {
		return fmt.Errorf("invalid job id: %w", err)
	}

	cfg := config.Load()
	container := app.NewContainer(cfg)
	logger := container.Logger()

	defer closeContainer(container, logger)

	jobUseCase, err := container.JobUseCase()
	if err != nil {
		return fmt.Errorf("failed to initialize job use case: %w", err)
	}

	job, err := jobUseCase.RetryFailed(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to retry job: %w", err)
	}

	logger.Info("job requeued",
		slog.String("job_id", job.ID.String()),
		slog.String("status", string(job.Status)),
	)
	return nil
}
