// Package usecase implements the job business logic: API-facing operations and
// the lifecycle worker that advances jobs through the escrow pipeline.
package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/escrowd/internal/job/domain"
	webhookDomain "github.com/allisson/escrowd/internal/webhook/domain"
)

// JobUseCase defines the interface for job management operations.
type JobUseCase interface {
	Create(ctx context.Context, input CreateJobInput) (*domain.Job, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	List(ctx context.Context, limit, offset int) ([]*domain.Job, error)
	RequestCancel(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	RetryFailed(ctx context.Context, id uuid.UUID) (*domain.Job, error)
}

// LifecycleUseCase defines the interface for the lifecycle worker.
type LifecycleUseCase interface {
	// Start runs the worker loop until the context is canceled.
	Start(ctx context.Context) error

	// ProcessJobs runs a single worker pass over due actionable jobs.
	ProcessJobs(ctx context.Context) error
}

// JobRepository interface defines job repository operations.
type JobRepository interface {
	Create(ctx context.Context, job *domain.Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	GetByChainEscrow(ctx context.Context, chainID int64, escrowAddress string) (*domain.Job, error)
	List(ctx context.Context, limit, offset int) ([]*domain.Job, error)
	ListActionable(ctx context.Context, statuses []domain.Status, now time.Time, limit int) ([]*domain.Job, error)
	Update(ctx context.Context, job *domain.Job) error
	Claim(ctx context.Context, job *domain.Job, now time.Time) (bool, error)
}

// WebhookRepository interface defines the outbox operations the lifecycle
// worker needs to announce milestones.
type WebhookRepository interface {
	CreateIfNotExists(ctx context.Context, webhook *webhookDomain.Webhook) (bool, error)
}
