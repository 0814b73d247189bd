// Package usecase implements the webhook business logic: outbound delivery with
// retry and the application of incoming oracle notifications to the job
// lifecycle.
package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	jobDomain "github.com/allisson/escrowd/internal/job/domain"
	"github.com/allisson/escrowd/internal/webhook/domain"
)

// DeliveryUseCase defines the interface for the outbound webhook worker.
type DeliveryUseCase interface {
	// Start runs the delivery loop until the context is canceled.
	Start(ctx context.Context) error

	// ProcessWebhooks runs a single delivery pass over due pending webhooks.
	ProcessWebhooks(ctx context.Context) error

	// RetryWebhook puts a failed webhook back in the delivery queue.
	RetryWebhook(ctx context.Context, id uuid.UUID) error
}

// IncomingUseCase defines the interface for received oracle notifications.
type IncomingUseCase interface {
	// Record stores a received notification for asynchronous processing.
	// Receiving the same event twice is not an error.
	Record(ctx context.Context, input RecordIncomingInput) (*domain.IncomingWebhook, error)

	// Start runs the processing loop until the context is canceled.
	Start(ctx context.Context) error

	// ProcessIncoming runs a single pass applying due pending notifications to
	// the job lifecycle.
	ProcessIncoming(ctx context.Context) error
}

// WebhookRepository interface defines outbound webhook repository operations.
type WebhookRepository interface {
	CreateIfNotExists(ctx context.Context, webhook *domain.Webhook) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Webhook, error)
	GetPending(ctx context.Context, now time.Time, limit int) ([]*domain.Webhook, error)
	Update(ctx context.Context, webhook *domain.Webhook) error
	ResetFailed(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
}

// IncomingWebhookRepository interface defines incoming webhook repository operations.
type IncomingWebhookRepository interface {
	CreateIfNotExists(ctx context.Context, incoming *domain.IncomingWebhook) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.IncomingWebhook, error)
	GetPending(ctx context.Context, now time.Time, limit int) ([]*domain.IncomingWebhook, error)
	Update(ctx context.Context, incoming *domain.IncomingWebhook) error
}

// JobRepository interface defines the job operations incoming notifications
// need to act on the lifecycle.
type JobRepository interface {
	GetByChainEscrow(ctx context.Context, chainID int64, escrowAddress string) (*jobDomain.Job, error)
	Update(ctx context.Context, job *jobDomain.Job) error
}

// Sender delivers one webhook to its target oracle.
type Sender interface {
	Send(ctx context.Context, webhook *domain.Webhook) error
}
