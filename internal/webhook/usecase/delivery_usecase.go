package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/escrowd/internal/backoff"
	"github.com/allisson/escrowd/internal/clock"
	"github.com/allisson/escrowd/internal/database"
	apperrors "github.com/allisson/escrowd/internal/errors"
	"github.com/allisson/escrowd/internal/webhook/domain"
)

// ErrWebhookNotRetryable indicates a retry request for a webhook that is not
// in the failed status.
var ErrWebhookNotRetryable = apperrors.Wrap(apperrors.ErrConflict, "webhook is not in the failed status")

// DeliveryConfig holds delivery worker configuration.
type DeliveryConfig struct {
	Interval      time.Duration
	BatchSize     int
	MaxRetryCount int
}

// deliveryUseCase drains the webhook outbox, delivering each pending webhook
// at least once.
type deliveryUseCase struct {
	config      DeliveryConfig
	txManager   database.TxManager
	webhookRepo WebhookRepository
	sender      Sender
	backoff     backoff.Policy
	clock       clock.Clock
	logger      *slog.Logger
}

// NewDeliveryUseCase creates a new DeliveryUseCase.
func NewDeliveryUseCase(
	config DeliveryConfig,
	txManager database.TxManager,
	webhookRepo WebhookRepository,
	sender Sender,
	backoffPolicy backoff.Policy,
	clk clock.Clock,
	logger *slog.Logger,
) DeliveryUseCase {
	return &deliveryUseCase{
		config:      config,
		txManager:   txManager,
		webhookRepo: webhookRepo,
		sender:      sender,
		backoff:     backoffPolicy,
		clock:       clk,
		logger:      logger,
	}
}

// Start starts the webhook delivery loop.
func (uc *deliveryUseCase) Start(ctx context.Context) error {
	if uc.logger != nil {
		uc.logger.Info("starting webhook delivery worker",
			slog.Duration("interval", uc.config.Interval),
			slog.Int("batch_size", uc.config.BatchSize),
		)
	}

	ticker := time.NewTicker(uc.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if uc.logger != nil {
				uc.logger.Info("stopping webhook delivery worker")
			}
			return ctx.Err()
		case <-ticker.C:
			if err := uc.ProcessWebhooks(ctx); err != nil {
				if uc.logger != nil {
					uc.logger.Error("failed to process webhooks", slog.Any("error", err))
				}
			}
		}
	}
}

// ProcessWebhooks retrieves and delivers due pending webhooks in a transaction.
// The row locks taken by the pending query keep concurrent instances off the
// same batch; a delivery failure only reschedules its own webhook.
func (uc *deliveryUseCase) ProcessWebhooks(ctx context.Context) error {
	return uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		now := uc.clock.Now().UTC()

		webhooks, err := uc.webhookRepo.GetPending(ctx, now, uc.config.BatchSize)
		if err != nil {
			return err
		}

		if len(webhooks) == 0 {
			return nil
		}

		if uc.logger != nil {
			uc.logger.Info("delivering webhooks", slog.Int("count", len(webhooks)))
		}

		for _, webhook := range webhooks {
			if err := uc.deliver(ctx, webhook, now); err != nil {
				return err
			}
		}

		return nil
	})
}

// deliver attempts one webhook delivery and records the outcome.
func (uc *deliveryUseCase) deliver(ctx context.Context, webhook *domain.Webhook, now time.Time) error {
	sendErr := uc.sender.Send(ctx, webhook)
	if sendErr == nil {
		webhook.Status = domain.StatusCompleted
		webhook.FailureDetail = nil
		return uc.webhookRepo.Update(ctx, webhook)
	}

	if uc.logger != nil {
		uc.logger.Error("failed to deliver webhook",
			slog.String("webhook_id", webhook.ID.String()),
			slog.String("event_type", string(webhook.EventType)),
			slog.Int("retries_count", webhook.RetriesCount),
			slog.Any("error", sendErr),
		)
	}

	// The webhook is parked as failed only once the retry budget is spent, so
	// MaxRetryCount retries means MaxRetryCount+1 delivery attempts in total.
	if webhook.RetriesCount >= uc.config.MaxRetryCount {
		webhook.Status = domain.StatusFailed
		detail := apperrors.Wrap(apperrors.ErrRetryExhausted, sendErr.Error()).Error()
		webhook.FailureDetail = &detail
	} else {
		webhook.RetriesCount++
		detail := sendErr.Error()
		webhook.FailureDetail = &detail
		webhook.WaitUntil = now.Add(uc.backoff.Delay(webhook.RetriesCount))
	}

	return uc.webhookRepo.Update(ctx, webhook)
}

// RetryWebhook puts a failed webhook back in the delivery queue with a clean
// retry counter.
func (uc *deliveryUseCase) RetryWebhook(ctx context.Context, id uuid.UUID) error {
	return uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		reset, err := uc.webhookRepo.ResetFailed(ctx, id, uc.clock.Now().UTC())
		if err != nil {
			return err
		}
		if !reset {
			// Either the webhook does not exist or it is not failed.
			if _, err := uc.webhookRepo.GetByID(ctx, id); err != nil {
				return err
			}
			return ErrWebhookNotRetryable
		}
		return nil
	})
}
