package usecase

import (
	"context"
	"log/slog"
	"time"

	validation "github.com/jellydator/validation"

	"github.com/allisson/escrowd/internal/backoff"
	"github.com/allisson/escrowd/internal/clock"
	"github.com/allisson/escrowd/internal/database"
	apperrors "github.com/allisson/escrowd/internal/errors"
	jobDomain "github.com/allisson/escrowd/internal/job/domain"
	appValidation "github.com/allisson/escrowd/internal/validation"
	"github.com/allisson/escrowd/internal/webhook/domain"
)

// RecordIncomingInput contains the input data for a received oracle
// notification.
type RecordIncomingInput struct {
	ChainID       int64  `json:"chain_id"`
	EscrowAddress string `json:"escrow_address"`
	EventType     string `json:"event_type"`
	OracleAddress string `json:"oracle_address"`
}

// IncomingConfig holds incoming webhook worker configuration.
type IncomingConfig struct {
	Interval      time.Duration
	BatchSize     int
	MaxRetryCount int
}

// incomingUseCase records received notifications and applies them to the job
// lifecycle asynchronously.
type incomingUseCase struct {
	config       IncomingConfig
	txManager    database.TxManager
	incomingRepo IncomingWebhookRepository
	jobRepo      JobRepository
	backoff      backoff.Policy
	clock        clock.Clock
	logger       *slog.Logger
}

// NewIncomingUseCase creates a new IncomingUseCase.
func NewIncomingUseCase(
	config IncomingConfig,
	txManager database.TxManager,
	incomingRepo IncomingWebhookRepository,
	jobRepo JobRepository,
	backoffPolicy backoff.Policy,
	clk clock.Clock,
	logger *slog.Logger,
) IncomingUseCase {
	return &incomingUseCase{
		config:       config,
		txManager:    txManager,
		incomingRepo: incomingRepo,
		jobRepo:      jobRepo,
		backoff:      backoffPolicy,
		clock:        clk,
		logger:       logger,
	}
}

// validateRecordIncomingInput validates a received notification.
func (uc *incomingUseCase) validateRecordIncomingInput(input RecordIncomingInput) error {
	err := validation.ValidateStruct(&input,
		validation.Field(&input.ChainID,
			validation.Required.Error("chain_id is required"),
		),
		validation.Field(&input.EscrowAddress,
			validation.Required.Error("escrow_address is required"),
			appValidation.EthereumAddress,
		),
		validation.Field(&input.EventType,
			validation.Required.Error("event_type is required"),
		),
		validation.Field(&input.OracleAddress,
			validation.Required.Error("oracle_address is required"),
			appValidation.EthereumAddress,
		),
	)
	return appValidation.WrapValidationError(err)
}

// Record stores a received notification for asynchronous processing. A
// duplicate of an already recorded event is accepted and ignored, so senders
// can deliver at least once.
func (uc *incomingUseCase) Record(
	ctx context.Context,
	input RecordIncomingInput,
) (*domain.IncomingWebhook, error) {
	if err := uc.validateRecordIncomingInput(input); err != nil {
		return nil, err
	}

	incoming, err := domain.NewIncomingWebhook(
		input.ChainID, input.EscrowAddress, domain.EventType(input.EventType),
		input.OracleAddress, uc.clock.Now().UTC(),
	)
	if err != nil {
		return nil, err
	}

	inserted, err := uc.incomingRepo.CreateIfNotExists(ctx, incoming)
	if err != nil {
		return nil, err
	}

	if !inserted && uc.logger != nil {
		uc.logger.Info("duplicate incoming webhook ignored",
			slog.Int64("chain_id", incoming.ChainID),
			slog.String("escrow_address", incoming.EscrowAddress),
			slog.String("event_type", string(incoming.EventType)),
		)
	}

	return incoming, nil
}

// Start starts the incoming webhook processing loop.
func (uc *incomingUseCase) Start(ctx context.Context) error {
	if uc.logger != nil {
		uc.logger.Info("starting incoming webhook worker",
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
				uc.logger.Info("stopping incoming webhook worker")
			}
			return ctx.Err()
		case <-ticker.C:
			if err := uc.ProcessIncoming(ctx); err != nil {
				if uc.logger != nil {
					uc.logger.Error("failed to process incoming webhooks", slog.Any("error", err))
				}
			}
		}
	}
}

// ProcessIncoming applies due pending notifications to the job lifecycle in a
// transaction. Lifecycle violations are fatal for the notification; everything
// else is retried with backoff.
func (uc *incomingUseCase) ProcessIncoming(ctx context.Context) error {
	return uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		now := uc.clock.Now().UTC()

		pending, err := uc.incomingRepo.GetPending(ctx, now, uc.config.BatchSize)
		if err != nil {
			return err
		}

		if len(pending) == 0 {
			return nil
		}

		if uc.logger != nil {
			uc.logger.Info("applying incoming webhooks", slog.Int("count", len(pending)))
		}

		for _, incoming := range pending {
			if err := uc.process(ctx, incoming, now); err != nil {
				return err
			}
		}

		return nil
	})
}

// process applies one notification and records the outcome.
func (uc *incomingUseCase) process(ctx context.Context, incoming *domain.IncomingWebhook, now time.Time) error {
	applyErr := uc.apply(ctx, incoming)
	if applyErr == nil {
		incoming.Status = domain.StatusCompleted
		incoming.FailureDetail = nil
		return uc.incomingRepo.Update(ctx, incoming)
	}

	if uc.logger != nil {
		uc.logger.Error("failed to apply incoming webhook",
			slog.String("webhook_id", incoming.ID.String()),
			slog.String("event_type", string(incoming.EventType)),
			slog.Any("error", applyErr),
		)
	}

	detail := applyErr.Error()
	incoming.FailureDetail = &detail

	if apperrors.Is(applyErr, apperrors.ErrInvalidTransition) {
		// The job cannot accept this event anymore; retrying will not help.
		incoming.Status = domain.StatusFailed
		return uc.incomingRepo.Update(ctx, incoming)
	}

	// The record is parked as failed only once the retry budget is spent, so
	// MaxRetryCount retries means MaxRetryCount+1 attempts in total.
	if incoming.RetriesCount >= uc.config.MaxRetryCount {
		incoming.Status = domain.StatusFailed
		detail := apperrors.Wrap(apperrors.ErrRetryExhausted, applyErr.Error()).Error()
		incoming.FailureDetail = &detail
	} else {
		incoming.RetriesCount++
		incoming.WaitUntil = now.Add(uc.backoff.Delay(incoming.RetriesCount))
	}

	return uc.incomingRepo.Update(ctx, incoming)
}

// apply translates one oracle notification into a job lifecycle action.
// Events with no lifecycle effect on this side (escrow_created, submission
// notifications, abuse_dismissed) only mark the record processed.
func (uc *incomingUseCase) apply(ctx context.Context, incoming *domain.IncomingWebhook) error {
	switch incoming.EventType {
	case domain.EventCancellationRequested, domain.EventAbuseDetected:
		return uc.transitionJob(ctx, incoming, jobDomain.StatusToCancel)
	case domain.EventEscrowCompleted:
		return uc.transitionJob(ctx, incoming, jobDomain.StatusCompleted)
	case domain.EventEscrowCanceled:
		return uc.transitionJob(ctx, incoming, jobDomain.StatusCanceled)
	default:
		return nil
	}
}

// transitionJob moves the notification's job to the target status.
func (uc *incomingUseCase) transitionJob(
	ctx context.Context,
	incoming *domain.IncomingWebhook,
	target jobDomain.Status,
) error {
	job, err := uc.jobRepo.GetByChainEscrow(ctx, incoming.ChainID, incoming.EscrowAddress)
	if err != nil {
		return err
	}

	if job.Status == target {
		// Already there, the event is a repeat of something we did ourselves.
		return nil
	}

	if err := job.Transition(target); err != nil {
		return err
	}
	job.WaitUntil = uc.clock.Now().UTC()

	return uc.jobRepo.Update(ctx, job)
}
