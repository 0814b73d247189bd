package usecase

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/allisson/escrowd/internal/backoff"
	"github.com/allisson/escrowd/internal/clock"
	"github.com/allisson/escrowd/internal/database"
	apperrors "github.com/allisson/escrowd/internal/errors"
	"github.com/allisson/escrowd/internal/escrow"
	"github.com/allisson/escrowd/internal/job/domain"
	webhookDomain "github.com/allisson/escrowd/internal/webhook/domain"
)

// errResultNotReady marks a step whose upstream outcome is not available yet
// (moderation verdict pending, chain transaction unconfirmed). The job is
// rescheduled without consuming a retry.
var errResultNotReady = apperrors.New("upstream result not ready")

// LifecycleConfig holds lifecycle worker configuration.
type LifecycleConfig struct {
	Interval      time.Duration
	BatchSize     int
	MaxRetryCount int
	Concurrency   int
	SignWebhooks  bool
}

// milestoneEvents maps the statuses oracles care about to the event announced
// when a job reaches them.
var milestoneEvents = map[domain.Status]webhookDomain.EventType{
	domain.StatusLaunched:  webhookDomain.EventEscrowCreated,
	domain.StatusCompleted: webhookDomain.EventEscrowCompleted,
	domain.StatusCanceled:  webhookDomain.EventEscrowCanceled,
	domain.StatusFailed:    webhookDomain.EventEscrowFailed,
}

// lifecycleUseCase advances jobs through the escrow pipeline, one step per
// worker pass.
type lifecycleUseCase struct {
	config      LifecycleConfig
	txManager   database.TxManager
	jobRepo     JobRepository
	webhookRepo WebhookRepository
	gateway     escrow.Gateway
	backoff     backoff.Policy
	clock       clock.Clock
	logger      *slog.Logger
}

// NewLifecycleUseCase creates a new LifecycleUseCase.
func NewLifecycleUseCase(
	config LifecycleConfig,
	txManager database.TxManager,
	jobRepo JobRepository,
	webhookRepo WebhookRepository,
	gateway escrow.Gateway,
	backoffPolicy backoff.Policy,
	clk clock.Clock,
	logger *slog.Logger,
) LifecycleUseCase {
	return &lifecycleUseCase{
		config:      config,
		txManager:   txManager,
		jobRepo:     jobRepo,
		webhookRepo: webhookRepo,
		gateway:     gateway,
		backoff:     backoffPolicy,
		clock:       clk,
		logger:      logger,
	}
}

// Start starts the lifecycle worker loop.
func (uc *lifecycleUseCase) Start(ctx context.Context) error {
	if uc.logger != nil {
		uc.logger.Info("starting lifecycle worker",
			slog.Duration("interval", uc.config.Interval),
			slog.Int("batch_size", uc.config.BatchSize),
			slog.Int("concurrency", uc.config.Concurrency),
		)
	}

	ticker := time.NewTicker(uc.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if uc.logger != nil {
				uc.logger.Info("stopping lifecycle worker")
			}
			return ctx.Err()
		case <-ticker.C:
			if err := uc.ProcessJobs(ctx); err != nil {
				if uc.logger != nil {
					uc.logger.Error("failed to process jobs", slog.Any("error", err))
				}
			}
		}
	}
}

// ProcessJobs selects due actionable jobs and advances each by one step. Jobs
// are processed concurrently with a bounded fan-out; each job is claimed with a
// conditional update first so a job grabbed by another instance between the
// select and the claim is skipped, not processed twice.
func (uc *lifecycleUseCase) ProcessJobs(ctx context.Context) error {
	now := uc.clock.Now().UTC()

	var jobs []*domain.Job
	err := uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		var err error
		jobs, err = uc.jobRepo.ListActionable(ctx, domain.ActionableStatuses(), now, uc.config.BatchSize)
		return err
	})
	if err != nil {
		return err
	}

	if len(jobs) == 0 {
		return nil
	}

	if uc.logger != nil {
		uc.logger.Info("processing jobs", slog.Int("count", len(jobs)))
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(uc.config.Concurrency)

	for _, job := range jobs {
		group.Go(func() error {
			if err := uc.processJob(groupCtx, job, now); err != nil {
				if uc.logger != nil {
					uc.logger.Error("failed to process job",
						slog.String("job_id", job.ID.String()),
						slog.String("status", string(job.Status)),
						slog.Any("error", err),
					)
				}
			}
			return nil
		})
	}

	return group.Wait()
}

// processJob claims a job and advances it by exactly one lifecycle step.
func (uc *lifecycleUseCase) processJob(ctx context.Context, job *domain.Job, now time.Time) error {
	claimed, err := uc.jobRepo.Claim(ctx, job, now)
	if err != nil {
		return err
	}
	if !claimed {
		// Another worker instance took this job.
		return nil
	}

	previous := job.Status
	stepErr := uc.step(ctx, job)

	switch {
	case stepErr == nil:
		// Step succeeded or resolved to a fatal failure inside step().
	case apperrors.Is(stepErr, errResultNotReady):
		// Nothing to do yet. Reschedule without consuming a retry.
		job.WaitUntil = now.Add(uc.backoff.Delay(0))
	default:
		// A job is parked as failed only once the retry budget is spent, so
		// MaxRetryCount retries means MaxRetryCount+1 attempts in total.
		if job.RetriesCount >= uc.config.MaxRetryCount {
			detail := apperrors.Wrap(apperrors.ErrRetryExhausted, stepErr.Error()).Error()
			if err := job.Fail(detail); err != nil {
				return err
			}
		} else {
			job.RetriesCount++
			job.WaitUntil = now.Add(uc.backoff.Delay(job.RetriesCount))
		}
	}

	return uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		if err := uc.jobRepo.Update(ctx, job); err != nil {
			return err
		}
		if job.Status != previous {
			return uc.enqueueMilestoneWebhooks(ctx, job)
		}
		return nil
	})
}

// step performs the single gateway interaction for the job's current status
// and mutates the job accordingly. Moderation rejection and abuse detection
// are fatal outcomes handled here; returned errors are recoverable.
func (uc *lifecycleUseCase) step(ctx context.Context, job *domain.Job) error {
	switch job.Status {
	case domain.StatusPaid:
		if err := uc.gateway.StartModeration(ctx, job.ID, job.ManifestURL); err != nil {
			return err
		}
		return job.Transition(domain.StatusUnderModeration)

	case domain.StatusUnderModeration:
		verdict, err := uc.gateway.GetModerationVerdict(ctx, job.ID)
		if err != nil {
			return err
		}
		switch verdict {
		case escrow.ModerationApproved:
			return job.Transition(domain.StatusModerationPassed)
		case escrow.ModerationRejected:
			return job.Fail("manifest rejected by moderation")
		default:
			return errResultNotReady
		}

	case domain.StatusModerationPassed:
		if err := uc.gateway.ScanForAbuse(ctx, job.ID, job.ManifestURL); err != nil {
			return err
		}
		return job.Transition(domain.StatusPossibleAbuseReview)

	case domain.StatusPossibleAbuseReview:
		verdict, err := uc.gateway.GetAbuseVerdict(ctx, job.ID)
		if err != nil {
			return err
		}
		switch verdict {
		case escrow.AbuseClean:
			return uc.launch(ctx, job)
		case escrow.AbuseFlagged:
			return job.Fail("abuse detected in manifest")
		default:
			return errResultNotReady
		}

	case domain.StatusLaunched:
		status, err := uc.escrowStatus(ctx, job)
		if err != nil {
			return err
		}
		if status == escrow.StatusPartial || status == escrow.StatusPaid || status == escrow.StatusComplete {
			return job.Transition(domain.StatusPartial)
		}
		return errResultNotReady

	case domain.StatusPartial:
		if job.EscrowAddress == nil {
			return job.Fail("job in partial status without an escrow address")
		}
		if err := uc.gateway.CompleteEscrow(ctx, job.ChainID, *job.EscrowAddress); err != nil {
			return err
		}
		return job.Transition(domain.StatusCompleted)

	case domain.StatusToCancel:
		// Jobs canceled before launch have nothing on chain to cancel.
		if job.EscrowAddress != nil {
			if err := uc.gateway.CancelEscrow(ctx, job.ChainID, *job.EscrowAddress); err != nil {
				return err
			}
		}
		return job.Transition(domain.StatusCanceling)

	case domain.StatusCanceling:
		if job.EscrowAddress == nil {
			return job.Transition(domain.StatusCanceled)
		}
		status, err := uc.escrowStatus(ctx, job)
		if err != nil {
			return err
		}
		if status == escrow.StatusCancelled {
			return job.Transition(domain.StatusCanceled)
		}
		return errResultNotReady

	default:
		return apperrors.Wrap(apperrors.ErrInvalidTransition, "job status is not actionable")
	}
}

// launch creates the escrow on chain and records the addresses it produced.
func (uc *lifecycleUseCase) launch(ctx context.Context, job *domain.Job) error {
	result, err := uc.gateway.CreateEscrow(ctx, job.ChainID, job.ManifestURL, job.ManifestHash)
	if err != nil {
		return err
	}

	job.EscrowAddress = &result.EscrowAddress
	if result.ReputationOracle != "" {
		job.ReputationOracle = &result.ReputationOracle
	}
	if result.ExchangeOracle != "" {
		job.ExchangeOracle = &result.ExchangeOracle
	}
	if result.RecordingOracle != "" {
		job.RecordingOracle = &result.RecordingOracle
	}

	return job.Transition(domain.StatusLaunched)
}

// escrowStatus fetches the on-chain status for a launched job.
func (uc *lifecycleUseCase) escrowStatus(ctx context.Context, job *domain.Job) (escrow.Status, error) {
	if job.EscrowAddress == nil {
		return "", apperrors.New("job has no escrow address")
	}
	return uc.gateway.GetEscrowStatus(ctx, job.ChainID, *job.EscrowAddress)
}

// enqueueMilestoneWebhooks records outbox rows announcing the job's new status
// to the counterpart oracles. Inserts are idempotent on the identity tuple, so
// a crash between update and enqueue cannot double-announce.
func (uc *lifecycleUseCase) enqueueMilestoneWebhooks(ctx context.Context, job *domain.Job) error {
	eventType, ok := milestoneEvents[job.Status]
	if !ok {
		return nil
	}
	if job.EscrowAddress == nil {
		// Jobs that never launched have no on-chain identity to announce.
		return nil
	}

	targets := []struct {
		oracleType webhookDomain.OracleType
		address    *string
	}{
		{webhookDomain.OracleExchange, job.ExchangeOracle},
		{webhookDomain.OracleRecording, job.RecordingOracle},
	}

	now := uc.clock.Now().UTC()
	for _, target := range targets {
		if target.address == nil {
			continue
		}

		webhook, err := webhookDomain.NewWebhook(
			job.ChainID, *job.EscrowAddress, eventType,
			target.oracleType, *target.address, uc.config.SignWebhooks, now,
		)
		if err != nil {
			return err
		}

		if _, err := uc.webhookRepo.CreateIfNotExists(ctx, webhook); err != nil {
			return err
		}
	}

	return nil
}
