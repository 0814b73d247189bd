package usecase

import (
	"context"

	validation "github.com/jellydator/validation"

	"github.com/google/uuid"

	"github.com/allisson/escrowd/internal/clock"
	"github.com/allisson/escrowd/internal/database"
	apperrors "github.com/allisson/escrowd/internal/errors"
	"github.com/allisson/escrowd/internal/job/domain"
	appValidation "github.com/allisson/escrowd/internal/validation"
)

// CreateJobInput contains the input data for job creation.
type CreateJobInput struct {
	ChainID      int64  `json:"chain_id"`
	ManifestURL  string `json:"manifest_url"`
	ManifestHash string `json:"manifest_hash"`
}

// ErrJobNotRetryable indicates a retry request for a job that is not in the
// failed status.
var ErrJobNotRetryable = apperrors.Wrap(apperrors.ErrConflict, "job is not in the failed status")

// jobUseCase handles job management business logic.
type jobUseCase struct {
	txManager database.TxManager
	jobRepo   JobRepository
	clock     clock.Clock
}

// NewJobUseCase creates a new JobUseCase.
func NewJobUseCase(txManager database.TxManager, jobRepo JobRepository, clk clock.Clock) JobUseCase {
	return &jobUseCase{
		txManager: txManager,
		jobRepo:   jobRepo,
		clock:     clk,
	}
}

// validateCreateJobInput validates the job creation input.
func (uc *jobUseCase) validateCreateJobInput(input CreateJobInput) error {
	err := validation.ValidateStruct(&input,
		validation.Field(&input.ChainID,
			validation.Required.Error("chain_id is required"),
		),
		validation.Field(&input.ManifestURL,
			validation.Required.Error("manifest_url is required"),
			appValidation.NotBlank,
			appValidation.HTTPURL,
			validation.Length(1, 2048).Error("manifest_url must be between 1 and 2048 characters"),
		),
		validation.Field(&input.ManifestHash,
			validation.Required.Error("manifest_hash is required"),
			appValidation.NotBlank,
			validation.Length(1, 255).Error("manifest_hash must be between 1 and 255 characters"),
		),
	)
	return appValidation.WrapValidationError(err)
}

// Create registers a new job at the start of the lifecycle. The first worker
// tick picks it up.
func (uc *jobUseCase) Create(ctx context.Context, input CreateJobInput) (*domain.Job, error) {
	if err := uc.validateCreateJobInput(input); err != nil {
		return nil, err
	}

	job, err := domain.NewJob(input.ChainID, input.ManifestURL, input.ManifestHash, uc.clock.Now().UTC())
	if err != nil {
		return nil, err
	}

	if err := uc.jobRepo.Create(ctx, job); err != nil {
		return nil, err
	}

	return job, nil
}

// GetByID retrieves a job by ID.
func (uc *jobUseCase) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	return uc.jobRepo.GetByID(ctx, id)
}

// List retrieves jobs ordered by creation time, newest first.
func (uc *jobUseCase) List(ctx context.Context, limit, offset int) ([]*domain.Job, error) {
	return uc.jobRepo.List(ctx, limit, offset)
}

// RequestCancel moves a job onto the cancellation branch. The worker performs
// the on-chain cancellation asynchronously.
func (uc *jobUseCase) RequestCancel(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	var job *domain.Job

	err := uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		var err error
		job, err = uc.jobRepo.GetByID(ctx, id)
		if err != nil {
			return err
		}

		if err := job.Transition(domain.StatusToCancel); err != nil {
			return err
		}
		job.WaitUntil = uc.clock.Now().UTC()

		return uc.jobRepo.Update(ctx, job)
	})
	if err != nil {
		return nil, err
	}

	return job, nil
}

// RetryFailed puts a failed job back onto the lifecycle graph with a clean
// retry counter. Jobs that already exist on chain resume from launched;
// everything else starts over from paid.
func (uc *jobUseCase) RetryFailed(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	var job *domain.Job

	err := uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		var err error
		job, err = uc.jobRepo.GetByID(ctx, id)
		if err != nil {
			return err
		}

		if job.Status != domain.StatusFailed {
			return ErrJobNotRetryable
		}

		if job.EscrowAddress != nil {
			job.Status = domain.StatusLaunched
		} else {
			job.Status = domain.StatusPaid
		}
		job.RetriesCount = 0
		job.FailureDetail = nil
		job.WaitUntil = uc.clock.Now().UTC()

		return uc.jobRepo.Update(ctx, job)
	})
	if err != nil {
		return nil, err
	}

	return job, nil
}
