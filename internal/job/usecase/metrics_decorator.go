package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/escrowd/internal/job/domain"
	"github.com/allisson/escrowd/internal/metrics"
)

// jobUseCaseWithMetrics decorates JobUseCase with metrics instrumentation.
type jobUseCaseWithMetrics struct {
	next    JobUseCase
	metrics metrics.BusinessMetrics
}

// NewJobUseCaseWithMetrics wraps a JobUseCase with metrics recording.
func NewJobUseCaseWithMetrics(useCase JobUseCase, m metrics.BusinessMetrics) JobUseCase {
	return &jobUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

func (j *jobUseCaseWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	j.metrics.RecordOperation(ctx, "job", operation, status)
	j.metrics.RecordDuration(ctx, "job", operation, time.Since(start), status)
}

// Create records metrics for job creation operations.
func (j *jobUseCaseWithMetrics) Create(ctx context.Context, input CreateJobInput) (*domain.Job, error) {
	start := time.Now()
	job, err := j.next.Create(ctx, input)
	j.record(ctx, "job_create", start, err)
	return job, err
}

// GetByID records metrics for job retrieval operations.
func (j *jobUseCaseWithMetrics) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	start := time.Now()
	job, err := j.next.GetByID(ctx, id)
	j.record(ctx, "job_get", start, err)
	return job, err
}

// List records metrics for job listing operations.
func (j *jobUseCaseWithMetrics) List(ctx context.Context, limit, offset int) ([]*domain.Job, error) {
	start := time.Now()
	jobs, err := j.next.List(ctx, limit, offset)
	j.record(ctx, "job_list", start, err)
	return jobs, err
}

// RequestCancel records metrics for cancellation requests.
func (j *jobUseCaseWithMetrics) RequestCancel(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	start := time.Now()
	job, err := j.next.RequestCancel(ctx, id)
	j.record(ctx, "job_cancel", start, err)
	return job, err
}

// RetryFailed records metrics for operator retry operations.
func (j *jobUseCaseWithMetrics) RetryFailed(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	start := time.Now()
	job, err := j.next.RetryFailed(ctx, id)
	j.record(ctx, "job_retry", start, err)
	return job, err
}
