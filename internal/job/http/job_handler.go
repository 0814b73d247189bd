// Package http provides HTTP handlers for job management operations.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/allisson/escrowd/internal/httputil"
	"github.com/allisson/escrowd/internal/job/domain"
	"github.com/allisson/escrowd/internal/job/usecase"
)

// JobHandler handles HTTP requests for job management operations.
type JobHandler struct {
	jobUseCase usecase.JobUseCase
	logger     *slog.Logger
}

// NewJobHandler creates a new job handler.
func NewJobHandler(jobUseCase usecase.JobUseCase, logger *slog.Logger) *JobHandler {
	return &JobHandler{
		jobUseCase: jobUseCase,
		logger:     logger,
	}
}

// JobResponse represents a job in API responses.
type JobResponse struct {
	ID               uuid.UUID `json:"id"`
	ChainID          int64     `json:"chain_id"`
	EscrowAddress    *string   `json:"escrow_address"`
	Status           string    `json:"status"`
	ManifestURL      string    `json:"manifest_url"`
	ManifestHash     string    `json:"manifest_hash"`
	ReputationOracle *string   `json:"reputation_oracle"`
	ExchangeOracle   *string   `json:"exchange_oracle"`
	RecordingOracle  *string   `json:"recording_oracle"`
	RetriesCount     int       `json:"retries_count"`
	WaitUntil        time.Time `json:"wait_until"`
	FailureDetail    *string   `json:"failure_detail"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// toJobResponse converts a domain job to its API representation.
func toJobResponse(job *domain.Job) JobResponse {
	return JobResponse{
		ID:               job.ID,
		ChainID:          job.ChainID,
		EscrowAddress:    job.EscrowAddress,
		Status:           string(job.Status),
		ManifestURL:      job.ManifestURL,
		ManifestHash:     job.ManifestHash,
		ReputationOracle: job.ReputationOracle,
		ExchangeOracle:   job.ExchangeOracle,
		RecordingOracle:  job.RecordingOracle,
		RetriesCount:     job.RetriesCount,
		WaitUntil:        job.WaitUntil,
		FailureDetail:    job.FailureDetail,
		CreatedAt:        job.CreatedAt,
		UpdatedAt:        job.UpdatedAt,
	}
}

// Create handles POST /v1/jobs.
func (h *JobHandler) Create(c *gin.Context) {
	var input usecase.CreateJobInput
	if err := c.ShouldBindJSON(&input); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	job, err := h.jobUseCase.Create(c.Request.Context(), input)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusCreated, toJobResponse(job))
}

// Get handles GET /v1/jobs/:id.
func (h *JobHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	job, err := h.jobUseCase.GetByID(c.Request.Context(), id)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, toJobResponse(job))
}

// List handles GET /v1/jobs.
func (h *JobHandler) List(c *gin.Context) {
	offset, limit, err := httputil.ParsePagination(c)
	if err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	jobs, err := h.jobUseCase.List(c.Request.Context(), limit, offset)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	responses := make([]JobResponse, 0, len(jobs))
	for _, job := range jobs {
		responses = append(responses, toJobResponse(job))
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":   responses,
		"limit":  limit,
		"offset": offset,
	})
}

// Cancel handles POST /v1/jobs/:id/cancel.
func (h *JobHandler) Cancel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	job, err := h.jobUseCase.RequestCancel(c.Request.Context(), id)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, toJobResponse(job))
}
