// Package repository provides data persistence implementations for escrow jobs.
// Repositories support both PostgreSQL and MySQL.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/allisson/escrowd/internal/database"
	apperrors "github.com/allisson/escrowd/internal/errors"
	"github.com/allisson/escrowd/internal/job/domain"
)

// PostgreSQLJobRepository handles job persistence for PostgreSQL.
type PostgreSQLJobRepository struct {
	db *sql.DB
}

// NewPostgreSQLJobRepository creates a new PostgreSQLJobRepository.
func NewPostgreSQLJobRepository(db *sql.DB) *PostgreSQLJobRepository {
	return &PostgreSQLJobRepository{
		db: db,
	}
}

// Create inserts a new job.
func (r *PostgreSQLJobRepository) Create(ctx context.Context, job *domain.Job) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO jobs (id, chain_id, escrow_address, status, manifest_url, manifest_hash,
			  reputation_oracle, exchange_oracle, recording_oracle, retries_count, wait_until,
			  failure_detail, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())`

	_, err := querier.ExecContext(ctx, query, job.ID, job.ChainID, job.EscrowAddress, job.Status,
		job.ManifestURL, job.ManifestHash, job.ReputationOracle, job.ExchangeOracle,
		job.RecordingOracle, job.RetriesCount, job.WaitUntil, job.FailureDetail)
	if err != nil {
		// Check for unique constraint violation (duplicate chain_id + escrow_address)
		if isPostgreSQLUniqueViolation(err) {
			return domain.ErrJobAlreadyExists
		}
		return apperrors.Wrap(err, "failed to create job")
	}
	return nil
}

// GetByID retrieves a job by ID.
func (r *PostgreSQLJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, chain_id, escrow_address, status, manifest_url, manifest_hash,
			  reputation_oracle, exchange_oracle, recording_oracle, retries_count, wait_until,
			  failure_detail, created_at, updated_at
			  FROM jobs WHERE id = $1`

	var job domain.Job
	err := querier.QueryRowContext(ctx, query, id).Scan(
		&job.ID, &job.ChainID, &job.EscrowAddress, &job.Status, &job.ManifestURL,
		&job.ManifestHash, &job.ReputationOracle, &job.ExchangeOracle, &job.RecordingOracle,
		&job.RetriesCount, &job.WaitUntil, &job.FailureDetail, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get job by id")
	}

	return &job, nil
}

// GetByChainEscrow retrieves a job by its on-chain identity.
func (r *PostgreSQLJobRepository) GetByChainEscrow(
	ctx context.Context,
	chainID int64,
	escrowAddress string,
) (*domain.Job, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, chain_id, escrow_address, status, manifest_url, manifest_hash,
			  reputation_oracle, exchange_oracle, recording_oracle, retries_count, wait_until,
			  failure_detail, created_at, updated_at
			  FROM jobs WHERE chain_id = $1 AND escrow_address = $2`

	var job domain.Job
	err := querier.QueryRowContext(ctx, query, chainID, escrowAddress).Scan(
		&job.ID, &job.ChainID, &job.EscrowAddress, &job.Status, &job.ManifestURL,
		&job.ManifestHash, &job.ReputationOracle, &job.ExchangeOracle, &job.RecordingOracle,
		&job.RetriesCount, &job.WaitUntil, &job.FailureDetail, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get job by chain and escrow address")
	}

	return &job, nil
}

// List retrieves jobs ordered by creation time, newest first.
func (r *PostgreSQLJobRepository) List(ctx context.Context, limit, offset int) ([]*domain.Job, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, chain_id, escrow_address, status, manifest_url, manifest_hash,
			  reputation_oracle, exchange_oracle, recording_oracle, retries_count, wait_until,
			  failure_detail, created_at, updated_at
			  FROM jobs
			  ORDER BY created_at DESC
			  LIMIT $1 OFFSET $2`

	rows, err := querier.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list jobs")
	}
	defer rows.Close() //nolint:errcheck

	return scanJobs(rows)
}

// ListActionable retrieves due jobs in the given statuses, locking the returned
// rows so concurrent workers skip them.
func (r *PostgreSQLJobRepository) ListActionable(
	ctx context.Context,
	statuses []domain.Status,
	now time.Time,
	limit int,
) ([]*domain.Job, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, chain_id, escrow_address, status, manifest_url, manifest_hash,
			  reputation_oracle, exchange_oracle, recording_oracle, retries_count, wait_until,
			  failure_detail, created_at, updated_at
			  FROM jobs
			  WHERE status = ANY($1) AND wait_until <= $2
			  ORDER BY wait_until ASC
			  LIMIT $3
			  FOR UPDATE SKIP LOCKED`

	statusValues := make([]string, len(statuses))
	for i, status := range statuses {
		statusValues[i] = string(status)
	}

	rows, err := querier.QueryContext(ctx, query, pq.Array(statusValues), now, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list actionable jobs")
	}
	defer rows.Close() //nolint:errcheck

	return scanJobs(rows)
}

// Update persists the current state of a job.
func (r *PostgreSQLJobRepository) Update(ctx context.Context, job *domain.Job) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE jobs
			  SET escrow_address = $1, status = $2, reputation_oracle = $3, exchange_oracle = $4,
			      recording_oracle = $5, retries_count = $6, wait_until = $7, failure_detail = $8,
			      updated_at = NOW()
			  WHERE id = $9`

	_, err := querier.ExecContext(ctx, query, job.EscrowAddress, job.Status, job.ReputationOracle,
		job.ExchangeOracle, job.RecordingOracle, job.RetriesCount, job.WaitUntil,
		job.FailureDetail, job.ID)
	if err != nil {
		return apperrors.Wrap(err, "failed to update job")
	}
	return nil
}

// Claim marks a job as taken by the current worker pass. The update matches on
// the row version (updated_at) the caller listed and bumps it, so only one of
// several workers holding the same listing wins; the losers see zero rows.
func (r *PostgreSQLJobRepository) Claim(
	ctx context.Context,
	job *domain.Job,
	now time.Time,
) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE jobs
			  SET updated_at = NOW()
			  WHERE id = $1 AND status = $2 AND wait_until <= $3 AND updated_at = $4`

	result, err := querier.ExecContext(ctx, query, job.ID, job.Status, now, job.UpdatedAt)
	if err != nil {
		return false, apperrors.Wrap(err, "failed to claim job")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, apperrors.Wrap(err, "failed to read claimed rows")
	}

	return affected == 1, nil
}

// scanJobs reads job rows into domain entities.
func scanJobs(rows *sql.Rows) ([]*domain.Job, error) {
	var jobs []*domain.Job
	for rows.Next() {
		var job domain.Job

		err := rows.Scan(
			&job.ID, &job.ChainID, &job.EscrowAddress, &job.Status, &job.ManifestURL,
			&job.ManifestHash, &job.ReputationOracle, &job.ExchangeOracle, &job.RecordingOracle,
			&job.RetriesCount, &job.WaitUntil, &job.FailureDetail, &job.CreatedAt, &job.UpdatedAt,
		)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan job row")
		}

		jobs = append(jobs, &job)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate job rows")
	}

	return jobs, nil
}

// isPostgreSQLUniqueViolation checks if the error is a PostgreSQL unique constraint violation
func isPostgreSQLUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	errMsg := strings.ToLower(err.Error())
	// PostgreSQL: "duplicate key value violates unique constraint" or "pq: duplicate key"
	return strings.Contains(errMsg, "duplicate key") || strings.Contains(errMsg, "unique constraint")
}
