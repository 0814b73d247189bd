package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/escrowd/internal/database"
	apperrors "github.com/allisson/escrowd/internal/errors"
	"github.com/allisson/escrowd/internal/job/domain"
)

// MySQLJobRepository handles job persistence for MySQL.
type MySQLJobRepository struct {
	db *sql.DB
}

// NewMySQLJobRepository creates a new MySQLJobRepository.
func NewMySQLJobRepository(db *sql.DB) *MySQLJobRepository {
	return &MySQLJobRepository{
		db: db,
	}
}

// Create inserts a new job.
func (r *MySQLJobRepository) Create(ctx context.Context, job *domain.Job) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO jobs (id, chain_id, escrow_address, status, manifest_url, manifest_hash,
			  reputation_oracle, exchange_oracle, recording_oracle, retries_count, wait_until,
			  failure_detail, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NOW(), NOW())`

	// Convert UUID to bytes for MySQL BINARY(16)
	uuidBytes, err := job.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal UUID")
	}

	_, err = querier.ExecContext(ctx, query, uuidBytes, job.ChainID, job.EscrowAddress, job.Status,
		job.ManifestURL, job.ManifestHash, job.ReputationOracle, job.ExchangeOracle,
		job.RecordingOracle, job.RetriesCount, job.WaitUntil, job.FailureDetail)
	if err != nil {
		// Check for unique constraint violation (duplicate chain_id + escrow_address)
		if isMySQLUniqueViolation(err) {
			return domain.ErrJobAlreadyExists
		}
		return apperrors.Wrap(err, "failed to create job")
	}
	return nil
}

// GetByID retrieves a job by ID.
func (r *MySQLJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, chain_id, escrow_address, status, manifest_url, manifest_hash,
			  reputation_oracle, exchange_oracle, recording_oracle, retries_count, wait_until,
			  failure_detail, created_at, updated_at
			  FROM jobs WHERE id = ?`

	uuidBytes, err := id.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal UUID")
	}

	job, err := scanMySQLJobRow(querier.QueryRowContext(ctx, query, uuidBytes))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get job by id")
	}

	return job, nil
}

// GetByChainEscrow retrieves a job by its on-chain identity.
func (r *MySQLJobRepository) GetByChainEscrow(
	ctx context.Context,
	chainID int64,
	escrowAddress string,
) (*domain.Job, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, chain_id, escrow_address, status, manifest_url, manifest_hash,
			  reputation_oracle, exchange_oracle, recording_oracle, retries_count, wait_until,
			  failure_detail, created_at, updated_at
			  FROM jobs WHERE chain_id = ? AND escrow_address = ?`

	job, err := scanMySQLJobRow(querier.QueryRowContext(ctx, query, chainID, escrowAddress))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get job by chain and escrow address")
	}

	return job, nil
}

// List retrieves jobs ordered by creation time, newest first.
func (r *MySQLJobRepository) List(ctx context.Context, limit, offset int) ([]*domain.Job, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, chain_id, escrow_address, status, manifest_url, manifest_hash,
			  reputation_oracle, exchange_oracle, recording_oracle, retries_count, wait_until,
			  failure_detail, created_at, updated_at
			  FROM jobs
			  ORDER BY created_at DESC
			  LIMIT ? OFFSET ?`

	rows, err := querier.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list jobs")
	}
	defer rows.Close() //nolint:errcheck

	return scanMySQLJobRows(rows)
}

// ListActionable retrieves due jobs in the given statuses, locking the returned
// rows for the enclosing transaction.
func (r *MySQLJobRepository) ListActionable(
	ctx context.Context,
	statuses []domain.Status,
	now time.Time,
	limit int,
) ([]*domain.Job, error) {
	querier := database.GetTx(ctx, r.db)

	placeholders := strings.Repeat("?, ", len(statuses))
	placeholders = strings.TrimSuffix(placeholders, ", ")

	query := `SELECT id, chain_id, escrow_address, status, manifest_url, manifest_hash,
			  reputation_oracle, exchange_oracle, recording_oracle, retries_count, wait_until,
			  failure_detail, created_at, updated_at
			  FROM jobs
			  WHERE status IN (` + placeholders + `) AND wait_until <= ?
			  ORDER BY wait_until ASC
			  LIMIT ?
			  FOR UPDATE SKIP LOCKED`

	args := make([]any, 0, len(statuses)+2)
	for _, status := range statuses {
		args = append(args, string(status))
	}
	args = append(args, now, limit)

	rows, err := querier.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list actionable jobs")
	}
	defer rows.Close() //nolint:errcheck

	return scanMySQLJobRows(rows)
}

// Update persists the current state of a job.
func (r *MySQLJobRepository) Update(ctx context.Context, job *domain.Job) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE jobs
			  SET escrow_address = ?, status = ?, reputation_oracle = ?, exchange_oracle = ?,
			      recording_oracle = ?, retries_count = ?, wait_until = ?, failure_detail = ?,
			      updated_at = NOW()
			  WHERE id = ?`

	uuidBytes, err := job.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal UUID")
	}

	_, err = querier.ExecContext(ctx, query, job.EscrowAddress, job.Status, job.ReputationOracle,
		job.ExchangeOracle, job.RecordingOracle, job.RetriesCount, job.WaitUntil,
		job.FailureDetail, uuidBytes)
	if err != nil {
		return apperrors.Wrap(err, "failed to update job")
	}
	return nil
}

// Claim marks a job as taken by the current worker pass. The update matches on
// the row version (updated_at) the caller listed and bumps it, so only one of
// several workers holding the same listing wins; the losers see zero rows.
// NOW(6) keeps the bumped version distinct within the same second.
func (r *MySQLJobRepository) Claim(
	ctx context.Context,
	job *domain.Job,
	now time.Time,
) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE jobs
			  SET updated_at = NOW(6)
			  WHERE id = ? AND status = ? AND wait_until <= ? AND updated_at = ?`

	uuidBytes, err := job.ID.MarshalBinary()
	if err != nil {
		return false, apperrors.Wrap(err, "failed to marshal UUID")
	}

	result, err := querier.ExecContext(ctx, query, uuidBytes, job.Status, now, job.UpdatedAt)
	if err != nil {
		return false, apperrors.Wrap(err, "failed to claim job")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, apperrors.Wrap(err, "failed to read claimed rows")
	}

	return affected == 1, nil
}

// isMySQLUniqueViolation checks if the error is a MySQL unique constraint violation
func isMySQLUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	errMsg := strings.ToLower(err.Error())
	// MySQL: "Error 1062 (23000): Duplicate entry ... for key ..."
	return strings.Contains(errMsg, "error 1062") || strings.Contains(errMsg, "duplicate entry")
}

// rowScanner abstracts sql.Row and sql.Rows for shared scan logic.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanMySQLJobRow reads one job row, converting the BINARY(16) id back to a UUID.
func scanMySQLJobRow(row rowScanner) (*domain.Job, error) {
	var job domain.Job
	var idBytes []byte

	err := row.Scan(
		&idBytes, &job.ChainID, &job.EscrowAddress, &job.Status, &job.ManifestURL,
		&job.ManifestHash, &job.ReputationOracle, &job.ExchangeOracle, &job.RecordingOracle,
		&job.RetriesCount, &job.WaitUntil, &job.FailureDetail, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := job.ID.UnmarshalBinary(idBytes); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal UUID")
	}

	return &job, nil
}

// scanMySQLJobRows reads job rows into domain entities.
func scanMySQLJobRows(rows *sql.Rows) ([]*domain.Job, error) {
	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanMySQLJobRow(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan job row")
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate job rows")
	}

	return jobs, nil
}
