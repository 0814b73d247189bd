// Package repository provides data persistence implementations for webhook
// outbox and incoming webhook entities. Repositories support both PostgreSQL
// and MySQL.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/escrowd/internal/database"
	apperrors "github.com/allisson/escrowd/internal/errors"
	"github.com/allisson/escrowd/internal/webhook/domain"
)

// PostgreSQLWebhookRepository handles outbound webhook persistence for PostgreSQL.
type PostgreSQLWebhookRepository struct {
	db *sql.DB
}

// NewPostgreSQLWebhookRepository creates a new PostgreSQLWebhookRepository.
func NewPostgreSQLWebhookRepository(db *sql.DB) *PostgreSQLWebhookRepository {
	return &PostgreSQLWebhookRepository{
		db: db,
	}
}

// CreateIfNotExists inserts a webhook unless one already exists for the same
// (chain_id, escrow_address, event_type, oracle_address). Returns true when a
// row was inserted, false when the event was already recorded.
func (r *PostgreSQLWebhookRepository) CreateIfNotExists(ctx context.Context, webhook *domain.Webhook) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO webhooks (id, chain_id, escrow_address, event_type, oracle_type,
			  oracle_address, status, has_signature, retries_count, wait_until, failure_detail,
			  created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
			  ON CONFLICT (chain_id, escrow_address, event_type, oracle_address) DO NOTHING`

	result, err := querier.ExecContext(ctx, query, webhook.ID, webhook.ChainID,
		webhook.EscrowAddress, webhook.EventType, webhook.OracleType, webhook.OracleAddress,
		webhook.Status, webhook.HasSignature, webhook.RetriesCount, webhook.WaitUntil,
		webhook.FailureDetail)
	if err != nil {
		return false, apperrors.Wrap(err, "failed to create webhook")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, apperrors.Wrap(err, "failed to read inserted rows")
	}

	return affected == 1, nil
}

// GetByID retrieves a webhook by ID.
func (r *PostgreSQLWebhookRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Webhook, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, chain_id, escrow_address, event_type, oracle_type, oracle_address,
			  status, has_signature, retries_count, wait_until, failure_detail, created_at, updated_at
			  FROM webhooks WHERE id = $1`

	var webhook domain.Webhook
	err := querier.QueryRowContext(ctx, query, id).Scan(
		&webhook.ID, &webhook.ChainID, &webhook.EscrowAddress, &webhook.EventType,
		&webhook.OracleType, &webhook.OracleAddress, &webhook.Status, &webhook.HasSignature,
		&webhook.RetriesCount, &webhook.WaitUntil, &webhook.FailureDetail,
		&webhook.CreatedAt, &webhook.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrWebhookNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get webhook by id")
	}

	return &webhook, nil
}

// GetPending retrieves due pending webhooks oldest first, locking the returned
// rows so concurrent workers skip them.
func (r *PostgreSQLWebhookRepository) GetPending(
	ctx context.Context,
	now time.Time,
	limit int,
) ([]*domain.Webhook, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, chain_id, escrow_address, event_type, oracle_type, oracle_address,
			  status, has_signature, retries_count, wait_until, failure_detail, created_at, updated_at
			  FROM webhooks
			  WHERE status = $1 AND wait_until <= $2
			  ORDER BY wait_until ASC
			  LIMIT $3
			  FOR UPDATE SKIP LOCKED`

	rows, err := querier.QueryContext(ctx, query, domain.StatusPending, now, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to get pending webhooks")
	}
	defer rows.Close() //nolint:errcheck

	var webhooks []*domain.Webhook
	for rows.Next() {
		var webhook domain.Webhook

		err := rows.Scan(
			&webhook.ID, &webhook.ChainID, &webhook.EscrowAddress, &webhook.EventType,
			&webhook.OracleType, &webhook.OracleAddress, &webhook.Status, &webhook.HasSignature,
			&webhook.RetriesCount, &webhook.WaitUntil, &webhook.FailureDetail,
			&webhook.CreatedAt, &webhook.UpdatedAt,
		)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan webhook row")
		}

		webhooks = append(webhooks, &webhook)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate webhook rows")
	}

	return webhooks, nil
}

// Update persists the current state of a webhook.
func (r *PostgreSQLWebhookRepository) Update(ctx context.Context, webhook *domain.Webhook) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE webhooks
			  SET status = $1, retries_count = $2, wait_until = $3, failure_detail = $4,
			      updated_at = NOW()
			  WHERE id = $5`

	_, err := querier.ExecContext(ctx, query, webhook.Status, webhook.RetriesCount,
		webhook.WaitUntil, webhook.FailureDetail, webhook.ID)
	if err != nil {
		return apperrors.Wrap(err, "failed to update webhook")
	}
	return nil
}

// ResetFailed moves a failed webhook back to pending for another round of
// delivery attempts. Returns false when the webhook is not in the failed status.
func (r *PostgreSQLWebhookRepository) ResetFailed(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE webhooks
			  SET status = $1, retries_count = 0, wait_until = $2, failure_detail = NULL,
			      updated_at = NOW()
			  WHERE id = $3 AND status = $4`

	result, err := querier.ExecContext(ctx, query, domain.StatusPending, now, id, domain.StatusFailed)
	if err != nil {
		return false, apperrors.Wrap(err, "failed to reset webhook")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, apperrors.Wrap(err, "failed to read reset rows")
	}

	return affected == 1, nil
}
