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

// MySQLWebhookRepository handles outbound webhook persistence for MySQL.
type MySQLWebhookRepository struct {
	db *sql.DB
}

// NewMySQLWebhookRepository creates a new MySQLWebhookRepository.
func NewMySQLWebhookRepository(db *sql.DB) *MySQLWebhookRepository {
	return &MySQLWebhookRepository{
		db: db,
	}
}

// CreateIfNotExists inserts a webhook unless one already exists for the same
// (chain_id, escrow_address, event_type, oracle_address). Returns true when a
// row was inserted, false when the event was already recorded.
func (r *MySQLWebhookRepository) CreateIfNotExists(ctx context.Context, webhook *domain.Webhook) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT IGNORE INTO webhooks (id, chain_id, escrow_address, event_type, oracle_type,
			  oracle_address, status, has_signature, retries_count, wait_until, failure_detail,
			  created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NOW(), NOW())`

	// Convert UUID to bytes for MySQL BINARY(16)
	uuidBytes, err := webhook.ID.MarshalBinary()
	if err != nil {
		return false, apperrors.Wrap(err, "failed to marshal UUID")
	}

	result, err := querier.ExecContext(ctx, query, uuidBytes, webhook.ChainID,
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
func (r *MySQLWebhookRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Webhook, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, chain_id, escrow_address, event_type, oracle_type, oracle_address,
			  status, has_signature, retries_count, wait_until, failure_detail, created_at, updated_at
			  FROM webhooks WHERE id = ?`

	uuidBytes, err := id.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal UUID")
	}

	webhook, err := scanMySQLWebhookRow(querier.QueryRowContext(ctx, query, uuidBytes))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrWebhookNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get webhook by id")
	}

	return webhook, nil
}

// GetPending retrieves due pending webhooks oldest first, locking the returned
// rows for the enclosing transaction.
func (r *MySQLWebhookRepository) GetPending(
	ctx context.Context,
	now time.Time,
	limit int,
) ([]*domain.Webhook, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, chain_id, escrow_address, event_type, oracle_type, oracle_address,
			  status, has_signature, retries_count, wait_until, failure_detail, created_at, updated_at
			  FROM webhooks
			  WHERE status = ? AND wait_until <= ?
			  ORDER BY wait_until ASC
			  LIMIT ?
			  FOR UPDATE SKIP LOCKED`

	rows, err := querier.QueryContext(ctx, query, domain.StatusPending, now, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to get pending webhooks")
	}
	defer rows.Close() //nolint:errcheck

	var webhooks []*domain.Webhook
	for rows.Next() {
		webhook, err := scanMySQLWebhookRow(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan webhook row")
		}
		webhooks = append(webhooks, webhook)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate webhook rows")
	}

	return webhooks, nil
}

// Update persists the current state of a webhook.
func (r *MySQLWebhookRepository) Update(ctx context.Context, webhook *domain.Webhook) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE webhooks
			  SET status = ?, retries_count = ?, wait_until = ?, failure_detail = ?,
			      updated_at = NOW()
			  WHERE id = ?`

	uuidBytes, err := webhook.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal UUID")
	}

	_, err = querier.ExecContext(ctx, query, webhook.Status, webhook.RetriesCount,
		webhook.WaitUntil, webhook.FailureDetail, uuidBytes)
	if err != nil {
		return apperrors.Wrap(err, "failed to update webhook")
	}
	return nil
}

// ResetFailed moves a failed webhook back to pending for another round of
// delivery attempts. Returns false when the webhook is not in the failed status.
func (r *MySQLWebhookRepository) ResetFailed(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE webhooks
			  SET status = ?, retries_count = 0, wait_until = ?, failure_detail = NULL,
			      updated_at = NOW()
			  WHERE id = ? AND status = ?`

	uuidBytes, err := id.MarshalBinary()
	if err != nil {
		return false, apperrors.Wrap(err, "failed to marshal UUID")
	}

	result, err := querier.ExecContext(ctx, query, domain.StatusPending, now, uuidBytes, domain.StatusFailed)
	if err != nil {
		return false, apperrors.Wrap(err, "failed to reset webhook")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, apperrors.Wrap(err, "failed to read reset rows")
	}

	return affected == 1, nil
}

// rowScanner abstracts sql.Row and sql.Rows for shared scan logic.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanMySQLWebhookRow reads one webhook row, converting the BINARY(16) id back to a UUID.
func scanMySQLWebhookRow(row rowScanner) (*domain.Webhook, error) {
	var webhook domain.Webhook
	var idBytes []byte

	err := row.Scan(
		&idBytes, &webhook.ChainID, &webhook.EscrowAddress, &webhook.EventType,
		&webhook.OracleType, &webhook.OracleAddress, &webhook.Status, &webhook.HasSignature,
		&webhook.RetriesCount, &webhook.WaitUntil, &webhook.FailureDetail,
		&webhook.CreatedAt, &webhook.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := webhook.ID.UnmarshalBinary(idBytes); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal UUID")
	}

	return &webhook, nil
}
