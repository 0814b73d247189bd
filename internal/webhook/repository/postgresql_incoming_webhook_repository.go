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

// PostgreSQLIncomingWebhookRepository handles incoming webhook persistence for PostgreSQL.
type PostgreSQLIncomingWebhookRepository struct {
	db *sql.DB
}

// NewPostgreSQLIncomingWebhookRepository creates a new PostgreSQLIncomingWebhookRepository.
func NewPostgreSQLIncomingWebhookRepository(db *sql.DB) *PostgreSQLIncomingWebhookRepository {
	return &PostgreSQLIncomingWebhookRepository{
		db: db,
	}
}

// CreateIfNotExists inserts an incoming webhook unless the same event was
// already received. Returns true when a row was inserted.
func (r *PostgreSQLIncomingWebhookRepository) CreateIfNotExists(
	ctx context.Context,
	incoming *domain.IncomingWebhook,
) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO incoming_webhooks (id, chain_id, escrow_address, event_type,
			  oracle_address, status, retries_count, wait_until, failure_detail, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
			  ON CONFLICT (chain_id, escrow_address, event_type, oracle_address) DO NOTHING`

	result, err := querier.ExecContext(ctx, query, incoming.ID, incoming.ChainID,
		incoming.EscrowAddress, incoming.EventType, incoming.OracleAddress, incoming.Status,
		incoming.RetriesCount, incoming.WaitUntil, incoming.FailureDetail)
	if err != nil {
		return false, apperrors.Wrap(err, "failed to create incoming webhook")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, apperrors.Wrap(err, "failed to read inserted rows")
	}

	return affected == 1, nil
}

// GetByID retrieves an incoming webhook by ID.
func (r *PostgreSQLIncomingWebhookRepository) GetByID(
	ctx context.Context,
	id uuid.UUID,
) (*domain.IncomingWebhook, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, chain_id, escrow_address, event_type, oracle_address, status,
			  retries_count, wait_until, failure_detail, created_at, updated_at
			  FROM incoming_webhooks WHERE id = $1`

	var incoming domain.IncomingWebhook
	err := querier.QueryRowContext(ctx, query, id).Scan(
		&incoming.ID, &incoming.ChainID, &incoming.EscrowAddress, &incoming.EventType,
		&incoming.OracleAddress, &incoming.Status, &incoming.RetriesCount, &incoming.WaitUntil,
		&incoming.FailureDetail, &incoming.CreatedAt, &incoming.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrWebhookNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get incoming webhook by id")
	}

	return &incoming, nil
}

// GetPending retrieves due pending incoming webhooks oldest first, locking the
// returned rows so concurrent workers skip them.
func (r *PostgreSQLIncomingWebhookRepository) GetPending(
	ctx context.Context,
	now time.Time,
	limit int,
) ([]*domain.IncomingWebhook, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, chain_id, escrow_address, event_type, oracle_address, status,
			  retries_count, wait_until, failure_detail, created_at, updated_at
			  FROM incoming_webhooks
			  WHERE status = $1 AND wait_until <= $2
			  ORDER BY wait_until ASC
			  LIMIT $3
			  FOR UPDATE SKIP LOCKED`

	rows, err := querier.QueryContext(ctx, query, domain.StatusPending, now, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to get pending incoming webhooks")
	}
	defer rows.Close() //nolint:errcheck

	var webhooks []*domain.IncomingWebhook
	for rows.Next() {
		var incoming domain.IncomingWebhook

		err := rows.Scan(
			&incoming.ID, &incoming.ChainID, &incoming.EscrowAddress, &incoming.EventType,
			&incoming.OracleAddress, &incoming.Status, &incoming.RetriesCount, &incoming.WaitUntil,
			&incoming.FailureDetail, &incoming.CreatedAt, &incoming.UpdatedAt,
		)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan incoming webhook row")
		}

		webhooks = append(webhooks, &incoming)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate incoming webhook rows")
	}

	return webhooks, nil
}

// Update persists the current state of an incoming webhook.
func (r *PostgreSQLIncomingWebhookRepository) Update(ctx context.Context, incoming *domain.IncomingWebhook) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE incoming_webhooks
			  SET status = $1, retries_count = $2, wait_until = $3, failure_detail = $4,
			      updated_at = NOW()
			  WHERE id = $5`

	_, err := querier.ExecContext(ctx, query, incoming.Status, incoming.RetriesCount,
		incoming.WaitUntil, incoming.FailureDetail, incoming.ID)
	if err != nil {
		return apperrors.Wrap(err, "failed to update incoming webhook")
	}
	return nil
}
