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

// MySQLIncomingWebhookRepository handles incoming webhook persistence for MySQL.
type MySQLIncomingWebhookRepository struct {
	db *sql.DB
}

// NewMySQLIncomingWebhookRepository creates a new MySQLIncomingWebhookRepository.
func NewMySQLIncomingWebhookRepository(db *sql.DB) *MySQLIncomingWebhookRepository {
	return &MySQLIncomingWebhookRepository{
		db: db,
	}
}

// CreateIfNotExists inserts an incoming webhook unless the same event was
// already received. Returns true when a row was inserted.
func (r *MySQLIncomingWebhookRepository) CreateIfNotExists(
	ctx context.Context,
	incoming *domain.IncomingWebhook,
) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT IGNORE INTO incoming_webhooks (id, chain_id, escrow_address, event_type,
			  oracle_address, status, retries_count, wait_until, failure_detail, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NOW(), NOW())`

	// Convert UUID to bytes for MySQL BINARY(16)
	uuidBytes, err := incoming.ID.MarshalBinary()
	if err != nil {
		return false, apperrors.Wrap(err, "failed to marshal UUID")
	}

	result, err := querier.ExecContext(ctx, query, uuidBytes, incoming.ChainID,
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
func (r *MySQLIncomingWebhookRepository) GetByID(
	ctx context.Context,
	id uuid.UUID,
) (*domain.IncomingWebhook, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, chain_id, escrow_address, event_type, oracle_address, status,
			  retries_count, wait_until, failure_detail, created_at, updated_at
			  FROM incoming_webhooks WHERE id = ?`

	uuidBytes, err := id.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal UUID")
	}

	incoming, err := scanMySQLIncomingWebhookRow(querier.QueryRowContext(ctx, query, uuidBytes))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrWebhookNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get incoming webhook by id")
	}

	return incoming, nil
}

// GetPending retrieves due pending incoming webhooks oldest first, locking the
// returned rows for the enclosing transaction.
func (r *MySQLIncomingWebhookRepository) GetPending(
	ctx context.Context,
	now time.Time,
	limit int,
) ([]*domain.IncomingWebhook, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, chain_id, escrow_address, event_type, oracle_address, status,
			  retries_count, wait_until, failure_detail, created_at, updated_at
			  FROM incoming_webhooks
			  WHERE status = ? AND wait_until <= ?
			  ORDER BY wait_until ASC
			  LIMIT ?
			  FOR UPDATE SKIP LOCKED`

	rows, err := querier.QueryContext(ctx, query, domain.StatusPending, now, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to get pending incoming webhooks")
	}
	defer rows.Close() //nolint:errcheck

	var webhooks []*domain.IncomingWebhook
	for rows.Next() {
		incoming, err := scanMySQLIncomingWebhookRow(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan incoming webhook row")
		}
		webhooks = append(webhooks, incoming)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate incoming webhook rows")
	}

	return webhooks, nil
}

// Update persists the current state of an incoming webhook.
func (r *MySQLIncomingWebhookRepository) Update(ctx context.Context, incoming *domain.IncomingWebhook) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE incoming_webhooks
			  SET status = ?, retries_count = ?, wait_until = ?, failure_detail = ?,
			      updated_at = NOW()
			  WHERE id = ?`

	uuidBytes, err := incoming.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal UUID")
	}

	_, err = querier.ExecContext(ctx, query, incoming.Status, incoming.RetriesCount,
		incoming.WaitUntil, incoming.FailureDetail, uuidBytes)
	if err != nil {
		return apperrors.Wrap(err, "failed to update incoming webhook")
	}
	return nil
}

// scanMySQLIncomingWebhookRow reads one incoming webhook row, converting the
// BINARY(16) id back to a UUID.
func scanMySQLIncomingWebhookRow(row rowScanner) (*domain.IncomingWebhook, error) {
	var incoming domain.IncomingWebhook
	var idBytes []byte

	err := row.Scan(
		&idBytes, &incoming.ChainID, &incoming.EscrowAddress, &incoming.EventType,
		&incoming.OracleAddress, &incoming.Status, &incoming.RetriesCount, &incoming.WaitUntil,
		&incoming.FailureDetail, &incoming.CreatedAt, &incoming.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := incoming.ID.UnmarshalBinary(idBytes); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal UUID")
	}

	return &incoming, nil
}
