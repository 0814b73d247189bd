// Package escrow defines the boundary to the escrow gateway service that fronts
// all on-chain and moderation operations. The worker only depends on the narrow
// Gateway interface, so tests run against fakes.
package escrow

import (
	"context"

	"github.com/google/uuid"
)

// ModerationVerdict is the outcome of content moderation for a job manifest.
type ModerationVerdict string

const (
	ModerationApproved   ModerationVerdict = "approved"
	ModerationRejected   ModerationVerdict = "rejected"
	ModerationInProgress ModerationVerdict = "in_progress"
)

// AbuseVerdict is the outcome of the abuse scan for a job manifest.
type AbuseVerdict string

const (
	AbuseClean    AbuseVerdict = "clean"
	AbuseFlagged  AbuseVerdict = "flagged"
	AbuseInReview AbuseVerdict = "in_review"
)

// Status is the on-chain escrow contract status as reported by the gateway.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPartial   Status = "partial"
	StatusPaid      Status = "paid"
	StatusComplete  Status = "complete"
	StatusCancelled Status = "cancelled"
)

// LaunchResult carries the identifiers produced by escrow creation.
type LaunchResult struct {
	EscrowAddress    string `json:"escrow_address"`
	ReputationOracle string `json:"reputation_oracle"`
	ExchangeOracle   string `json:"exchange_oracle"`
	RecordingOracle  string `json:"recording_oracle"`
}

// Gateway is the capability interface over the external escrow SDK. Every
// method is a remote call: failures are recoverable and drive retry/backoff in
// the worker, not a crash.
type Gateway interface {
	// StartModeration submits a job manifest for content moderation.
	StartModeration(ctx context.Context, jobID uuid.UUID, manifestURL string) error

	// GetModerationVerdict fetches the moderation outcome for a job.
	GetModerationVerdict(ctx context.Context, jobID uuid.UUID) (ModerationVerdict, error)

	// ScanForAbuse submits a job manifest for abuse scanning.
	ScanForAbuse(ctx context.Context, jobID uuid.UUID, manifestURL string) error

	// GetAbuseVerdict fetches the abuse scan outcome for a job.
	GetAbuseVerdict(ctx context.Context, jobID uuid.UUID) (AbuseVerdict, error)

	// CreateEscrow creates and funds the escrow contract on chain, returning the
	// escrow address and the oracle addresses configured on it.
	CreateEscrow(ctx context.Context, chainID int64, manifestURL, manifestHash string) (*LaunchResult, error)

	// GetEscrowStatus fetches the current on-chain escrow status.
	GetEscrowStatus(ctx context.Context, chainID int64, escrowAddress string) (Status, error)

	// CompleteEscrow finalizes the escrow on chain.
	CompleteEscrow(ctx context.Context, chainID int64, escrowAddress string) error

	// CancelEscrow requests cancellation of the escrow on chain. Transactions in
	// flight cannot be aborted; the caller polls GetEscrowStatus afterwards.
	CancelEscrow(ctx context.Context, chainID int64, escrowAddress string) error

	// GetWebhookURL resolves an oracle's registered webhook URL from the
	// on-chain KV store.
	GetWebhookURL(ctx context.Context, chainID int64, oracleAddress string) (string, error)
}
