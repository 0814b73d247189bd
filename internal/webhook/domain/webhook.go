// Package domain defines the webhook outbox entities and event types.
package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/allisson/escrowd/internal/errors"
)

// Status represents the delivery state of a webhook record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether the webhook accepts no further delivery attempts.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// EventType identifies the escrow lifecycle event a webhook notifies about.
type EventType string

const (
	EventEscrowCreated         EventType = "escrow_created"
	EventEscrowCompleted       EventType = "escrow_completed"
	EventEscrowCanceled        EventType = "escrow_canceled"
	EventEscrowFailed          EventType = "escrow_failed"
	EventSubmissionRejected    EventType = "submission_rejected"
	EventSubmissionInReview    EventType = "submission_in_review"
	EventAbuseDetected         EventType = "abuse_detected"
	EventAbuseDismissed        EventType = "abuse_dismissed"
	EventCancellationRequested EventType = "cancellation_requested"
)

// knownEventTypes is the closed set of valid event types.
var knownEventTypes = map[EventType]bool{
	EventEscrowCreated:         true,
	EventEscrowCompleted:       true,
	EventEscrowCanceled:        true,
	EventEscrowFailed:          true,
	EventSubmissionRejected:    true,
	EventSubmissionInReview:    true,
	EventAbuseDetected:         true,
	EventAbuseDismissed:        true,
	EventCancellationRequested: true,
}

// IsValid reports whether the event type is known.
func (e EventType) IsValid() bool {
	return knownEventTypes[e]
}

// OracleType identifies which kind of oracle a webhook targets.
type OracleType string

const (
	OracleReputation OracleType = "reputation"
	OracleExchange   OracleType = "exchange"
	OracleRecording  OracleType = "recording"
)

// Webhook is one pending outbound notification: an outbox row delivered
// asynchronously with retry. At most one row exists per
// (chain_id, escrow_address, event_type, oracle_address).
type Webhook struct {
	ID            uuid.UUID
	ChainID       int64
	EscrowAddress string
	EventType     EventType
	OracleType    OracleType
	OracleAddress string
	Status        Status
	HasSignature  bool
	RetriesCount  int
	WaitUntil     time.Time
	FailureDetail *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IncomingWebhook records one notification received from another oracle,
// applied to the local job lifecycle asynchronously with the same retry
// discipline as outbound delivery.
type IncomingWebhook struct {
	ID            uuid.UUID
	ChainID       int64
	EscrowAddress string
	EventType     EventType
	OracleAddress string
	Status        Status
	RetriesCount  int
	WaitUntil     time.Time
	FailureDetail *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Domain-specific errors for webhook operations.
var (
	// ErrWebhookNotFound indicates the requested webhook does not exist.
	ErrWebhookNotFound = errors.Wrap(errors.ErrNotFound, "webhook not found")

	// ErrWebhookAlreadyExists indicates a webhook for the same identity tuple
	// already exists.
	ErrWebhookAlreadyExists = errors.Wrap(errors.ErrConflict, "webhook already exists")

	// ErrUnknownEventType indicates an event type outside the known set.
	ErrUnknownEventType = errors.Wrap(errors.ErrInvalidInput, "unknown event type")

	// ErrEscrowAddressRequired indicates the escrow address field is required.
	ErrEscrowAddressRequired = errors.Wrap(errors.ErrInvalidInput, "escrow address is required")
)

// NewWebhook creates a pending outbound webhook due for immediate delivery.
func NewWebhook(
	chainID int64,
	escrowAddress string,
	eventType EventType,
	oracleType OracleType,
	oracleAddress string,
	hasSignature bool,
	now time.Time,
) (*Webhook, error) {
	if !eventType.IsValid() {
		return nil, ErrUnknownEventType
	}
	if escrowAddress == "" {
		return nil, ErrEscrowAddressRequired
	}

	return &Webhook{
		ID:            uuid.Must(uuid.NewV7()),
		ChainID:       chainID,
		EscrowAddress: escrowAddress,
		EventType:     eventType,
		OracleType:    oracleType,
		OracleAddress: oracleAddress,
		Status:        StatusPending,
		HasSignature:  hasSignature,
		WaitUntil:     now,
	}, nil
}

// NewIncomingWebhook creates a pending record of a received notification.
func NewIncomingWebhook(
	chainID int64,
	escrowAddress string,
	eventType EventType,
	oracleAddress string,
	now time.Time,
) (*IncomingWebhook, error) {
	if !eventType.IsValid() {
		return nil, ErrUnknownEventType
	}
	if escrowAddress == "" {
		return nil, ErrEscrowAddressRequired
	}

	return &IncomingWebhook{
		ID:            uuid.Must(uuid.NewV7()),
		ChainID:       chainID,
		EscrowAddress: escrowAddress,
		EventType:     eventType,
		OracleAddress: oracleAddress,
		Status:        StatusPending,
		WaitUntil:     now,
	}, nil
}

// Payload is the JSON body delivered to oracle webhook endpoints. Receivers
// deduplicate on (chain_id, escrow_address, event_type), so repeated delivery
// is safe.
type Payload struct {
	ChainID       int64     `json:"chain_id"`
	EscrowAddress string    `json:"escrow_address"`
	EventType     EventType `json:"event_type"`
}
