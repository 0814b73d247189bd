// Package domain defines the escrow job entity and its lifecycle status machine.
package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/allisson/escrowd/internal/errors"
)

// Status represents a job's position in the escrow lifecycle.
type Status string

// Lifecycle statuses. The main chain runs paid through completed; failed and the
// cancellation branch are side exits.
const (
	StatusPaid                Status = "paid"
	StatusUnderModeration     Status = "under_moderation"
	StatusModerationPassed    Status = "moderation_passed"
	StatusPossibleAbuseReview Status = "possible_abuse_in_review"
	StatusLaunched            Status = "launched"
	StatusPartial             Status = "partial"
	StatusCompleted           Status = "completed"
	StatusFailed              Status = "failed"
	StatusToCancel            Status = "to_cancel"
	StatusCanceling           Status = "canceling"
	StatusCanceled            Status = "canceled"
)

// successors maps each status to its direct successor on the lifecycle graph.
var successors = map[Status]Status{
	StatusPaid:                StatusUnderModeration,
	StatusUnderModeration:     StatusModerationPassed,
	StatusModerationPassed:    StatusPossibleAbuseReview,
	StatusPossibleAbuseReview: StatusLaunched,
	StatusLaunched:            StatusPartial,
	StatusPartial:             StatusCompleted,
	StatusToCancel:            StatusCanceling,
	StatusCanceling:           StatusCanceled,
}

// terminalStatuses are never mutated again once reached.
var terminalStatuses = map[Status]bool{
	StatusCompleted: true,
	StatusFailed:    true,
	StatusCanceled:  true,
}

// cancelableStatuses may move onto the cancellation branch.
var cancelableStatuses = map[Status]bool{
	StatusPaid:                true,
	StatusUnderModeration:     true,
	StatusModerationPassed:    true,
	StatusPossibleAbuseReview: true,
	StatusLaunched:            true,
	StatusPartial:             true,
}

// IsTerminal reports whether the status accepts no further transitions.
func (s Status) IsTerminal() bool {
	return terminalStatuses[s]
}

// IsValid reports whether the status is a known lifecycle status.
func (s Status) IsValid() bool {
	if _, ok := successors[s]; ok {
		return true
	}
	return terminalStatuses[s]
}

// Next returns the direct successor on the lifecycle graph, if any.
func (s Status) Next() (Status, bool) {
	next, ok := successors[s]
	return next, ok
}

// CanTransitionTo reports whether moving from s to target is legal: the target is
// the direct successor, or failed from any non-terminal status, or to_cancel from
// any status that has not yet completed.
func (s Status) CanTransitionTo(target Status) bool {
	if s.IsTerminal() {
		return false
	}
	if target == StatusFailed {
		return true
	}
	if target == StatusToCancel {
		return cancelableStatuses[s]
	}
	next, ok := successors[s]
	return ok && next == target
}

// Job represents one escrow tracked through its lifecycle. Identity is
// (chain_id, escrow_address) once the escrow exists on chain.
type Job struct {
	ID               uuid.UUID
	ChainID          int64
	EscrowAddress    *string
	Status           Status
	ManifestURL      string
	ManifestHash     string
	ReputationOracle *string
	ExchangeOracle   *string
	RecordingOracle  *string
	RetriesCount     int
	WaitUntil        time.Time
	FailureDetail    *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Domain-specific errors for job operations.
var (
	// ErrJobNotFound indicates the requested job does not exist.
	ErrJobNotFound = errors.Wrap(errors.ErrNotFound, "job not found")

	// ErrJobAlreadyExists indicates a job for the same (chain_id, escrow_address)
	// already exists.
	ErrJobAlreadyExists = errors.Wrap(errors.ErrConflict, "job already exists")

	// ErrJobTransition indicates an attempted status change that is not adjacent
	// in the lifecycle graph.
	ErrJobTransition = errors.Wrap(errors.ErrInvalidTransition, "job status transition not allowed")

	// ErrChainIDRequired indicates the chain id field is required.
	ErrChainIDRequired = errors.Wrap(errors.ErrInvalidInput, "chain id is required")

	// ErrManifestURLRequired indicates the manifest url field is required.
	ErrManifestURLRequired = errors.Wrap(errors.ErrInvalidInput, "manifest url is required")
)

// NewJob creates a job at the start of the lifecycle. WaitUntil is set to now so
// the first worker tick picks it up immediately.
func NewJob(chainID int64, manifestURL, manifestHash string, now time.Time) (*Job, error) {
	if chainID <= 0 {
		return nil, ErrChainIDRequired
	}
	if manifestURL == "" {
		return nil, ErrManifestURLRequired
	}

	return &Job{
		ID:           uuid.Must(uuid.NewV7()),
		ChainID:      chainID,
		Status:       StatusPaid,
		ManifestURL:  manifestURL,
		ManifestHash: manifestHash,
		WaitUntil:    now,
	}, nil
}

// Transition moves the job to target if the move is legal on the lifecycle
// graph. On success the retry counter resets, since retries count consecutive
// failures at a single status.
func (j *Job) Transition(target Status) error {
	if !j.Status.CanTransitionTo(target) {
		return ErrJobTransition
	}
	j.Status = target
	j.RetriesCount = 0
	return nil
}

// Fail parks the job in the failed status, recording why.
func (j *Job) Fail(detail string) error {
	if err := j.Transition(StatusFailed); err != nil {
		return err
	}
	j.FailureDetail = &detail
	return nil
}

// ActionableStatuses are the non-terminal statuses the lifecycle worker advances.
func ActionableStatuses() []Status {
	return []Status{
		StatusPaid,
		StatusUnderModeration,
		StatusModerationPassed,
		StatusPossibleAbuseReview,
		StatusLaunched,
		StatusPartial,
		StatusToCancel,
		StatusCanceling,
	}
}
