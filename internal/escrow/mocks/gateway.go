// Package mocks provides a mock escrow gateway for testing.
package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/allisson/escrowd/internal/escrow"
)

// MockGateway is a mock implementation of escrow.Gateway for testing.
type MockGateway struct {
	mock.Mock
}

// StartModeration mocks the StartModeration method of Gateway.
func (m *MockGateway) StartModeration(ctx context.Context, jobID uuid.UUID, manifestURL string) error {
	args := m.Called(ctx, jobID, manifestURL)
	return args.Error(0)
}

// GetModerationVerdict mocks the GetModerationVerdict method of Gateway.
func (m *MockGateway) GetModerationVerdict(ctx context.Context, jobID uuid.UUID) (escrow.ModerationVerdict, error) {
	args := m.Called(ctx, jobID)
	return args.Get(0).(escrow.ModerationVerdict), args.Error(1)
}

// ScanForAbuse mocks the ScanForAbuse method of Gateway.
func (m *MockGateway) ScanForAbuse(ctx context.Context, jobID uuid.UUID, manifestURL string) error {
	args := m.Called(ctx, jobID, manifestURL)
	return args.Error(0)
}

// GetAbuseVerdict mocks the GetAbuseVerdict method of Gateway.
func (m *MockGateway) GetAbuseVerdict(ctx context.Context, jobID uuid.UUID) (escrow.AbuseVerdict, error) {
	args := m.Called(ctx, jobID)
	return args.Get(0).(escrow.AbuseVerdict), args.Error(1)
}

// CreateEscrow mocks the CreateEscrow method of Gateway.
func (m *MockGateway) CreateEscrow(
	ctx context.Context,
	chainID int64,
	manifestURL, manifestHash string,
) (*escrow.LaunchResult, error) {
	args := m.Called(ctx, chainID, manifestURL, manifestHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*escrow.LaunchResult), args.Error(1)
}

// GetEscrowStatus mocks the GetEscrowStatus method of Gateway.
func (m *MockGateway) GetEscrowStatus(ctx context.Context, chainID int64, escrowAddress string) (escrow.Status, error) {
	args := m.Called(ctx, chainID, escrowAddress)
	return args.Get(0).(escrow.Status), args.Error(1)
}

// CompleteEscrow mocks the CompleteEscrow method of Gateway.
func (m *MockGateway) CompleteEscrow(ctx context.Context, chainID int64, escrowAddress string) error {
	args := m.Called(ctx, chainID, escrowAddress)
	return args.Error(0)
}

// CancelEscrow mocks the CancelEscrow method of Gateway.
func (m *MockGateway) CancelEscrow(ctx context.Context, chainID int64, escrowAddress string) error {
	args := m.Called(ctx, chainID, escrowAddress)
	return args.Error(0)
}

// GetWebhookURL mocks the GetWebhookURL method of Gateway.
func (m *MockGateway) GetWebhookURL(ctx context.Context, chainID int64, oracleAddress string) (string, error) {
	args := m.Called(ctx, chainID, oracleAddress)
	return args.String(0), args.Error(1)
}
