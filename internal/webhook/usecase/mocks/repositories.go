// Package mocks provides mock implementations for testing webhook usecases.
package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	jobDomain "github.com/allisson/escrowd/internal/job/domain"
	"github.com/allisson/escrowd/internal/webhook/domain"
)

// MockWebhookRepository is a mock implementation of WebhookRepository for testing.
type MockWebhookRepository struct {
	mock.Mock
}

// CreateIfNotExists mocks the CreateIfNotExists method of WebhookRepository.
func (m *MockWebhookRepository) CreateIfNotExists(ctx context.Context, webhook *domain.Webhook) (bool, error) {
	args := m.Called(ctx, webhook)
	return args.Bool(0), args.Error(1)
}

// GetByID mocks the GetByID method of WebhookRepository.
func (m *MockWebhookRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Webhook, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Webhook), args.Error(1)
}

// GetPending mocks the GetPending method of WebhookRepository.
func (m *MockWebhookRepository) GetPending(
	ctx context.Context,
	now time.Time,
	limit int,
) ([]*domain.Webhook, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Webhook), args.Error(1)
}

// Update mocks the Update method of WebhookRepository.
func (m *MockWebhookRepository) Update(ctx context.Context, webhook *domain.Webhook) error {
	args := m.Called(ctx, webhook)
	return args.Error(0)
}

// ResetFailed mocks the ResetFailed method of WebhookRepository.
func (m *MockWebhookRepository) ResetFailed(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	args := m.Called(ctx, id, now)
	return args.Bool(0), args.Error(1)
}

// MockIncomingWebhookRepository is a mock implementation of IncomingWebhookRepository for testing.
type MockIncomingWebhookRepository struct {
	mock.Mock
}

// CreateIfNotExists mocks the CreateIfNotExists method of IncomingWebhookRepository.
func (m *MockIncomingWebhookRepository) CreateIfNotExists(
	ctx context.Context,
	incoming *domain.IncomingWebhook,
) (bool, error) {
	args := m.Called(ctx, incoming)
	return args.Bool(0), args.Error(1)
}

// GetByID mocks the GetByID method of IncomingWebhookRepository.
func (m *MockIncomingWebhookRepository) GetByID(
	ctx context.Context,
	id uuid.UUID,
) (*domain.IncomingWebhook, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.IncomingWebhook), args.Error(1)
}

// GetPending mocks the GetPending method of IncomingWebhookRepository.
func (m *MockIncomingWebhookRepository) GetPending(
	ctx context.Context,
	now time.Time,
	limit int,
) ([]*domain.IncomingWebhook, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.IncomingWebhook), args.Error(1)
}

// Update mocks the Update method of IncomingWebhookRepository.
func (m *MockIncomingWebhookRepository) Update(ctx context.Context, incoming *domain.IncomingWebhook) error {
	args := m.Called(ctx, incoming)
	return args.Error(0)
}

// MockJobRepository is a mock implementation of the JobRepository surface the
// incoming usecase needs.
type MockJobRepository struct {
	mock.Mock
}

// GetByChainEscrow mocks the GetByChainEscrow method of JobRepository.
func (m *MockJobRepository) GetByChainEscrow(
	ctx context.Context,
	chainID int64,
	escrowAddress string,
) (*jobDomain.Job, error) {
	args := m.Called(ctx, chainID, escrowAddress)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jobDomain.Job), args.Error(1)
}

// Update mocks the Update method of JobRepository.
func (m *MockJobRepository) Update(ctx context.Context, job *jobDomain.Job) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

// MockSender is a mock implementation of Sender for testing.
type MockSender struct {
	mock.Mock
}

// Send mocks the Send method of Sender.
func (m *MockSender) Send(ctx context.Context, webhook *domain.Webhook) error {
	args := m.Called(ctx, webhook)
	return args.Error(0)
}
