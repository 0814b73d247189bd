// Package mocks provides mock implementations for testing job usecases.
package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/allisson/escrowd/internal/job/domain"
	webhookDomain "github.com/allisson/escrowd/internal/webhook/domain"
)

// MockJobRepository is a mock implementation of JobRepository for testing.
type MockJobRepository struct {
	mock.Mock
}

// Create mocks the Create method of JobRepository.
func (m *MockJobRepository) Create(ctx context.Context, job *domain.Job) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

// GetByID mocks the GetByID method of JobRepository.
func (m *MockJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Job), args.Error(1)
}

// GetByChainEscrow mocks the GetByChainEscrow method of JobRepository.
func (m *MockJobRepository) GetByChainEscrow(
	ctx context.Context,
	chainID int64,
	escrowAddress string,
) (*domain.Job, error) {
	args := m.Called(ctx, chainID, escrowAddress)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Job), args.Error(1)
}

// List mocks the List method of JobRepository.
func (m *MockJobRepository) List(ctx context.Context, limit, offset int) ([]*domain.Job, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Job), args.Error(1)
}

// ListActionable mocks the ListActionable method of JobRepository.
func (m *MockJobRepository) ListActionable(
	ctx context.Context,
	statuses []domain.Status,
	now time.Time,
	limit int,
) ([]*domain.Job, error) {
	args := m.Called(ctx, statuses, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Job), args.Error(1)
}

// Update mocks the Update method of JobRepository.
func (m *MockJobRepository) Update(ctx context.Context, job *domain.Job) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

// Claim mocks the Claim method of JobRepository.
func (m *MockJobRepository) Claim(
	ctx context.Context,
	job *domain.Job,
	now time.Time,
) (bool, error) {
	args := m.Called(ctx, job, now)
	return args.Bool(0), args.Error(1)
}

// MockWebhookRepository is a mock implementation of WebhookRepository for testing.
type MockWebhookRepository struct {
	mock.Mock
}

// CreateIfNotExists mocks the CreateIfNotExists method of WebhookRepository.
func (m *MockWebhookRepository) CreateIfNotExists(
	ctx context.Context,
	webhook *webhookDomain.Webhook,
) (bool, error) {
	args := m.Called(ctx, webhook)
	return args.Bool(0), args.Error(1)
}
