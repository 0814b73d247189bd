// Package mocks provides mock implementations for testing job HTTP handlers.
package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/allisson/escrowd/internal/job/domain"
	"github.com/allisson/escrowd/internal/job/usecase"
)

// MockJobUseCase is a mock implementation of JobUseCase for testing.
type MockJobUseCase struct {
	mock.Mock
}

// Create mocks the Create method of JobUseCase.
func (m *MockJobUseCase) Create(ctx context.Context, input usecase.CreateJobInput) (*domain.Job, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Job), args.Error(1)
}

// GetByID mocks the GetByID method of JobUseCase.
func (m *MockJobUseCase) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Job), args.Error(1)
}

// List mocks the List method of JobUseCase.
func (m *MockJobUseCase) List(ctx context.Context, limit, offset int) ([]*domain.Job, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Job), args.Error(1)
}

// RequestCancel mocks the RequestCancel method of JobUseCase.
func (m *MockJobUseCase) RequestCancel(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Job), args.Error(1)
}

// RetryFailed mocks the RetryFailed method of JobUseCase.
func (m *MockJobUseCase) RetryFailed(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Job), args.Error(1)
}
