// Package mocks provides mock implementations for testing webhook HTTP handlers.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/allisson/escrowd/internal/webhook/domain"
	"github.com/allisson/escrowd/internal/webhook/usecase"
)

// MockIncomingUseCase is a mock implementation of IncomingUseCase for testing.
type MockIncomingUseCase struct {
	mock.Mock
}

// Record mocks the Record method of IncomingUseCase.
func (m *MockIncomingUseCase) Record(
	ctx context.Context,
	input usecase.RecordIncomingInput,
) (*domain.IncomingWebhook, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.IncomingWebhook), args.Error(1)
}

// Start mocks the Start method of IncomingUseCase.
func (m *MockIncomingUseCase) Start(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// ProcessIncoming mocks the ProcessIncoming method of IncomingUseCase.
func (m *MockIncomingUseCase) ProcessIncoming(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
