package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/allisson/escrowd/internal/backoff"
	"github.com/allisson/escrowd/internal/clock"
	databaseMocks "github.com/allisson/escrowd/internal/database/mocks"
	apperrors "github.com/allisson/escrowd/internal/errors"
	"github.com/allisson/escrowd/internal/webhook/domain"
	"github.com/allisson/escrowd/internal/webhook/usecase/mocks"
)

const testEscrowAddress = "0x1413862C2B7054CDbfdc181B83962CB0FC11fD92"

var testStart = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func deliveryConfig() DeliveryConfig {
	return DeliveryConfig{
		Interval:      10 * time.Millisecond,
		BatchSize:     50,
		MaxRetryCount: 3,
	}
}

func newDelivery(webhookRepo *mocks.MockWebhookRepository, sender *mocks.MockSender) DeliveryUseCase {
	return NewDeliveryUseCase(
		deliveryConfig(),
		databaseMocks.PassthroughTxManager{},
		webhookRepo,
		sender,
		backoff.NewExponential(time.Minute),
		clock.NewFake(testStart),
		nil,
	)
}

func newPendingWebhook(t *testing.T) *domain.Webhook {
	t.Helper()
	webhook, err := domain.NewWebhook(
		80002, testEscrowAddress, domain.EventEscrowCreated,
		domain.OracleExchange, "0x0000000000000000000000000000000000000001", false, testStart,
	)
	require.NoError(t, err)
	return webhook
}

func TestDeliveryUseCase_ProcessWebhooks(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_DeliveredWebhookCompletes", func(t *testing.T) {
		webhook := newPendingWebhook(t)

		webhookRepo := &mocks.MockWebhookRepository{}
		sender := &mocks.MockSender{}

		webhookRepo.On("GetPending", mock.Anything, testStart, 50).
			Return([]*domain.Webhook{webhook}, nil).Once()
		sender.On("Send", mock.Anything, webhook).Return(nil).Once()
		webhookRepo.On("Update", mock.Anything, webhook).Return(nil).Once()

		uc := newDelivery(webhookRepo, sender)
		require.NoError(t, uc.ProcessWebhooks(ctx))

		assert.Equal(t, domain.StatusCompleted, webhook.Status)
		assert.Nil(t, webhook.FailureDetail)
		webhookRepo.AssertExpectations(t)
		sender.AssertExpectations(t)
	})

	t.Run("Success_FailedDeliverySchedulesRetryWithBackoff", func(t *testing.T) {
		webhook := newPendingWebhook(t)
		webhook.RetriesCount = 1

		webhookRepo := &mocks.MockWebhookRepository{}
		sender := &mocks.MockSender{}

		webhookRepo.On("GetPending", mock.Anything, testStart, 50).
			Return([]*domain.Webhook{webhook}, nil).Once()
		sender.On("Send", mock.Anything, webhook).
			Return(apperrors.Wrap(apperrors.ErrExternalCall, "oracle returned status 503")).Once()
		webhookRepo.On("Update", mock.Anything, webhook).Return(nil).Once()

		uc := newDelivery(webhookRepo, sender)
		require.NoError(t, uc.ProcessWebhooks(ctx))

		assert.Equal(t, domain.StatusPending, webhook.Status)
		assert.Equal(t, 2, webhook.RetriesCount)
		// base * 2^2 with base of one minute
		assert.Equal(t, testStart.Add(4*time.Minute), webhook.WaitUntil)
		require.NotNil(t, webhook.FailureDetail)
		assert.Contains(t, *webhook.FailureDetail, "503")
	})

	t.Run("Success_FailureAtRetryCapKeepsWebhookPending", func(t *testing.T) {
		webhook := newPendingWebhook(t)
		webhook.RetriesCount = 2

		webhookRepo := &mocks.MockWebhookRepository{}
		sender := &mocks.MockSender{}

		webhookRepo.On("GetPending", mock.Anything, testStart, 50).
			Return([]*domain.Webhook{webhook}, nil).Once()
		sender.On("Send", mock.Anything, webhook).
			Return(apperrors.ErrExternalCall).Once()
		webhookRepo.On("Update", mock.Anything, webhook).Return(nil).Once()

		uc := newDelivery(webhookRepo, sender)
		require.NoError(t, uc.ProcessWebhooks(ctx))

		// Third failure with a budget of three spends the last retry but the
		// webhook stays pending for one more delivery attempt.
		assert.Equal(t, domain.StatusPending, webhook.Status)
		assert.Equal(t, 3, webhook.RetriesCount)
		// base * 2^3 with base of one minute
		assert.Equal(t, testStart.Add(8*time.Minute), webhook.WaitUntil)
	})

	t.Run("Success_RetryExhaustionParksWebhookAsFailed", func(t *testing.T) {
		webhook := newPendingWebhook(t)
		webhook.RetriesCount = 3

		webhookRepo := &mocks.MockWebhookRepository{}
		sender := &mocks.MockSender{}

		webhookRepo.On("GetPending", mock.Anything, testStart, 50).
			Return([]*domain.Webhook{webhook}, nil).Once()
		sender.On("Send", mock.Anything, webhook).
			Return(apperrors.ErrExternalCall).Once()
		webhookRepo.On("Update", mock.Anything, webhook).Return(nil).Once()

		uc := newDelivery(webhookRepo, sender)
		require.NoError(t, uc.ProcessWebhooks(ctx))

		assert.Equal(t, domain.StatusFailed, webhook.Status)
		assert.Equal(t, 3, webhook.RetriesCount)
		require.NotNil(t, webhook.FailureDetail)
		assert.Contains(t, *webhook.FailureDetail, "retry count exhausted")
	})

	t.Run("Success_OneFailureDoesNotBlockTheBatch", func(t *testing.T) {
		failing := newPendingWebhook(t)
		succeeding, err := domain.NewWebhook(
			80002, testEscrowAddress, domain.EventEscrowCompleted,
			domain.OracleRecording, "0x0000000000000000000000000000000000000003", false, testStart,
		)
		require.NoError(t, err)

		webhookRepo := &mocks.MockWebhookRepository{}
		sender := &mocks.MockSender{}

		webhookRepo.On("GetPending", mock.Anything, testStart, 50).
			Return([]*domain.Webhook{failing, succeeding}, nil).Once()
		sender.On("Send", mock.Anything, failing).Return(apperrors.ErrExternalCall).Once()
		sender.On("Send", mock.Anything, succeeding).Return(nil).Once()
		webhookRepo.On("Update", mock.Anything, failing).Return(nil).Once()
		webhookRepo.On("Update", mock.Anything, succeeding).Return(nil).Once()

		uc := newDelivery(webhookRepo, sender)
		require.NoError(t, uc.ProcessWebhooks(ctx))

		assert.Equal(t, domain.StatusPending, failing.Status)
		assert.Equal(t, domain.StatusCompleted, succeeding.Status)
		sender.AssertExpectations(t)
	})

	t.Run("Success_EmptyQueueIsANoOp", func(t *testing.T) {
		webhookRepo := &mocks.MockWebhookRepository{}
		sender := &mocks.MockSender{}

		webhookRepo.On("GetPending", mock.Anything, testStart, 50).
			Return(nil, nil).Once()

		uc := newDelivery(webhookRepo, sender)
		require.NoError(t, uc.ProcessWebhooks(ctx))

		sender.AssertNotCalled(t, "Send")
	})
}

func TestDeliveryUseCase_RetryWebhook(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_FailedWebhookRequeued", func(t *testing.T) {
		id := uuid.Must(uuid.NewV7())

		webhookRepo := &mocks.MockWebhookRepository{}
		webhookRepo.On("ResetFailed", mock.Anything, id, testStart).Return(true, nil).Once()

		uc := newDelivery(webhookRepo, &mocks.MockSender{})
		require.NoError(t, uc.RetryWebhook(ctx, id))
		webhookRepo.AssertExpectations(t)
	})

	t.Run("Error_WebhookNotFailed", func(t *testing.T) {
		webhook := newPendingWebhook(t)

		webhookRepo := &mocks.MockWebhookRepository{}
		webhookRepo.On("ResetFailed", mock.Anything, webhook.ID, testStart).Return(false, nil).Once()
		webhookRepo.On("GetByID", mock.Anything, webhook.ID).Return(webhook, nil).Once()

		uc := newDelivery(webhookRepo, &mocks.MockSender{})
		err := uc.RetryWebhook(ctx, webhook.ID)

		assert.ErrorIs(t, err, ErrWebhookNotRetryable)
	})

	t.Run("Error_WebhookNotFound", func(t *testing.T) {
		id := uuid.Must(uuid.NewV7())

		webhookRepo := &mocks.MockWebhookRepository{}
		webhookRepo.On("ResetFailed", mock.Anything, id, testStart).Return(false, nil).Once()
		webhookRepo.On("GetByID", mock.Anything, id).Return(nil, domain.ErrWebhookNotFound).Once()

		uc := newDelivery(webhookRepo, &mocks.MockSender{})
		err := uc.RetryWebhook(ctx, id)

		assert.ErrorIs(t, err, domain.ErrWebhookNotFound)
	})
}

func TestDeliveryUseCase_Start(t *testing.T) {
	defer goleak.VerifyNone(t)

	webhookRepo := &mocks.MockWebhookRepository{}
	webhookRepo.On("GetPending", mock.Anything, testStart, 50).Return(nil, nil)

	uc := newDelivery(webhookRepo, &mocks.MockSender{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- uc.Start(ctx)
	}()

	time.Sleep(35 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after context cancellation")
	}
}
