package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/allisson/escrowd/internal/backoff"
	"github.com/allisson/escrowd/internal/clock"
	databaseMocks "github.com/allisson/escrowd/internal/database/mocks"
	apperrors "github.com/allisson/escrowd/internal/errors"
	"github.com/allisson/escrowd/internal/escrow"
	escrowMocks "github.com/allisson/escrowd/internal/escrow/mocks"
	"github.com/allisson/escrowd/internal/job/domain"
	"github.com/allisson/escrowd/internal/job/usecase/mocks"
	webhookDomain "github.com/allisson/escrowd/internal/webhook/domain"
)

func lifecycleConfig() LifecycleConfig {
	return LifecycleConfig{
		Interval:      10 * time.Millisecond,
		BatchSize:     50,
		MaxRetryCount: 3,
		Concurrency:   4,
		SignWebhooks:  true,
	}
}

func newLifecycle(
	jobRepo *mocks.MockJobRepository,
	webhookRepo *mocks.MockWebhookRepository,
	gateway *escrowMocks.MockGateway,
) LifecycleUseCase {
	return NewLifecycleUseCase(
		lifecycleConfig(),
		databaseMocks.PassthroughTxManager{},
		jobRepo,
		webhookRepo,
		gateway,
		backoff.NewExponential(time.Minute),
		clock.NewFake(testStart),
		nil,
	)
}

func expectList(jobRepo *mocks.MockJobRepository, jobs ...*domain.Job) {
	jobRepo.On("ListActionable", mock.Anything, domain.ActionableStatuses(), testStart, 50).
		Return(jobs, nil).Once()
}

func expectClaim(jobRepo *mocks.MockJobRepository, job *domain.Job, claimed bool) {
	jobRepo.On("Claim", mock.Anything, job, testStart).Return(claimed, nil).Once()
}

func TestLifecycleUseCase_ProcessJobs(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_PaidJobEntersModeration", func(t *testing.T) {
		job, err := domain.NewJob(80002, "https://m", "h", testStart)
		require.NoError(t, err)

		jobRepo := &mocks.MockJobRepository{}
		webhookRepo := &mocks.MockWebhookRepository{}
		gateway := &escrowMocks.MockGateway{}

		expectList(jobRepo, job)
		expectClaim(jobRepo, job, true)
		gateway.On("StartModeration", mock.Anything, job.ID, "https://m").Return(nil).Once()
		jobRepo.On("Update", mock.Anything, job).Return(nil).Once()

		uc := newLifecycle(jobRepo, webhookRepo, gateway)
		require.NoError(t, uc.ProcessJobs(ctx))

		assert.Equal(t, domain.StatusUnderModeration, job.Status)
		assert.Equal(t, 0, job.RetriesCount)
		jobRepo.AssertExpectations(t)
		gateway.AssertExpectations(t)
		webhookRepo.AssertNotCalled(t, "CreateIfNotExists")
	})

	t.Run("Success_CleanAbuseVerdictLaunchesEscrow", func(t *testing.T) {
		job, err := domain.NewJob(80002, "https://m", "h", testStart)
		require.NoError(t, err)
		job.Status = domain.StatusPossibleAbuseReview

		jobRepo := &mocks.MockJobRepository{}
		webhookRepo := &mocks.MockWebhookRepository{}
		gateway := &escrowMocks.MockGateway{}

		expectList(jobRepo, job)
		expectClaim(jobRepo, job, true)
		gateway.On("GetAbuseVerdict", mock.Anything, job.ID).Return(escrow.AbuseClean, nil).Once()
		gateway.On("CreateEscrow", mock.Anything, job.ChainID, "https://m", "h").
			Return(&escrow.LaunchResult{
				EscrowAddress:    testEscrowAddress,
				ReputationOracle: "0x0000000000000000000000000000000000000001",
				ExchangeOracle:   "0x0000000000000000000000000000000000000002",
				RecordingOracle:  "0x0000000000000000000000000000000000000003",
			}, nil).Once()
		jobRepo.On("Update", mock.Anything, job).Return(nil).Once()

		var enqueued []*webhookDomain.Webhook
		webhookRepo.On("CreateIfNotExists", mock.Anything, mock.AnythingOfType("*domain.Webhook")).
			Return(true, nil).
			Run(func(args mock.Arguments) {
				enqueued = append(enqueued, args.Get(1).(*webhookDomain.Webhook))
			}).Twice()

		uc := newLifecycle(jobRepo, webhookRepo, gateway)
		require.NoError(t, uc.ProcessJobs(ctx))

		assert.Equal(t, domain.StatusLaunched, job.Status)
		require.NotNil(t, job.EscrowAddress)
		assert.Equal(t, testEscrowAddress, *job.EscrowAddress)

		require.Len(t, enqueued, 2)
		for _, webhook := range enqueued {
			assert.Equal(t, webhookDomain.EventEscrowCreated, webhook.EventType)
			assert.Equal(t, testEscrowAddress, webhook.EscrowAddress)
			assert.True(t, webhook.HasSignature)
		}
		jobRepo.AssertExpectations(t)
		gateway.AssertExpectations(t)
		webhookRepo.AssertExpectations(t)
	})

	t.Run("Success_GatewayFailureSchedulesRetryWithBackoff", func(t *testing.T) {
		job, err := domain.NewJob(80002, "https://m", "h", testStart)
		require.NoError(t, err)
		job.RetriesCount = 1

		jobRepo := &mocks.MockJobRepository{}
		webhookRepo := &mocks.MockWebhookRepository{}
		gateway := &escrowMocks.MockGateway{}

		expectList(jobRepo, job)
		expectClaim(jobRepo, job, true)
		gateway.On("StartModeration", mock.Anything, job.ID, "https://m").
			Return(apperrors.ErrExternalCall).Once()
		jobRepo.On("Update", mock.Anything, job).Return(nil).Once()

		uc := newLifecycle(jobRepo, webhookRepo, gateway)
		require.NoError(t, uc.ProcessJobs(ctx))

		assert.Equal(t, domain.StatusPaid, job.Status)
		assert.Equal(t, 2, job.RetriesCount)
		// base * 2^2 with base of one minute
		assert.Equal(t, testStart.Add(4*time.Minute), job.WaitUntil)
	})

	t.Run("Success_FailureAtRetryCapKeepsJobRetryable", func(t *testing.T) {
		job, err := domain.NewJob(80002, "https://m", "h", testStart)
		require.NoError(t, err)
		address := testEscrowAddress
		job.Status = domain.StatusPartial
		job.EscrowAddress = &address
		job.RetriesCount = 2

		jobRepo := &mocks.MockJobRepository{}
		webhookRepo := &mocks.MockWebhookRepository{}
		gateway := &escrowMocks.MockGateway{}

		expectList(jobRepo, job)
		expectClaim(jobRepo, job, true)
		gateway.On("CompleteEscrow", mock.Anything, job.ChainID, address).
			Return(apperrors.ErrExternalCall).Once()
		jobRepo.On("Update", mock.Anything, job).Return(nil).Once()

		uc := newLifecycle(jobRepo, webhookRepo, gateway)
		require.NoError(t, uc.ProcessJobs(ctx))

		// Third failure with a budget of three spends the last retry but does
		// not park the job: it stays on the graph for one more attempt.
		assert.Equal(t, domain.StatusPartial, job.Status)
		assert.Equal(t, 3, job.RetriesCount)
		// base * 2^3 with base of one minute
		assert.Equal(t, testStart.Add(8*time.Minute), job.WaitUntil)
		webhookRepo.AssertNotCalled(t, "CreateIfNotExists")
	})

	t.Run("Success_RetryExhaustionParksJobAsFailed", func(t *testing.T) {
		job, err := domain.NewJob(80002, "https://m", "h", testStart)
		require.NoError(t, err)
		address := testEscrowAddress
		exchangeOracle := "0x0000000000000000000000000000000000000002"
		job.Status = domain.StatusPartial
		job.EscrowAddress = &address
		job.ExchangeOracle = &exchangeOracle
		job.RetriesCount = 3

		jobRepo := &mocks.MockJobRepository{}
		webhookRepo := &mocks.MockWebhookRepository{}
		gateway := &escrowMocks.MockGateway{}

		expectList(jobRepo, job)
		expectClaim(jobRepo, job, true)
		gateway.On("CompleteEscrow", mock.Anything, job.ChainID, address).
			Return(apperrors.ErrExternalCall).Once()
		jobRepo.On("Update", mock.Anything, job).Return(nil).Once()

		var enqueued *webhookDomain.Webhook
		webhookRepo.On("CreateIfNotExists", mock.Anything, mock.AnythingOfType("*domain.Webhook")).
			Return(true, nil).
			Run(func(args mock.Arguments) {
				enqueued = args.Get(1).(*webhookDomain.Webhook)
			}).Once()

		uc := newLifecycle(jobRepo, webhookRepo, gateway)
		require.NoError(t, uc.ProcessJobs(ctx))

		assert.Equal(t, domain.StatusFailed, job.Status)
		assert.Equal(t, 3, job.RetriesCount)
		require.NotNil(t, job.FailureDetail)
		assert.Contains(t, *job.FailureDetail, "retry count exhausted")
		require.NotNil(t, enqueued)
		assert.Equal(t, webhookDomain.EventEscrowFailed, enqueued.EventType)
	})

	t.Run("Success_ModerationRejectionIsFatalWithoutRetry", func(t *testing.T) {
		job, err := domain.NewJob(80002, "https://m", "h", testStart)
		require.NoError(t, err)
		job.Status = domain.StatusUnderModeration

		jobRepo := &mocks.MockJobRepository{}
		webhookRepo := &mocks.MockWebhookRepository{}
		gateway := &escrowMocks.MockGateway{}

		expectList(jobRepo, job)
		expectClaim(jobRepo, job, true)
		gateway.On("GetModerationVerdict", mock.Anything, job.ID).
			Return(escrow.ModerationRejected, nil).Once()
		jobRepo.On("Update", mock.Anything, job).Return(nil).Once()

		uc := newLifecycle(jobRepo, webhookRepo, gateway)
		require.NoError(t, uc.ProcessJobs(ctx))

		assert.Equal(t, domain.StatusFailed, job.Status)
		assert.Equal(t, 0, job.RetriesCount)
		// Never launched, so there is no on-chain identity to announce.
		webhookRepo.AssertNotCalled(t, "CreateIfNotExists")
	})

	t.Run("Success_PendingVerdictReschedulesWithoutConsumingRetry", func(t *testing.T) {
		job, err := domain.NewJob(80002, "https://m", "h", testStart)
		require.NoError(t, err)
		job.Status = domain.StatusUnderModeration

		jobRepo := &mocks.MockJobRepository{}
		webhookRepo := &mocks.MockWebhookRepository{}
		gateway := &escrowMocks.MockGateway{}

		expectList(jobRepo, job)
		expectClaim(jobRepo, job, true)
		gateway.On("GetModerationVerdict", mock.Anything, job.ID).
			Return(escrow.ModerationInProgress, nil).Once()
		jobRepo.On("Update", mock.Anything, job).Return(nil).Once()

		uc := newLifecycle(jobRepo, webhookRepo, gateway)
		require.NoError(t, uc.ProcessJobs(ctx))

		assert.Equal(t, domain.StatusUnderModeration, job.Status)
		assert.Equal(t, 0, job.RetriesCount)
		assert.Equal(t, testStart.Add(time.Minute), job.WaitUntil)
	})

	t.Run("Success_UnclaimedJobIsSkipped", func(t *testing.T) {
		job, err := domain.NewJob(80002, "https://m", "h", testStart)
		require.NoError(t, err)

		jobRepo := &mocks.MockJobRepository{}
		webhookRepo := &mocks.MockWebhookRepository{}
		gateway := &escrowMocks.MockGateway{}

		expectList(jobRepo, job)
		expectClaim(jobRepo, job, false)

		uc := newLifecycle(jobRepo, webhookRepo, gateway)
		require.NoError(t, uc.ProcessJobs(ctx))

		gateway.AssertNotCalled(t, "StartModeration")
		jobRepo.AssertNotCalled(t, "Update")
	})

	t.Run("Success_CancellationBranchReachesCanceled", func(t *testing.T) {
		job, err := domain.NewJob(80002, "https://m", "h", testStart)
		require.NoError(t, err)
		address := testEscrowAddress
		exchangeOracle := "0x0000000000000000000000000000000000000002"
		job.Status = domain.StatusCanceling
		job.EscrowAddress = &address
		job.ExchangeOracle = &exchangeOracle

		jobRepo := &mocks.MockJobRepository{}
		webhookRepo := &mocks.MockWebhookRepository{}
		gateway := &escrowMocks.MockGateway{}

		expectList(jobRepo, job)
		expectClaim(jobRepo, job, true)
		gateway.On("GetEscrowStatus", mock.Anything, job.ChainID, address).
			Return(escrow.StatusCancelled, nil).Once()
		jobRepo.On("Update", mock.Anything, job).Return(nil).Once()
		webhookRepo.On("CreateIfNotExists", mock.Anything, mock.AnythingOfType("*domain.Webhook")).
			Return(true, nil).Once()

		uc := newLifecycle(jobRepo, webhookRepo, gateway)
		require.NoError(t, uc.ProcessJobs(ctx))

		assert.Equal(t, domain.StatusCanceled, job.Status)
		webhookRepo.AssertExpectations(t)
	})
}

func TestLifecycleUseCase_Start(t *testing.T) {
	defer goleak.VerifyNone(t)

	jobRepo := &mocks.MockJobRepository{}
	jobRepo.On("ListActionable", mock.Anything, domain.ActionableStatuses(), testStart, 50).
		Return(nil, nil)

	uc := newLifecycle(jobRepo, &mocks.MockWebhookRepository{}, &escrowMocks.MockGateway{})

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
