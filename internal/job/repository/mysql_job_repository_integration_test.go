package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/escrowd/internal/job/domain"
	"github.com/allisson/escrowd/internal/testutil"
)

func TestMySQLJobRepository_Integration(t *testing.T) {
	testutil.SkipIfNoMySQL(t)

	db := testutil.SetupMySQLDB(t)
	defer testutil.TeardownDB(t, db)
	defer testutil.CleanupMySQLDB(t, db)

	repo := NewMySQLJobRepository(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	newTestJob := func(t *testing.T) *domain.Job {
		t.Helper()
		job, err := domain.NewJob(
			80002,
			"https://storage.example.com/manifests/test.json",
			"3a7bd3e2360a3d29eea436fcfb7e44c735d117c42d1c1835420b6b9942dd4f1b",
			now,
		)
		require.NoError(t, err)
		return job
	}

	t.Run("create and get by id", func(t *testing.T) {
		job := newTestJob(t)

		err := repo.Create(ctx, job)
		require.NoError(t, err)

		got, err := repo.GetByID(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, job.ID, got.ID)
		assert.Equal(t, domain.StatusPaid, got.Status)
		assert.Nil(t, got.EscrowAddress)
	})

	t.Run("duplicate chain and escrow address", func(t *testing.T) {
		escrow := "0x1413862C2B7054CDbfdc181B83962CB0FC11fD92"

		first := newTestJob(t)
		first.EscrowAddress = &escrow
		first.Status = domain.StatusLaunched
		require.NoError(t, repo.Create(ctx, first))

		second := newTestJob(t)
		second.EscrowAddress = &escrow
		second.Status = domain.StatusLaunched

		err := repo.Create(ctx, second)
		assert.ErrorIs(t, err, domain.ErrJobAlreadyExists)
	})

	t.Run("get by chain and escrow address", func(t *testing.T) {
		escrow := "0x6fF24D4F82355940657E1Bf5a52a50c55e399AE6"

		job := newTestJob(t)
		job.EscrowAddress = &escrow
		job.Status = domain.StatusLaunched
		require.NoError(t, repo.Create(ctx, job))

		got, err := repo.GetByChainEscrow(ctx, 80002, escrow)
		require.NoError(t, err)
		assert.Equal(t, job.ID, got.ID)
	})

	t.Run("claim", func(t *testing.T) {
		created := newTestJob(t)
		created.WaitUntil = now.Add(-time.Minute)
		require.NoError(t, repo.Create(ctx, created))

		job, err := repo.GetByID(ctx, created.ID)
		require.NoError(t, err)

		// Two workers listing in the same pass hold the same row version;
		// only the first claim lands.
		rival := *job
		claimed, err := repo.Claim(ctx, job, now)
		require.NoError(t, err)
		assert.True(t, claimed)

		claimed, err = repo.Claim(ctx, &rival, now)
		require.NoError(t, err)
		assert.False(t, claimed)
	})
}
