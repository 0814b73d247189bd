package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/escrowd/internal/job/domain"
)

const testEscrowAddress = "0x1413862C2B7054CDbfdc181B83962CB0FC11fD92"

var jobColumns = []string{
	"id", "chain_id", "escrow_address", "status", "manifest_url", "manifest_hash",
	"reputation_oracle", "exchange_oracle", "recording_oracle", "retries_count", "wait_until",
	"failure_detail", "created_at", "updated_at",
}

func jobRow(job *domain.Job) *sqlmock.Rows {
	return sqlmock.NewRows(jobColumns).AddRow(
		job.ID, job.ChainID, job.EscrowAddress, job.Status, job.ManifestURL, job.ManifestHash,
		job.ReputationOracle, job.ExchangeOracle, job.RecordingOracle, job.RetriesCount,
		job.WaitUntil, job.FailureDetail, job.CreatedAt, job.UpdatedAt,
	)
}

func newTestJob(t *testing.T) *domain.Job {
	t.Helper()
	job, err := domain.NewJob(80002, "https://storage.example.com/manifest.json", "sha256:abc", time.Now().UTC())
	require.NoError(t, err)
	return job
}

func TestPostgreSQLJobRepository_Create(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close() //nolint:errcheck

		job := newTestJob(t)
		mock.ExpectExec("INSERT INTO jobs").
			WithArgs(job.ID, job.ChainID, job.EscrowAddress, job.Status, job.ManifestURL,
				job.ManifestHash, job.ReputationOracle, job.ExchangeOracle, job.RecordingOracle,
				job.RetriesCount, job.WaitUntil, job.FailureDetail).
			WillReturnResult(sqlmock.NewResult(0, 1))

		repo := NewPostgreSQLJobRepository(db)
		err = repo.Create(context.Background(), job)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Error_DuplicateIdentity", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close() //nolint:errcheck

		mock.ExpectExec("INSERT INTO jobs").
			WillReturnError(errors.New(`pq: duplicate key value violates unique constraint "jobs_chain_id_escrow_address_key"`))

		repo := NewPostgreSQLJobRepository(db)
		err = repo.Create(context.Background(), newTestJob(t))

		assert.ErrorIs(t, err, domain.ErrJobAlreadyExists)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgreSQLJobRepository_GetByID(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close() //nolint:errcheck

		job := newTestJob(t)
		mock.ExpectQuery("SELECT (.+) FROM jobs WHERE id =").
			WithArgs(job.ID).
			WillReturnRows(jobRow(job))

		repo := NewPostgreSQLJobRepository(db)
		got, err := repo.GetByID(context.Background(), job.ID)

		require.NoError(t, err)
		assert.Equal(t, job.ID, got.ID)
		assert.Equal(t, domain.StatusPaid, got.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Error_NotFound", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close() //nolint:errcheck

		mock.ExpectQuery("SELECT (.+) FROM jobs WHERE id =").
			WillReturnRows(sqlmock.NewRows(jobColumns))

		repo := NewPostgreSQLJobRepository(db)
		_, err = repo.GetByID(context.Background(), uuid.Must(uuid.NewV7()))

		assert.ErrorIs(t, err, domain.ErrJobNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgreSQLJobRepository_GetByChainEscrow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck

	job := newTestJob(t)
	address := testEscrowAddress
	job.EscrowAddress = &address

	mock.ExpectQuery("SELECT (.+) FROM jobs WHERE chain_id = (.+) AND escrow_address =").
		WithArgs(job.ChainID, address).
		WillReturnRows(jobRow(job))

	repo := NewPostgreSQLJobRepository(db)
	got, err := repo.GetByChainEscrow(context.Background(), job.ChainID, address)

	require.NoError(t, err)
	assert.Equal(t, address, *got.EscrowAddress)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLJobRepository_ListActionable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck

	job := newTestJob(t)
	mock.ExpectQuery("SELECT (.+) FROM jobs WHERE status = ANY(.+) FOR UPDATE SKIP LOCKED").
		WillReturnRows(jobRow(job))

	repo := NewPostgreSQLJobRepository(db)
	jobs, err := repo.ListActionable(context.Background(), domain.ActionableStatuses(), time.Now().UTC(), 10)

	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, job.ID, jobs[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLJobRepository_Update(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck

	job := newTestJob(t)
	require.NoError(t, job.Transition(domain.StatusUnderModeration))

	mock.ExpectExec("UPDATE jobs").
		WithArgs(job.EscrowAddress, job.Status, job.ReputationOracle, job.ExchangeOracle,
			job.RecordingOracle, job.RetriesCount, job.WaitUntil, job.FailureDetail, job.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewPostgreSQLJobRepository(db)
	err = repo.Update(context.Background(), job)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLJobRepository_Claim(t *testing.T) {
	t.Run("Success_RowAffected", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close() //nolint:errcheck

		job := newTestJob(t)
		job.UpdatedAt = time.Now().UTC().Add(-time.Hour)
		now := time.Now().UTC()
		mock.ExpectExec("UPDATE jobs").
			WithArgs(job.ID, job.Status, now, job.UpdatedAt).
			WillReturnResult(sqlmock.NewResult(0, 1))

		repo := NewPostgreSQLJobRepository(db)
		claimed, err := repo.Claim(context.Background(), job, now)

		require.NoError(t, err)
		assert.True(t, claimed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Success_AlreadyTakenByAnotherWorker", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close() //nolint:errcheck

		// The claim update compares the row version the caller listed; a row
		// already claimed elsewhere carries a newer updated_at and matches
		// zero rows.
		mock.ExpectExec("UPDATE jobs").WillReturnResult(sqlmock.NewResult(0, 0))

		repo := NewPostgreSQLJobRepository(db)
		claimed, err := repo.Claim(context.Background(), newTestJob(t), time.Now().UTC())

		require.NoError(t, err)
		assert.False(t, claimed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
