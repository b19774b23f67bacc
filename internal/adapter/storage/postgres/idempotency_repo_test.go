package postgres

import (
	"context"
	"testing"
	"time"

	"settlement-gateway/internal/core/domain"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewIdempotencyRepo(mock)
	rec := &domain.IdempotencyRecord{
		Key:          domain.BuildWithdrawalIdempotencyKey("merchant-1", "req-001"),
		ResourceID:   "5b7f0b64-6a7e-4d55-b1a8-6a3c1c0d9e10",
		ResponseJSON: []byte(`{"status":"REQUESTED"}`),
		CreatedAt:    time.Now().UTC().Truncate(time.Microsecond),
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO idempotency_keys").
		WithArgs(rec.Key, rec.ResourceID, rec.ResponseJSON, rec.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Create(context.Background(), tx, rec)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyRepo_Get(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewIdempotencyRepo(mock)
	now := time.Now().UTC().Truncate(time.Microsecond)

	mock.ExpectQuery("SELECT .+ FROM idempotency_keys WHERE key").
		WithArgs("merchant-1:withdrawal:req-001").
		WillReturnRows(pgxmock.NewRows([]string{"key", "resource_id", "response_json", "created_at"}).
			AddRow("merchant-1:withdrawal:req-001", "w-1", []byte(`{"status":"REQUESTED"}`), now))

	result, err := repo.Get(context.Background(), "merchant-1:withdrawal:req-001")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "w-1", result.ResourceID)
	assert.Equal(t, []byte(`{"status":"REQUESTED"}`), result.ResponseJSON)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyRepo_Get_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewIdempotencyRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM idempotency_keys WHERE key").
		WithArgs("nonexistent-key").
		WillReturnRows(pgxmock.NewRows([]string{"key", "resource_id", "response_json", "created_at"}))

	result, err := repo.Get(context.Background(), "nonexistent-key")
	assert.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}
