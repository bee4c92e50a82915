package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestValkey(limit int) (*ValkeyClient, redismock.ClientMock) {
	db, mock := redismock.NewClientMock()
	client := NewValkeyClientWith(db, Config{ScanLimit: limit, ScanWindow: time.Minute})
	return client, mock
}

func expectScan(mock redismock.ClientMock, count int64, expirySet bool) {
	mock.ExpectTxPipeline()
	mock.ExpectIncr("scan:rate:staff1").SetVal(count)
	mock.ExpectExpireNX("scan:rate:staff1", time.Minute).SetVal(expirySet)
	mock.ExpectTxPipelineExec()
}

func TestAllowScan_FirstScanSetsWindow(t *testing.T) {
	client, mock := setupTestValkey(2)

	expectScan(mock, 1, true)

	ok, err := client.AllowScan(context.Background(), "staff1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAllowScan_OverLimit(t *testing.T) {
	client, mock := setupTestValkey(2)

	expectScan(mock, 3, false)

	ok, err := client.AllowScan(context.Background(), "staff1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAllowScan_FailedExpiryIsRepairedByNextScan(t *testing.T) {
	client, mock := setupTestValkey(2)
	ctx := context.Background()

	mock.ExpectTxPipeline()
	mock.ExpectIncr("scan:rate:staff1").SetVal(1)
	mock.ExpectExpireNX("scan:rate:staff1", time.Minute).SetErr(errors.New("i/o timeout"))
	mock.ExpectTxPipelineExec()

	_, err := client.AllowScan(ctx, "staff1")
	require.Error(t, err)

	// The counter has no TTL yet; the next scan sets it.
	expectScan(mock, 2, true)

	ok, err := client.AllowScan(ctx, "staff1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAllowScan_Error(t *testing.T) {
	client, mock := setupTestValkey(2)

	mock.ExpectTxPipeline()
	mock.ExpectIncr("scan:rate:staff1").SetErr(errors.New("connection refused"))

	_, err := client.AllowScan(context.Background(), "staff1")
	assert.Error(t, err)
}

func TestRevokeSession(t *testing.T) {
	client, mock := setupTestValkey(0)

	mock.ExpectSet("session:revoked:jti-1", "1", time.Hour).SetVal("OK")
	require.NoError(t, client.RevokeSession(context.Background(), "jti-1", time.Hour))

	// Already expired tokens need no entry.
	require.NoError(t, client.RevokeSession(context.Background(), "jti-2", -time.Minute))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsRevoked(t *testing.T) {
	client, mock := setupTestValkey(0)

	mock.ExpectExists("session:revoked:jti-1").SetVal(1)
	mock.ExpectExists("session:revoked:jti-2").SetVal(0)

	revoked, err := client.IsRevoked(context.Background(), "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = client.IsRevoked(context.Background(), "jti-2")
	require.NoError(t, err)
	assert.False(t, revoked)
	assert.NoError(t, mock.ExpectationsWereMet())
}
