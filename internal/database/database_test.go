package database

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitPostgresTables(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS bips").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_bips_day_created_at").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, InitPostgresTables(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConnectRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := ConnectRedis(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	defer client.Close()
	assert.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
}

func TestConnectRedisRejectsBadURI(t *testing.T) {
	_, err := ConnectRedis(context.Background(), "http://not-redis")
	assert.Error(t, err)
}
