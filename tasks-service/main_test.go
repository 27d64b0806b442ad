package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asad-bukhari/task-flow-organizer/internal/config"
	"github.com/asad-bukhari/task-flow-organizer/internal/middleware"
)

func TestNewRateLimitStore(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, closeStore, err := newRateLimitStore(ctx, &config.Config{RateLimitEnabled: false})
	require.NoError(t, err)
	assert.Nil(t, store)
	closeStore()

	store, closeStore, err = newRateLimitStore(ctx, &config.Config{RateLimitEnabled: true, RateLimitBackend: config.BackendMemory})
	require.NoError(t, err)
	assert.IsType(t, &middleware.MemoryStore{}, store)
	closeStore()

	store, closeStore, err = newRateLimitStore(ctx, &config.Config{RateLimitEnabled: true, RateLimitBackend: config.BackendTokenBucket})
	require.NoError(t, err)
	assert.IsType(t, &middleware.TokenBucketStore{}, store)
	closeStore()

	mr := miniredis.RunT(t)
	store, closeStore, err = newRateLimitStore(ctx, &config.Config{
		RateLimitEnabled: true,
		RateLimitBackend: config.BackendRedis,
		RedisAddr:        mr.Addr(),
	})
	require.NoError(t, err)
	assert.IsType(t, &middleware.RedisStore{}, store)
	closeStore()
}

func TestNewRateLimitStore_RedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, _, err := newRateLimitStore(context.Background(), &config.Config{
		RateLimitEnabled: true,
		RateLimitBackend: config.BackendRedis,
		RedisAddr:        addr,
	})
	assert.Error(t, err)
}

func TestMigrateCommand_SQLite(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "tasks.db")
	t.Setenv("DB_DRIVER", "sqlite3")
	t.Setenv("DATABASE_URL", "file:"+dbPath)
	t.Setenv("LOG_LEVEL", "error")

	cmd := newRootCommand()
	cmd.SetArgs([]string{"migrate", "--env-file", filepath.Join(t.TempDir(), "none.env")})
	require.NoError(t, cmd.Execute())
	assert.FileExists(t, dbPath)
}

func TestRootCommand_InvalidConfig(t *testing.T) {
	t.Setenv("DB_DRIVER", "mysql")
	t.Setenv("DATABASE_URL", "whatever")

	cmd := newRootCommand()
	cmd.SetArgs([]string{"migrate", "--env-file", filepath.Join(t.TempDir(), "none.env")})
	err := cmd.Execute()
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalidDriver)
}
