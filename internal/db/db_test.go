package db

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bohemiyan/LMS/internal/config"
)

func TestOpenSQLite(t *testing.T) {
	cfg := &config.Config{DBDriver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "lms.db")}

	d, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, d.GormDB.Exec("CREATE TABLE scratch (id integer primary key)").Error)
	assert.NoError(t, d.Close())
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(&config.Config{DBDriver: "oracle"})
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &config.Config{RedisEnabled: true, RedisHost: mr.Host()}
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	cfg.RedisPort = port

	client, err := NewRedisClient(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, client)
	assert.NoError(t, client.Close())
}

func TestNewRedisClientDisabled(t *testing.T) {
	client, err := NewRedisClient(context.Background(), &config.Config{})
	require.NoError(t, err)
	assert.Nil(t, client)
}

func TestNewRedisClientUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &config.Config{RedisEnabled: true, RedisHost: mr.Host()}
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	cfg.RedisPort = port
	mr.Close()

	_, err = NewRedisClient(context.Background(), cfg)
	assert.ErrorContains(t, err, "failed to connect to redis")
}
