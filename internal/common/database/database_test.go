package database

import (
	"context"
	"testing"

	"clarify-api/internal/common/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedis_Ping(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := NewRedis(config.RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	defer client.Close()

	assert.NoError(t, client.Ping(context.Background()))
}

func TestNewRedis_RequiresAddress(t *testing.T) {
	_, err := NewRedis(config.RedisConfig{})
	assert.Error(t, err)
}

func TestNewRedis_PingFailsWhenServerGone(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client, err := NewRedis(config.RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	defer client.Close()

	mr.Close()
	assert.Error(t, client.Ping(context.Background()))
}

func TestNewPostgres_AppliesPoolSettings(t *testing.T) {
	client, err := NewPostgres(config.PostgresConfig{
		Host:           "localhost",
		Port:           5432,
		Database:       "clarify",
		User:           "clarify",
		SSLMode:        "disable",
		MaxConnections: 7,
		MaxIdle:        2,
	})
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, 7, client.DB.Stats().MaxOpenConnections)
}
