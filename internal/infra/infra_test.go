package infra

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPostgresConfigAppliesPoolOptions(t *testing.T) {
	cfg, err := postgresConfig("postgres://economy:secret@db:5432/economy?sslmode=disable", PoolOptions{AppName: "deepwater-economy", MaxConns: 24})
	require.NoError(t, err)
	require.EqualValues(t, 24, cfg.MaxConns)
	require.Equal(t, "deepwater-economy", cfg.ConnConfig.RuntimeParams["application_name"])
	require.Equal(t, "db", cfg.ConnConfig.Host)

	cfg, err = postgresConfig("postgres://economy@db/economy?pool_max_conns=7", PoolOptions{})
	require.NoError(t, err)
	require.EqualValues(t, 7, cfg.MaxConns)

	_, err = postgresConfig("", PoolOptions{})
	require.Error(t, err)
}

func TestRedisOptionsNameTheClient(t *testing.T) {
	opt, err := redisOptions("redis://cache:6379/2", "deepwater-economy", 32)
	require.NoError(t, err)
	require.Equal(t, "deepwater-economy", opt.ClientName)
	require.Equal(t, 32, opt.PoolSize)
	require.Equal(t, 2, opt.DB)
	require.Equal(t, "cache:6379", opt.Addr)

	_, err = redisOptions("", "x", 0)
	require.Error(t, err)
	_, err = redisOptions("http://nope", "x", 0)
	require.Error(t, err)
}
