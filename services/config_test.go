package services

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  addr: ":9090"
postgres:
  host: db.internal
  password: secret
auction:
  owner: deployer
  reserve_price: "1000000000000000000000"
  duration: 24h
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, "db.internal", cfg.Postgres.Host)
	assert.Equal(t, "deployer", cfg.Auction.Owner)
	assert.Equal(t, 24*time.Hour, cfg.Auction.Duration.Std())

	// Unset fields keep their defaults.
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.Equal(t, 10*time.Second, cfg.HTTP.ReadTimeout.Std())
	assert.Equal(t, "SQUID", cfg.Auction.PaymentSymbol)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{not yaml"), 0o644))
	_, err = LoadConfig(path)
	require.Error(t, err)
}
