package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, PolygonChainID, cfg.Chain.ID)
	assert.Equal(t, "0xaB45c5A4B0c941a2F231C04C3f49182e1A254052", cfg.Contracts.ProxyFactory)
	assert.Equal(t, "0xD216153c06E857cD7f72665E0aF1d7D82172F494", cfg.Contracts.RelayHub)
	assert.Equal(t, 2*time.Second, cfg.Relayer.PollInterval)
	assert.Equal(t, 30, cfg.Relayer.PollMaxAttempts)
	assert.Equal(t, time.Duration(0), cfg.Session.MaxAge)
	assert.Equal(t, "memory", cfg.Session.Store)
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsOtherChains(t *testing.T) {
	cfg := Default()
	cfg.Chain.ID = 1
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsBadContract(t *testing.T) {
	cfg := Default()
	cfg.Contracts.RelayHub = "0x1234"
	assert.ErrorContains(t, cfg.Validate(), "contracts.relay_hub")
}

func TestValidateRejectsUnknownStore(t *testing.T) {
	cfg := Default()
	cfg.Session.Store = "etcd"
	assert.Error(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("POLYMARKET_MAGIC_PK", "abc123")
	t.Setenv("POLYSESSION_SESSION_MAX_AGE", "36h")
	t.Setenv("POLYSESSION_CLOB_BASE_URL", "http://localhost:9999")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "abc123", cfg.Wallet.PrivateKey)
	assert.Equal(t, 36*time.Hour, cfg.Session.MaxAge)
	assert.Equal(t, "http://localhost:9999", cfg.Clob.BaseURL)
}

func TestBuilderEnabled(t *testing.T) {
	assert.False(t, BuilderConfig{ApiKey: "k"}.Enabled())
	assert.True(t, BuilderConfig{ApiKey: "k", ApiSecret: "s", ApiPassphrase: "p"}.Enabled())
}
