package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
log_level = "debug"
close_interval = 3

[database]
driver = "sqlite"
dsn = "file:test.db"

[node_store]
enabled = true
path = "/tmp/margind-nodestore"

[feed]
enabled = true
listen_addr = "127.0.0.1:9010"

[[trading]]
name = "MRGBAS"

[trading.coin1]
code = "MRG"
issuer = "GISSUER"

[trading.coin2]
code = "BAS"
issuer = "GBASEISSUER"

[trading.base_asset]
code = "BAS"
issuer = "GBASEISSUER"

[trading.reference_feed]
data_name = "ION"
issuer = "GFEED"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "margind.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadParsesFullConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 3, cfg.CloseInterval)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.True(t, cfg.NodeStore.Enabled)
	assert.Equal(t, "127.0.0.1:9010", cfg.Feed.ListenAddr)

	require.Len(t, cfg.Trading, 1)
	pair := cfg.Trading[0]
	assert.Equal(t, "MRGBAS", pair.Name)
	assert.Equal(t, "MRG", pair.Coin1.Code)
	assert.Equal(t, "GBASEISSUER", pair.BaseAsset.Issuer)
	assert.Equal(t, "ION", pair.ReferenceFeed.DataName)
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ``))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 5, cfg.CloseInterval)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Empty(t, cfg.Trading)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	_, err := Load(writeConfig(t, `
[database]
driver = "oracle"
`))
	assert.Error(t, err)
}

func TestLoadRejectsIncompletePair(t *testing.T) {
	_, err := Load(writeConfig(t, `
[[trading]]
name = "BROKEN"

[trading.coin1]
code = "MRG"
`))
	assert.Error(t, err)
}

func TestTradingPairsConversion(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	pairs := cfg.TradingPairs()
	require.Len(t, pairs, 1)
	assert.Equal(t, "MRGBAS", pairs[0].Name)
	assert.Equal(t, "MRG", pairs[0].Coin1.Code)
	assert.True(t, pairs[0].Coin2.Asset().Equals(pairs[0].BaseAsset.Asset()))
}
