package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("API_ADDR", "")
	t.Setenv("INSPO_STORE_DRIVER", "")
	t.Setenv("INSPO_TOP_DOWNLOADS", "")
	t.Setenv("INSPO_ANALYTICS_CACHE_TTL_SECONDS", "")

	cfg := Load()
	assert.Equal(t, ":8787", cfg.Addr)
	assert.Equal(t, StoreDriverPostgres, cfg.StoreDriver)
	assert.Equal(t, 24, cfg.TopDownloadsLimit)
	assert.Equal(t, 30*time.Second, cfg.AnalyticsCacheTTL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("INSPO_STORE_DRIVER", "Memory")
	t.Setenv("INSPO_TOP_DOWNLOADS", "10")
	t.Setenv("ASSET_USE_SSL", "true")
	t.Setenv("INSPO_ANALYTICS_CACHE_TTL_SECONDS", "not-a-number")

	cfg := Load()
	assert.Equal(t, StoreDriverMemory, cfg.StoreDriver)
	assert.Equal(t, 10, cfg.TopDownloadsLimit)
	assert.True(t, cfg.AssetUseSSL)
	assert.Equal(t, 30*time.Second, cfg.AnalyticsCacheTTL)
}

func TestLoadDotEnvDoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("INSPO_DOTENV_A=from-file\nINSPO_DOTENV_B=from-file\n"), 0o600))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	t.Setenv("INSPO_DOTENV_A", "from-env")
	t.Setenv("INSPO_DOTENV_B", "")
	require.NoError(t, os.Unsetenv("INSPO_DOTENV_B"))

	loaded := LoadDotEnv()
	assert.Equal(t, []string{".env"}, loaded)
	assert.Equal(t, "from-env", os.Getenv("INSPO_DOTENV_A"))
	assert.Equal(t, "from-file", os.Getenv("INSPO_DOTENV_B"))
}
