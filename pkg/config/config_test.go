package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"MARATHON_LISTEN_ADDR", "MARATHON_DATA_DIR", "MARATHON_LOGIN_URL",
		"MARATHON_ORDERS_URL", "MARATHON_DASHBOARD_URL",
		"MARATHON_COMPLIANCE_API_URL", "MARATHON_HEADLESS", "PORT",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.True(t, cfg.Headless)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "marathon.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"listen_addr: \":8080\"\ndata_dir: /var/lib/marathon\nheadless: false\n"), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "/var/lib/marathon", cfg.DataDir)
	assert.False(t, cfg.Headless)
	// Unset fields keep their defaults.
	assert.Equal(t, Default().LoginURL, cfg.LoginURL)
}

func TestLoadMalformedFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "marathon.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen_addr: [unclosed"), 0600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("MARATHON_DATA_DIR", "/tmp/marathon-data")
	t.Setenv("MARATHON_HEADLESS", "false")
	t.Setenv("PORT", "9000")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/marathon-data", cfg.DataDir)
	assert.False(t, cfg.Headless)
	assert.Equal(t, ":9000", cfg.ListenAddr)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.DataDir = ""
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.LoginURL = ""
	assert.Error(t, cfg.Validate())

	assert.NoError(t, Default().Validate())
}
