package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWhenNoPath(t *testing.T) {
	t.Setenv(EnvAPIURL, "")
	t.Setenv(EnvAPIToken, "")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8000", cfg.API.BaseURL)
	require.Equal(t, 10*time.Second, cfg.OrderInterval())
	require.Equal(t, 30*time.Second, cfg.PaymentInterval())
	require.Equal(t, 8*time.Second, cfg.FetchTimeout())
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watcher.yaml")
	content := `
api:
  base_url: https://panel.example.com/api
  token: file-token
  timeout_seconds: 5
poll:
  order_interval_seconds: 15
  payment_interval_seconds: 45
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "https://panel.example.com/api", cfg.API.BaseURL)
	require.Equal(t, "file-token", cfg.API.Token)
	require.Equal(t, 5*time.Second, cfg.APITimeout())
	require.Equal(t, 15*time.Second, cfg.OrderInterval())
	require.Equal(t, 45*time.Second, cfg.PaymentInterval())
	require.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watcher.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api:\n  base_url: https://file.example.com\n  token: file-token\n"), 0o600))

	t.Setenv(EnvAPIURL, "https://env.example.com")
	t.Setenv(EnvAPIToken, "env-token")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "https://env.example.com", cfg.API.BaseURL)
	require.Equal(t, "env-token", cfg.API.Token)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoad_InvalidInterval(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watcher.yaml")
	require.NoError(t, os.WriteFile(path, []byte("poll:\n  order_interval_seconds: 0\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watcher.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api: [unclosed"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}
