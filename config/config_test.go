package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	testCases := []struct {
		name   string
		reader io.Reader
	}{
		{"nil reader", nil},
		{"empty reader", strings.NewReader("")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load(tc.reader)
			require.NoError(t, err)

			require.Len(t, cfg.Store.Namespaces, 1)
			assert.Equal(t, "test", cfg.Store.Namespaces[0].Name)
			assert.Equal(t, "0", cfg.Store.Namespaces[0].DefaultTTL)
			assert.Equal(t, "30s", cfg.Store.SweepInterval)
			assert.Equal(t, "60s", cfg.Store.StatsInterval)
			assert.Equal(t, "info", cfg.Logging.Level)
			assert.Equal(t, "stdout", cfg.Logging.Output)
			assert.False(t, cfg.Tracing.Enabled)
			assert.Equal(t, "localhost:4317", cfg.Tracing.Endpoint)
			assert.Equal(t, "grpc", cfg.Tracing.Protocol)
			assert.Equal(t, "expireDemo", cfg.Demo.Set)
		})
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	yamlData := `
store:
  namespaces:
    - name: prod
      default_ttl: 5m
    - name: cache
      default_ttl: 30s
  sweep_interval: 10s
logging:
  level: debug
  output: file
  file: /var/log/nexuskv.log
tracing:
  enabled: true
  protocol: http
`
	cfg, err := Load(strings.NewReader(yamlData))
	require.NoError(t, err)

	require.Len(t, cfg.Store.Namespaces, 2)
	assert.Equal(t, "prod", cfg.Store.Namespaces[0].Name)
	assert.Equal(t, "5m", cfg.Store.Namespaces[0].DefaultTTL)
	assert.Equal(t, "cache", cfg.Store.Namespaces[1].Name)
	assert.Equal(t, "10s", cfg.Store.SweepInterval)
	// Fields the file does not mention keep their defaults.
	assert.Equal(t, "60s", cfg.Store.StatsInterval)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "file", cfg.Logging.Output)
	assert.Equal(t, "/var/log/nexuskv.log", cfg.Logging.File)
	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, "http", cfg.Tracing.Protocol)
	assert.Equal(t, "localhost:4317", cfg.Tracing.Endpoint)
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(strings.NewReader("store: [not a mapping"))
	assert.ErrorContains(t, err, "failed to unmarshal config yaml")
}

func TestLoadConfig_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "30s", cfg.Store.SweepInterval)
}

func TestLoadConfig_ReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: warn\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestParseDuration(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	testCases := []struct {
		name     string
		input    string
		def      time.Duration
		expected time.Duration
	}{
		{"valid seconds", "15s", time.Minute, 15 * time.Second},
		{"valid compound", "1m30s", time.Minute, 90 * time.Second},
		{"empty uses default", "", time.Minute, time.Minute},
		{"zero uses default", "0", time.Minute, time.Minute},
		{"garbage uses default", "soon", time.Minute, time.Minute},
		{"missing unit uses default", "15", time.Minute, time.Minute},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, ParseDuration(tc.input, tc.def, logger))
		})
	}

	// A nil logger must not panic on the warning path.
	assert.Equal(t, time.Minute, ParseDuration("bogus", time.Minute, nil))
}
