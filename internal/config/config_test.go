package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 100, cfg.Ingest.MaxLogMsgLength)
	assert.Equal(t, 5, cfg.Stitch.ShortTermWindow)
	assert.InDelta(t, 0.05, cfg.Stitch.ScaledSlopeBound, 1e-12)
	assert.InDelta(t, 2.0, cfg.Stitch.L1DeviationBound, 1e-12)
	assert.Equal(t, "json", cfg.Analysis.OutputExt)
	assert.Equal(t, "127.0.0.1:8399", cfg.GetServerAddr())
}

func TestLoadFile(t *testing.T) {
	content := `
ingest:
  timezone_minutes: 120
  max_log_msg_length: 40
analysis:
  caching_services: [redis, memcache]
  comma_float: true
stitch:
  drop_count: 10
dashboard:
  port: 9000
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 120, cfg.Ingest.TimezoneMinutes)
	assert.Equal(t, 40, cfg.Ingest.MaxLogMsgLength)
	assert.Equal(t, []string{"redis", "memcache"}, cfg.Analysis.CachingServices)
	assert.True(t, cfg.Analysis.CommaFloat)
	assert.Equal(t, 10, cfg.Stitch.DropCount)
	assert.Equal(t, 9000, cfg.Dashboard.Port)
	// untouched values keep their defaults
	assert.Equal(t, 5, cfg.Stitch.ShortTermWindow)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SPANLENS_TZ_MINUTES", "60")
	t.Setenv("SPANLENS_CACHING_SERVICES", "redis, memcache")
	t.Setenv("SPANLENS_COMMA_FLOAT", "true")

	cfg := LoadFromEnv()
	assert.Equal(t, 60, cfg.Ingest.TimezoneMinutes)
	assert.Equal(t, []string{"redis", "memcache"}, cfg.Analysis.CachingServices)
	assert.True(t, cfg.Analysis.CommaFloat)
}
