package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "X-Operator-ID", cfg.Server.OperatorHeader)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 1, cfg.WorkerPool.Size)
	assert.Equal(t, 16, cfg.WorkerPool.QueueSize)
	assert.Equal(t, 0.8, cfg.Scheduler.UpperThreshold)
	assert.Equal(t, 0.5, cfg.Scheduler.LowerThreshold)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.LeaseTTL)
	assert.Equal(t, 10*time.Second, cfg.Estimator.Timeout)
	assert.Equal(t, 30, cfg.Estimator.SecondsPerPack)
}

func TestLoad(t *testing.T) {
	testCases := []struct {
		name        string
		content     string
		expectError bool
		check       func(t *testing.T, cfg *Config)
	}{
		{
			name: "explicit values win over defaults",
			content: `
server:
  port: 9090
database:
  driver: sqlite
  dsn: "file::memory:"
worker_pool:
  size: 4
scheduler:
  upper_threshold: 0.9
  needs_lift_levels: [1, 2]
  lease_ttl_seconds: 60
  rerun_on_drain: true
estimator:
  base_url: http://pharmacy.local
  timeout_seconds: 3
`,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 9090, cfg.Server.Port)
				assert.Equal(t, "sqlite", cfg.Database.Driver)
				assert.Equal(t, 4, cfg.WorkerPool.Size)
				assert.Equal(t, 64, cfg.WorkerPool.QueueSize)
				assert.Equal(t, 0.9, cfg.Scheduler.UpperThreshold)
				assert.Equal(t, 0.5, cfg.Scheduler.LowerThreshold)
				assert.Equal(t, []int{1, 2}, cfg.Scheduler.NeedsLiftLevels)
				assert.Equal(t, time.Minute, cfg.Scheduler.LeaseTTL)
				assert.True(t, cfg.Scheduler.RerunOnDrain)
				assert.Equal(t, "http://pharmacy.local", cfg.Estimator.BaseURL)
				assert.Equal(t, 3*time.Second, cfg.Estimator.Timeout)
			},
		},
		{
			name:        "malformed yaml",
			content:     "server: [",
			expectError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tc.content), 0o600))

			cfg, err := Load(path)
			if tc.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tc.check(t, cfg)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
