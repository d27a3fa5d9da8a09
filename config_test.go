package scheduler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsInternallyConsistent(t *testing.T) {
	cfg := DefaultConfig()
	assert.LessOrEqual(t, cfg.MinThreads, cfg.MaxThreads)
	assert.Greater(t, cfg.MaxThreads, 0)
	for pr := Priority(0); pr < numPriorities; pr++ {
		assert.GreaterOrEqual(t, cfg.FifoMax[pr], int64(0))
	}
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scheduler.yaml")
	contents := `
backend: work-stealing
min_threads: 2
max_threads: 8
ongoing_low_priority_limit: 16
priority_skip_threshold: 5
fifo_max:
  high: 100
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, BackendWorkStealing, cfg.Backend)
	assert.Equal(t, 2, cfg.MinThreads)
	assert.Equal(t, 8, cfg.MaxThreads)
	assert.Equal(t, int64(16), cfg.OngoingLowPriorityLimit)
	assert.Equal(t, int64(5), cfg.PrioritySkipThreshold)
	assert.Equal(t, int64(100), cfg.FifoMax[PriorityHigh])
	assert.Equal(t, DefaultConfig().FifoMax[PriorityLow], cfg.FifoMax[PriorityLow])
}

func TestLoadConfigRejectsUnknownBackend(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scheduler.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend: quantum\n"), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigMissingFileErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
