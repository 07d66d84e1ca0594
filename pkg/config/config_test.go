package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "controller.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadOverridesDefaultsPiecewise(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "strategy:\n  sample_threshold: 999\ncontroller:\n  num_workers: 8\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.EqualValues(t, 999, cfg.Strategy.SampleThreshold)
	assert.Equal(t, 8, cfg.Controller.NumWorkers)
	// Untouched keys keep Default()'s values.
	assert.EqualValues(t, 3000, cfg.Strategy.ScorchingSampleThreshold)
	assert.Equal(t, "memory", cfg.Persistence.Backend)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestWatcherFiresOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "controller:\n  num_workers: 1\n")

	changed := make(chan *Config, 1)
	w, err := NewWatcher(path, 20*time.Millisecond, func(cfg *Config, err error) {
		if err == nil {
			changed <- cfg
		}
	})
	require.NoError(t, err)
	w.Start()
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("controller:\n  num_workers: 5\n"), 0o644))

	select {
	case cfg := <-changed:
		assert.Equal(t, 5, cfg.Controller.NumWorkers)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher never fired")
	}
}
