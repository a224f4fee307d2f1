package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 8, cfg.Calibration.RescaleFactor)
	assert.Equal(t, 2, cfg.Calibration.Order)
	assert.Equal(t, 5, cfg.Calibration.PreviewEvery)
	assert.Equal(t, 4, cfg.Extraction.RescaleFactor)
	assert.Equal(t, 5, cfg.Extraction.Skip)
	assert.Equal(t, 1.0, cfg.Extraction.Exposure)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadOverridesAndDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	doc := "calibration:\n  order: 3\n  rescale_factor: 4\nextraction:\n  exposure: 0.8\nlogging:\n  format: json\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Calibration.Order)
	assert.Equal(t, 4, cfg.Calibration.RescaleFactor)
	assert.Equal(t, 0.8, cfg.Extraction.Exposure)
	assert.Equal(t, 5, cfg.Extraction.Skip)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadRejectsBadOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("calibration:\n  order: 4\n"), 0644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "order")
}

func TestPreviewEveryZeroDisables(t *testing.T) {
	dir := t.TempDir()
	off := filepath.Join(dir, "off.yaml")
	require.NoError(t, os.WriteFile(off, []byte("calibration:\n  preview_every: 0\n"), 0644))
	absent := filepath.Join(dir, "absent.yaml")
	require.NoError(t, os.WriteFile(absent, []byte("parallel: true\n"), 0644))

	cfg, err := Load(off)
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Calibration.PreviewEvery)

	cfg, err = Load(absent)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Calibration.PreviewEvery)
	assert.True(t, cfg.Parallel)
}
