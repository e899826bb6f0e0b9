package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/siftkit/pkg/sift"
	"github.com/menta2k/siftkit/pkg/vision"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, sift.DefaultParams(), cfg.SIFT)
	assert.Equal(t, vision.DefaultConfig(), cfg.Vision.Detector())
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := Default()
	cfg.SIFT.Octaves = 3
	cfg.Storage.Backend = "minio"
	cfg.Storage.Bucket = "features"
	cfg.Storage.Endpoint = "localhost:9000"
	require.NoError(t, cfg.SaveToFile(path))

	got, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestLoadKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"sift":{"octaves":2},"logging":{"level":"debug"}}`), 0o644))

	got, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, got.SIFT.Octaves)
	assert.Equal(t, 5, got.SIFT.Intervals)
	assert.Equal(t, "debug", got.Logging.Level)
	assert.Equal(t, "text", got.Logging.Format)
}

func TestLoadErrors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "failed to read")

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))
	_, err = LoadFromFile(path)
	assert.ErrorContains(t, err, "failed to parse")
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"backend":     func(c *Config) { c.Detection.Backend = "" },
		"mask":        func(c *Config) { c.Detection.Mask = "blur" },
		"provider":    func(c *Config) { c.Detection.Mask = MaskModel; c.Detection.Provider = "openai" },
		"ratio":       func(c *Config) { c.Matching.Ratio = 1.5 },
		"threshold":   func(c *Config) { c.Geometry.Threshold = 0 },
		"confidence":  func(c *Config) { c.Geometry.Confidence = 1 },
		"storage":     func(c *Config) { c.Storage.Backend = "ftp" },
		"bucket":      func(c *Config) { c.Storage.Backend = "s3" },
		"packing":     func(c *Config) { c.Storage.Packing = "raw" },
		"compression": func(c *Config) { c.Storage.Compression = "gzip" },
		"quality":     func(c *Config) { c.Output.Quality = 0 },
		"format":      func(c *Config) { c.Output.OverlayFormat = "gif" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestGetConfigPath(t *testing.T) {
	assert.Equal(t, "config.json", filepath.Base(GetConfigPath()))
}
