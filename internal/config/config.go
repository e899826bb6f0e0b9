package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/menta2k/siftkit/pkg/geometry"
	"github.com/menta2k/siftkit/pkg/match"
	"github.com/menta2k/siftkit/pkg/sift"
	"github.com/menta2k/siftkit/pkg/store"
	"github.com/menta2k/siftkit/pkg/vision"
)

// Config holds the application configuration
type Config struct {
	SIFT      sift.Params     `json:"sift"`
	Detection DetectionConfig `json:"detection"`
	Vision    VisionConfig    `json:"vision"`
	Matching  match.Config    `json:"matching"`
	Geometry  geometry.Config `json:"geometry"`
	Storage   StorageConfig   `json:"storage"`
	Output    OutputConfig    `json:"output"`
	Logging   LoggingConfig   `json:"logging"`
}

// Mask sources for DetectionConfig.Mask
const (
	MaskNone     = "none"
	MaskSaliency = "saliency"
	MaskModel    = "model"
)

// DetectionConfig selects the backend and where detection masks come from
type DetectionConfig struct {
	Backend   string `json:"backend"`
	BlockSize int    `json:"block_size"`
	Workers   int    `json:"workers"`
	// Mask is one of "none", "saliency" or "model"
	Mask string `json:"mask"`
	// Provider is the vision model server for model masks: "ollama" or "llamacpp"
	Provider      string  `json:"provider"`
	URL           string  `json:"url"`
	Model         string  `json:"model"`
	MinConfidence float64 `json:"min_confidence"`
	// DownloadRate limits image downloads per second; zero disables the limit
	DownloadRate float64 `json:"download_rate"`
}

// VisionConfig holds configuration for saliency masks
type VisionConfig struct {
	EdgeThreshold    float64 `json:"edge_threshold"`
	ContrastWeight   float64 `json:"contrast_weight"`
	BrightnessWeight float64 `json:"brightness_weight"`
	MinSubjectRatio  float64 `json:"min_subject_ratio"`
	MaxRegions       int     `json:"max_regions"`
	Padding          float64 `json:"padding"`
}

// Detector returns the saliency detector settings
func (v VisionConfig) Detector() vision.DetectionConfig {
	return vision.DetectionConfig{
		EdgeThreshold:    v.EdgeThreshold,
		ContrastWeight:   v.ContrastWeight,
		BrightnessWeight: v.BrightnessWeight,
		MinSubjectRatio:  v.MinSubjectRatio,
		MaxRegions:       v.MaxRegions,
		Padding:          v.Padding,
	}
}

// StorageConfig selects where keypoint collections are persisted
type StorageConfig struct {
	// Backend is one of "local", "memory", "s3" or "minio"
	Backend     string `json:"backend"`
	Root        string `json:"root"`
	Bucket      string `json:"bucket"`
	Prefix      string `json:"prefix"`
	Endpoint    string `json:"endpoint"`
	Region      string `json:"region"`
	AccessKey   string `json:"access_key"`
	SecretKey   string `json:"secret_key"`
	Secure      bool   `json:"secure"`
	Packing     string `json:"packing"`
	Compression string `json:"compression"`
}

// OutputConfig holds configuration for output generation
type OutputConfig struct {
	OutputDir     string `json:"output_dir"`
	OverlayFormat string `json:"overlay_format"`
	Quality       int    `json:"quality"`
	Lossless      bool   `json:"lossless"`
	Suffix        string `json:"suffix"`
}

// LoggingConfig holds the library logger settings
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Default returns a configuration with default values
func Default() *Config {
	v := vision.DefaultConfig()
	return &Config{
		SIFT: sift.DefaultParams(),
		Detection: DetectionConfig{
			Backend:       "pure",
			Workers:       4,
			Mask:          MaskNone,
			Provider:      "ollama",
			URL:           "http://localhost:11434",
			Model:         "llava",
			MinConfidence: 0.3,
			DownloadRate:  4,
		},
		Vision: VisionConfig{
			EdgeThreshold:    v.EdgeThreshold,
			ContrastWeight:   v.ContrastWeight,
			BrightnessWeight: v.BrightnessWeight,
			MinSubjectRatio:  v.MinSubjectRatio,
			MaxRegions:       v.MaxRegions,
			Padding:          v.Padding,
		},
		Matching: match.DefaultConfig(),
		Geometry: geometry.DefaultConfig(),
		Storage: StorageConfig{
			Backend:     "local",
			Root:        "./features",
			Packing:     sift.LegacyPacking.Name(),
			Compression: string(store.CompressionZSTD),
		},
		Output: OutputConfig{
			OutputDir:     "./output",
			OverlayFormat: "png",
			Quality:       90,
			Suffix:        "_keypoints",
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// LoadFromFile loads configuration from a JSON file. Missing fields keep
// their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Detection.Backend == "" {
		return fmt.Errorf("detection.backend is required")
	}
	if !slices.Contains([]string{MaskNone, MaskSaliency, MaskModel}, c.Detection.Mask) {
		return fmt.Errorf("detection.mask must be none, saliency or model")
	}
	if c.Detection.Mask == MaskModel && !slices.Contains([]string{"ollama", "llamacpp"}, c.Detection.Provider) {
		return fmt.Errorf("detection.provider must be ollama or llamacpp")
	}
	if c.Detection.MinConfidence < 0 || c.Detection.MinConfidence > 1 {
		return fmt.Errorf("detection.min_confidence must be between 0 and 1")
	}
	if c.Detection.Workers < 0 || c.Detection.BlockSize < 0 || c.Detection.DownloadRate < 0 {
		return fmt.Errorf("detection.workers, block_size and download_rate cannot be negative")
	}

	if c.Vision.EdgeThreshold < 0 || c.Vision.EdgeThreshold > 1 {
		return fmt.Errorf("vision.edge_threshold must be between 0 and 1")
	}
	if c.Vision.MinSubjectRatio < 0 || c.Vision.MinSubjectRatio > 1 {
		return fmt.Errorf("vision.min_subject_ratio must be between 0 and 1")
	}

	if c.Matching.Ratio < 0 || c.Matching.Ratio > 1 {
		return fmt.Errorf("matching.ratio must be between 0 and 1")
	}
	if c.Matching.MaxDistance < 0 {
		return fmt.Errorf("matching.max_distance cannot be negative")
	}

	if c.Geometry.Method != geometry.EightPoint && c.Geometry.Method != geometry.RANSAC {
		return fmt.Errorf("geometry.method must be 0 (8-point) or 1 (RANSAC)")
	}
	if c.Geometry.Threshold <= 0 {
		return fmt.Errorf("geometry.threshold must be positive")
	}
	if c.Geometry.Confidence <= 0 || c.Geometry.Confidence >= 1 {
		return fmt.Errorf("geometry.confidence must be between 0 and 1")
	}

	switch c.Storage.Backend {
	case "local":
		if c.Storage.Root == "" {
			return fmt.Errorf("storage.root is required for local storage")
		}
	case "memory":
	case "s3", "minio":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required for %s storage", c.Storage.Backend)
		}
		if c.Storage.Backend == "minio" && c.Storage.Endpoint == "" {
			return fmt.Errorf("storage.endpoint is required for minio storage")
		}
	default:
		return fmt.Errorf("storage.backend must be local, memory, s3 or minio")
	}
	if _, ok := sift.PackingByName(c.Storage.Packing); !ok {
		return fmt.Errorf("storage.packing %q is unknown", c.Storage.Packing)
	}
	if _, err := store.ParseCompression(c.Storage.Compression); err != nil {
		return fmt.Errorf("storage.compression: %w", err)
	}

	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return fmt.Errorf("output.quality must be between 1 and 100")
	}
	if !slices.Contains([]string{"png", "jpg", "jpeg", "webp"}, strings.ToLower(c.Output.OverlayFormat)) {
		return fmt.Errorf("output.overlay_format must be png, jpg or webp")
	}
	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "siftkit", "config.json")
}
