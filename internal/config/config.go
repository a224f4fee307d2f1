// Package config loads the YAML settings shared by the command line tools.
package config

import (
	"fmt"
	"os"

	"grape-calib/internal/illum"

	"gopkg.in/yaml.v3"
)

// Config is the complete tool configuration. Every field has a default, so
// an absent file or section is valid.
type Config struct {
	Calibration CalibrationConfig `yaml:"calibration"`
	Extraction  ExtractionConfig  `yaml:"extraction"`
	Logging     LoggingConfig     `yaml:"logging"`
	// Parallel runs the two cameras' calibration concurrently.
	Parallel bool `yaml:"parallel"`
}

// CalibrationConfig controls white frame accumulation and surface fitting.
type CalibrationConfig struct {
	RescaleFactor int `yaml:"rescale_factor"` // integer shrink before accumulation (default 8)
	Order         int `yaml:"order"`          // polynomial order, 2 or 3 (default 2)
	PreviewEvery  int `yaml:"preview_every"`  // JPEG preview every N frames, 0 disables (default 5)
	MaxFrames     int `yaml:"max_frames"`     // cap on the white window length, 0 = whole window
}

// ExtractionConfig controls rectified frame extraction.
type ExtractionConfig struct {
	RescaleFactor int     `yaml:"rescale_factor"` // integer shrink of extracted frames (default 4)
	Skip          int     `yaml:"skip"`           // keep every N-th frame (default 5)
	Exposure      float64 `yaml:"exposure"`       // global gain after correction (default 1)
	JPEGQuality   int     `yaml:"jpeg_quality"`   // 1-100 (default 95)
	ScanQR        bool    `yaml:"scan_qr"`        // decode QR codes on rectified frames
}

// LoggingConfig selects the logrus level, format and optional log directory.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	Directory string `yaml:"directory"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Calibration: CalibrationConfig{
			RescaleFactor: 8,
			Order:         int(illum.Quadratic),
			PreviewEvery:  5,
		},
		Extraction: ExtractionConfig{
			RescaleFactor: 4,
			Skip:          5,
			Exposure:      1,
			JPEGQuality:   95,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads a YAML configuration file over the defaults, so keys absent
// from the file keep their default. An empty path yields Default().
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate fills zero values that cannot work with their default and
// rejects the rest.
func Validate(cfg *Config) error {
	c := &cfg.Calibration
	if c.RescaleFactor == 0 {
		c.RescaleFactor = 8
	}
	if c.RescaleFactor < 1 {
		return fmt.Errorf("calibration.rescale_factor must be >= 1")
	}
	if c.Order == 0 {
		c.Order = int(illum.Quadratic)
	}
	if !illum.Order(c.Order).Valid() {
		return fmt.Errorf("calibration.order must be 2 or 3, got %d", c.Order)
	}
	if c.PreviewEvery < 0 {
		return fmt.Errorf("calibration.preview_every must be >= 0")
	}
	if c.MaxFrames < 0 {
		return fmt.Errorf("calibration.max_frames must be >= 0")
	}

	e := &cfg.Extraction
	if e.RescaleFactor == 0 {
		e.RescaleFactor = 4
	}
	if e.RescaleFactor < 1 {
		return fmt.Errorf("extraction.rescale_factor must be >= 1")
	}
	if e.Skip == 0 {
		e.Skip = 5
	}
	if e.Skip < 1 {
		return fmt.Errorf("extraction.skip must be >= 1")
	}
	if e.Exposure == 0 {
		e.Exposure = 1
	}
	if e.Exposure < 0 {
		return fmt.Errorf("extraction.exposure must be positive")
	}
	if e.JPEGQuality == 0 {
		e.JPEGQuality = 95
	}
	if e.JPEGQuality < 1 || e.JPEGQuality > 100 {
		return fmt.Errorf("extraction.jpeg_quality must be in 1-100")
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	return nil
}
