// Package config provides configuration loading and management for
// dicomviz. It handles loading configuration from YAML files and
// provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML.
type Config struct {
	// Window holds the default CT window applied by the 2D modes.
	Window struct {
		// Center of the intensity window in Hounsfield units.
		Center float64 `yaml:"center"`

		// Width of the intensity window in Hounsfield units.
		Width float64 `yaml:"width"`

		// Opacity is the global alpha factor applied to windowed output.
		Opacity float64 `yaml:"opacity"`
	} `yaml:"window"`

	// Render holds the 3D snapshot parameters.
	Render struct {
		// ImageSize is the square pixel size of 3D snapshots.
		ImageSize int `yaml:"imageSize"`

		// FrameCount is the number of frames in rotation sequences.
		FrameCount int `yaml:"frameCount"`

		// IsoPercentile selects the isosurface threshold from the
		// normalized intensity distribution.
		IsoPercentile float64 `yaml:"isoPercentile"`
	} `yaml:"render"`

	// PointCloud holds the sampling parameters of the point-cloud mode.
	PointCloud struct {
		// Stride is the voxel step per axis when downsampling.
		Stride int `yaml:"stride"`

		// Threshold is the background cutoff in normalized intensity.
		Threshold int `yaml:"threshold"`

		// KeepProbability thins surviving voxels to bound output size.
		KeepProbability float64 `yaml:"keepProbability"`
	} `yaml:"pointCloud"`

	// Server holds the web layer settings.
	Server struct {
		// Addr is the listen address of the upload/process API.
		Addr string `yaml:"addr"`

		// UploadDir stores per-request upload directories.
		UploadDir string `yaml:"uploadDir"`

		// ResultsDir stores produced artifacts for static serving.
		ResultsDir string `yaml:"resultsDir"`

		// ProcessTimeoutSec bounds one render subprocess invocation.
		ProcessTimeoutSec int `yaml:"processTimeoutSec"`
	} `yaml:"server"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Window.Center = -600
	cfg.Window.Width = 1500
	cfg.Window.Opacity = 1.0

	cfg.Render.ImageSize = 800
	cfg.Render.FrameCount = 36
	cfg.Render.IsoPercentile = 0.75

	cfg.PointCloud.Stride = 4
	cfg.PointCloud.Threshold = 50
	cfg.PointCloud.KeepProbability = 0.3

	cfg.Server.Addr = ":5001"
	cfg.Server.UploadDir = "uploads"
	cfg.Server.ResultsDir = filepath.Join("static", "results")
	cfg.Server.ProcessTimeoutSec = 120

	return cfg
}

// LoadConfig loads configuration from a YAML file. If the file doesn't
// exist, it returns the default configuration.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file.
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}
