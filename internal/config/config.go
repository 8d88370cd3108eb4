// Package config holds the persistent smartscanner configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the persistent application configuration
type Config struct {
	Stream  StreamConfig  `yaml:"stream"`
	Scan    ScanConfig    `yaml:"scan"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
}

// StreamConfig holds live camera settings
type StreamConfig struct {
	CameraURL        string `yaml:"camera_url,omitempty"` // preselected camera; empty picks the first discovered
	MinFrameInterval int    `yaml:"min_frame_interval_ms"`
	MaxWidth         int    `yaml:"max_width"`
	JPEGQuality      int    `yaml:"jpeg_quality"`
	RequestTimeoutMs int    `yaml:"request_timeout_ms"`
	MaxErrors        int    `yaml:"max_consecutive_errors"`
	MaxProbes        int    `yaml:"max_readiness_probes"`
}

// ScanConfig holds network scan settings
type ScanConfig struct {
	Subnet         string `yaml:"subnet,omitempty"` // CIDR; empty uses the local /24
	Ports          []int  `yaml:"ports,omitempty"`  // empty uses the well-known list
	Concurrency    int    `yaml:"concurrency"`
	ProbeTimeoutMs int    `yaml:"probe_timeout_ms"`
	PerSecond      int    `yaml:"probes_per_second"` // 0 = unlimited
	Fingerprint    bool   `yaml:"http_fingerprint"`
}

// StorageConfig holds on-disk locations
type StorageConfig struct {
	DataDir    string `yaml:"data_dir,omitempty"`    // defaults to ~/.smartscanner
	CaptureDir string `yaml:"capture_dir,omitempty"` // defaults to <data_dir>/captures
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns sensible defaults
func Default() *Config {
	return &Config{
		Stream: StreamConfig{
			MinFrameInterval: 100, // 10 FPS
			MaxWidth:         800,
			JPEGQuality:      80,
			RequestTimeoutMs: 5000,
			MaxErrors:        10,
			MaxProbes:        2,
		},
		Scan: ScanConfig{
			Concurrency:    100,
			ProbeTimeoutMs: 30,
			Fingerprint:    true,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Path returns the path to the config file
func Path() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".smartscanner", "config.yaml")
}

// Load reads config from path. A missing file yields defaults. Fields absent
// from the file keep their default values.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Save writes config to path
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ApplyEnv overlays SMARTSCANNER_* environment variables
func (c *Config) ApplyEnv() {
	if v := os.Getenv("SMARTSCANNER_SUBNET"); v != "" {
		c.Scan.Subnet = v
	}
	if v := os.Getenv("SMARTSCANNER_CAMERA_URL"); v != "" {
		c.Stream.CameraURL = v
	}
}

// Validate checks the configuration without modifying it.
func (c *Config) Validate() error {
	var errs []error

	if c.Stream.MinFrameInterval <= 0 {
		errs = append(errs, fmt.Errorf("stream.min_frame_interval_ms must be positive, got %d", c.Stream.MinFrameInterval))
	}
	if c.Stream.MaxWidth <= 0 {
		errs = append(errs, fmt.Errorf("stream.max_width must be positive, got %d", c.Stream.MaxWidth))
	}
	if c.Stream.JPEGQuality < 1 || c.Stream.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("stream.jpeg_quality must be 1-100, got %d", c.Stream.JPEGQuality))
	}
	if c.Stream.MaxErrors <= 0 {
		errs = append(errs, fmt.Errorf("stream.max_consecutive_errors must be positive, got %d", c.Stream.MaxErrors))
	}
	if c.Stream.MaxProbes <= 0 {
		errs = append(errs, fmt.Errorf("stream.max_readiness_probes must be positive, got %d", c.Stream.MaxProbes))
	}
	if c.Stream.CameraURL != "" {
		if u, err := url.Parse(c.Stream.CameraURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("stream.camera_url %q is not an http(s) URL", c.Stream.CameraURL))
		}
	}

	if c.Scan.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("scan.concurrency must be positive, got %d", c.Scan.Concurrency))
	}
	if c.Scan.ProbeTimeoutMs <= 0 {
		errs = append(errs, fmt.Errorf("scan.probe_timeout_ms must be positive, got %d", c.Scan.ProbeTimeoutMs))
	}
	if c.Scan.PerSecond < 0 {
		errs = append(errs, fmt.Errorf("scan.probes_per_second must not be negative, got %d", c.Scan.PerSecond))
	}
	for _, p := range c.Scan.Ports {
		if p <= 0 || p > 65535 {
			errs = append(errs, fmt.Errorf("scan.ports: %d out of range", p))
		}
	}

	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}

	return errors.Join(errs...)
}

// DataDir returns the storage directory, defaulting to ~/.smartscanner.
func (c *Config) DataDir() string {
	if c.Storage.DataDir != "" {
		return c.Storage.DataDir
	}
	return filepath.Dir(Path())
}

// CaptureDir returns where saved stills go.
func (c *Config) CaptureDir() string {
	if c.Storage.CaptureDir != "" {
		return c.Storage.CaptureDir
	}
	return filepath.Join(c.DataDir(), "captures")
}

// FrameInterval is Stream.MinFrameInterval as a duration.
func (c *Config) FrameInterval() time.Duration {
	return time.Duration(c.Stream.MinFrameInterval) * time.Millisecond
}

// RequestTimeout is Stream.RequestTimeoutMs as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Stream.RequestTimeoutMs) * time.Millisecond
}

// ProbeTimeout is Scan.ProbeTimeoutMs as a duration.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Scan.ProbeTimeoutMs) * time.Millisecond
}
