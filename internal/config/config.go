package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Detection DetectionConfig `yaml:"detection"`
	Session   SessionConfig   `yaml:"session"`
	Uploads   UploadsConfig   `yaml:"uploads"`
	Web       WebConfig       `yaml:"web"`
	Log       LogConfig       `yaml:"log,omitempty"`
}

// DetectionConfig contains detection service client configuration
type DetectionConfig struct {
	ServiceURL          string        `yaml:"service_url"`
	Timeout             time.Duration `yaml:"timeout"`
	ConfidenceThreshold float64       `yaml:"confidence_threshold"`
}

// SessionConfig contains live capture session configuration
type SessionConfig struct {
	TickInterval      time.Duration `yaml:"tick_interval"`
	MaxQueueSize      int           `yaml:"max_queue_size"`
	FPSReportInterval time.Duration `yaml:"fps_report_interval"`
}

// UploadsConfig contains uploaded image storage configuration
type UploadsConfig struct {
	Dir               string   `yaml:"dir"`
	MaxFileSizeBytes  int64    `yaml:"max_file_size_bytes"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
}

// WebConfig contains web server configuration
type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// LogConfig contains logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = getDefaultConfigPath()
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// getDefaultConfigPath returns the default configuration file path
func getDefaultConfigPath() string {
	paths := []string{
		"./config/config.dev.yaml",
		"./config/config.yaml",
		"/etc/wastelens/config.yaml",
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	// Return the first default if none found (will error later)
	return paths[0]
}

// SetDefaults sets default values for configuration
func (c *Config) SetDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}

	if c.Detection.ServiceURL == "" {
		c.Detection.ServiceURL = "http://localhost:8000"
	}
	if c.Detection.Timeout == 0 {
		c.Detection.Timeout = 30 * time.Second
	}
	if c.Detection.ConfidenceThreshold == 0 {
		c.Detection.ConfidenceThreshold = 0.25
	}

	if c.Session.TickInterval == 0 {
		c.Session.TickInterval = 500 * time.Millisecond
	}
	if c.Session.MaxQueueSize == 0 {
		c.Session.MaxQueueSize = 5
	}
	if c.Session.FPSReportInterval == 0 {
		c.Session.FPSReportInterval = time.Second
	}

	if c.Uploads.Dir == "" {
		c.Uploads.Dir = filepath.Join("static", "uploads")
	}
	if c.Uploads.MaxFileSizeBytes == 0 {
		c.Uploads.MaxFileSizeBytes = 16 << 20
	}
	if len(c.Uploads.AllowedExtensions) == 0 {
		c.Uploads.AllowedExtensions = []string{"png", "jpg", "jpeg", "bmp", "webp"}
	}

	if c.Web.Host == "" {
		c.Web.Host = "0.0.0.0"
	}
	if c.Web.Port == 0 {
		c.Web.Port = 5000
	}
}

// Validate checks configuration values for consistency
func (c *Config) Validate() error {
	if c.Detection.ConfidenceThreshold < 0 || c.Detection.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold must be in [0,1], got %v", c.Detection.ConfidenceThreshold)
	}
	if c.Session.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be positive, got %v", c.Session.TickInterval)
	}
	if c.Session.MaxQueueSize < 1 {
		return fmt.Errorf("max_queue_size must be at least 1, got %d", c.Session.MaxQueueSize)
	}
	if c.Uploads.MaxFileSizeBytes < 1 {
		return fmt.Errorf("max_file_size_bytes must be positive, got %d", c.Uploads.MaxFileSizeBytes)
	}
	return nil
}
