package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Camera types understood by the application.
const (
	CameraNikonD90GPIO = "nikon_d90_gpio"
	CameraSimulated    = "simulated"
)

// Limits used by Validate.
const (
	MinBCMPin    = 2
	MaxBCMPin    = 27
	MaxDelayMs   = 10_000
	MaxTimeoutMs = 600_000
	MaxHistory   = 10_000
)

// SimulatedConfig tunes the in-process camera.
type SimulatedConfig struct {
	LatencyMs   int    `yaml:"latency_ms"`   // time spent "exposing" (ms)
	FailMessage string `yaml:"fail_message"` // when set, every capture fails with this text
}

// CameraConfig describes how to communicate with the camera.
// Type selects a concrete implementation (e.g., "nikon_d90_gpio").
type CameraConfig struct {
	Type           string          `yaml:"type"`             // "nikon_d90_gpio" or "simulated"
	FocusPin       int             `yaml:"focus_pin"`        // GPIO pin for FOCUS line (BCM)
	ShutterPin     int             `yaml:"shutter_pin"`      // GPIO pin for SHUTTER line (BCM)
	FocusDelayMs   int             `yaml:"focus_delay_ms"`   // autofocus delay (ms)
	ShutterDelayMs int             `yaml:"shutter_delay_ms"` // shutter hold time (ms)
	Simulated      SimulatedConfig `yaml:"simulated"`
}

// GuardConfig controls the checks wrapped around each capture.
type GuardConfig struct {
	TimeoutMs          int    `yaml:"timeout_ms"`          // 0 = wait for the camera indefinitely
	CheckConfig        bool   `yaml:"check_config"`        // re-validate config before each capture
	CheckPermissions   bool   `yaml:"check_permissions"`   // verify device node access
	DevicePath         string `yaml:"device_path"`         // node checked by check_permissions
	CheckCompatibility bool   `yaml:"check_compatibility"` // verify camera type against the host
}

// WebConfig holds web UI settings.
type WebConfig struct {
	HistorySize int `yaml:"history_size"` // capture outcomes kept for GET /history
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int  `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO   bool `yaml:"mock_gpio"`   // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all application configuration.
type Config struct {
	Camera   CameraConfig   `yaml:"camera"`
	Guard    GuardConfig    `yaml:"guard"`
	Web      WebConfig      `yaml:"web"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

// ValidateConfigPath rejects anything but a .yaml file directly inside a
// directory named "configs", and any path containing "..".
func ValidateConfigPath(path string) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if strings.Contains(filepath.ToSlash(path), "..") {
		return fmt.Errorf("config path %q must not contain '..'", path)
	}
	if filepath.Ext(path) != ".yaml" {
		return fmt.Errorf("config path %q must have a .yaml extension", path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if filepath.Base(filepath.Dir(abs)) != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file, applies defaults and validates the result.
// Unknown keys are rejected so a typo cannot silently disable a check.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills zero values with working defaults.
func (c *Config) ApplyDefaults() {
	if c.Camera.FocusDelayMs <= 0 {
		c.Camera.FocusDelayMs = 500 // 500ms for autofocus
	}
	if c.Camera.ShutterDelayMs <= 0 {
		c.Camera.ShutterDelayMs = 200 // 200ms shutter hold
	}
	if c.Guard.DevicePath == "" {
		c.Guard.DevicePath = "/dev/gpiomem"
	}
	if c.Web.HistorySize <= 0 {
		c.Web.HistorySize = 50
	}
}

// Validate checks ranges and conflicting settings.
func (c *Config) Validate() error {
	switch c.Camera.Type {
	case "":
		return errors.New("camera.type is required")
	case CameraSimulated:
		if c.Camera.Simulated.LatencyMs < 0 || c.Camera.Simulated.LatencyMs > MaxDelayMs {
			return fmt.Errorf("camera.simulated.latency_ms must be between 0 and %d, got %d", MaxDelayMs, c.Camera.Simulated.LatencyMs)
		}
	case CameraNikonD90GPIO:
		if err := validatePin("camera.focus_pin", c.Camera.FocusPin); err != nil {
			return err
		}
		if err := validatePin("camera.shutter_pin", c.Camera.ShutterPin); err != nil {
			return err
		}
		if c.Camera.FocusPin == c.Camera.ShutterPin {
			return fmt.Errorf("camera.focus_pin and camera.shutter_pin must differ, both are %d", c.Camera.FocusPin)
		}
	default:
		return fmt.Errorf("unsupported camera type: %s", c.Camera.Type)
	}

	if c.Camera.FocusDelayMs > MaxDelayMs {
		return fmt.Errorf("camera.focus_delay_ms must be <= %d, got %d", MaxDelayMs, c.Camera.FocusDelayMs)
	}
	if c.Camera.ShutterDelayMs > MaxDelayMs {
		return fmt.Errorf("camera.shutter_delay_ms must be <= %d, got %d", MaxDelayMs, c.Camera.ShutterDelayMs)
	}
	if c.Guard.TimeoutMs < 0 || c.Guard.TimeoutMs > MaxTimeoutMs {
		return fmt.Errorf("guard.timeout_ms must be between 0 and %d, got %d", MaxTimeoutMs, c.Guard.TimeoutMs)
	}
	if c.Web.HistorySize > MaxHistory {
		return fmt.Errorf("web.history_size must be <= %d, got %d", MaxHistory, c.Web.HistorySize)
	}
	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	return nil
}

func validatePin(name string, pin int) error {
	if pin < MinBCMPin || pin > MaxBCMPin {
		return fmt.Errorf("%s must be a BCM pin between %d and %d, got %d", name, MinBCMPin, MaxBCMPin, pin)
	}
	return nil
}

// FocusDelay returns the autofocus delay duration.
func (c *Config) FocusDelay() time.Duration {
	return time.Duration(c.Camera.FocusDelayMs) * time.Millisecond
}

// ShutterDelay returns the shutter hold duration.
func (c *Config) ShutterDelay() time.Duration {
	return time.Duration(c.Camera.ShutterDelayMs) * time.Millisecond
}

// SimulatedLatency returns the simulated camera latency.
func (c *Config) SimulatedLatency() time.Duration {
	return time.Duration(c.Camera.Simulated.LatencyMs) * time.Millisecond
}

// CaptureTimeout returns the guard timeout; zero means none.
func (c *Config) CaptureTimeout() time.Duration {
	return time.Duration(c.Guard.TimeoutMs) * time.Millisecond
}
