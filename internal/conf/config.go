// Package conf handles loading and validation of the Sentinel-Go configuration.
package conf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Log rotation types.
const (
	RotationDaily  = "daily"
	RotationWeekly = "weekly"
	RotationSize   = "size"
)

// LogConfig defines the configuration for a log file.
type LogConfig struct {
	Enabled  bool   `yaml:"enabled"`  // true to enable this log
	Path     string `yaml:"path"`     // path to log file
	Rotation string `yaml:"rotation"` // daily, weekly or size
	MaxSize  int64  `yaml:"maxsize"`  // max size in bytes for size rotation
}

// MainSettings contains general application settings.
type MainSettings struct {
	Name string    `yaml:"name"` // instance name, used in logs
	Log  LogConfig `yaml:"log"`  // main application log
}

// SyncSettings contains the synchronization layer configuration.
type SyncSettings struct {
	PushURL string `yaml:"pushurl"` // websocket endpoint for push delivery
	PollURL string `yaml:"pollurl"` // HTTP endpoint for pull delivery

	PollInterval         time.Duration `yaml:"pollinterval"`         // nominal polling cadence
	PollRestoreSuccesses int           `yaml:"pollrestoresuccesses"` // consecutive successes to restore nominal cadence

	CoalesceWindow time.Duration `yaml:"coalescewindow"` // snapshot coalescing window

	PushAttemptWindow time.Duration `yaml:"pushattemptwindow"` // wall-clock window for initial push establishment
	FailureThreshold  int           `yaml:"failurethreshold"`  // consecutive failures before mode fallback
	ProbeInterval     time.Duration `yaml:"probeinterval"`     // push re-establishment probe cadence while on pull

	BackoffBase time.Duration `yaml:"backoffbase"` // initial reconnect/poll backoff
	BackoffMax  time.Duration `yaml:"backoffmax"`  // backoff cap
}

// TelemetrySettings contains Prometheus endpoint settings.
type TelemetrySettings struct {
	Enabled bool   `yaml:"enabled"` // true to enable Prometheus metrics endpoint
	Listen  string `yaml:"listen"`  // metrics listen address, e.g. 0.0.0.0:8090
}

// Settings is the root configuration struct.
type Settings struct {
	Debug bool `yaml:"debug"` // true to enable debug logging

	Main      MainSettings      `yaml:"main"`
	Sync      SyncSettings      `yaml:"sync"`
	Telemetry TelemetrySettings `yaml:"telemetry"`
}

// settingsInstance is the current settings instance
var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into a Settings
// struct, validates it and stores it as the active instance.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	// Initialize viper and read config
	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	// Unmarshal the config into settings
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	// Validate settings
	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}

	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	// Set default values for each configuration parameter
	// function defined in defaults.go
	setDefaultConfig()

	// Read configuration file
	err = viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// Config file not found, create config with defaults
			return createDefaultConfig()
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig creates a default config file and writes it to the default config path
func createDefaultConfig() error {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	configPath := filepath.Join(configPaths[0], "config.yaml")

	defaults := defaultSettings()
	data, err := yaml.Marshal(defaults)
	if err != nil {
		return fmt.Errorf("error marshaling default config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	fmt.Println("Created default config file at:", configPath)
	return viper.ReadInConfig()
}

// GetDefaultConfigPaths returns the list of directories searched for config.yaml,
// in priority order: current working directory first, then the user config dir.
func GetDefaultConfigPaths() ([]string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("error resolving user config directory: %w", err)
	}
	return []string{".", filepath.Join(configDir, "sentinel-go")}, nil
}

// Setting returns the current active settings instance.
// Returns nil if Load() has not been called.
func Setting() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}
