package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Device      DeviceConfig      `mapstructure:"device"`
	Discovery   DiscoveryConfig   `mapstructure:"discovery"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
	Sim         SimConfig         `mapstructure:"sim"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
	Log         LogConfig         `mapstructure:"log"`
}

// DeviceConfig describes how to reach the device
type DeviceConfig struct {
	Host              string `mapstructure:"host"`
	Username          string `mapstructure:"username"`
	Password          string `mapstructure:"password"`
	CallTimeoutSec    int    `mapstructure:"call_timeout_seconds"`
	ConnectTimeoutSec int    `mapstructure:"connect_timeout_seconds"`
}

// DiscoveryConfig tunes the mDNS scan
type DiscoveryConfig struct {
	TimeoutSec     int `mapstructure:"timeout_seconds"`
	RefineBudgetMS int `mapstructure:"refine_budget_ms"`
}

// CredentialsConfig controls where saved logins live
type CredentialsConfig struct {
	Dir string `mapstructure:"dir"`
}

// SimConfig configures the built-in device simulator
type SimConfig struct {
	Port          int    `mapstructure:"port"`
	Username      string `mapstructure:"username"`
	Password      string `mapstructure:"password"`
	SessionTTLSec int    `mapstructure:"session_ttl_seconds"`
}

// TelemetryConfig contains telemetry configuration
type TelemetryConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// LogConfig contains logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// Load loads the configuration from viper
func Load() (*Config, error) {
	cfg := &Config{}

	// Set defaults
	setDefaults()

	// Unmarshal configuration
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}

	// Post-process configuration
	if err := postProcess(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults() {
	// Device defaults
	viper.SetDefault("device.username", "root")
	viper.SetDefault("device.call_timeout_seconds", 60)
	viper.SetDefault("device.connect_timeout_seconds", 10)

	// Discovery defaults
	viper.SetDefault("discovery.timeout_seconds", 5)
	viper.SetDefault("discovery.refine_budget_ms", 1500)

	// Simulator defaults
	viper.SetDefault("sim.port", 8080)
	viper.SetDefault("sim.username", "root")
	viper.SetDefault("sim.password", "oasis")
	viper.SetDefault("sim.session_ttl_seconds", 300)

	// Telemetry defaults
	viper.SetDefault("telemetry.enabled", false)

	// Log defaults
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.json", false)

	// Environment variable mappings
	viper.BindEnv("device.host", "OASIS_HOST")
	viper.BindEnv("device.username", "OASIS_USERNAME")
	viper.BindEnv("device.password", "OASIS_PASSWORD")
	viper.BindEnv("credentials.dir", "OASIS_CREDENTIALS_DIR")
	viper.BindEnv("telemetry.endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func postProcess(cfg *Config) error {
	// Default the credentials dir to the user config dir
	if cfg.Credentials.Dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return err
		}
		cfg.Credentials.Dir = filepath.Join(base, "oasisctl")
	}

	// Ensure the credentials dir is absolute
	if !filepath.IsAbs(cfg.Credentials.Dir) {
		abs, err := filepath.Abs(cfg.Credentials.Dir)
		if err != nil {
			return err
		}
		cfg.Credentials.Dir = abs
	}

	// Pick the password up from the environment if not set
	if cfg.Device.Password == "" {
		cfg.Device.Password = os.Getenv("OASIS_PASSWORD")
	}

	return nil
}
