// Package config loads Inkwell configuration from file, environment, and
// defaults.
//
// Resolution order (highest wins): INKWELL_* environment variables, the
// config file, built-in defaults. The config file is YAML, by default at
// ~/.config/inkwell/config.yaml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the top-level Inkwell configuration.
type Config struct {
	// DataDir is where the sync database and logs live.
	// Defaults to ~/.local/share/inkwell.
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`

	// RemoteURL is the base URL of the cloud sync service.
	RemoteURL string `mapstructure:"remote_url" yaml:"remote_url"`

	// TokenFile is the path of the file holding the auth token. An empty
	// or missing file means the user is signed out.
	TokenFile string `mapstructure:"token_file" yaml:"token_file"`

	// LogFile is where daemon logs are written. Empty means stderr only.
	LogFile string `mapstructure:"log_file" yaml:"log_file"`

	// TransportTimeout bounds each network attempt.
	TransportTimeout time.Duration `mapstructure:"transport_timeout" yaml:"transport_timeout"`

	// DrainInterval is how often the daemon attempts a drain cycle.
	DrainInterval time.Duration `mapstructure:"drain_interval" yaml:"drain_interval"`

	// DebounceInterval batches rapid editor saves before enqueueing.
	DebounceInterval time.Duration `mapstructure:"debounce_interval" yaml:"debounce_interval"`

	// DashboardPort is the local port for the sync dashboard.
	DashboardPort int `mapstructure:"dashboard_port" yaml:"dashboard_port"`
}

// Default returns the built-in configuration.
func Default() *Config {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".local", "share", "inkwell")
	return &Config{
		DataDir:          dataDir,
		RemoteURL:        "https://api.inkwell.app",
		TokenFile:        filepath.Join(dataDir, "token"),
		LogFile:          filepath.Join(dataDir, "daemon.log"),
		TransportTimeout: 30 * time.Second,
		DrainInterval:    30 * time.Second,
		DebounceInterval: 100 * time.Millisecond,
		DashboardPort:    8470,
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "inkwell", "config.yaml")
}

// Load reads configuration from the given file path, layering environment
// variables (INKWELL_*) over file values over defaults. A missing file is
// not an error; defaults apply.
func Load(path string) (*Config, error) {
	def := Default()

	v := viper.New()
	v.SetDefault("data_dir", def.DataDir)
	v.SetDefault("remote_url", def.RemoteURL)
	v.SetDefault("token_file", def.TokenFile)
	v.SetDefault("log_file", def.LogFile)
	v.SetDefault("transport_timeout", def.TransportTimeout)
	v.SetDefault("drain_interval", def.DrainInterval)
	v.SetDefault("debounce_interval", def.DebounceInterval)
	v.SetDefault("dashboard_port", def.DashboardPort)

	v.SetEnvPrefix("INKWELL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if !os.IsNotExist(err) {
				if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
					return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.RemoteURL == "" {
		return fmt.Errorf("remote_url is required")
	}
	if c.TransportTimeout <= 0 {
		return fmt.Errorf("transport_timeout must be positive")
	}
	if c.DrainInterval <= 0 {
		return fmt.Errorf("drain_interval must be positive")
	}
	if c.DebounceInterval <= 0 {
		return fmt.Errorf("debounce_interval must be positive")
	}
	if c.DashboardPort <= 0 || c.DashboardPort > 65535 {
		return fmt.Errorf("dashboard_port must be between 1 and 65535")
	}
	return nil
}

// WriteDefault writes the built-in configuration to path as YAML,
// creating parent directories. Fails if the file already exists.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("failed to marshal default config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// DatabasePath returns the path of the sync database under DataDir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "sync.db")
}
