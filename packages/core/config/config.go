package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. REQLY_TIMEOUT.
const EnvPrefix = "REQLY"

// Config represents the reqly configuration
type Config struct {
	DefaultEnvironment string            `json:"defaultEnvironment,omitempty" mapstructure:"defaultEnvironment"`
	Timeout            int               `json:"timeout,omitempty" mapstructure:"timeout"`             // milliseconds
	ScriptTimeout      int               `json:"scriptTimeout,omitempty" mapstructure:"scriptTimeout"` // milliseconds, 0 disables
	FollowRedirects    *bool             `json:"followRedirects,omitempty" mapstructure:"followRedirects"`
	MaxRedirects       int               `json:"maxRedirects,omitempty" mapstructure:"maxRedirects"`
	ValidateSSL        *bool             `json:"validateSSL,omitempty" mapstructure:"validateSSL"`
	StrictVariables    *bool             `json:"strictVariables,omitempty" mapstructure:"strictVariables"`
	RelayURL           string            `json:"relayUrl,omitempty" mapstructure:"relayUrl"`
	RelayAPIKey        string            `json:"relayApiKey,omitempty" mapstructure:"relayApiKey"`
	HistoryPath        string            `json:"historyPath,omitempty" mapstructure:"historyPath"`
	Headers            map[string]string `json:"headers,omitempty" mapstructure:"headers"` // Default headers for all requests
	Concurrency        int               `json:"concurrency,omitempty" mapstructure:"concurrency"`
	Verbose            *bool             `json:"verbose,omitempty" mapstructure:"verbose"`
	NoColor            *bool             `json:"noColor,omitempty" mapstructure:"noColor"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Timeout:         30000, // 30 seconds
		FollowRedirects: BoolPtr(true),
		MaxRedirects:    10,
		ValidateSSL:     BoolPtr(true),
		StrictVariables: BoolPtr(false),
		HistoryPath:     filepath.Join(".reqly", "history.db"),
		Concurrency:     5,
		Verbose:         BoolPtr(false),
		NoColor:         BoolPtr(false),
	}
}

// BoolPtr returns a pointer to b
func BoolPtr(b bool) *bool {
	return &b
}

// getBool returns the value of a bool pointer, or the default if nil
func getBool(b *bool, defaultVal bool) bool {
	if b == nil {
		return defaultVal
	}
	return *b
}

// GetFollowRedirects returns the follow redirects setting, defaulting to true
func (c *Config) GetFollowRedirects() bool {
	return getBool(c.FollowRedirects, true)
}

// GetValidateSSL returns the validate SSL setting, defaulting to true
func (c *Config) GetValidateSSL() bool {
	return getBool(c.ValidateSSL, true)
}

// GetStrictVariables returns the strict variables setting, defaulting to false
func (c *Config) GetStrictVariables() bool {
	return getBool(c.StrictVariables, false)
}

// GetVerbose returns the verbose setting, defaulting to false
func (c *Config) GetVerbose() bool {
	return getBool(c.Verbose, false)
}

// GetNoColor returns the no color setting, defaulting to false
func (c *Config) GetNoColor() bool {
	return getBool(c.NoColor, false)
}

// TimeoutDuration returns Timeout as a duration.
func (c *Config) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Millisecond
}

// ScriptTimeoutDuration returns ScriptTimeout as a duration. Zero disables
// the cap.
func (c *Config) ScriptTimeoutDuration() time.Duration {
	return time.Duration(c.ScriptTimeout) * time.Millisecond
}

// ConfigFilenames contains the possible config file names, in search order
var ConfigFilenames = []string{
	".reqly.config.json",
	"reqly.config.json",
	".reqlyrc",
	".reqlyrc.json",
}

// envKeys maps config keys to their environment variable suffix.
var envKeys = map[string]string{
	"defaultEnvironment": "ENV",
	"timeout":            "TIMEOUT",
	"scriptTimeout":      "SCRIPT_TIMEOUT",
	"followRedirects":    "FOLLOW_REDIRECTS",
	"maxRedirects":       "MAX_REDIRECTS",
	"validateSSL":        "VALIDATE_SSL",
	"strictVariables":    "STRICT_VARIABLES",
	"relayUrl":           "RELAY_URL",
	"relayApiKey":        "RELAY_API_KEY",
	"historyPath":        "HISTORY_PATH",
	"concurrency":        "CONCURRENCY",
	"verbose":            "VERBOSE",
	"noColor":            "NO_COLOR",
}

// LoadConfig loads configuration from the specified path, or the first
// config file found in the current directory, then applies REQLY_*
// environment overrides on top of the defaults.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = FindConfigFile(".")
	}
	return load(path)
}

// FindConfigFile returns the first config file in dir, or "".
func FindConfigFile(dir string) string {
	for _, filename := range ConfigFilenames {
		configPath := filepath.Join(dir, filename)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
	}
	return ""
}

func load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	for key, suffix := range envKeys {
		if err := v.BindEnv(key, EnvPrefix+"_"+suffix); err != nil {
			return nil, fmt.Errorf("binding %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			v.SetConfigType("yaml")
		default:
			v.SetConfigType("json")
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("config file not found: %s", path)
			}
			return nil, fmt.Errorf("cannot read config %s: %w", path, err)
		}
	}

	var loaded Config
	if err := v.Unmarshal(&loaded); err != nil {
		return nil, fmt.Errorf("cannot decode config: %w", err)
	}
	return DefaultConfig().Merge(&loaded), nil
}

// Merge merges another config into this one, with other taking precedence
func (c *Config) Merge(other *Config) *Config {
	if other == nil {
		return c
	}

	result := *c // Copy

	if other.DefaultEnvironment != "" {
		result.DefaultEnvironment = other.DefaultEnvironment
	}
	if other.Timeout > 0 {
		result.Timeout = other.Timeout
	}
	if other.ScriptTimeout > 0 {
		result.ScriptTimeout = other.ScriptTimeout
	}
	if other.MaxRedirects > 0 {
		result.MaxRedirects = other.MaxRedirects
	}
	if other.RelayURL != "" {
		result.RelayURL = other.RelayURL
	}
	if other.RelayAPIKey != "" {
		result.RelayAPIKey = other.RelayAPIKey
	}
	if other.HistoryPath != "" {
		result.HistoryPath = other.HistoryPath
	}
	if other.Concurrency > 0 {
		result.Concurrency = other.Concurrency
	}

	// Boolean flags - only override if explicitly set in other config
	if other.FollowRedirects != nil {
		result.FollowRedirects = other.FollowRedirects
	}
	if other.ValidateSSL != nil {
		result.ValidateSSL = other.ValidateSSL
	}
	if other.StrictVariables != nil {
		result.StrictVariables = other.StrictVariables
	}
	if other.Verbose != nil {
		result.Verbose = other.Verbose
	}
	if other.NoColor != nil {
		result.NoColor = other.NoColor
	}

	if len(c.Headers) > 0 || len(other.Headers) > 0 {
		result.Headers = make(map[string]string, len(c.Headers)+len(other.Headers))
		for k, v := range c.Headers {
			result.Headers[k] = v
		}
		for k, v := range other.Headers {
			result.Headers[k] = v
		}
	}

	return &result
}

// SaveConfig saves the configuration to a file
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
