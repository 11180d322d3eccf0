package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Gemini   GeminiConfig   `mapstructure:"gemini"`
	CDN      CDNConfig      `mapstructure:"cdn"`
	Sessions SessionsConfig `mapstructure:"sessions"`
	Image    ImageConfig    `mapstructure:"image"`
	Debug    DebugConfig    `mapstructure:"debug"`
}

type GeminiConfig struct {
	APIKey   string `mapstructure:"api_key"`
	Model    string `mapstructure:"model"`
	Thinking bool   `mapstructure:"thinking"` // stream thought parts
	System   string `mapstructure:"system"`   // optional system instruction
}

// CDNConfig controls resolution of markdown image references in model output.
type CDNConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	Concurrency  int      `mapstructure:"concurrency"`   // parallel fetches per wave
	TimeoutMS    int      `mapstructure:"timeout_ms"`    // per-image fetch timeout
	MaxBytes     int64    `mapstructure:"max_bytes"`     // largest accepted body
	CacheSize    int      `mapstructure:"cache_size"`    // fetched images kept per process, 0 disables
	AllowedHosts []string `mapstructure:"allowed_hosts"` // empty uses the built-in list
}

// Timeout returns the per-image fetch timeout.
func (c CDNConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// SessionsConfig configures conversation storage.
type SessionsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	MaxAgeDays int    `mapstructure:"max_age_days"` // 0 keeps conversations forever
	MaxCount   int    `mapstructure:"max_count"`    // 0 keeps any number
	Path       string `mapstructure:"path"`         // override the database path
}

// ImageConfig configures how binary parts are displayed and saved.
type ImageConfig struct {
	OutputDir string `mapstructure:"output_dir"`
	Display   string `mapstructure:"display"` // auto, kitty, iterm, sixel, none
}

// DebugConfig configures JSONL request/fragment logging.
type DebugConfig struct {
	LogDir string `mapstructure:"log_dir"`
}

func Load() (*Config, error) {
	configPath, err := GetConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config dir: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configPath)
	viper.AddConfigPath(".")

	setDefaults(viper.GetViper())

	// Read config file (optional - won't error if missing)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.resolve()
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("gemini.model", "gemini-2.5-flash-image")
	v.SetDefault("gemini.thinking", false)
	v.SetDefault("cdn.enabled", true)
	v.SetDefault("cdn.concurrency", 3)
	v.SetDefault("cdn.timeout_ms", 10000)
	v.SetDefault("cdn.max_bytes", 20<<20)
	v.SetDefault("cdn.cache_size", 64)
	v.SetDefault("sessions.enabled", true)
	v.SetDefault("sessions.max_age_days", 0)
	v.SetDefault("sessions.max_count", 0)
	v.SetDefault("image.output_dir", "~/Pictures/gemchat")
	v.SetDefault("image.display", "auto")
}

// resolve expands environment references and fills keys from the environment.
func (c *Config) resolve() {
	c.Gemini.APIKey = expandEnv(c.Gemini.APIKey)
	if c.Gemini.APIKey == "" {
		c.Gemini.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	c.Sessions.Path = expandEnv(c.Sessions.Path)
	c.Image.OutputDir = expandEnv(c.Image.OutputDir)
	c.Debug.LogDir = expandEnv(c.Debug.LogDir)

	if c.CDN.Concurrency <= 0 {
		c.CDN.Concurrency = 3
	}
	if c.CDN.TimeoutMS <= 0 {
		c.CDN.TimeoutMS = 10000
	}
}

// ApplyOverrides applies command-line overrides. Empty or zero values keep
// the configured setting.
func (c *Config) ApplyOverrides(model string, concurrency int, timeout time.Duration) {
	if model != "" {
		c.Gemini.Model = model
	}
	if concurrency > 0 {
		c.CDN.Concurrency = concurrency
	}
	if timeout > 0 {
		c.CDN.TimeoutMS = int(timeout / time.Millisecond)
	}
}

// expandEnv expands ${VAR} or $VAR in a string
func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		varName := s[2 : len(s)-1]
		return os.Getenv(varName)
	}
	if strings.HasPrefix(s, "$") {
		return os.Getenv(s[1:])
	}
	return s
}

// GetConfigDir returns the XDG config directory for gemchat.
// Uses $XDG_CONFIG_HOME if set, otherwise ~/.config
func GetConfigDir() (string, error) {
	if xdgHome := os.Getenv("XDG_CONFIG_HOME"); xdgHome != "" {
		return filepath.Join(xdgHome, "gemchat"), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".config", "gemchat"), nil
}

// GetConfigPath returns the path where the config file should be located
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.yaml"), nil
}

// GetDebugLogDir returns the directory for JSONL debug logs.
// Uses $XDG_DATA_HOME if set, otherwise ~/.local/share
func GetDebugLogDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "gemchat", "debug")
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "gemchat-debug") // fallback
	}
	return filepath.Join(homeDir, ".local", "share", "gemchat", "debug")
}

// Exists returns true if a config file exists
func Exists() bool {
	path, err := GetConfigPath()
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Save writes a commented starter config to disk
func Save(cfg *Config) error {
	path, err := GetConfigPath()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content := fmt.Sprintf(`gemini:
  model: %s
  thinking: %t
  # api_key: ${GEMINI_API_KEY}

cdn:
  enabled: %t
  concurrency: %d
  timeout_ms: %d
  cache_size: %d
  # allowed_hosts:
  #   - images.example.com

sessions:
  enabled: %t

image:
  output_dir: %s
  display: %s
`, cfg.Gemini.Model, cfg.Gemini.Thinking, cfg.CDN.Enabled, cfg.CDN.Concurrency, cfg.CDN.TimeoutMS,
		cfg.CDN.CacheSize, cfg.Sessions.Enabled, cfg.Image.OutputDir, cfg.Image.Display)

	return os.WriteFile(path, []byte(content), 0600)
}
