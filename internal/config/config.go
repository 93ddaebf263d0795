package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/iksnae/chatstream/internal"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "CHATSTREAM_"

var ErrInvalidStore = errors.New(`store must be "sqlite", "file" or "memory"`)

// Config holds chatstream's settings. Values are layered: config file, then
// .env, then CHATSTREAM_* environment variables, then command-line flags.
type Config struct {
	// Client side
	ServerURL   string `yaml:"server_url"`
	Store       string `yaml:"store"`
	DataDir     string `yaml:"data_dir"`
	Persistence *bool  `yaml:"persistence"` // default: true
	Workdir     string `yaml:"workdir"`
	LogLevel    string `yaml:"log_level"` // error, warn, info or debug

	// Relay side
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	MaxTokens  int    `yaml:"max_tokens"`
	ListenAddr string `yaml:"listen_addr"`
}

// Defaults
const (
	DefaultServerURL  = "http://localhost:5173"
	DefaultBaseURL    = "https://api.openai.com/v1"
	DefaultModel      = "gpt-4o"
	DefaultMaxTokens  = 8192
	DefaultListenAddr = ":5173"
)

// Load reads the config from the default location
func Load() (*Config, error) {
	paths, err := internal.DetectStoragePaths()
	if err != nil {
		return nil, err
	}
	cfg, err := LoadFrom(paths.ConfigFile)
	if err != nil {
		return nil, err
	}
	if cfg.DataDir == "" {
		cfg.DataDir = paths.DataDir
	}
	return cfg, nil
}

// LoadFrom reads the config file at path (a missing file is an empty config)
// and applies .env and environment overrides and defaults.
func LoadFrom(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			internal.LogDebug("No config file at %s", path)
		case err != nil:
			return nil, err
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("invalid config %s: %w", path, err)
			}
		}
	}

	// Load .env file if it exists; it never overrides the real environment
	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.ServerURL, "SERVER_URL")
	setString(&c.Store, "STORE")
	setString(&c.DataDir, "DATA_DIR")
	setString(&c.Workdir, "WORKDIR")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.APIKey, "API_KEY")
	setString(&c.BaseURL, "BASE_URL")
	setString(&c.Model, "MODEL")
	setString(&c.ListenAddr, "LISTEN_ADDR")

	if v := getEnv("PERSISTENCE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sPERSISTENCE: %w", EnvPrefix, err)
		}
		c.Persistence = &b
	}
	if v := getEnv("MAX_TOKENS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sMAX_TOKENS: %w", EnvPrefix, err)
		}
		c.MaxTokens = n
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.ServerURL == "" {
		c.ServerURL = DefaultServerURL
	}
	if c.Store == "" {
		c.Store = internal.StoreSQLite
	}
	if c.Persistence == nil {
		t := true
		c.Persistence = &t
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
}

// Validate checks values that have a fixed set of choices
func (c *Config) Validate() error {
	switch c.Store {
	case internal.StoreSQLite, internal.StoreFile, internal.StoreMemory:
	default:
		return fmt.Errorf("%w, got %q", ErrInvalidStore, c.Store)
	}
	if _, err := internal.ParseLogLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	return nil
}

// Level returns the configured log level
func (c *Config) Level() internal.LogLevel {
	level, _ := internal.ParseLogLevel(c.LogLevel)
	return level
}

// PersistenceEnabled reports whether chats are written to disk
func (c *Config) PersistenceEnabled() bool {
	return c.Persistence == nil || *c.Persistence
}

// StoreDir returns the directory the configured store lives in
func (c *Config) StoreDir() string {
	if c.Store == internal.StoreFile {
		return internal.StoragePaths{DataDir: c.DataDir}.FileStoreDir()
	}
	return c.DataDir
}

func getEnv(key string) string {
	return strings.TrimSpace(os.Getenv(EnvPrefix + key))
}

func setString(dst *string, key string) {
	if v := getEnv(key); v != "" {
		*dst = v
	}
}
