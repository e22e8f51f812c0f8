package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	toml "github.com/pelletier/go-toml/v2"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "JOTTLY"

const (
	defaultConfigPath   = "~/.config/jottly/config.toml"
	defaultIngestURL    = "http://127.0.0.1:8080"
	defaultListenAddr   = "127.0.0.1:8080"
	defaultDatabase     = "~/.local/share/jottly/jots.db"
	defaultLogStorePath = "~/.local/state/jottly/jottly.log"
)

// Duration reads "90s" style values from TOML and the environment.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", string(text), err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the full agent and server configuration.
type Config struct {
	IngestURL      string   `toml:"ingest_url" split_words:"true" validate:"required"`
	ListenAddr     string   `toml:"listen_addr" split_words:"true" validate:"required"`
	Database       string   `toml:"database" split_words:"true" validate:"required"`
	AllowedOrigins []string `toml:"allowed_origins" split_words:"true"`
	LogLevel       string   `toml:"log_level" split_words:"true" validate:"oneof=verbose debug info warn warning error"`

	Store     StoreConfig     `toml:"store" split_words:"true"`
	LogStore  LogStoreConfig  `toml:"log_store" split_words:"true"`
	Scheduler SchedulerConfig `toml:"scheduler" split_words:"true"`
	Defaults  DefaultsConfig  `toml:"defaults" split_words:"true"`
	Breaker   BreakerConfig   `toml:"breaker" split_words:"true"`
	Replay    ReplayConfig    `toml:"replay" split_words:"true"`
}

// StoreConfig selects the key-value backend.
type StoreConfig struct {
	Backend string `toml:"backend" split_words:"true" validate:"oneof=file sqlite redis memory"`
	Path    string `toml:"path" split_words:"true"`
	Addr    string `toml:"addr" split_words:"true" validate:"required_if=Backend redis"`
	Prefix  string `toml:"prefix" split_words:"true"`
}

// LogStoreConfig selects where log entries persist.
type LogStoreConfig struct {
	Backend    string `toml:"backend" split_words:"true" validate:"oneof=file kv none"`
	Path       string `toml:"path" split_words:"true"`
	MaxEntries int    `toml:"max_entries" split_words:"true" validate:"gte=0"`
}

// SchedulerConfig bounds the escalation scheduler.
type SchedulerConfig struct {
	MinInterval   Duration `toml:"min_interval" split_words:"true" validate:"gt=0"`
	MaxInterval   Duration `toml:"max_interval" split_words:"true" validate:"gtefield=MinInterval"`
	AccuracyFloor float64  `toml:"accuracy_floor" split_words:"true" validate:"gte=0"`
	WaitDelay     Duration `toml:"wait_delay" split_words:"true" validate:"gt=0"`
	RestartDelay  Duration `toml:"restart_delay" split_words:"true" validate:"gt=0"`
	BudgetWindow  Duration `toml:"budget_window" split_words:"true" validate:"gte=0"`
}

// DefaultsConfig holds the parameters the agent starts the scheduler with.
type DefaultsConfig struct {
	PollInterval      Duration `toml:"poll_interval" split_words:"true" validate:"gt=0"`
	AccuracyThreshold float64  `toml:"accuracy_threshold" split_words:"true" validate:"gte=0"`
	Timeout           Duration `toml:"timeout" split_words:"true"`
	StepsInterval     Duration `toml:"steps_interval" split_words:"true" validate:"gt=0"`
}

// BreakerConfig tunes the upload circuit breaker.
type BreakerConfig struct {
	MaxFailures uint32   `toml:"max_failures" split_words:"true" validate:"gt=0"`
	OpenTimeout Duration `toml:"open_timeout" split_words:"true" validate:"gt=0"`
}

// ReplayConfig points the agent at a recorded fix file.
type ReplayConfig struct {
	Path     string   `toml:"path" split_words:"true"`
	Interval Duration `toml:"interval" split_words:"true" validate:"gte=0"`
	Loop     bool     `toml:"loop" split_words:"true"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		IngestURL:  defaultIngestURL,
		ListenAddr: defaultListenAddr,
		Database:   defaultDatabase,
		LogLevel:   "info",
		Store:      StoreConfig{Backend: "file"},
		LogStore:   LogStoreConfig{Backend: "file", Path: defaultLogStorePath, MaxEntries: 500},
		Scheduler: SchedulerConfig{
			MinInterval:   Duration(2 * time.Second),
			MaxInterval:   Duration(170 * time.Second),
			AccuracyFloor: 5,
			WaitDelay:     Duration(3 * time.Second),
			RestartDelay:  Duration(time.Second),
			BudgetWindow:  Duration(30 * time.Second),
		},
		Defaults: DefaultsConfig{
			PollInterval:      Duration(60 * time.Second),
			AccuracyThreshold: 20,
			Timeout:           Duration(30 * time.Second),
			StepsInterval:     Duration(15 * time.Minute),
		},
		Breaker: BreakerConfig{MaxFailures: 5, OpenTimeout: Duration(30 * time.Second)},
		Replay:  ReplayConfig{Interval: Duration(time.Second)},
	}
}

// Options locate the inputs of Load.
type Options struct {
	// Path of the TOML file; empty means ~/.config/jottly/config.toml.
	Path string
	// EnvFile is a dotenv file loaded before the environment is read. Empty
	// means ".env" in the working directory; a missing file is ignored.
	EnvFile string
}

// Load builds the configuration: defaults, then the TOML file, then the
// dotenv file and process environment, then validation.
func Load(opts Options) (Config, error) {
	cfg := Default()

	resolved, err := resolvePath(opts.Path)
	if err != nil {
		return Config{}, err
	}
	if err := readFile(resolved, &cfg); err != nil {
		return Config{}, err
	}

	envFile := strings.TrimSpace(opts.EnvFile)
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		cfg.ListenAddr = ":" + port
	}
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}

	cfg.normalize()
	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func readFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func (c *Config) normalize() {
	c.IngestURL = strings.TrimSpace(c.IngestURL)
	c.ListenAddr = strings.TrimSpace(c.ListenAddr)
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	c.LogStore.Backend = strings.ToLower(strings.TrimSpace(c.LogStore.Backend))

	c.Database = strings.TrimSpace(c.Database)
	if isFilePath(c.Database) {
		c.Database = mustExpand(c.Database)
	}
	if c.Store.Path = strings.TrimSpace(c.Store.Path); c.Store.Path != "" {
		c.Store.Path = mustExpand(c.Store.Path)
	}
	if c.LogStore.Path = strings.TrimSpace(c.LogStore.Path); c.LogStore.Path != "" {
		c.LogStore.Path = mustExpand(c.LogStore.Path)
	}
	if c.Replay.Path = strings.TrimSpace(c.Replay.Path); c.Replay.Path != "" {
		c.Replay.Path = mustExpand(c.Replay.Path)
	}

	origins := c.AllowedOrigins[:0]
	for _, o := range c.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	c.AllowedOrigins = origins
}

// isFilePath reports whether a database DSN names a local file.
func isFilePath(dsn string) bool {
	return dsn != "" && dsn != "memory" && !strings.Contains(dsn, "://")
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
