package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the daemon.
// Zero values mean "unspecified" and are replaced by Default() through Merge.
type Config struct {
	Addr      string `json:"addr" yaml:"addr" toml:"addr"`
	ModelPath string `json:"model_path" yaml:"model_path" toml:"model_path"`
	ModelsDir string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	ModelID   string `json:"model_id" yaml:"model_id" toml:"model_id"`

	CtxSize   int `json:"ctx_size" yaml:"ctx_size" toml:"ctx_size"`
	BatchSize int `json:"batch_size" yaml:"batch_size" toml:"batch_size"`
	Threads   int `json:"threads" yaml:"threads" toml:"threads"`
	GPULayers int `json:"gpu_layers" yaml:"gpu_layers" toml:"gpu_layers"`
	Seed      int `json:"seed" yaml:"seed" toml:"seed"`

	MaxQueueDepth    int `json:"max_queue_depth" yaml:"max_queue_depth" toml:"max_queue_depth"`
	MaxWaitMS        int `json:"max_wait_ms" yaml:"max_wait_ms" toml:"max_wait_ms"`
	FragmentBuffer   int `json:"fragment_buffer" yaml:"fragment_buffer" toml:"fragment_buffer"`
	MaxConversations int `json:"max_conversations" yaml:"max_conversations" toml:"max_conversations"`
	DrainTimeoutMS   int `json:"drain_timeout_ms" yaml:"drain_timeout_ms" toml:"drain_timeout_ms"`
	AutosaveSeconds  int `json:"autosave_seconds" yaml:"autosave_seconds" toml:"autosave_seconds"`

	Store    Store    `json:"store" yaml:"store" toml:"store"`
	Log      Log      `json:"log" yaml:"log" toml:"log"`
	CORS     CORS     `json:"cors" yaml:"cors" toml:"cors"`
	Defaults Defaults `json:"defaults" yaml:"defaults" toml:"defaults"`

	MaxBodyBytes           int64 `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	GenerateTimeoutSeconds int   `json:"generate_timeout_seconds" yaml:"generate_timeout_seconds" toml:"generate_timeout_seconds"`
}

// Store selects where conversation snapshots are persisted.
type Store struct {
	Kind  string `json:"kind" yaml:"kind" toml:"kind"`
	Path  string `json:"path" yaml:"path" toml:"path"`
	Table string `json:"table" yaml:"table" toml:"table"`
	Name  string `json:"name" yaml:"name" toml:"name"`
}

// defaultStorePaths are the snapshot locations used when a kind is chosen
// without a path.
var defaultStorePaths = map[string]string{
	"file":   "~/.local/share/dialogd/conversations.json",
	"sqlite": "~/.local/share/dialogd/conversations.db",
}

// WithKind switches the store kind. A path left over from a different kind
// is replaced by the new kind's default.
func (s Store) WithKind(kind string) Store {
	if kind == "" || strings.EqualFold(kind, s.Kind) {
		return s
	}
	s.Kind = kind
	s.Path = defaultStorePaths[strings.ToLower(kind)]
	return s
}

type Log struct {
	Level  string `json:"level" yaml:"level" toml:"level"`
	Format string `json:"format" yaml:"format" toml:"format"`
}

type CORS struct {
	Enabled bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	Origins []string `json:"origins" yaml:"origins" toml:"origins"`
}

// Defaults are the sampling parameters used when a request omits them.
type Defaults struct {
	Temperature float32 `json:"temperature" yaml:"temperature" toml:"temperature"`
	TopK        int     `json:"top_k" yaml:"top_k" toml:"top_k"`
	TopP        float32 `json:"top_p" yaml:"top_p" toml:"top_p"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens" toml:"max_tokens"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Addr:             ":8080",
		ModelsDir:        "~/models/llm",
		CtxSize:          4096,
		BatchSize:        512,
		MaxQueueDepth:    32,
		MaxWaitMS:        30000,
		FragmentBuffer:   16,
		MaxConversations: 64,
		DrainTimeoutMS:   10000,
		AutosaveSeconds:  60,
		Store:            Store{Kind: "file", Path: defaultStorePaths["file"]},
		Log:              Log{Level: "info", Format: "json"},
		MaxBodyBytes:     1 << 20,
		Defaults:         Defaults{Temperature: 0.8, TopK: 40, TopP: 0.95, MaxTokens: 512},
	}
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// Merge returns c with every non-zero field of o applied on top.
func (c Config) Merge(o Config) Config {
	str(&c.Addr, o.Addr)
	str(&c.ModelPath, o.ModelPath)
	str(&c.ModelsDir, o.ModelsDir)
	str(&c.ModelID, o.ModelID)
	num(&c.CtxSize, o.CtxSize)
	num(&c.BatchSize, o.BatchSize)
	num(&c.Threads, o.Threads)
	num(&c.GPULayers, o.GPULayers)
	num(&c.Seed, o.Seed)
	num(&c.MaxQueueDepth, o.MaxQueueDepth)
	num(&c.MaxWaitMS, o.MaxWaitMS)
	num(&c.FragmentBuffer, o.FragmentBuffer)
	num(&c.MaxConversations, o.MaxConversations)
	num(&c.DrainTimeoutMS, o.DrainTimeoutMS)
	num(&c.AutosaveSeconds, o.AutosaveSeconds)
	num(&c.GenerateTimeoutSeconds, o.GenerateTimeoutSeconds)
	num(&c.MaxBodyBytes, o.MaxBodyBytes)

	c.Store = c.Store.WithKind(o.Store.Kind)
	str(&c.Store.Path, o.Store.Path)
	str(&c.Store.Table, o.Store.Table)
	str(&c.Store.Name, o.Store.Name)
	str(&c.Log.Level, o.Log.Level)
	str(&c.Log.Format, o.Log.Format)
	if o.CORS.Enabled {
		c.CORS.Enabled = true
	}
	if len(o.CORS.Origins) > 0 {
		c.CORS.Origins = append([]string(nil), o.CORS.Origins...)
	}
	num(&c.Defaults.Temperature, o.Defaults.Temperature)
	num(&c.Defaults.TopK, o.Defaults.TopK)
	num(&c.Defaults.TopP, o.Defaults.TopP)
	num(&c.Defaults.MaxTokens, o.Defaults.MaxTokens)
	return c
}

func str(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func num[T int | int64 | float32](dst *T, v T) {
	if v != 0 {
		*dst = v
	}
}

// Environment variables read by ApplyEnv.
const (
	EnvAddr     = "DIALOGD_ADDR"
	EnvModel    = "DIALOGD_MODEL"
	EnvLogLevel = "DIALOGD_LOG_LEVEL"
)

// ApplyEnv overrides c with the DIALOGD_* environment variables that are set.
func (c Config) ApplyEnv(getenv func(string) string) Config {
	if getenv == nil {
		getenv = os.Getenv
	}
	str(&c.Addr, getenv(EnvAddr))
	str(&c.ModelPath, getenv(EnvModel))
	str(&c.Log.Level, getenv(EnvLogLevel))
	return c
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Addr) == "" {
		errs = append(errs, errors.New("addr must not be empty"))
	}
	if c.CtxSize <= 0 {
		errs = append(errs, fmt.Errorf("ctx_size must be > 0, got %d", c.CtxSize))
	}
	if c.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("batch_size must be > 0, got %d", c.BatchSize))
	}
	for name, v := range map[string]int{
		"threads":                  c.Threads,
		"gpu_layers":               c.GPULayers,
		"max_queue_depth":          c.MaxQueueDepth,
		"max_wait_ms":              c.MaxWaitMS,
		"fragment_buffer":          c.FragmentBuffer,
		"max_conversations":        c.MaxConversations,
		"drain_timeout_ms":         c.DrainTimeoutMS,
		"autosave_seconds":         c.AutosaveSeconds,
		"generate_timeout_seconds": c.GenerateTimeoutSeconds,
	} {
		if v < 0 {
			errs = append(errs, fmt.Errorf("%s must be >= 0, got %d", name, v))
		}
	}
	if c.MaxBodyBytes < 0 {
		errs = append(errs, fmt.Errorf("max_body_bytes must be >= 0, got %d", c.MaxBodyBytes))
	}
	switch strings.ToLower(c.Store.Kind) {
	case "", "none":
	case "file", "sqlite":
		if strings.TrimSpace(c.Store.Path) == "" {
			errs = append(errs, fmt.Errorf("store.path is required for store kind %q", c.Store.Kind))
		}
	case "dynamodb":
		if strings.TrimSpace(c.Store.Table) == "" {
			errs = append(errs, errors.New("store.table is required for store kind \"dynamodb\""))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store kind %q", c.Store.Kind))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "json", "console":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	if c.Defaults.Temperature < 0 || c.Defaults.TopP < 0 || c.Defaults.TopP > 1 || c.Defaults.TopK < 0 || c.Defaults.MaxTokens < 0 {
		errs = append(errs, errors.New("defaults: sampling parameters out of range"))
	}
	return errors.Join(errs...)
}

// MaxWait is MaxWaitMS as a duration.
func (c Config) MaxWait() time.Duration { return time.Duration(c.MaxWaitMS) * time.Millisecond }

// DrainTimeout is DrainTimeoutMS as a duration.
func (c Config) DrainTimeout() time.Duration {
	return time.Duration(c.DrainTimeoutMS) * time.Millisecond
}

// AutosaveInterval is zero when autosave is disabled.
func (c Config) AutosaveInterval() time.Duration {
	return time.Duration(c.AutosaveSeconds) * time.Second
}

// GenerateTimeout is zero when requests have no server-side deadline.
func (c Config) GenerateTimeout() time.Duration {
	return time.Duration(c.GenerateTimeoutSeconds) * time.Second
}
