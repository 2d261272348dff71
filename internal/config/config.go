package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// EnvLookup resolves an environment variable, mirroring os.LookupEnv.
type EnvLookup func(key string) (string, bool)

// DefaultEnvLookup reads from the process environment.
func DefaultEnvLookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// WebhookConfig describes one outbound webhook subscriber.
type WebhookConfig struct {
	URL    string   `json:"url"`
	Secret string   `json:"secret"`
	Events []string `json:"events,omitempty"` // empty = all terminal events
}

// Subscribed reports whether the endpoint wants the given event.
func (w WebhookConfig) Subscribed(event string) bool {
	if len(w.Events) == 0 {
		return true
	}
	for _, e := range w.Events {
		if e == event {
			return true
		}
	}
	return false
}

// RuntimeConfig holds everything the ship server needs at startup.
type RuntimeConfig struct {
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Environment string `json:"environment"`

	LLMProvider    string `json:"llm_provider"`
	LLMModel       string `json:"llm_model"`
	LLMSmallModel  string `json:"llm_small_model"`
	APIKey         string `json:"api_key"`
	BaseURL        string `json:"base_url"`
	RequestTimeout int    `json:"request_timeout_seconds"`

	MaxParallelAgents int `json:"max_parallel_agents"`
	MaxFixPasses      int `json:"max_fix_passes"`
	EventReplaySize   int `json:"event_replay_size"`

	SessionDir     string          `json:"session_dir"`
	AllowedOrigins []string        `json:"allowed_origins"`
	Webhooks       []WebhookConfig `json:"webhooks,omitempty"`
}

type loadOptions struct {
	envLookup  EnvLookup
	readFile   func(path string) ([]byte, error)
	homeDir    func() (string, error)
	configPath string
	overrides  []func(*RuntimeConfig)
}

// Option customizes Load for tests and embedding callers.
type Option func(*loadOptions)

// WithEnv overrides environment lookup.
func WithEnv(lookup EnvLookup) Option {
	return func(o *loadOptions) { o.envLookup = lookup }
}

// WithFileReader overrides config file reads.
func WithFileReader(read func(path string) ([]byte, error)) Option {
	return func(o *loadOptions) { o.readFile = read }
}

// WithHomeDir overrides home directory resolution.
func WithHomeDir(home func() (string, error)) Option {
	return func(o *loadOptions) { o.homeDir = home }
}

// WithConfigPath points Load at an explicit config file.
func WithConfigPath(path string) Option {
	return func(o *loadOptions) { o.configPath = path }
}

// WithOverride applies a caller override after file and env merging.
func WithOverride(fn func(*RuntimeConfig)) Option {
	return func(o *loadOptions) { o.overrides = append(o.overrides, fn) }
}

// Load builds the runtime configuration: defaults, then the JSON config file
// if present, then SHIP_* environment variables, then caller overrides.
func Load(opts ...Option) (RuntimeConfig, error) {
	options := loadOptions{
		envLookup: DefaultEnvLookup,
		readFile:  os.ReadFile,
		homeDir:   os.UserHomeDir,
	}
	for _, opt := range opts {
		opt(&options)
	}

	cfg := RuntimeConfig{
		Host:              "0.0.0.0",
		Port:              8090,
		Environment:       "development",
		LLMProvider:       "openai",
		LLMModel:          "gpt-4o",
		LLMSmallModel:     "gpt-4o-mini",
		BaseURL:           "https://api.openai.com/v1",
		RequestTimeout:    180,
		MaxParallelAgents: 3,
		MaxFixPasses:      2,
		EventReplaySize:   256,
		SessionDir:        "~/.ship-sessions",
	}

	if err := applyFile(&cfg, options); err != nil {
		return RuntimeConfig{}, err
	}
	applyEnv(&cfg, options.envLookup)
	for _, override := range options.overrides {
		override(&cfg)
	}

	normalize(&cfg, options)
	if err := cfg.validate(); err != nil {
		return RuntimeConfig{}, err
	}
	return cfg, nil
}

func applyFile(cfg *RuntimeConfig, options loadOptions) error {
	path := options.configPath
	if path == "" {
		home, err := options.homeDir()
		if err != nil {
			return nil // no home, no default config file
		}
		path = filepath.Join(home, ".ship", "config.json")
	}

	data, err := options.readFile(path)
	if err != nil {
		if options.configPath != "" {
			return fmt.Errorf("read config %s: %w", path, err)
		}
		return nil // default path is optional
	}

	v := viper.New()
	v.SetConfigType("json")
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	// Only keys present in the file override the defaults already set.
	err = v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) { dc.TagName = "json" })
	if err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *RuntimeConfig, lookup EnvLookup) {
	setString := func(key string, target *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*target = strings.TrimSpace(v)
		}
	}
	setInt := func(key string, target *int) {
		if v, ok := lookup(key); ok {
			if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed > 0 {
				*target = parsed
			}
		}
	}

	setString("SHIP_HOST", &cfg.Host)
	setInt("SHIP_PORT", &cfg.Port)
	setString("SHIP_ENVIRONMENT", &cfg.Environment)
	setString("SHIP_LLM_PROVIDER", &cfg.LLMProvider)
	setString("SHIP_LLM_MODEL", &cfg.LLMModel)
	setString("SHIP_LLM_SMALL_MODEL", &cfg.LLMSmallModel)
	setString("SHIP_API_KEY", &cfg.APIKey)
	setString("SHIP_BASE_URL", &cfg.BaseURL)
	setInt("SHIP_REQUEST_TIMEOUT", &cfg.RequestTimeout)
	setInt("SHIP_MAX_PARALLEL_AGENTS", &cfg.MaxParallelAgents)
	setInt("SHIP_MAX_FIX_PASSES", &cfg.MaxFixPasses)
	setInt("SHIP_EVENT_REPLAY_SIZE", &cfg.EventReplaySize)
	setString("SHIP_SESSION_DIR", &cfg.SessionDir)

	if v, ok := lookup("SHIP_ALLOWED_ORIGINS"); ok && strings.TrimSpace(v) != "" {
		parts := strings.Split(v, ",")
		origins := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
		cfg.AllowedOrigins = origins
	}
}

func normalize(cfg *RuntimeConfig, options loadOptions) {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if strings.HasPrefix(cfg.SessionDir, "~/") {
		if home, err := options.homeDir(); err == nil {
			cfg.SessionDir = filepath.Join(home, cfg.SessionDir[2:])
		}
	}
	if cfg.MaxParallelAgents <= 0 {
		cfg.MaxParallelAgents = 3
	}
	if cfg.MaxFixPasses < 0 {
		cfg.MaxFixPasses = 0
	}
	if cfg.EventReplaySize <= 0 {
		cfg.EventReplaySize = 256
	}
}

func (c RuntimeConfig) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("webhook %d has no url", i)
		}
	}
	return nil
}
