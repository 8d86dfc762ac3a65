package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "KOKORO_"

// Config holds runtime parameters for the service.
type Config struct {
	Addr string `json:"addr" yaml:"addr" toml:"addr" env:"ADDR"`

	// Counter store
	RedisURL       string `json:"redis_url" yaml:"redis_url" toml:"redis_url" env:"REDIS_URL"`
	StoreTimeoutMS int    `json:"store_timeout_ms" yaml:"store_timeout_ms" toml:"store_timeout_ms" env:"STORE_TIMEOUT_MS"`
	QueueMaxSize   int    `json:"queue_max_size" yaml:"queue_max_size" toml:"queue_max_size" env:"QUEUE_MAX_SIZE"`

	// Rate limiting; window is in seconds.
	RateLimitRequests int `json:"rate_limit_requests" yaml:"rate_limit_requests" toml:"rate_limit_requests" env:"RATE_LIMIT_REQUESTS"`
	RateLimitWindow   int `json:"rate_limit_window" yaml:"rate_limit_window" toml:"rate_limit_window" env:"RATE_LIMIT_WINDOW"`

	// Synthesis
	DefaultVoice  string `json:"default_voice" yaml:"default_voice" toml:"default_voice" env:"DEFAULT_VOICE"`
	MaxTextLength int    `json:"max_text_length" yaml:"max_text_length" toml:"max_text_length" env:"MAX_TEXT_LENGTH"`
	SampleRate    int    `json:"sample_rate" yaml:"sample_rate" toml:"sample_rate" env:"SAMPLE_RATE"`
	VoicesFile    string `json:"voices_file" yaml:"voices_file" toml:"voices_file" env:"VOICES_FILE"`
	FFmpegPath    string `json:"ffmpeg_path" yaml:"ffmpeg_path" toml:"ffmpeg_path" env:"FFMPEG_PATH"`

	// Model / engine
	ModelCacheDir    string `json:"model_cache_dir" yaml:"model_cache_dir" toml:"model_cache_dir" env:"MODEL_CACHE_DIR"`
	UseGPU           bool   `json:"use_gpu" yaml:"use_gpu" toml:"use_gpu" env:"USE_GPU"`
	Backend          string `json:"backend" yaml:"backend" toml:"backend" env:"BACKEND"`
	BackendURL       string `json:"backend_url" yaml:"backend_url" toml:"backend_url" env:"BACKEND_URL"`
	InferenceWorkers int    `json:"inference_workers" yaml:"inference_workers" toml:"inference_workers" env:"INFERENCE_WORKERS"`

	// HTTP; timeouts are in seconds.
	RequestTimeout  int      `json:"request_timeout" yaml:"request_timeout" toml:"request_timeout" env:"REQUEST_TIMEOUT"`
	ShutdownTimeout int      `json:"shutdown_timeout" yaml:"shutdown_timeout" toml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	MaxBodyBytes    int64    `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes" env:"MAX_BODY_BYTES"`
	CORSOrigins     []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins" env:"CORS_ORIGINS" envSeparator:","`
	// Peers (IPs or CIDRs) whose X-Forwarded-For / X-Real-IP name the client.
	TrustedProxies []string `json:"trusted_proxies" yaml:"trusted_proxies" toml:"trusted_proxies" env:"TRUSTED_PROXIES" envSeparator:","`

	// Logging
	LogLevel  string `json:"log_level" yaml:"log_level" toml:"log_level" env:"LOG_LEVEL"`
	LogFormat string `json:"log_format" yaml:"log_format" toml:"log_format" env:"LOG_FORMAT"`

	// Lifecycle events
	EventsNATSURL string `json:"events_nats_url" yaml:"events_nats_url" toml:"events_nats_url" env:"EVENTS_NATS_URL"`
	EventsSubject string `json:"events_subject" yaml:"events_subject" toml:"events_subject" env:"EVENTS_SUBJECT"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Addr:              "0.0.0.0:8000",
		RedisURL:          "redis://localhost:6379",
		StoreTimeoutMS:    1000,
		QueueMaxSize:      100,
		RateLimitRequests: 60,
		RateLimitWindow:   60,
		DefaultVoice:      "af_heart",
		MaxTextLength:     5000,
		SampleRate:        24000,
		FFmpegPath:        "ffmpeg",
		ModelCacheDir:     "/app/model_cache",
		Backend:           "http",
		BackendURL:        "http://127.0.0.1:8880",
		InferenceWorkers:  1,
		RequestTimeout:    120,
		ShutdownTimeout:   30,
		MaxBodyBytes:      1 << 20,
		CORSOrigins:       []string{"*"},
		LogLevel:          "info",
		LogFormat:         "json",
		EventsSubject:     "kokoro.events",
	}
}

// Load reads a configuration file based on its extension on top of cfg.
// Supports: .yaml/.yml, .json, .toml
func Load(path string, cfg Config) (Config, error) {
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

// ApplyEnv overlays KOKORO_* environment variables onto cfg. Unset
// variables leave the corresponding field untouched.
func ApplyEnv(cfg Config) (Config, error) {
	return applyEnv(cfg, nil)
}

func applyEnv(cfg Config, environ map[string]string) (Config, error) {
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return cfg, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// Resolve builds the effective configuration: defaults, then the optional
// file at path, then the environment.
func Resolve(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		var err error
		if cfg, err = Load(path, cfg); err != nil {
			return cfg, err
		}
	}
	return ApplyEnv(cfg)
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("addr must not be empty")
	case c.QueueMaxSize <= 0:
		return fmt.Errorf("queue_max_size must be positive, got %d", c.QueueMaxSize)
	case c.RateLimitRequests <= 0:
		return fmt.Errorf("rate_limit_requests must be positive, got %d", c.RateLimitRequests)
	case c.RateLimitWindow <= 0:
		return fmt.Errorf("rate_limit_window must be positive, got %d", c.RateLimitWindow)
	case c.MaxTextLength <= 0:
		return fmt.Errorf("max_text_length must be positive, got %d", c.MaxTextLength)
	case c.SampleRate <= 0:
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	case c.InferenceWorkers <= 0:
		return fmt.Errorf("inference_workers must be positive, got %d", c.InferenceWorkers)
	case c.DefaultVoice == "":
		return fmt.Errorf("default_voice must not be empty")
	}
	switch c.Backend {
	case "http", "tone":
	default:
		return fmt.Errorf("unknown backend %q (want http or tone)", c.Backend)
	}
	if c.Backend == "http" && c.BackendURL == "" {
		return fmt.Errorf("backend_url is required for the http backend")
	}
	return nil
}
