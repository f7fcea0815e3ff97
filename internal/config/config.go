// Package config loads and validates process configuration from a YAML
// file with environment-variable overrides (spec §6.4).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	HTTPPort     string `yaml:"http_port"`
	MetricsPort  string `yaml:"metrics_port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// SecurityConfig controls authentication and the insecure-defaults
// fail-fast checks that apply when Env is "production".
type SecurityConfig struct {
	Env                        string `yaml:"env"`
	JWTSecret                  string `yaml:"jwt_secret"`
	JWTCookieSecure            bool   `yaml:"jwt_cookie_secure"`
	MetricsRequireAuth         bool   `yaml:"metrics_require_auth"`
	AllowSelfServiceWorkspaces bool   `yaml:"allow_self_service_workspaces"`
}

// DatabaseConfig is the primary Postgres store.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// QueueConfig is the Redis-backed job queue (worker required).
type QueueConfig struct {
	RedisURL string `yaml:"redis_url"`
}

// ObjectStoreConfig is the S3-compatible binary store.
type ObjectStoreConfig struct {
	EndpointURL     string `yaml:"endpoint_url"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

// ProvidersConfig selects and authenticates the embedding and LLM ports.
type ProvidersConfig struct {
	EmbeddingProviderKey string        `yaml:"embedding_provider_key"`
	LLMProviderKey       string        `yaml:"llm_provider_key"`
	FakeLLM              bool          `yaml:"fake_llm"`
	FakeEmbeddings       bool          `yaml:"fake_embeddings"`
	EmbeddingCacheTTL    time.Duration `yaml:"embedding_cache_ttl"`
	AnthropicAPIKey      string        `yaml:"anthropic_api_key"`
	AnthropicModel       string        `yaml:"anthropic_model"`
	BedrockEmbeddingModelID string     `yaml:"bedrock_embedding_model_id"`
	BedrockLLMModelID    string        `yaml:"bedrock_llm_model_id"`
}

// UploadsConfig bounds inbound document admission.
type UploadsConfig struct {
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

// RetrievalConfig tunes the hybrid retrieval and context-building pipeline.
type RetrievalConfig struct {
	EnableHybridSearch bool     `yaml:"enable_hybrid_search"`
	RRFK               int      `yaml:"rrf_k"`
	MaxContextChars    int      `yaml:"max_context_chars"`
	FTSLanguageAllow   []string `yaml:"fts_language_allowlist"`
}

// RetryConfig governs the backoff policy for outbound dependency calls.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// LoggingConfig selects structured log verbosity and encoding.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the fully resolved process configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Security    SecurityConfig    `yaml:"security"`
	Database    DatabaseConfig    `yaml:"database"`
	Queue       QueueConfig       `yaml:"queue"`
	ObjectStore ObjectStoreConfig `yaml:"object_store"`
	Providers   ProvidersConfig   `yaml:"providers"`
	Uploads     UploadsConfig     `yaml:"uploads"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Retry       RetryConfig       `yaml:"retry"`
	Logging     LoggingConfig     `yaml:"logging"`
}

var validFTSLanguages = map[string]bool{
	"spanish": true,
	"english": true,
	"simple":  true,
}

// Load reads configFile, applies environment overrides, fills defaults,
// and validates the result.
func Load(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:     "8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Uploads: UploadsConfig{
			MaxUploadBytes: 25 * 1024 * 1024,
		},
		Retrieval: RetrievalConfig{
			EnableHybridSearch: true,
			RRFK:               60,
			MaxContextChars:    12000,
			FTSLanguageAllow:   []string{"english", "spanish", "simple"},
		},
		Retry: RetryConfig{
			MaxAttempts: 4,
			BaseDelay:   1 * time.Second,
			MaxDelay:    30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.HTTPPort == "" {
		cfg.Server.HTTPPort = "8080"
	}
	if cfg.Uploads.MaxUploadBytes == 0 {
		cfg.Uploads.MaxUploadBytes = 25 * 1024 * 1024
	}
	if cfg.Retrieval.RRFK == 0 {
		cfg.Retrieval.RRFK = 60
	}
	if cfg.Retrieval.MaxContextChars == 0 {
		cfg.Retrieval.MaxContextChars = 12000
	}
	if len(cfg.Retrieval.FTSLanguageAllow) == 0 {
		cfg.Retrieval.FTSLanguageAllow = []string{"english", "spanish", "simple"}
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 4
	}
	if cfg.Retry.BaseDelay == 0 {
		cfg.Retry.BaseDelay = 1 * time.Second
	}
	if cfg.Retry.MaxDelay == 0 {
		cfg.Retry.MaxDelay = 30 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Providers.BedrockEmbeddingModelID == "" {
		cfg.Providers.BedrockEmbeddingModelID = "amazon.titan-embed-text-v1"
	}
	if cfg.Providers.BedrockLLMModelID == "" {
		cfg.Providers.BedrockLLMModelID = "anthropic.claude-3-5-sonnet-20241022-v2:0"
	}
	if cfg.Providers.AnthropicModel == "" {
		cfg.Providers.AnthropicModel = "claude-3-5-sonnet-latest"
	}
}

// loadFromEnv applies the recognized environment variables of spec §6.4
// on top of an already-parsed config, env taking precedence.
func loadFromEnv(cfg *Config) error {
	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.Security.Env = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Security.JWTSecret = v
	}
	if v := os.Getenv("JWT_COOKIE_SECURE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid JWT_COOKIE_SECURE: %w", err)
		}
		cfg.Security.JWTCookieSecure = b
	}
	if v := os.Getenv("METRICS_REQUIRE_AUTH"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid METRICS_REQUIRE_AUTH: %w", err)
		}
		cfg.Security.MetricsRequireAuth = b
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Queue.RedisURL = v
	}
	if v := os.Getenv("S3_ENDPOINT_URL"); v != "" {
		cfg.ObjectStore.EndpointURL = v
	}
	if v := os.Getenv("S3_BUCKET"); v != "" {
		cfg.ObjectStore.Bucket = v
	}
	if v := os.Getenv("S3_ACCESS_KEY_ID"); v != "" {
		cfg.ObjectStore.AccessKeyID = v
	}
	if v := os.Getenv("S3_SECRET_ACCESS_KEY"); v != "" {
		cfg.ObjectStore.SecretAccessKey = v
	}
	if v := os.Getenv("EMBEDDING_PROVIDER_KEY"); v != "" {
		cfg.Providers.EmbeddingProviderKey = v
	}
	if v := os.Getenv("LLM_PROVIDER_KEY"); v != "" {
		cfg.Providers.LLMProviderKey = v
	}
	if v := os.Getenv("FAKE_LLM"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid FAKE_LLM: %w", err)
		}
		cfg.Providers.FakeLLM = b
	}
	if v := os.Getenv("FAKE_EMBEDDINGS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid FAKE_EMBEDDINGS: %w", err)
		}
		cfg.Providers.FakeEmbeddings = b
	}
	if v := os.Getenv("MAX_UPLOAD_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid MAX_UPLOAD_BYTES: %w", err)
		}
		cfg.Uploads.MaxUploadBytes = n
	}
	if v := os.Getenv("MAX_CONTEXT_CHARS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid MAX_CONTEXT_CHARS: %w", err)
		}
		cfg.Retrieval.MaxContextChars = n
	}
	if v := os.Getenv("ENABLE_HYBRID_SEARCH"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid ENABLE_HYBRID_SEARCH: %w", err)
		}
		cfg.Retrieval.EnableHybridSearch = b
	}
	if v := os.Getenv("RRF_K"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid RRF_K: %w", err)
		}
		cfg.Retrieval.RRFK = n
	}
	if v := os.Getenv("FTS_LANGUAGE_ALLOWLIST"); v != "" {
		cfg.Retrieval.FTSLanguageAllow = strings.Split(v, ",")
	}
	if v := os.Getenv("RETRY_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid RETRY_MAX_ATTEMPTS: %w", err)
		}
		cfg.Retry.MaxAttempts = n
	}
	if v := os.Getenv("RETRY_BASE_DELAY_S"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid RETRY_BASE_DELAY_S: %w", err)
		}
		cfg.Retry.BaseDelay = time.Duration(n) * time.Second
	}
	if v := os.Getenv("RETRY_MAX_DELAY_S"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid RETRY_MAX_DELAY_S: %w", err)
		}
		cfg.Retry.MaxDelay = time.Duration(n) * time.Second
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Providers.AnthropicAPIKey = v
	}
	if v := os.Getenv("ANTHROPIC_MODEL"); v != "" {
		cfg.Providers.AnthropicModel = v
	}
	if v := os.Getenv("BEDROCK_EMBEDDING_MODEL_ID"); v != "" {
		cfg.Providers.BedrockEmbeddingModelID = v
	}
	if v := os.Getenv("BEDROCK_LLM_MODEL_ID"); v != "" {
		cfg.Providers.BedrockLLMModelID = v
	}
	if v := os.Getenv("EMBEDDING_CACHE_TTL_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid EMBEDDING_CACHE_TTL_SECONDS: %w", err)
		}
		cfg.Providers.EmbeddingCacheTTL = time.Duration(n) * time.Second
	}
	if v := os.Getenv("METRICS_PORT"); v != "" {
		cfg.Server.MetricsPort = v
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		cfg.Server.HTTPPort = v
	}
	return nil
}

// validate enforces the recognized FTS languages and the §6.4 production
// fail-fast requirements.
func validate(cfg *Config) error {
	for _, lang := range cfg.Retrieval.FTSLanguageAllow {
		if !validFTSLanguages[lang] {
			return fmt.Errorf("unsupported FTS language %q: must be one of english, spanish, simple", lang)
		}
	}
	if cfg.Retrieval.RRFK <= 0 {
		return fmt.Errorf("rrf_k must be greater than 0")
	}
	if cfg.Retrieval.MaxContextChars <= 0 {
		return fmt.Errorf("max_context_chars must be greater than 0")
	}
	if cfg.Uploads.MaxUploadBytes <= 0 {
		return fmt.Errorf("max_upload_bytes must be greater than 0")
	}

	if cfg.Security.Env != "production" {
		return nil
	}
	if len(cfg.Security.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
	}
	if !cfg.Security.JWTCookieSecure {
		return fmt.Errorf("JWT_COOKIE_SECURE must be true in production")
	}
	if !cfg.Security.MetricsRequireAuth {
		return fmt.Errorf("METRICS_REQUIRE_AUTH must be true in production")
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required in production")
	}
	return nil
}
