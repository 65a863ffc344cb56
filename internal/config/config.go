package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kbretrieval/knowledge-service/internal/infrastructure/resilience"
)

type Config struct {
	APIPort  string
	LogLevel string

	KnowledgePath    string
	IngestFlushEvery int
	EmbedBatchSize   int

	EmbeddingProvider string
	OllamaURL         string
	OllamaEmbedModel  string
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	OpenAIEmbedModel  string
	EmbeddingTimeout  time.Duration

	VectorBackend    string
	QdrantHost       string
	QdrantPort       int
	QdrantAPIKey     string
	QdrantCollection string
	QdrantVectorSize int
	SemanticTopK     int

	LiveFallbackEnabled bool
	ProviderTimeout     time.Duration
	ProviderMaxText     int
	ProviderRPS         float64
	ProvidersConfigPath string
	Providers           []ProviderConfig
	HTTPUserAgent       string
	GitHubToken         string

	NATSURL     string
	NATSSubject string

	PostgresDSN string

	APIRateLimitRPS   float64
	APIRateLimitBurst int
	APIMaxInFlight    int
	APIInFlightWait   time.Duration
	MCPEnabled        bool

	Resilience resilience.Config
}

// ProviderConfig tunes one live provider. Listing order never changes the
// cascade order.
type ProviderConfig struct {
	Name    string        `yaml:"name"`
	Enabled *bool         `yaml:"enabled"`
	Timeout time.Duration `yaml:"timeout"`
	RPS     float64       `yaml:"rps"`
	MaxText int           `yaml:"max_text"`
}

type providersFile struct {
	Providers []ProviderConfig `yaml:"providers"`
}

// Load reads configuration from the environment after loading an optional
// .env file from the working directory.
func Load() Config {
	_ = godotenv.Load()

	defaults := resilience.DefaultConfig()
	cfg := Config{
		APIPort:  mustEnv("API_PORT", "8001"),
		LogLevel: mustEnv("LOG_LEVEL", "info"),

		KnowledgePath:    mustEnv("KNOWLEDGE_PATH", "knowledge.json"),
		IngestFlushEvery: mustEnvInt("INGEST_FLUSH_EVERY", 5000),
		EmbedBatchSize:   mustEnvInt("EMBED_BATCH_SIZE", 64),

		EmbeddingProvider: strings.ToLower(mustEnv("EMBEDDING_PROVIDER", "ollama")),
		OllamaURL:         mustEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaEmbedModel:  mustEnv("OLLAMA_EMBED_MODEL", "all-minilm"),
		OpenAIAPIKey:      mustEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:     mustEnv("OPENAI_BASE_URL", ""),
		OpenAIEmbedModel:  mustEnv("OPENAI_EMBED_MODEL", "text-embedding-3-small"),
		EmbeddingTimeout:  mustEnvDuration("EMBEDDING_TIMEOUT", 60*time.Second),

		VectorBackend:    strings.ToLower(mustEnv("VECTOR_BACKEND", "memory")),
		QdrantHost:       mustEnv("QDRANT_HOST", "localhost"),
		QdrantPort:       mustEnvInt("QDRANT_PORT", 6334),
		QdrantAPIKey:     mustEnv("QDRANT_API_KEY", ""),
		QdrantCollection: mustEnv("QDRANT_COLLECTION", "knowledge"),
		QdrantVectorSize: mustEnvInt("QDRANT_VECTOR_SIZE", 384),
		SemanticTopK:     mustEnvInt("SEMANTIC_TOP_K", 5),

		LiveFallbackEnabled: mustEnvBool("LIVE_FALLBACK_ENABLED", true),
		ProviderTimeout:     mustEnvDuration("PROVIDER_TIMEOUT", 30*time.Second),
		ProviderMaxText:     mustEnvInt("PROVIDER_MAX_TEXT", 10000),
		ProviderRPS:         mustEnvFloat("PROVIDER_RPS", 1),
		ProvidersConfigPath: mustEnv("PROVIDERS_CONFIG", ""),
		HTTPUserAgent:       mustEnv("HTTP_USER_AGENT", "knowledge-service/1.0 (+https://github.com/kbretrieval/knowledge-service)"),
		GitHubToken:         mustEnv("GITHUB_TOKEN", ""),

		NATSURL:     mustEnv("NATS_URL", ""),
		NATSSubject: mustEnv("NATS_SUBJECT", "knowledge.documents"),

		PostgresDSN: mustEnv("POSTGRES_DSN", ""),

		APIRateLimitRPS:   mustEnvFloat("API_RATE_LIMIT_RPS", 0),
		APIRateLimitBurst: mustEnvInt("API_RATE_LIMIT_BURST", 20),
		APIMaxInFlight:    mustEnvInt("API_MAX_IN_FLIGHT", 0),
		APIInFlightWait:   mustEnvDuration("API_IN_FLIGHT_WAIT", 250*time.Millisecond),
		MCPEnabled:        mustEnvBool("MCP_ENABLED", true),

		Resilience: resilience.Config{
			RetryMaxAttempts:        mustEnvInt("RESILIENCE_RETRY_MAX_ATTEMPTS", defaults.RetryMaxAttempts),
			RetryInitialBackoff:     mustEnvDuration("RESILIENCE_RETRY_INITIAL_BACKOFF", defaults.RetryInitialBackoff),
			RetryMaxBackoff:         mustEnvDuration("RESILIENCE_RETRY_MAX_BACKOFF", defaults.RetryMaxBackoff),
			RetryMultiplier:         mustEnvFloat("RESILIENCE_RETRY_MULTIPLIER", defaults.RetryMultiplier),
			BreakerEnabled:          mustEnvBool("RESILIENCE_BREAKER_ENABLED", defaults.BreakerEnabled),
			BreakerMinRequests:      uint32(mustEnvInt("RESILIENCE_BREAKER_MIN_REQUESTS", int(defaults.BreakerMinRequests))),
			BreakerFailureRatio:     mustEnvFloat("RESILIENCE_BREAKER_FAILURE_RATIO", defaults.BreakerFailureRatio),
			BreakerOpenTimeout:      mustEnvDuration("RESILIENCE_BREAKER_OPEN_TIMEOUT", defaults.BreakerOpenTimeout),
			BreakerHalfOpenMaxCalls: uint32(mustEnvInt("RESILIENCE_BREAKER_HALF_OPEN_MAX_CALLS", int(defaults.BreakerHalfOpenMaxCalls))),
		},
	}

	if cfg.ProvidersConfigPath != "" {
		providers, err := LoadProviders(cfg.ProvidersConfigPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "config: ignoring %s: %v\n", cfg.ProvidersConfigPath, err)
		} else {
			cfg.Providers = providers
		}
	}
	return cfg
}

// LoadProviders reads the optional YAML provider overlay.
func LoadProviders(path string) ([]ProviderConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read providers config: %w", err)
	}
	var file providersFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse providers config: %w", err)
	}
	for i := range file.Providers {
		file.Providers[i].Name = strings.ToLower(strings.TrimSpace(file.Providers[i].Name))
	}
	return file.Providers, nil
}

// Provider returns the effective settings for the named provider.
func (c Config) Provider(name string) ProviderConfig {
	out := ProviderConfig{
		Name:    name,
		Timeout: c.ProviderTimeout,
		RPS:     c.ProviderRPS,
		MaxText: c.ProviderMaxText,
	}
	for _, p := range c.Providers {
		if p.Name != name {
			continue
		}
		out.Enabled = p.Enabled
		if p.Timeout > 0 {
			out.Timeout = p.Timeout
		}
		if p.RPS > 0 {
			out.RPS = p.RPS
		}
		if p.MaxText > 0 {
			out.MaxText = p.MaxText
		}
	}
	return out
}

func (p ProviderConfig) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func mustEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
