/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       Claude Opus 4.6
Tier:        L4
Logic:       Gateway configuration loaded from a YAML base file,
             merged with an environment-keyed overlay file, with
             ${NAME} environment-variable substitution applied to
             string leaves before the tree is decoded into the
             typed Config struct.
Root Cause:  Config needs to express cache/rate-limit/guardrail/
             fallback/provider/budget/webhook tuning without a
             redeploy, while keeping local-dev overrides in .env.
Context:     Composition root calls Load once at process start;
             no import-time side effects.
Suitability: L4 model used for config design feeding every
             downstream subsystem.
──────────────────────────────────────────────────────────────
*/

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all gateway configuration values.
type Config struct {
	Addr            string        `yaml:"addr"`
	Env             string        `yaml:"env"`
	GracefulTimeout time.Duration `yaml:"graceful_timeout"`

	RedisURL     string `yaml:"redis_url"`
	APIKeyHeader string `yaml:"api_key_header"`
	AdminKey     string `yaml:"admin_key"`

	DefaultTimeout    time.Duration `yaml:"-"`
	MaxBodyBytes      int64         `yaml:"max_body_bytes"`
	LogLevel          string        `yaml:"log_level"`
	ModelSyncInterval time.Duration `yaml:"model_sync_interval"`

	Cache        CacheConfig        `yaml:"cache"`
	RateLimiting RateLimitingConfig `yaml:"rate_limiting"`
	Guardrails   GuardrailsConfig   `yaml:"guardrails"`
	Fallback     FallbackConfig     `yaml:"fallback"`
	Providers    map[string]ProviderConfig `yaml:"providers"`
	ABTesting    ABTestingConfig    `yaml:"ab_testing"`
	Budget       BudgetConfig       `yaml:"budget"`
	PII          PIIConfig          `yaml:"pii"`
	Webhooks     WebhooksConfig     `yaml:"webhooks"`
	Timeout      TimeoutConfig      `yaml:"timeout"`
}

type CacheConfig struct {
	Enabled            bool    `yaml:"enabled"`
	TTLSeconds         int     `yaml:"ttl"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	VectorDimension    int     `yaml:"vector_dimension"`
	EmbeddingModel     string  `yaml:"embedding_model"`
	EmbeddingProvider  string  `yaml:"embedding_provider"`
}

type TierLimits struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	RequestsPerHour   int `yaml:"requests_per_hour"`
}

type RateLimitingConfig struct {
	Enabled bool                  `yaml:"enabled"`
	Tiers   map[string]TierLimits `yaml:"tiers"`
}

type GuardrailRuleConfig struct {
	Name     string   `yaml:"name"`
	Kind     string   `yaml:"kind"` // max_tokens|max_cost|no_pii|content_filter
	Enabled  bool     `yaml:"enabled"`
	Severity string   `yaml:"severity"` // error|warning|info
	Action   string   `yaml:"action"`   // block|log|alert
	Threshold float64 `yaml:"threshold,omitempty"`
	Kinds     []string `yaml:"kinds,omitempty"`
	Patterns  []string `yaml:"patterns,omitempty"`
}

type GuardrailsConfig struct {
	Enabled          bool                  `yaml:"enabled"`
	BlockOnViolation bool                  `yaml:"block_on_violation"`
	Rules            []GuardrailRuleConfig `yaml:"rules"`
}

type FallbackConfig struct {
	Enabled bool     `yaml:"enabled"`
	Order   []string `yaml:"order"`
}

type ProviderConfig struct {
	APIKey       string            `yaml:"api_key"`
	BaseURL      string            `yaml:"base_url"`
	MaxRetries   int               `yaml:"max_retries"`
	RetryDelayMs int               `yaml:"retry_delay_ms"`
	DefaultModel string            `yaml:"default_model"`
	Models       []string          `yaml:"models"`
	TimeoutSec   int               `yaml:"timeout_seconds"`
}

type ABVariant struct {
	Provider   string  `yaml:"provider"`
	Model      string  `yaml:"model"`
	Percentage float64 `yaml:"percentage"`
}

type ABTestingConfig struct {
	Enabled  bool        `yaml:"enabled"`
	Variants []ABVariant `yaml:"variants"`
}

type BudgetConfig struct {
	Enabled         bool      `yaml:"enabled"`
	DefaultLimitUSD float64   `yaml:"default_limit"`
	DefaultPeriod   string    `yaml:"default_period"` // daily|weekly|monthly
	AlertThresholds []float64 `yaml:"alert_thresholds"`
}

type PIIMaskingConfig struct {
	Enabled        bool `yaml:"enabled"`
	SessionTTLSeconds int  `yaml:"session_ttl"`
}

type PIIConfig struct {
	Masking PIIMaskingConfig `yaml:"masking"`
}

type WebhooksConfig struct {
	Enabled      bool `yaml:"enabled"`
	TimeoutSec   int  `yaml:"timeout"`
	MaxRetries   int  `yaml:"max_retries"`
	RetryDelayMs int  `yaml:"retry_delay_ms"`
}

type TimeoutConfig struct {
	DefaultSeconds int `yaml:"default"`
}

var envSubstitution = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads the base YAML config, merges an environment-specific overlay,
// substitutes ${NAME} references against the process environment, and
// finally applies any GATEWAY_* / legacy env-var overrides understood by
// earlier deployments. A missing config file is not an error — defaults
// apply and env-vars still take effect, favoring an env-first posture
// for local development.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()

	base := getEnv("GATEWAY_CONFIG_FILE", "config.yaml")
	if err := mergeYAMLFile(cfg, base); err != nil {
		return nil, err
	}

	env := getEnv("ENV", cfg.Env)
	overlay := overlayPath(base, env)
	if _, err := os.Stat(overlay); err == nil {
		if err := mergeYAMLFile(cfg, overlay); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	cfg.DefaultTimeout = time.Duration(cfg.Timeout.DefaultSeconds) * time.Second
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Addr:            ":8080",
		Env:             "development",
		GracefulTimeout: 15 * time.Second,
		RedisURL:        "redis://localhost:6379",
		APIKeyHeader:    "Authorization",
		MaxBodyBytes:      1 * 1024 * 1024,
		LogLevel:          "info",
		ModelSyncInterval: 5 * time.Minute,
		Cache: CacheConfig{
			Enabled:             true,
			TTLSeconds:          3600,
			SimilarityThreshold: 0.95,
			VectorDimension:     1536,
			EmbeddingProvider:   "openai",
			EmbeddingModel:      "text-embedding-3-small",
		},
		RateLimiting: RateLimitingConfig{
			Enabled: true,
			Tiers: map[string]TierLimits{
				"default": {RequestsPerMinute: 60, RequestsPerHour: 1000},
			},
		},
		Guardrails: GuardrailsConfig{Enabled: true, BlockOnViolation: true},
		Fallback:   FallbackConfig{Enabled: true, Order: []string{"openai", "anthropic", "google"}},
		Providers:  map[string]ProviderConfig{},
		ABTesting:  ABTestingConfig{Enabled: false},
		Budget: BudgetConfig{
			Enabled:         true,
			DefaultLimitUSD: 10.0,
			DefaultPeriod:   "monthly",
			AlertThresholds: []float64{0.5, 0.8, 0.95},
		},
		PII: PIIConfig{Masking: PIIMaskingConfig{Enabled: true, SessionTTLSeconds: 3600}},
		Webhooks: WebhooksConfig{
			Enabled:      true,
			TimeoutSec:   5,
			MaxRetries:   3,
			RetryDelayMs: 500,
		},
		Timeout: TimeoutConfig{DefaultSeconds: 30},
	}
}

func overlayPath(base, env string) string {
	ext := filepath.Ext(base)
	name := base[:len(base)-len(ext)]
	return fmt.Sprintf("%s.%s%s", name, env, ext)
}

// mergeYAMLFile decodes the file (if present) into a raw tree, substitutes
// ${NAME} env references, then decodes the substituted tree on top of cfg.
func mergeYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}

	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	raw = substituteEnv(raw)

	substituted, err := yaml.Marshal(raw)
	if err != nil {
		return fmt.Errorf("re-marshal config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(substituted, cfg); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	return nil
}

func substituteEnv(node interface{}) interface{} {
	switch v := node.(type) {
	case string:
		return envSubstitution.ReplaceAllStringFunc(v, func(m string) string {
			name := envSubstitution.FindStringSubmatch(m)[1]
			if val, ok := os.LookupEnv(name); ok {
				return val
			}
			return m
		})
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, val := range v {
			out[k] = substituteEnv(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, val := range v {
			out[i] = substituteEnv(val)
		}
		return out
	default:
		return v
	}
}

// applyEnvOverrides applies an env-var-first override for the handful of
// values operators most commonly override per-process, on top of
// whatever the YAML layer produced.
func applyEnvOverrides(cfg *Config) {
	cfg.Addr = getEnv("GATEWAY_ADDR", cfg.Addr)
	cfg.Env = getEnv("ENV", cfg.Env)
	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	cfg.AdminKey = getEnv("GATEWAY_ADMIN_KEY", cfg.AdminKey)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.RateLimiting.Enabled = getEnvBool("RATE_LIMIT_ENABLED", cfg.RateLimiting.Enabled)
	cfg.Budget.Enabled = getEnvBool("BUDGET_ENABLED", cfg.Budget.Enabled)
}

// ProviderTimeout returns the per-call timeout for a named provider,
// falling back to the global timeout.default when the provider has no
// explicit timeout_seconds configured.
func (c *Config) ProviderTimeout(name string) time.Duration {
	if p, ok := c.Providers[name]; ok && p.TimeoutSec > 0 {
		return time.Duration(p.TimeoutSec) * time.Second
	}
	return c.DefaultTimeout
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool { return c.Env == "development" }

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool { return c.Env == "production" }

// Get resolves a dot-separated path against the decoded config tree,
// returning fallback when the path does not resolve to a scalar. Grounded
// on the original ConfigManager.get(key, default) convenience accessor,
// useful for call sites that want a single value without a type switch.
func (c *Config) Get(path string, fallback interface{}) interface{} {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fallback
	}
	var tree map[string]interface{}
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return fallback
	}
	return lookup(tree, splitPath(path), fallback)
}

func splitPath(path string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			parts = append(parts, path[start:i])
			start = i + 1
		}
	}
	parts = append(parts, path[start:])
	return parts
}

func lookup(node interface{}, path []string, fallback interface{}) interface{} {
	if len(path) == 0 {
		return node
	}
	m, ok := node.(map[string]interface{})
	if !ok {
		return fallback
	}
	next, ok := m[path[0]]
	if !ok {
		return fallback
	}
	return lookup(next, path[1:], fallback)
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
