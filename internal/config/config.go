package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kevin07696/purchase-gateway/internal/services/cascade"
)

// Secret backends
const (
	SecretsLocal = "local"
	SecretsVault = "vault"
	SecretsAWS   = "aws"
	SecretsGCP   = "gcp"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Upstream UpstreamConfig
	Secrets  SecretsConfig
	Token    TokenConfig
	Session  SessionConfig
	Features FeatureConfig
	Cascade  CascadeConfig
	Logger   LoggerConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port        int
	Host        string
	MetricsPort int
	Environment string

	// Rate limit per client IP
	RateLimitRPS   float64
	RateLimitBurst int
	TrustProxy     bool
}

// DatabaseConfig holds PostgreSQL configuration. An empty URL keeps
// sessions in memory.
type DatabaseConfig struct {
	URL      string
	MaxConns int32
	MinConns int32
}

// RedisConfig holds the lock and charge identity store configuration. An
// empty address keeps both in memory.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	LockTTL  time.Duration
}

// KafkaConfig holds BI event publishing configuration. No brokers means
// events are only logged.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// UpstreamConfig holds the base URLs of collaborating services
type UpstreamConfig struct {
	ConfigServiceURL  string
	FraudURL          string
	LegacyFraudURL    string
	MemberProfileURL  string
	TemplateURL       string
	TransactionURL    string
	MGPGURL           string
	Timeout           time.Duration
	SiteCacheTTL      time.Duration
	SiteCacheSize     int
	PostbackSecret    string
	PostbackRelayWait time.Duration
	// CallbackSecret verifies biller postbacks sent to this gateway
	CallbackSecret    string
}

// SecretsConfig selects where resume-token keys are read from
type SecretsConfig struct {
	Backend   string // local, vault, aws, gcp
	LocalPath string

	// Vault
	VaultAddr      string
	VaultAuth      string
	VaultToken     string
	VaultRoleID    string
	VaultSecretID  string
	VaultK8sRole   string
	VaultNamespace string
	VaultMount     string

	// AWS
	AWSRegion string

	// GCP
	GCPProjectID string

	// KeyPrefix is prepended to the key id to form the secret path
	KeyPrefix    string
	CurrentKeyID string
}

// TokenConfig holds resume token settings
type TokenConfig struct {
	CallbackBaseURL string
	Issuer          string
	TTL             time.Duration
}

// SessionConfig holds purchase session settings
type SessionConfig struct {
	TTL time.Duration
}

// FeatureConfig holds feature flags
type FeatureConfig struct {
	UseCommonFraudService bool
	MGPGEnabled           bool
}

// CascadeConfig points at the routing rule file
type CascadeConfig struct {
	RulesPath string
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level       string // debug, info, warn, error
	Development bool
}

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// LoadFromEnv loads configuration from a .env file, when present, and the
// environment. Variables already set are not overridden by the file.
func LoadFromEnv() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnvAsInt("SERVER_PORT", 8080),
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			MetricsPort:    getEnvAsInt("METRICS_PORT", 9090),
			Environment:    getEnv("ENVIRONMENT", "development"),
			RateLimitRPS:   getEnvAsFloat("RATE_LIMIT_RPS", 20),
			RateLimitBurst: getEnvAsInt("RATE_LIMIT_BURST", 40),
			TrustProxy:     getEnvAsBool("TRUST_PROXY", false),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			MaxConns: int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns: int32(getEnvAsInt("DB_MIN_CONNS", 5)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			LockTTL:  getEnvAsDuration("SESSION_LOCK_TTL", 30*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvAsList("KAFKA_BROKERS"),
			Topic:   getEnv("KAFKA_BI_TOPIC", "purchase.bi-events"),
		},
		Upstream: UpstreamConfig{
			ConfigServiceURL:  getEnv("CONFIG_SERVICE_URL", "http://localhost:8081"),
			FraudURL:          getEnv("FRAUD_SERVICE_URL", "http://localhost:8082"),
			LegacyFraudURL:    getEnv("LEGACY_FRAUD_URL", "http://localhost:8083"),
			MemberProfileURL:  getEnv("MEMBER_PROFILE_URL", "http://localhost:8084"),
			TemplateURL:       getEnv("PAYMENT_TEMPLATE_URL", "http://localhost:8085"),
			TransactionURL:    getEnv("TRANSACTION_SERVICE_URL", "http://localhost:8086"),
			MGPGURL:           getEnv("MGPG_URL", ""),
			Timeout:           getEnvAsDuration("UPSTREAM_TIMEOUT", 2*time.Second),
			SiteCacheTTL:      getEnvAsDuration("SITE_CACHE_TTL", 5*time.Minute),
			SiteCacheSize:     getEnvAsInt("SITE_CACHE_SIZE", 1000),
			PostbackSecret:    getEnv("POSTBACK_SIGNING_SECRET", ""),
			PostbackRelayWait: getEnvAsDuration("POSTBACK_RELAY_TIMEOUT", 10*time.Second),
			CallbackSecret:    getEnv("CALLBACK_SIGNING_SECRET", ""),
		},
		Secrets: SecretsConfig{
			Backend:        getEnv("SECRETS_BACKEND", SecretsLocal),
			LocalPath:      getEnv("SECRETS_LOCAL_PATH", "./secrets"),
			VaultAddr:      getEnv("VAULT_ADDR", ""),
			VaultAuth:      getEnv("VAULT_AUTH_METHOD", "token"),
			VaultToken:     getEnv("VAULT_TOKEN", ""),
			VaultRoleID:    getEnv("VAULT_ROLE_ID", ""),
			VaultSecretID:  getEnv("VAULT_SECRET_ID", ""),
			VaultK8sRole:   getEnv("VAULT_K8S_ROLE", ""),
			VaultNamespace: getEnv("VAULT_NAMESPACE", ""),
			VaultMount:     getEnv("VAULT_MOUNT_PATH", "secret"),
			AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
			GCPProjectID:   getEnv("GCP_PROJECT_ID", ""),
			KeyPrefix:      getEnv("RESUME_KEY_PREFIX", "purchase-gateway/resume-keys/"),
			CurrentKeyID:   getEnv("RESUME_KEY_ID", ""),
		},
		Token: TokenConfig{
			CallbackBaseURL: strings.TrimRight(getEnv("CALLBACK_BASE_URL", "http://localhost:8080"), "/"),
			Issuer:          getEnv("RESUME_TOKEN_ISSUER", "purchase-gateway"),
			TTL:             getEnvAsDuration("RESUME_TOKEN_TTL", time.Hour),
		},
		Session: SessionConfig{
			TTL: getEnvAsDuration("SESSION_TTL", 30*time.Minute),
		},
		Features: FeatureConfig{
			UseCommonFraudService: getEnvAsBool("USE_COMMON_FRAUD_SERVICE", true),
			MGPGEnabled:           getEnvAsBool("MGPG_ENABLED", false),
		},
		Cascade: CascadeConfig{
			RulesPath: getEnv("CASCADE_RULES_PATH", ""),
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getEnvAsBool("LOG_DEVELOPMENT", false),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks combinations the service cannot start with
func (c *Config) Validate() error {
	if c.Secrets.CurrentKeyID == "" {
		return fmt.Errorf("RESUME_KEY_ID is required")
	}
	switch c.Secrets.Backend {
	case SecretsLocal:
	case SecretsVault:
		if c.Secrets.VaultAddr == "" {
			return fmt.Errorf("VAULT_ADDR is required for the vault secrets backend")
		}
	case SecretsAWS:
		if c.Secrets.AWSRegion == "" {
			return fmt.Errorf("AWS_REGION is required for the aws secrets backend")
		}
	case SecretsGCP:
		if c.Secrets.GCPProjectID == "" {
			return fmt.Errorf("GCP_PROJECT_ID is required for the gcp secrets backend")
		}
	default:
		return fmt.Errorf("unknown SECRETS_BACKEND %q", c.Secrets.Backend)
	}
	if c.Features.MGPGEnabled && c.Upstream.MGPGURL == "" {
		return fmt.Errorf("MGPG_URL is required when MGPG_ENABLED is set")
	}
	if c.IsProduction() && c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required in production")
	}
	if c.IsProduction() && c.Redis.Addr == "" {
		return fmt.Errorf("REDIS_ADDR is required in production")
	}
	if c.IsProduction() && c.Upstream.CallbackSecret == "" {
		return fmt.Errorf("CALLBACK_SIGNING_SECRET is required in production")
	}
	return nil
}

// LoadCascadeConfig reads the routing rules from path. An empty path yields
// the built-in defaults.
func LoadCascadeConfig(path string) (cascade.Config, error) {
	if path == "" {
		return cascade.DefaultConfig(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cascade.Config{}, fmt.Errorf("read cascade rules: %w", err)
	}

	var cfg cascade.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cascade.Config{}, fmt.Errorf("parse cascade rules: %w", err)
	}
	if len(cfg.Rules) == 0 {
		return cascade.Config{}, fmt.Errorf("cascade rules file %s has no rules", path)
	}
	for i, r := range cfg.Rules {
		if len(r.Billers) == 0 {
			return cascade.Config{}, fmt.Errorf("cascade rule %d has no billers", i)
		}
	}
	for biller, n := range cfg.MaxSubmits {
		if n <= 0 {
			return cascade.Config{}, fmt.Errorf("max submits for %s must be positive, got %d", biller, n)
		}
	}
	return cfg, nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
