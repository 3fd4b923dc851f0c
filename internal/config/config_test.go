package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevin07696/purchase-gateway/internal/domain"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	t.Setenv("RESUME_KEY_ID", "k1")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, SecretsLocal, cfg.Secrets.Backend)
	assert.Equal(t, 30*time.Minute, cfg.Session.TTL)
	assert.Equal(t, time.Hour, cfg.Token.TTL)
	assert.True(t, cfg.Features.UseCommonFraudService)
	assert.False(t, cfg.Features.MGPGEnabled)
	assert.False(t, cfg.IsProduction())
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("RESUME_KEY_ID", "k2")
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("SESSION_TTL", "45m")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("CALLBACK_BASE_URL", "https://gateway.example.com/")
	t.Setenv("USE_COMMON_FRAUD_SERVICE", "false")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("UPSTREAM_TIMEOUT", "not-a-duration")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 45*time.Minute, cfg.Session.TTL)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "https://gateway.example.com", cfg.Token.CallbackBaseURL)
	assert.False(t, cfg.Features.UseCommonFraudService)
	assert.Equal(t, 2.5, cfg.Server.RateLimitRPS)
	assert.Equal(t, 2*time.Second, cfg.Upstream.Timeout, "unparseable values fall back to defaults")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:  ServerConfig{Environment: "development"},
			Secrets: SecretsConfig{Backend: SecretsLocal, CurrentKeyID: "k1"},
		}
	}

	tests := []struct {
		name      string
		mutate    func(c *Config)
		expectErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing_key_id", func(c *Config) { c.Secrets.CurrentKeyID = "" }, "RESUME_KEY_ID"},
		{"unknown_backend", func(c *Config) { c.Secrets.Backend = "azure" }, "unknown SECRETS_BACKEND"},
		{"vault_without_addr", func(c *Config) { c.Secrets.Backend = SecretsVault }, "VAULT_ADDR"},
		{"gcp_without_project", func(c *Config) { c.Secrets.Backend = SecretsGCP }, "GCP_PROJECT_ID"},
		{"mgpg_without_url", func(c *Config) { c.Features.MGPGEnabled = true }, "MGPG_URL"},
		{"production_without_database", func(c *Config) {
			c.Server.Environment = "production"
			c.Redis.Addr = "redis:6379"
		}, "DATABASE_URL"},
		{"production_without_redis", func(c *Config) {
			c.Server.Environment = "production"
			c.Database.URL = "postgres://db"
		}, "REDIS_ADDR"},
		{"production_without_callback_secret", func(c *Config) {
			c.Server.Environment = "production"
			c.Database.URL = "postgres://db"
			c.Redis.Addr = "redis:6379"
		}, "CALLBACK_SIGNING_SECRET"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.expectErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectErr)
		})
	}
}

func writeRules(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cascade.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadCascadeConfig(t *testing.T) {
	t.Run("empty_path_uses_defaults", func(t *testing.T) {
		cfg, err := LoadCascadeConfig("")
		require.NoError(t, err)
		assert.NotEmpty(t, cfg.Rules)
	})

	t.Run("reads_rules_and_budgets", func(t *testing.T) {
		path := writeRules(t, `
rules:
  - site_id: "*"
    country: US
    payment_type: cc
    billers: [rocketgate, netbilling]
max_submits:
  rocketgate: 3
force_tokens:
  qa-rg: rocketgate
`)
		cfg, err := LoadCascadeConfig(path)
		require.NoError(t, err)
		require.Len(t, cfg.Rules, 1)
		assert.Equal(t, "US", cfg.Rules[0].Country)
		assert.Equal(t, []string{domain.BillerRocketgate, domain.BillerNetbilling}, cfg.Rules[0].Billers)
		assert.Equal(t, 3, cfg.MaxSubmits[domain.BillerRocketgate])
		assert.Equal(t, domain.BillerRocketgate, cfg.ForceTokens["qa-rg"])
	})

	tests := []struct {
		name      string
		body      string
		expectErr string
	}{
		{"no_rules", "max_submits: {}\n", "no rules"},
		{"rule_without_billers", "rules:\n  - site_id: \"*\"\n", "no billers"},
		{"bad_budget", "rules:\n  - billers: [epoch]\nmax_submits:\n  epoch: 0\n", "must be positive"},
		{"malformed", "rules: [", "parse cascade rules"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadCascadeConfig(writeRules(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectErr)
		})
	}

	t.Run("missing_file", func(t *testing.T) {
		_, err := LoadCascadeConfig(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})
}
