package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mentiq/dashboard-api/internal/api"
	"github.com/mentiq/dashboard-api/internal/backend"
	"github.com/mentiq/dashboard-api/internal/billing"
	"github.com/mentiq/dashboard-api/internal/events"
	"github.com/mentiq/dashboard-api/internal/healthscore"
	"github.com/mentiq/dashboard-api/internal/mailchimp"
	"github.com/mentiq/dashboard-api/internal/retention"
)

// Config represents the overall application configuration.
type Config struct {
	API       api.GatewayConfig     `yaml:"api"`
	Auth      AuthConfig            `yaml:"auth"`
	Backend   backend.Config        `yaml:"backend"`
	Stripe    billing.Config        `yaml:"stripe"`
	Mailchimp mailchimp.Config      `yaml:"mailchimp"`
	Redis     mailchimp.RedisConfig `yaml:"redis"`
	Kafka     events.Config         `yaml:"kafka"`
	OpenAI    retention.Config      `yaml:"openai"`
	Score     healthscore.Config    `yaml:"score"`
}

// AuthConfig configures session token verification. Sessions are issued by
// the external auth provider; only the shared secret lives here.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

// Load reads configuration from an optional YAML file and applies
// environment overrides for secrets and connection endpoints.
func Load(path string) (*Config, error) {
	cfg := &Config{
		API:   api.DefaultGatewayConfig(),
		Score: healthscore.DefaultConfig(),
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides lets deployment environments inject secrets without a
// config file.
func applyEnvOverrides(cfg *Config) {
	setFromEnv(&cfg.Auth.JWTSecret, "AUTH_JWT_SECRET")
	setFromEnv(&cfg.Auth.Issuer, "AUTH_ISSUER")
	setFromEnv(&cfg.Backend.BaseURL, "BACKEND_BASE_URL")
	setFromEnv(&cfg.Backend.SigningSecret, "BACKEND_SIGNING_SECRET")
	setFromEnv(&cfg.Stripe.SecretKey, "STRIPE_SECRET_KEY")
	setFromEnv(&cfg.Stripe.WebhookSecret, "STRIPE_WEBHOOK_SECRET")
	setFromEnv(&cfg.Mailchimp.ClientID, "MAILCHIMP_CLIENT_ID")
	setFromEnv(&cfg.Mailchimp.ClientSecret, "MAILCHIMP_CLIENT_SECRET")
	setFromEnv(&cfg.Mailchimp.RedirectURL, "MAILCHIMP_REDIRECT_URL")
	setFromEnv(&cfg.Redis.Addr, "REDIS_ADDR")
	setFromEnv(&cfg.Redis.Password, "REDIS_PASSWORD")
	setFromEnv(&cfg.OpenAI.APIKey, "OPENAI_API_KEY")
	setFromEnv(&cfg.Kafka.Topic, "KAFKA_TOPIC")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = splitAndTrim(brokers)
	}
}

func setFromEnv(target *string, key string) {
	if value := os.Getenv(key); value != "" {
		*target = value
	}
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
