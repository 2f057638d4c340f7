package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate performs validation of the configuration before startup.
func (c *Config) Validate() error {
	if err := c.validateAPI(); err != nil {
		return fmt.Errorf("api config error: %v", err)
	}
	if err := c.validateAuth(); err != nil {
		return fmt.Errorf("auth config error: %v", err)
	}
	if err := c.validateBackend(); err != nil {
		return fmt.Errorf("backend config error: %v", err)
	}
	if err := c.validateScore(); err != nil {
		return fmt.Errorf("score config error: %v", err)
	}
	if err := c.validateKafka(); err != nil {
		return fmt.Errorf("kafka config error: %v", err)
	}
	return nil
}

func (c *Config) validateAPI() error {
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	return nil
}

func (c *Config) validateAuth() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("jwt_secret is required")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("jwt_secret must be at least 16 characters")
	}
	return nil
}

func (c *Config) validateBackend() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	parsed, err := url.Parse(c.Backend.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base_url: %v", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("base_url must be http or https")
	}
	if c.Backend.SigningSecret == "" {
		return fmt.Errorf("signing_secret is required")
	}
	return nil
}

func (c *Config) validateScore() error {
	if c.Score.EngagementWeight < 0 || c.Score.AdoptionWeight < 0 || c.Score.ChurnRiskWeight < 0 {
		return fmt.Errorf("component weights must not be negative")
	}
	if c.Score.CriticalThreshold >= c.Score.HealthyThreshold {
		return fmt.Errorf("critical_threshold must be below healthy_threshold")
	}
	if c.Score.HealthyThreshold > 100 {
		return fmt.Errorf("healthy_threshold must not exceed 100")
	}
	return nil
}

func (c *Config) validateKafka() error {
	// Kafka is optional; validate only when brokers are configured.
	for _, broker := range c.Kafka.Brokers {
		if !strings.Contains(broker, ":") {
			return fmt.Errorf("invalid broker format: %s (expected host:port)", broker)
		}
	}
	return nil
}
