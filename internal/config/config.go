/**
 * @description
 * Configuration management for the payments service. Values come from the
 * environment (a local .env is loaded by main before LoadConfig runs).
 */
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Event broker selections.
const (
	BrokerRabbitMQ = "rabbitmq"
	BrokerKafka    = "kafka"
	BrokerNone     = "none"
)

// Config holds all configuration for the application.
type Config struct {
	ServerPort string `mapstructure:"SERVER_PORT"`
	LogLevel   string `mapstructure:"LOG_LEVEL"`

	StripeSecretKey     string        `mapstructure:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string        `mapstructure:"STRIPE_WEBHOOK_SECRET"`
	StripeAPIURL        string        `mapstructure:"STRIPE_API_URL"`
	ProviderTimeout     time.Duration `mapstructure:"PROVIDER_TIMEOUT"`

	SiteURL             string `mapstructure:"SITE_URL"`
	DefaultCurrency     string `mapstructure:"DEFAULT_CURRENCY"`
	PlatformFeeBPS      int    `mapstructure:"PLATFORM_FEE_BPS"`
	ConnectCountry      string `mapstructure:"CONNECT_COUNTRY"`
	ConnectBusinessType string `mapstructure:"CONNECT_BUSINESS_TYPE"`
	UnknownSellerPolicy string `mapstructure:"UNKNOWN_SELLER_POLICY"`

	WebhookMaxBodyBytes   int64         `mapstructure:"WEBHOOK_MAX_BODY_BYTES"`
	WebhookDedupRetention time.Duration `mapstructure:"WEBHOOK_DEDUP_RETENTION"`
	WebhookTolerance      time.Duration `mapstructure:"WEBHOOK_TOLERANCE"`
	PurgeSchedule         string        `mapstructure:"PURGE_SCHEDULE"`

	DatabaseURL      string `mapstructure:"DATABASE_URL"`
	RedisURL         string `mapstructure:"REDIS_URL"`
	EventBroker      string `mapstructure:"EVENT_BROKER"`
	RabbitMQURL      string `mapstructure:"RABBITMQ_URL"`
	KafkaBrokers     string `mapstructure:"KAFKA_BROKERS"`
	EventTopicPrefix string `mapstructure:"EVENT_TOPIC_PREFIX"`

	InternalAPIKey     string `mapstructure:"INTERNAL_API_KEY"`
	CORSAllowedOrigins string `mapstructure:"CORS_ALLOWED_ORIGINS"`
	SeedDemoData       bool   `mapstructure:"SEED_DEMO_DATA"`
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS on commas.
func (c Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

var keys = []string{
	"SERVER_PORT", "PORT", "LOG_LEVEL",
	"STRIPE_SECRET_KEY", "STRIPE_WEBHOOK_SECRET", "STRIPE_API_URL", "PROVIDER_TIMEOUT",
	"SITE_URL", "DEFAULT_CURRENCY", "PLATFORM_FEE_BPS", "CONNECT_COUNTRY", "CONNECT_BUSINESS_TYPE", "UNKNOWN_SELLER_POLICY",
	"WEBHOOK_MAX_BODY_BYTES", "WEBHOOK_DEDUP_RETENTION", "WEBHOOK_TOLERANCE", "PURGE_SCHEDULE",
	"DATABASE_URL", "REDIS_URL", "EVENT_BROKER", "RABBITMQ_URL", "KAFKA_BROKERS", "EVENT_TOPIC_PREFIX",
	"INTERNAL_API_KEY", "CORS_ALLOWED_ORIGINS", "SEED_DEMO_DATA",
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (config Config, err error) {
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("PROVIDER_TIMEOUT", "15s")
	viper.SetDefault("DEFAULT_CURRENCY", "eur")
	viper.SetDefault("PLATFORM_FEE_BPS", 1500)
	viper.SetDefault("CONNECT_COUNTRY", "CH")
	viper.SetDefault("CONNECT_BUSINESS_TYPE", "individual")
	viper.SetDefault("UNKNOWN_SELLER_POLICY", "register")
	viper.SetDefault("WEBHOOK_MAX_BODY_BYTES", 65536)
	viper.SetDefault("WEBHOOK_DEDUP_RETENTION", "72h")
	viper.SetDefault("WEBHOOK_TOLERANCE", "5m")
	viper.SetDefault("PURGE_SCHEDULE", "@hourly")
	viper.SetDefault("EVENT_BROKER", BrokerRabbitMQ)
	viper.SetDefault("EVENT_TOPIC_PREFIX", "surfspotter")
	viper.SetDefault("SEED_DEMO_DATA", false)
	viper.AutomaticEnv()

	for _, key := range keys {
		_ = viper.BindEnv(key)
	}

	if err = viper.Unmarshal(&config); err != nil {
		return config, err
	}
	if port := os.Getenv("PORT"); port != "" {
		config.ServerPort = port
	}
	config.DefaultCurrency = strings.ToLower(strings.TrimSpace(config.DefaultCurrency))
	config.EventBroker = strings.ToLower(strings.TrimSpace(config.EventBroker))
	config.UnknownSellerPolicy = strings.ToLower(strings.TrimSpace(config.UnknownSellerPolicy))

	err = config.validate()
	return
}

func (c Config) validate() error {
	for key, value := range map[string]string{
		"STRIPE_SECRET_KEY":     c.StripeSecretKey,
		"STRIPE_WEBHOOK_SECRET": c.StripeWebhookSecret,
		"SITE_URL":              c.SiteURL,
	} {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%s is required", key)
		}
	}
	if c.PlatformFeeBPS < 0 || c.PlatformFeeBPS > 10000 {
		return fmt.Errorf("PLATFORM_FEE_BPS must be between 0 and 10000, got %d", c.PlatformFeeBPS)
	}
	if len(c.DefaultCurrency) != 3 {
		return fmt.Errorf("DEFAULT_CURRENCY must be a 3-letter ISO code, got %q", c.DefaultCurrency)
	}
	switch c.UnknownSellerPolicy {
	case "register", "reject":
	default:
		return fmt.Errorf("UNKNOWN_SELLER_POLICY must be register or reject, got %q", c.UnknownSellerPolicy)
	}
	switch c.EventBroker {
	case BrokerRabbitMQ, BrokerKafka, BrokerNone:
	default:
		return fmt.Errorf("EVENT_BROKER must be rabbitmq, kafka or none, got %q", c.EventBroker)
	}
	if c.WebhookMaxBodyBytes <= 0 {
		return fmt.Errorf("WEBHOOK_MAX_BODY_BYTES must be positive")
	}
	return nil
}
