package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_123")
	t.Setenv("SITE_URL", "https://surfspotter.example")
}

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	setRequired(t)
	t.Setenv("PORT", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, "eur", cfg.DefaultCurrency)
	assert.Equal(t, 1500, cfg.PlatformFeeBPS)
	assert.Equal(t, "CH", cfg.ConnectCountry)
	assert.Equal(t, "individual", cfg.ConnectBusinessType)
	assert.Equal(t, "register", cfg.UnknownSellerPolicy)
	assert.Equal(t, 15*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, int64(65536), cfg.WebhookMaxBodyBytes)
	assert.Equal(t, 72*time.Hour, cfg.WebhookDedupRetention)
	assert.Equal(t, "@hourly", cfg.PurgeSchedule)
	assert.Equal(t, BrokerRabbitMQ, cfg.EventBroker)
	assert.False(t, cfg.SeedDemoData)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins())
}

func TestLoadConfig_Overrides(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	setRequired(t)
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("PORT", "3000")
	t.Setenv("DEFAULT_CURRENCY", "CHF")
	t.Setenv("PLATFORM_FEE_BPS", "1000")
	t.Setenv("UNKNOWN_SELLER_POLICY", "Reject")
	t.Setenv("WEBHOOK_DEDUP_RETENTION", "24h")
	t.Setenv("EVENT_BROKER", "kafka")
	t.Setenv("SEED_DEMO_DATA", "true")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.ServerPort)
	assert.Equal(t, "chf", cfg.DefaultCurrency)
	assert.Equal(t, 1000, cfg.PlatformFeeBPS)
	assert.Equal(t, "reject", cfg.UnknownSellerPolicy)
	assert.Equal(t, 24*time.Hour, cfg.WebhookDedupRetention)
	assert.Equal(t, BrokerKafka, cfg.EventBroker)
	assert.True(t, cfg.SeedDemoData)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins())
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{name: "missing secret key", env: map[string]string{"STRIPE_SECRET_KEY": ""}, wantErr: "STRIPE_SECRET_KEY"},
		{name: "missing webhook secret", env: map[string]string{"STRIPE_WEBHOOK_SECRET": ""}, wantErr: "STRIPE_WEBHOOK_SECRET"},
		{name: "missing site url", env: map[string]string{"SITE_URL": ""}, wantErr: "SITE_URL"},
		{name: "fee above 100%", env: map[string]string{"PLATFORM_FEE_BPS": "10001"}, wantErr: "PLATFORM_FEE_BPS"},
		{name: "negative fee", env: map[string]string{"PLATFORM_FEE_BPS": "-1"}, wantErr: "PLATFORM_FEE_BPS"},
		{name: "unknown policy", env: map[string]string{"UNKNOWN_SELLER_POLICY": "maybe"}, wantErr: "UNKNOWN_SELLER_POLICY"},
		{name: "unknown broker", env: map[string]string{"EVENT_BROKER": "nats"}, wantErr: "EVENT_BROKER"},
		{name: "bad currency", env: map[string]string{"DEFAULT_CURRENCY": "euro"}, wantErr: "DEFAULT_CURRENCY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			t.Cleanup(viper.Reset)
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := LoadConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
