// Package config maps viper keys and environment variables onto the
// typed settings of the ingest pipeline.
package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/paynet/cnab/pkg/swap"
	"github.com/paynet/cnab/pkg/webhook"
)

// Config is the full runtime configuration.
type Config struct {
	DataDir string
	Swap    swap.Config
	Webhook webhook.Config
}

// Defaults applied when neither file nor environment sets a key.
func setDefaults(v *viper.Viper) {
	v.SetDefault("swap.timeout", "30s")
	v.SetDefault("swap.window_start", "07:00")
	v.SetDefault("swap.window_end", "23:00")
	v.SetDefault("swap.breaker_threshold", 5)
	v.SetDefault("swap.breaker_cooldown", "30s")
	v.SetDefault("webhook.retry_attempts", 3)
	v.SetDefault("webhook.retry_delay", "1s")
	v.SetDefault("webhook.timeout", "10s")
	v.SetDefault("webhook.source", "cnab-ingest")
	v.SetDefault("webhook.version", "1.0.0")
}

// envBindings maps config keys to the environment variables the
// deployment sets.
var envBindings = map[string]string{
	"swap.environment":       "SWAP_ENVIRONMENT",
	"swap.base_url":          "SWAP_BASE_URL",
	"swap.token_url":         "SWAP_TOKEN_URL",
	"swap.client_id":         "SWAP_CLIENT_ID",
	"swap.client_secret":     "SWAP_CLIENT_SECRET",
	"swap.api_key":           "SWAP_API_KEY",
	"swap.account_id":        "SWAP_ACCOUNT_ID",
	"swap.company_cnpj":      "COMPANY_CNPJ",
	"webhook.enabled":        "WEBHOOK_ENABLED",
	"webhook.url":            "WEBHOOK_URL",
	"webhook.cnab_url":       "WEBHOOK_CNAB_URL",
	"webhook.timeout":        "WEBHOOK_TIMEOUT",
	"webhook.retry_attempts": "WEBHOOK_RETRY_ATTEMPTS",
	"webhook.retry_delay":    "WEBHOOK_RETRY_DELAY",
}

// FromViper reads the typed configuration out of an initialized viper
// instance.
func FromViper(v *viper.Viper) Config {
	setDefaults(v)
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	return Config{
		DataDir: v.GetString("data_dir"),
		Swap: swap.Config{
			Environment:      v.GetString("swap.environment"),
			BaseURL:          v.GetString("swap.base_url"),
			TokenURL:         v.GetString("swap.token_url"),
			ClientID:         v.GetString("swap.client_id"),
			ClientSecret:     v.GetString("swap.client_secret"),
			APIKey:           v.GetString("swap.api_key"),
			CompanyCNPJ:      v.GetString("swap.company_cnpj"),
			AccountID:        v.GetString("swap.account_id"),
			WindowStart:      v.GetString("swap.window_start"),
			WindowEnd:        v.GetString("swap.window_end"),
			Timeout:          v.GetDuration("swap.timeout"),
			TokenSkew:        v.GetDuration("swap.token_skew"),
			BreakerThreshold: int32(v.GetInt("swap.breaker_threshold")),
			BreakerCooldown:  v.GetDuration("swap.breaker_cooldown"),
		},
		Webhook: webhook.Config{
			Enabled:       v.GetBool("webhook.enabled"),
			URL:           v.GetString("webhook.url"),
			CNABURL:       v.GetString("webhook.cnab_url"),
			RetryAttempts: v.GetInt("webhook.retry_attempts"),
			RetryDelay:    parseDelay(v.GetString("webhook.retry_delay")),
			Timeout:       v.GetDuration("webhook.timeout"),
			Source:        v.GetString("webhook.source"),
			Version:       v.GetString("webhook.version"),
		},
	}
}

// parseDelay accepts both Go durations ("500ms") and bare millisecond
// counts carried over from older deployments.
func parseDelay(s string) time.Duration {
	if s == "" {
		return 0
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	var ms int64
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		ms = ms*10 + int64(r-'0')
	}
	return time.Duration(ms) * time.Millisecond
}
