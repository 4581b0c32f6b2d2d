package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"strings"
)

// Validate checks Config for production-critical problems.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	// Remote image generation
	if c.ImageGen.APIKey == "" {
		errs = append(errs, "IMAGEGEN_API_KEY is required")
	}
	if c.ImageGen.Timeout <= 0 {
		errs = append(errs, "IMAGEGEN_TIMEOUT must be positive")
	}

	// Quota store
	switch c.Store.Driver {
	case "sqlite":
		if c.Store.SQLitePath == "" {
			errs = append(errs, "STORE_SQLITE_PATH is required for the sqlite driver")
		}
	case "postgres":
		if c.Store.DB.Password == "" {
			errs = append(errs, "DB_PASSWORD is required for the postgres driver")
		}
		if c.Store.DB.Port < 1 || c.Store.DB.Port > 65535 {
			errs = append(errs, fmt.Sprintf("DB_PORT must be 1–65535, got %d", c.Store.DB.Port))
		}
	default:
		errs = append(errs, fmt.Sprintf("STORE_DRIVER must be sqlite or postgres, got %q", c.Store.Driver))
	}

	if c.Quota.DailyFree < 1 {
		errs = append(errs, "QUOTA_DAILY_FREE must be at least 1")
	}

	// Chat front-end and payments
	if c.XMPP.Enabled {
		if c.XMPP.ComponentSecret == "" {
			errs = append(errs, "XMPP_COMPONENT_SECRET is required when XMPP is enabled")
		}
		if len(c.Bot.FormSecret) < 32 {
			errs = append(errs, "BOT_FORM_SECRET must be at least 32 characters")
		}
		if c.Bot.FormURL == "" {
			errs = append(errs, "BOT_FORM_URL is required when XMPP is enabled")
		}

		// Payments
		switch c.Payments.Provider {
		case "cryptopay":
			if c.Payments.CryptoPayToken == "" {
				errs = append(errs, "CRYPTOPAY_TOKEN is required for the cryptopay provider")
			}
		case "stripe":
			if c.Payments.StripeSecretKey == "" {
				errs = append(errs, "STRIPE_SECRET_KEY is required for the stripe provider")
			}
			if c.Payments.StripeWebhookSecret == "" {
				errs = append(errs, "STRIPE_WEBHOOK_SECRET is required for the stripe provider")
			}
		default:
			errs = append(errs, fmt.Sprintf("PAYMENTS_PROVIDER must be cryptopay or stripe, got %q", c.Payments.Provider))
		}
	}

	// Port ranges
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be 1–65535, got %d", c.Server.Port))
	}
	if c.Redis.Enabled && (c.Redis.Port < 1 || c.Redis.Port > 65535) {
		errs = append(errs, fmt.Sprintf("REDIS_PORT must be 1–65535, got %d", c.Redis.Port))
	}

	for _, p := range c.RateLimit.TrustedProxies {
		if _, err := netip.ParsePrefix(p); err == nil {
			continue
		}
		if _, err := netip.ParseAddr(p); err != nil {
			errs = append(errs, fmt.Sprintf("RATELIMIT_TRUSTED_PROXIES entry %q is not a CIDR or IP address", p))
		}
	}

	// Optional assets: warn only
	if c.Bot.FontPath == "" {
		slog.Warn("BOT_FONT_PATH is empty, certificates use the built-in font")
	}
	if !c.Redis.Enabled {
		slog.Warn("Redis disabled: quota locking is process-local and webhooks are not deduplicated")
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}
