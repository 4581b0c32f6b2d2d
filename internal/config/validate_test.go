package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		Store:  StoreConfig{Driver: "sqlite", SQLitePath: "test.db"},
		Redis:  RedisConfig{Enabled: true, Host: "localhost", Port: 6379},
		ImageGen: ImageGenConfig{
			APIKey:  "sk-test",
			Timeout: 60 * time.Second,
		},
		Payments: PaymentsConfig{Provider: "cryptopay", CryptoPayToken: "12345:AAAA"},
		Bot: BotConfig{
			FormURL:    "https://mint.example.com/form",
			FormSecret: "form-secret-that-is-at-least-32-chars!",
			FontPath:   "assets/cinzel.ttf",
		},
		XMPP:  XMPPConfig{Enabled: true, ComponentSecret: "secret"},
		Quota: QuotaConfig{DailyFree: 2},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
}

func TestValidate_ImageGenKeyRequired(t *testing.T) {
	cfg := validConfig()
	cfg.ImageGen.APIKey = ""
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "IMAGEGEN_API_KEY") {
		t.Fatalf("expected IMAGEGEN_API_KEY error, got: %v", err)
	}
}

func TestValidate_UnknownStoreDriver(t *testing.T) {
	cfg := validConfig()
	cfg.Store.Driver = "mysql"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "STORE_DRIVER") {
		t.Fatalf("expected STORE_DRIVER error, got: %v", err)
	}
}

func TestValidate_PostgresNeedsPassword(t *testing.T) {
	cfg := validConfig()
	cfg.Store.Driver = "postgres"
	cfg.Store.DB = DBConfig{Host: "localhost", Port: 5432}
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "DB_PASSWORD") {
		t.Fatalf("expected DB_PASSWORD error, got: %v", err)
	}
}

func TestValidate_StripeNeedsSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.Payments = PaymentsConfig{Provider: "stripe"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected stripe validation errors")
	}
	for _, substr := range []string{"STRIPE_SECRET_KEY", "STRIPE_WEBHOOK_SECRET"} {
		if !strings.Contains(err.Error(), substr) {
			t.Errorf("expected %q in error: %v", substr, err)
		}
	}
}

func TestValidate_FormSecretTooShort(t *testing.T) {
	cfg := validConfig()
	cfg.Bot.FormSecret = "short"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "BOT_FORM_SECRET") {
		t.Fatalf("expected BOT_FORM_SECRET error, got: %v", err)
	}
}

func TestValidate_XMPPDisabledSkipsBotChecks(t *testing.T) {
	cfg := validConfig()
	cfg.XMPP.Enabled = false
	cfg.Bot.FormSecret = ""
	cfg.Bot.FormURL = ""
	cfg.Payments = PaymentsConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error with XMPP disabled, got: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := &Config{
		Server:   ServerConfig{Port: 0},
		Store:    StoreConfig{Driver: "sqlite"},
		Payments: PaymentsConfig{Provider: "cryptopay"},
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected multiple validation errors")
	}
	errStr := err.Error()
	for _, substr := range []string{"IMAGEGEN_API_KEY", "STORE_SQLITE_PATH", "QUOTA_DAILY_FREE", "CRYPTOPAY_TOKEN", "XMPP_COMPONENT_SECRET", "SERVER_PORT"} {
		if !strings.Contains(errStr, substr) {
			t.Errorf("expected %q in error: %s", substr, errStr)
		}
	}
}

func TestValidate_TrustedProxies(t *testing.T) {
	cfg := validConfig()
	cfg.RateLimit.TrustedProxies = []string{"10.0.0.0/8", "192.0.2.10"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	cfg.RateLimit.TrustedProxies = []string{"lb.internal"}
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "RATELIMIT_TRUSTED_PROXIES") {
		t.Fatalf("expected RATELIMIT_TRUSTED_PROXIES error, got: %v", err)
	}
}
