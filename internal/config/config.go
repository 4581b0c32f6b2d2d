package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Redis     RedisConfig
	NATS      NATSConfig
	ImageGen  ImageGenConfig
	Payments  PaymentsConfig
	Bot       BotConfig
	XMPP      XMPPConfig
	Quota     QuotaConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host      string
	Port      int
	PublicURL string
}

// StoreConfig selects where quota records live. SQLite is the default embedded store.
type StoreConfig struct {
	Driver     string
	SQLitePath string
	DB         DBConfig
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type NATSConfig struct {
	URL string
}

type ImageGenConfig struct {
	BaseURL       string
	APIKey        string
	Engine        string
	Timeout       time.Duration
	Width         int
	Height        int
	Steps         int
	CFGScale      float64
	ImageStrength float64
}

type PaymentsConfig struct {
	Provider string
	Amount   string
	Title    string

	CryptoPayToken   string
	CryptoPayBaseURL string
	CryptoPayAsset   string

	StripeSecretKey     string
	StripeWebhookSecret string
	StripeCurrency      string
	StripeUnitAmount    int64
	StripeSuccessURL    string
}

type BotConfig struct {
	FormURL    string
	FormSecret string
	FormTTL    time.Duration
	PaidTier   string
	AudioPath  string
	FontPath   string
	FileTTL    time.Duration
}

type XMPPConfig struct {
	Enabled         bool
	ComponentHost   string
	ComponentPort   int
	ComponentName   string
	ComponentSecret string
}

func (c XMPPConfig) ComponentAddr() string {
	return fmt.Sprintf("%s:%d", c.ComponentHost, c.ComponentPort)
}

type QuotaConfig struct {
	DailyFree int
}

type RateLimitConfig struct {
	Requests  int
	WindowSec int
	// TrustedProxies lists the CIDRs whose X-Forwarded-For header is honoured.
	TrustedProxies []string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Load .env file if it exists (ignore error if missing)
	_ = k.Load(file.Provider(".env"), dotenv.Parser())

	// Load environment variables (override .env)
	err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "_", "."))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:      k.String("server.host"),
			Port:      k.Int("server.port"),
			PublicURL: k.String("server.public.url"),
		},
		Store: StoreConfig{
			Driver:     k.String("store.driver"),
			SQLitePath: k.String("store.sqlite.path"),
			DB: DBConfig{
				Host:     k.String("db.host"),
				Port:     k.Int("db.port"),
				User:     k.String("db.user"),
				Password: k.String("db.password"),
				Name:     k.String("db.name"),
				SSLMode:  k.String("db.sslmode"),
				MaxConns: int32(k.Int("db.max.conns")),
			},
		},
		Redis: RedisConfig{
			Enabled:  k.Bool("redis.enabled"),
			Host:     k.String("redis.host"),
			Port:     k.Int("redis.port"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		NATS: NATSConfig{
			URL: k.String("nats.url"),
		},
		ImageGen: ImageGenConfig{
			BaseURL:       k.String("imagegen.base.url"),
			APIKey:        k.String("imagegen.api.key"),
			Engine:        k.String("imagegen.engine"),
			Width:         k.Int("imagegen.width"),
			Height:        k.Int("imagegen.height"),
			Steps:         k.Int("imagegen.steps"),
			CFGScale:      k.Float64("imagegen.cfg.scale"),
			ImageStrength: k.Float64("imagegen.image.strength"),
		},
		Payments: PaymentsConfig{
			Provider:            k.String("payments.provider"),
			Amount:              k.String("payments.amount"),
			Title:               k.String("payments.title"),
			CryptoPayToken:      k.String("cryptopay.token"),
			CryptoPayBaseURL:    k.String("cryptopay.base.url"),
			CryptoPayAsset:      k.String("cryptopay.asset"),
			StripeSecretKey:     k.String("stripe.secret.key"),
			StripeWebhookSecret: k.String("stripe.webhook.secret"),
			StripeCurrency:      k.String("stripe.currency"),
			StripeUnitAmount:    k.Int64("stripe.unit.amount"),
			StripeSuccessURL:    k.String("stripe.success.url"),
		},
		Bot: BotConfig{
			FormURL:    k.String("bot.form.url"),
			FormSecret: k.String("bot.form.secret"),
			PaidTier:   k.String("bot.paid.tier"),
			AudioPath:  k.String("bot.audio.path"),
			FontPath:   k.String("bot.font.path"),
		},
		XMPP: XMPPConfig{
			Enabled:         k.Bool("xmpp.enabled"),
			ComponentHost:   k.String("xmpp.component.host"),
			ComponentPort:   k.Int("xmpp.component.port"),
			ComponentName:   k.String("xmpp.component.name"),
			ComponentSecret: k.String("xmpp.component.secret"),
		},
		Quota: QuotaConfig{
			DailyFree: k.Int("quota.daily.free"),
		},
		RateLimit: RateLimitConfig{
			Requests:  k.Int("ratelimit.requests"),
			WindowSec: k.Int("ratelimit.window.sec"),
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
	}

	if origins := k.String("cors.allowed.origins"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORS.AllowedOrigins = append(cfg.CORS.AllowedOrigins, o)
			}
		}
	}

	if proxies := k.String("ratelimit.trusted.proxies"); proxies != "" {
		for _, p := range strings.Split(proxies, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.RateLimit.TrustedProxies = append(cfg.RateLimit.TrustedProxies, p)
			}
		}
	}

	applyDefaults(cfg)

	// Parse durations
	cfg.ImageGen.Timeout, err = parseDuration(k.String("imagegen.timeout"), "60s")
	if err != nil {
		return nil, fmt.Errorf("parsing imagegen timeout: %w", err)
	}
	cfg.Bot.FormTTL, err = parseDuration(k.String("bot.form.ttl"), "1h")
	if err != nil {
		return nil, fmt.Errorf("parsing bot form ttl: %w", err)
	}
	cfg.Bot.FileTTL, err = parseDuration(k.String("bot.file.ttl"), "24h")
	if err != nil {
		return nil, fmt.Errorf("parsing bot file ttl: %w", err)
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.PublicURL == "" {
		cfg.Server.PublicURL = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "sqlite"
	}
	if cfg.Store.SQLitePath == "" {
		cfg.Store.SQLitePath = "burdenmint.db"
	}
	if cfg.Store.DB.Host == "" {
		cfg.Store.DB.Host = "localhost"
	}
	if cfg.Store.DB.Port == 0 {
		cfg.Store.DB.Port = 5432
	}
	if cfg.Store.DB.User == "" {
		cfg.Store.DB.User = "burdenmint"
	}
	if cfg.Store.DB.Name == "" {
		cfg.Store.DB.Name = "burdenmint"
	}
	if cfg.Store.DB.SSLMode == "" {
		cfg.Store.DB.SSLMode = "disable"
	}
	if cfg.Store.DB.MaxConns == 0 {
		cfg.Store.DB.MaxConns = 10
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.ImageGen.BaseURL == "" {
		cfg.ImageGen.BaseURL = "https://api.stability.ai"
	}
	if cfg.ImageGen.Engine == "" {
		cfg.ImageGen.Engine = "stable-diffusion-xl-1024-v1-0"
	}
	if cfg.ImageGen.Width == 0 {
		cfg.ImageGen.Width = 1024
	}
	if cfg.ImageGen.Height == 0 {
		cfg.ImageGen.Height = 1024
	}
	if cfg.ImageGen.Steps == 0 {
		cfg.ImageGen.Steps = 30
	}
	if cfg.ImageGen.CFGScale == 0 {
		cfg.ImageGen.CFGScale = 7
	}
	if cfg.ImageGen.ImageStrength == 0 {
		cfg.ImageGen.ImageStrength = 0.35
	}
	if cfg.Payments.Provider == "" {
		cfg.Payments.Provider = "cryptopay"
	}
	if cfg.Payments.Amount == "" {
		cfg.Payments.Amount = "1"
	}
	if cfg.Payments.Title == "" {
		cfg.Payments.Title = "Certificate of Release"
	}
	if cfg.Payments.CryptoPayBaseURL == "" {
		cfg.Payments.CryptoPayBaseURL = "https://pay.crypt.bot/api"
	}
	if cfg.Payments.CryptoPayAsset == "" {
		cfg.Payments.CryptoPayAsset = "USDT"
	}
	if cfg.Payments.StripeCurrency == "" {
		cfg.Payments.StripeCurrency = "usd"
	}
	if cfg.Payments.StripeUnitAmount == 0 {
		cfg.Payments.StripeUnitAmount = 100
	}
	if cfg.Bot.PaidTier == "" {
		cfg.Bot.PaidTier = "legendary"
	}
	if cfg.XMPP.ComponentHost == "" {
		cfg.XMPP.ComponentHost = "localhost"
	}
	if cfg.XMPP.ComponentPort == 0 {
		cfg.XMPP.ComponentPort = 5275
	}
	if cfg.XMPP.ComponentName == "" {
		cfg.XMPP.ComponentName = "mint.localhost"
	}
	if cfg.Quota.DailyFree == 0 {
		cfg.Quota.DailyFree = 2
	}
	if cfg.RateLimit.Requests == 0 {
		cfg.RateLimit.Requests = 30
	}
	if cfg.RateLimit.WindowSec == 0 {
		cfg.RateLimit.WindowSec = 60
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

func parseDuration(raw, fallback string) (time.Duration, error) {
	if raw == "" {
		raw = fallback
	}
	return time.ParseDuration(raw)
}
