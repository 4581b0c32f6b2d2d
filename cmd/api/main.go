package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/burdenmint/burdenmint/internal/api"
	"github.com/burdenmint/burdenmint/internal/auth"
	"github.com/burdenmint/burdenmint/internal/bot"
	"github.com/burdenmint/burdenmint/internal/certificate"
	"github.com/burdenmint/burdenmint/internal/config"
	"github.com/burdenmint/burdenmint/internal/database"
	"github.com/burdenmint/burdenmint/internal/filecache"
	"github.com/burdenmint/burdenmint/internal/generation"
	"github.com/burdenmint/burdenmint/internal/imagegen"
	"github.com/burdenmint/burdenmint/internal/middleware"
	"github.com/burdenmint/burdenmint/internal/mint"
	inats "github.com/burdenmint/burdenmint/internal/nats"
	"github.com/burdenmint/burdenmint/internal/payments"
	"github.com/burdenmint/burdenmint/internal/prompts"
	"github.com/burdenmint/burdenmint/internal/quota"
	iredis "github.com/burdenmint/burdenmint/internal/redis"
	"github.com/burdenmint/burdenmint/internal/server"
	ixmpp "github.com/burdenmint/burdenmint/internal/xmpp"
)

const serviceName = "burdenmint"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Quota store
	repo, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		slog.Error("opening quota store", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	// Redis
	redisClient, err := iredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Error("connecting to redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Remote image generation and prompts
	images := imagegen.NewClient(imagegen.Options{
		BaseURL:       cfg.ImageGen.BaseURL,
		APIKey:        cfg.ImageGen.APIKey,
		Engine:        cfg.ImageGen.Engine,
		Timeout:       cfg.ImageGen.Timeout,
		Width:         cfg.ImageGen.Width,
		Height:        cfg.ImageGen.Height,
		Steps:         cfg.ImageGen.Steps,
		CFGScale:      cfg.ImageGen.CFGScale,
		ImageStrength: cfg.ImageGen.ImageStrength,
	})
	selector := prompts.NewSelector(nil)

	// Quota
	var locker quota.Locker = quota.NewLocalLocker()
	if redisClient != nil {
		locker = quota.NewRedisLocker(redisClient)
	}
	quotaSvc := quota.NewService(repo, locker, cfg.Quota.DailyFree)
	genHandler := generation.NewHandler(quotaSvc, selector, images)

	handlers := api.HandlerSet{
		GenerateFree: genHandler.GenerateFree,
		GeneratePaid: genHandler.GeneratePaid,
		CheckLimit:   genHandler.CheckLimit,
	}
	checks := map[string]api.HealthCheck{
		"store": quotaSvc.Ping,
		"redis": nil,
	}
	if redisClient != nil {
		checks["redis"] = iredis.HealthCheck(redisClient)
	}

	// Chat front-end, payments and the certificate pipeline
	var background []func(context.Context) error
	if cfg.XMPP.Enabled {
		chat, err := setupChat(ctx, cfg, redisClient, images, selector)
		if err != nil {
			slog.Error("setting up chat front-end", "error", err)
			os.Exit(1)
		}
		defer chat.close()

		handlers.PaymentWebhook = chat.webhook.ServeHTTP
		handlers.BotSubmit = chat.submit
		handlers.ServeFile = chat.serveFile
		checks["nats"] = chat.natsCheck
		background = chat.workers
	}

	// Router
	routerCfg := api.RouterConfig{
		ServiceName:        serviceName,
		CORSAllowedOrigins: cfg.CORS.AllowedOrigins,
		Checks:             checks,
	}
	if redisClient != nil {
		trusted, err := middleware.ParseTrustedProxies(cfg.RateLimit.TrustedProxies)
		if err != nil {
			slog.Error("parsing trusted proxies", "error", err)
			os.Exit(1)
		}
		limiter := middleware.NewRateLimiter(redisClient, cfg.RateLimit.Requests, cfg.RateLimit.WindowSec, trusted)
		routerCfg.RateLimiter = limiter.Middleware
	}
	router := api.NewRouter(routerCfg, handlers)

	for _, run := range background {
		go func(run func(context.Context) error) {
			if err := run(ctx); err != nil {
				slog.Error("background worker stopped", "error", err)
				stop()
			}
		}(run)
	}

	// Start server
	srv := server.New(cfg.Server, router, cfg.ImageGen.Timeout)
	if err := srv.Start(ctx); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func openStore(ctx context.Context, cfg config.StoreConfig) (quota.Repository, func(), error) {
	switch cfg.Driver {
	case "postgres":
		if err := database.RunPostgresMigrations(cfg.DB.DSN()); err != nil {
			return nil, nil, err
		}
		pool, err := database.NewPostgresPool(ctx, cfg.DB)
		if err != nil {
			return nil, nil, err
		}
		return quota.NewPostgresRepository(pool), pool.Close, nil
	default:
		if err := database.RunSQLiteMigrations(cfg.SQLitePath); err != nil {
			return nil, nil, err
		}
		db, err := database.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return quota.NewSQLiteRepository(db), func() { db.Close() }, nil
	}
}

type chatStack struct {
	webhook   *payments.WebhookHandler
	submit    http.HandlerFunc
	serveFile http.HandlerFunc
	natsCheck api.HealthCheck
	workers   []func(context.Context) error
	closers   []func()
}

func (c *chatStack) close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

func setupChat(ctx context.Context, cfg *config.Config, rdb *goredis.Client, images imagegen.Generator, selector *prompts.Selector) (*chatStack, error) {
	stack := &chatStack{}

	provider, err := newPaymentProvider(cfg.Payments)
	if err != nil {
		return nil, err
	}

	var (
		dedupe payments.Deduper  = payments.NewMemoryDeduper()
		files  filecache.Store   = filecache.NewMemoryStore(cfg.Bot.FileTTL)
		photos bot.PhotoRegistry = bot.NewMemoryPhotoRegistry(24 * time.Hour)
	)
	if rdb != nil {
		dedupe = payments.NewRedisDeduper(rdb)
		files = filecache.NewRedisStore(rdb, cfg.Bot.FileTTL)
		photos = bot.NewRedisPhotoRegistry(rdb, 24*time.Hour)
	}
	stack.serveFile = filecache.Handler(files)

	botSvc := bot.NewService(bot.Options{
		Tokens:      auth.NewFormTokens(cfg.Bot.FormSecret, cfg.Bot.FormTTL),
		FormURL:     cfg.Bot.FormURL,
		Provider:    provider,
		Photos:      photos,
		Amount:      cfg.Payments.Amount,
		Description: cfg.Payments.Title,
	})

	// XMPP
	component, err := ixmpp.NewComponent(cfg.XMPP, ixmpp.NewHandler(botSvc))
	if err != nil {
		return nil, fmt.Errorf("creating XMPP component: %w", err)
	}
	stack.workers = append(stack.workers, component.Start)

	deliverer := ixmpp.NewDeliverer(component.Sender(), cfg.XMPP.ComponentName, files, cfg.Server.PublicURL)
	stack.submit = bot.NewHandler(botSvc, deliverer).Submit

	pipeline := mint.NewPipeline(mint.Options{
		Images:     images,
		Prompts:    selector,
		Compositor: certificate.NewCompositor(cfg.Bot.FontPath),
		Photos:     photos,
		Fetcher:    mint.NewPhotoFetcher(cfg.ImageGen.Timeout),
		Deliverer:  deliverer,
		Tier:       cfg.Bot.PaidTier,
		AudioPath:  cfg.Bot.AudioPath,
	})
	jobTimeout := 2*cfg.ImageGen.Timeout + time.Minute

	// NATS when configured, in-process otherwise
	var queue payments.Enqueuer
	if cfg.NATS.URL != "" {
		natsClient, err := inats.NewClient(ctx, cfg.NATS)
		if err != nil {
			return nil, err
		}
		stack.closers = append(stack.closers, natsClient.Close)
		stack.natsCheck = func(context.Context) error {
			if !natsClient.Healthy() {
				return errors.New("nats disconnected")
			}
			return nil
		}

		queue = mint.NewNATSQueue(inats.NewPublisher(natsClient.JetStream()))
		consumer := mint.NewConsumer(inats.NewConsumerManager(natsClient.JetStream()), pipeline, jobTimeout)
		stack.workers = append(stack.workers, consumer.Start)
	} else {
		inline := mint.NewInlineQueue(ctx, pipeline, jobTimeout)
		stack.closers = append(stack.closers, inline.Wait)
		queue = inline
	}

	stack.webhook = payments.NewWebhookHandler(provider, dedupe, queue)
	return stack, nil
}

func newPaymentProvider(cfg config.PaymentsConfig) (payments.Provider, error) {
	switch cfg.Provider {
	case "cryptopay":
		return payments.NewCryptoPay(payments.CryptoPayOptions{
			Token:   cfg.CryptoPayToken,
			BaseURL: cfg.CryptoPayBaseURL,
			Asset:   cfg.CryptoPayAsset,
		}), nil
	case "stripe":
		return payments.NewStripe(payments.StripeOptions{
			SecretKey:     cfg.StripeSecretKey,
			WebhookSecret: cfg.StripeWebhookSecret,
			Currency:      cfg.StripeCurrency,
			UnitAmount:    cfg.StripeUnitAmount,
			SuccessURL:    cfg.StripeSuccessURL,
		}), nil
	}
	return nil, fmt.Errorf("unknown payments provider %q", cfg.Provider)
}

func setupLogger(cfg config.LogConfig) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "info":
		opts.Level = slog.LevelInfo
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
