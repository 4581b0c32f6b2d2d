package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	mw "github.com/burdenmint/burdenmint/internal/middleware"
)

// HandlerSet holds handler functions injected from main.go to avoid import cycles.
type HandlerSet struct {
	// Generation handlers
	GenerateFree http.HandlerFunc
	GeneratePaid http.HandlerFunc
	CheckLimit   http.HandlerFunc

	// Chat front-end and payments
	PaymentWebhook http.HandlerFunc
	BotSubmit      http.HandlerFunc
	ServeFile      http.HandlerFunc
}

// HealthCheck reports an error when a dependency is unreachable.
type HealthCheck func(ctx context.Context) error

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	ServiceName        string
	CORSAllowedOrigins []string
	RateLimiter        func(http.Handler) http.Handler
	// Checks run by /api/health, keyed by dependency name. A nil check is reported as "not configured".
	Checks map[string]HealthCheck
}

type healthResponse struct {
	Status  string            `json:"status"`
	Service string            `json:"service"`
	Time    time.Time         `json:"time"`
	Checks  map[string]string `json:"checks"`
}

func NewRouter(cfg RouterConfig, h HandlerSet) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.SecurityHeaders)
	r.Use(mw.Logging)
	r.Use(mw.Recovery)
	r.Use(mw.Metrics)
	r.Use(cors.Handler(mw.CORS(cfg.CORSAllowedOrigins)))

	r.Get("/api/health", healthHandler(cfg))
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if cfg.RateLimiter != nil {
				r.Use(cfg.RateLimiter)
			}
			r.Post("/generate-free", h.GenerateFree)
			r.Post("/generate-paid", h.GeneratePaid)
			r.Post("/check-limit", h.CheckLimit)
			if h.BotSubmit != nil {
				r.Post("/bot/submit", h.BotSubmit)
			}
		})

		if h.PaymentWebhook != nil {
			r.Post("/payments/webhook", h.PaymentWebhook)
		}
		if h.ServeFile != nil {
			r.Get("/files/{fileID}", h.ServeFile)
		}
	})

	return r
}

func healthHandler(cfg RouterConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{
			Status:  "ok",
			Service: cfg.ServiceName,
			Time:    time.Now().UTC(),
			Checks:  make(map[string]string, len(cfg.Checks)),
		}
		status := http.StatusOK

		for name, check := range cfg.Checks {
			if check == nil {
				resp.Checks[name] = "not configured"
				continue
			}
			if err := check(ctx); err != nil {
				resp.Checks[name] = "unhealthy"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "healthy"
		}

		JSON(w, status, resp)
	}
}
