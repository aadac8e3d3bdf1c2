package controller

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/payflow/payments/internal/infrastructure/config"
	"github.com/payflow/payments/internal/infrastructure/observability"
	customMW "github.com/payflow/payments/internal/middleware"
	"github.com/payflow/payments/internal/service"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterDeps struct {
	ServiceName    string
	PaymentService *service.PaymentService
	HealthChecks   []HealthCheck
	Metrics        *observability.Metrics
	CORSConfig     config.CORSConfig
	Auth           config.AuthConfig
	RateLimit      config.RateLimitConfig
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing(deps.ServiceName))
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(customMW.SecurityHeaders())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSConfig.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: deps.CORSConfig.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.Metrics(deps.Metrics))

	healthH := NewHealthController(deps.HealthChecks...)
	paymentH := NewPaymentController(deps.PaymentService)

	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1/payments", func(r chi.Router) {
		if deps.Auth.Enabled {
			r.Use(customMW.RequireAuth(deps.Auth.JWTSecret))
		}
		if deps.RateLimit.RequestsPerMinute > 0 {
			r.Use(customMW.RateLimit(deps.RateLimit.RequestsPerMinute))
		}

		r.Post("/", paymentH.CreatePayment)
		r.Get("/{txnReference}", paymentH.GetPayment)
		r.Post("/{txnReference}/initiate", paymentH.InitiatePayment)
		r.Get("/{txnReference}/events", paymentH.GetEvents)
	})

	return r
}
