package httpserver

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"ollama-openai-gateway/internal/handlers"
	"ollama-openai-gateway/internal/metrics"
	"ollama-openai-gateway/internal/middleware"
)

type Handlers struct {
	Chat        *handlers.ChatHandler
	Completions *handlers.CompletionHandler
	Models      *handlers.ModelsHandler
}

type Config struct {
	APIKey         string
	RequestTimeout time.Duration
	MaxBodyBytes   int64
}

func SetupRouter(r *chi.Mux, baseLogger *zap.Logger, cfg Config, h Handlers) {

	r.Use(metrics.Middleware)

	// base middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)

	r.Use(middleware.LoggingContext(baseLogger))
	r.Use(middleware.Recoverer())
	r.Use(middleware.MaxBodySize(cfg.MaxBodyBytes))

	// routes
	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.BearerAuth(cfg.APIKey))

		// streaming replies are bounded by the backend stream timeout instead
		r.Post("/chat/completions", h.Chat.ChatCompletion)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(cfg.RequestTimeout))
			r.Post("/completions", h.Completions.Completion)
			r.Get("/models", h.Models.List)
			r.Get("/models/{model}", h.Models.Get)
		})
	})

	r.Get("/health", handlers.Health)

	r.Handle("/metrics", metrics.Handler())
}
