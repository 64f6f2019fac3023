package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ollama-openai-gateway/internal/backend"
	"ollama-openai-gateway/internal/cache"
	"ollama-openai-gateway/internal/handlers"
	"ollama-openai-gateway/internal/httpserver"
	"ollama-openai-gateway/internal/metrics"
	"ollama-openai-gateway/internal/translate"
	"ollama-openai-gateway/pkg/logging/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:           "gateway",
		Short:         "OpenAI-compatible gateway in front of an Ollama backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadEnvFile(envFile, cmd.Flags().Changed("env-file")); err != nil {
				return err
			}
			cfg, err := LoadConfig()
			if err != nil {
				return err
			}
			applyFlags(cmd, &cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&envFile, "env-file", ".env", "dotenv file merged into the environment")
	f.String("port", "", "listen port (PORT)")
	f.String("backend-url", "", "backend base URL (BACKEND_URL)")
	f.String("backend-model", "", "backend model name (BACKEND_MODEL)")
	f.String("model-name", "", "model id advertised to clients (MODEL_NAME)")
	f.String("cache-backend", "", "none, memory or redis (CACHE_BACKEND)")
	f.String("log-level", "", "log level (LOG_LEVEL)")

	return cmd
}

// applyFlags overrides cfg with every flag given on the command line.
func applyFlags(cmd *cobra.Command, cfg *Config) {
	set := func(name string, dst *string) {
		if cmd.Flags().Changed(name) {
			*dst, _ = cmd.Flags().GetString(name)
		}
	}
	set("port", &cfg.Port)
	set("backend-url", &cfg.BackendURL)
	set("backend-model", &cfg.BackendModel)
	set("model-name", &cfg.ModelName)
	set("cache-backend", &cfg.CacheBackend)
	set("log-level", &cfg.LogLevel)

	if cmd.Flags().Changed("backend-model") && !cmd.Flags().Changed("model-name") && os.Getenv("MODEL_NAME") == "" {
		cfg.ModelName = cfg.BackendModel
	}
}

func run(ctx context.Context, cfg Config) error {
	// ----- Logger -----
	logger, err := logging.Build(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	// ----- Metrics -----
	metrics.Register()

	logger.Info("loaded config",
		zap.String("port", cfg.Port),
		zap.String("backend_url", cfg.BackendURL),
		zap.String("backend_model", cfg.BackendModel),
		zap.String("model_name", cfg.ModelName),
		zap.String("cache_backend", cfg.CacheBackend),
		zap.String("version_id", cfg.VersionID),
		zap.Duration("backend_timeout", cfg.BackendTimeout),
		zap.Duration("backend_stream_timeout", cfg.BackendStreamTimeout),
	)

	// ----- Redis client (only if needed) -----
	var redisClient *redis.Client
	if cfg.CacheBackend == cache.BackendRedis {
		redisClient = redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
		})
		defer redisClient.Close()

		// Fail fast if Redis is misconfigured
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Error("redis connection failed", zap.Error(err))
			return err
		}
		logger.Info("redis connection established",
			zap.String("addr", cfg.RedisAddr),
		)
	}

	// ----- Cache (optional, temperature 0 only) -----
	var replyCache *cache.ReplyCache
	store, err := cache.NewExactCache(cache.Config{
		Backend:         cfg.CacheBackend,
		Prefix:          "ollama-gateway",
		CleanupInterval: cache.DefaultCleanupInterval,
	}, redisClient)
	if err != nil {
		return err
	}
	if store != nil {
		if closer, ok := store.(interface{ Close() error }); ok {
			defer closer.Close()
		}
		replyCache = cache.NewReplyCache(cache.NewLoggingExactCache(store), cfg.CacheTTL, cfg.VersionID)
	}

	// ----- Backend client -----
	backendClient, err := backend.NewClient(backend.Config{
		BaseURL:       cfg.BackendURL,
		Model:         cfg.BackendModel,
		Timeout:       cfg.BackendTimeout,
		StreamTimeout: cfg.BackendStreamTimeout,
	}, logger)
	if err != nil {
		return err
	}
	if closer, ok := backendClient.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	// ----- Handlers -----
	deps := handlers.Deps{
		Backend:      backendClient,
		Translator:   translate.New(cfg.ModelName),
		BackendModel: cfg.BackendModel,
		Cache:        replyCache,
	}

	// ----- Router + middleware -----
	r := chi.NewRouter()
	httpserver.SetupRouter(r, logger, httpserver.Config{
		APIKey:         cfg.APIKey,
		RequestTimeout: cfg.RequestTimeout,
		MaxBodyBytes:   cfg.MaxBodyBytes,
	}, httpserver.Handlers{
		Chat:        handlers.NewChatHandler(deps),
		Completions: handlers.NewCompletionHandler(deps),
		Models:      handlers.NewModelsHandler(cfg.ModelName, cfg.ModelOwnedBy, time.Now()),
	})

	// ----- HTTP server -----
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// streams may legitimately run for the whole backend stream timeout
		WriteTimeout: cfg.BackendStreamTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("starting gateway", zap.String("addr", srv.Addr))

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// ----- Graceful shutdown -----
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case err := <-serveErr:
		if err != nil {
			logger.Error("server error", zap.Error(err))
			return err
		}
		return nil
	case <-stop:
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		return err
	}

	logger.Info("server shutdown complete")
	return nil
}
