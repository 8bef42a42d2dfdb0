package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/docqa-labs/retriever/internal/config"
	dbRedis "github.com/docqa-labs/retriever/internal/db/redis"
	logpkg "github.com/docqa-labs/retriever/internal/logger"
	"github.com/docqa-labs/retriever/internal/metrics"
	indexrepo "github.com/docqa-labs/retriever/internal/repository/index"
	"github.com/docqa-labs/retriever/internal/repository/resultcache"
	chiTransport "github.com/docqa-labs/retriever/internal/transport/chi"
	openaiEmb "github.com/docqa-labs/retriever/internal/transport/openai"
	healthuc "github.com/docqa-labs/retriever/internal/usecase/health"
	searchuc "github.com/docqa-labs/retriever/internal/usecase/search"
	"github.com/docqa-labs/retriever/internal/version"
	"github.com/docqa-labs/retriever/internal/workerpool"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting retriever API server",
		zap.String("build", version.String()),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create store", zap.Error(err))
	}
	defer store.Close()

	// Wait for storage to be ready
	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Storage not ready", zap.Error(err))
	}
	logger.Info("Connected to storage")

	// Register domain metrics explicitly (no init())
	if !cfg.Metrics.Disabled {
		metrics.RegisterSearchMetrics()
	}

	embedder := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   cfg.Embedding.Provider,
		Logger:     logger,
	})
	logger.Info("Embedder created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	// Repositories over the shared store
	textIndex := indexrepo.New(store, cfg.Storage.KeyPrefix, cfg.Index.Text)
	imageIndex := indexrepo.New(store, cfg.Storage.KeyPrefix, cfg.Index.Image)
	cacheRepo := resultcache.New(store, cfg.Storage.KeyPrefix, metrics.ResultCacheTotal, logger)

	// Shared worker pool for branch lookups
	pool := workerpool.New(cfg.Search.WorkerPoolSize, logger)
	logger.Info("Worker pool created", zap.Int("size", pool.Size()))

	searchCfg := searchuc.Config{
		MinScore:          cfg.Search.MinScore,
		DefaultMaxResults: cfg.Search.DefaultMaxResults,
		MaxResults:        cfg.Search.MaxResults,
		MaxQueryLength:    cfg.Search.MaxQueryLength,
		Timeout:           cfg.Search.Timeout(),
		MaxRetries:        cfg.Search.MaxRetries,
		BaseRetryDelay:    cfg.Search.BaseRetryDelay(),
		CacheTTL:          cfg.Search.CacheTTL(),
	}

	retriever := searchuc.NewParallelRetriever(pool, textIndex, imageIndex, searchCfg, logger)
	searchSvc := searchuc.New(
		retriever, embedder, cacheRepo,
		searchCfg, cfg.Storage.KeyPrefix, cfg.Search.Version(), logger,
	)

	healthSvc := healthuc.New(store, embedder)

	server := chiTransport.NewServer(searchSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	if !cfg.Metrics.Disabled {
		r.Use(metrics.Middleware())
	}
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	// Drain in-flight branch lookups after the listener stops.
	if abandoned := pool.Shutdown(cfg.Search.Timeout()); abandoned > 0 {
		logger.Warn("Worker pool drained with tasks abandoned", zap.Int("abandoned", abandoned))
	}

	logger.Info("Server stopped gracefully")
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
