package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hive-corporation/soarbridge/internal/adapter/handler"
	"github.com/hive-corporation/soarbridge/internal/adapter/provider"
	"github.com/hive-corporation/soarbridge/internal/config"
	"github.com/hive-corporation/soarbridge/internal/core/catalog"
	"github.com/hive-corporation/soarbridge/internal/logs"
	"github.com/hive-corporation/soarbridge/internal/metrics"
)

func main() {
	configPath := flag.String("config", "", "Path to the YAML configuration (default $SOAR_CONFIG or soarbridge.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("❌ Failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := logs.ConsoleLogger(cfg.LogLevel)

	metrics.InitMetrics()
	logger.Info("✅ Prometheus metrics initialized")

	integrations := provider.FromConfig(cfg, provider.SharedTransport(cfg, logger))
	actions := catalog.New(integrations,
		catalog.WithTimeout(cfg.GetActionTimeout()),
		catalog.WithLogger(logger),
	)
	logger.Info("✅ Catalog ready", "integrations", len(integrations))

	// HTTP router
	router := mux.NewRouter()
	handler.NewRestHandler(actions, logger).Register(router)

	// Metrics endpoint (requires authentication)
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Middleware
	router.Use(loggingMiddleware(logger))
	router.Use(authMiddleware(cfg.APIToken, logger))

	// HTTP server
	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout(cfg.GetActionTimeout()),
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		logger.Info("🚀 soarbridge API listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("❌ Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("🛑 Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("❌ Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("✅ Server stopped gracefully")
}

// writeTimeout leaves room for the slowest action to answer. Actions without
// a bound, such as sandbox polling, get a generous default.
func writeTimeout(action time.Duration) time.Duration {
	if action <= 0 {
		return 15 * time.Minute
	}
	return action + 15*time.Second
}

func loggingMiddleware(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			logger.Debug("→ request", "method", r.Method, "path", r.URL.Path)
			next.ServeHTTP(w, r)
			logger.Info("← request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
		})
	}
}

func authMiddleware(expectedToken string, logger *slog.Logger) mux.MiddlewareFunc {
	if expectedToken == "" {
		logger.Warn("⚠️  Warning: SOAR_API_TOKEN not set - auth disabled")
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip auth for health check
			if r.URL.Path == "/api/v1/health" {
				next.ServeHTTP(w, r)
				return
			}

			// If no token configured, allow all requests (development mode)
			if expectedToken == "" {
				next.ServeHTTP(w, r)
				return
			}

			// Validate Bearer token
			if r.Header.Get("Authorization") != "Bearer "+expectedToken {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
