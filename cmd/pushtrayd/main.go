package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pushtray/pushtray/internal/api"
	"github.com/pushtray/pushtray/internal/config"
	"github.com/pushtray/pushtray/internal/conn"
	"github.com/pushtray/pushtray/internal/dispatch"
	"github.com/pushtray/pushtray/internal/metrics"
	"github.com/pushtray/pushtray/internal/store"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	// ---- configuration ----
	// Ignore errors - the .env file might not exist and that's ok
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	// ---- core dependencies ----
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	st := store.New(store.Config{Capacity: cfg.StoreCapacity})
	st.Subscribe(m.StoreObserver())

	disp := dispatch.New(st,
		rate.Limit(cfg.RateLimitPerSecond), cfg.RateLimitBurst,
		logger, m.DispatchHooks())

	// ---- push channel ----
	mgr := conn.New(conn.Config{
		URL:               cfg.PushURL,
		Token:             cfg.PushToken,
		HeartbeatInterval: cfg.HeartbeatInterval,
		BackoffBase:       cfg.BackoffBase,
		BackoffCap:        cfg.BackoffCap,
		DialTimeout:       cfg.DialTimeout,
	}, &conn.WSDialer{HandshakeTimeout: cfg.DialTimeout}, disp, logger, m.ConnHooks())
	mgr.Start()

	// ---- HTTP server ----
	router := api.NewRouter(st, mgr, disp, reg, logger)
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	// Start server in a goroutine so it does not block the shutdown listener.
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// ---- graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received")

	// 1. Stop accepting new HTTP requests so stream clients drain first.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// 2. Tear down the push channel; no further reconnects are scheduled.
	mgr.Close()

	logger.Info("server stopped cleanly")
}
