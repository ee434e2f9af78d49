package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/redis/go-redis/v9"

	"quip-clash/internal/ai"
	"quip-clash/internal/config"
	"quip-clash/internal/db"
	"quip-clash/internal/server"
)

func main() {
	logger := slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: slog.LevelInfo, TimeFormat: time.Kitchen}))
	slog.SetDefault(logger)

	if err := config.LoadDotEnv(".env"); err != nil {
		logger.Warn("failed to load .env", "error", err)
	}
	cfg := config.Load()

	opts := server.Options{Logger: logger}
	if cfg.DatabaseURL != "" {
		conn, err := db.Open(cfg)
		if err != nil {
			logger.Error("database connection failed", "error", err)
			os.Exit(1)
		}
		opts.Store = server.NewGormStore(conn)
		logger.Info("using postgres store")
	} else {
		logger.Warn("DATABASE_URL not set, games are kept in memory")
	}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Error("redis connection failed", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		defer client.Close()
		opts.Notifier = server.NewRedisNotifier(client, logger)
		logger.Info("using redis change notifier", "addr", cfg.RedisAddr)
	}

	if cfg.OpenAIAPIKey != "" {
		client := ai.NewOpenAIClient(cfg, &http.Client{})
		opts.Answers = client
		opts.Judge = client
	} else {
		logger.Warn("OPENAI_API_KEY not set, AI players will forfeit")
	}

	srv := server.New(cfg, opts)
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("quip-clash server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	srv.Shutdown()
}
