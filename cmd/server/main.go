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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/koopa0/typing-race/internal"
	"github.com/koopa0/typing-race/internal/migrations"
)

func main() {
	// 載入配置
	config, err := internal.LoadConfig("config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 設定日誌
	var logger *slog.Logger
	if config.Log.Format == "json" {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: parseLogLevel(config.Log.Level),
		}))
	} else {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: parseLogLevel(config.Log.Level),
		}))
	}
	slog.SetDefault(logger)

	// 連接 PostgreSQL
	// 使用 pgxpool 而非單一連線
	ctx := context.Background()

	pgConfig, err := pgxpool.ParseConfig(config.PostgresURL())
	if err != nil {
		logger.Error("failed to parse postgres config", "error", err)
		os.Exit(1)
	}

	pgConfig.MaxConns = config.Postgres.MaxConns
	pgConfig.MinConns = config.Postgres.MinConns

	pgPool, err := pgxpool.NewWithConfig(ctx, pgConfig)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	if err := pgPool.Ping(ctx); err != nil {
		logger.Error("failed to ping postgres", "error", err)
		os.Exit(1)
	}

	// 執行資料庫遷移
	migrator, err := migrations.New(config.PostgresURL(), logger)
	if err != nil {
		logger.Error("failed to create migrator", "error", err)
		os.Exit(1)
	}
	if err := migrator.Up(); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	if err := migrator.Close(); err != nil {
		logger.Error("failed to close migrator", "error", err)
	}

	// 組裝比賽服務
	store := internal.NewPostgresStore(pgPool)
	registry := internal.NewRegistry(store, logger, config.Countdown(), config.Game.StatsInterval)
	handler := internal.NewHandler(registry, store, logger)
	gameServer := internal.NewGameServer(registry, internal.QueryAuthenticator{}, logger, config.Game.OutboundBuffer)

	// 設置路由
	mux := http.NewServeMux()
	mux.Handle("/", handler.Routes())
	mux.HandleFunc("GET /ws/rooms/{room_id}", gameServer.ServeWS)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Server.Port),
		Handler:      mux,
		ReadTimeout:  config.Server.ReadTimeout,
		WriteTimeout: config.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// 啟動伺服器
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", "port", config.Server.Port)
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}

	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig)

		// 給予 30 秒時間完成當前請求
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("failed to shutdown server", "error", err)
			if closeErr := srv.Close(); closeErr != nil {
				logger.Error("failed to force close server", "error", closeErr)
			}
		}
	}

	logger.Info("server stopped")
}

// parseLogLevel 解析日誌級別
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
