// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/moziie/emqx/auth"
	"github.com/moziie/emqx/broker"
	"github.com/moziie/emqx/cm"
	"github.com/moziie/emqx/config"
	"github.com/moziie/emqx/hooks"
	"github.com/moziie/emqx/metrics"
	"github.com/moziie/emqx/ratelimit"
	"github.com/moziie/emqx/server/otel"
	"github.com/moziie/emqx/server/tcp"
	"github.com/moziie/emqx/server/websocket"
	"github.com/moziie/emqx/session"
)

func main() {
	configFile := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	switch cfg.Log.Level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	slog.Info("Starting MQTT broker",
		"tcp_addr", cfg.Server.TCPAddr,
		"ws_enabled", cfg.Server.WSEnabled,
		"log_level", cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Server.MetricsEnabled {
		shutdown, err := otel.InitProvider(cfg.Server)
		if err != nil {
			slog.Error("Failed to initialize OpenTelemetry", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				slog.Warn("OpenTelemetry shutdown failed", "error", err)
			}
		}()

		m, err = metrics.New()
		if err != nil {
			slog.Error("Failed to create metrics", "error", err)
			os.Exit(1)
		}
	}

	authn := auth.WithBreaker(auth.NoAuth{}, "auth")
	authz := auth.AllowAll{}

	router := broker.New(logger)
	sessions := session.NewManager(router, logger)
	registry := cm.NewRegistry()
	bus := hooks.New()

	var limiter *ratelimit.IPRateLimiter
	if cfg.Server.ConnectRateLimit > 0 {
		limiter = ratelimit.NewIPRateLimiter(cfg.Server.ConnectRateLimit, cfg.Server.ConnectBurst, time.Minute)
		defer limiter.Stop()
	}

	deps := tcp.Deps{
		ZoneCfg:  cfg.Zone("default"),
		Registry: registry,
		Sessions: sessions,
		Auth:     authn,
		ACL:      authz,
		Hooks:    bus,
		Broker:   router,
		Metrics:  m,
		Limiter:  limiter,
	}

	tcpServer := tcp.New(tcp.Config{
		Address:         cfg.Server.TCPAddr,
		Zone:            "default",
		Logger:          logger,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		MaxConnections:  cfg.Server.TCPMaxConn,
	}, deps)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := tcpServer.Listen(ctx); err != nil {
			slog.Error("TCP server failed", "error", err)
			stop()
		}
	}()

	if cfg.Server.WSEnabled {
		wsServer := websocket.New(websocket.Config{
			Address:         cfg.Server.WSAddr,
			Path:            cfg.Server.WSPath,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
		}, tcpServer, logger)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := wsServer.Listen(ctx); err != nil {
				slog.Error("WebSocket server failed", "error", err)
				stop()
			}
		}()
	}

	<-ctx.Done()
	slog.Info("Shutting down")
	wg.Wait()
}
