package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"rentchat/internal/app"
	"rentchat/internal/chat"
	"rentchat/internal/config"
	myMiddleware "rentchat/internal/middleware"
	"rentchat/internal/user"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "server:", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Config & Flags
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	addr := flag.String("addr", cfg.HTTPAddr, "http service address")
	flag.Parse()

	log := config.NewLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Storage (store driver, directories, optional Redis profile cache)
	b, err := app.OpenBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	// 3. Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := chat.NewMetrics(reg)

	// 4. Identity
	tokens := user.NewTokenService(b.Users, cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	auth := myMiddleware.NewAuthMiddleware(tokens, log)

	// 5. Chat feature
	hub := chat.NewHub(metrics, log)
	go hub.Run(ctx)

	resolver := chat.NewResolver(b.Store, b.Profiles, b.Listings)
	messages := chat.NewMessageService(b.Store, b.Profiles, b.Listings)
	gateway := chat.NewGateway(hub, messages, chat.GatewayConfig{
		SendQueue:      cfg.WSSendQueue,
		RateEvents:     cfg.WSRateEvents,
		RateWindow:     cfg.WSRateWindow,
		OpTimeout:      cfg.WSOpTimeout,
		AllowedOrigins: cfg.CORSOrigins,
	}, metrics, log)
	chatHandler := chat.NewHandler(resolver, messages, hub, metrics, log)

	// 6. Routes
	router := app.NewRouter(app.RouterDeps{
		Log:         log,
		Auth:        auth,
		Chat:        chatHandler,
		Users:       user.NewHandler(),
		Gateway:     gateway,
		Ready:       b.Ping,
		Gatherer:    reg,
		CORSOrigins: cfg.CORSOrigins,
	})

	// WriteTimeout stays zero: /ws connections are hijacked and manage their own deadlines.
	srv := &http.Server{
		Addr:              *addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http.listen", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	}

	log.Info("http.shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http.shutdown_failed", "err", err)
	}
	stop()
	select {
	case <-hub.Done():
	case <-shutdownCtx.Done():
	}
	return nil
}
