// Command mt5gatewayd runs the connection gateway as a standalone daemon:
// it dials the broker's three sockets, exposes liveness/readiness/health
// endpoints for an operator or orchestrator, and shuts down cleanly on
// SIGINT/SIGTERM. It is a thin consumer of the gateway package, not part
// of the gateway's own API surface.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonwraymond/mt5gateway/gateway"
	"github.com/jonwraymond/mt5gateway/health"
	"github.com/jonwraymond/mt5gateway/observe"
	"github.com/jonwraymond/mt5gateway/secret"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "mt5gatewayd:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config.yaml", "path to the gateway config file")
	healthAddr := flag.String("health-addr", ":8090", "address the health HTTP surface listens on")
	flag.Parse()

	fc, err := loadFileConfig(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	obs, err := observe.NewObserver(ctx, fc.toObserveConfig())
	if err != nil {
		return fmt.Errorf("start observer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = obs.Shutdown(shutdownCtx)
	}()

	logger := obs.Logger()
	tracer := observe.NewTracer(obs.Tracer())

	gw, err := gateway.New(fc.toGatewayConfig(), logger, tracer)
	if err != nil {
		return fmt.Errorf("build gateway: %w", err)
	}

	resolver := secret.NewResolver(true)
	if err := gw.Initialize(ctx, resolver); err != nil {
		return fmt.Errorf("initialize gateway: %w", err)
	}

	if err := gw.Connect(ctx); err != nil {
		return fmt.Errorf("connect gateway: %w", err)
	}

	mux := http.NewServeMux()
	health.RegisterHandlers(mux, gw.HealthAggregator())
	server := &http.Server{Addr: *healthAddr, Handler: mux}

	serveErrCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- err
			return
		}
		serveErrCh <- nil
	}()

	logger.Info(ctx, "mt5gatewayd started", observe.Field{Key: "healthAddr", Value: *healthAddr})

	select {
	case <-ctx.Done():
		logger.Info(ctx, "shutdown signal received")
	case err := <-serveErrCh:
		if err != nil {
			logger.Error(ctx, "health server failed", observe.Field{Key: "error", Value: err.Error()})
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = server.Shutdown(shutdownCtx)
	return gw.Shutdown(shutdownCtx)
}
