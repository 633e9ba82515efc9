package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/nexustunnel/relay/internal/config"
	"github.com/nexustunnel/relay/internal/httpgateway"
	"github.com/nexustunnel/relay/internal/monitoring"
	"github.com/nexustunnel/relay/internal/tunnel"
	"github.com/nexustunnel/relay/internal/wsgateway"
	"github.com/nexustunnel/relay/pkg/logger"
)

func main() {
	var (
		port     = flag.String("port", "", "Port to run the relay on (overrides PORT)")
		logLevel = flag.String("log-level", "info", "Log level (debug/info/warn/error)")
	)
	flag.Parse()

	cfg := config.Load()
	if *port != "" {
		cfg.Port = *port
	}

	log := logger.New(cfg.Environment)
	switch *logLevel {
	case "debug":
		log = log.Level(zerolog.DebugLevel)
	case "warn":
		log = log.Level(zerolog.WarnLevel)
	case "error":
		log = log.Level(zerolog.ErrorLevel)
	default:
		log = log.Level(zerolog.InfoLevel)
	}

	log.Info().
		Str("port", cfg.Port).
		Str("domain", cfg.Domain).
		Str("environment", cfg.Environment).
		Msg("starting relay")

	metrics := monitoring.New(prometheus.DefaultRegisterer)
	registry := tunnel.NewRegistry(log, metrics)

	mux := http.NewServeMux()
	mux.Handle("/tunnel", wsgateway.NewHandler(registry, wsgateway.Config{
		RootDomain:    cfg.Domain,
		PingInterval:  cfg.PingInterval,
		MaxFrameBytes: cfg.MaxFrameBytes,
	}, log))
	mux.Handle("/", httpgateway.NewEngine(registry, cfg.Domain, cfg.Environment, cfg.RequestTimeout, log))

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("relay server error")
		}
	}()

	<-sigChan
	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("error during shutdown")
	}
	registry.Shutdown()

	log.Info().Msg("relay stopped")
}
