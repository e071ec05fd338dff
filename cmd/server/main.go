package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Wyydra/callbridge/internal/adapter/driven/call/memory"
	"github.com/Wyydra/callbridge/internal/adapter/driven/call/pion"
	"github.com/Wyydra/callbridge/internal/adapter/driven/gateway/ws"
	"github.com/Wyydra/callbridge/internal/adapter/driven/metrics/prom"
	permmem "github.com/Wyydra/callbridge/internal/adapter/driven/permission/memory"
	handler "github.com/Wyydra/callbridge/internal/adapter/driving/http"
	"github.com/Wyydra/callbridge/internal/config"
	"github.com/Wyydra/callbridge/internal/core/port"
	"github.com/Wyydra/callbridge/internal/core/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	l := newLogger(cfg)
	log.Logger = l

	engine, err := newEngine(cfg)
	if err != nil {
		l.Fatal().Err(err).Str("engine", cfg.Engine).Msg("Failed to create call engine")
	}
	probe, err := permmem.NewPresetProbe(cfg.PermissionPreset)
	if err != nil {
		l.Fatal().Err(err).Msg("Failed to create permission probe")
	}

	registry := service.NewRegistry()
	hub := ws.NewHub()

	var (
		metrics        port.Metrics = port.NopMetrics{}
		metricsHandler http.Handler
	)
	if cfg.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = prom.New(reg)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	bridge := service.NewBridge(engine, probe,
		service.WithLogger(l),
		service.WithMetrics(metrics),
		service.WithRegistry(registry),
		service.WithNoticeGateway(hub),
		service.WithPromptOnJoin(cfg.PromptOnJoin),
		service.WithCameraAutoEnable(cfg.AutoEnableCameraOnGrant),
	)

	h := handler.NewHandler(bridge, registry, hub, metricsHandler)

	go hub.Run()

	r := h.NewRouter()

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: r,
	}

	go func() {
		l.Info().Str("addr", cfg.Addr).Str("engine", cfg.Engine).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	l.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		l.Error().Err(err).Msg("Server forced to shutdown")
	}

	hub.Stop()
	if err := bridge.Close(ctx); err != nil {
		l.Error().Err(err).Msg("Bridge did not close cleanly")
	}
	l.Info().Msg("Server exited")
}

func newLogger(cfg config.Config) zerolog.Logger {
	lvl, _ := cfg.Level()
	zerolog.SetGlobalLevel(lvl)

	if cfg.LogFormat == config.LogFormatJSON {
		return zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()
	}
	w := zerolog.ConsoleWriter{Out: os.Stdout}
	return zerolog.New(w).With().Timestamp().Caller().Logger()
}

func newEngine(cfg config.Config) (port.Engine, error) {
	if cfg.Engine != config.EnginePion {
		return memory.NewEngine(), nil
	}
	lb, err := pion.NewLoopback(cfg.ICEServers)
	if err != nil {
		return nil, err
	}
	return pion.NewEngine(cfg.ICEServers, lb)
}
