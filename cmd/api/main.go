package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/api"
	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/app"
	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/config"
	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zlog, err := logger.New(cfg.Server.Environment, cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zlog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var reg *prometheus.Registry
	if cfg.Observability.MetricsEnabled {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	a, err := app.Open(ctx, cfg, zlog, registerer(reg))
	if err != nil {
		zlog.Fatal("failed to start pipeline", zap.Error(err))
	}
	defer a.Close()

	server := api.NewServer(cfg, a, zlog.Named("api"), gatherer(reg))

	go func() {
		zlog.Info("server starting", zap.String("addr", cfg.Addr()), zap.String("driver", cfg.Database.Driver))
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("server failed to start", zap.Error(err))
		}
	}()

	<-ctx.Done()

	zlog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error("server forced to shutdown", zap.Error(err))
	}

	zlog.Info("server exited")
}

// registerer and gatherer avoid handing out a typed nil registry
func registerer(reg *prometheus.Registry) prometheus.Registerer {
	if reg == nil {
		return nil
	}
	return reg
}

func gatherer(reg *prometheus.Registry) prometheus.Gatherer {
	if reg == nil {
		return nil
	}
	return reg
}
