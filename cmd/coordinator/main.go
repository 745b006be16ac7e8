// coordinator drives the reconciliation loop and the spec-propagation
// protocol for a feature-ingestion platform: it keeps exactly one
// ingestion job running per (source, store) pair implied by the
// registered feature sets and store subscriptions, and pushes feature-set
// schema changes to running jobs, tracking per-job delivery
// acknowledgements until a feature set is fully READY.
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

	"coordinator/internal/api"
	"coordinator/internal/config"
	"coordinator/internal/coordinator"
	"coordinator/internal/health"
	"coordinator/internal/observability"
	"coordinator/internal/repository"
	"coordinator/internal/runner"
	"coordinator/internal/specbus"
	"coordinator/internal/specregistry"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("Coordinator failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svcCfg := config.LoadServiceConfig()
	coordCfg := config.LoadCoordinatorConfig()

	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return err
	}

	repo, err := repository.NewPostgres(ctx, coordCfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer repo.Close()

	registry, err := specregistry.DialGRPC(coordCfg.RegistryGRPCAddr)
	if err != nil {
		return err
	}
	defer registry.Close()

	jobManager, err := runner.NewDocker(ctx, runner.Config{
		Images:     coordCfg.DockerImages,
		ExtraHosts: coordCfg.DockerExtraHosts,
	})
	if err != nil {
		return err
	}
	defer jobManager.Close()

	bus := specbus.NewKafka(specbus.KafkaConfig{
		Brokers:   coordCfg.KafkaBrokers,
		SpecTopic: coordCfg.SpecTopic,
		AckTopic:  coordCfg.AckTopic,
	})
	defer bus.Close(context.Background())

	slog.Info("Coordinator dependencies connected",
		"registry", coordCfg.RegistryGRPCAddr, "kafkaBrokers", coordCfg.KafkaBrokers)

	coord := coordinator.New(coordinator.Config{
		PollInterval:      coordCfg.PollInterval,
		PropagateInterval: coordCfg.PropagateInterval,
		JobUpdateTimeout:  coordCfg.JobUpdateTimeout,
	}, registry, repo, jobManager, bus)

	coord.Start(ctx)

	healthChecker := health.NewChecker(map[string]health.ReadinessChecker{
		"repository":   repo,
		"runner":       jobManager,
		"specRegistry": registry,
		"specBus":      bus,
	})

	router := api.NewRouter(api.RouterConfig{
		Repository:    repo,
		Metrics:       metrics,
		HealthChecker: healthChecker,
	})

	apiServer := &http.Server{Addr: ":" + svcCfg.Port, Handler: router}
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metricsHandler)
	metricsServer := &http.Server{Addr: ":" + svcCfg.MetricsPort, Handler: metricsMux}

	errCh := make(chan error, 2)
	go func() {
		slog.Info("Status API listening", "port", svcCfg.Port)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		slog.Info("Metrics server listening", "port", svcCfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	case err := <-errCh:
		slog.Error("Server failed", "error", err)
	}

	healthChecker.SetShuttingDown()
	if svcCfg.ShutdownDrainWait > 0 {
		time.Sleep(svcCfg.ShutdownDrainWait)
	}

	coord.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	apiServer.Shutdown(shutdownCtx)
	metricsServer.Shutdown(shutdownCtx)

	return nil
}
