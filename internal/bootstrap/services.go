package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/htpdf/htpdf/config"
	"github.com/htpdf/htpdf/internal/adapters/cleanup"
	"github.com/htpdf/htpdf/internal/adapters/mailer"
	"github.com/htpdf/htpdf/internal/adapters/outbox"
	"github.com/htpdf/htpdf/internal/adapters/redislock"
	"github.com/htpdf/htpdf/internal/adapters/renderer"
	"github.com/htpdf/htpdf/internal/adapters/storage"
	"github.com/htpdf/htpdf/internal/adapters/worker"
	"github.com/htpdf/htpdf/internal/core"
	"github.com/htpdf/htpdf/internal/domain/queue"
	"github.com/htpdf/htpdf/internal/observability/statsd"
)

// outboxLeaseKey is the Redis key serializing outbox passes across instances.
const outboxLeaseKey = "htpdf:outbox:pass-lease"

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink   *statsd.Client
	MetricsConfig config.ObservabilityMetricsConfig
}

// buildObservability configures the metrics sink.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	var metricsSink *statsd.Client
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  statsd.DefaultPrefix,
			Logger:  obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = client
		}
	}

	return ObservabilityContainer{
		MetricsSink:   metricsSink,
		MetricsConfig: cfg.Metrics,
	}
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

const (
	// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
	shutdownWaitTimeout = 15 * time.Second
)

// sharedComponents holds adapters shared between background services.
type sharedComponents struct {
	queue         *queue.Queue
	storage       core.BlobStorage
	observability ObservabilityContainer
}

// serviceStartupDeps groups dependencies for service startup.
type serviceStartupDeps struct {
	ctx             context.Context
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	shared          *sharedComponents
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	mode config.ServiceMode
	name string
	done <-chan struct{}
}

// buildSharedComponents builds the adapters shared across the worker and
// cleanup loops. The in-process queue must be a single instance so that
// submissions enqueued by one component are visible to the worker.
func buildSharedComponents(cfg *ServiceOrchestrationConfig, logger *slog.Logger) (*sharedComponents, error) {
	store, err := storage.NewLocalStore(storage.LocalStoreOptions{
		Config: cfg.Config.Storage,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise file storage: %w", err)
	}

	return &sharedComponents{
		queue:         queue.New(),
		storage:       store,
		observability: buildObservability(logger, cfg.Config.Observability),
	}, nil
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !deps.enabledServices[descriptor.mode] {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case deps.errCh <- errMsg:
			case <-ctx.Done():
			default:
				if deps.logger != nil {
					deps.logger.WarnContext(
						ctx,
						"dropping background service error",
						"service",
						descriptor.name,
						"error",
						errMsg,
					)
				} else {
					slog.Default().WarnContext(ctx, "dropping background service error", "service", descriptor.name, "error", errMsg)
				}
			}
		}
	}()

	if deps.logger != nil {
		deps.logger.InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)
	} else {
		slog.Default().InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)
	}

	return done
}

func startBackgroundServices(deps *serviceStartupDeps, services []backgroundService) []backgroundServiceHandle {
	if deps == nil {
		return nil
	}
	handles := make([]backgroundServiceHandle, 0, len(services))

	for _, svc := range services {
		done := launchBackground(deps.ctx, deps, svc)
		if done == nil {
			continue
		}

		handles = append(handles, backgroundServiceHandle{
			mode: svc.mode,
			name: svc.name,
			done: done,
		})
	}

	return handles
}

func newWorkerBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeWorker,
		name: "worker",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil {
				return nil
			}
			appCfg := deps.cfg.Config
			runner, err := worker.NewRunner(worker.RunnerOptions{
				DB:       deps.cfg.DB,
				Queue:    deps.shared.queue,
				Renderer: renderer.New(appCfg.Renderer),
				Storage:  deps.shared.storage,
				Worker:   appCfg.Worker,
				Outbox:   appCfg.Outbox,
				Limits:   appCfg.Limits,
				Retain:   appCfg.Storage,
				Logger:   deps.logger,
				Metrics:  deps.shared.observability.MetricsSink,
			})
			if err != nil {
				return fmt.Errorf("build worker runner: %w", err)
			}
			return runner.Run(ctx)
		},
	}
}

func newOutboxBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeOutbox,
		name: "outbox processor",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil {
				return nil
			}
			appCfg := deps.cfg.Config

			sender, err := mailer.NewSMTPSender(mailer.SMTPSenderOptions{
				Config: appCfg.Email,
				Logger: deps.logger,
				ResolveAttachment: func(path string) string {
					return filepath.Join(appCfg.Storage.Path, path)
				},
			})
			if err != nil {
				return fmt.Errorf("build smtp sender: %w", err)
			}

			var lock core.PassLock
			if appCfg.Redis.Enabled && deps.cfg.RedisClient != nil {
				lock, err = redislock.New(deps.cfg.RedisClient, outboxLeaseKey)
				if err != nil {
					return fmt.Errorf("build outbox pass lease: %w", err)
				}
			}

			runner, err := outbox.NewRunner(outbox.RunnerOptions{
				DB:      deps.cfg.DB,
				Sender:  sender,
				Config:  appCfg.Outbox,
				Logger:  deps.logger,
				Lock:    lock,
				Metrics: deps.shared.observability.MetricsSink,
			})
			if err != nil {
				return fmt.Errorf("build outbox runner: %w", err)
			}
			return runner.Run(ctx)
		},
	}
}

func newCleanupBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeCleanup,
		name: "file cleanup",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil {
				return nil
			}
			runner, err := cleanup.NewRunner(cleanup.RunnerOptions{
				DB:      deps.cfg.DB,
				Storage: deps.shared.storage,
				Config:  deps.cfg.Config.Cleanup,
				Logger:  deps.logger,
				Metrics: deps.shared.observability.MetricsSink,
			})
			if err != nil {
				return fmt.Errorf("build cleanup runner: %w", err)
			}
			return runner.Run(ctx)
		},
	}
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil {
		return nil
	}
	return []backgroundService{
		newWorkerBackgroundService(deps),
		newOutboxBackgroundService(deps),
		newCleanupBackgroundService(deps),
	}
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	ctx := context.Background()
	serviceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}

	shared, err := buildSharedComponents(cfg, logger)
	if err != nil {
		return err
	}

	// Determine which services are enabled
	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, errorChannelBufferSize(enabledServices))

	deps := &serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		shared:          shared,
		enabledServices: enabledServices,
		errCh:           errCh,
	}
	handles := startBackgroundServices(deps, buildBackgroundServices(deps))

	// Wait for shutdown signal or error
	return waitForShutdown(shutdownConfig{
		ctx:         serviceCtx,
		cancel:      cancel,
		errCh:       errCh,
		logger:      logger,
		backgrounds: handles,
	})
}

func errorChannelCapacity(enabled map[config.ServiceMode]bool) int {
	count := 0
	for _, mode := range config.ValidServiceModes() {
		if enabled[mode] {
			count++
		}
	}
	return count
}

func errorChannelBufferSize(enabled map[config.ServiceMode]bool) int {
	size := errorChannelCapacity(enabled) + 1
	if size < 1 {
		return 1
	}
	return size
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	ctx         context.Context
	cancel      context.CancelFunc
	errCh       <-chan error
	logger      *slog.Logger
	backgrounds []backgroundServiceHandle
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel() // Cancel service context before waiting
		gracefulStop(cfg)
		return nil
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel() // Cancel service context before waiting
		gracefulStop(cfg)
		return err
	}
}

// gracefulStop waits for background services to finish.
func gracefulStop(cfg shutdownConfig) {
	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
