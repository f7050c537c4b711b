package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hamed0406/uptimepinger/internal/config"
	"github.com/hamed0406/uptimepinger/internal/domain"
	"github.com/hamed0406/uptimepinger/internal/httpapi"
	"github.com/hamed0406/uptimepinger/internal/logging"
	"github.com/hamed0406/uptimepinger/internal/notify"
	"github.com/hamed0406/uptimepinger/internal/probe"
	"github.com/hamed0406/uptimepinger/internal/reconcile"
	"github.com/hamed0406/uptimepinger/internal/repo/stores"
	"github.com/hamed0406/uptimepinger/internal/telemetry"
	"github.com/hamed0406/uptimepinger/internal/worker"
)

const (
	exitConfig  = 1
	exitRuntime = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		return exitConfig
	}
	logger, err := logging.NewLogger(cfg.LogDir, cfg.LogLevel, cfg.LogRetentionDays)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		return exitConfig
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracer, shutdownTracing, err := telemetry.Setup(ctx, cfg.OTLPEndpoint)
	if err != nil {
		logger.Error("tracing_setup_failed", zap.Error(err))
		return exitConfig
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	store, err := stores.Open(ctx, cfg.Store, logger)
	if err != nil {
		logger.Error("store_open_failed", zap.String("driver", cfg.Store.Driver), zap.Error(err))
		return exitRuntime
	}

	notifier, closeNotifiers, err := buildNotifier(cfg)
	if err != nil {
		_ = store.Close()
		logger.Error("notifier_setup_failed", zap.Error(err))
		return exitRuntime
	}
	defer func() {
		if err := multierr.Combine(closeNotifiers(), store.Close()); err != nil {
			logger.Warn("shutdown_close_failed", zap.Error(err))
		}
	}()

	deps := worker.Deps{
		Logger:   logger,
		Store:    store,
		Probers:  probe.NewRegistry(cfg.UserAgent),
		Notifier: notifier,
		Tracer:   tracer,
	}
	rec := reconcile.New(logger, store,
		func(ctx context.Context, t domain.Target, inbox <-chan domain.Target) error {
			return worker.Run(ctx, deps, t, inbox)
		},
		reconcile.Options{
			SyncInterval: cfg.SyncInterval,
			SyncTimeout:  cfg.SyncTimeout,
			Tracer:       tracer,
		},
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return rec.Run(gctx) })
	if cfg.OpsAddr != "" {
		srv := httpapi.NewServer(logger, rec, httpapi.Options{
			APIKeys: cfg.OpsAPIKeys,
			RPM:     cfg.OpsRPM,
			Burst:   cfg.OpsBurst,
		})
		g.Go(func() error { return srv.ListenAndServe(gctx, cfg.OpsAddr) })
	}

	logger.Info("pinger_started",
		zap.String("store", cfg.Store.Driver),
		zap.Duration("sync_interval", cfg.SyncInterval),
		zap.Duration("sync_timeout", cfg.SyncTimeout),
		zap.String("ops_addr", cfg.OpsAddr),
	)

	if err := g.Wait(); err != nil {
		logger.Error("pinger_failed", zap.Error(err))
		return exitRuntime
	}
	logger.Info("pinger_stopped")
	return 0
}

// buildNotifier returns nil when no transition hook is configured.
func buildNotifier(cfg config.Config) (notify.Notifier, func() error, error) {
	var multi notify.Multi
	closeFn := func() error { return nil }

	if s := notify.NewSlack(cfg.SlackWebhook); s != nil {
		multi = append(multi, s)
	}
	if cfg.NATSURL != "" {
		n, err := notify.ConnectNATS(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			return nil, closeFn, err
		}
		multi = append(multi, n)
		closeFn = n.Close
	}

	switch len(multi) {
	case 0:
		return nil, closeFn, nil
	case 1:
		return multi[0], closeFn, nil
	default:
		return multi, closeFn, nil
	}
}
