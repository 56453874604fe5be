package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lci/lci-lookup/config"
)

const shutdownWaitTimeout = 15 * time.Second

// RunConfig groups what RunWithShutdown needs.
type RunConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
	// Signals defaults to SIGINT and SIGTERM.
	Signals []os.Signal
}

// RunWithShutdown serves HTTP until ctx is cancelled, a shutdown signal arrives or the server
// fails, then drains in-flight requests and closes the metrics sink.
func RunWithShutdown(ctx context.Context, cfg *RunConfig) error {
	if cfg == nil || cfg.Config == nil {
		return errors.New("run config with AppConfig is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	signals := cfg.Signals
	if len(signals) == 0 {
		signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}

	ctx, stop := signal.NotifyContext(ctx, signals...)
	defer stop()

	errCh := make(chan error, 1)
	server := StartHTTPServer(&HTTPServerConfig{
		Config:   cfg.Config,
		Services: cfg.Services,
		Logger:   logger,
		ErrCh:    errCh,
	})

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down services...")
	case runErr = <-errCh:
		logger.Error("service error", "error", runErr)
	}

	stopErr := ShutdownHTTPServer(ShutdownConfig{
		Context: ctx,
		Server:  server,
		Timeout: shutdownWaitTimeout,
		Logger:  logger,
	})
	if sink := cfg.Services.Observability.MetricsSink; sink != nil {
		if err := sink.Close(); err != nil {
			logger.Warn("close statsd client failed", "error", err)
		}
	}
	return errors.Join(runErr, stopErr)
}
