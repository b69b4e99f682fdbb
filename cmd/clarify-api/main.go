// cmd/clarify-api/main.go
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"clarify-api/internal/common/completion"
	"clarify-api/internal/common/config"
	"clarify-api/internal/common/identity"
	"clarify-api/internal/common/logger"
	"clarify-api/internal/common/observability"
	"clarify-api/internal/server"

	accessgate "clarify-api/internal/services/access-gate"
	creditledger "clarify-api/internal/services/credit-ledger"
	repairpipeline "clarify-api/internal/services/repair-pipeline"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "clarify-api: %v\n", err)
		os.Exit(1)
	}
}

// run owns every resource so its deferred cleanup happens before main exits.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)
	zapLog.Info("starting clarify-api",
		zap.String("identityBackend", cfg.Identity.Backend),
		zap.String("completionProvider", cfg.Completion.Provider),
		zap.String("ledgerMode", cfg.Ledger.Mode),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	obs, err := observability.New(cfg.App.Name)
	if err != nil {
		zapLog.Warn("otel prometheus exporter unavailable", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = obs.Shutdown(shutdownCtx)
	}()

	// --- Identity store with retry ---
	var (
		store  identity.AccountStore
		closer io.Closer
	)
	err = retryWithBackoff(func() error {
		var err error
		store, closer, err = identity.Open(ctx, cfg.Identity)
		return err
	}, 10, 2*time.Second, zapLog, "identity store connection")
	if err != nil {
		zapLog.Error("identity store failed after retries", zap.Error(err))
		return err
	}
	defer closer.Close()

	completer, err := completion.New(ctx, cfg.Completion)
	if err != nil {
		zapLog.Error("completion client init failed", zap.Error(err))
		return err
	}

	srv := server.New(cfg, server.Deps{
		Pipeline:      repairpipeline.New(repairpipeline.LoadConfig(), completer, log),
		Gate:          accessgate.New(store, log),
		Ledger:        creditledger.New(creditledger.LoadConfig(cfg.Ledger), store, log),
		Logger:        log,
		Observability: obs,
	})

	if err := srv.Start(ctx); err != nil {
		zapLog.Error("server exited", zap.Error(err))
		return err
	}
	zapLog.Info("clarify-api stopped")
	return nil
}
