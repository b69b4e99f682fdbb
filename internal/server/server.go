// Package server exposes the repair pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"clarify-api/internal/common/config"
	apperrors "clarify-api/internal/common/errors"
	"clarify-api/internal/common/logger"
	"clarify-api/internal/common/observability"
	"clarify-api/internal/common/validation"
	"clarify-api/internal/models"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Repairer is satisfied by repairpipeline.Pipeline.
type Repairer interface {
	Repair(ctx context.Context, text string) (*models.RepairResult, error)
}

// Authorizer is satisfied by accessgate.Gate.
type Authorizer interface {
	Authorize(ctx context.Context, credential string) (*models.Account, error)
}

// Biller is satisfied by creditledger.Ledger.
type Biller interface {
	Decrement(ctx context.Context, accountID string, observed int) (int, error)
}

// Deps are the constructed service handles the server routes to.
type Deps struct {
	Pipeline      Repairer
	Gate          Authorizer
	Ledger        Biller
	Logger        logger.Logger
	Observability *observability.Observability
}

type Server struct {
	httpServer *http.Server
	cfg        config.ServerConfig
	limits     config.LimitsConfig
	deps       Deps
	logger     logger.Logger
	errs       *apperrors.ErrorHandler
	schema     *validation.Schema
	draining   atomic.Bool
}

func New(cfg *config.Config, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = logger.NewNoOpLogger()
	}
	log := deps.Logger.WithFields(map[string]interface{}{"component": "http"})

	s := &Server{
		cfg:    cfg.Server,
		limits: cfg.Limits,
		deps:   deps,
		logger: log,
		errs:   apperrors.NewErrorHandler(log),
		schema: validation.MustCompile(validation.RepairRequestSchema),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("POST /repair/demo", s.handleDemoRepair)
	mux.HandleFunc("POST /repair", s.handleMeteredRepair)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.withRequestLogging(s.withMetrics(s.withCORS(mux))),
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the fully wrapped handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens on the configured port until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then drains
// in-flight requests for up to 30 seconds.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", map[string]interface{}{"addr": ln.Addr().String()})
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return err
	}
	<-errCh
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.draining.Store(true)
	s.logger.Info("shutting down server", nil)
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info("server stopped", nil)
	return nil
}
