// Package api exposes the status surface of a scheduled regflow process.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/okian/regflow/internal/adapters/repository"
	"github.com/okian/regflow/pkg/logger"
)

// Server timeouts.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

// ReportProvider returns the report of the last finished run.
type ReportProvider interface {
	LastReport() (any, bool)
}

// RunLookup reads stored run headers.
type RunLookup interface {
	LastRun(ctx context.Context) (repository.RunSummary, error)
}

// Server wires HTTP routes for the status API.
type Server struct {
	healthHandler *HealthHandler
	reportHandler *ReportHandler
	runsHandler   *RunsHandler
}

// NewServer creates a server. runs may be nil when no sink is configured.
func NewServer(reports ReportProvider, runs RunLookup) *Server {
	s := &Server{
		healthHandler: NewHealthHandler(),
		reportHandler: NewReportHandler(reports),
	}
	if runs != nil {
		s.runsHandler = NewRunsHandler(runs)
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/report", MetricsMiddleware(s.reportHandler.HandleReport, "report"))
	if s.runsHandler != nil {
		mux.HandleFunc("/runs/last", MetricsMiddleware(s.runsHandler.HandleLastRun, "runs_last"))
	}
}

// ListenAndServe serves the routes on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	log := logger.Get().Named("http")
	mux := http.NewServeMux()
	s.Register(mux)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("%w: %w", ErrServe, err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
		return fmt.Errorf("%w: %w", ErrServe, err)
	}
	log.Info(ctx, "server stopped")
	return nil
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
