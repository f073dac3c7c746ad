package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dynpower/internal/logging"
)

// HealthFunc reports the process health shown on /healthz.
type HealthFunc func() Health

// Health is the /healthz payload.
type Health struct {
	Status     string `json:"status"`
	Role       string `json:"role"`
	Profile    string `json:"profile,omitempty"`
	ApplyState string `json:"apply_state,omitempty"`
	LastCycle  string `json:"last_cycle,omitempty"`
}

// Server serves the metrics endpoint.
type Server struct {
	addr   string
	health HealthFunc
	logger *slog.Logger
	srv    *http.Server
}

// NewServer builds a metrics server for addr. health may be nil.
func NewServer(addr string, health HealthFunc, logger *slog.Logger) *Server {
	return &Server{
		addr:   addr,
		health: health,
		logger: logging.NewComponentLogger(logger, "metrics"),
	}
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		health := Health{Status: "ok"}
		if s.health != nil {
			health = s.health()
		}
		status := http.StatusOK
		if health.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(health)
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Run listens until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("metrics listen: %w", err)
	}
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.logger.Info("metrics endpoint listening", logging.String("listen", listener.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics serve: %w", err)
	}
}
