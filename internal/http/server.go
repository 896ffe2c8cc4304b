package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"pendingctl/internal/core"
)

const shutdownTimeout = 10 * time.Second

// ReadinessFunc returns nil once the service can do useful work.
type ReadinessFunc func() error

type Server struct {
	config *core.ServerConfig
	logger *zap.Logger
	server *http.Server
}

func NewServer(config *core.ServerConfig, gatherer prometheus.Gatherer, ready ReadinessFunc, logger *zap.Logger) *Server {
	mux := setupRoutes(gatherer, ready, logger)

	return &Server{
		config: config,
		logger: logger,
		server: createHTTPServer(config, mux),
	}
}

func createHTTPServer(config *core.ServerConfig, mux *http.ServeMux) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      mux,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
}

func setupRoutes(gatherer prometheus.Gatherer, ready ReadinessFunc, logger *zap.Logger) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, `{"status":"ok","service":"pendingctl"}`, logger)
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if ready != nil {
			if err := ready(); err != nil {
				logger.Debug("Readiness check failed", zap.Error(err))
				writeJSON(w, http.StatusServiceUnavailable, `{"status":"not ready","service":"pendingctl"}`, logger)
				return
			}
		}
		writeJSON(w, http.StatusOK, `{"status":"ready","service":"pendingctl"}`, logger)
	})

	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("/", homeHandler(logger))

	return mux
}

func writeJSON(w http.ResponseWriter, status int, body string, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(body)); err != nil {
		logger.Debug("Failed to write response", zap.Error(err))
	}
}

func homeHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`<!DOCTYPE html>
<html>
<head>
    <title>pendingctl</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 40px; }
        .endpoint { margin: 10px 0; }
        .endpoint a { text-decoration: none; color: #0066cc; }
    </style>
</head>
<body>
    <h1>pendingctl</h1>
    <p>Keeps the Spotify pending playlist in sync.</p>

    <h2>Endpoints</h2>
    <div class="endpoint"><a href="/metrics">Metrics</a> - Prometheus metrics</div>
    <div class="endpoint"><a href="/healthz">Health</a> - Health check</div>
    <div class="endpoint"><a href="/readyz">Ready</a> - Readiness check</div>
</body>
</html>`)); err != nil {
			logger.Debug("Failed to write home page", zap.Error(err))
		}
	}
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server",
		zap.String("addr", s.server.Addr))

	go func() {
		<-ctx.Done()
		s.logger.Info("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Failed to shutdown HTTP server gracefully", zap.Error(err))
		}
	}()

	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}
