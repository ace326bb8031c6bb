package telemetry

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsServer exposes the process's Prometheus registry (the one the
// otel Prometheus exporter registers into) over a plain HTTP /metrics
// endpoint, separate from the engine's NDJSON event stream on stdout.
type MetricsServer struct {
	addr   string
	logger Logger
	srv    *http.Server
}

// NewMetricsServer builds a server that will listen on addr (e.g. ":9090")
// when Start is called.
func NewMetricsServer(addr string, logger Logger) *MetricsServer {
	if logger == nil {
		logger = NopLogger{}
	}
	return &MetricsServer{addr: addr, logger: logger.WithField("component", "metrics_server")}
}

// Run starts the server and blocks until ctx is cancelled, then shuts it
// down gracefully. Intended as one errgroup goroutine alongside the rest of
// a cmd's wiring.
func (s *MetricsServer) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	s.srv = &http.Server{Addr: s.addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting prometheus metrics server", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("metrics server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		return s.srv.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}
