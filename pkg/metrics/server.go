// Package metrics serves the agent's Prometheus metrics.
package metrics

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/omnect/twin-agent/pkg/logging"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	Path            = "/metrics"
	shutdownTimeout = 5 * time.Second
)

// Server exposes a registry over HTTP.
type Server struct {
	log    logging.Logger
	server *http.Server
}

// New creates a server for the default registry.
func New(log logging.Logger, listen string) *Server {
	return NewForRegistry(log, listen, prometheus.DefaultGatherer)
}

func NewForRegistry(log logging.Logger, listen string, gatherer prometheus.Gatherer) *Server {
	mux := http.NewServeMux()
	mux.Handle(Path, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return &Server{
		log: log,
		server: &http.Server{
			Addr:              listen,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Run serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	l, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return errors.Wrap(err, "metrics listener")
	}
	return s.Serve(ctx, l)
}

// Serve serves on l until ctx is done.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	s.log.WithField("addr", l.Addr().String()).Info("serving metrics")

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(sctx); err != nil {
			s.log.WithError(err).Warn("metrics server shutdown")
		}
	}()

	err := s.server.Serve(l)
	if err == http.ErrServerClosed {
		<-stopped
		return nil
	}
	return errors.Wrap(err, "metrics server")
}
