package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var log = logging.Logger("sdn-trust-metrics")

// Server serves /metrics for a Metrics registry.
type Server struct {
	srv *http.Server
}

// Handler returns the scrape handler for m.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Start serves m on addr in the background.
func Start(addr string, m *Metrics) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	s := &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}}

	// Start server in a goroutine so that it doesn't block.
	go func() {
		log.Infof("Metrics available at http://%s/metrics", addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warnf("Metrics server error: %v", err)
		}
	}()
	return s
}

// Stop shuts the server down, waiting up to five seconds for open scrapes.
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.srv.Shutdown(ctx); err != nil {
		log.Warnf("Metrics server shutdown: %v", err)
	}
}
