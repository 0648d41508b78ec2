// Package api serves the forecast query surface: blended forecasts with
// per-source attribution, performance profiles, and source status. It is a
// read-only consumer of the store; all computation happens in the engines.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oneweather/oneweather/internal/geo"
	"github.com/oneweather/oneweather/internal/store"
)

type Server struct {
	store  *store.Store
	idx    *geo.Index
	addr   string
	logger *slog.Logger
}

func NewServer(st *store.Store, idx *geo.Index, addr string, logger *slog.Logger) *Server {
	return &Server{store: st, idx: idx, addr: addr, logger: logger}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/forecast", s.handleForecast)
	mux.HandleFunc("GET /api/v1/performance", s.handlePerformance)
	mux.HandleFunc("GET /api/v1/sources", s.handleSources)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api listening", "addr", s.addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
