// Package server exposes transcript reconstruction over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	v1 "github.com/gosuda/trajlog/internal/api/v1"
	"github.com/gosuda/trajlog/internal/config"
	"github.com/gosuda/trajlog/internal/server/middleware"
)

// Server is the read-only transcript API.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	limiters   *middleware.Limiters
}

// New wires the routes. rec serves every transcript request.
func New(cfg *config.Config, rec v1.Reconstructor) *Server {
	router := chi.NewRouter()
	limiters := middleware.NewLimiters(float64(cfg.Server.RateLimit), cfg.Server.RateBurst)

	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(requestLogger)
	router.Use(chimw.Recoverer)
	router.Use(cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}).Handler)

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(limiters))

		apiConfig := huma.DefaultConfig("Trajlog API", "1.0.0")
		apiConfig.Servers = []*huma.Server{{URL: "/api/v1"}}
		api := humachi.New(r, apiConfig)
		v1.RegisterTranscriptRoutes(api, rec, cfg.Fetch.QueryTimeout)
	})

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	return &Server{
		router:   router,
		limiters: limiters,
		httpServer: &http.Server{
			Addr:         cfg.Server.Addr,
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// Start listens until Shutdown is called. The limiter sweeper stops with ctx.
func (s *Server) Start(ctx context.Context) error {
	go s.limiters.Run(ctx)

	log.Info().Str("addr", s.httpServer.Addr).Msg("server: listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.Start: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

// requestLogger logs one line per request on the global zerolog logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Str("request_id", chimw.GetReqID(r.Context())).
			Msg("server: request")
	})
}
