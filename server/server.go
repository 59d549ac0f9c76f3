package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/hannes/yaak-ner/config"
	"github.com/hannes/yaak-ner/logger"
)

// Server represents the HTTP server
type Server struct {
	config     *config.Config
	recognizer EntityRecognizer
	router     http.Handler
}

// NewServer creates a new server instance around an already loaded model
func NewServer(cfg *config.Config, recognizer EntityRecognizer) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if recognizer == nil {
		return nil, errors.New("entity recognizer is nil")
	}

	s := &Server{
		config:     cfg,
		recognizer: recognizer,
	}
	s.router = s.routes()
	return s, nil
}

// Handler returns the fully wired router
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(requestLogger)
	r.Use(recoverer)
	if s.config.CORS.Enabled {
		r.Use(corsHandler(s.config.CORS))
	}
	r.Use(chiMiddleware.RequestSize(s.config.Server.MaxRequestBytes))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		encodeJSON(w, http.StatusNotFound, detailResponse{Detail: "Not Found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		encodeJSON(w, http.StatusMethodNotAllowed, detailResponse{Detail: "Method Not Allowed"})
	})

	r.Get("/", s.handleRoot)

	// The liveness route is never rate limited
	if s.config.RateLimit.Enabled {
		r.With(rateLimiter(s.config.RateLimit)).Post("/ner", s.handleNER)
	} else {
		r.Post("/ner", s.handleNER)
	}

	return r
}

// Start serves until ctx is cancelled, then drains in-flight requests
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.config.ServerPort,
		Handler:      s.router,
		ReadTimeout:  seconds(s.config.Server.ReadTimeout),
		WriteTimeout: seconds(s.config.Server.WriteTimeout),
		IdleTimeout:  seconds(s.config.Server.IdleTimeout),
	}

	logger.Info("starting NER service",
		"addr", s.config.ServerPort,
		"cors_enabled", s.config.CORS.Enabled,
		"rate_limit_enabled", s.config.RateLimit.Enabled,
	)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down NER service")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), seconds(s.config.Server.ShutdownTimeout))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
