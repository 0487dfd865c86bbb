// Package server exposes extraction and conversion over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/alokyadav2020/CodeConversion/internal/auth"
	"github.com/alokyadav2020/CodeConversion/internal/translate"
	"github.com/alokyadav2020/CodeConversion/pkg/exmacro"
)

// Translator converts VBA source. *translate.Client implements it.
type Translator interface {
	Convert(ctx context.Context, req translate.Request) (*translate.Conversion, error)
}

// Config configures the HTTP server.
type Config struct {
	Addr string
	// MaxUploadBytes bounds multipart bodies. Zero means 50 MiB.
	MaxUploadBytes int64
	// Extraction is the base option set; the mode query parameter overrides Mode.
	Extraction exmacro.Options
}

// Server is the chi-based HTTP API.
type Server struct {
	cfg        Config
	sessions   *auth.SessionManager
	translator Translator
	logger     zerolog.Logger
	router     *chi.Mux
}

// New creates a Server. translator may be nil, in which case conversion
// requests answer 503.
func New(cfg Config, sessions *auth.SessionManager, translator Translator, logger zerolog.Logger) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 50 << 20
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if sessions == nil {
		sessions = auth.NewSessionManager("", "", 0)
	}

	s := &Server{
		cfg:        cfg,
		sessions:   sessions,
		translator: translator,
		logger:     logger,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Post("/logout", s.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(s.sessions.Middleware)
			r.Post("/extract", s.handleExtract)
			r.Post("/vba", s.handleVBA)
			r.Post("/convert", s.handleConvert)
			r.Get("/results/last", s.handleLastResult)
		})
	})

	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.Addr).Bool("auth", s.sessions.Enabled()).Msg("server started")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info().Msg("stopping server")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.logger.Info().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("request")
		}()
		next.ServeHTTP(ww, r)
	})
}
