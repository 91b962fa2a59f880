package web

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/miroyo/internal/config"
	"github.com/hpungsan/miroyo/internal/logging"
	"github.com/hpungsan/miroyo/internal/pipeline"
	"github.com/hpungsan/miroyo/internal/share"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// NewServer creates and configures the HTTP server for the interpret API
// and shared card pages.
func NewServer(p *pipeline.Pipeline, cfg *config.Config, logger *zap.Logger, version string) (*http.Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	// Create sub-FS for templates (strip "templates/" prefix)
	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, fmt.Errorf("failed to create template sub-FS: %w", err)
	}

	// Create sub-FS for static files (strip "static/" prefix)
	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("failed to create static sub-FS: %w", err)
	}

	h := &Handlers{
		pipeline: p,
		cfg:      cfg,
		renderer: NewRenderer(templateSub, version, logger),
		logger:   logger,
	}

	return &http.Server{
		Addr:              cfg.Addr(),
		Handler:           h.routes(http.FileServerFS(staticSub)),
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}

// routes builds the mux wrapped in the shared middleware.
func (h *Handlers) routes(static http.Handler) http.Handler {
	mux := http.NewServeMux()

	// The interpret route accepts every method; the pipeline answers 405
	// in the JSON error shape.
	route(mux, h.logger, "/api/interpret", h.HandleInterpret)
	route(mux, h.logger, "POST /api/share", h.HandleShare)
	route(mux, h.logger, "GET "+share.ResultPath, h.HandleResult)
	route(mux, h.logger, "GET /card/{token}", h.HandleCard)
	route(mux, h.logger, "GET /healthz", h.HandleHealth)

	mux.Handle("GET /static/", http.StripPrefix("/static/", static))

	return requestID(h.logger, securityHeaders(mux))
}

// route registers handler under pattern with access logging. The
// pattern, not the raw path, is logged so share tokens stay out of logs.
func route(mux *http.ServeMux, logger *zap.Logger, pattern string, handler http.HandlerFunc) {
	mux.Handle(pattern, accessLog(logger, pattern, handler))
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// requestID tags each request with a ULID, echoed in X-Request-Id and
// attached to the request logger.
func requestID(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := logging.NewRequestID()
		w.Header().Set("X-Request-Id", id)
		ctx := logging.WithRequestID(r.Context(), logger, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

func accessLog(logger *zap.Logger, pattern string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		logging.FromContext(r.Context(), logger).Info("request",
			zap.String("method", r.Method),
			zap.String("route", pattern),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// Run starts the HTTP server and handles graceful shutdown on SIGINT/SIGTERM.
func Run(srv *http.Server, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return Serve(ctx, srv, logger)
}

// Serve runs srv until ctx is done, then shuts it down gracefully.
func Serve(ctx context.Context, srv *http.Server, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("miroyo running", zap.String("addr", "http://"+srv.Addr))

	if strings.Contains(srv.Addr, "0.0.0.0") || strings.Contains(srv.Addr, "::") {
		logger.Warn("server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
