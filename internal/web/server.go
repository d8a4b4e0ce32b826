package web

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/vbonduro/inventory/internal/metrics"
	"github.com/vbonduro/inventory/internal/service"
)

const (
	shutdownTimeout = 10 * time.Second

	// multipartMemory is how much of a multipart body is kept in memory before
	// spilling file parts to temp files.
	multipartMemory = 8 << 20
)

type Server struct {
	service        *service.InventoryService
	assets         fs.FS
	metrics        *metrics.Metrics
	mux            *http.ServeMux
	logger         *slog.Logger
	maxUploadBytes int64
}

func NewServer(svc *service.InventoryService, assets fs.FS, m *metrics.Metrics, logger *slog.Logger, maxUploadBytes int64) *Server {
	s := &Server{
		service:        svc,
		assets:         assets,
		metrics:        m,
		mux:            http.NewServeMux(),
		logger:         logger,
		maxUploadBytes: maxUploadBytes,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("POST /register", s.handleRegister)
	s.mux.HandleFunc("GET /inventory", s.handleListItems)
	s.mux.HandleFunc("GET /inventory/{id}", s.handleGetItem)
	s.mux.HandleFunc("PUT /inventory/{id}", s.handleUpdateItem)
	s.mux.HandleFunc("DELETE /inventory/{id}", s.handleDeleteItem)
	s.mux.HandleFunc("GET /inventory/{id}/photo", s.handleGetItemPhoto)
	s.mux.HandleFunc("PUT /inventory/{id}/photo", s.handleUpdateItemPhoto)
	s.mux.HandleFunc("GET /search", s.handleSearch)
	s.mux.HandleFunc("POST /search", s.handleSearch)

	s.mux.HandleFunc("GET /inventory-photo/{name}", s.handleStoredPhoto)
	s.mux.HandleFunc("GET /uploads", s.handleListUploads)

	s.mux.HandleFunc("GET /RegisterForm.html", s.serveAsset("RegisterForm.html"))
	s.mux.HandleFunc("GET /SearchForm.html", s.serveAsset("SearchForm.html"))
	s.mux.HandleFunc("GET /docs", s.serveAsset("docs/index.html"))
	s.mux.HandleFunc("GET /docs/openapi.yaml", s.serveAsset("docs/openapi.yaml"))

	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}

	// Anything no route above claims, including a known path with the wrong
	// verb, is reported as 405.
	s.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
}

// securityHeaders adds defensive HTTP response headers to every response.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Content-Security-Policy",
			"default-src 'self'; "+
				"script-src 'self' 'unsafe-inline' https://unpkg.com; "+
				"style-src 'self' 'unsafe-inline' https://unpkg.com; "+
				"img-src 'self' data:; "+
				"connect-src 'self'")
		next.ServeHTTP(w, r)
	})
}

// statusRecorder wraps http.ResponseWriter to capture the written status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		route := r.Pattern
		if route == "" || route == "/" {
			route = "unmatched"
		}
		s.metrics.ObserveRequest(r.Method, route, rec.status, elapsed)

		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			return
		}
		fields := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"route", route,
			"status", rec.status,
			"duration_ms", elapsed.Milliseconds(),
		}
		if rec.status >= 500 {
			s.logger.Error("request", fields...)
			return
		}
		s.logger.Info("request", fields...)
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.requestLogger(securityHeaders(s.mux)).ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then drains in-flight
// requests.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) serveAsset(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := fs.Stat(s.assets, name); err != nil {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		http.ServeFileFS(w, r, s.assets, name)
	}
}
