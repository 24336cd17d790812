package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/viant/simsearch/internal/config"
	logpkg "github.com/viant/simsearch/internal/logger"
	"github.com/viant/simsearch/internal/metrics"
	"github.com/viant/simsearch/modelstore"
	"github.com/viant/simsearch/similarity"
	"github.com/viant/simsearch/vector"
	"github.com/viant/simsearch/vecutil"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Server exposes the document store and similarity search over HTTP.
type Server struct {
	store         *vector.SQLiteStore
	cache         *vecutil.IndexCache
	search        config.SearchConfig
	logger        *zap.Logger
	router        chi.Router
	errorHandlers []errorHandler
	limiter       *rate.Limiter // nil when search.rate_limit is 0
}

// New creates a Server over store using the search and cache settings of cfg.
func New(store *vector.SQLiteStore, cfg config.Config, logger *zap.Logger) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("server: store is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cache, err := vecutil.NewIndexCache(cfg.Cache.Size)
	if err != nil {
		return nil, fmt.Errorf("server: index cache: %w", err)
	}
	metrics.RegisterSearchMetrics()
	s := &Server{
		store:  store,
		cache:  cache,
		search: cfg.Search,
		logger: logger,
	}
	if cfg.Search.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.Search.RateLimit), cfg.Search.RateBurst)
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(similarity.ErrDimensionMismatch, http.StatusBadRequest, "dimension_mismatch"),
		sentinelHandler(similarity.ErrInvalidArgument, http.StatusBadRequest, "invalid_argument"),
		sentinelHandler(modelstore.ErrNotFound, http.StatusNotFound, "not_found"),
	}
	s.router = s.routes()
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(jsonRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(metrics.Middleware())

	r.Get("/healthz", s.health)
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/v1/datasets", func(r chi.Router) {
		r.Get("/", s.listDatasets)
		r.Route("/{dataset}", func(r chi.Router) {
			r.Put("/documents", s.upsertDocuments)
			r.Delete("/documents/{id}", s.deleteDocument)
			r.Post("/search", s.searchDataset)
			r.Post("/reindex", s.reindex)
			r.Get("/changes", s.changes)
		})
	})
	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully within the configured timeout.
func (s *Server) ListenAndServe(ctx context.Context, httpCfg config.HTTPConfig) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", httpCfg.Port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(httpCfg.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(httpCfg.WriteTimeoutSec) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	s.logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(httpCfg.ShutdownSec)*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	s.logger.Info("Server stopped gracefully")
	return nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DB().PingContext(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, err.Error())
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logpkg.FromContext(r.Context())
	for _, h := range s.errorHandlers {
		if h(w, err) {
			log.Warn("request rejected", zap.Error(err))
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered", zap.Any("panic", rvr), zap.Stack("stacktrace"))
					writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// requestLogger emits one log line per request and propagates X-Request-ID.
func requestLogger(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}
			ctx, reqLogger := logpkg.WithFields(logpkg.ContextWithLogger(r.Context(), logger),
				zap.String("request_id", requestID))

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
