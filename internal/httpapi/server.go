package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	apimw "github.com/hamed0406/uptimepinger/internal/httpapi/middleware"
	"github.com/hamed0406/uptimepinger/internal/metrics"
	"github.com/hamed0406/uptimepinger/internal/reconcile"
)

// Registry is the read side of the reconciler.
type Registry interface {
	Snapshot() reconcile.Snapshot
	Ready() bool
}

type Options struct {
	APIKeys []string
	RPM     int
	Burst   int
}

// Server is the operational HTTP surface: health, readiness, metrics and a
// read-only view of the worker registry.
type Server struct {
	Logger   *zap.Logger
	Registry Registry
	Opts     Options
}

func NewServer(l *zap.Logger, reg Registry, opts Options) *Server {
	return &Server{Logger: l, Registry: reg, Opts: opts}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(cors.AllowAll().Handler)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/readyz", s.handleReady)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(apimw.RateLimit(s.Opts.RPM, s.Opts.Burst))
		r.Use(apimw.RequireKey(s.Opts.APIKeys))
		r.Get("/workers", s.handleListWorkers)
		r.Get("/workers/{id}", s.handleGetWorker)
	})

	return r
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.Registry.Ready() {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}

func (s *Server) handleListWorkers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Registry.Snapshot())
}

func (s *Server) handleGetWorker(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	for _, wi := range s.Registry.Snapshot().Workers {
		if wi.TargetID == id {
			writeJSON(w, http.StatusOK, wi)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "worker not found"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ListenAndServe serves the router on addr until ctx ends, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.Logger.Info("ops_listen", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
