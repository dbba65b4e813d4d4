package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lazypower/verkeep/internal/retention"
	"github.com/lazypower/verkeep/internal/store"
)

// Server is the verkeep HTTP API server.
type Server struct {
	db       *store.DB
	pruner   *retention.Pruner
	gatherer prometheus.Gatherer
	router   chi.Router
	version  string
	started  time.Time
	logger   *slog.Logger
}

// New creates a Server over db and pruner. When gatherer is non-nil its
// metrics are exposed on /metrics.
func New(db *store.DB, pruner *retention.Pruner, version string, gatherer prometheus.Gatherer) *Server {
	s := &Server{
		db:       db,
		pruner:   pruner,
		gatherer: gatherer,
		version:  version,
		started:  time.Now(),
		logger:   slog.Default().With("component", "server"),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/policy", s.handlePolicy)

		r.Post("/nodes", s.handleCreateNode)
		r.Get("/nodes", s.handleListNodes)
		r.Route("/nodes/{nodeID}", func(r chi.Router) {
			r.Get("/", s.handleGetNode)
			r.Get("/versions", s.handleListVersions)
			r.Post("/versions", s.handleCreateVersion)
			r.Delete("/versions/{label}", s.handleDeleteVersion)
			r.Get("/plan", s.handlePlan)
			r.Post("/prune", s.handlePrune)
		})
	})

	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if err := s.db.PingContext(r.Context()); err != nil {
		dbOK = false
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
		"db_path": s.db.Path,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
