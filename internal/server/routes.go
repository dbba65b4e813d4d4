package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lazypower/verkeep/internal/retention"
	"github.com/lazypower/verkeep/internal/store"
)

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, retention.ErrMalformedLabel):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNodeNotFound), errors.Is(err, store.ErrVersionNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrNodeExists):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeError(w, status, err.Error())
}

// node resolves the {nodeID} path parameter, which may also be a node name.
// It writes the error response itself and returns nil when resolution fails.
func (s *Server) node(w http.ResponseWriter, r *http.Request) *store.Node {
	ref := chi.URLParam(r, "nodeID")
	n, err := s.db.ResolveNode(r.Context(), ref)
	if err != nil {
		s.fail(w, r, err)
		return nil
	}
	if n == nil {
		writeError(w, http.StatusNotFound, "node not found: "+ref)
		return nil
	}
	return n
}

func (s *Server) handlePolicy(w http.ResponseWriter, r *http.Request) {
	p := s.pruner.Policy()
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":   p.Mode().String(),
		"policy": p,
	})
}

func (s *Server) handleCreateNode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name required")
		return
	}

	n, err := s.db.CreateNode(r.Context(), req.Name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.db.ListNodes(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if nodes == nil {
		nodes = []store.Node{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"nodes": nodes})
}

func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	n := s.node(w, r)
	if n == nil {
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *Server) handleListVersions(w http.ResponseWriter, r *http.Request) {
	n := s.node(w, r)
	if n == nil {
		return
	}
	versions, err := s.db.ListVersions(r.Context(), n.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if versions == nil {
		versions = []store.VersionRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"node_id":  n.ID,
		"versions": versions,
	})
}

func (s *Server) handleCreateVersion(w http.ResponseWriter, r *http.Request) {
	n := s.node(w, r)
	if n == nil {
		return
	}

	var req struct {
		Kind    string `json:"kind"`
		Comment string `json:"comment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	kind, err := retention.ParseKind(req.Kind)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := s.db.CreateVersion(r.Context(), n.ID, kind, req.Comment)
	if err != nil {
		if rec == nil {
			s.fail(w, r, err)
			return
		}
		// Committed, but retention failed afterwards.
		s.logger.Error("retention after commit failed", "node_id", n.ID, "label", rec.Label, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":   err.Error(),
			"version": rec,
		})
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleDeleteVersion(w http.ResponseWriter, r *http.Request) {
	n := s.node(w, r)
	if n == nil {
		return
	}
	label := chi.URLParam(r, "label")
	if _, _, err := retention.ParseLabel(label); err != nil {
		s.fail(w, r, err)
		return
	}

	err := s.db.WithNodeLock(n.ID, func() error {
		return s.db.DeleteVersion(r.Context(), n.ID, retention.Version{Label: label})
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "label": label})
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	n := s.node(w, r)
	if n == nil {
		return
	}
	plan, err := s.pruner.Plan(r.Context(), n.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if plan == nil {
		plan = []retention.Version{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"node_id":   n.ID,
		"mode":      s.pruner.Policy().Mode().String(),
		"deletions": plan,
	})
}

func (s *Server) handlePrune(w http.ResponseWriter, r *http.Request) {
	n := s.node(w, r)
	if n == nil {
		return
	}
	var deleted []retention.Version
	err := s.db.WithNodeLock(n.ID, func() error {
		var err error
		deleted, err = s.pruner.Prune(r.Context(), n.ID)
		return err
	})
	if err != nil {
		writeJSON(w, statusFor(err), map[string]any{
			"error":   err.Error(),
			"deleted": deleted,
		})
		return
	}
	if deleted == nil {
		deleted = []retention.Version{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"node_id": n.ID,
		"deleted": deleted,
	})
}
