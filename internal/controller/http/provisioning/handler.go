package provisioning

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openlms/slackspaces/internal/provision"
	"github.com/openlms/slackspaces/pkg/common/config"
	"github.com/openlms/slackspaces/pkg/common/jwkscache"
	repoIface "github.com/openlms/slackspaces/pkg/repositories/workspace"
)

type Handler struct {
	cfg       *config.Config
	repo      repoIface.Repository
	svc       *provision.Service
	jwksCache jwkscache.Cache
}

// NewHandler constructs a Handler over the workspace repository and the
// provisioning service.
func NewHandler(cfg *config.Config, repo repoIface.Repository, svc *provision.Service) *Handler {
	return &Handler{
		cfg:       cfg,
		repo:      repo,
		svc:       svc,
		jwksCache: jwkscache.Default(),
	}
}

// Router returns a chi-based router for the /api endpoints.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/api/health", h.health)

	// LTI launch entry: verifies the id_token and reports workspace state
	r.Post("/api/launch", h.launch)

	// Workspace provisioning and joining (launch-authenticated)
	r.Post("/api/workspaces", h.provisionWorkspace)
	r.Post("/api/workspaces/join", h.joinWorkspace)
	r.Get("/api/workspaces/{courseSISID}", h.getWorkspace)
	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Health(); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "unhealthy", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// getWorkspace returns the stored record for a course, for display only.
func (h *Handler) getWorkspace(w http.ResponseWriter, r *http.Request) {
	courseSISID := chi.URLParam(r, "courseSISID")
	rec, err := h.repo.GetWorkspaceByCourse(r.Context(), courseSISID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "repository error")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "no workspace for this course")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
