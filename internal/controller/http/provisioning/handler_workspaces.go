package provisioning

import (
	"net/http"

	"github.com/openlms/slackspaces/pkg/common/logger"
)

// provisionWorkspace runs the provisioning workflow for a staff launch. The
// record is returned in its final status; a failed remote creation reports
// 502 after the record is marked failed.
func (h *Handler) provisionWorkspace(w http.ResponseWriter, r *http.Request) {
	lc, ok := h.verifyLaunch(w, r)
	if !ok {
		return
	}
	rec, err := h.svc.Provision(r.Context(), *lc)
	if err != nil {
		logger.Error("provisioning for course %s: %v", lc.CourseSISID, err)
		if rec != nil {
			// Surface the failed record alongside the error status
			writeJSON(w, http.StatusBadGateway, map[string]any{
				"error":     "workspace creation failed",
				"workspace": rec,
			})
			return
		}
		h.writeWorkflowError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// joinWorkspace adds the launching user to the existing course workspace.
func (h *Handler) joinWorkspace(w http.ResponseWriter, r *http.Request) {
	lc, ok := h.verifyLaunch(w, r)
	if !ok {
		return
	}
	rec, err := h.svc.Join(r.Context(), *lc)
	if err != nil {
		logger.Error("join for course %s: %v", lc.CourseSISID, err)
		if rec != nil {
			writeJSON(w, http.StatusBadGateway, map[string]any{
				"error":     "could not assign user to workspace",
				"workspace": rec,
			})
			return
		}
		h.writeWorkflowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
