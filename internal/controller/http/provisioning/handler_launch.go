package provisioning

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/openlms/slackspaces/internal/provision"
	"github.com/openlms/slackspaces/pkg/common/logger"
	"github.com/openlms/slackspaces/pkg/repositories/workspace"
)

// LTI 1.3 claim URIs carried by the launch id_token.
const (
	claimContext = "https://purl.imsglobal.org/spec/lti/claim/context"
	claimLIS     = "https://purl.imsglobal.org/spec/lti/claim/lis"
	claimCustom  = "https://purl.imsglobal.org/spec/lti/claim/custom"
	claimRoles   = "https://purl.imsglobal.org/spec/lti/claim/roles"
)

// launch verifies the inbound id_token and reports the workspace state for
// the launching user, reconciling the remote admin role for staff members.
func (h *Handler) launch(w http.ResponseWriter, r *http.Request) {
	lc, ok := h.verifyLaunch(w, r)
	if !ok {
		return
	}
	st, err := h.svc.LaunchState(r.Context(), *lc)
	if err != nil {
		h.writeWorkflowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// verifyLaunch authenticates a request carrying an LTI id_token form field:
// signature against the platform JWKS, issuer, audience, and a one-shot
// nonce guard. On success it returns the extracted launch claims. On failure
// it writes the error response and returns ok=false.
func (h *Handler) verifyLaunch(w http.ResponseWriter, r *http.Request) (*provision.Launch, bool) {
	reqID := uuid.NewString()
	_ = r.ParseForm()
	raw := r.FormValue("id_token")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "missing id_token")
		return nil, false
	}
	if h.cfg.PlatformJWKSURL == "" {
		writeError(w, http.StatusInternalServerError, "platform JWKS not configured")
		return nil, false
	}
	set, err := h.jwksCache.Get(r.Context(), h.cfg.PlatformJWKSURL)
	if err != nil {
		logger.Error("launch %s: fetching platform JWKS: %v", reqID, err)
		writeError(w, http.StatusInternalServerError, "unable to fetch platform keys")
		return nil, false
	}
	tok, err := jwt.Parse([]byte(raw),
		jwt.WithKeySet(set),
		jwt.WithValidate(true),
		jwt.WithIssuer(h.cfg.PlatformIssuer),
		jwt.WithAudience(h.cfg.ClientID),
	)
	if err != nil {
		logger.Warn("launch %s: id_token rejected: %v", reqID, err)
		writeError(w, http.StatusUnauthorized, "invalid id_token")
		return nil, false
	}

	// One-shot nonce: replayed launches are refused
	nonce := stringClaim(tok, "nonce")
	if nonce == "" {
		writeError(w, http.StatusUnauthorized, "id_token missing nonce")
		return nil, false
	}
	exp := tok.Expiration()
	if exp.IsZero() {
		exp = time.Now().Add(15 * time.Minute)
	}
	fresh, err := h.repo.TryUseNonce(r.Context(), nonce, exp)
	if err != nil {
		logger.Error("launch %s: nonce store: %v", reqID, err)
		writeError(w, http.StatusInternalServerError, "nonce verification failed")
		return nil, false
	}
	if !fresh {
		logger.Warn("launch %s: replayed nonce", reqID)
		writeError(w, http.StatusUnauthorized, "id_token replay")
		return nil, false
	}

	lc := extractLaunch(tok)
	if lc.CourseSISID == "" {
		writeError(w, http.StatusBadRequest, "launch is missing a course offering sourcedid")
		return nil, false
	}
	if lc.Email == "" {
		writeError(w, http.StatusBadRequest, "launch is missing the user email")
		return nil, false
	}
	logger.Debug("launch %s: course=%s user=%s roles=%v", reqID, lc.CourseSISID, lc.UnivID, lc.Roles)
	return lc, true
}

// extractLaunch maps id_token claims onto the launch context the workflows
// consume. Canvas-style custom claims carry the term name and SIS email.
func extractLaunch(tok jwt.Token) *provision.Launch {
	lc := &provision.Launch{}

	if m, ok := mapClaim(tok, claimContext); ok {
		lc.CourseCode, _ = m["label"].(string)
		lc.CourseTitle, _ = m["title"].(string)
	}
	if m, ok := mapClaim(tok, claimLIS); ok {
		lc.CourseSISID, _ = m["course_offering_sourcedid"].(string)
		lc.UnivID, _ = m["person_sourcedid"].(string)
	}
	if m, ok := mapClaim(tok, claimCustom); ok {
		if v, _ := m["canvas_term_name"].(string); v != "" {
			lc.TermName = v
		}
		if v, _ := m["canvas_person_email_sis"].(string); v != "" {
			lc.Email = v
		}
	}
	if lc.Email == "" {
		lc.Email = stringClaim(tok, "email")
	}
	if v, ok := tok.Get(claimRoles); ok {
		switch roles := v.(type) {
		case []string:
			lc.Roles = roles
		case []any:
			for _, x := range roles {
				if s, ok := x.(string); ok {
					lc.Roles = append(lc.Roles, s)
				}
			}
		}
	}
	return lc
}

func mapClaim(tok jwt.Token, name string) (map[string]any, bool) {
	v, ok := tok.Get(name)
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

func stringClaim(tok jwt.Token, name string) string {
	if v, ok := tok.Get(name); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// writeWorkflowError maps workflow sentinel errors onto HTTP statuses.
func (h *Handler) writeWorkflowError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, provision.ErrNotPermitted), errors.Is(err, provision.ErrNotStaff):
		writeError(w, http.StatusForbidden, "Sorry, you don't have permission to use this tool.")
	case errors.Is(err, workspace.ErrDuplicateCourse):
		writeError(w, http.StatusConflict, "a workspace already exists for this course")
	case errors.Is(err, provision.ErrNoWorkspace):
		writeError(w, http.StatusNotFound, "no workspace for this course")
	case errors.Is(err, provision.ErrProvisionFailed):
		writeError(w, http.StatusBadGateway, "workspace creation failed")
	default:
		logger.Error("workflow error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
