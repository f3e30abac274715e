package handler

import (
	"encoding/json"
	"net/http"

	"ride-dispatch/internal/domain/user"
)

// IssueToken mints an access token for a known user id and role. Identity
// verification lives in the auth service; this endpoint backs local setups
// and integration tests.
func (h *Handler) IssueToken(w http.ResponseWriter, r *http.Request) {
	var in struct {
		UserID string `json:"user_id"`
		Role   string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.httpError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if in.UserID == "" {
		h.httpError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	role, err := user.ParseRole(in.Role)
	if err != nil {
		h.httpError(w, http.StatusBadRequest, "role must be passenger or driver")
		return
	}

	token, claims, err := h.jwtMgr.IssueUserToken(in.UserID, role)
	if err != nil {
		h.logger.Error(r.Context(), "token_issue_failed", "Failed to issue token", err,
			map[string]any{"user_id": in.UserID})
		h.httpError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	h.jsonResponse(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_at":   claims.ExpiresAt.Time,
	})
}
