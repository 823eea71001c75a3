package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/readfeed/internal/domain/types"
)

// RefreshDependencies defines the interface for scheduling feed refreshes.
type RefreshDependencies interface {
	RequestRefresh(ctx context.Context, req types.FeedRequest) (types.RefreshStatus, error)
}

// RefreshHandler handles refresh requests.
type RefreshHandler struct {
	deps RefreshDependencies
}

// NewRefreshHandler creates a new refresh handler.
func NewRefreshHandler(deps RefreshDependencies) *RefreshHandler {
	return &RefreshHandler{deps: deps}
}

// HandlePostRefresh handles POST /feed/refresh requests.
func (h *RefreshHandler) HandlePostRefresh(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_refresh"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req types.FeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	status, err := h.deps.RequestRefresh(r.Context(), req)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	if status == types.RefreshPending {
		writeJSON(w, http.StatusOK, ackResponse{Status: "pending", Duplicate: true})
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted"})
}
