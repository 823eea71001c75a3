package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/okian/readfeed/internal/domain/types"
)

// FeedDependencies defines the interface for feed reads.
type FeedDependencies interface {
	GetFeed(ctx context.Context, req types.FeedRequest) ([]types.Activity, error)
}

// FeedHandler handles feed requests.
type FeedHandler struct {
	deps     FeedDependencies
	maxLimit int
}

// NewFeedHandler creates a new feed handler.
func NewFeedHandler(deps FeedDependencies, maxLimit int) *FeedHandler {
	return &FeedHandler{deps: deps, maxLimit: maxLimit}
}

// HandleGetFeed handles GET /feed?scope=global|followers&limit=N&viewer=KEY.
// A missing limit selects the service default.
func (h *FeedHandler) HandleGetFeed(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_feed"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	q := r.URL.Query()
	req := types.FeedRequest{Scope: types.Scope(q.Get("scope")), Viewer: q.Get("viewer")}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, fmt.Errorf("limit %q", s)))
			return
		}
		if h.maxLimit > 0 && n > h.maxLimit {
			writeError(w, http.StatusBadRequest, "limit_exceeded", NewKind(op, ErrBadRequest))
			return
		}
		req.Limit = n
	}

	feed, err := h.deps.GetFeed(r.Context(), req)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, feed)
}
