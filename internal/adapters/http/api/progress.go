package api

import (
	"context"
	"net/http"

	"github.com/okian/duel/internal/domain/model"
	"github.com/okian/duel/internal/domain/types"
)

// ProgressDependencies defines the interface for progress queries.
type ProgressDependencies interface {
	Progress(ctx context.Context, groupID string, pool []string) (model.Progress, error)
}

// ProgressHandler handles progress requests.
type ProgressHandler struct {
	srv  *Server
	deps ProgressDependencies
}

// NewProgressHandler creates a new progress handler.
func NewProgressHandler(srv *Server, deps ProgressDependencies) *ProgressHandler {
	return &ProgressHandler{srv: srv, deps: deps}
}

// HandleProgress handles POST /groups/{id}/progress requests.
func (h *ProgressHandler) HandleProgress(w http.ResponseWriter, r *http.Request) {
	const op = "api.progress"
	var req types.PoolRequest
	if err := h.srv.decode(w, r, op, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	p, err := h.deps.Progress(r.Context(), r.PathValue("id"), req.Pool)
	if err != nil {
		h.srv.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, types.FromProgress(p))
}
