package api

import (
	"context"
	"net/http"

	"github.com/okian/duel/internal/domain/model"
	"github.com/okian/duel/internal/domain/types"
)

// PairDependencies defines the interface for pair selection.
type PairDependencies interface {
	SelectPair(ctx context.Context, groupID string, pool []string) (model.Selection, error)
}

// PairHandler handles pair selection requests.
type PairHandler struct {
	srv  *Server
	deps PairDependencies
}

// NewPairHandler creates a new pair handler.
func NewPairHandler(srv *Server, deps PairDependencies) *PairHandler {
	return &PairHandler{srv: srv, deps: deps}
}

// HandleSelect handles POST /groups/{id}/pair requests. A pool with fewer
// than two usable items yields no_more_pairs, not an error.
func (h *PairHandler) HandleSelect(w http.ResponseWriter, r *http.Request) {
	const op = "api.select_pair"
	var req types.PoolRequest
	if err := h.srv.decode(w, r, op, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	sel, err := h.deps.SelectPair(r.Context(), r.PathValue("id"), req.Pool)
	if err != nil {
		h.srv.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, types.FromSelection(sel))
}
