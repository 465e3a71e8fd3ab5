package api

import (
	"context"
	"net/http"

	"github.com/okian/duel/internal/domain/model"
	"github.com/okian/duel/internal/domain/types"
)

// RankDependencies defines the interface for rank operations.
type RankDependencies interface {
	Rank(ctx context.Context, groupID, itemID string) (model.StandingEntry, error)
}

// RankHandler handles rank requests.
type RankHandler struct {
	srv  *Server
	deps RankDependencies
}

// NewRankHandler creates a new rank handler.
func NewRankHandler(srv *Server, deps RankDependencies) *RankHandler {
	return &RankHandler{srv: srv, deps: deps}
}

// HandleGetRank handles GET /groups/{id}/items/{item} requests.
func (h *RankHandler) HandleGetRank(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_rank"
	item := r.PathValue("item")
	if item == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	entry, err := h.deps.Rank(r.Context(), r.PathValue("id"), item)
	if err != nil {
		h.srv.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, types.FromStanding(entry))
}
