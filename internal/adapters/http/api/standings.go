package api

import (
	"context"
	"net/http"

	"github.com/okian/duel/internal/domain/model"
	"github.com/okian/duel/internal/domain/types"
)

// StandingsDependencies defines the interface for standings operations.
type StandingsDependencies interface {
	Standings(ctx context.Context, groupID string, limit, offset int) ([]model.StandingEntry, error)
}

// StandingsHandler handles standings requests.
type StandingsHandler struct {
	srv  *Server
	deps StandingsDependencies
}

// NewStandingsHandler creates a new standings handler.
func NewStandingsHandler(srv *Server, deps StandingsDependencies) *StandingsHandler {
	return &StandingsHandler{srv: srv, deps: deps}
}

// HandleGetStandings handles GET /groups/{id}/standings?limit=N&offset=M
// requests.
func (h *StandingsHandler) HandleGetStandings(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_standings"
	limit, err := h.srv.limitParam(r, op)
	if err != nil {
		writeError(w, http.StatusBadRequest, "limit_exceeded", err)
		return
	}
	offset, err := intParam(r, "offset", 0, 0, 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	entries, err := h.deps.Standings(r.Context(), r.PathValue("id"), limit, int(offset))
	if err != nil {
		h.srv.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, types.FromStandings(entries))
}
