package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/okian/duel/internal/domain/model"
	"github.com/okian/duel/internal/domain/types"
)

// GroupDependencies defines the interface for group lifecycle operations.
type GroupDependencies interface {
	CreateGroup(ctx context.Context, id, name string, library bool) (model.Group, error)
	GetGroup(ctx context.Context, id string) (model.Group, error)
	ListGroups(ctx context.Context) ([]model.Group, error)
	DeleteGroup(ctx context.Context, id string, force bool) error
}

// GroupsHandler handles group requests.
type GroupsHandler struct {
	srv  *Server
	deps GroupDependencies
}

// NewGroupsHandler creates a new groups handler.
func NewGroupsHandler(srv *Server, deps GroupDependencies) *GroupsHandler {
	return &GroupsHandler{srv: srv, deps: deps}
}

// HandleCreate handles POST /groups requests.
func (h *GroupsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_group"
	var req types.CreateGroupRequest
	if err := h.srv.decode(w, r, op, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	g, err := h.deps.CreateGroup(r.Context(), req.ID, req.Name, req.Library)
	if err != nil {
		h.srv.fail(w, r, op, err)
		return
	}
	w.Header().Set("Location", "/groups/"+url.PathEscape(g.ID))
	writeJSON(w, http.StatusCreated, types.FromGroup(g))
}

// HandleList handles GET /groups requests.
func (h *GroupsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_groups"
	groups, err := h.deps.ListGroups(r.Context())
	if err != nil {
		h.srv.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, types.FromGroups(groups))
}

// HandleGet handles GET /groups/{id} requests.
func (h *GroupsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_group"
	g, err := h.deps.GetGroup(r.Context(), r.PathValue("id"))
	if err != nil {
		h.srv.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, types.FromGroup(g))
}

// HandleDelete handles DELETE /groups/{id}?force=true requests.
func (h *GroupsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	const op = "api.delete_group"
	force := false
	if raw := r.URL.Query().Get("force"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		force = v
	}
	if err := h.deps.DeleteGroup(r.Context(), r.PathValue("id"), force); err != nil {
		h.srv.fail(w, r, op, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
