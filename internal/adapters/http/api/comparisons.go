package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/okian/duel/internal/domain/dedupe"
	"github.com/okian/duel/internal/domain/model"
	"github.com/okian/duel/internal/domain/types"
)

// Idempotency headers.
const (
	headerIdempotencyKey    = "Idempotency-Key"
	headerIdempotentReplay  = "Idempotent-Replay"
	maxIdempotencyKeyLength = 255
)

// ComparisonDependencies defines the interface for recording outcomes and
// reading the ledger.
type ComparisonDependencies interface {
	RecordAndSelect(ctx context.Context, groupID, itemA, itemB, winner string, pool []string) (model.RecordResult, error)
	History(ctx context.Context, groupID string, beforeID int64, limit int) ([]model.ComparisonRecord, error)
}

// ComparisonsHandler handles comparison requests.
type ComparisonsHandler struct {
	srv     *Server
	deps    ComparisonDependencies
	deduper dedupe.Deduper
}

// NewComparisonsHandler creates a new comparisons handler.
func NewComparisonsHandler(srv *Server, deps ComparisonDependencies, deduper dedupe.Deduper) *ComparisonsHandler {
	return &ComparisonsHandler{srv: srv, deps: deps, deduper: deduper}
}

// HandleRecord handles POST /groups/{id}/comparisons requests. With an
// Idempotency-Key header a retried request replays the first response
// instead of recording twice.
func (h *ComparisonsHandler) HandleRecord(w http.ResponseWriter, r *http.Request) {
	const op = "api.record_comparison"
	groupID := r.PathValue("id")

	var req types.ComparisonRequest
	if err := h.srv.decode(w, r, op, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	token := strings.TrimSpace(r.Header.Get(headerIdempotencyKey))
	if len(token) > maxIdempotencyKeyLength {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	var key string
	if token != "" {
		key = dedupe.Key(groupID, token)
		if h.deduper.SeenAndRecord(r.Context(), key) {
			body, ok := h.deduper.Result(r.Context(), key)
			if !ok {
				h.srv.fail(w, r, op, NewKind(op, ErrInFlight))
				return
			}
			w.Header().Set(headerIdempotentReplay, "true")
			writeRaw(w, http.StatusOK, body)
			return
		}
	}

	res, err := h.deps.RecordAndSelect(r.Context(), groupID, req.ItemA, req.ItemB, req.Winner, req.Pool)
	if err != nil {
		if key != "" {
			// Rollback the "seen" status so the client can retry
			h.deduper.Unrecord(r.Context(), key)
		}
		h.srv.fail(w, r, op, err)
		return
	}

	body, err := json.Marshal(types.FromRecordResult(res))
	if err != nil {
		if key != "" {
			h.deduper.Unrecord(r.Context(), key)
		}
		h.srv.fail(w, r, op, err)
		return
	}
	if key != "" {
		h.deduper.Complete(r.Context(), key, body)
	}
	writeRaw(w, http.StatusOK, body)
}

// HandleHistory handles GET /groups/{id}/comparisons?limit=N&before=ID
// requests, newest first.
func (h *ComparisonsHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	const op = "api.comparison_history"
	limit, err := h.srv.limitParam(r, op)
	if err != nil {
		writeError(w, http.StatusBadRequest, "limit_exceeded", err)
		return
	}
	before, err := intParam(r, "before", 0, 0, 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	rows, err := h.deps.History(r.Context(), r.PathValue("id"), before, limit)
	if err != nil {
		h.srv.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, types.FromComparisons(rows))
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
	_, _ = w.Write([]byte("\n"))
}
