// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/okian/duel/internal/domain/dedupe"
	"github.com/okian/duel/pkg/logger"
)

const (
	defaultListLimit    = 50
	defaultMaxListLimit = 500
	defaultMaxBodyBytes = 4 << 20
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	dedupe.Deduper
	GroupDependencies
	PairDependencies
	ComparisonDependencies
	ProgressDependencies
	StandingsDependencies
	RankDependencies
}

// Subscriber streams group changes over a websocket.
type Subscriber interface {
	ServeGroup(w http.ResponseWriter, r *http.Request, groupID string)
}

// Server wires HTTP routes for the ranking API.
type Server struct {
	deps       Dependencies
	subscriber Subscriber
	logger     logger.Logger

	maxListLimit int
	maxBodyBytes int64

	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	groupsHandler      *GroupsHandler
	pairHandler        *PairHandler
	comparisonsHandler *ComparisonsHandler
	progressHandler    *ProgressHandler
	standingsHandler   *StandingsHandler
	rankHandler        *RankHandler
}

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithMaxListLimit caps the limit accepted by list endpoints.
func WithMaxListLimit(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxListLimit = n
		}
	}
}

// WithMaxBodyBytes caps the size of request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// WithSubscriber enables the websocket change stream.
func WithSubscriber(sub Subscriber) Option {
	return func(s *Server) {
		s.subscriber = sub
	}
}

// WithLogger sets the logger used for server-side failures.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{
		deps:         deps,
		logger:       logger.Discard(),
		maxListLimit: defaultMaxListLimit,
		maxBodyBytes: defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("api")

	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(statsProvider, s.subscriber)
	s.groupsHandler = NewGroupsHandler(s, deps)
	s.pairHandler = NewPairHandler(s, deps)
	s.comparisonsHandler = NewComparisonsHandler(s, deps, deps)
	s.progressHandler = NewProgressHandler(s, deps)
	s.standingsHandler = NewStandingsHandler(s, deps)
	s.rankHandler = NewRankHandler(s, deps)
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}

	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /groups", MetricsMiddleware(s.groupsHandler.HandleCreate, "groups_create"))
	mux.HandleFunc("GET /groups", MetricsMiddleware(s.groupsHandler.HandleList, "groups_list"))
	mux.HandleFunc("GET /groups/{id}", MetricsMiddleware(s.groupsHandler.HandleGet, "groups_get"))
	mux.HandleFunc("DELETE /groups/{id}", MetricsMiddleware(s.groupsHandler.HandleDelete, "groups_delete"))

	mux.HandleFunc("POST /groups/{id}/pair", MetricsMiddleware(s.pairHandler.HandleSelect, "pair"))
	mux.HandleFunc("POST /groups/{id}/comparisons", MetricsMiddleware(s.comparisonsHandler.HandleRecord, "comparisons_record"))
	mux.HandleFunc("GET /groups/{id}/comparisons", MetricsMiddleware(s.comparisonsHandler.HandleHistory, "comparisons_history"))
	mux.HandleFunc("POST /groups/{id}/progress", MetricsMiddleware(s.progressHandler.HandleProgress, "progress"))
	mux.HandleFunc("GET /groups/{id}/standings", MetricsMiddleware(s.standingsHandler.HandleGetStandings, "standings"))
	mux.HandleFunc("GET /groups/{id}/items/{item...}", MetricsMiddleware(s.rankHandler.HandleGetRank, "rank"))

	if s.subscriber != nil {
		mux.HandleFunc("GET /groups/{id}/ws", MetricsMiddleware(s.handleStream, "ws"))
	}
}

// handleStream upgrades to a websocket streaming changes of one group.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	const op = "api.stream"
	groupID := r.PathValue("id")
	if _, err := s.deps.GetGroup(r.Context(), groupID); err != nil {
		s.fail(w, r, op, err)
		return
	}
	s.subscriber.ServeGroup(w, r, groupID)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// fail writes err with the status it maps to. Server-side failures are
// logged and their details kept out of the response.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code := classify(err)
	if status >= statusInternalError {
		s.logger.Error(r.Context(), "request failed",
			logger.String("op", op),
			logger.String("path", r.URL.Path),
			logger.Error(err),
		)
		if status == statusServiceUnavailable {
			w.Header().Set("Retry-After", retryAfterSeconds)
		}
		writeError(w, status, code, nil)
		return
	}
	writeError(w, status, code, Wrap(op, err))
}

// decode reads a JSON body into v.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, op string, v any) error {
	body := http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return NewKind(op, ErrBadRequest)
		}
		return WrapKind(op, ErrBadRequest, err)
	}
	return nil
}

// intParam parses an optional query parameter. A missing value yields def.
func intParam(r *http.Request, name string, def, minimum, maximum int64) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < minimum || (maximum > 0 && n > maximum) {
		return 0, ErrBadRequest
	}
	return n, nil
}

// limitParam parses ?limit= bounded by the server's maximum.
func (s *Server) limitParam(r *http.Request, op string) (int, error) {
	n, err := intParam(r, "limit", defaultListLimit, 1, int64(s.maxListLimit))
	if err != nil {
		return 0, NewKind(op, ErrBadRequest)
	}
	return int(n), nil
}
