// Package service wires the ranking core to its store and notification
// pipeline and implements the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/duel/internal/adapters/mq/queue"
	"github.com/okian/duel/internal/adapters/mq/worker"
	repository "github.com/okian/duel/internal/adapters/repository"
	"github.com/okian/duel/internal/domain/dedupe"
	"github.com/okian/duel/internal/domain/model"
	"github.com/okian/duel/internal/domain/pairing"
	"github.com/okian/duel/internal/domain/progress"
	"github.com/okian/duel/internal/domain/rating"
	"github.com/okian/duel/pkg/logger"
	"github.com/okian/duel/pkg/metrics"
)

// ErrNotStarted is returned by operations called before Start.
var ErrNotStarted = errors.New("service not started")

// Service implements the ranking operations on top of the store.
type Service struct {
	mu sync.RWMutex

	// Core components
	store    *repository.Store
	selector *pairing.Selector
	oracle   *progress.Oracle
	deduper  dedupe.Deduper
	queue    *queue.InMemoryQueue
	pool     *worker.Pool
	notifier Notifier
	sink     worker.Sink

	// customNotifier is set by WithNotifier; otherwise each Start binds a
	// notifier to the queue it creates.
	customNotifier bool

	// Configuration
	driver         string
	dsn            string
	maxOpenConns   int
	slowQuery      time.Duration
	kFactor        float64
	baseline       float64
	sampleSize     int
	retryBudget    int
	coverageWindow int
	fallback       pairing.Policy
	coverageTarget int
	queueSize      int
	workerCount    int
	dedupeSize     int
	seed           *int64

	// State
	started bool

	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		driver:         repository.DriverSQLite,
		dsn:            "duel.db",
		slowQuery:      200 * time.Millisecond,
		kFactor:        rating.DefaultKFactor,
		baseline:       model.DefaultBaselineRating,
		sampleSize:     pairing.DefaultSampleSize,
		retryBudget:    pairing.DefaultRetryBudget,
		coverageWindow: pairing.DefaultCoverageWindow,
		fallback:       pairing.PolicyRepeat,
		coverageTarget: progress.DefaultCoverageTarget,
		queueSize:      10_000,
		workerCount:    runtime.NumCPU(),
		dedupeSize:     100_000,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Discard()
	}
	return s
}

// Start opens the store and starts the notification workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting ranking service...")

	rater := rating.NewElo(rating.WithKFactor(s.kFactor), rating.WithBaseline(s.baseline))
	store, err := repository.Open(ctx,
		repository.WithDriver(s.driver),
		repository.WithDSN(s.dsn),
		repository.WithMaxOpenConns(s.maxOpenConns),
		repository.WithSlowThreshold(s.slowQuery),
		repository.WithRater(rater),
		repository.WithLogger(s.logger),
	)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	s.store = store

	selOpts := []pairing.Option{
		pairing.WithSampleSize(s.sampleSize),
		pairing.WithRetryBudget(s.retryBudget),
		pairing.WithCoverageWindow(s.coverageWindow),
		pairing.WithFallback(s.fallback),
		pairing.WithBaseline(s.baseline),
	}
	if s.seed != nil {
		selOpts = append(selOpts, pairing.WithSeed(*s.seed))
	}
	s.selector = pairing.NewSelector(store, selOpts...)
	s.oracle = progress.NewOracle(store, progress.WithCoverageTarget(s.coverageTarget))
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))

	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	sink := s.sink
	if sink == nil {
		sink = worker.SinkFunc(func(context.Context, worker.Change) error { return nil })
	}
	s.pool = worker.NewPool(s.workerCount, s.queue, sink, worker.WithLogger(s.logger))
	// Workers outlive the start context; Shutdown stops them.
	s.pool.Start(context.WithoutCancel(ctx))
	if !s.customNotifier {
		s.notifier = newQueueNotifier(s.queue, s.logger)
	}

	s.started = true
	s.logger.Info(ctx, "ranking service started",
		logger.String("driver", store.Driver()),
		logger.String("fallback_policy", string(s.fallback)),
		logger.Int("workers", s.pool.Size()),
		logger.Int("queue_size", s.queueSize),
		logger.Int("dedupe_size", s.dedupeSize),
	)
	return nil
}

// Shutdown drains pending notifications and closes the store.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping ranking service...")

	var errs []error
	if err := s.pool.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}

	s.started = false
	s.logger.Info(ctx, "ranking service stopped")
	return errors.Join(errs...)
}

func (s *Service) running() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

func (s *Service) requireGroup(ctx context.Context, groupID string) error {
	if err := s.running(); err != nil {
		return err
	}
	_, err := s.store.GetGroup(ctx, groupID)
	return err
}

// SelectPair returns the next pair of pool items to present in the group.
func (s *Service) SelectPair(ctx context.Context, groupID string, pool []string) (model.Selection, error) {
	if err := s.requireGroup(ctx, groupID); err != nil {
		return model.Selection{}, err
	}

	start := time.Now()
	sel, trace, err := s.selector.SelectTraced(ctx, groupID, pool)
	if err != nil {
		metrics.RecordErrorByComponent("selector", errorKind(err))
		return model.Selection{}, err
	}

	outcome := metrics.OutcomeFresh
	switch {
	case sel.NoMorePairs:
		outcome = metrics.OutcomeExhausted
	case sel.Repeat:
		outcome = metrics.OutcomeRepeat
	}
	metrics.RecordSelection(outcome, trace.Lookups, float64(time.Since(start).Microseconds())/1000)
	if trace.Widened {
		s.logger.Debug(ctx, "selection widened to the whole pool", logger.String("group_id", groupID))
	}
	return sel, nil
}

// Record applies one comparison outcome and notifies subscribers of the
// group. Notification never fails the call.
func (s *Service) Record(ctx context.Context, groupID, itemA, itemB, winner string) (model.UpdatedRatings, error) {
	if err := s.running(); err != nil {
		return model.UpdatedRatings{}, err
	}

	start := time.Now()
	res, err := s.store.Record(ctx, groupID, itemA, itemB, winner)
	if err != nil {
		kind := errorKind(err)
		metrics.RecordRecordError(kind)
		if kind == "store_unavailable" {
			s.logger.Error(ctx, "record failed", logger.String("group_id", groupID), logger.Error(err))
		}
		return model.UpdatedRatings{}, err
	}
	metrics.RecordComparison(float64(time.Since(start).Microseconds()) / 1000)

	s.notifier.Notify(ctx, groupID, []string{res.Winner.ItemID, res.Loser.ItemID})
	return res, nil
}

// RecordAndSelect records an outcome and, when pool is non-nil, selects the
// next pair. A selection failure after the record committed is logged and
// leaves Next nil.
func (s *Service) RecordAndSelect(ctx context.Context, groupID, itemA, itemB, winner string, pool []string) (model.RecordResult, error) {
	res, err := s.Record(ctx, groupID, itemA, itemB, winner)
	if err != nil {
		return model.RecordResult{}, err
	}
	out := model.RecordResult{UpdatedRatings: res}
	if pool == nil {
		return out, nil
	}

	next, err := s.SelectPair(ctx, groupID, pool)
	if err != nil {
		s.logger.Warn(ctx, "next pair selection failed after record",
			logger.String("group_id", groupID),
			logger.Error(err),
		)
		return out, nil
	}
	out.Next = &next
	return out, nil
}

// Progress reports how far ranking of pool in the group has come.
func (s *Service) Progress(ctx context.Context, groupID string, pool []string) (model.Progress, error) {
	if err := s.requireGroup(ctx, groupID); err != nil {
		return model.Progress{}, err
	}
	p, err := s.oracle.Progress(ctx, groupID, pool)
	if err != nil {
		metrics.RecordErrorByComponent("progress", errorKind(err))
		return model.Progress{}, err
	}
	metrics.RecordProgressQuery()
	return p, nil
}

// CreateGroup registers a group. A blank id is replaced with a new UUID.
func (s *Service) CreateGroup(ctx context.Context, id, name string, library bool) (model.Group, error) {
	if err := s.running(); err != nil {
		return model.Group{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		id = uuid.NewString()
	}
	name = strings.TrimSpace(name)
	if name == "" || !validGroupID(id) {
		return model.Group{}, model.ErrInvalidGroup
	}

	g, err := s.store.CreateGroup(ctx, model.Group{ID: id, Name: name, IsLibrary: library})
	if err != nil {
		return model.Group{}, err
	}
	s.logger.Info(ctx, "group created", logger.String("group_id", g.ID), logger.Bool("library", g.IsLibrary))
	return g, nil
}

// validGroupID reports whether id fits the store and a single URL path
// segment.
func validGroupID(id string) bool {
	return id != "" && len(id) <= model.MaxIDLength && !strings.Contains(id, "/")
}

// GetGroup returns a registered group.
func (s *Service) GetGroup(ctx context.Context, id string) (model.Group, error) {
	if err := s.running(); err != nil {
		return model.Group{}, err
	}
	return s.store.GetGroup(ctx, id)
}

// ListGroups returns every registered group.
func (s *Service) ListGroups(ctx context.Context) ([]model.Group, error) {
	if err := s.running(); err != nil {
		return nil, err
	}
	return s.store.ListGroups(ctx)
}

// DeleteGroup removes a group. See repository.Store.DeleteGroup.
func (s *Service) DeleteGroup(ctx context.Context, id string, force bool) error {
	if err := s.running(); err != nil {
		return err
	}
	if err := s.store.DeleteGroup(ctx, id, force); err != nil {
		return err
	}
	s.logger.Info(ctx, "group deleted", logger.String("group_id", id), logger.Bool("force", force))
	return nil
}

// EnsureLibraryGroup makes sure the protected library group exists.
func (s *Service) EnsureLibraryGroup(ctx context.Context, id, name string) (model.Group, error) {
	if err := s.running(); err != nil {
		return model.Group{}, err
	}
	if strings.TrimSpace(name) == "" || !validGroupID(strings.TrimSpace(id)) {
		return model.Group{}, model.ErrInvalidGroup
	}
	return s.store.EnsureLibraryGroup(ctx, id, name)
}

// Standings returns the group's entries ranked by rating.
func (s *Service) Standings(ctx context.Context, groupID string, limit, offset int) ([]model.StandingEntry, error) {
	if err := s.requireGroup(ctx, groupID); err != nil {
		return nil, err
	}
	return s.store.Standings(ctx, groupID, limit, offset)
}

// Rank returns one item's entry and its position in the group.
func (s *Service) Rank(ctx context.Context, groupID, itemID string) (model.StandingEntry, error) {
	if err := s.requireGroup(ctx, groupID); err != nil {
		return model.StandingEntry{}, err
	}
	return s.store.Rank(ctx, groupID, itemID)
}

// History returns ledger rows of the group, newest first. beforeID of zero
// starts from the newest row.
func (s *Service) History(ctx context.Context, groupID string, beforeID int64, limit int) ([]model.ComparisonRecord, error) {
	if err := s.requireGroup(ctx, groupID); err != nil {
		return nil, err
	}
	return s.store.History(ctx, groupID, beforeID, limit)
}

// idempotency returns the idempotency cache, or nil before Start.
func (s *Service) idempotency() dedupe.Deduper {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil
	}
	return s.deduper
}

// SeenAndRecord atomically checks if an idempotency key was seen and
// records it if not. Before Start no key is tracked.
func (s *Service) SeenAndRecord(ctx context.Context, key string) bool {
	d := s.idempotency()
	if d == nil {
		return false
	}
	seen := d.SeenAndRecord(ctx, key)
	if seen {
		metrics.RecordIdempotentReplay()
	}
	return seen
}

// Unrecord forgets an idempotency key so the request can be retried.
func (s *Service) Unrecord(ctx context.Context, key string) {
	if d := s.idempotency(); d != nil {
		d.Unrecord(ctx, key)
	}
}

// Complete stores the response produced for an idempotency key.
func (s *Service) Complete(ctx context.Context, key string, result []byte) {
	if d := s.idempotency(); d != nil {
		d.Complete(ctx, key, result)
	}
}

// Result returns the response stored for an idempotency key.
func (s *Service) Result(ctx context.Context, key string) ([]byte, bool) {
	d := s.idempotency()
	if d == nil {
		return nil, false
	}
	return d.Result(ctx, key)
}

// Size returns the current number of idempotency keys held.
func (s *Service) Size() int64 {
	d := s.idempotency()
	if d == nil {
		return 0
	}
	return d.Size()
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":         s.started,
		"driver":          s.driver,
		"fallback_policy": string(s.fallback),
		"coverage_target": s.coverageTarget,
		"k_factor":        s.kFactor,
		"queue_capacity":  s.queueSize,
		"slow_query_ms":   s.slowQuery.Milliseconds(),
	}
	if !s.started {
		return stats
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	queueLen := s.queue.Len(ctx)
	stats["queue_length"] = queueLen
	stats["workers"] = s.pool.Size()
	stats["idempotency_keys"] = s.deduper.Size()
	stats["store_ok"] = s.store.Ping(ctx) == nil
	metrics.UpdateQueueSize(queueLen)
	return stats
}

// errorKind names err for metric labels.
func errorKind(err error) string {
	switch {
	case errors.Is(err, model.ErrInvalidComparison):
		return "invalid"
	case errors.Is(err, model.ErrUnknownGroup):
		return "unknown_group"
	case errors.Is(err, model.ErrStoreUnavailable):
		return "store_unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}
