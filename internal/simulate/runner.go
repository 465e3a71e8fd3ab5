package simulate

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/okian/duel/internal/domain/types"
	"github.com/okian/duel/pkg/logger"
)

const (
	standingsPage          = 100
	maxConsecutiveFailures = 5
)

// Run executes a full simulation against cfg.BaseURL.
func Run(ctx context.Context, cfg *Config, log logger.Logger) (*Report, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Discard()
	}
	log = log.Named("simulate")
	start := time.Now()

	log.Info(ctx, "starting simulation",
		logger.String("base_url", cfg.BaseURL),
		logger.String("group_id", cfg.GroupID),
		logger.Int("items", cfg.Items),
		logger.Int("comparisons", cfg.Comparisons),
		logger.Int("workers", cfg.Workers),
		logger.Float64("noise", cfg.Noise))

	c := newHTTPClient(cfg.BaseURL, cfg.Timeout)
	if err := checkHealth(ctx, c); err != nil {
		return nil, err
	}
	if err := ensureGroup(ctx, c, cfg.GroupID); err != nil {
		return nil, err
	}

	items, strength := hiddenOrder(cfg.Items, rand.New(rand.NewSource(cfg.Seed)))
	r := &run{cfg: cfg, client: c, log: log, pool: items, strength: strength}

	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			r.judge(ctx, rand.New(rand.NewSource(cfg.Seed+int64(id)+1)))
		}(i)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	order, err := fetchOrder(ctx, c, cfg.GroupID)
	if err != nil {
		return nil, fmt.Errorf("fetch standings: %w", err)
	}

	rep := &Report{
		Recorded:   int(r.recorded.Load()),
		Repeats:    int(r.repeats.Load()),
		Failed:     int(r.failed.Load()),
		Exhausted:  r.exhausted.Load(),
		Ranked:     len(order),
		KendallTau: KendallTau(order, strength),
		TopHit:     len(order) > 0 && order[0] == strongest(strength),
		Duration:   time.Since(start),
	}
	log.Info(ctx, "simulation finished",
		logger.Int("recorded", rep.Recorded),
		logger.Int("repeats", rep.Repeats),
		logger.Int("failed", rep.Failed),
		logger.Bool("exhausted", rep.Exhausted),
		logger.Int("ranked", rep.Ranked),
		logger.Float64("kendall_tau", rep.KendallTau),
		logger.Bool("top_hit", rep.TopHit),
		logger.Duration("duration", rep.Duration))
	return rep, nil
}

// run is the state shared by the judges of one simulation.
type run struct {
	cfg      *Config
	client   *httpClient
	log      logger.Logger
	pool     []string
	strength map[string]int

	claimed   atomic.Int64
	recorded  atomic.Int64
	repeats   atomic.Int64
	failed    atomic.Int64
	exhausted atomic.Bool
}

// judge asks for pairs and answers them until the budget is spent, the pool
// is exhausted or too many requests fail in a row.
func (r *run) judge(ctx context.Context, rng *rand.Rand) {
	path := "/groups/" + url.PathEscape(r.cfg.GroupID)
	var next *types.Pair
	failures := 0

	for ctx.Err() == nil && failures < maxConsecutiveFailures && !r.exhausted.Load() {
		if next == nil {
			var p types.Pair
			if err := r.client.do(ctx, http.MethodPost, path+"/pair", nil, types.PoolRequest{Pool: r.pool}, &p); err != nil {
				r.log.Warn(ctx, "pair request failed", logger.Error(err))
				failures++
				continue
			}
			next = &p
		}
		if next.NoMorePairs {
			r.exhausted.Store(true)
			return
		}
		if r.claimed.Add(1) > int64(r.cfg.Comparisons) {
			return
		}
		if next.Repeat {
			r.repeats.Add(1)
		}

		req := types.ComparisonRequest{
			ItemA:  next.ItemA,
			ItemB:  next.ItemB,
			Winner: r.pick(rng, next.ItemA, next.ItemB),
			Pool:   r.pool,
		}
		var rec types.Recorded
		headers := map[string]string{"Idempotency-Key": uuid.NewString()}
		if err := r.client.do(ctx, http.MethodPost, path+"/comparisons", headers, req, &rec); err != nil {
			r.log.Warn(ctx, "comparison rejected", logger.Error(err))
			r.failed.Add(1)
			failures++
			next = nil
			continue
		}
		failures = 0
		r.recorded.Add(1)
		if r.cfg.Verbose {
			r.log.Debug(ctx, "comparison recorded",
				logger.String("winner", rec.Winner.ItemID),
				logger.Float64("winner_rating", rec.Winner.Rating),
				logger.String("loser", rec.Loser.ItemID),
				logger.Float64("loser_rating", rec.Loser.Rating))
		}
		next = rec.Next
	}
}

// pick returns the truly stronger item, or with probability Noise the weaker.
func (r *run) pick(rng *rand.Rand, a, b string) string {
	better, worse := a, b
	if r.strength[b] > r.strength[a] {
		better, worse = b, a
	}
	if rng.Float64() < r.cfg.Noise {
		return worse
	}
	return better
}

func checkHealth(ctx context.Context, c *httpClient) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Join(ErrUnhealthy, err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnhealthy, resp.StatusCode)
	}
	return nil
}

// ensureGroup creates groupID unless it already exists.
func ensureGroup(ctx context.Context, c *httpClient, groupID string) error {
	body := types.CreateGroupRequest{ID: groupID, Name: "simulation " + groupID}
	err := c.do(ctx, http.MethodPost, "/groups", nil, body, nil)
	var apiErr *apiError
	if errors.As(err, &apiErr) && apiErr.Code == "group_exists" {
		return nil
	}
	if err != nil {
		return fmt.Errorf("create group: %w", err)
	}
	return nil
}

// fetchOrder pages through the group's standings, best first.
func fetchOrder(ctx context.Context, c *httpClient, groupID string) ([]string, error) {
	var order []string
	for offset := 0; ; offset += standingsPage {
		var page []types.Entry
		path := fmt.Sprintf("/groups/%s/standings?limit=%d&offset=%d", url.PathEscape(groupID), standingsPage, offset)
		if err := c.do(ctx, http.MethodGet, path, nil, nil, &page); err != nil {
			return nil, err
		}
		for _, e := range page {
			order = append(order, e.ItemID)
		}
		if len(page) < standingsPage {
			return order, nil
		}
	}
}
