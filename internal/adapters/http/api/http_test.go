package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/okian/duel/internal/adapters/http/api"
	"github.com/okian/duel/internal/domain/dedupe"
	"github.com/okian/duel/internal/domain/model"
	"github.com/okian/duel/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

// mockDeps implements api.Dependencies over in-memory state.
type mockDeps struct {
	dedupe.Deduper

	mu        sync.Mutex
	groups    map[string]model.Group
	records   int
	recordErr error
	selection model.Selection
	progress  model.Progress
	standings []model.StandingEntry
	history   []model.ComparisonRecord
	lastLimit int
	lastOff   int
	lastItem  string
	lastPool  []string
	deleteErr error
}

func newMockDeps() *mockDeps {
	return &mockDeps{
		Deduper: dedupe.NewInMemoryDeduper(),
		groups:  map[string]model.Group{"p": {ID: "p", Name: "Playlist"}},
	}
}

func (m *mockDeps) CreateGroup(_ context.Context, id, name string, library bool) (model.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if strings.TrimSpace(name) == "" {
		return model.Group{}, model.ErrInvalidGroup
	}
	if id == "" {
		id = "generated"
	}
	if _, ok := m.groups[id]; ok {
		return model.Group{}, model.ErrGroupExists
	}
	g := model.Group{ID: id, Name: name, IsLibrary: library, CreatedAt: time.Now().UTC()}
	m.groups[id] = g
	return g, nil
}

func (m *mockDeps) GetGroup(_ context.Context, id string) (model.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[id]
	if !ok {
		return model.Group{}, model.ErrUnknownGroup
	}
	return g, nil
}

func (m *mockDeps) ListGroups(context.Context) ([]model.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Group, 0, len(m.groups))
	for _, g := range m.groups {
		out = append(out, g)
	}
	return out, nil
}

func (m *mockDeps) DeleteGroup(ctx context.Context, id string, force bool) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, err := m.GetGroup(ctx, id); err != nil {
		return err
	}
	if !force {
		return model.ErrGroupHasRatings
	}
	m.mu.Lock()
	delete(m.groups, id)
	m.mu.Unlock()
	return nil
}

func (m *mockDeps) SelectPair(ctx context.Context, groupID string, pool []string) (model.Selection, error) {
	if _, err := m.GetGroup(ctx, groupID); err != nil {
		return model.Selection{}, err
	}
	m.lastPool = pool
	return m.selection, nil
}

func (m *mockDeps) RecordAndSelect(ctx context.Context, groupID, a, b, winner string, pool []string) (model.RecordResult, error) {
	if _, err := m.GetGroup(ctx, groupID); err != nil {
		return model.RecordResult{}, err
	}
	if m.recordErr != nil {
		return model.RecordResult{}, m.recordErr
	}
	if a == b || (winner != a && winner != b) {
		return model.RecordResult{}, fmt.Errorf("%w: bad outcome", model.ErrInvalidComparison)
	}
	m.mu.Lock()
	m.records++
	id := int64(m.records)
	m.mu.Unlock()

	loser := a
	if winner == a {
		loser = b
	}
	lo, hi := model.CanonicalPair(a, b)
	res := model.RecordResult{UpdatedRatings: model.UpdatedRatings{
		Winner:     model.RatingEntry{GroupID: groupID, ItemID: winner, Rating: 1516, Comparisons: 1, Wins: 1},
		Loser:      model.RatingEntry{GroupID: groupID, ItemID: loser, Rating: 1484, Comparisons: 1, Losses: 1},
		Comparison: model.ComparisonRecord{ID: id, GroupID: groupID, ItemA: lo, ItemB: hi, Winner: winner},
	}}
	if pool != nil {
		next := m.selection
		res.Next = &next
	}
	return res, nil
}

func (m *mockDeps) Progress(ctx context.Context, groupID string, pool []string) (model.Progress, error) {
	if _, err := m.GetGroup(ctx, groupID); err != nil {
		return model.Progress{}, err
	}
	p := m.progress
	p.PoolSize = len(pool)
	return p, nil
}

func (m *mockDeps) Standings(ctx context.Context, groupID string, limit, offset int) ([]model.StandingEntry, error) {
	if _, err := m.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}
	m.lastLimit, m.lastOff = limit, offset
	return m.standings, nil
}

func (m *mockDeps) Rank(ctx context.Context, groupID, itemID string) (model.StandingEntry, error) {
	if _, err := m.GetGroup(ctx, groupID); err != nil {
		return model.StandingEntry{}, err
	}
	m.lastItem = itemID
	for _, s := range m.standings {
		if s.ItemID == itemID {
			return s, nil
		}
	}
	return model.StandingEntry{}, model.ErrNotFound
}

func (m *mockDeps) History(ctx context.Context, groupID string, beforeID int64, limit int) ([]model.ComparisonRecord, error) {
	if _, err := m.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}
	m.lastLimit = limit
	return m.history, nil
}

type mockStatsProvider struct {
	stats map[string]any
}

func (m *mockStatsProvider) GetStats() map[string]any { return m.stats }

type mockSubscriber struct {
	groupID string
}

func (m *mockSubscriber) ServeGroup(w http.ResponseWriter, _ *http.Request, groupID string) {
	m.groupID = groupID
	w.WriteHeader(http.StatusAccepted)
}

func (m *mockSubscriber) Total() int { return 3 }

func newMux(deps *mockDeps, opts ...api.Option) *http.ServeMux {
	server := api.NewServer(deps, &mockStatsProvider{stats: map[string]any{"started": true}}, opts...)
	mux := http.NewServeMux()
	server.Register(context.Background(), mux)
	return mux
}

func do(mux http.Handler, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decodeError(w *httptest.ResponseRecorder) map[string]string {
	var out map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return out
}

func TestServer_Register(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		deps := newMockDeps()
		mux := newMux(deps)

		Convey("Then the health endpoint serves metrics", func() {
			w := do(mux, "GET", "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("Then the stats endpoint serves JSON", func() {
			w := do(mux, "GET", "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var stats map[string]any
			So(json.Unmarshal(w.Body.Bytes(), &stats), ShouldBeNil)
			So(stats["started"], ShouldEqual, true)
			_, hasSubs := stats["subscribers"]
			So(hasSubs, ShouldBeFalse)
		})

		Convey("Then unknown paths are not found", func() {
			w := do(mux, "GET", "/unknown", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Then wrong methods are rejected", func() {
			w := do(mux, "GET", "/groups/p/pair", "")
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})

		Convey("Then the change stream is absent without a subscriber", func() {
			w := do(mux, "GET", "/groups/p/ws", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestGroupsHandler(t *testing.T) {
	Convey("Given a groups endpoint", t, func() {
		deps := newMockDeps()
		mux := newMux(deps)

		Convey("When creating a group", func() {
			w := do(mux, "POST", "/groups", `{"id":"road","name":"Road trip"}`)

			Convey("Then it is created", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				So(w.Header().Get("Location"), ShouldEqual, "/groups/road")
				var g types.Group
				So(json.Unmarshal(w.Body.Bytes(), &g), ShouldBeNil)
				So(g.ID, ShouldEqual, "road")
				So(g.Name, ShouldEqual, "Road trip")
			})
		})

		Convey("When the id needs escaping", func() {
			w := do(mux, "POST", "/groups", `{"id":"road trip","name":"Road trip"}`)

			Convey("Then the location is a routable path", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				So(w.Header().Get("Location"), ShouldEqual, "/groups/road%20trip")

				got := do(mux, "GET", w.Header().Get("Location"), "")
				So(got.Code, ShouldEqual, http.StatusOK)
			})
		})

		Convey("When the name is blank", func() {
			w := do(mux, "POST", "/groups", `{"name":" "}`)

			Convey("Then it is a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decodeError(w)["code"], ShouldEqual, "invalid_group")
			})
		})

		Convey("When the id is taken", func() {
			w := do(mux, "POST", "/groups", `{"id":"p","name":"Again"}`)

			Convey("Then it conflicts", func() {
				So(w.Code, ShouldEqual, http.StatusConflict)
				So(decodeError(w)["code"], ShouldEqual, "group_exists")
			})
		})

		Convey("When the body is not JSON", func() {
			w := do(mux, "POST", "/groups", `{`)

			Convey("Then it is a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When listing and fetching groups", func() {
			list := do(mux, "GET", "/groups", "")
			one := do(mux, "GET", "/groups/p", "")
			missing := do(mux, "GET", "/groups/nope", "")

			Convey("Then both succeed and unknown ids are not found", func() {
				So(list.Code, ShouldEqual, http.StatusOK)
				So(list.Body.String(), ShouldContainSubstring, `"id":"p"`)
				So(one.Code, ShouldEqual, http.StatusOK)
				So(missing.Code, ShouldEqual, http.StatusNotFound)
				So(decodeError(missing)["code"], ShouldEqual, "unknown_group")
			})
		})

		Convey("When deleting a group", func() {
			Convey("Without force it conflicts", func() {
				w := do(mux, "DELETE", "/groups/p", "")
				So(w.Code, ShouldEqual, http.StatusConflict)
				So(decodeError(w)["code"], ShouldEqual, "group_has_ratings")
			})

			Convey("With force it is removed", func() {
				w := do(mux, "DELETE", "/groups/p?force=true", "")
				So(w.Code, ShouldEqual, http.StatusNoContent)
				So(do(mux, "GET", "/groups/p", "").Code, ShouldEqual, http.StatusNotFound)
			})

			Convey("With a malformed force flag it is a bad request", func() {
				w := do(mux, "DELETE", "/groups/p?force=maybe", "")
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})

			Convey("The library group is protected", func() {
				deps.deleteErr = model.ErrProtectedGroup
				w := do(mux, "DELETE", "/groups/all?force=true", "")
				So(w.Code, ShouldEqual, http.StatusConflict)
				So(decodeError(w)["code"], ShouldEqual, "protected_group")
			})
		})
	})
}

func TestPairAndProgressHandlers(t *testing.T) {
	Convey("Given pair and progress endpoints", t, func() {
		deps := newMockDeps()
		deps.selection = model.Selection{ItemA: "C", ItemB: "A"}
		deps.progress = model.Progress{GroupID: "p", ComparisonsRecorded: 1, CoverageTarget: 5}
		mux := newMux(deps)

		Convey("When selecting a pair", func() {
			w := do(mux, "POST", "/groups/p/pair", `{"pool":["A","B","C"]}`)

			Convey("Then the pair is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var p types.Pair
				So(json.Unmarshal(w.Body.Bytes(), &p), ShouldBeNil)
				So(p.ItemA, ShouldEqual, "C")
				So(p.ItemB, ShouldEqual, "A")
				So(deps.lastPool, ShouldResemble, []string{"A", "B", "C"})
			})
		})

		Convey("When the pool is exhausted", func() {
			deps.selection = model.Selection{NoMorePairs: true}
			w := do(mux, "POST", "/groups/p/pair", `{"pool":["A"]}`)

			Convey("Then no_more_pairs is reported with 200", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"no_more_pairs":true`)
			})
		})

		Convey("When the group is unknown", func() {
			w := do(mux, "POST", "/groups/nope/pair", `{"pool":["A","B"]}`)

			Convey("Then it is not found", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When the body is empty", func() {
			w := do(mux, "POST", "/groups/p/pair", "")

			Convey("Then it is a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When asking for progress", func() {
			w := do(mux, "POST", "/groups/p/progress", `{"pool":["A","B","C"]}`)

			Convey("Then counts are returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var p types.Progress
				So(json.Unmarshal(w.Body.Bytes(), &p), ShouldBeNil)
				So(p.ComparisonsRecorded, ShouldEqual, 1)
				So(p.PoolSize, ShouldEqual, 3)
				So(p.CoverageTarget, ShouldEqual, 5)
			})
		})
	})
}

func TestComparisonsHandler(t *testing.T) {
	Convey("Given a comparisons endpoint", t, func() {
		deps := newMockDeps()
		deps.selection = model.Selection{ItemA: "C", ItemB: "B"}
		mux := newMux(deps)

		Convey("When recording an outcome with a pool", func() {
			w := do(mux, "POST", "/groups/p/comparisons", `{"item_a":"B","item_b":"A","winner":"A","pool":["A","B","C"]}`)

			Convey("Then updated ratings and the next pair are returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var res types.Recorded
				So(json.Unmarshal(w.Body.Bytes(), &res), ShouldBeNil)
				So(res.Winner.ItemID, ShouldEqual, "A")
				So(res.Loser.ItemID, ShouldEqual, "B")
				So(res.Comparison.ItemA, ShouldEqual, "A")
				So(res.Next, ShouldNotBeNil)
				So(res.Next.ItemA, ShouldEqual, "C")
			})
		})

		Convey("When the outcome is invalid", func() {
			w := do(mux, "POST", "/groups/p/comparisons", `{"item_a":"A","item_b":"B","winner":"Z"}`)

			Convey("Then it is a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decodeError(w)["code"], ShouldEqual, "invalid_comparison")
			})
		})

		Convey("When the same idempotency key is sent twice", func() {
			body := `{"item_a":"A","item_b":"B","winner":"A"}`
			first := do(mux, "POST", "/groups/p/comparisons", body, "Idempotency-Key", "k1")
			second := do(mux, "POST", "/groups/p/comparisons", body, "Idempotency-Key", "k1")

			Convey("Then the outcome is recorded once and replayed", func() {
				So(first.Code, ShouldEqual, http.StatusOK)
				So(second.Code, ShouldEqual, http.StatusOK)
				So(second.Header().Get("Idempotent-Replay"), ShouldEqual, "true")
				So(second.Body.String(), ShouldEqual, first.Body.String())
				So(deps.records, ShouldEqual, 1)
			})

			Convey("And the key is scoped to the group", func() {
				deps.groups["q"] = model.Group{ID: "q", Name: "Other"}
				w := do(mux, "POST", "/groups/q/comparisons", body, "Idempotency-Key", "k1")
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Header().Get("Idempotent-Replay"), ShouldBeEmpty)
				So(deps.records, ShouldEqual, 2)
			})
		})

		Convey("When a keyed request is still in flight", func() {
			deps.SeenAndRecord(context.Background(), dedupe.Key("p", "k2"))
			w := do(mux, "POST", "/groups/p/comparisons", `{"item_a":"A","item_b":"B","winner":"A"}`, "Idempotency-Key", "k2")

			Convey("Then the retry conflicts", func() {
				So(w.Code, ShouldEqual, http.StatusConflict)
				So(decodeError(w)["code"], ShouldEqual, "in_flight")
				So(deps.records, ShouldEqual, 0)
			})
		})

		Convey("When the store is unavailable", func() {
			deps.recordErr = fmt.Errorf("%w: record: database is locked", model.ErrStoreUnavailable)
			body := `{"item_a":"A","item_b":"B","winner":"A"}`
			w := do(mux, "POST", "/groups/p/comparisons", body, "Idempotency-Key", "k3")

			Convey("Then the client is told to retry without driver details", func() {
				So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
				So(w.Header().Get("Retry-After"), ShouldEqual, "1")
				So(w.Body.String(), ShouldNotContainSubstring, "locked")
			})

			Convey("And the key is released for the retry", func() {
				deps.recordErr = nil
				retry := do(mux, "POST", "/groups/p/comparisons", body, "Idempotency-Key", "k3")
				So(retry.Code, ShouldEqual, http.StatusOK)
				So(retry.Header().Get("Idempotent-Replay"), ShouldBeEmpty)
				So(deps.records, ShouldEqual, 1)
			})
		})

		Convey("When reading the ledger", func() {
			deps.history = []model.ComparisonRecord{{ID: 2, ItemA: "A", ItemB: "C", Winner: "C"}, {ID: 1, ItemA: "A", ItemB: "B", Winner: "A"}}

			Convey("Then rows are returned with the default limit", func() {
				w := do(mux, "GET", "/groups/p/comparisons", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				var rows []types.Comparison
				So(json.Unmarshal(w.Body.Bytes(), &rows), ShouldBeNil)
				So(rows, ShouldHaveLength, 2)
				So(rows[0].ID, ShouldEqual, 2)
				So(deps.lastLimit, ShouldEqual, 50)
			})

			Convey("Then a bad cursor is rejected", func() {
				w := do(mux, "GET", "/groups/p/comparisons?before=-1", "")
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})
	})
}

func TestStandingsAndRankHandlers(t *testing.T) {
	Convey("Given standings and rank endpoints", t, func() {
		deps := newMockDeps()
		deps.standings = []model.StandingEntry{
			{Rank: 1, RatingEntry: model.RatingEntry{ItemID: "spotify/track/1", Rating: 1516}},
			{Rank: 2, RatingEntry: model.RatingEntry{ItemID: "B", Rating: 1484}},
		}
		mux := newMux(deps, api.WithMaxListLimit(10))

		Convey("When requesting standings", func() {
			w := do(mux, "GET", "/groups/p/standings?limit=5&offset=1", "")

			Convey("Then limit and offset are passed through", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.lastLimit, ShouldEqual, 5)
				So(deps.lastOff, ShouldEqual, 1)
				var entries []types.Entry
				So(json.Unmarshal(w.Body.Bytes(), &entries), ShouldBeNil)
				So(entries[0].Rank, ShouldEqual, 1)
			})
		})

		Convey("When the limit is out of range", func() {
			zero := do(mux, "GET", "/groups/p/standings?limit=0", "")
			big := do(mux, "GET", "/groups/p/standings?limit=11", "")
			junk := do(mux, "GET", "/groups/p/standings?limit=abc", "")

			Convey("Then it is a bad request", func() {
				So(zero.Code, ShouldEqual, http.StatusBadRequest)
				So(big.Code, ShouldEqual, http.StatusBadRequest)
				So(decodeError(big)["code"], ShouldEqual, "limit_exceeded")
				So(junk.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When requesting an item whose id contains slashes", func() {
			w := do(mux, "GET", "/groups/p/items/spotify/track/1", "")

			Convey("Then the whole id is used", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.lastItem, ShouldEqual, "spotify/track/1")
			})
		})

		Convey("When the item was never compared", func() {
			w := do(mux, "GET", "/groups/p/items/Z", "")

			Convey("Then it is not found", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
				So(decodeError(w)["code"], ShouldEqual, "not_found")
			})
		})
	})
}

func TestStreamRoute(t *testing.T) {
	Convey("Given a server with a change stream", t, func() {
		deps := newMockDeps()
		sub := &mockSubscriber{}
		mux := newMux(deps, api.WithSubscriber(sub))

		Convey("When subscribing to a known group", func() {
			w := do(mux, "GET", "/groups/p/ws", "")

			Convey("Then the subscriber serves it", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				So(sub.groupID, ShouldEqual, "p")
			})
		})

		Convey("When subscribing to an unknown group", func() {
			w := do(mux, "GET", "/groups/nope/ws", "")

			Convey("Then it is not found", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
				So(sub.groupID, ShouldBeEmpty)
			})
		})

		Convey("When reading stats", func() {
			w := do(mux, "GET", "/stats", "")

			Convey("Then subscribers are counted", func() {
				So(w.Body.String(), ShouldContainSubstring, `"subscribers":3`)
			})
		})
	})
}

func TestErrorHelpers(t *testing.T) {
	Convey("Given the error helpers", t, func() {
		Convey("Wrap keeps the cause", func() {
			err := api.Wrap("api.op", model.ErrNotFound)
			So(err, ShouldWrap, model.ErrNotFound)
			So(err.Error(), ShouldEqual, "api.op: not found")
			So(api.Wrap("api.op", nil), ShouldBeNil)
		})

		Convey("WrapKind keeps both kind and cause", func() {
			cause := fmt.Errorf("boom")
			err := api.WrapKind("api.op", api.ErrBadRequest, cause)
			So(err, ShouldWrap, api.ErrBadRequest)
			So(err, ShouldWrap, cause)
			So(api.WrapKind("api.op", api.ErrBadRequest, nil), ShouldWrap, api.ErrBadRequest)
		})

		Convey("NewKind attributes the kind", func() {
			So(api.NewKind("api.op", api.ErrInFlight).Error(), ShouldStartWith, "api.op: ")
		})
	})
}

func TestMetricsMiddleware(t *testing.T) {
	Convey("Given a wrapped handler", t, func() {
		h := api.MetricsMiddleware(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTeapot)
			_, _ = w.Write([]byte("short and stout"))
		}, "teapot")

		Convey("When it is called", func() {
			w := httptest.NewRecorder()
			h(w, httptest.NewRequest("GET", "/teapot", nil))

			Convey("Then the response passes through", func() {
				So(w.Code, ShouldEqual, http.StatusTeapot)
				So(w.Body.String(), ShouldEqual, "short and stout")
			})
		})
	})
}
