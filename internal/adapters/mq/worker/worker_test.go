package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	queue "github.com/okian/duel/internal/adapters/mq/queue"
	worker "github.com/okian/duel/internal/adapters/mq/worker"
	model "github.com/okian/duel/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recordingSink captures delivered changes and can fail selected groups.
type recordingSink struct {
	mu        sync.Mutex
	delivered []model.Change
	failFor   map[string]error
	block     chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{failFor: make(map[string]error)}
}

func (s *recordingSink) Deliver(ctx context.Context, c model.Change) error {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failFor[c.GroupID]; ok {
		return err
	}
	s.delivered = append(s.delivered, c)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.delivered)
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker on a queue", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(16))
		sink := newRecordingSink()
		w := worker.NewInMemoryWorker(q, sink, worker.WithName("w1"))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("When changes are enqueued", func() {
			q.Enqueue(ctx, model.Change{ID: "c1", GroupID: "g", Items: []string{"a", "b"}})
			q.Enqueue(ctx, model.Change{ID: "c2", GroupID: "g", Items: []string{"b", "c"}})

			convey.Convey("Then they reach the sink in order", func() {
				convey.So(waitFor(func() bool { return sink.count() == 2 }), convey.ShouldBeTrue)
				convey.So(sink.delivered[0].ID, convey.ShouldEqual, "c1")
				convey.So(sink.delivered[1].Items, convey.ShouldResemble, []string{"b", "c"})
				convey.So(w.Shutdown(context.Background()), convey.ShouldBeNil)
			})
		})

		convey.Convey("When the sink fails for one group", func() {
			sink.failFor["bad"] = errors.New("subscriber gone")
			q.Enqueue(ctx, model.Change{ID: "c1", GroupID: "bad"})
			q.Enqueue(ctx, model.Change{ID: "c2", GroupID: "good"})

			convey.Convey("Then the worker keeps going", func() {
				convey.So(waitFor(func() bool { return sink.count() == 1 }), convey.ShouldBeTrue)
				convey.So(sink.delivered[0].GroupID, convey.ShouldEqual, "good")
				convey.So(w.Shutdown(context.Background()), convey.ShouldBeNil)
			})
		})

		convey.Convey("When the queue is closed", func() {
			_ = q.Close()

			convey.Convey("Then the worker stops on its own", func() {
				convey.So(waitFor(func() bool {
					select {
					case <-w.Done():
						return true
					default:
						return false
					}
				}), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the context is cancelled", func() {
			cancel()

			convey.Convey("Then the worker stops", func() {
				select {
				case <-w.Done():
				case <-time.After(time.Second):
					convey.So("worker did not stop", convey.ShouldBeEmpty)
				}
				convey.So(w.Shutdown(context.Background()), convey.ShouldBeNil)
			})
		})
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a pool of workers", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(1000))
		sink := newRecordingSink()
		pool := worker.NewPool(4, q, sink)
		ctx := context.Background()

		convey.So(pool.Size(), convey.ShouldEqual, 4)

		convey.Convey("When many changes are enqueued concurrently", func() {
			pool.Start(ctx)
			var wg sync.WaitGroup
			for p := 0; p < 5; p++ {
				wg.Add(1)
				go func(p int) {
					defer wg.Done()
					for i := 0; i < 100; i++ {
						q.Enqueue(ctx, model.Change{ID: fmt.Sprintf("c-%d-%d", p, i), GroupID: "g"})
					}
				}(p)
			}
			wg.Wait()

			convey.Convey("Then shutdown drains every queued change", func() {
				convey.So(pool.Shutdown(ctx), convey.ShouldBeNil)
				convey.So(sink.count(), convey.ShouldEqual, 500)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the pool was never started", func() {
			convey.Convey("Then shutdown returns immediately", func() {
				convey.So(pool.Shutdown(ctx), convey.ShouldBeNil)
			})
		})

		convey.Convey("When a delivery hangs past the shutdown deadline", func() {
			sink.block = make(chan struct{})
			pool.Start(ctx)
			q.Enqueue(ctx, model.Change{ID: "stuck", GroupID: "g"})
			time.Sleep(20 * time.Millisecond)

			sctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
			defer cancel()
			done := make(chan error, 1)
			go func() { done <- pool.Shutdown(sctx) }()
			time.Sleep(100 * time.Millisecond)
			close(sink.block)

			convey.Convey("Then shutdown reports the timeout", func() {
				convey.So(<-done, convey.ShouldEqual, worker.ErrShutdownTimeout)
			})
		})

		convey.Convey("When created with a non-positive count", func() {
			p := worker.NewPool(0, queue.NewInMemoryQueue(), sink)

			convey.Convey("Then it defaults to at least one worker", func() {
				convey.So(p.Size(), convey.ShouldBeGreaterThan, 0)
			})
		})
	})
}

func TestSinkFunc(t *testing.T) {
	convey.Convey("Given a SinkFunc", t, func() {
		var got string
		f := worker.SinkFunc(func(_ context.Context, c worker.Change) error {
			got = c.ID
			return nil
		})

		convey.So(f.Deliver(context.Background(), model.Change{ID: "x"}), convey.ShouldBeNil)
		convey.So(got, convey.ShouldEqual, "x")
	})
}
