// Package dedupe tracks idempotency keys so a retried submission is applied
// at most once.
package dedupe

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
)

const defaultMaxSize = 100_000

// Deduper records idempotency keys together with the response produced for
// them.
type Deduper interface {
	// SeenAndRecord atomically checks if key was seen and records it if not.
	// Returns true if key was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, key string) bool

	// Unrecord forgets key so the client can retry. Used when the write
	// guarded by key failed.
	Unrecord(ctx context.Context, key string)

	// Complete attaches the response produced for key.
	Complete(ctx context.Context, key string, result []byte)

	// Result returns the response attached to key. ok is false while the
	// original request is still in flight or when key is unknown.
	Result(ctx context.Context, key string) (result []byte, ok bool)

	Size() int64
}

type entry struct {
	key    string
	result []byte
	done   bool
}

// inMemoryDeduper keeps keys in insertion order and evicts the oldest
// completed key once maxSize is reached. maxSize <= 0 means unbounded.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]*list.Element
	order   *list.List // front = newest
	maxSize int
	size    atomic.Int64
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: defaultMaxSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]*list.Element)
	d.order = list.New()
	return d
}

// Key scopes a client token to a group.
func Key(groupID, token string) string {
	return groupID + "\x00" + token
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.seen[key]; exists {
		return true
	}
	if d.maxSize > 0 && len(d.seen) >= d.maxSize {
		d.evictOldest()
	}
	d.seen[key] = d.order.PushFront(&entry{key: key})
	d.size.Add(1)
	return false
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, exists := d.seen[key]; exists {
		d.order.Remove(el)
		delete(d.seen, key)
		d.size.Add(-1)
	}
}

func (d *inMemoryDeduper) Complete(_ context.Context, key string, result []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, exists := d.seen[key]; exists {
		e := el.Value.(*entry)
		e.result = append([]byte(nil), result...)
		e.done = true
	}
}

func (d *inMemoryDeduper) Result(_ context.Context, key string) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	el, exists := d.seen[key]
	if !exists {
		return nil, false
	}
	e := el.Value.(*entry)
	if !e.done {
		return nil, false
	}
	return append([]byte(nil), e.result...), true
}

// evictOldest drops the least recently added completed key. Keys still in
// flight are never evicted, so the cache may exceed maxSize while every held
// key is in flight. Caller holds d.mu.
func (d *inMemoryDeduper) evictOldest() {
	for el := d.order.Back(); el != nil; el = el.Prev() {
		e := el.Value.(*entry)
		if !e.done {
			continue
		}
		d.order.Remove(el)
		delete(d.seen, e.key)
		d.size.Add(-1)
		return
	}
}

// Size returns the current number of tracked keys.
func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
