// Package cache provides the two-tier cache normalized schema
// documents live in: a process-local layer consulted first, backed by
// an optional shared persistent store with TTL-governed entries.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Store is the shared-tier contract: any key→value store supporting
// get/set/delete with TTL. A nil, nil Get means the key is absent.
type Store interface {
	// Get retrieves a value. Returns nil, nil if the key doesn't exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with an optional TTL. A zero ttl means the
	// value should not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Clear removes all values.
	Clear(ctx context.Context) error
}

// Codec converts cached values to and from the byte representation the
// shared tier stores.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte) (any, error)
}

// Stats is a point-in-time snapshot of cache effectiveness counters.
type Stats struct {
	LocalHits  int64
	SharedHits int64
	Misses     int64
}

// entry is one local-tier value with its population version.
type entry struct {
	value   any
	version uint64
}

// Tiered composes the process-local layer with an optional shared
// Store. Reads check local first, then shared (populating local on a
// shared hit). Writes go through both tiers. Shared-tier failures
// degrade to local-only caching with a warning; they never fail the
// request.
//
// Population is not serialized by default: concurrent misses on the
// same key may each compute and write the same entry, last writer
// wins. WithSingleflight opts into deduplication.
type Tiered struct {
	mu    sync.RWMutex
	local map[string]entry

	shared Store
	codec  Codec
	ttl    time.Duration
	log    *slog.Logger

	sf      *singleflight.Group
	version atomic.Uint64

	localHits  atomic.Int64
	sharedHits atomic.Int64
	misses     atomic.Int64
}

// Option configures a Tiered cache.
type Option func(*Tiered)

// WithShared attaches a shared store and the codec and TTL governing
// its entries.
func WithShared(store Store, codec Codec, ttl time.Duration) Option {
	return func(t *Tiered) {
		t.shared = store
		t.codec = codec
		t.ttl = ttl
	}
}

// WithSingleflight serializes concurrent population of the same key.
func WithSingleflight() Option {
	return func(t *Tiered) {
		t.sf = &singleflight.Group{}
	}
}

// WithLogger sets the logger used for shared-tier degradation warnings.
func WithLogger(log *slog.Logger) Option {
	return func(t *Tiered) {
		t.log = log
	}
}

// NewTiered returns a Tiered cache.
func NewTiered(opts ...Option) *Tiered {
	t := &Tiered{
		local: make(map[string]entry),
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Get returns the cached value for key, consulting local then shared.
func (t *Tiered) Get(ctx context.Context, key string) (any, bool) {
	t.mu.RLock()
	e, ok := t.local[key]
	t.mu.RUnlock()
	if ok {
		t.localHits.Add(1)
		return e.value, true
	}
	if v, ok := t.sharedGet(ctx, key); ok {
		t.sharedHits.Add(1)
		t.storeLocal(key, v)
		return v, true
	}
	t.misses.Add(1)
	return nil, false
}

// GetOrCompute returns the cached value for key, computing and
// populating both tiers on a full miss.
func (t *Tiered) GetOrCompute(ctx context.Context, key string, compute func() (any, error)) (any, error) {
	if v, ok := t.Get(ctx, key); ok {
		return v, nil
	}
	fill := func() (any, error) {
		v, err := compute()
		if err != nil {
			return nil, err
		}
		t.Set(ctx, key, v)
		return v, nil
	}
	if t.sf == nil {
		return fill()
	}
	v, err, _ := t.sf.Do(key, fill)
	return v, err
}

// Set populates both tiers for key.
func (t *Tiered) Set(ctx context.Context, key string, v any) {
	t.storeLocal(key, v)
	if t.shared == nil {
		return
	}
	data, err := t.codec.Marshal(v)
	if err != nil {
		t.log.Warn("schema cache: encode for shared tier failed", "key", key, "err", err)
		return
	}
	if err := t.shared.Set(ctx, key, data, t.ttl); err != nil {
		t.log.Warn("schema cache: shared tier write failed, degrading to local", "key", key, "err", err)
	}
}

// Delete invalidates key in both tiers. Absent keys are not an error.
func (t *Tiered) Delete(ctx context.Context, key string) {
	t.mu.Lock()
	delete(t.local, key)
	t.mu.Unlock()
	if t.shared != nil {
		if err := t.shared.Delete(ctx, key); err != nil {
			t.log.Warn("schema cache: shared tier delete failed", "key", key, "err", err)
		}
	}
}

// Clear invalidates every entry in both tiers.
func (t *Tiered) Clear(ctx context.Context) {
	t.mu.Lock()
	t.local = make(map[string]entry)
	t.mu.Unlock()
	if t.shared != nil {
		if err := t.shared.Clear(ctx); err != nil {
			t.log.Warn("schema cache: shared tier clear failed", "err", err)
		}
	}
}

// ResetLocal drops the process-local layer only. Callers scoping the
// local tier to a logical request call this at request end.
func (t *Tiered) ResetLocal() {
	t.mu.Lock()
	t.local = make(map[string]entry)
	t.mu.Unlock()
}

// Stats returns the current hit/miss counters.
func (t *Tiered) Stats() Stats {
	return Stats{
		LocalHits:  t.localHits.Load(),
		SharedHits: t.sharedHits.Load(),
		Misses:     t.misses.Load(),
	}
}

// Version returns the version assigned to the most recent population.
// Versions increase monotonically and order invalidation races.
func (t *Tiered) Version(key string) (uint64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.local[key]
	return e.version, ok
}

func (t *Tiered) storeLocal(key string, v any) {
	ver := t.version.Add(1)
	t.mu.Lock()
	t.local[key] = entry{value: v, version: ver}
	t.mu.Unlock()
}

func (t *Tiered) sharedGet(ctx context.Context, key string) (any, bool) {
	if t.shared == nil {
		return nil, false
	}
	data, err := t.shared.Get(ctx, key)
	if err != nil {
		t.log.Warn("schema cache: shared tier read failed, degrading to local", "key", key, "err", err)
		return nil, false
	}
	if data == nil {
		return nil, false
	}
	v, err := t.codec.Unmarshal(data)
	if err != nil {
		t.log.Warn("schema cache: decode from shared tier failed", "key", key, "err", err)
		return nil, false
	}
	return v, true
}
