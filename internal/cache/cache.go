// Package cache memoizes completed translation aggregates.
//
// The cache has two tiers. The memory tier is a capacity-bounded LRU
// ([github.com/hashicorp/golang-lru/v2]) holding recently served aggregates.
// The optional durable tier is a [DurableStore] (PostgreSQL in production,
// see [github.com/MrWong99/lingocast/internal/cache/postgres]) that outlives
// restarts; only aggregates whose mean confidence clears the persistence
// threshold are ever written there.
//
// Lookup order on [Cache.GetOrCompute] is memory, then durable (promoting a
// durable hit into memory), then the supplied compute function. Compute runs
// outside every cache lock, so concurrent misses for the same key may compute
// twice; the pipeline is deterministic, so both produce the same aggregate
// and the second Add is a harmless overwrite. Durable-tier faults are logged
// and bypassed, never surfaced to the caller.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/MrWong99/lingocast/internal/observe"
	"github.com/MrWong99/lingocast/internal/translate"
)

// Defaults applied by [New] when the matching option is not given.
const (
	// DefaultPersistThreshold is the minimum mean confidence an aggregate
	// needs before it is written to the durable tier.
	DefaultPersistThreshold = 0.90

	// DefaultWriteTimeout bounds each asynchronous durable write.
	DefaultWriteTimeout = 5 * time.Second
)

// Entry is one cached aggregate together with its confidence summary and
// access bookkeeping. The Translation is immutable; Entry counters are not,
// so entries handed to a [DurableStore] are snapshot copies.
type Entry struct {
	KeyHash     string                 `json:"key_hash"`
	Translation *translate.Translation `json:"translation"`
	Summary     translate.Summary      `json:"summary"`
	CreatedAt   time.Time              `json:"created_at"`
	AccessCount int64                  `json:"access_count"`
}

// DurableStore persists high-confidence entries across restarts. Get returns
// (nil, nil) when the key is absent. Implementations must be safe for
// concurrent use; see [postgres.Store].
type DurableStore interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Put(ctx context.Context, e *Entry) error
	Touch(ctx context.Context, key string) error
}

// Option is a functional option for [New].
type Option func(*Cache)

// WithDurable adds a durable second tier. Entries are written there
// asynchronously when their mean confidence reaches the persistence
// threshold.
func WithDurable(store DurableStore) Option {
	return func(c *Cache) { c.durable = store }
}

// WithPersistThreshold overrides the minimum mean confidence for durable
// writes. Default: [DefaultPersistThreshold].
func WithPersistThreshold(mean float64) Option {
	return func(c *Cache) { c.threshold = mean }
}

// WithWriteTimeout bounds each asynchronous durable write. Default:
// [DefaultWriteTimeout].
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Cache) { c.writeTimeout = d }
}

// WithMetrics overrides the metrics instance, mainly for tests.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// Cache is the two-tier translation cache. It implements [translate.Cache].
type Cache struct {
	mem     *lru.Cache[string, *Entry]
	durable DurableStore

	threshold    float64
	writeTimeout time.Duration
	metrics      *observe.Metrics
}

var _ translate.Cache = (*Cache)(nil)

// New builds a cache whose memory tier holds at most capacity entries.
func New(capacity int, opts ...Option) (*Cache, error) {
	c := &Cache{
		threshold:    DefaultPersistThreshold,
		writeTimeout: DefaultWriteTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}

	mem, err := lru.NewWithEvict[string, *Entry](capacity, c.onEvict)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	c.mem = mem
	return c, nil
}

// Len reports the number of entries currently in the memory tier.
func (c *Cache) Len() int { return c.mem.Len() }

// Purge drops every entry from the memory tier. The durable tier is not
// touched.
func (c *Cache) Purge() { c.mem.Purge() }

// GetOrCompute returns the aggregate for req, computing it at most when both
// tiers miss. The boolean reports whether the result came from a cache tier.
//
// A result computed under an already-cancelled context is returned to the
// caller but never cached: a cancelled fan-out may have dropped styles, and
// caching it would pin the degraded aggregate for every later request.
func (c *Cache) GetOrCompute(ctx context.Context, req translate.Request, compute translate.ComputeFunc) (*translate.Translation, bool, error) {
	key := Key(req)

	if e, ok := c.mem.Get(key); ok {
		atomic.AddInt64(&e.AccessCount, 1)
		c.metrics.RecordCacheLookup(ctx, "memory", "hit")
		return e.Translation, true, nil
	}
	c.metrics.RecordCacheLookup(ctx, "memory", "miss")

	if c.durable != nil {
		switch e, err := c.durable.Get(ctx, key); {
		case err != nil:
			observe.Logger(ctx).Warn("cache: durable read failed, bypassing",
				"key", shortKey(key), "error", err)
			c.metrics.RecordCacheLookup(ctx, "durable", "fault")
		case e != nil:
			atomic.AddInt64(&e.AccessCount, 1)
			c.mem.Add(key, e)
			c.metrics.RecordCacheLookup(ctx, "durable", "hit")
			c.touchAsync(ctx, key)
			return e.Translation, true, nil
		default:
			c.metrics.RecordCacheLookup(ctx, "durable", "miss")
		}
	}

	// The LRU carries its own internal mutex; nothing is held across compute.
	t, err := compute(ctx)
	if err != nil {
		return nil, false, err
	}
	if ctx.Err() != nil {
		return t, false, nil
	}

	e := &Entry{
		KeyHash:     key,
		Translation: t,
		Summary:     t.Summary(),
		CreatedAt:   time.Now().UTC(),
		AccessCount: 1,
	}
	c.mem.Add(key, e)

	if c.durable != nil && e.Summary.Mean >= c.threshold {
		c.persistAsync(ctx, e)
	}
	return t, false, nil
}

// onEvict is invoked by the LRU under its lock whenever capacity pushes an
// entry out. Keep it cheap.
func (c *Cache) onEvict(string, *Entry) {
	c.metrics.CacheEvictions.Add(context.Background(), 1)
}

// persistAsync writes e to the durable tier without blocking the caller. The
// write runs on a context detached from the request so a hung-up client
// cannot cancel it, but bounded by the write timeout so a stalled store
// cannot leak goroutines.
func (c *Cache) persistAsync(ctx context.Context, e *Entry) {
	snap := *e // detach the counters; Translation itself is immutable
	detached := context.WithoutCancel(ctx)
	go func() {
		wctx, cancel := context.WithTimeout(detached, c.writeTimeout)
		defer cancel()
		if err := c.durable.Put(wctx, &snap); err != nil {
			observe.Logger(detached).Warn("cache: durable write failed",
				"key", shortKey(snap.KeyHash), "error", err)
		}
	}()
}

// touchAsync bumps the durable access bookkeeping for key after a durable
// hit, off the request path.
func (c *Cache) touchAsync(ctx context.Context, key string) {
	detached := context.WithoutCancel(ctx)
	go func() {
		wctx, cancel := context.WithTimeout(detached, c.writeTimeout)
		defer cancel()
		if err := c.durable.Touch(wctx, key); err != nil {
			observe.Logger(detached).Warn("cache: durable touch failed",
				"key", shortKey(key), "error", err)
		}
	}()
}

// ── keying ──

// Key derives the deterministic cache key for req: the sha256 hex digest
// over the normalized text, both languages and the canonical preference
// string. Two requests share a key iff they are served by the identical
// aggregate, so every preference that changes output (enabled styles,
// word-by-word toggles, mother tongue) is part of the digest.
func Key(req translate.Request) string {
	h := sha256.New()
	io.WriteString(h, normalizeText(req.Text))
	io.WriteString(h, "\x00")
	io.WriteString(h, string(req.SourceLang))
	io.WriteString(h, "\x00")
	io.WriteString(h, string(req.TargetLang))
	io.WriteString(h, "\x00")
	io.WriteString(h, req.Prefs.Canonical())
	return hex.EncodeToString(h.Sum(nil))
}

// normalizeText trims and collapses runs of whitespace to single spaces.
// Case is preserved: German nouns are capitalized and the pipeline's output
// depends on it.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// shortKey truncates a key hash for log lines.
func shortKey(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
