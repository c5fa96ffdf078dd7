package factcache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"claimlens/internal/config"
	"claimlens/internal/jobs"
	"claimlens/internal/logging"
	"claimlens/internal/textutil"
)

// Entry is one cached verdict. Entries carry no claim identity; the same
// verdict serves every claim that normalizes to the entry's key.
type Entry struct {
	Verdict     jobs.Verdict  `json:"verdict"`
	Confidence  float64       `json:"confidence"`
	Explanation string        `json:"explanation,omitempty"`
	Sources     []jobs.Source `json:"sources,omitempty"`
	CheckedAt   time.Time     `json:"checked_at"`
}

// KV is the durable cache tier contract.
type KV interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Put(ctx context.Context, key string, entry Entry) error
	Close() error
}

// Key returns the cache key for a claim sentence.
func Key(claimText string) string {
	return textutil.NormalizeClaim(claimText)
}

// Cache provides thread-safe two-tier verdict storage.
type Cache struct {
	logger  *slog.Logger
	mu      sync.Mutex
	lru     *lruTier
	durable KV
}

// New constructs a cache with the given LRU capacity over an optional
// durable tier. A nil durable tier leaves the cache purely in-process.
func New(capacity int, durable KV, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Cache{
		logger:  logging.NewComponentLogger(logger, "factcache"),
		lru:     newLRUTier(capacity),
		durable: durable,
	}
}

// FromConfig constructs the cache with the configured durable backend.
func FromConfig(cfg *config.Config, logger *slog.Logger) (*Cache, error) {
	var (
		durable KV
		err     error
	)
	switch cfg.Cache.Backend {
	case "redis":
		durable = NewRedisKV(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
	default:
		durable, err = OpenSQLiteKV(cfg)
		if err != nil {
			return nil, fmt.Errorf("open sqlite cache tier: %w", err)
		}
	}
	return New(cfg.Cache.InProcessCapacity, durable, logger), nil
}

// Get returns the cached verdict for a claim sentence. Durable-tier hits are
// promoted into the LRU so repeats stay on the fast path. Durable-tier
// errors degrade to a miss; the cache never fails a lookup.
func (c *Cache) Get(ctx context.Context, claimText string) (Entry, bool) {
	key := Key(claimText)
	if key == "" {
		return Entry{}, false
	}

	c.mu.Lock()
	if entry, ok := c.lru.get(key); ok {
		c.mu.Unlock()
		return entry, true
	}
	c.mu.Unlock()

	if c.durable == nil {
		return Entry{}, false
	}
	entry, found, err := c.durable.Get(ctx, key)
	if err != nil {
		c.logger.Warn("durable cache lookup failed",
			logging.String(logging.FieldEventType, "factcache_lookup_failed"),
			logging.Error(err))
		return Entry{}, false
	}
	if !found {
		return Entry{}, false
	}

	c.mu.Lock()
	c.lru.put(key, entry)
	c.mu.Unlock()
	return entry, true
}

// Put stores a verdict in both tiers. Degraded results are skipped so a
// transient verification failure does not pin unverifiable onto the claim.
func (c *Cache) Put(ctx context.Context, claimText string, result jobs.FactCheck) error {
	if result.Degraded {
		return nil
	}
	key := Key(claimText)
	if key == "" {
		return nil
	}

	entry := Entry{
		Verdict:     result.Verdict,
		Confidence:  result.Confidence,
		Explanation: result.Explanation,
		Sources:     result.Sources,
		CheckedAt:   time.Now().UTC(),
	}

	c.mu.Lock()
	c.lru.put(key, entry)
	c.mu.Unlock()

	if c.durable == nil {
		return nil
	}
	if err := c.durable.Put(ctx, key, entry); err != nil {
		return fmt.Errorf("persist verdict: %w", err)
	}
	return nil
}

// Partition splits claims into cache hits keyed by claim ID and the ordered
// remainder that needs a fresh verification call.
func (c *Cache) Partition(ctx context.Context, claims []jobs.Claim) (map[string]Entry, []jobs.Claim) {
	hits := make(map[string]Entry)
	var misses []jobs.Claim
	for _, claim := range claims {
		if entry, ok := c.Get(ctx, claim.Text); ok {
			hits[claim.ID] = entry
			continue
		}
		misses = append(misses, claim)
	}
	return hits, misses
}

// Result converts a cached entry back into a per-claim fact check.
func (e Entry) Result(claimID string) jobs.FactCheck {
	return jobs.FactCheck{
		ClaimID:     claimID,
		Verdict:     e.Verdict,
		Confidence:  e.Confidence,
		Explanation: e.Explanation,
		Sources:     e.Sources,
		FromCache:   true,
	}
}

// Len reports the number of entries in the in-process tier.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.len()
}

// Close releases the durable tier.
func (c *Cache) Close() error {
	if c == nil || c.durable == nil {
		return nil
	}
	return c.durable.Close()
}
