// Package cache is a similarity-keyed result cache. Lookups match prior
// queries by feature signature rather than exact text.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/ricesearch/quickquery/internal/config"
	"github.com/ricesearch/quickquery/internal/kvstore"
	"github.com/ricesearch/quickquery/internal/pkg/logger"
	"github.com/ricesearch/quickquery/internal/pkg/security"
	"github.com/ricesearch/quickquery/internal/result"
)

// Storage keys.
const (
	EntriesKey = "cache:entries"
	StatsKey   = "cache:stats"
)

// Defaults.
const (
	DefaultTTL        = 10 * time.Minute
	DefaultMaxEntries = 100
	DefaultThreshold  = 0.75
	DefaultTruncateTo = 50
)

// Entry is a cached answer. Entries are never modified once stored.
type Entry struct {
	Signature Signature           `json:"signature"`
	Query     string              `json:"query"`
	Result    *result.QueryResult `json:"result"`
	StoredAt  time.Time           `json:"stored_at"`
}

// Hit describes the outcome of a lookup.
type Hit struct {
	Hit          bool      `json:"hit"`
	Similarity   float64   `json:"similarity"`
	MatchedQuery string    `json:"matched_query,omitempty"`
	StoredAt     time.Time `json:"stored_at,omitempty"`
}

// Stats are the running lookup counters.
type Stats struct {
	Hits            int64   `json:"hits"`
	Misses          int64   `json:"misses"`
	TotalSimilarity float64 `json:"total_similarity"`
	Entries         int     `json:"entries"`
}

// HitRate is hits / lookups.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// AverageSimilarity is the mean similarity of hits.
func (s Stats) AverageSimilarity() float64 {
	if s.Hits == 0 {
		return 0
	}
	return s.TotalSimilarity / float64(s.Hits)
}

// Cache stores query results in a kvstore. All errors are logged and
// swallowed: a failing cache degrades to misses.
type Cache struct {
	kv         kvstore.Store
	ttl        time.Duration
	maxEntries int
	threshold  float64
	truncateTo int
	now        func() time.Time
	log        *logger.Logger

	mu sync.Mutex
}

// New creates a cache over kv.
func New(kv kvstore.Store, cfg config.CacheConfig, log *logger.Logger) *Cache {
	c := &Cache{
		kv:         kv,
		ttl:        cfg.TTL,
		maxEntries: cfg.MaxEntries,
		threshold:  cfg.Threshold,
		truncateTo: cfg.TruncateTo,
		now:        time.Now,
		log:        logger.OrDefault(log).WithComponent("cache"),
	}
	if c.ttl <= 0 {
		c.ttl = DefaultTTL
	}
	if c.maxEntries <= 0 {
		c.maxEntries = DefaultMaxEntries
	}
	if c.threshold <= 0 {
		c.threshold = DefaultThreshold
	}
	if c.truncateTo <= 0 || c.truncateTo > c.maxEntries {
		c.truncateTo = min(DefaultTruncateTo, c.maxEntries)
	}
	return c
}

// SetClock overrides the time source. Used by tests.
func (c *Cache) SetClock(now func() time.Time) {
	c.now = now
}

// Get returns a copy of the best cached result whose similarity to text is
// at or above the threshold. Ties go to the oldest entry.
func (c *Cache) Get(ctx context.Context, text string) (*result.QueryResult, Hit) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, expired, err := c.liveEntries(ctx)
	if err != nil {
		c.log.WithError(err).Warn("Failed to load cache entries")
	} else if expired > 0 {
		c.save(ctx, entries)
	}

	sig := NewSignature(text)
	var (
		best      *Entry
		bestScore float64
	)
	for i := range entries {
		score := Similarity(sig, entries[i].Signature)
		if score >= c.threshold && score > bestScore {
			best, bestScore = &entries[i], score
		}
	}

	hit := Hit{}
	if best != nil {
		hit = Hit{Hit: true, Similarity: bestScore, MatchedQuery: best.Query, StoredAt: best.StoredAt}
	}
	c.recordLookup(ctx, hit)

	if best == nil {
		return nil, hit
	}

	c.log.WithContext(ctx).Debug("Cache hit",
		"query", security.SanitizeForLog(text, 100),
		"matched", security.SanitizeForLog(best.Query, 100),
		"similarity", bestScore,
	)
	return best.Result.Clone(), hit
}

// Set stores a copy of res for text. Failed results are not cached.
func (c *Cache) Set(ctx context.Context, text string, res *result.QueryResult) {
	if res == nil || !res.Success {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entries, _, err := c.liveEntries(ctx)
	if err != nil {
		// Saving now would drop every stored entry.
		c.log.WithError(err).Warn("Skipping cache write, stored entries unreadable")
		return
	}
	entries = append(entries, Entry{
		Signature: NewSignature(text),
		Query:     text,
		Result:    res.Clone(),
		StoredAt:  c.now(),
	})
	if len(entries) > c.maxEntries {
		entries = entries[len(entries)-c.maxEntries:]
	}
	c.save(ctx, entries)
}

// Sweep drops expired entries and returns how many were removed.
func (c *Cache) Sweep(ctx context.Context) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, expired, err := c.liveEntries(ctx)
	if err != nil {
		c.log.WithError(err).Warn("Failed to load cache entries")
		return 0
	}
	if expired > 0 {
		c.save(ctx, entries)
	}
	return expired
}

// Run sweeps every interval until ctx is done.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Sweep(ctx); n > 0 {
				c.log.Debug("Swept expired cache entries", "removed", n)
			}
		}
	}
}

// Stats returns the lookup counters and the live entry count.
func (c *Cache) Stats(ctx context.Context) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.loadStats(ctx)
	entries, _, err := c.liveEntries(ctx)
	if err != nil {
		c.log.WithError(err).Warn("Failed to load cache entries")
	}
	s.Entries = len(entries)
	return s
}

// ResetStats clears the lookup counters. Entries are kept.
func (c *Cache) ResetStats(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.kv.Delete(ctx, StatsKey); err != nil {
		c.log.WithError(err).Warn("Failed to reset cache stats")
	}
}

// Clear removes every entry. Counters are kept.
func (c *Cache) Clear(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.kv.Delete(ctx, EntriesKey); err != nil {
		c.log.WithError(err).Warn("Failed to clear cache")
	}
}

// liveEntries loads entries and filters out expired ones, oldest first. A
// missing key is an empty cache and corrupt data is discarded; other store
// errors are returned so callers do not overwrite entries they never read.
func (c *Cache) liveEntries(ctx context.Context) ([]Entry, int, error) {
	data, err := c.kv.Load(ctx, EntriesKey)
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return nil, 0, nil
		}
		return nil, 0, err
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		c.log.WithError(err).Warn("Discarding corrupt cache entries")
		return nil, 0, nil
	}

	cutoff := c.now().Add(-c.ttl)
	live := entries[:0]
	for _, e := range entries {
		if e.StoredAt.After(cutoff) && e.Result != nil {
			live = append(live, e)
		}
	}
	return live, len(entries) - len(live), nil
}

// save writes entries, truncating to the newest truncateTo entries and
// retrying once when the store is full.
func (c *Cache) save(ctx context.Context, entries []Entry) {
	err := c.write(ctx, entries)
	if kvstore.IsCapacityExceeded(err) && len(entries) > c.truncateTo {
		c.log.Warn("Cache storage full, truncating", "entries", len(entries), "keep", c.truncateTo)
		err = c.write(ctx, entries[len(entries)-c.truncateTo:])
	}
	if err != nil {
		c.log.WithError(err).Warn("Failed to save cache entries")
	}
}

func (c *Cache) write(ctx context.Context, entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return c.kv.Save(ctx, EntriesKey, data)
}

func (c *Cache) loadStats(ctx context.Context) Stats {
	var s Stats
	data, err := c.kv.Load(ctx, StatsKey)
	if err != nil {
		if !errors.Is(err, kvstore.ErrNotFound) {
			c.log.WithError(err).Warn("Failed to load cache stats")
		}
		return s
	}
	if err := json.Unmarshal(data, &s); err != nil {
		c.log.WithError(err).Warn("Discarding corrupt cache stats")
		return Stats{}
	}
	return s
}

func (c *Cache) recordLookup(ctx context.Context, hit Hit) {
	s := c.loadStats(ctx)
	if hit.Hit {
		s.Hits++
		s.TotalSimilarity += hit.Similarity
	} else {
		s.Misses++
	}
	s.Entries = 0

	data, err := json.Marshal(s)
	if err == nil {
		err = c.kv.Save(ctx, StatsKey, data)
	}
	if err != nil {
		c.log.WithError(err).Warn("Failed to save cache stats")
	}
}
