// Package cache implements the two-tier analysis cache: an in-process
// memory tier in front of a sqlite tier under .riq/cache/. Both tiers
// expire entries lazily on read; expired disk rows are only reclaimed in
// bulk by an explicit prune. Disk failures never fail an analysis: the
// cache degrades to memory-only and reports the fault through Stats.
package cache

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"
	"time"

	riqerrors "riq/internal/errors"
	"riq/internal/logging"
	"riq/internal/repoident"
)

// Artifact kinds stored in the cache.
const (
	KindFacts  = "facts"
	KindImpact = "impact"
)

// Key derives the cache key for a repository identity and an optional
// change requirement. The change text is normalized so cosmetic edits to
// a requirement (casing, extra whitespace) hit the same entry. Facts-only
// artifacts pass an empty change.
func Key(identity repoident.Identity, change string) string {
	sum := sha256.Sum256([]byte(identity.Hash + "\x00" + NormalizeChange(change)))
	return fmt.Sprintf("%x", sum)
}

// NormalizeChange lowercases a change requirement and collapses runs of
// whitespace into single spaces.
func NormalizeChange(change string) string {
	return strings.ToLower(strings.Join(strings.Fields(change), " "))
}

// Options configures a Cache. Zero values disable the corresponding
// feature (empty Path = no disk tier, Enabled=false = all misses).
type Options struct {
	Enabled          bool
	TTLSeconds       int
	MaxMemoryEntries int
	Path             string
	Compression      bool
}

// Stats summarizes cache state for `riq cache stats`.
type Stats struct {
	Enabled       bool   `json:"enabled"`
	Hits          int64  `json:"hits"`
	Misses        int64  `json:"misses"`
	MemoryEntries int    `json:"memoryEntries"`
	DiskEntries   int    `json:"diskEntries"`
	DiskBytes     int64  `json:"diskBytes"`
	DiskPath      string `json:"diskPath,omitempty"`
	DiskError     string `json:"diskError,omitempty"`
}

// Cache is the facade over both tiers: memory-first read-through with the
// disk tier behind it, write-through to both.
type Cache struct {
	memory  *MemoryCache
	disk    *DiskCache
	ttl     time.Duration
	enabled bool
	logger  *logging.Logger

	mu      sync.Mutex
	hits    int64
	misses  int64
	diskErr error
}

// New creates a Cache from the given options. A disk tier that cannot be
// opened is logged and dropped; the cache continues memory-only.
func New(opts Options, logger *logging.Logger) *Cache {
	if logger == nil {
		logger = logging.Nop()
	}

	c := &Cache{
		memory:  NewMemoryCache(opts.MaxMemoryEntries),
		ttl:     time.Duration(opts.TTLSeconds) * time.Second,
		enabled: opts.Enabled,
		logger:  logger,
	}
	if !opts.Enabled {
		return c
	}

	if opts.Path != "" {
		disk, err := OpenDisk(opts.Path, opts.Compression)
		if err != nil {
			c.diskErr = riqerrors.NewRiqError(riqerrors.CacheUnavailable,
				"cache database unavailable, continuing memory-only", err, nil)
			logger.Warn("Cache disk tier unavailable", map[string]interface{}{
				"path":  opts.Path,
				"error": err.Error(),
			})
		} else {
			c.disk = disk
		}
	}
	return c
}

// Get returns the cached payload for key, consulting memory first and
// promoting disk hits into memory with their remaining lifetime.
func (c *Cache) Get(key string) ([]byte, bool) {
	if !c.enabled {
		return nil, false
	}

	if payload, found := c.memory.Get(key); found {
		c.count(true)
		c.logger.Debug("Cache hit", map[string]interface{}{"key": key, "tier": "memory"})
		return payload, true
	}

	if c.disk != nil {
		payload, expiresAt, found, err := c.disk.Get(key)
		if err != nil {
			c.recordDiskError(err)
		} else if found {
			if remaining := time.Until(expiresAt); remaining > 0 {
				c.memory.Set(key, payload, remaining)
			}
			c.count(true)
			c.logger.Debug("Cache hit", map[string]interface{}{"key": key, "tier": "disk"})
			return payload, true
		}
	}

	c.count(false)
	c.logger.Debug("Cache miss", map[string]interface{}{"key": key})
	return nil, false
}

// Set stores payload under key in both tiers with the configured TTL.
// kind labels the artifact in the disk tier (facts or impact).
func (c *Cache) Set(key, kind string, payload []byte) {
	if !c.enabled {
		return
	}

	c.memory.Set(key, payload, c.ttl)
	if c.disk != nil {
		if err := c.disk.Set(key, kind, payload, c.ttl); err != nil {
			c.recordDiskError(err)
		}
	}
}

// Invalidate removes a single key from both tiers.
func (c *Cache) Invalidate(key string) {
	c.memory.Invalidate(key)
	if c.disk != nil {
		if err := c.disk.Invalidate(key); err != nil {
			c.recordDiskError(err)
		}
	}
}

// Clear empties both tiers.
func (c *Cache) Clear() error {
	c.memory.Clear()
	if c.disk != nil {
		if err := c.disk.Clear(); err != nil {
			c.recordDiskError(err)
			return err
		}
	}
	return nil
}

// Prune deletes expired rows from the disk tier and returns how many were
// removed. The memory tier needs no pruning, expired entries drop on read.
func (c *Cache) Prune() (int64, error) {
	if c.disk == nil {
		return 0, nil
	}
	removed, err := c.disk.Prune()
	if err != nil {
		c.recordDiskError(err)
		return 0, err
	}
	return removed, nil
}

// Stats reports hit/miss counters and per-tier sizes. A degraded disk
// tier surfaces here as DiskError rather than failing callers.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	stats := Stats{
		Enabled:       c.enabled,
		Hits:          c.hits,
		Misses:        c.misses,
		MemoryEntries: c.memory.Size(),
	}
	diskErr := c.diskErr
	c.mu.Unlock()

	if diskErr != nil {
		stats.DiskError = diskErr.Error()
	}
	if c.disk != nil {
		stats.DiskPath = c.disk.Path()
		entries, bytes, err := c.disk.Stats()
		if err != nil {
			c.recordDiskError(err)
			stats.DiskError = err.Error()
		} else {
			stats.DiskEntries = entries
			stats.DiskBytes = bytes
		}
	}
	return stats
}

// Close releases the disk tier. The memory tier needs no teardown.
func (c *Cache) Close() error {
	if c.disk != nil {
		return c.disk.Close()
	}
	return nil
}

func (c *Cache) count(hit bool) {
	c.mu.Lock()
	if hit {
		c.hits++
	} else {
		c.misses++
	}
	c.mu.Unlock()
}

// recordDiskError notes the first disk failure for Stats and logs every
// occurrence. The cache keeps serving from memory.
func (c *Cache) recordDiskError(err error) {
	c.mu.Lock()
	if c.diskErr == nil {
		c.diskErr = riqerrors.NewRiqError(riqerrors.CacheUnavailable,
			"cache database error, continuing memory-only", err, nil)
	}
	c.mu.Unlock()

	c.logger.Warn("Cache disk tier error", map[string]interface{}{
		"error": err.Error(),
	})
}
