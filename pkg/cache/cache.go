// Package cache implements the content-addressable script cache: one JSON
// file per fingerprint under a cache directory, plus a metadata.json index
// kept in memory and flushed alongside each mutation. The on-disk layout and
// the metadata fields mirror capibara's core/cache_manager.py
// (_examples/original_source), adapted to Go's stronger typing and to
// golang.org/x/sync/singleflight for populate-once-per-fingerprint semantics.
package cache

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/scriptsmith/scriptsmith/pkg/apperr"
	"github.com/scriptsmith/scriptsmith/pkg/model"
)

// entry is the persisted record for one cached artifact, extending
// model.Artifact with the bookkeeping fields the cache owns.
type entry struct {
	Artifact  model.Artifact `json:"artifact"`
	CachedAt  time.Time      `json:"cached_at"`
	SizeBytes int64          `json:"size_bytes"`
}

// Stats mirrors get_cache_stats() in cache_manager.py.
type Stats struct {
	Hits            int64   `json:"hits"`
	Misses          int64   `json:"misses"`
	Evictions       int64   `json:"evictions"`
	TotalSizeBytes  int64   `json:"total_size_bytes"`
	HitRatePercent  float64 `json:"hit_rate_percent"`
	TotalScripts    int     `json:"total_scripts"`
	CacheDir        string  `json:"cache_dir"`
}

// ListFilter narrows the result of List. A zero value matches everything.
type ListFilter struct {
	Limit     int
	Offset    int
	Language  model.Language
	Search    string
	SortBy    string // "cached_at" | "last_accessed_at" | "access_count"
	SortOrder string // "asc" | "desc"
}

// ClearFilter narrows the scripts removed by Clear. All criteria are empty -> no-op
// unless All is set.
type ClearFilter struct {
	ScriptIDs []string
	Language  model.Language
	OlderThan time.Duration
	All       bool
}

// Cache is the content-addressable script store. Safe for concurrent use.
type Cache struct {
	dir  string
	mu   sync.RWMutex
	meta map[string]*entry

	statsMu sync.Mutex
	hits    int64
	misses  int64
	evicts  int64

	group singleflight.Group
	log   *slog.Logger
}

// New opens (creating if absent) the cache directory at dir and loads its
// metadata index into memory.
func New(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperr.Wrap(apperr.KindCacheFailure, "create cache directory", err)
	}
	c := &Cache{
		dir:  dir,
		meta: map[string]*entry{},
		log:  slog.With("component", "cache"),
	}
	if err := c.loadIndex(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Cache) indexPath() string {
	return filepath.Join(c.dir, "metadata.json")
}

func (c *Cache) scriptPath(fingerprint string) string {
	return filepath.Join(c.dir, fingerprint+".json")
}

func (c *Cache) loadIndex() error {
	data, err := os.ReadFile(c.indexPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return apperr.Wrap(apperr.KindCacheFailure, "read cache metadata", err)
	}

	var raw map[string]*entry
	if err := json.Unmarshal(data, &raw); err != nil {
		c.log.Warn("cache metadata corrupt, starting empty", "error", err)
		return nil
	}
	c.meta = raw
	return nil
}

func (c *Cache) saveIndexLocked() {
	data, err := json.MarshalIndent(c.meta, "", "  ")
	if err != nil {
		c.log.Error("marshal cache metadata", "error", err)
		return
	}
	if err := os.WriteFile(c.indexPath(), data, 0o644); err != nil {
		c.log.Error("write cache metadata", "error", err)
	}
}

// Get looks up a cached artifact by fingerprint. It returns (nil, nil) on a
// clean miss (absent or expired), never an error for that case; errors are
// reserved for genuine I/O failures other than "not found".
func (c *Cache) Get(fingerprint string) (*model.Artifact, error) {
	c.mu.Lock()
	e, ok := c.meta[fingerprint]
	c.mu.Unlock()

	if !ok {
		c.recordMiss()
		return nil, nil
	}

	data, err := os.ReadFile(c.scriptPath(fingerprint))
	if os.IsNotExist(err) {
		c.evict(fingerprint)
		c.recordMiss()
		return nil, nil
	}
	if err != nil {
		c.log.Error("read cached script", "fingerprint", fingerprint, "error", err)
		return nil, apperr.Wrap(apperr.KindCacheFailure, "read cached script", err)
	}

	var loaded entry
	if err := json.Unmarshal(data, &loaded); err != nil {
		c.log.Warn("cached script corrupt, evicting", "fingerprint", fingerprint, "error", err)
		c.evict(fingerprint)
		c.recordMiss()
		return nil, nil
	}

	if c.isExpired(&loaded) {
		c.evict(fingerprint)
		c.recordMiss()
		return nil, nil
	}

	art := loaded.Artifact
	art.AccessCount++
	art.LastAccessedAt = time.Now().UTC()
	c.touch(fingerprint, &art)

	c.recordHit()
	c.log.Debug("cache hit", "fingerprint", fingerprint)
	return &art, nil
}

// GetByScriptID looks up a cached artifact by its opaque script_id rather
// than its fingerprint — the lookup key the show() surface of §6 uses. It
// scans the index the same way List and Clear do, since the on-disk layout
// is keyed by fingerprint, not script_id. Returns (nil, nil) on a clean miss.
func (c *Cache) GetByScriptID(scriptID string) (*model.Artifact, error) {
	c.mu.RLock()
	fingerprints := make([]string, 0, len(c.meta))
	for fp := range c.meta {
		fingerprints = append(fingerprints, fp)
	}
	c.mu.RUnlock()

	for _, fp := range fingerprints {
		data, err := os.ReadFile(c.scriptPath(fp))
		if err != nil {
			continue
		}
		var loaded entry
		if err := json.Unmarshal(data, &loaded); err != nil {
			continue
		}
		if loaded.Artifact.ScriptID == scriptID {
			return c.Get(fp)
		}
	}
	return nil, nil
}

func (c *Cache) isExpired(e *entry) bool {
	ttl := e.Artifact.CacheTTL
	if ttl <= 0 {
		ttl = time.Duration(model.DefaultCacheTTLSeconds) * time.Second
	}
	return time.Since(e.CachedAt) > ttl
}

// touch persists an updated access_count/last_accessed_at for an existing
// cached artifact without rewriting the whole file twice.
func (c *Cache) touch(fingerprint string, art *model.Artifact) {
	data, err := os.ReadFile(c.scriptPath(fingerprint))
	if err != nil {
		return
	}
	var loaded entry
	if err := json.Unmarshal(data, &loaded); err != nil {
		return
	}
	loaded.Artifact.AccessCount = art.AccessCount
	loaded.Artifact.LastAccessedAt = art.LastAccessedAt

	out, err := json.MarshalIndent(loaded, "", "  ")
	if err != nil {
		return
	}
	if err := os.WriteFile(c.scriptPath(fingerprint), out, 0o644); err != nil {
		c.log.Error("persist script access metadata", "fingerprint", fingerprint, "error", err)
		return
	}

	c.mu.Lock()
	if m, ok := c.meta[fingerprint]; ok {
		m.Artifact.AccessCount = art.AccessCount
		m.Artifact.LastAccessedAt = art.LastAccessedAt
		c.saveIndexLocked()
	}
	c.mu.Unlock()
}

// Store writes a newly generated artifact to disk and indexes it.
func (c *Cache) Store(art *model.Artifact) error {
	now := time.Now().UTC()
	art.CreatedAt = now
	art.LastAccessedAt = now
	art.AccessCount = 0
	art.CacheHitCount = 0

	e := &entry{Artifact: *art, CachedAt: now}

	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return apperr.Wrap(apperr.KindCacheFailure, "marshal artifact", err)
	}
	if err := os.WriteFile(c.scriptPath(art.Fingerprint), data, 0o644); err != nil {
		return apperr.Wrap(apperr.KindCacheFailure, "write cached script", err)
	}
	e.SizeBytes = int64(len(data))

	c.mu.Lock()
	c.meta[art.Fingerprint] = e
	c.saveIndexLocked()
	c.mu.Unlock()

	c.log.Debug("script cached", "fingerprint", art.Fingerprint)
	return nil
}

// GetOrPopulate returns the cached artifact for fingerprint, or invokes
// populate exactly once across any number of concurrent callers sharing the
// same fingerprint (via singleflight), storing and returning its result.
func (c *Cache) GetOrPopulate(fingerprint string, populate func() (*model.Artifact, error)) (*model.Artifact, bool, error) {
	if art, err := c.Get(fingerprint); err != nil {
		return nil, false, err
	} else if art != nil {
		return art, true, nil
	}

	v, err, _ := c.group.Do(fingerprint, func() (interface{}, error) {
		if art, err := c.Get(fingerprint); err == nil && art != nil {
			return art, nil
		}
		art, err := populate()
		if err != nil {
			return nil, err
		}
		art.Fingerprint = fingerprint
		if err := c.Store(art); err != nil {
			return nil, err
		}
		return art, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*model.Artifact), false, nil
}

// IncrementCacheHitCount bumps CacheHitCount for the artifact identified by
// scriptID, a monotonic counter distinct from the per-access AccessCount
// (it only ever advances, per the cache-hit-count invariant).
func (c *Cache) IncrementCacheHitCount(scriptID string) error {
	c.mu.Lock()
	var fingerprint string
	for fp, e := range c.meta {
		if e.Artifact.ScriptID == scriptID {
			fingerprint = fp
			break
		}
	}
	c.mu.Unlock()
	if fingerprint == "" {
		return apperr.New(apperr.KindNotFound, "script not found: "+scriptID)
	}

	data, err := os.ReadFile(c.scriptPath(fingerprint))
	if err != nil {
		return apperr.Wrap(apperr.KindCacheFailure, "read cached script", err)
	}
	var loaded entry
	if err := json.Unmarshal(data, &loaded); err != nil {
		return apperr.Wrap(apperr.KindCacheFailure, "unmarshal cached script", err)
	}
	loaded.Artifact.CacheHitCount++
	loaded.Artifact.LastAccessedAt = time.Now().UTC()

	out, err := json.MarshalIndent(loaded, "", "  ")
	if err != nil {
		return apperr.Wrap(apperr.KindCacheFailure, "marshal cached script", err)
	}
	if err := os.WriteFile(c.scriptPath(fingerprint), out, 0o644); err != nil {
		return apperr.Wrap(apperr.KindCacheFailure, "write cached script", err)
	}

	c.mu.Lock()
	if m, ok := c.meta[fingerprint]; ok {
		m.Artifact.CacheHitCount = loaded.Artifact.CacheHitCount
		m.Artifact.LastAccessedAt = loaded.Artifact.LastAccessedAt
		c.saveIndexLocked()
	}
	c.mu.Unlock()
	return nil
}

// List returns cached artifacts matching filter, sorted and paginated.
func (c *Cache) List(filter ListFilter) ([]model.Artifact, error) {
	c.mu.RLock()
	fingerprints := make([]string, 0, len(c.meta))
	for fp := range c.meta {
		fingerprints = append(fingerprints, fp)
	}
	c.mu.RUnlock()

	results := make([]model.Artifact, 0, len(fingerprints))
	for _, fp := range fingerprints {
		data, err := os.ReadFile(c.scriptPath(fp))
		if err != nil {
			continue
		}
		var loaded entry
		if err := json.Unmarshal(data, &loaded); err != nil {
			c.log.Warn("error reading script for listing", "fingerprint", fp, "error", err)
			continue
		}
		art := loaded.Artifact

		if filter.Language != "" && art.Language != filter.Language {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(art.Prompt), strings.ToLower(filter.Search)) {
			continue
		}
		results = append(results, art)
	}

	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "cached_at"
	}
	desc := strings.ToLower(filter.SortOrder) != "asc"

	sort.Slice(results, func(i, j int) bool {
		var less bool
		switch sortBy {
		case "last_accessed_at":
			less = results[i].LastAccessedAt.Before(results[j].LastAccessedAt)
		case "access_count":
			less = results[i].AccessCount < results[j].AccessCount
		default:
			less = results[i].CreatedAt.Before(results[j].CreatedAt)
		}
		if desc {
			return !less
		}
		return less
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(results) {
		return []model.Artifact{}, nil
	}
	end := offset + limit
	if end > len(results) {
		end = len(results)
	}
	return results[offset:end], nil
}

// Clear removes scripts matching filter and returns the count removed.
func (c *Cache) Clear(filter ClearFilter) (int, error) {
	c.mu.Lock()
	candidates := make([]string, 0, len(c.meta))
	for fp := range c.meta {
		candidates = append(candidates, fp)
	}
	c.mu.Unlock()

	ids := map[string]struct{}{}
	for _, id := range filter.ScriptIDs {
		ids[id] = struct{}{}
	}

	var toRemove []string
	for _, fp := range candidates {
		if filter.All {
			toRemove = append(toRemove, fp)
			continue
		}

		data, err := os.ReadFile(c.scriptPath(fp))
		if err != nil {
			continue
		}
		var loaded entry
		if err := json.Unmarshal(data, &loaded); err != nil {
			continue
		}
		art := loaded.Artifact

		remove := false
		if _, ok := ids[art.ScriptID]; ok {
			remove = true
		} else if filter.Language != "" && art.Language == filter.Language {
			remove = true
		} else if filter.OlderThan > 0 && time.Since(loaded.CachedAt) > filter.OlderThan {
			remove = true
		}
		if remove {
			toRemove = append(toRemove, fp)
		}
	}

	for _, fp := range toRemove {
		c.evict(fp)
	}
	c.log.Info("scripts cleared from cache", "count", len(toRemove))
	return len(toRemove), nil
}

// evict removes a script file and its index entry, recording the eviction.
func (c *Cache) evict(fingerprint string) {
	_ = os.Remove(c.scriptPath(fingerprint))

	c.mu.Lock()
	if e, ok := c.meta[fingerprint]; ok {
		delete(c.meta, fingerprint)
		c.saveIndexLocked()
		_ = e
	}
	c.mu.Unlock()

	c.statsMu.Lock()
	c.evicts++
	c.statsMu.Unlock()

	c.log.Debug("script evicted", "fingerprint", fingerprint)
}

func (c *Cache) recordHit() {
	c.statsMu.Lock()
	c.hits++
	c.statsMu.Unlock()
}

func (c *Cache) recordMiss() {
	c.statsMu.Lock()
	c.misses++
	c.statsMu.Unlock()
}

// Stats reports aggregate cache counters, mirroring get_cache_stats().
func (c *Cache) Stats() Stats {
	c.statsMu.Lock()
	hits, misses, evicts := c.hits, c.misses, c.evicts
	c.statsMu.Unlock()

	c.mu.RLock()
	var total int64
	for _, e := range c.meta {
		total += e.SizeBytes
	}
	scriptCount := len(c.meta)
	c.mu.RUnlock()

	total64 := hits + misses
	var hitRate float64
	if total64 > 0 {
		hitRate = float64(hits) / float64(total64) * 100
	}

	return Stats{
		Hits:           hits,
		Misses:         misses,
		Evictions:      evicts,
		TotalSizeBytes: total,
		HitRatePercent: roundTo2(hitRate),
		TotalScripts:   scriptCount,
		CacheDir:       c.dir,
	}
}

func roundTo2(f float64) float64 {
	return float64(int64(f*100+0.5)) / 100
}
