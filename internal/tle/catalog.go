package tle

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// Catalog is the authoritative in-memory TLE store, keyed by NORAD catalog
// id. At most one current element set exists per id; upserting a newer set
// supersedes the old one atomically. Readers take shared locks; the screener
// takes a value snapshot once per scan and never sees a half-applied ingest.
type Catalog struct {
	mu       sync.RWMutex
	objects  map[int]*Object
	pending  map[int]Metadata // sidecar metadata for ids not yet ingested
	info     DatasetInfo
	revision uint64
	logger   *slog.Logger

	now func() time.Time // test seam
}

// NewCatalog creates an empty catalog.
func NewCatalog(logger *slog.Logger) *Catalog {
	return &Catalog{
		objects: make(map[int]*Object),
		pending: make(map[int]Metadata),
		logger:  logger,
		now:     time.Now,
	}
}

// Upsert validates rec and installs it as the current element set for its
// catalog id, preserving any sidecar metadata already attached to the id.
// Fails with an ErrMalformed-wrapped error when validation rejects the
// record; the catalog is unchanged on failure.
func (c *Catalog) Upsert(rec TLE) error {
	if _, err := ParseLines(rec.Name, rec.Line1, rec.Line2); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.upsertLocked(rec)
	c.refreshInfoLocked()
	c.revision++
	return nil
}

func (c *Catalog) upsertLocked(rec TLE) (replaced bool) {
	now := c.now().UTC()
	if existing, ok := c.objects[rec.NoradID]; ok {
		existing.TLE = rec
		existing.UpdatedAt = now
		existing.Superseded++
		return true
	}
	obj := &Object{TLE: rec, UpdatedAt: now}
	if meta, ok := c.pending[rec.NoradID]; ok {
		obj.Meta = meta
	}
	c.objects[rec.NoradID] = obj
	return false
}

// UpsertAll ingests a parsed dataset under a single write lock, so readers
// observe either the old catalog or the complete new one. Records are assumed
// already validated by the parser. Returns how many ids were added versus
// superseded.
func (c *Catalog) UpsertAll(records []TLE, source string, fetchedAt time.Time) (added, replaced int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, rec := range records {
		if c.upsertLocked(rec) {
			replaced++
		} else {
			added++
		}
	}
	c.info.Source = source
	c.info.FetchedAt = fetchedAt
	c.refreshInfoLocked()
	c.revision++

	c.logger.Info("catalog ingest applied",
		"source", source,
		"added", added,
		"replaced", replaced,
		"total", len(c.objects))
	return added, replaced
}

func (c *Catalog) refreshInfoLocked() {
	c.info.Count = len(c.objects)
	var r EpochRange
	for _, obj := range c.objects {
		e := obj.TLE.Epoch
		if r.Min.IsZero() || e.Before(r.Min) {
			r.Min = e
		}
		if r.Max.IsZero() || e.After(r.Max) {
			r.Max = e
		}
	}
	c.info.EpochRange = r
}

// Get returns the current entry for a catalog id.
func (c *Catalog) Get(id int) (Object, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	obj, ok := c.objects[id]
	if !ok {
		return Object{}, false
	}
	return *obj, true
}

// List returns a value snapshot of all current entries sorted by catalog id.
func (c *Catalog) List() []Object {
	c.mu.RLock()
	out := make([]Object, 0, len(c.objects))
	for _, obj := range c.objects {
		out = append(out, *obj)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].TLE.NoradID < out[j].TLE.NoradID })
	return out
}

// Len returns the number of current entries.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.objects)
}

// Info returns dataset provenance for the current contents.
func (c *Catalog) Info() DatasetInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.info
}

// Revision returns a counter that increases on every mutation. Derived caches
// compare revisions to decide whether their view is stale.
func (c *Catalog) Revision() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.revision
}

// AgeSeconds returns seconds since the last ingest, or -1 before any ingest.
func (c *Catalog) AgeSeconds() float64 {
	c.mu.RLock()
	fetched := c.info.FetchedAt
	c.mu.RUnlock()
	if fetched.IsZero() {
		return -1
	}
	return time.Since(fetched).Seconds()
}

// Stats buckets the catalog by orbital regime.
func (c *Catalog) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Stats{Total: len(c.objects), EpochRange: c.info.EpochRange}
	for _, obj := range c.objects {
		switch ClassifyRegime(obj.TLE) {
		case RegimeLEO:
			s.LEO++
		case RegimeMEO:
			s.MEO++
		case RegimeGEO:
			s.GEO++
		default:
			s.Other++
		}
		if obj.TLE.DeepSpace() {
			s.DeepSpace++
		}
	}
	return s
}

// SearchByName returns up to limit entries whose name contains the substring,
// case-insensitive, ordered by catalog id. A non-positive limit means no cap.
func (c *Catalog) SearchByName(substring string, limit int) []Object {
	needle := strings.ToLower(strings.TrimSpace(substring))
	if needle == "" {
		return nil
	}

	c.mu.RLock()
	var matches []Object
	for _, obj := range c.objects {
		if strings.Contains(strings.ToLower(obj.TLE.Name), needle) {
			matches = append(matches, *obj)
		}
	}
	c.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool { return matches[i].TLE.NoradID < matches[j].TLE.NoradID })
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// ApplyMetadata attaches sidecar metadata to matching catalog ids. Entries
// for unknown ids are held and applied if the id appears later.
func (c *Catalog) ApplyMetadata(meta map[int]Metadata) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	applied := 0
	for id, m := range meta {
		if obj, ok := c.objects[id]; ok {
			obj.Meta = m
			applied++
		}
		c.pending[id] = m
	}
	return applied
}
