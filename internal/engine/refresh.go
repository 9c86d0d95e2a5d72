package engine

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/metrics"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/store"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/tle"
)

// IngestResult summarizes one catalog ingest.
type IngestResult struct {
	Source    string    `json:"source"`
	FetchedAt time.Time `json:"fetched_at"`
	Parsed    int       `json:"parsed"`
	Skipped   int       `json:"skipped"`
	Added     int       `json:"added"`
	Replaced  int       `json:"replaced"`
}

// RefreshTLE fetches the configured TLE sources and ingests them. Ingest is
// atomic per fetch: a failed fetch or an empty parse leaves the catalog
// untouched.
func (e *Engine) RefreshTLE(ctx context.Context) (IngestResult, error) {
	if e.deps.Fetcher == nil {
		return IngestResult{}, fmt.Errorf("TLE fetching is disabled")
	}
	if !e.refreshBusy.CompareAndSwap(false, true) {
		return IngestResult{}, ErrRefreshInFlight
	}
	defer e.refreshBusy.Store(false)

	data, err := e.deps.Fetcher.Fetch(ctx)
	if err != nil {
		return IngestResult{}, fmt.Errorf("fetching TLE data: %w", err)
	}

	records, skipped, err := tle.ParseCounted(bytes.NewReader(data), e.logger)
	if err != nil {
		return IngestResult{}, fmt.Errorf("parsing TLE data: %w", err)
	}
	if len(records) == 0 {
		return IngestResult{}, fmt.Errorf("TLE source yielded no parseable records")
	}

	at := e.now().UTC()
	source := e.deps.Fetcher.SourceURL()
	added, replaced := e.deps.Catalog.UpsertAll(records, source, at)
	metrics.RecordIngest(added, replaced, skipped)
	metrics.SetCatalogSize(e.deps.Catalog.Len())

	if e.deps.TLECache != nil {
		if err := e.deps.TLECache.Write(data, at); err != nil {
			e.logger.Warn("TLE cache write failed", "error", err)
		}
	}
	e.persistCatalog(records, at)

	res := IngestResult{
		Source:    source,
		FetchedAt: at,
		Parsed:    len(records),
		Skipped:   skipped,
		Added:     added,
		Replaced:  replaced,
	}
	e.logger.Info("TLE refresh complete",
		"parsed", res.Parsed, "skipped", res.Skipped,
		"added", res.Added, "replaced", res.Replaced)
	return res, nil
}

// Bootstrap seeds the catalog before serving: first from the newest raw TLE
// cache file, then from the persisted catalog collection. Returns the number
// of objects loaded; zero with a nil error means a cold start.
func (e *Engine) Bootstrap(ctx context.Context) (int, error) {
	if e.deps.TLECache != nil {
		data, ts, err := e.deps.TLECache.LoadLatest()
		if err == nil {
			records, _, perr := tle.ParseCounted(bytes.NewReader(data), e.logger)
			if perr == nil && len(records) > 0 {
				added, replaced := e.deps.Catalog.UpsertAll(records, "cache", ts)
				metrics.SetCatalogSize(e.deps.Catalog.Len())
				e.logger.Info("catalog loaded from TLE cache",
					"objects", added+replaced, "cached_at", ts.Format(time.RFC3339))
				return added + replaced, nil
			}
			if perr != nil {
				e.logger.Warn("cached TLE data unusable", "error", perr)
			}
		}
	}

	if e.deps.Store != nil {
		docs, err := e.deps.Store.List(store.CollectionCatalog)
		if err != nil {
			return 0, fmt.Errorf("listing persisted catalog: %w", err)
		}
		loaded := 0
		for _, raw := range docs {
			var doc catalogDoc
			if err := unmarshalDoc(raw, &doc); err != nil {
				continue
			}
			rec, err := tle.ParseLines(doc.Name, doc.Line1, doc.Line2)
			if err != nil {
				continue
			}
			if err := e.deps.Catalog.Upsert(rec); err == nil {
				loaded++
			}
		}
		if loaded > 0 {
			metrics.SetCatalogSize(e.deps.Catalog.Len())
			e.logger.Info("catalog loaded from store", "objects", loaded)
			return loaded, nil
		}
	}

	e.logger.Info("no cached catalog found, starting cold")
	return 0, nil
}

// catalogDoc is the persisted shape of one catalog entry.
type catalogDoc struct {
	NoradID   int       `json:"norad_id"`
	Name      string    `json:"name"`
	Line1     string    `json:"line1"`
	Line2     string    `json:"line2"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (e *Engine) persistCatalog(records []tle.TLE, at time.Time) {
	if e.deps.Store == nil {
		return
	}
	for _, rec := range records {
		doc := catalogDoc{
			NoradID:   rec.NoradID,
			Name:      rec.Name,
			Line1:     rec.Line1,
			Line2:     rec.Line2,
			UpdatedAt: at,
		}
		if err := e.deps.Store.Put(store.CollectionCatalog, strconv.Itoa(rec.NoradID), doc); err != nil {
			e.logger.Warn("catalog entry not persisted", "norad_id", rec.NoradID, "error", err)
			return
		}
	}
}
