// Package store persists engine state as JSON document collections. The
// engine works from memory and treats the store as a write-behind snapshot:
// documents are keyed by id within a named collection, and reads support
// secondary lookups on document fields so callers can query alerts by status
// or risk tier without loading the whole collection.
package store

import (
	"encoding/json"
	"errors"
)

// Collection names used by the engine.
const (
	CollectionCatalog   = "catalog"
	CollectionAlerts    = "alerts"
	CollectionEndpoints = "endpoint_stats"
	CollectionReentry   = "reentry"
)

// ErrNotFound reports a missing document.
var ErrNotFound = errors.New("document not found")

// Store is the persistence boundary.
type Store interface {
	// Put upserts one document into a collection.
	Put(collection, id string, doc any) error
	// Get unmarshals the document with the given id into out.
	Get(collection, id string, out any) error
	// Delete removes one document. Deleting a missing document is a no-op.
	Delete(collection, id string) error
	// List returns every document in a collection in unspecified order.
	List(collection string) ([]json.RawMessage, error)
	// FindByField returns documents whose field equals value. The field may
	// be a dotted path into nested objects, e.g. "conjunction.risk_tier".
	FindByField(collection, field, value string) ([]json.RawMessage, error)
	// Close flushes any buffered state.
	Close() error
}

// fieldValue walks a dotted path through a decoded document and returns the
// string at the end, if there is one.
func fieldValue(doc map[string]any, path string) (string, bool) {
	cur := doc
	for {
		i := indexDot(path)
		if i < 0 {
			s, ok := cur[path].(string)
			return s, ok
		}
		next, ok := cur[path[:i]].(map[string]any)
		if !ok {
			return "", false
		}
		cur = next
		path = path[i+1:]
	}
}

func indexDot(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			return i
		}
	}
	return -1
}
