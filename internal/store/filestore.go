package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FileStore is the reference Store: one JSON file per collection holding the
// id→document map. Mutations land in memory and mark the collection dirty;
// a background loop (or Close) writes dirty collections atomically via a
// temp file and rename, so a crash never leaves a torn snapshot.
type FileStore struct {
	dir    string
	logger *slog.Logger

	mu    sync.RWMutex
	data  map[string]map[string]json.RawMessage
	dirty map[string]bool
}

// NewFileStore opens (or creates) a store rooted at dir and loads every
// collection snapshot found there.
func NewFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating store dir: %w", err)
	}
	s := &FileStore{
		dir:    dir,
		logger: logger,
		data:   make(map[string]map[string]json.RawMessage),
		dirty:  make(map[string]bool),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) load() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("reading store dir: %w", err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			return fmt.Errorf("reading collection %s: %w", name, err)
		}
		docs := make(map[string]json.RawMessage)
		if err := json.Unmarshal(raw, &docs); err != nil {
			// A corrupt snapshot should not brick the service; start that
			// collection empty and keep the bad file out of the way.
			s.logger.Warn("corrupt collection snapshot ignored", "file", name, "error", err)
			continue
		}
		s.data[strings.TrimSuffix(name, ".json")] = docs
	}
	total := 0
	for _, docs := range s.data {
		total += len(docs)
	}
	s.logger.Info("store loaded", "dir", s.dir, "collections", len(s.data), "documents", total)
	return nil
}

// Put upserts one document.
func (s *FileStore) Put(collection, id string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshaling %s/%s: %w", collection, id, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	docs, ok := s.data[collection]
	if !ok {
		docs = make(map[string]json.RawMessage)
		s.data[collection] = docs
	}
	docs[id] = raw
	s.dirty[collection] = true
	return nil
}

// Get unmarshals one document into out.
func (s *FileStore) Get(collection, id string, out any) error {
	s.mu.RLock()
	raw, ok := s.data[collection][id]
	s.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	return json.Unmarshal(raw, out)
}

// Delete removes one document.
func (s *FileStore) Delete(collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if docs, ok := s.data[collection]; ok {
		if _, had := docs[id]; had {
			delete(docs, id)
			s.dirty[collection] = true
		}
	}
	return nil
}

// List returns every document in a collection.
func (s *FileStore) List(collection string) ([]json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := s.data[collection]
	out := make([]json.RawMessage, 0, len(docs))
	for _, raw := range docs {
		out = append(out, raw)
	}
	return out, nil
}

// FindByField returns documents whose (possibly dotted) field equals value.
func (s *FileStore) FindByField(collection, field, value string) ([]json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []json.RawMessage
	for _, raw := range s.data[collection] {
		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			continue
		}
		if got, ok := fieldValue(doc, field); ok && got == value {
			out = append(out, raw)
		}
	}
	return out, nil
}

// Run flushes dirty collections every interval until ctx is cancelled, then
// flushes once more on the way out.
func (s *FileStore) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := s.Flush(); err != nil {
				s.logger.Error("final store flush failed", "error", err)
			}
			return
		case <-ticker.C:
			if err := s.Flush(); err != nil {
				s.logger.Error("store flush failed", "error", err)
			}
		}
	}
}

// Flush writes every dirty collection to disk.
func (s *FileStore) Flush() error {
	s.mu.Lock()
	pending := make(map[string][]byte)
	for collection := range s.dirty {
		raw, err := json.Marshal(s.data[collection])
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("marshaling collection %s: %w", collection, err)
		}
		pending[collection] = raw
	}
	s.dirty = make(map[string]bool)
	s.mu.Unlock()

	for collection, raw := range pending {
		if err := s.writeCollection(collection, raw); err != nil {
			return err
		}
	}
	return nil
}

// writeCollection lands one snapshot atomically: temp file, then rename.
func (s *FileStore) writeCollection(collection string, raw []byte) error {
	final := filepath.Join(s.dir, collection+".json")
	tmp, err := os.CreateTemp(s.dir, collection+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp snapshot: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing snapshot %s: %w", collection, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing snapshot %s: %w", collection, err)
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("publishing snapshot %s: %w", collection, err)
	}
	return nil
}

// Close flushes all dirty collections.
func (s *FileStore) Close() error {
	return s.Flush()
}
