package store

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

var testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

type testDoc struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Nested struct {
		Tier string `json:"risk_tier"`
	} `json:"conjunction"`
}

func doc(id, status, tier string) testDoc {
	d := testDoc{ID: id, Status: status}
	d.Nested.Tier = tier
	return d
}

// TestPutGetDelete exercises the basic document lifecycle.
func TestPutGetDelete(t *testing.T) {
	s, err := NewFileStore(t.TempDir(), testLogger)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	if err := s.Put(CollectionAlerts, "a1", doc("a1", "new", "high")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	var got testDoc
	if err := s.Get(CollectionAlerts, "a1", &got); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != "new" {
		t.Errorf("status = %q, want new", got.Status)
	}

	if err := s.Delete(CollectionAlerts, "a1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Get(CollectionAlerts, "a1", &got); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after delete = %v, want ErrNotFound", err)
	}
	// Deleting again is a no-op.
	if err := s.Delete(CollectionAlerts, "a1"); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
}

// TestReload verifies flushed collections survive a process restart.
func TestReload(t *testing.T) {
	dir := t.TempDir()

	s, err := NewFileStore(dir, testLogger)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	s.Put(CollectionAlerts, "a1", doc("a1", "acknowledged", "critical"))
	s.Put(CollectionReentry, "25544", map[string]any{"status": "warning"})
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := NewFileStore(dir, testLogger)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	var got testDoc
	if err := s2.Get(CollectionAlerts, "a1", &got); err != nil {
		t.Fatalf("Get after reload: %v", err)
	}
	if got.Nested.Tier != "critical" {
		t.Errorf("tier = %q, want critical", got.Nested.Tier)
	}
	docs, err := s2.List(CollectionReentry)
	if err != nil || len(docs) != 1 {
		t.Fatalf("List reentry = %d docs, err %v; want 1, nil", len(docs), err)
	}
}

// TestFindByField covers top-level and dotted-path secondary lookups.
func TestFindByField(t *testing.T) {
	s, err := NewFileStore(t.TempDir(), testLogger)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	s.Put(CollectionAlerts, "a1", doc("a1", "new", "high"))
	s.Put(CollectionAlerts, "a2", doc("a2", "new", "low"))
	s.Put(CollectionAlerts, "a3", doc("a3", "resolved", "high"))

	byStatus, err := s.FindByField(CollectionAlerts, "status", "new")
	if err != nil {
		t.Fatalf("FindByField status: %v", err)
	}
	if len(byStatus) != 2 {
		t.Errorf("status=new matched %d docs, want 2", len(byStatus))
	}

	byTier, err := s.FindByField(CollectionAlerts, "conjunction.risk_tier", "high")
	if err != nil {
		t.Fatalf("FindByField tier: %v", err)
	}
	if len(byTier) != 2 {
		t.Errorf("risk_tier=high matched %d docs, want 2", len(byTier))
	}

	none, _ := s.FindByField(CollectionAlerts, "status", "closed")
	if len(none) != 0 {
		t.Errorf("status=closed matched %d docs, want 0", len(none))
	}
}

// TestCorruptSnapshotIgnored verifies a torn or corrupt collection file
// yields an empty collection instead of a startup failure.
func TestCorruptSnapshotIgnored(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "alerts.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("seed corrupt file: %v", err)
	}

	s, err := NewFileStore(dir, testLogger)
	if err != nil {
		t.Fatalf("NewFileStore with corrupt snapshot: %v", err)
	}
	docs, err := s.List(CollectionAlerts)
	if err != nil || len(docs) != 0 {
		t.Fatalf("List = %d docs, err %v; want empty", len(docs), err)
	}
}
