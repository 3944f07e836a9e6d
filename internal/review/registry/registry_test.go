package registry

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func mkStorePath(t *testing.T, root string) string {
	t.Helper()
	p := filepath.Join(root, "run-store")
	if err := os.MkdirAll(p, 0o755); err != nil {
		t.Fatalf("mkdir store path: %v", err)
	}
	return p
}

func TestRegister_IdempotentUpsertPreservesCreatedAt(t *testing.T) {
	root := t.TempDir()
	r, err := Open(root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	store := mkStorePath(t, root)

	clock := time.Unix(1000, 0)
	r.now = func() time.Time { return clock }
	if err := r.Register("run-1", "Widgets", "fp1", store); err != nil {
		t.Fatalf("Register: %v", err)
	}
	first, _, _ := r.FindByRunID("run-1")

	clock = time.Unix(2000, 0)
	if err := r.Register("run-1", "Widgets", "fp1", store); err != nil {
		t.Fatalf("Register (2nd): %v", err)
	}
	second, _, _ := r.FindByRunID("run-1")

	if !first.CreatedAt.Equal(second.CreatedAt) {
		t.Fatalf("expected CreatedAt preserved across re-register, got %v vs %v", first.CreatedAt, second.CreatedAt)
	}
}

func TestFindByRunID_MissingStorePathReturnsNotFound(t *testing.T) {
	root := t.TempDir()
	r, err := Open(root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := r.Register("run-1", "Widgets", "fp1", filepath.Join(root, "does-not-exist")); err != nil {
		t.Fatalf("Register: %v", err)
	}

	_, ok, err := r.FindByRunID("run-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected not-found when store_path is missing")
	}
}

func TestFindByTopic_CaseInsensitiveAndFingerprintFilter(t *testing.T) {
	root := t.TempDir()
	r, err := Open(root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	storeA := mkStorePath(t, filepath.Join(root, "a"))
	storeB := mkStorePath(t, filepath.Join(root, "b"))
	mustRegister(t, r, "run-a", "Widgets", "fp1", storeA)
	mustRegister(t, r, "run-b", "widgets", "fp2", storeB)

	all, err := r.FindByTopic("WIDGETS", "")
	if err != nil {
		t.Fatalf("FindByTopic: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(all))
	}

	filtered, err := r.FindByTopic("widgets", "fp2")
	if err != nil {
		t.Fatalf("FindByTopic filtered: %v", err)
	}
	if len(filtered) != 1 || filtered[0].RunID != "run-b" {
		t.Fatalf("expected only run-b, got %+v", filtered)
	}
}

func TestFindByTopic_OrderedNewestFirst(t *testing.T) {
	root := t.TempDir()
	r, err := Open(root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	storeOld := mkStorePath(t, filepath.Join(root, "old"))
	storeNew := mkStorePath(t, filepath.Join(root, "new"))

	r.now = func() time.Time { return time.Unix(1000, 0) }
	mustRegister(t, r, "old", "Widgets", "", storeOld)
	r.now = func() time.Time { return time.Unix(2000, 0) }
	mustRegister(t, r, "new", "Widgets", "", storeNew)

	entries, err := r.FindByTopic("widgets", "")
	if err != nil {
		t.Fatalf("FindByTopic: %v", err)
	}
	if len(entries) != 2 || entries[0].RunID != "new" {
		t.Fatalf("expected newest-first ordering, got %+v", entries)
	}
}

func TestUpdateStatusAndHeartbeat(t *testing.T) {
	root := t.TempDir()
	r, err := Open(root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	store := mkStorePath(t, root)
	mustRegister(t, r, "run-1", "Widgets", "", store)

	if err := r.UpdateStatus("run-1", StatusCompleted); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	entry, _, _ := r.FindByRunID("run-1")
	if entry.Status != StatusCompleted {
		t.Fatalf("expected completed status, got %q", entry.Status)
	}

	before := entry.HeartbeatAt
	r.now = func() time.Time { return before.Add(time.Minute) }
	if err := r.UpdateHeartbeat("run-1"); err != nil {
		t.Fatalf("UpdateHeartbeat: %v", err)
	}
	entry, _, _ = r.FindByRunID("run-1")
	if !entry.HeartbeatAt.After(before) {
		t.Fatalf("expected heartbeat advanced, got %v (was %v)", entry.HeartbeatAt, before)
	}
}

func TestUpdateStatus_UnknownRunReturnsErrNotFound(t *testing.T) {
	root := t.TempDir()
	r, err := Open(root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := r.UpdateStatus("missing", StatusFailed); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRegistry_PersistsAcrossReopen(t *testing.T) {
	root := t.TempDir()
	store := mkStorePath(t, root)
	r1, err := Open(root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	mustRegister(t, r1, "run-1", "Widgets", "fp1", store)

	r2, err := Open(root)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	entry, ok, err := r2.FindByRunID("run-1")
	if err != nil || !ok {
		t.Fatalf("expected entry to survive reopen: ok=%v err=%v", ok, err)
	}
	if entry.Topic != "Widgets" {
		t.Fatalf("unexpected topic after reopen: %q", entry.Topic)
	}
}

func TestFindByRunIDWithFallback_SynthesizesFromRunSummary(t *testing.T) {
	root := t.TempDir()
	r, err := Open(root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	runDir := filepath.Join(root, "orphan-run")
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	summary := `{"run_id":"orphan-run","topic":"Orphaned Topic","fingerprint":"fp9"}`
	if err := os.WriteFile(filepath.Join(runDir, "run_summary.json"), []byte(summary), 0o644); err != nil {
		t.Fatalf("write run_summary.json: %v", err)
	}

	entry, ok, err := r.FindByRunIDWithFallback(root, "orphan-run")
	if err != nil {
		t.Fatalf("FindByRunIDWithFallback: %v", err)
	}
	if !ok {
		t.Fatalf("expected synthesized entry")
	}
	if entry.Topic != "Orphaned Topic" || entry.Fingerprint != "fp9" {
		t.Fatalf("unexpected synthesized entry: %+v", entry)
	}
}

func mustRegister(t *testing.T, r *Registry, runID, topic, fingerprint, storePath string) {
	t.Helper()
	if err := r.Register(runID, topic, fingerprint, storePath); err != nil {
		t.Fatalf("Register(%s): %v", runID, err)
	}
}
