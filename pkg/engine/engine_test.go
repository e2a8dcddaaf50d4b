package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lsmkv/pkg/config"
)

func mustOpen(t *testing.T, dir string, cfg config.EngineConfig) *Engine {
	t.Helper()
	e, err := New(dir, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return e
}

func getString(t *testing.T, e *Engine, key string) (string, bool) {
	t.Helper()
	v, found, err := e.Get([]byte(key))
	if err != nil {
		t.Fatalf("Get(%q) failed: %v", key, err)
	}
	if !found {
		return "", false
	}
	return string(v), true
}

// Scenario 1: Basic.
func TestEngine_Scenario_Basic(t *testing.T) {
	dir := t.TempDir()
	e := mustOpen(t, dir, config.EngineConfig{})
	defer e.Close()

	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	must(e.Put([]byte("name"), []byte("Yash")))
	must(e.Put([]byte("name"), []byte("Yash Gulhane")))

	if v, found := getString(t, e, "name"); !found || v != "Yash Gulhane" {
		t.Fatalf("expected name=Yash Gulhane, got %q found=%v", v, found)
	}
	if _, found := getString(t, e, "unknown"); found {
		t.Fatal("expected unknown to be absent")
	}

	must(e.Put([]byte("city"), []byte("Delhi")))
	must(e.Put([]byte("company"), []byte("Samsung")))
	must(e.Delete([]byte("city")))

	if e.MemtableSize() == 0 {
		t.Fatal("expected non-zero memtable size after puts")
	}
}

// Scenario 2: Persistence basic — recovery purely via WAL replay, no
// SSTable created.
func TestEngine_Scenario_PersistenceBasic(t *testing.T) {
	dir := t.TempDir()
	e := mustOpen(t, dir, config.EngineConfig{})

	if err := e.Put([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := e.Put([]byte("b"), []byte("2")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := e.Put([]byte("c"), []byte("3")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := e.Delete([]byte("b")); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	// Simulate a crash rather than a graceful shutdown: close only the
	// WAL, abandoning the MemTable unflushed, so reopening this
	// directory must recover purely by WAL replay with zero SSTables.
	if err := e.wal.Close(); err != nil {
		t.Fatalf("wal Close failed: %v", err)
	}

	if e.SSTableCount() != 0 {
		t.Fatalf("expected no sstables before reopen, got %d", e.SSTableCount())
	}

	e2 := mustOpen(t, dir, config.EngineConfig{})
	defer e2.Close()

	if e2.SSTableCount() != 0 {
		t.Fatalf("expected recovery with no sstables, got %d", e2.SSTableCount())
	}
	if v, found := getString(t, e2, "a"); !found || v != "1" {
		t.Fatalf("expected a=1, got %q found=%v", v, found)
	}
	if _, found := getString(t, e2, "b"); found {
		t.Fatal("expected b to be absent after recovery")
	}
	if v, found := getString(t, e2, "c"); !found || v != "3" {
		t.Fatalf("expected c=3, got %q found=%v", v, found)
	}
}

// Scenario 3: Flush-triggered.
func TestEngine_Scenario_FlushTriggered(t *testing.T) {
	dir := t.TempDir()
	e := mustOpen(t, dir, config.EngineConfig{MemtableSizeLimit: 1024})
	defer e.Close()

	value := strings.Repeat("v", 50)
	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("key%d", i)
		if err := e.Put([]byte(key), []byte(value)); err != nil {
			t.Fatalf("Put(%q) failed: %v", key, err)
		}
	}

	if e.SSTableCount() == 0 {
		t.Fatal("expected at least one sstable after exceeding the memtable size limit")
	}
	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("key%d", i)
		if v, found := getString(t, e, key); !found || v != value {
			t.Fatalf("expected %s=%s, got %q found=%v", key, value, v, found)
		}
	}
}

// Scenario 4: Recovery with SSTables.
func TestEngine_Scenario_RecoveryWithSSTables(t *testing.T) {
	dir := t.TempDir()
	e := mustOpen(t, dir, config.EngineConfig{MemtableSizeLimit: 1024})

	for i := 0; i < 200; i++ {
		key := fmt.Sprintf("key%d", i)
		value := fmt.Sprintf("value%d", i)
		if err := e.Put([]byte(key), []byte(value)); err != nil {
			t.Fatalf("Put(%q) failed: %v", key, err)
		}
	}
	for i := 0; i <= 98; i += 2 {
		key := fmt.Sprintf("key%d", i)
		if err := e.Delete([]byte(key)); err != nil {
			t.Fatalf("Delete(%q) failed: %v", key, err)
		}
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	e2 := mustOpen(t, dir, config.EngineConfig{MemtableSizeLimit: 1024})
	defer e2.Close()

	if _, found := getString(t, e2, "key0"); found {
		t.Fatal("expected key0 to be absent")
	}
	if v, found := getString(t, e2, "key1"); !found || v != "value1" {
		t.Fatalf("expected key1=value1, got %q found=%v", v, found)
	}
	if _, found := getString(t, e2, "key98"); found {
		t.Fatal("expected key98 to be absent")
	}
	if v, found := getString(t, e2, "key99"); !found || v != "value99" {
		t.Fatalf("expected key99=value99, got %q found=%v", v, found)
	}
	if v, found := getString(t, e2, "key199"); !found || v != "value199" {
		t.Fatalf("expected key199=value199, got %q found=%v", v, found)
	}
}

// Scenario 5: Checkpoint/clear.
func TestEngine_Scenario_CheckpointClear(t *testing.T) {
	dir := t.TempDir()
	e := mustOpen(t, dir, config.EngineConfig{})

	for i := 0; i < 1000; i++ {
		key := fmt.Sprintf("k%d", i)
		if err := e.Put([]byte(key), []byte("x")); err != nil {
			t.Fatalf("Put(%q) failed: %v", key, err)
		}
	}

	if err := e.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if e.MemtableSize() != 0 {
		t.Fatalf("expected empty memtable after flush, got size %d", e.MemtableSize())
	}

	walPath := filepath.Join(dir, "wal.log")
	info, err := os.Stat(walPath)
	if err != nil {
		t.Fatalf("stat wal.log failed: %v", err)
	}
	if info.Size() != 0 {
		t.Fatalf("expected wal.log to be zero bytes after flush, got %d", info.Size())
	}

	if err := e.Put([]byte("after"), []byte("checkpoint")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	e2 := mustOpen(t, dir, config.EngineConfig{})
	defer e2.Close()

	if v, found := getString(t, e2, "after"); !found || v != "checkpoint" {
		t.Fatalf("expected after=checkpoint, got %q found=%v", v, found)
	}
}

// Scenario 6: Freshness ordering.
func TestEngine_Scenario_FreshnessOrdering(t *testing.T) {
	dir := t.TempDir()
	e := mustOpen(t, dir, config.EngineConfig{})
	defer e.Close()

	if err := e.Put([]byte("k"), []byte("v1")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := e.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if err := e.Put([]byte("k"), []byte("v2")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if v, found := getString(t, e, "k"); !found || v != "v2" {
		t.Fatalf("expected k=v2 before second flush, got %q found=%v", v, found)
	}
	if err := e.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if v, found := getString(t, e, "k"); !found || v != "v2" {
		t.Fatalf("expected k=v2 after second flush, got %q found=%v", v, found)
	}

	if err := e.Delete([]byte("k")); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, found := getString(t, e, "k"); found {
		t.Fatal("expected k to be absent after delete")
	}
	if err := e.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if _, found := getString(t, e, "k"); found {
		t.Fatal("expected k to remain absent after flushing the tombstone")
	}
}

// TestEngine_Property_CrashRecoveryRoundTrip checks a crash-recovery
// round-trip for an arbitrary mixed sequence of puts and deletes.
func TestEngine_Property_CrashRecoveryRoundTrip(t *testing.T) {
	dir := t.TempDir()
	e1 := mustOpen(t, dir, config.EngineConfig{MemtableSizeLimit: 512})

	want := map[string]string{}
	for i := 0; i < 60; i++ {
		key := fmt.Sprintf("rk%d", i)
		value := fmt.Sprintf("rv%d", i)
		if err := e1.Put([]byte(key), []byte(value)); err != nil {
			t.Fatalf("Put(%q) failed: %v", key, err)
		}
		want[key] = value
	}
	for i := 0; i < 60; i += 3 {
		key := fmt.Sprintf("rk%d", i)
		if err := e1.Delete([]byte(key)); err != nil {
			t.Fatalf("Delete(%q) failed: %v", key, err)
		}
		delete(want, key)
	}
	if err := e1.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	e2 := mustOpen(t, dir, config.EngineConfig{MemtableSizeLimit: 512})
	defer e2.Close()

	for i := 0; i < 60; i++ {
		key := fmt.Sprintf("rk%d", i)
		wantValue, shouldExist := want[key]
		gotValue, found := getString(t, e2, key)
		if found != shouldExist {
			t.Fatalf("key %s: expected present=%v, got present=%v", key, shouldExist, found)
		}
		if shouldExist && gotValue != wantValue {
			t.Fatalf("key %s: expected %s, got %s", key, wantValue, gotValue)
		}
	}
}

// TestEngine_Property_FlushInvariance checks that Get results are
// unaffected by a voluntary flush.
func TestEngine_Property_FlushInvariance(t *testing.T) {
	dir := t.TempDir()
	e := mustOpen(t, dir, config.EngineConfig{})
	defer e.Close()

	keys := []string{"x", "y", "z"}
	for _, k := range keys {
		if err := e.Put([]byte(k), []byte(k+"-value")); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	before := map[string]string{}
	for _, k := range keys {
		v, found := getString(t, e, k)
		if !found {
			t.Fatalf("expected %s to be present before flush", k)
		}
		before[k] = v
	}

	if err := e.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	for _, k := range keys {
		v, found := getString(t, e, k)
		if !found || v != before[k] {
			t.Fatalf("flush changed the result for %s: before=%s after=%s found=%v", k, before[k], v, found)
		}
	}
}

func TestEngine_DuplicateTableIDDetected(t *testing.T) {
	dir := t.TempDir()

	e := mustOpen(t, dir, config.EngineConfig{})
	if err := e.Put([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := e.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Duplicate the one existing sstable under a colliding name.
	src := filepath.Join(dir, "sstable_0.sst")
	dup := filepath.Join(dir, "sstable_00.sst")
	data, err := os.ReadFile(src)
	if err != nil {
		t.Fatalf("read sstable failed: %v", err)
	}
	if err := os.WriteFile(dup, data, 0o600); err != nil {
		t.Fatalf("write duplicate sstable failed: %v", err)
	}

	_, err = New(dir, config.EngineConfig{})
	if err == nil {
		t.Fatal("expected an error opening a directory with colliding sstable ids")
	}
}
