// Package engine composes the write-ahead log, the MemTable, and the
// SSTable stack into an LSM engine: it routes writes through
// WAL+MemTable, flushes to SSTables when a size threshold is crossed,
// and serves reads by layering the MemTable over SSTables in
// newest-first order.
package engine

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"

	"github.com/zhangyunhao116/skipset"

	"lsmkv/pkg/clock"
	"lsmkv/pkg/config"
	"lsmkv/pkg/memtable"
	"lsmkv/pkg/sstable"
	"lsmkv/pkg/types"
	"lsmkv/pkg/walog"
)

var sstableNamePattern = regexp.MustCompile(`^sstable_(\d+)\.sst$`)

// Engine is the single-writer, multi-reader embedded storage core. All
// public methods are serialized by mu; the MemTable's own lock is never
// taken on this path (see pkg/memtable).
type Engine struct {
	mu sync.Mutex

	dataDir string
	cfg     config.EngineConfig

	wal *walog.WAL
	mt  *memtable.MemTable
	// sstables is newest-first: index 0 is the most recently flushed
	// table, so reads consult it before any older table.
	sstables []*sstable.Reader

	nextTableID uint64
	seq         *clock.AtomicClock
}

// New constructs an Engine over dataDir, creating it if absent,
// loading any existing SSTables newest-first, and replaying the WAL
// into a fresh MemTable.
func New(dataDir string, cfg config.EngineConfig) (*Engine, error) {
	cfg = cfg.Normalize()

	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("engine: create data dir: %w", err)
	}

	wal, err := walog.Open(dataDir)
	if err != nil {
		return nil, fmt.Errorf("engine: open wal: %w", err)
	}

	e := &Engine{
		dataDir: dataDir,
		cfg:     cfg,
		wal:     wal,
		mt:      memtable.New(),
		seq:     clock.NewAtomic(0),
	}

	if err := e.loadSSTables(); err != nil {
		wal.Close()
		return nil, err
	}

	if err := e.replayWAL(); err != nil {
		wal.Close()
		return nil, err
	}

	return e, nil
}

// loadSSTables scans dataDir for "sstable_<digits>.sst" files, opens a
// Reader for each in newest-id-first order, and sets nextTableID past
// the highest id observed.
func (e *Engine) loadSSTables() error {
	dirEntries, err := os.ReadDir(e.dataDir)
	if err != nil {
		return fmt.Errorf("engine: scan data dir: %w", err)
	}

	seen := skipset.New[uint64]()
	type idFile struct {
		id   uint64
		path string
	}
	var found []idFile

	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		m := sstableNamePattern.FindStringSubmatch(de.Name())
		if m == nil {
			continue
		}
		id, err := strconv.ParseUint(m[1], 10, 64)
		if err != nil {
			continue
		}
		if !seen.Add(id) {
			return fmt.Errorf("%w: id %d", ErrDuplicateTableID, id)
		}
		found = append(found, idFile{id: id, path: filepath.Join(e.dataDir, de.Name())})
	}

	sort.Slice(found, func(i, j int) bool { return found[i].id > found[j].id })

	var maxID uint64
	for _, f := range found {
		reader, err := sstable.Open(f.path, f.id)
		if err != nil {
			return fmt.Errorf("engine: open sstable %s: %w", f.path, err)
		}
		e.sstables = append(e.sstables, reader)
		if f.id > maxID {
			maxID = f.id
		}
	}
	if len(found) > 0 {
		e.nextTableID = maxID + 1
	}

	return nil
}

// replayWAL applies every surviving WAL record to the fresh MemTable,
// in the order walog.Recover returns them.
func (e *Engine) replayWAL() error {
	entries, err := e.wal.Recover()
	if err != nil {
		return fmt.Errorf("engine: wal recovery: %w", err)
	}

	for _, ent := range entries {
		switch ent.Op {
		case walog.OpPut:
			e.mt.Put(ent.Key, ent.Value)
		case walog.OpDelete:
			e.mt.Delete(ent.Key)
		}
		e.seq.Next()
	}

	return nil
}

// Put establishes or replaces the binding for key.
func (e *Engine) Put(key types.Key, value types.Value) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.wal.Append(walog.OpPut, key, value); err != nil {
		return fmt.Errorf("engine: put: %w", err)
	}
	e.mt.Put(key, value)
	e.seq.Next()

	return e.maybeFlushLocked()
}

// Delete records a tombstone for key. It does not distinguish "the key
// did not exist."
func (e *Engine) Delete(key types.Key) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.wal.Append(walog.OpDelete, key, nil); err != nil {
		return fmt.Errorf("engine: delete: %w", err)
	}
	e.mt.Delete(key)
	e.seq.Next()

	return e.maybeFlushLocked()
}

// Get returns the current value for key, or (nil, false) if key is
// absent or was deleted.
func (e *Engine) Get(key types.Key) (types.Value, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if entry, ok := e.mt.Get(key); ok {
		if entry.Deleted {
			return nil, false, nil
		}
		return entry.Value, true, nil
	}

	for _, reader := range e.sstables {
		if !reader.MightContain(key) {
			continue
		}
		entry, found, err := reader.Get(key)
		if err != nil {
			// A corrupt SSTable is logged and treated as "absent in
			// that file" rather than failing the whole lookup; the
			// search continues to older tables.
			slog.Warn("sstable lookup failed, treating as absent", "id", reader.ID, "error", err)
			continue
		}
		if !found {
			continue
		}
		if entry.Deleted {
			return nil, false, nil
		}
		return entry.Value, true, nil
	}

	return nil, false, nil
}

// Contains reports whether key resolves to a live value — equivalent
// to "Get(key) returned a value."
func (e *Engine) Contains(key types.Key) (bool, error) {
	_, found, err := e.Get(key)
	return found, err
}

// maybeFlushLocked flushes the MemTable if it has crossed the
// configured size threshold. Callers must hold e.mu.
func (e *Engine) maybeFlushLocked() error {
	if e.mt.MemoryUsage() < e.cfg.MemtableSizeLimit {
		return nil
	}
	return e.flushLocked()
}

// Flush forces a flush of the current MemTable to a new SSTable,
// unless the MemTable is already empty.
func (e *Engine) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.mt.Empty() {
		return nil
	}
	return e.flushLocked()
}

// flushLocked writes the MemTable out via the SSTable writer, prepends
// a reader for the new file to the SSTable list, clears the MemTable,
// and truncates the WAL. Callers must hold e.mu.
func (e *Engine) flushLocked() error {
	id := e.nextTableID
	e.nextTableID++

	entries := e.mt.Ascend()
	path, err := sstable.Write(e.dataDir, id, entries)
	if err != nil {
		return fmt.Errorf("engine: flush: write sstable: %w", err)
	}

	reader, err := sstable.Open(path, id)
	if err != nil {
		return fmt.Errorf("engine: flush: open new sstable: %w", err)
	}

	e.sstables = append([]*sstable.Reader{reader}, e.sstables...)
	e.mt.Clear()

	if err := e.wal.Checkpoint(); err != nil {
		return fmt.Errorf("engine: flush: checkpoint wal: %w", err)
	}

	return nil
}

// Sync forces the WAL's buffered writes to stable storage.
func (e *Engine) Sync() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.wal.Sync()
}

// MemtableSize returns the current MemTable's approximate byte usage.
func (e *Engine) MemtableSize() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mt.MemoryUsage()
}

// SSTableCount returns the number of SSTables currently backing reads.
func (e *Engine) SSTableCount() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return uint64(len(e.sstables))
}

// LastSequence returns the most recently issued sequence number. It is
// a diagnostic accessor only (see pkg/types.SequenceNumber); no read,
// write, or recovery path depends on its value.
func (e *Engine) LastSequence() types.SequenceNumber {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seq.Val()
}

// Close performs a final flush if the MemTable is non-empty, then
// closes the WAL. Required for any process that opens more than one
// Engine over the same directory in sequence (e.g. a crash-recovery
// test) or that simply wants a clean shutdown.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.mt.Empty() {
		if err := e.flushLocked(); err != nil {
			return fmt.Errorf("engine: close: final flush: %w", err)
		}
	}

	return e.wal.Close()
}
