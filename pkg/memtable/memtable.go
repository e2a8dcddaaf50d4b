// Package memtable implements the in-memory, ordered-by-key mutation
// buffer that sits in front of the SSTable stack.
package memtable

import (
	"bytes"
	"sync"
	"sync/atomic"

	"github.com/zhangyunhao116/skipmap"

	"lsmkv/pkg/types"
)

// Entry is the value half of a MemTable binding: a Put stores
// (value, false); a Delete stores ("", true).
type Entry struct {
	Value   types.Value
	Deleted bool
}

type sortedMap = skipmap.FuncMap[[]byte, *Entry]

// MemTable is an ordered-by-key map from key to Entry with byte-size
// accounting for flush triggering. It is backed by a lock-free
// concurrent sorted map (github.com/zhangyunhao116/skipmap) so ascending
// iteration and concurrent external readers need no extra locking on
// this type's own part. mu is retained for callers that want to inspect
// the MemTable outside of the engine's lock (e.g. tests); the engine's
// own put/get/delete path never needs it, since the engine mutex already
// serializes those callers (see pkg/engine).
type MemTable struct {
	mu    sync.RWMutex
	data  *sortedMap
	usage atomic.Int64
}

// New returns an empty MemTable.
func New() *MemTable {
	return &MemTable{
		data: skipmap.NewFunc[[]byte, *Entry](func(a, b []byte) bool {
			return bytes.Compare(a, b) < 0
		}),
	}
}

// Put establishes or replaces the binding for key. len(value) is always
// added to the usage total; len(key) is added only for a newly inserted
// key, and the prior value's length is subtracted on overwrite.
func (mt *MemTable) Put(key types.Key, value types.Value) {
	mt.upsert(key, &Entry{Value: value, Deleted: false})
}

// Delete records a tombstone for key. Tombstones carry no value bytes,
// so no value length is added to the size accounting.
func (mt *MemTable) Delete(key types.Key) {
	mt.upsert(key, &Entry{Value: nil, Deleted: true})
}

func (mt *MemTable) upsert(key types.Key, next *Entry) {
	if old, ok := mt.data.Load(key); ok {
		mt.usage.Add(-int64(len(old.Value)))
	} else {
		mt.usage.Add(int64(len(key)))
	}
	mt.usage.Add(int64(len(next.Value)))
	mt.data.Store(key, next)
}

// Get returns the entry for key, including tombstones; callers decide
// how to interpret a deleted entry.
func (mt *MemTable) Get(key types.Key) (Entry, bool) {
	e, ok := mt.data.Load(key)
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Contains reports whether key has any binding, including a tombstone.
func (mt *MemTable) Contains(key types.Key) bool {
	_, ok := mt.data.Load(key)
	return ok
}

// Size returns the number of distinct keys held (tombstones counted).
func (mt *MemTable) Size() int {
	return mt.data.Len()
}

// Empty reports whether the MemTable holds no keys.
func (mt *MemTable) Empty() bool {
	return mt.data.Len() == 0
}

// MemoryUsage is an approximation of payload bytes only: sum of
// len(key)+len(value) over entries, excluding map overhead and the
// deletion flag. Used solely as a flush heuristic.
func (mt *MemTable) MemoryUsage() uint64 {
	if u := mt.usage.Load(); u > 0 {
		return uint64(u)
	}
	return 0
}

// Clear drops every entry and resets the size accounting, reborning the
// MemTable empty after a flush.
func (mt *MemTable) Clear() {
	mt.data = skipmap.NewFunc[[]byte, *Entry](func(a, b []byte) bool {
		return bytes.Compare(a, b) < 0
	})
	mt.usage.Store(0)
}

// KV is one (key, Entry) pair as returned by Ascend.
type KV struct {
	Key   types.Key
	Entry Entry
}

// Ascend returns every entry in strictly ascending key order. It is
// used by the SSTable writer to snapshot a MemTable for flushing.
func (mt *MemTable) Ascend() []KV {
	out := make([]KV, 0, mt.data.Len())
	mt.data.Range(func(key []byte, value *Entry) bool {
		out = append(out, KV{Key: key, Entry: *value})
		return true
	})
	return out
}

// RLock and RUnlock expose the MemTable's reader-writer lock for
// external, test-only inspection outside the engine mutex. The
// engine's own read/write path does not use them.
func (mt *MemTable) RLock()   { mt.mu.RLock() }
func (mt *MemTable) RUnlock() { mt.mu.RUnlock() }
