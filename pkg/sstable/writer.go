package sstable

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"lsmkv/pkg/memtable"
)

// IndexInterval is the sparse-index stride: an index entry is emitted
// for the data entry at ordinal i iff i mod IndexInterval == 0. This
// bounds a point lookup's linear probe to IndexInterval+1 entries.
const IndexInterval = 16

// FileName returns the canonical filename for the SSTable with the
// given id, relative to a data directory.
func FileName(id uint64) string {
	return fmt.Sprintf("sstable_%d.sst", id)
}

// Write serializes entries (which must already be in strictly ascending
// key order — callers pass memtable.MemTable.Ascend()) to a new,
// immutable SSTable file at filepath.Join(dir, FileName(id)).
//
// The file is built in a temporary sibling file first and renamed onto
// its final name only once the footer is flushed and synced, so a crash
// mid-write never leaves a half-written file visible under its
// sstable_<id>.sst name.
func Write(dir string, id uint64, entries []memtable.KV) (string, error) {
	finalPath := filepath.Join(dir, FileName(id))
	tmpPath := filepath.Join(dir, fmt.Sprintf(".sstable_%d-%s.tmp", id, uuid.NewString()))

	if err := writeToPath(tmpPath, entries); err != nil {
		os.Remove(tmpPath)
		return "", err
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("sstable: rename into place: %w", err)
	}

	return finalPath, nil
}

func writeToPath(path string, entries []memtable.KV) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("sstable: create %s: %w", path, err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)

	type indexEntry struct {
		key    []byte
		offset uint64
	}
	var index []indexEntry
	var offset uint64

	for i, kv := range entries {
		if i%IndexInterval == 0 {
			index = append(index, indexEntry{key: kv.Key, offset: offset})
		}

		n, err := writeDataEntry(w, kv)
		if err != nil {
			return fmt.Errorf("sstable: write entry %d: %w", i, err)
		}
		offset += n
	}

	indexOffset := offset

	if err := binary.Write(w, binary.LittleEndian, uint32(len(index))); err != nil {
		return fmt.Errorf("sstable: write index_size: %w", err)
	}
	for _, ie := range index {
		if err := binary.Write(w, binary.LittleEndian, uint32(len(ie.key))); err != nil {
			return err
		}
		if _, err := w.Write(ie.key); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, ie.offset); err != nil {
			return err
		}
	}

	if err := binary.Write(w, binary.LittleEndian, indexOffset); err != nil {
		return fmt.Errorf("sstable: write index_offset: %w", err)
	}
	// entry_count is written as u64 regardless of host platform so the
	// footer layout is identical across 32-bit and 64-bit readers.
	if err := binary.Write(w, binary.LittleEndian, uint64(len(entries))); err != nil {
		return fmt.Errorf("sstable: write entry_count: %w", err)
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("sstable: flush: %w", err)
	}
	return file.Sync()
}

// writeDataEntry writes one data entry (deleted|key_len|key|value_len|value)
// and returns its on-disk size in bytes.
func writeDataEntry(w *bufio.Writer, kv memtable.KV) (uint64, error) {
	deleted := uint8(0)
	value := kv.Entry.Value
	if kv.Entry.Deleted {
		deleted = 1
		value = nil
	}

	if err := binary.Write(w, binary.LittleEndian, deleted); err != nil {
		return 0, err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(kv.Key))); err != nil {
		return 0, err
	}
	if _, err := w.Write(kv.Key); err != nil {
		return 0, err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(value))); err != nil {
		return 0, err
	}
	if _, err := w.Write(value); err != nil {
		return 0, err
	}

	size := uint64(1 + 4 + len(kv.Key) + 4 + len(value))
	return size, nil
}
