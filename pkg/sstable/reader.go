package sstable

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"

	"lsmkv/pkg/types"
)

// Entry is one decoded SSTable data entry, returned as-is including its
// deletion flag — the caller (the engine) decides whether a deleted
// entry means "authoritatively absent."
type Entry struct {
	Deleted bool
	Key     types.Key
	Value   types.Value
}

type indexEntry struct {
	key    []byte
	offset uint64
}

// Reader is an immutable, value-like view of an opened SSTable. Its
// file path and in-memory sparse index never change after Open returns.
type Reader struct {
	ID       uint64
	filePath string

	index   []indexEntry
	minKey  []byte
	maxKey  []byte
	entries uint64

	// mu guards nothing about the index (immutable); it serializes the
	// per-lookup file descriptor open/seek/read sequence below.
	mu sync.Mutex
}

// Open loads path's footer and sparse index into memory. The returned
// Reader does not hold the file open between calls; each Get opens the
// file fresh rather than holding a long-lived file handle, and
// MightContain is answered from memory without opening the file.
func Open(path string, id uint64) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sstable: open %s: %w", path, err)
	}
	defer file.Close()

	r := &Reader{ID: id, filePath: path}

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: stat: %v", ErrCorruptFooter, err)
	}
	const footerTailSize = 8 + 8 // index_offset (u64) + entry_count (u64)
	if info.Size() < footerTailSize+4 {
		return nil, fmt.Errorf("%w: file too small", ErrCorruptFooter)
	}

	if _, err := file.Seek(-footerTailSize, io.SeekEnd); err != nil {
		return nil, fmt.Errorf("%w: seek footer tail: %v", ErrCorruptFooter, err)
	}
	var indexOffset, entryCount uint64
	if err := binary.Read(file, binary.LittleEndian, &indexOffset); err != nil {
		return nil, fmt.Errorf("%w: read index_offset: %v", ErrCorruptFooter, err)
	}
	if err := binary.Read(file, binary.LittleEndian, &entryCount); err != nil {
		return nil, fmt.Errorf("%w: read entry_count: %v", ErrCorruptFooter, err)
	}
	r.entries = entryCount

	if int64(indexOffset) < 0 || int64(indexOffset) > info.Size() {
		return nil, fmt.Errorf("%w: index_offset out of range", ErrCorruptFooter)
	}
	if _, err := file.Seek(int64(indexOffset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: seek index: %v", ErrCorruptFooter, err)
	}

	reader := bufio.NewReader(file)
	var indexSize uint32
	if err := binary.Read(reader, binary.LittleEndian, &indexSize); err != nil {
		return nil, fmt.Errorf("%w: read index_size: %v", ErrCorruptFooter, err)
	}

	r.index = make([]indexEntry, 0, indexSize)
	for i := uint32(0); i < indexSize; i++ {
		var keyLen uint32
		if err := binary.Read(reader, binary.LittleEndian, &keyLen); err != nil {
			return nil, fmt.Errorf("%w: read index key length: %v", ErrCorruptFooter, err)
		}
		key := make([]byte, keyLen)
		if _, err := io.ReadFull(reader, key); err != nil {
			return nil, fmt.Errorf("%w: read index key: %v", ErrCorruptFooter, err)
		}
		var off uint64
		if err := binary.Read(reader, binary.LittleEndian, &off); err != nil {
			return nil, fmt.Errorf("%w: read index offset: %v", ErrCorruptFooter, err)
		}
		r.index = append(r.index, indexEntry{key: key, offset: off})
	}

	if len(r.index) == 0 {
		return r, nil
	}

	first, err := readEntryAt(file, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: read first entry: %v", ErrCorruptFooter, err)
	}
	r.minKey = first.Key

	pos := r.index[len(r.index)-1].offset
	if _, err := file.Seek(int64(pos), io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: seek last index offset: %v", ErrCorruptFooter, err)
	}
	tail := bufio.NewReader(file)
	var lastKey []byte
	for pos < indexOffset {
		entry, size, err := readDataEntry(tail)
		if err != nil {
			break
		}
		lastKey = entry.Key
		pos += size
	}
	r.maxKey = lastKey

	return r, nil
}

// MightContain is a pure range check against [minKey, maxKey]; there is
// no bloom filter in this core.
func (r *Reader) MightContain(key types.Key) bool {
	if len(r.index) == 0 {
		return false
	}
	return bytes.Compare(key, r.minKey) >= 0 && bytes.Compare(key, r.maxKey) <= 0
}

// Get performs a point lookup: binary search the sparse index for the
// greatest indexed key <= key, then linearly probe up to
// IndexInterval+1 consecutive data entries from that offset.
func (r *Reader) Get(key types.Key) (Entry, bool, error) {
	if !r.MightContain(key) {
		return Entry{}, false, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := os.Open(r.filePath)
	if err != nil {
		return Entry{}, false, fmt.Errorf("sstable: open for lookup: %w", err)
	}
	defer file.Close()

	startOffset := r.findStartOffset(key)
	if _, err := file.Seek(int64(startOffset), io.SeekStart); err != nil {
		return Entry{}, false, fmt.Errorf("sstable: seek to probe start: %w", err)
	}

	reader := bufio.NewReader(file)
	for i := 0; i < IndexInterval+1; i++ {
		entry, _, err := readDataEntry(reader)
		if err != nil {
			// Unreadable entry here means either end-of-data-region or
			// interior corruption; both are logged and treated as
			// "absent in this file" rather than failing the lookup.
			slog.Warn("sstable entry unreadable during lookup, treating as absent", "id", r.ID, "error", err)
			return Entry{}, false, nil
		}

		cmp := bytes.Compare(entry.Key, key)
		if cmp == 0 {
			return entry, true, nil
		}
		if cmp > 0 {
			return Entry{}, false, nil
		}
	}

	return Entry{}, false, nil
}

// findStartOffset binary-searches the in-memory index for the greatest
// indexed key <= key, returning 0 if none exists.
func (r *Reader) findStartOffset(key types.Key) uint64 {
	i := sort.Search(len(r.index), func(i int) bool {
		return bytes.Compare(r.index[i].key, key) > 0
	})
	if i == 0 {
		return 0
	}
	return r.index[i-1].offset
}

// EntryCount returns the number of data entries recorded in the footer.
func (r *Reader) EntryCount() uint64 { return r.entries }

// readEntryAt seeks to offset and decodes one data entry.
func readEntryAt(file *os.File, offset int64) (Entry, error) {
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return Entry{}, err
	}
	entry, _, err := readDataEntry(bufio.NewReader(file))
	return entry, err
}

// readDataEntry decodes one (deleted|key_len|key|value_len|value)
// record and reports its on-disk size in bytes.
func readDataEntry(r *bufio.Reader) (Entry, uint64, error) {
	var deleted uint8
	if err := binary.Read(r, binary.LittleEndian, &deleted); err != nil {
		return Entry{}, 0, err
	}

	var keyLen uint32
	if err := binary.Read(r, binary.LittleEndian, &keyLen); err != nil {
		return Entry{}, 0, err
	}
	key := make([]byte, keyLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return Entry{}, 0, err
	}

	var valueLen uint32
	if err := binary.Read(r, binary.LittleEndian, &valueLen); err != nil {
		return Entry{}, 0, err
	}
	value := make([]byte, valueLen)
	if _, err := io.ReadFull(r, value); err != nil {
		return Entry{}, 0, err
	}

	size := uint64(1 + 4 + len(key) + 4 + len(value))
	return Entry{Deleted: deleted != 0, Key: key, Value: value}, size, nil
}
