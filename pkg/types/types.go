// Package types holds the small aliases shared across the engine's
// packages so none of them needs to import another just for a type name.
package types

// Key is an opaque, non-null byte string compared lexicographically by
// unsigned byte value.
type Key = []byte

// Value is an opaque, non-null byte string. An empty value is distinct
// from "absent."
type Value = []byte

// SequenceNumber is a monotonically increasing, process-local counter
// assigned to every mutation. It orders writes within a single Engine's
// lifetime for diagnostics; it plays no role in recovery or read-path
// correctness, which is governed by WAL/MemTable/SSTable freshness alone.
type SequenceNumber uint64
