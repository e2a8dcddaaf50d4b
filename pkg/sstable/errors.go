package sstable

import "errors"

var (
	// ErrCorruptFooter is returned when an SSTable's footer cannot be
	// parsed during Open. Construction-time footer failures are fatal;
	// per-lookup corruption in the data region is handled separately by
	// Get, which treats it as "absent in this file" rather than failing
	// the caller.
	ErrCorruptFooter = errors.New("sstable: corrupt or truncated footer")
)
