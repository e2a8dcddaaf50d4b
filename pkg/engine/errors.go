package engine

import "errors"

var (
	// ErrDuplicateTableID is returned at startup when two SSTable
	// files in the data directory parse to the same id.
	ErrDuplicateTableID = errors.New("engine: duplicate sstable id in data directory")
)
