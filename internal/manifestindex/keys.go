package manifestindex

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

const (
	keyPrefix = "gmrt"
	// WideKey holds entries whose coverage spans too many cells to index individually.
	WideKey = keyPrefix + ":cell:wide"
)

// EntryKey is stable per file path, so re-recording a path overwrites its blob.
func EntryKey(path string) string {
	return fmt.Sprintf("%s:entry:%016x", keyPrefix, xxhash.Sum64String(path))
}

func CellKey(cell string) string {
	return keyPrefix + ":cell:" + cell
}
