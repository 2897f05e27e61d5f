package archive

import (
	"fmt"
	"time"
)

const (
	ManifestName    = "manifest.json"
	manifestVersion = 1
)

type ManifestEntry struct {
	Database      string `json:"database"`
	Collection    string `json:"collection"`
	DocumentCount int64  `json:"document_count"`
	Shard         string `json:"shard"`
}

// Manifest is the archive's table of contents. It is written once, after
// every shard it references.
type Manifest struct {
	Version   int             `json:"version"`
	CreatedAt time.Time       `json:"created_at"`
	Entries   []ManifestEntry `json:"entries"`
}

// TotalDocuments sums the document counts of all entries.
func (m Manifest) TotalDocuments() int64 {
	var total int64
	for _, entry := range m.Entries {
		total += entry.DocumentCount
	}
	return total
}

// Entry looks up the entry for database.collection.
func (m Manifest) Entry(database, collection string) (ManifestEntry, bool) {
	for _, entry := range m.Entries {
		if entry.Database == database && entry.Collection == collection {
			return entry, true
		}
	}
	return ManifestEntry{}, false
}

// BackupArchive describes a finalized archive on disk.
type BackupArchive struct {
	Manifest    Manifest
	Location    string
	Size        int64
	Checksum    string
	StartedAt   time.Time
	CompletedAt time.Time
}

// PackagingError means the archive container could not be written. When
// Finalize returns one the archive has already been discarded.
type PackagingError struct {
	Op  string
	Err error
}

func (e *PackagingError) Error() string {
	return fmt.Sprintf("archive %s failed: %v", e.Op, e.Err)
}

func (e *PackagingError) Unwrap() error {
	return e.Err
}
