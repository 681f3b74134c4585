package index

import "time"

// EntryIndex defines the read model consumed by the query service.
// Consumers depend on this interface rather than the concrete *DB type.
type EntryIndex interface {
	UpsertFile(f FileRow, entries []EntryRow) error
	DeleteFile(path string) error
	GetChecksum(path string) (string, error)
	AllChecksums() (map[string]string, error)
	GetEntry(id string) (*EntryRow, error)
	ListEntries(f ListFilter) ([]EntryRow, int, error)
	Search(query string, limit int) ([]SearchResult, error)
	Stats() (Stats, error)
	Close() error
}

// Verify *DB satisfies EntryIndex at compile time.
var _ EntryIndex = (*DB)(nil)

// ListFilter narrows ListEntries.
type ListFilter struct {
	Limit          int
	Offset         int
	IncludeRemoved bool
	Plan           string
	From           time.Time // entries whose last interval ends before From are skipped
}

// Stats summarises the index contents.
type Stats struct {
	Files   int `json:"files"`
	Entries int `json:"entries"`
	Removed int `json:"removed"`
}
