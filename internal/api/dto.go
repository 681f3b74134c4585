package api

import (
	"github.com/starford/orgcal/internal/entryservice"
	"github.com/starford/orgcal/internal/index"
	"github.com/starford/orgcal/internal/syncer"
)

// EntryListItem is a lightweight item in a list response (aliased from the domain layer).
type EntryListItem = entryservice.EntryListItem

// EntryDetail is the full entry response type.
type EntryDetail = index.EntryRow

// EntryListResponse wraps paginated entry listings.
type EntryListResponse struct {
	Entries []EntryListItem `json:"entries"`
	Total   int             `json:"total"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []index.SearchResult `json:"results"`
}

// SyncResponse is returned after a manual sync run.
type SyncResponse = syncer.Result

// StatusResponse reports index counts and the last run.
type StatusResponse = entryservice.Status
