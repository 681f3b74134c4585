// Package entryservice answers schedule queries from the index and triggers
// sync runs. It is shared by the HTTP API and the MCP server.
package entryservice

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/starford/orgcal/internal/apperr"
	"github.com/starford/orgcal/internal/index"
	"github.com/starford/orgcal/internal/syncer"
)

// Runner starts one sync run. *syncer.Syncer implements it.
type Runner interface {
	Run(ctx context.Context) (*syncer.Result, error)
}

// EntryListItem is a lightweight item in a list response.
type EntryListItem struct {
	ID        string     `json:"id"`
	Heading   string     `json:"heading"`
	Plan      string     `json:"plan,omitempty"`
	Path      string     `json:"path"`
	StartsAt  *time.Time `json:"starts_at,omitempty"`
	Intervals int        `json:"intervals"`
	Removed   bool       `json:"removed"`
}

// Status reports the index contents and the last finished sync run.
type Status struct {
	Index    index.Stats    `json:"index"`
	LastSync *syncer.Result `json:"last_sync,omitempty"`
	LastErr  string         `json:"last_error,omitempty"`
}

// ListQuery narrows List.
type ListQuery struct {
	Limit          int
	Offset         int
	Plan           string
	IncludeRemoved bool
	From           time.Time
}

// Service coordinates index reads and sync runs.
type Service struct {
	db     index.EntryIndex
	runner Runner

	mu      sync.Mutex
	last    *syncer.Result
	lastErr error
}

// NewService creates a new entry service. runner may be nil when the caller
// only reads, in which case Sync reports a configuration error.
func NewService(db index.EntryIndex, runner Runner) *Service {
	return &Service{db: db, runner: runner}
}

// List returns a page of entries in chronological order.
func (s *Service) List(_ context.Context, q ListQuery) ([]EntryListItem, int, error) {
	rows, total, err := s.db.ListEntries(index.ListFilter{
		Limit:          q.Limit,
		Offset:         q.Offset,
		IncludeRemoved: q.IncludeRemoved,
		Plan:           q.Plan,
		From:           q.From,
	})
	if err != nil {
		return nil, 0, err
	}
	items := make([]EntryListItem, len(rows))
	for i, r := range rows {
		items[i] = EntryListItem{
			ID:        r.ID,
			Heading:   r.Heading,
			Plan:      r.Plan,
			Path:      r.Path,
			Intervals: len(r.Intervals),
			Removed:   r.Removed,
		}
		if len(r.Intervals) > 0 {
			start := r.Intervals[0].Start
			items[i].StartsAt = &start
		}
	}
	return items, total, nil
}

// Get returns one entry by id.
func (s *Service) Get(_ context.Context, id string) (*index.EntryRow, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperr.ErrNotFound
	}
	return s.db.GetEntry(id)
}

// Search delegates full-text search to the index.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	results, err := s.db.Search(query, limit)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []index.SearchResult{}
	}
	return results, nil
}

// Sync starts a run and records its outcome. A run already in progress
// yields apperr.ErrSyncInProgress and is not recorded.
func (s *Service) Sync(ctx context.Context) (*syncer.Result, error) {
	if s.runner == nil {
		return nil, apperr.NewConfigurationError("remote", errors.New("sync is not configured"))
	}
	res, err := s.runner.Run(ctx)
	if errors.Is(err, apperr.ErrSyncInProgress) {
		return nil, err
	}
	s.record(res, err)
	return res, err
}

func (s *Service) record(res *syncer.Result, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.lastErr = err
		return
	}
	s.last, s.lastErr = res, nil
}

// Status reports index counts and the last run.
func (s *Service) Status(_ context.Context) (*Status, error) {
	stats, err := s.db.Stats()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st := &Status{Index: stats, LastSync: s.last}
	if s.lastErr != nil {
		st.LastErr = s.lastErr.Error()
	}
	return st, nil
}

// Ready reports whether the index answers queries.
func (s *Service) Ready(_ context.Context) error {
	_, err := s.db.Stats()
	return err
}
