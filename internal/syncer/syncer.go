// Package syncer runs one reconciliation pass between the remote schedule
// service and the local document.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/orgcal/internal/apperr"
	"github.com/starford/orgcal/internal/calendar"
	"github.com/starford/orgcal/internal/document"
	"github.com/starford/orgcal/internal/event"
	"github.com/starford/orgcal/internal/metrics"
	"github.com/starford/orgcal/internal/models"
	"github.com/starford/orgcal/internal/reconcile"
)

// Remote is the schedule service as seen by a run.
type Remote interface {
	GetVersionManifest(ctx context.Context, start, end time.Time, known map[string]string) ([]models.ManifestEntry, error)
	GetEventsByID(ctx context.Context, ids []string) ([]models.RawEvent, error)
}

// Document is the local store a run mutates. *document.Store implements it.
type Document interface {
	Load() error
	LocalVersions() map[string]string
	Entries() []document.EntryHandle
	FindByID(id string) (document.EntryHandle, bool)
	Removed(h document.EntryHandle) bool
	Expiration(h document.EntryHandle) (time.Time, *time.Location, bool)
	Insert(ev *models.Event) document.EntryHandle
	Rewrite(h document.EntryHandle, ev *models.Event)
	MarkRemoved(h document.EntryHandle, now time.Time)
	Archive(h document.EntryHandle, now time.Time) error
	Persist() error
}

// Hook runs after a successful persist. Hook failures are logged and do not
// fail the run.
type Hook func(ctx context.Context, res *Result) error

// Result summarises one run.
type Result struct {
	RunID     string        `json:"run_id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Added     int           `json:"added"`
	Modified  int           `json:"modified"`
	Removed   int           `json:"removed"`
	Archived  int           `json:"archived"`
	Skipped   int           `json:"skipped"`
}

// Syncer serializes runs over one document.
type Syncer struct {
	remote      Remote
	doc         Document
	materialize *event.Materializer
	horizonDays int
	logger      *slog.Logger
	now         func() time.Time
	hooks       []Hook

	mu sync.Mutex
}

// Option customises a Syncer.
type Option func(*Syncer)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Syncer) { s.logger = l }
}

// WithClock overrides the run clock.
func WithClock(now func() time.Time) Option {
	return func(s *Syncer) { s.now = now }
}

// AfterPersist registers a hook run after each successful persist.
func AfterPersist(h Hook) Option {
	return func(s *Syncer) { s.hooks = append(s.hooks, h) }
}

// New builds a Syncer. m supplies the default location and horizon.
func New(remote Remote, doc Document, m *event.Materializer, opts ...Option) *Syncer {
	s := &Syncer{
		remote:      remote,
		doc:         doc,
		materialize: m,
		horizonDays: m.HorizonDays,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run performs one pass. Any failure before persist leaves the document
// file untouched. A concurrent call returns apperr.ErrSyncInProgress.
func (s *Syncer) Run(ctx context.Context) (*Result, error) {
	if !s.mu.TryLock() {
		return nil, apperr.ErrSyncInProgress
	}
	defer s.mu.Unlock()

	started := time.Now()
	res := &Result{RunID: uuid.NewString(), StartedAt: s.now()}
	logger := s.logger.With(slog.String("run_id", res.RunID))

	err := s.run(ctx, res, logger)
	res.Duration = time.Since(started)
	metrics.ObserveSync(started, metrics.SyncCounts{
		Added: res.Added, Modified: res.Modified, Removed: res.Removed, Archived: res.Archived,
	}, err)
	if err != nil {
		logger.Error("sync failed", slog.String("error", err.Error()))
		return res, err
	}

	logger.Info("sync finished",
		slog.Int("added", res.Added),
		slog.Int("modified", res.Modified),
		slog.Int("removed", res.Removed),
		slog.Int("archived", res.Archived),
		slog.Int("skipped", res.Skipped),
		slog.Duration("duration", res.Duration),
	)
	for _, h := range s.hooks {
		if err := h(ctx, res); err != nil {
			logger.Warn("after-persist hook failed", slog.String("error", err.Error()))
		}
	}
	return res, nil
}

func (s *Syncer) run(ctx context.Context, res *Result, logger *slog.Logger) error {
	now := res.StartedAt

	if err := s.doc.Load(); err != nil {
		return fmt.Errorf("sync: load: %w", err)
	}
	local := s.doc.LocalVersions()

	manifest, err := s.remote.GetVersionManifest(ctx, now, calendar.AddDays(now, s.horizonDays), local)
	if err != nil {
		return fmt.Errorf("sync: manifest: %w", err)
	}
	diff, err := reconcile.Diff(manifest, local)
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	logger.Debug("manifest reconciled",
		slog.Int("entries", len(manifest)),
		slog.Int("added", len(diff.Added)),
		slog.Int("modified", len(diff.Modified)),
		slog.Int("removed", len(diff.Removed)),
		slog.Int("unchanged", len(diff.Unchanged)),
	)

	events, err := s.fetch(ctx, diff.Fetch())
	if err != nil {
		return err
	}

	for _, id := range diff.Added {
		s.upsert(id, events[id])
		res.Added++
	}
	for _, id := range diff.Modified {
		if diff.IsUnchanged(id) {
			res.Skipped++
			continue
		}
		s.upsert(id, events[id])
		res.Modified++
	}
	for _, id := range diff.Removed {
		h, ok := s.doc.FindByID(id)
		if !ok || s.doc.Removed(h) {
			res.Skipped++
			continue
		}
		s.doc.MarkRemoved(h, now)
		res.Removed++
	}

	for _, h := range s.doc.Entries() {
		exp, loc, ok := s.doc.Expiration(h)
		if !ok || !reconcile.ShouldArchive(exp, loc, now) {
			continue
		}
		if err := s.doc.Archive(h, now); err != nil {
			return fmt.Errorf("sync: archive: %w", err)
		}
		res.Archived++
	}

	if err := s.doc.Persist(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	return nil
}

// fetch retrieves and materializes ids. Every requested id must come back.
func (s *Syncer) fetch(ctx context.Context, ids []string) (map[string]*models.Event, error) {
	raws, err := s.remote.GetEventsByID(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("sync: fetch: %w", err)
	}
	out := make(map[string]*models.Event, len(raws))
	for _, raw := range raws {
		ev, err := s.materialize.Materialize(raw)
		if err != nil {
			return nil, fmt.Errorf("sync: %w", err)
		}
		out[ev.ID] = ev
	}
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			return nil, fmt.Errorf("sync: %w", &apperr.RemoteError{
				Action:  "ScheduleGetEventsById",
				Payload: "schedule_event " + id,
				Err:     apperr.ErrNotFound,
			})
		}
	}
	return out, nil
}

// upsert rewrites the entry for id when it exists and inserts it otherwise.
func (s *Syncer) upsert(id string, ev *models.Event) {
	if h, ok := s.doc.FindByID(id); ok {
		s.doc.Rewrite(h, ev)
		return
	}
	s.doc.Insert(ev)
}
