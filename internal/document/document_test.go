package document

import (
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/orgcal/internal/models"
	"github.com/starford/orgcal/internal/storage"
)

func newStore(t *testing.T) (*Store, *storage.FS) {
	t.Helper()
	fs, err := storage.NewFS(t.TempDir())
	require.NoError(t, err)
	s, err := Open(fs, "schedule.org", "", time.UTC)
	require.NoError(t, err)
	return s, fs
}

func utc(d, h, m int) time.Time {
	return time.Date(2024, 1, d, h, m, 0, 0, time.UTC)
}

func weekly() *models.Event {
	e1, e2 := utc(3, 11, 0), utc(10, 11, 0)
	return &models.Event{
		ID: "42", Version: "7", Plan: "Meeting", Summary: "Weekly sync",
		Description: "Room A, bring slides.",
		Intervals: []models.Occurrence{
			{Start: utc(3, 10, 0), End: &e1},
			{Start: utc(10, 10, 0), End: &e2},
		},
		Expiration:   utc(10, 0, 0),
		Timezone:     "UTC",
		Participants: []string{"Alice", "Bob"},
		Resources:    []string{"Room A"},
	}
}

func holiday() *models.Event {
	return &models.Event{
		ID: "43", Version: "1", Summary: "Company holiday",
		Intervals:  []models.Occurrence{{Start: utc(1, 0, 0)}},
		Expiration: utc(1, 0, 0),
		Timezone:   "UTC",
	}
}

func TestStore_RenderGolden(t *testing.T) {
	s, fs := newStore(t)
	s.Insert(weekly())
	h := s.Insert(holiday())
	s.MarkRemoved(h, utc(2, 9, 15))
	require.NoError(t, s.Persist())

	data, err := fs.Read("schedule.org")
	require.NoError(t, err)
	g := goldie.New(t, goldie.WithFixtureDir("testdata"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "schedule", data)
}

func TestStore_LoadMissingIsEmpty(t *testing.T) {
	s, _ := newStore(t)
	assert.Empty(t, s.Entries())
	assert.Empty(t, s.LocalVersions())
	assert.False(t, s.Dirty())
	assert.Equal(t, "schedule.org_archive", s.ArchivePath())
}

func TestStore_FindAndVersions(t *testing.T) {
	s, _ := newStore(t)
	s.Insert(weekly())
	s.Insert(holiday())

	h, ok := s.FindByID("43")
	require.True(t, ok)
	assert.Equal(t, "43", s.ID(h))
	_, ok = s.FindByID("99")
	assert.False(t, ok)

	assert.Equal(t, map[string]string{"42": "7", "43": "1"}, s.LocalVersions())
}

func TestStore_PersistAndReload(t *testing.T) {
	s, fs := newStore(t)
	s.Insert(weekly())
	require.NoError(t, s.Persist())
	assert.False(t, s.Dirty())

	again, err := Open(fs, "schedule.org", "", time.UTC)
	require.NoError(t, err)
	h, ok := again.FindByID("42")
	require.True(t, ok)

	ev, err := again.Event(h)
	require.NoError(t, err)
	want := weekly()
	assert.Equal(t, want.Summary, ev.Summary)
	assert.Equal(t, want.Description, ev.Description)
	assert.Equal(t, want.Participants, ev.Participants)
	assert.Equal(t, want.Resources, ev.Resources)
	require.Len(t, ev.Intervals, 2)
	assert.True(t, ev.Intervals[1].Start.Equal(want.Intervals[1].Start))
	assert.True(t, ev.Intervals[1].End.Equal(*want.Intervals[1].End))

	exp, loc, ok := again.Expiration(h)
	require.True(t, ok)
	assert.Equal(t, time.UTC, loc)
	assert.True(t, exp.Equal(utc(10, 0, 0)))
}

func TestStore_LoadDiscardsUnpersisted(t *testing.T) {
	s, _ := newStore(t)
	s.Insert(weekly())
	require.NoError(t, s.Load())
	assert.Empty(t, s.Entries())
}

func TestStore_RewriteKeepsUserProperties(t *testing.T) {
	s, fs := newStore(t)
	require.NoError(t, fs.Write("schedule.org", []byte(
		"* Old title\n:PROPERTIES:\n:ID: 42\n:CATEGORY: work\n:VERSION: 6\n:RESOURCES: Room B\n:END:\n<2023-12-27 Wed 10:00-11:00>\n")))
	require.NoError(t, s.Load())

	h, ok := s.FindByID("42")
	require.True(t, ok)
	ev := weekly()
	ev.Resources = nil
	s.Rewrite(h, ev)
	require.NoError(t, s.Persist())

	data, err := fs.Read("schedule.org")
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "* Weekly sync\n:PROPERTIES:\n:ID: 42\n:CATEGORY: work\n:VERSION: 7\n")
	assert.NotContains(t, text, "RESOURCES")
	assert.NotContains(t, text, "2023-12-27")
}

func TestStore_RewriteClearsRemoved(t *testing.T) {
	s, _ := newStore(t)
	h := s.Insert(holiday())
	s.MarkRemoved(h, utc(2, 9, 0))
	require.True(t, s.Removed(h))

	s.Rewrite(h, holiday())
	assert.False(t, s.Removed(h))
	events, err := s.ActiveEvents()
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestStore_MarkRemovedDeactivates(t *testing.T) {
	s, _ := newStore(t)
	h := s.Insert(weekly())
	s.MarkRemoved(h, utc(11, 8, 0))

	assert.True(t, s.Removed(h))
	ev, err := s.Event(h)
	require.NoError(t, err)
	assert.Empty(t, ev.Intervals)

	active, err := s.ActiveEvents()
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestStore_ArchiveMovesSubtree(t *testing.T) {
	s, fs := newStore(t)
	require.NoError(t, fs.Write("schedule.org", []byte(
		"* A\n:PROPERTIES:\n:ID: 1\n:EXPIRATION: 2024-01-01\n:END:\n** notes\nkeep me\n* B\n:PROPERTIES:\n:ID: 2\n:END:\n")))
	require.NoError(t, s.Load())

	h, ok := s.FindByID("1")
	require.True(t, ok)
	require.NoError(t, s.Archive(h, utc(3, 12, 0)))
	assert.Error(t, s.Archive(h, utc(3, 12, 0)))
	require.NoError(t, s.Persist())

	main, err := fs.Read("schedule.org")
	require.NoError(t, err)
	assert.Equal(t, "* B\n:PROPERTIES:\n:ID: 2\n:END:\n", string(main))

	archived, err := fs.Read("schedule.org_archive")
	require.NoError(t, err)
	text := string(archived)
	assert.True(t, strings.HasPrefix(text, "#+TITLE: Schedule archive\n\n* A\n"))
	assert.Contains(t, text, ":ARCHIVE_TIME: 2024-01-03 Wed 12:00\n:ARCHIVE_FILE: schedule.org\n:END:\n** notes\nkeep me\n")
}

func TestStore_DescriptionEscapesHeadings(t *testing.T) {
	s, _ := newStore(t)
	ev := holiday()
	ev.Description = "first\n* not a heading"
	h := s.Insert(ev)

	got, err := s.Event(h)
	require.NoError(t, err)
	assert.Equal(t, ev.Description, got.Description)
}

func TestStore_DescriptionTimestampsStayText(t *testing.T) {
	s, fs := newStore(t)
	ev := weekly()
	ev.Description = "Moved from <2024-02-20 Tue 09:00>\n<b>agenda</b>\n [indented] note"
	s.Insert(ev)
	bare := holiday()
	bare.Intervals, bare.Expiration = nil, time.Time{}
	bare.Description = "[Online] link in invite\n<2024-03-01 Fri> follow-up"
	s.Insert(bare)
	require.NoError(t, s.Persist())

	reopened, err := Open(fs, "schedule.org", "", time.UTC)
	require.NoError(t, err)
	require.NoError(t, reopened.Load())

	h, ok := reopened.FindByID("42")
	require.True(t, ok)
	got, err := reopened.Event(h)
	require.NoError(t, err)
	assert.Equal(t, ev.Description, got.Description)
	require.Len(t, got.Intervals, 2)
	assert.True(t, got.Intervals[1].Start.Equal(utc(10, 10, 0)))

	h, ok = reopened.FindByID("43")
	require.True(t, ok)
	got, err = reopened.Event(h)
	require.NoError(t, err)
	assert.Equal(t, bare.Description, got.Description)
	assert.Empty(t, got.Intervals)

	reopened.MarkRemoved(h, utc(2, 9, 0))
	h, _ = reopened.FindByID("42")
	reopened.MarkRemoved(h, utc(2, 9, 0))
	got, err = reopened.Event(h)
	require.NoError(t, err)
	assert.Empty(t, got.Intervals)
	assert.Equal(t, ev.Description, got.Description)
}
