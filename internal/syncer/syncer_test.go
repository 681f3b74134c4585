package syncer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/orgcal/internal/apperr"
	"github.com/starford/orgcal/internal/document"
	"github.com/starford/orgcal/internal/event"
	"github.com/starford/orgcal/internal/models"
	"github.com/starford/orgcal/internal/storage"
)

const fixture = `* Alpha
:PROPERTIES:
:ID: A
:VERSION: 1
:EXPIRATION: 2024-01-20
:TIMEZONE: UTC
:END:
<2024-01-20 Sat 10:00-11:00>
* Beta
:PROPERTIES:
:ID: B
:VERSION: 1
:EXPIRATION: 2024-01-21
:TIMEZONE: UTC
:END:
<2024-01-21 Sun 10:00-11:00>
* Delta
:PROPERTIES:
:ID: D
:VERSION: 3
:EXPIRATION: 2023-12-01
:TIMEZONE: UTC
:END:
<2023-12-01 Fri 10:00-11:00>
`

var now = time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)

type fakeRemote struct {
	mu       sync.Mutex
	manifest []models.ManifestEntry
	events   map[string]models.RawEvent
	fetchErr error
	fetched  [][]string
	window   [2]time.Time
	known    map[string]string
	gate     chan struct{} // when set, GetVersionManifest blocks until closed
	entered  chan struct{}
}

func (f *fakeRemote) GetVersionManifest(_ context.Context, start, end time.Time, known map[string]string) ([]models.ManifestEntry, error) {
	if f.gate != nil {
		close(f.entered)
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.window = [2]time.Time{start, end}
	f.known = known
	return f.manifest, nil
}

func (f *fakeRemote) GetEventsByID(_ context.Context, ids []string) ([]models.RawEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, ids)
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	var out []models.RawEvent
	for _, id := range ids {
		if ev, ok := f.events[id]; ok {
			out = append(out, ev)
		}
	}
	return out, nil
}

func newScenario(t *testing.T, remote *fakeRemote, opts ...Option) (*Syncer, *storage.FS) {
	t.Helper()
	fs, err := storage.NewFS(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, fs.Write("schedule.org", []byte(fixture)))

	doc, err := document.Open(fs, "schedule.org", "", time.UTC)
	require.NoError(t, err)

	opts = append([]Option{WithClock(func() time.Time { return now })}, opts...)
	return New(remote, doc, event.New(time.UTC, 14), opts...), fs
}

func standardRemote() *fakeRemote {
	return &fakeRemote{
		manifest: []models.ManifestEntry{
			{ID: "A", Version: "2", Operation: models.OperationModify},
			{ID: "B", Operation: models.OperationRemove},
			{ID: "C", Version: "1", Operation: models.OperationAdd},
		},
		events: map[string]models.RawEvent{
			"A": {ID: "A", Version: "2", Detail: "Alpha moved", Timezone: "UTC",
				When: &models.RawWhen{Start: "2024-01-20T13:00:00Z", End: "2024-01-20T14:00:00Z"}},
			"C": {ID: "C", Version: "1", Detail: "Gamma", Timezone: "UTC",
				When: &models.RawWhen{Start: "2024-01-05"}},
		},
	}
}

func TestRun_AppliesDiffAndArchives(t *testing.T) {
	remote := standardRemote()
	s, fs := newScenario(t, remote)

	res, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, 1, res.Modified)
	assert.Equal(t, 1, res.Removed)
	assert.Equal(t, 1, res.Archived)

	assert.Equal(t, map[string]string{"A": "1", "B": "1", "D": "3"}, remote.known)
	assert.True(t, remote.window[0].Equal(now))
	assert.True(t, remote.window[1].Equal(now.AddDate(0, 0, 14)))
	assert.Equal(t, [][]string{{"C", "A"}}, remote.fetched)

	data, err := fs.Read("schedule.org")
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "* Alpha moved\n:PROPERTIES:\n:ID: A\n:VERSION: 2\n")
	assert.Contains(t, text, "<2024-01-20 Sat 13:00-14:00>")
	assert.Contains(t, text, ":REMOVED: [2024-01-02 Tue 09:00]\n:END:\n[2024-01-21 Sun 10:00-11:00]")
	assert.Contains(t, text, "* Gamma\n")
	assert.NotContains(t, text, "Delta")
	assert.Less(t, strings.Index(text, "* Beta"), strings.Index(text, "* Gamma"))

	archived, err := fs.Read("schedule.org_archive")
	require.NoError(t, err)
	assert.Contains(t, string(archived), "* Delta\n")
	assert.Contains(t, string(archived), ":ARCHIVE_TIME: 2024-01-02 Tue 09:00")
}

func TestRun_SecondRunIsNoop(t *testing.T) {
	remote := standardRemote()
	s, fs := newScenario(t, remote)
	_, err := s.Run(context.Background())
	require.NoError(t, err)
	first, err := fs.Read("schedule.org")
	require.NoError(t, err)

	// The remote now reports the state we already hold.
	remote.manifest = []models.ManifestEntry{
		{ID: "A", Version: "2", Operation: models.OperationModify},
		{ID: "B", Operation: models.OperationRemove},
	}
	res, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Added+res.Modified+res.Removed+res.Archived)
	assert.Equal(t, 2, res.Skipped)
	assert.Empty(t, remote.fetched[1])

	second, err := fs.Read("schedule.org")
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestRun_RemoteFailureLeavesDocumentUntouched(t *testing.T) {
	remote := standardRemote()
	remote.fetchErr = &apperr.RemoteError{Action: "ScheduleGetEventsById", Payload: "fault", Err: errors.New("boom")}
	s, fs := newScenario(t, remote)

	_, err := s.Run(context.Background())
	require.Error(t, err)
	assert.True(t, apperr.IsRemote(err))

	data, err := fs.Read("schedule.org")
	require.NoError(t, err)
	assert.Equal(t, fixture, string(data))
	_, err = fs.Read("schedule.org_archive")
	assert.Error(t, err)
}

func TestRun_MissingRecordAborts(t *testing.T) {
	remote := standardRemote()
	delete(remote.events, "C")
	s, fs := newScenario(t, remote)

	_, err := s.Run(context.Background())
	require.Error(t, err)
	assert.True(t, apperr.IsRemote(err))
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	data, _ := fs.Read("schedule.org")
	assert.Equal(t, fixture, string(data))
}

func TestRun_MalformedEventAborts(t *testing.T) {
	remote := standardRemote()
	remote.events["C"] = models.RawEvent{ID: "C", Version: "1"}
	s, fs := newScenario(t, remote)

	_, err := s.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrMalformedEvent))

	data, _ := fs.Read("schedule.org")
	assert.Equal(t, fixture, string(data))
}

func TestRun_ConcurrentRunIsRejected(t *testing.T) {
	remote := standardRemote()
	remote.gate = make(chan struct{})
	remote.entered = make(chan struct{})
	s, _ := newScenario(t, remote)

	done := make(chan error, 1)
	go func() {
		_, err := s.Run(context.Background())
		done <- err
	}()

	<-remote.entered
	_, err := s.Run(context.Background())
	assert.ErrorIs(t, err, apperr.ErrSyncInProgress)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	close(remote.gate)
	require.NoError(t, <-done)
}

func TestRun_HooksRunAfterPersist(t *testing.T) {
	var (
		calls    []string
		provider *storage.FS
	)
	s, fs := newScenario(t, standardRemote(),
		AfterPersist(func(context.Context, *Result) error {
			data, err := provider.Read("schedule.org")
			if err != nil {
				return err
			}
			if strings.Contains(string(data), "Gamma") {
				calls = append(calls, "first")
			}
			return nil
		}),
		AfterPersist(func(context.Context, *Result) error {
			calls = append(calls, "second")
			return errors.New("export failed")
		}),
	)
	provider = fs

	_, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, calls)
}
