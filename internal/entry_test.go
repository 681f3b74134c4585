package internal

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/orgcal/internal/apperr"
	"github.com/starford/orgcal/internal/index"
)

const soapReply = `<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:soap="http://www.w3.org/2003/05/soap-envelope"><soap:Body>%s</soap:Body></soap:Envelope>`

// fakeSchedule answers the two schedule actions with one future event.
func fakeSchedule(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		body := `<ScheduleGetEventVersionsResponse><returns>
			<event_item id="50" version="3" operation="add"/>
		</returns></ScheduleGetEventVersionsResponse>`
		if strings.Contains(string(data), "ScheduleGetEventsById") {
			body = `<ScheduleGetEventsByIdResponse><returns>
				<schedule_event id="50" version="3" event_type="normal" detail="Planning" timezone="UTC">
					<when><datetime start="2099-01-05T10:00:00Z" end="2099-01-05T11:00:00Z"/></when>
				</schedule_event>
			</returns></ScheduleGetEventsByIdResponse>`
		}
		_, _ = io.WriteString(w, strings.Replace(soapReply, "%s", body, 1))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, baseURL string) *Config {
	t.Helper()
	dir := t.TempDir()
	cfg := NewDefaultConfig()
	cfg.Remote.BaseURL = baseURL
	cfg.Remote.Auth.Username = "alice"
	cfg.Document.Path = filepath.Join(dir, "schedule.org")
	cfg.SQLite.Path = filepath.Join(dir, "orgcal.db")
	cfg.Sync.Timezone = "UTC"
	cfg.Export.ICSPath = filepath.Join(dir, "schedule.ics")
	return cfg
}

func TestRunOnce(t *testing.T) {
	srv := fakeSchedule(t)
	cfg := testConfig(t, srv.URL)

	res, err := RunOnce(context.Background(),
		WithConfig(cfg), WithLogOutput(io.Discard), WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Added)
	assert.NotEmpty(t, res.RunID)

	doc, err := os.ReadFile(cfg.Document.Path)
	require.NoError(t, err)
	assert.Contains(t, string(doc), "* Planning\n")
	assert.Contains(t, string(doc), ":ID: 50\n")
	assert.Contains(t, string(doc), "<2099-01-05 Mon 10:00-11:00>")

	cal, err := os.ReadFile(cfg.Export.ICSPath)
	require.NoError(t, err)
	assert.Contains(t, string(cal), "UID:50-0@orgcal")

	// The after-persist hook refreshed the index.
	db, err := index.Open(cfg.SQLite.Path)
	require.NoError(t, err)
	defer db.Close()
	entry, err := db.GetEntry("50")
	require.NoError(t, err)
	assert.Equal(t, "Planning", entry.Heading)
	assert.Equal(t, "3", entry.Version)
}

func TestRunOnceRequiresRemote(t *testing.T) {
	cfg := testConfig(t, "")
	_, err := RunOnce(context.Background(), WithConfig(cfg), WithLogOutput(io.Discard))
	var ce *apperr.ConfigurationError
	require.True(t, errors.As(err, &ce), "err = %v", err)
	assert.Equal(t, "remote", ce.Field)
}

func TestRunOnceWithoutConfig(t *testing.T) {
	_, err := RunOnce(context.Background())
	assert.Error(t, err)
}

func TestArchivePath(t *testing.T) {
	root := t.TempDir()

	got, err := archivePath(root, "")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = archivePath(root, filepath.Join(root, "old", "schedule.org_archive"))
	require.NoError(t, err)
	assert.Equal(t, "old/schedule.org_archive", got)

	_, err = archivePath(root, filepath.Join(filepath.Dir(root), "elsewhere.org"))
	assert.True(t, apperr.IsConfiguration(err))
}
