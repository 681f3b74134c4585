// Package testutil provides shared test helpers for schedule directories and databases.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/orgcal/internal/index"
	"github.com/starford/orgcal/internal/storage"
)

// Schedule is a small document with two active entries and one removed entry.
const Schedule = `#+TITLE: Schedule

* Weekly sync
:PROPERTIES:
:ID: 42
:VERSION: 7
:PLAN: Meeting
:EXPIRATION: 2024-01-10
:TIMEZONE: UTC
:PARTICIPANTS: Alice, Bob
:RESOURCES: Room A
:END:
<2024-01-03 Wed 10:00-11:00>
<2024-01-10 Wed 10:00-11:00>

Bring slides.
* Company holiday
:PROPERTIES:
:ID: 43
:VERSION: 1
:TIMEZONE: UTC
:REMOVED: [2024-01-02 Tue 09:15]
:END:
[2024-01-01 Mon]
* Dentist
:PROPERTIES:
:ID: 44
:VERSION: 2
:TIMEZONE: UTC
:END:
<2024-02-05 Mon 08:30-09:00>
`

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "orgcal-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestScheduleDir creates a temporary schedule directory with a storage.Provider.
func TestScheduleDir(t *testing.T) (string, storage.Provider) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// IndexedSchedule writes Schedule to schedule.org in a fresh directory and
// indexes it.
func IndexedSchedule(t *testing.T) (storage.Provider, *index.DB) {
	t.Helper()
	dir, store := TestScheduleDir(t)
	if err := os.WriteFile(filepath.Join(dir, "schedule.org"), []byte(Schedule), 0o644); err != nil {
		t.Fatal(err)
	}
	db := TestDB(t)
	if err := index.Sync(db, store, time.UTC, Logger()); err != nil {
		t.Fatal(err)
	}
	return store, db
}
