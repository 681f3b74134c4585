package ics

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/orgcal/internal/models"
)

func sample() []*models.Event {
	end1 := time.Date(2024, 1, 3, 11, 0, 0, 0, time.UTC)
	end2 := time.Date(2024, 1, 10, 11, 0, 0, 0, time.UTC)
	return []*models.Event{
		{
			ID: "42", Summary: "Weekly sync", Plan: "Meeting", Resources: []string{"Room A"},
			Intervals: []models.Occurrence{
				{Start: time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC), End: &end1},
				{Start: time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC), End: &end2},
			},
		},
		{
			ID: "43", Summary: "Holiday",
			Intervals: []models.Occurrence{{Start: time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)}},
		},
	}
}

func parse(t *testing.T, data []byte) *ical.Calendar {
	t.Helper()
	cal, err := ical.ParseCalendar(bytes.NewReader(data))
	require.NoError(t, err)
	return cal
}

func TestWrite_OneEventPerInterval(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sample(), time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)))

	events := parse(t, buf.Bytes()).Events()
	require.Len(t, events, 3)

	assert.Equal(t, "42-0@orgcal", events[0].Id())
	assert.Equal(t, "42-1@orgcal", events[1].Id())
	assert.Equal(t, "43-0@orgcal", events[2].Id())

	first := events[0]
	assert.Equal(t, "Weekly sync", first.GetProperty(ical.ComponentPropertySummary).Value)
	assert.Equal(t, "Meeting", first.GetProperty(ical.ComponentPropertyCategories).Value)
	assert.Equal(t, "Room A", first.GetProperty(ical.ComponentPropertyLocation).Value)
	start, err := first.GetStartAt()
	require.NoError(t, err)
	assert.True(t, start.Equal(time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC)))
	end, err := first.GetEndAt()
	require.NoError(t, err)
	assert.True(t, end.Equal(time.Date(2024, 1, 3, 11, 0, 0, 0, time.UTC)))

	allDay := events[2].GetProperty(ical.ComponentPropertyDtStart)
	require.NotNil(t, allDay)
	assert.Equal(t, "20240108", allDay.Value)
	assert.Nil(t, events[2].GetProperty(ical.ComponentPropertyCategories))
}

func TestWrite_AllDayRangeEndsAfterLastDay(t *testing.T) {
	last := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	events := []*models.Event{{
		ID: "44", Summary: "Offsite",
		Intervals: []models.Occurrence{{Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), End: &last}},
	}}
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, events, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))

	got := parse(t, buf.Bytes()).Events()
	require.Len(t, got, 1)
	assert.Equal(t, "20240101", got[0].GetProperty(ical.ComponentPropertyDtStart).Value)
	assert.Equal(t, "20240106", got[0].GetProperty(ical.ComponentPropertyDtEnd).Value)
}

func TestWrite_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, nil, time.Now()))
	assert.True(t, strings.HasPrefix(buf.String(), "BEGIN:VCALENDAR"))
	assert.Empty(t, parse(t, buf.Bytes()).Events())
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedule.ics")
	require.NoError(t, WriteFile(path, sample(), time.Now()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, parse(t, data).Events(), 3)
}
