package event

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/orgcal/internal/apperr"
	"github.com/starford/orgcal/internal/models"
)

var utc9 = time.FixedZone("UTC+9", 9*3600)

func newMaterializer() *Materializer {
	return New(utc9, 14)
}

func TestMaterialize_ExplicitTimes(t *testing.T) {
	ev, err := newMaterializer().Materialize(models.RawEvent{
		ID: "42", Version: "7", Plan: "Meeting", Detail: "Weekly sync", Description: "room A",
		When: &models.RawWhen{Start: "2024-01-10T10:00:00+09:00", End: "2024-01-10T11:30:00+09:00"},
		Members: []models.RawMember{
			{Kind: models.MemberUser, Name: "Alice"},
			{Kind: models.MemberFacility, Name: "Room A"},
			{Kind: models.MemberUser, Name: "Bob"},
			{Kind: "organization", Name: "Sales"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "42", ev.ID)
	assert.Equal(t, "7", ev.Version)
	assert.Equal(t, "Weekly sync", ev.Summary)
	assert.Equal(t, []string{"Alice", "Bob"}, ev.Participants)
	assert.Equal(t, []string{"Room A"}, ev.Resources)
	require.Len(t, ev.Intervals, 1)
	require.NotNil(t, ev.Intervals[0].End)
	assert.Equal(t, 90*time.Minute, ev.Intervals[0].End.Sub(ev.Intervals[0].Start))
	assert.Equal(t, "2024-01-10", ev.Expiration.Format("2006-01-02"))
}

func TestMaterialize_MissingEndUsesStart(t *testing.T) {
	ev, err := newMaterializer().Materialize(models.RawEvent{
		ID: "1", When: &models.RawWhen{Start: "2024-01-10T10:00:00"},
	})
	require.NoError(t, err)
	require.NotNil(t, ev.Intervals[0].End)
	assert.True(t, ev.Intervals[0].Start.Equal(*ev.Intervals[0].End))
}

func TestMaterialize_SpaceSeparatedTimes(t *testing.T) {
	ev, err := newMaterializer().Materialize(models.RawEvent{
		ID: "1", When: &models.RawWhen{Start: "2024-01-10 10:00", End: "2024-01-10 11:00"},
	})
	require.NoError(t, err)
	require.Len(t, ev.Intervals, 1)
	require.NotNil(t, ev.Intervals[0].End)
	assert.True(t, ev.Intervals[0].Start.Equal(time.Date(2024, 1, 10, 10, 0, 0, 0, utc9)))
	assert.Equal(t, time.Hour, ev.Intervals[0].End.Sub(ev.Intervals[0].Start))
}

func TestMaterialize_AllDay(t *testing.T) {
	ev, err := newMaterializer().Materialize(models.RawEvent{
		ID: "1", When: &models.RawWhen{Start: "2024-02-29", End: "2024-02-29"},
	})
	require.NoError(t, err)
	require.Len(t, ev.Intervals, 1)
	assert.Nil(t, ev.Intervals[0].End)
	assert.Equal(t, "2024-02-29 00:00", ev.Intervals[0].Start.Format("2006-01-02 15:04"))
}

func TestMaterialize_LastConditionWins(t *testing.T) {
	ev, err := newMaterializer().Materialize(models.RawEvent{
		ID: "1",
		Repeat: &models.RawRepeat{Conditions: []models.RawCondition{
			{Type: "week", Week: "1", StartDate: "2024-01-01", EndDate: "2024-01-31", StartTime: "09:00", EndTime: "10:00"},
			{Type: "day", StartDate: "2024-03-01", EndDate: "2024-03-01", StartTime: "09:00", EndTime: "10:00"},
		}},
	})
	require.NoError(t, err)
	require.Len(t, ev.Intervals, 1)
	assert.Equal(t, "2024-03-01 09:00", ev.Intervals[0].Start.Format("2006-01-02 15:04"))
}

func TestMaterialize_RepeatWithExclusions(t *testing.T) {
	ev, err := newMaterializer().Materialize(models.RawEvent{
		ID: "1",
		Repeat: &models.RawRepeat{
			Conditions: []models.RawCondition{
				{Type: "week", Week: "3", StartDate: "2024-01-01", EndDate: "2024-01-31", StartTime: "10:00", EndTime: "11:00"},
			},
			Exclusions: []models.RawExclusion{{Start: "2024-01-31T00:00:00", End: "2024-01-31T23:59:59"}},
		},
	})
	require.NoError(t, err)
	assert.Len(t, ev.Intervals, 4)
	assert.Equal(t, "2024-01-24", ev.Expiration.Format("2006-01-02"))
}

func TestMaterialize_NoIntervalsHasNoExpiration(t *testing.T) {
	ev, err := newMaterializer().Materialize(models.RawEvent{
		ID: "1",
		Repeat: &models.RawRepeat{Conditions: []models.RawCondition{
			{Type: "year", StartDate: "2024-01-01"},
		}},
	})
	require.NoError(t, err)
	assert.Empty(t, ev.Intervals)
	assert.False(t, ev.HasExpiration())
}

func TestMaterialize_Timezone(t *testing.T) {
	ev, err := newMaterializer().Materialize(models.RawEvent{
		ID: "1", Timezone: "UTC", When: &models.RawWhen{Start: "2024-01-10T10:00:00"},
	})
	require.NoError(t, err)
	assert.Equal(t, "UTC", ev.Timezone)
	assert.Equal(t, 10, ev.Intervals[0].Start.Hour())
	assert.Equal(t, time.UTC, ev.Intervals[0].Start.Location())

	ev, err = newMaterializer().Materialize(models.RawEvent{
		ID: "1", Timezone: "Not/AZone", When: &models.RawWhen{Start: "2024-01-10"},
	})
	require.NoError(t, err)
	assert.Equal(t, "UTC+9", ev.Timezone)
}

func TestMaterialize_Malformed(t *testing.T) {
	cases := map[string]models.RawEvent{
		"no when or repeat":  {ID: "1"},
		"missing id":         {When: &models.RawWhen{Start: "2024-01-10"}},
		"bad date":           {ID: "1", When: &models.RawWhen{Start: "10/01/2024"}},
		"end before start":   {ID: "1", When: &models.RawWhen{Start: "2024-01-10T10:00:00", End: "2024-01-10T09:00:00"}},
		"missing start_date": {ID: "1", Repeat: &models.RawRepeat{Conditions: []models.RawCondition{{Type: "day"}}}},
		"bad exclusion": {ID: "1", Repeat: &models.RawRepeat{
			Conditions: []models.RawCondition{{Type: "day", StartDate: "2024-01-01"}},
			Exclusions: []models.RawExclusion{{Start: "soon"}},
		}},
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := newMaterializer().Materialize(raw)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperr.ErrMalformedEvent))
		})
	}
}

func TestExpiration(t *testing.T) {
	end := time.Date(2024, 5, 2, 1, 0, 0, 0, utc9)
	got := Expiration([]models.Occurrence{
		{Start: time.Date(2024, 5, 1, 23, 0, 0, 0, utc9), End: &end},
		{Start: time.Date(2024, 4, 1, 9, 0, 0, 0, utc9)},
	})
	assert.True(t, got.Equal(time.Date(2024, 5, 2, 0, 0, 0, 0, utc9)))
	assert.True(t, Expiration(nil).IsZero())
}
