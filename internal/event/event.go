// Package event turns remote event records into materialized events with
// concrete intervals.
package event

import (
	"fmt"
	"strings"
	"time"

	"github.com/starford/orgcal/internal/apperr"
	"github.com/starford/orgcal/internal/calendar"
	"github.com/starford/orgcal/internal/models"
	"github.com/starford/orgcal/internal/recurrence"
)

// DefaultHorizonDays bounds open-ended repeat conditions.
const DefaultHorizonDays = 14

// Materializer expands raw events in a fixed location.
type Materializer struct {
	Location    *time.Location
	HorizonDays int
}

// New returns a Materializer for loc. A non-positive horizon falls back to
// DefaultHorizonDays.
func New(loc *time.Location, horizonDays int) *Materializer {
	if loc == nil {
		loc = time.Local
	}
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}
	return &Materializer{Location: loc, HorizonDays: horizonDays}
}

// Materialize expands raw into an Event. Records with neither an explicit
// time nor a repeat block, or with unparsable required fields, yield an
// error wrapping apperr.ErrMalformedEvent.
func (m *Materializer) Materialize(raw models.RawEvent) (*models.Event, error) {
	if strings.TrimSpace(raw.ID) == "" {
		return nil, malformed(raw.ID, fmt.Errorf("missing id"))
	}

	loc, tzName := m.location(raw.Timezone)

	var (
		intervals []models.Occurrence
		err       error
	)
	switch {
	case raw.Repeat != nil && len(raw.Repeat.Conditions) > 0:
		intervals, err = m.expandRepeat(raw.Repeat, loc)
	case raw.When != nil && strings.TrimSpace(raw.When.Start) != "":
		intervals, err = explicit(raw.When, loc)
	default:
		err = fmt.Errorf("neither when nor repeat present")
	}
	if err != nil {
		return nil, malformed(raw.ID, err)
	}

	ev := &models.Event{
		ID:          raw.ID,
		Version:     raw.Version,
		Plan:        raw.Plan,
		Summary:     raw.Detail,
		Description: raw.Description,
		Intervals:   intervals,
		Expiration:  Expiration(intervals),
		Timezone:    tzName,
	}
	for _, mem := range raw.Members {
		switch mem.Kind {
		case models.MemberUser:
			ev.Participants = append(ev.Participants, mem.Name)
		case models.MemberFacility:
			ev.Resources = append(ev.Resources, mem.Name)
		}
	}
	return ev, nil
}

// expandRepeat expands every condition; the last one's output is kept.
func (m *Materializer) expandRepeat(rep *models.RawRepeat, loc *time.Location) ([]models.Occurrence, error) {
	exclusions := make([]recurrence.Exclusion, 0, len(rep.Exclusions))
	for _, raw := range rep.Exclusions {
		ex, err := recurrence.ParseExclusion(raw, loc)
		if err != nil {
			return nil, err
		}
		exclusions = append(exclusions, ex)
	}

	var out []models.Occurrence
	for _, raw := range rep.Conditions {
		cond, err := recurrence.ParseCondition(raw, loc, m.HorizonDays)
		if err != nil {
			return nil, err
		}
		out = recurrence.Expand(cond, exclusions)
	}
	return out, nil
}

func explicit(when *models.RawWhen, loc *time.Location) ([]models.Occurrence, error) {
	// A bare date is all-day; anything else must carry a time of day.
	if day, err := calendar.ParseDate(when.Start, loc); err == nil {
		return []models.Occurrence{{Start: day}}, nil
	}

	start, err := recurrence.ParseDateTime(when.Start, loc)
	if err != nil {
		return nil, err
	}
	end := start
	if strings.TrimSpace(when.End) != "" {
		if end, err = recurrence.ParseDateTime(when.End, loc); err != nil {
			return nil, err
		}
	}
	if end.Before(start) {
		return nil, fmt.Errorf("end %s before start %s", when.End, when.Start)
	}
	return []models.Occurrence{{Start: start, End: &end}}, nil
}

// Expiration is the calendar date of the latest interval end, at midnight
// in that end's location. It is zero when there are no intervals.
func Expiration(intervals []models.Occurrence) time.Time {
	var last time.Time
	for _, o := range intervals {
		if u := o.Until(); u.After(last) {
			last = u
		}
	}
	if last.IsZero() {
		return time.Time{}
	}
	return calendar.StartOfDay(last)
}

func (m *Materializer) location(name string) (*time.Location, string) {
	if name = strings.TrimSpace(name); name != "" {
		if loc, err := time.LoadLocation(name); err == nil {
			return loc, name
		}
	}
	return m.Location, m.Location.String()
}

func malformed(id string, err error) error {
	return fmt.Errorf("event %q: %w: %w", id, apperr.ErrMalformedEvent, err)
}
