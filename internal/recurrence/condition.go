// Package recurrence expands repeat conditions into concrete occurrences.
package recurrence

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/starford/orgcal/internal/calendar"
	"github.com/starford/orgcal/internal/models"
)

// Condition is one parsed recurrence rule.
type Condition struct {
	Kind Kind
	Nth  int    // week block for KindNthWeek
	Type string // remote type tag, kept for logging

	Day  int          // day of month for KindMonth
	Week time.Weekday // weekday for KindWeek and KindNthWeek

	StartDate time.Time // midnight
	EndDate   time.Time // midnight, inclusive unless noted per kind
	StartTime calendar.Clock
	EndTime   calendar.Clock

	// AllDay is set when the rule carries no times of day; occurrences
	// then have no explicit end.
	AllDay bool
}

// Exclusion suppresses every occurrence it strictly contains.
type Exclusion struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether the exclusion starts strictly before and ends
// strictly after o. Partial overlaps are not contained.
func (e Exclusion) Contains(o models.Occurrence) bool {
	return e.Start.Before(o.Start) && e.End.After(o.Until())
}

// ParseCondition converts a remote condition. A missing end date defaults to
// the start date plus horizonDays.
func ParseCondition(raw models.RawCondition, loc *time.Location, horizonDays int) (Condition, error) {
	kind, nth := ParseKind(raw.Type)
	c := Condition{Kind: kind, Nth: nth, Type: raw.Type}

	if strings.TrimSpace(raw.StartDate) == "" {
		return c, fmt.Errorf("condition %q: start_date is required", raw.Type)
	}
	start, err := calendar.ParseDate(raw.StartDate, loc)
	if err != nil {
		return c, fmt.Errorf("condition %q: %w", raw.Type, err)
	}
	c.StartDate = start

	if strings.TrimSpace(raw.EndDate) == "" {
		c.EndDate = calendar.AddDays(start, horizonDays)
	} else if c.EndDate, err = calendar.ParseDate(raw.EndDate, loc); err != nil {
		return c, fmt.Errorf("condition %q: %w", raw.Type, err)
	}

	hasStart := strings.TrimSpace(raw.StartTime) != ""
	hasEnd := strings.TrimSpace(raw.EndTime) != ""
	c.AllDay = !hasStart && !hasEnd
	if hasStart {
		if c.StartTime, err = calendar.ParseClock(raw.StartTime); err != nil {
			return c, fmt.Errorf("condition %q: %w", raw.Type, err)
		}
	}
	if hasEnd {
		if c.EndTime, err = calendar.ParseClock(raw.EndTime); err != nil {
			return c, fmt.Errorf("condition %q: %w", raw.Type, err)
		}
	} else {
		c.EndTime = c.StartTime
	}

	switch kind {
	case KindWeek, KindNthWeek:
		w, err := strconv.Atoi(strings.TrimSpace(raw.Week))
		if err != nil || w < 0 || w > 6 {
			return c, fmt.Errorf("condition %q: invalid week %q", raw.Type, raw.Week)
		}
		c.Week = time.Weekday(w)
	case KindMonth:
		d, err := strconv.Atoi(strings.TrimSpace(raw.Day))
		if err != nil || d < 1 || d > 31 {
			return c, fmt.Errorf("condition %q: invalid day %q", raw.Type, raw.Day)
		}
		c.Day = d
	}

	return c, nil
}

// ParseExclusion converts a remote exclusion range. Zone-less datetimes are
// read in loc.
func ParseExclusion(raw models.RawExclusion, loc *time.Location) (Exclusion, error) {
	start, err := ParseDateTime(raw.Start, loc)
	if err != nil {
		return Exclusion{}, fmt.Errorf("exclusion start: %w", err)
	}
	end, err := ParseDateTime(raw.End, loc)
	if err != nil {
		return Exclusion{}, fmt.Errorf("exclusion end: %w", err)
	}
	return Exclusion{Start: start, End: end}, nil
}

var localDateTimeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseDateTime parses an RFC 3339 datetime, or a zone-less one in loc. The
// result is expressed in loc.
func ParseDateTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty datetime")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(loc), nil
	}
	for _, layout := range localDateTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid datetime %q", s)
}
