package recurrence

import (
	"time"

	"github.com/teambition/rrule-go"

	"github.com/starford/orgcal/internal/calendar"
	"github.com/starford/orgcal/internal/models"
)

// Expand produces the ordered, non-excluded occurrences of c. Inverted date
// ranges and unknown kinds yield an empty sequence.
func Expand(c Condition, exclusions []Exclusion) []models.Occurrence {
	if c.EndDate.Before(c.StartDate) {
		return nil
	}

	var out []models.Occurrence
	switch c.Kind {
	case KindDay:
		out = expandDay(c)
	case KindWeekday:
		out = expandWeekday(c)
	case KindWeek:
		out = expandMatching(c, func(day time.Time) bool {
			return day.Weekday() == c.Week
		})
	case KindNthWeek:
		out = expandMatching(c, func(day time.Time) bool {
			return day.Weekday() == c.Week && calendar.InNthWeek(day, c.Nth)
		})
	case KindMonth:
		out = expandMonth(c)
	default:
		return nil
	}

	return exclude(out, exclusions)
}

func expandDay(c Condition) []models.Occurrence {
	occ, ok := c.occurrence(c.StartDate, c.EndDate)
	if !ok {
		return nil
	}
	return []models.Occurrence{occ}
}

// expandWeekday folds each run of consecutive Monday..Friday days into one
// interval. The end date is exclusive for this kind.
func expandWeekday(c Condition) []models.Occurrence {
	var (
		out      []models.Occurrence
		runStart time.Time
		runEnd   time.Time
		inRun    bool
	)
	flush := func() {
		if inRun {
			if occ, ok := c.occurrence(runStart, runEnd); ok {
				if c.AllDay && runEnd.After(runStart) {
					// An all-day run ends on its last day.
					last := runEnd
					occ.End = &last
				}
				out = append(out, occ)
			}
		}
		inRun = false
	}

	eachDay(c.StartDate, c.EndDate, func(day time.Time) {
		if !day.Before(c.EndDate) {
			return
		}
		if !calendar.IsWeekday(day) {
			flush()
			return
		}
		if !inRun {
			runStart = day
			inRun = true
		}
		runEnd = day
	})
	flush()

	return out
}

func expandMatching(c Condition, match func(time.Time) bool) []models.Occurrence {
	var out []models.Occurrence
	eachDay(c.StartDate, c.EndDate, func(day time.Time) {
		if !match(day) {
			return
		}
		if occ, ok := c.occurrence(day, day); ok {
			out = append(out, occ)
		}
	})
	return out
}

// expandMonth emits day-of-month matches with no explicit end.
func expandMonth(c Condition) []models.Occurrence {
	var out []models.Occurrence
	eachDay(c.StartDate, c.EndDate, func(day time.Time) {
		if day.Day() == c.Day {
			out = append(out, models.Occurrence{Start: day})
		}
	})
	return out
}

// occurrence builds (startDay@StartTime, endDay@EndTime). ok is false when
// the end would precede the start.
func (c Condition) occurrence(startDay, endDay time.Time) (models.Occurrence, bool) {
	start := calendar.Combine(startDay, c.StartTime)
	if c.AllDay {
		return models.Occurrence{Start: start}, true
	}
	end := calendar.Combine(endDay, c.EndTime)
	if end.Before(start) {
		return models.Occurrence{}, false
	}
	return models.Occurrence{Start: start, End: &end}, true
}

// eachDay calls fn for every calendar day in [from, until], in order. The
// sequence is driven by a DAILY rule so each call starts a fresh iterator.
func eachDay(from, until time.Time, fn func(day time.Time)) {
	rule, err := rrule.NewRRule(rrule.ROption{
		Freq:    rrule.DAILY,
		Dtstart: calendar.StartOfDay(from),
		Until:   calendar.StartOfDay(until),
	})
	if err != nil {
		return
	}
	next := rule.Iterator()
	for day, ok := next(); ok; day, ok = next() {
		fn(day)
	}
}

func exclude(occs []models.Occurrence, exclusions []Exclusion) []models.Occurrence {
	if len(exclusions) == 0 {
		return occs
	}
	out := occs[:0:0]
	for _, o := range occs {
		dropped := false
		for _, ex := range exclusions {
			if ex.Contains(o) {
				dropped = true
				break
			}
		}
		if !dropped {
			out = append(out, o)
		}
	}
	return out
}
