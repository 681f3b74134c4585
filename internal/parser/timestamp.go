package parser

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/starford/orgcal/internal/calendar"
	"github.com/starford/orgcal/internal/models"
)

const (
	stampDate     = "2006-01-02 Mon"
	stampDateTime = "2006-01-02 Mon 15:04"
)

var (
	// <2024-01-03 Wed 10:00-11:00> or <2024-01-01 Mon 09:00>--<2024-01-05 Fri 18:00>
	activeRe = regexp.MustCompile(
		`<(\d{4}-\d{2}-\d{2})(?: [^\s>\d]+)?(?: (\d{1,2}:\d{2})(?:-(\d{1,2}:\d{2}))?)?>` +
			`(?:--<(\d{4}-\d{2}-\d{2})(?: [^\s>\d]+)?(?: (\d{1,2}:\d{2}))?>)?`)
	anyActiveRe = regexp.MustCompile(`<(\d{4}-\d{2}-\d{2}[^>\n]*)>`)
	// A schedule line opens with an active or inactive timestamp.
	scheduleLineRe = regexp.MustCompile(`^[<\[]\d{4}-\d{2}-\d{2}`)
)

// FormatInterval renders o as an Org timestamp. Occurrences without an end
// and without a time of day render as a bare date.
func FormatInterval(o models.Occurrence, active bool) string {
	open, closeB := "<", ">"
	if !active {
		open, closeB = "[", "]"
	}
	wrap := func(s string) string { return open + s + closeB }

	if o.End == nil {
		if isMidnight(o.Start) {
			return wrap(o.Start.Format(stampDate))
		}
		return wrap(o.Start.Format(stampDateTime))
	}

	end := o.End.In(o.Start.Location())
	switch {
	case isMidnight(o.Start) && isMidnight(end) && end.After(o.Start):
		return wrap(o.Start.Format(stampDate)) + "--" + wrap(end.Format(stampDate))
	case end.Equal(o.Start):
		return wrap(o.Start.Format(stampDateTime))
	case calendar.SameDay(o.Start, end):
		return wrap(o.Start.Format(stampDateTime) + "-" + end.Format("15:04"))
	default:
		return wrap(o.Start.Format(stampDateTime)) + "--" + wrap(end.Format(stampDateTime))
	}
}

func isMidnight(t time.Time) bool {
	return t.Equal(calendar.StartOfDay(t))
}

// FormatStamp renders t as the inner text of an Org timestamp.
func FormatStamp(t time.Time) string {
	return t.Format(stampDateTime)
}

// SplitSchedule separates the leading block of timestamp lines in body from
// the text after it. Timestamps in the remaining text are not part of the
// schedule.
func SplitSchedule(body string) (schedule, rest string) {
	i := 0
	for i < len(body) {
		line, next := body[i:], len(body)
		if j := strings.IndexByte(line, '\n'); j >= 0 {
			line, next = line[:j], i+j+1
		}
		if !scheduleLineRe.MatchString(line) {
			break
		}
		i = next
	}
	return body[:i], body[i:]
}

// ParseTimestamps reads every active timestamp in text, in order. Dates are
// read in loc. Callers holding an entry body pass its schedule block.
func ParseTimestamps(text string, loc *time.Location) ([]models.Occurrence, error) {
	var out []models.Occurrence
	for _, m := range activeRe.FindAllStringSubmatch(text, -1) {
		o, err := occurrenceFromMatch(m, loc)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

func occurrenceFromMatch(m []string, loc *time.Location) (models.Occurrence, error) {
	start, err := stampTime(m[1], m[2], loc)
	if err != nil {
		return models.Occurrence{}, err
	}

	var end time.Time
	switch {
	case m[4] != "":
		if end, err = stampTime(m[4], m[5], loc); err != nil {
			return models.Occurrence{}, err
		}
	case m[3] != "":
		if end, err = stampTime(m[1], m[3], loc); err != nil {
			return models.Occurrence{}, err
		}
	case m[2] != "":
		end = start
	default:
		return models.Occurrence{Start: start}, nil
	}
	return models.Occurrence{Start: start, End: &end}, nil
}

func stampTime(date, clock string, loc *time.Location) (time.Time, error) {
	day, err := calendar.ParseDate(date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parser: timestamp: %w", err)
	}
	if clock == "" {
		return day, nil
	}
	c, err := calendar.ParseClock(clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("parser: timestamp: %w", err)
	}
	return calendar.Combine(day, c), nil
}

// Deactivate turns the active timestamps of body's schedule block into
// inactive ones. The text after the block is left alone.
func Deactivate(body string) string {
	schedule, rest := SplitSchedule(body)
	return anyActiveRe.ReplaceAllString(schedule, "[$1]") + rest
}

// HasActiveTimestamp reports whether body's schedule block still schedules
// anything.
func HasActiveTimestamp(body string) bool {
	schedule, _ := SplitSchedule(body)
	return anyActiveRe.MatchString(schedule)
}
