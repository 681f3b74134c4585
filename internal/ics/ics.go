// Package ics exports active schedule entries as an iCalendar feed.
package ics

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/starford/orgcal/internal/calendar"
	"github.com/starford/orgcal/internal/models"
	"github.com/starford/orgcal/internal/storage"
)

const productID = "-//orgcal//schedule export//EN"

// Write renders one VEVENT per interval of every event.
func Write(w io.Writer, events []*models.Event, now time.Time) error {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)

	for _, ev := range events {
		for n, o := range ev.Intervals {
			ve := cal.AddEvent(fmt.Sprintf("%s-%d@orgcal", ev.ID, n))
			ve.SetDtStampTime(now)
			ve.SetSummary(ev.Summary)
			if ev.Description != "" {
				ve.SetDescription(ev.Description)
			}
			if ev.Plan != "" {
				ve.SetProperty(ical.ComponentPropertyCategories, ev.Plan)
			}
			if len(ev.Resources) > 0 {
				ve.SetLocation(strings.Join(ev.Resources, ", "))
			}
			setWhen(ve, o)
		}
	}

	if err := cal.SerializeTo(w); err != nil {
		return fmt.Errorf("ics: serialize: %w", err)
	}
	return nil
}

func setWhen(ve *ical.VEvent, o models.Occurrence) {
	if o.Start.Equal(calendar.StartOfDay(o.Start)) {
		last := o.Until()
		if o.End == nil || (last.After(o.Start) && last.Equal(calendar.StartOfDay(last))) {
			// DTEND is exclusive for all-day events.
			ve.SetAllDayStartAt(o.Start)
			ve.SetAllDayEndAt(calendar.AddDays(last, 1))
			return
		}
	}
	ve.SetStartAt(o.Start)
	ve.SetEndAt(o.Until())
}

// WriteFile atomically replaces path with the rendered feed.
func WriteFile(path string, events []*models.Event, now time.Time) error {
	var buf bytes.Buffer
	if err := Write(&buf, events, now); err != nil {
		return err
	}
	fs, err := storage.NewFS(filepath.Dir(path))
	if err != nil {
		return fmt.Errorf("ics: %w", err)
	}
	if err := fs.Write(filepath.Base(path), buf.Bytes()); err != nil {
		return fmt.Errorf("ics: %w", err)
	}
	return nil
}
