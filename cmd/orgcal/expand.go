package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/starford/orgcal/internal/event"
	"github.com/starford/orgcal/internal/models"
	"github.com/starford/orgcal/internal/parser"
	"github.com/starford/orgcal/internal/recurrence"
)

func expandCommand() *cli.Command {
	return &cli.Command{
		Name:  "expand",
		Usage: "Print the occurrences of one recurrence condition",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "type", Usage: "day, weekday, week, 1stweek..4thweek, lastweek or month", Required: true},
			&cli.StringFlag{Name: "start-date", Usage: "first day (YYYY-MM-DD)", Required: true},
			&cli.StringFlag{Name: "end-date", Usage: "last day (YYYY-MM-DD); defaults to start-date plus the horizon"},
			&cli.StringFlag{Name: "start-time", Usage: "time of day (HH:MM[:SS])"},
			&cli.StringFlag{Name: "end-time", Usage: "time of day (HH:MM[:SS])"},
			&cli.StringFlag{Name: "week", Usage: "weekday for week rules, 0 = Sunday"},
			&cli.StringFlag{Name: "day", Usage: "day of month for month rules"},
			&cli.StringSliceFlag{Name: "exclude", Usage: "excluded range as START/END datetimes; repeatable"},
			&cli.StringFlag{Name: "timezone", Usage: "IANA zone the dates are read in", Value: "Local"},
			&cli.IntFlag{Name: "horizon", Usage: "days covered when end-date is empty", Value: event.DefaultHorizonDays},
			&cli.BoolFlag{Name: "json", Usage: "print JSON instead of Org timestamps"},
		},
		Action: expand,
	}
}

func expand(_ context.Context, cmd *cli.Command) error {
	loc, err := time.LoadLocation(cmd.String("timezone"))
	if err != nil {
		return fmt.Errorf("timezone: %w", err)
	}

	cond, err := recurrence.ParseCondition(models.RawCondition{
		Type:      cmd.String("type"),
		Day:       cmd.String("day"),
		Week:      cmd.String("week"),
		StartDate: cmd.String("start-date"),
		EndDate:   cmd.String("end-date"),
		StartTime: cmd.String("start-time"),
		EndTime:   cmd.String("end-time"),
	}, loc, int(cmd.Int("horizon")))
	if err != nil {
		return err
	}

	var exclusions []recurrence.Exclusion
	for _, v := range cmd.StringSlice("exclude") {
		start, end, ok := strings.Cut(v, "/")
		if !ok {
			return fmt.Errorf("exclude %q: want START/END", v)
		}
		ex, err := recurrence.ParseExclusion(models.RawExclusion{Start: start, End: end}, loc)
		if err != nil {
			return err
		}
		exclusions = append(exclusions, ex)
	}

	occs := recurrence.Expand(cond, exclusions)

	w := cmd.Root().Writer
	if cmd.Bool("json") {
		if occs == nil {
			occs = []models.Occurrence{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(occs)
	}
	for _, o := range occs {
		if _, err := fmt.Fprintln(w, parser.FormatInterval(o, true)); err != nil {
			return err
		}
	}
	return nil
}
