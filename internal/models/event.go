// Package models defines the domain types shared by orgcal packages.
package models

import "time"

// Occurrence is one concrete interval of an event. A nil End marks an
// all-day or point occurrence with no explicit end.
type Occurrence struct {
	Start time.Time  `json:"start"`
	End   *time.Time `json:"end,omitempty"`
}

// Until returns End, or Start when the occurrence has no explicit end.
func (o Occurrence) Until() time.Time {
	if o.End == nil {
		return o.Start
	}
	return *o.End
}

// Event is the fully expanded, display-ready form of one remote event.
type Event struct {
	ID           string       `json:"id"`
	Version      string       `json:"version"`
	Plan         string       `json:"plan,omitempty"`
	Summary      string       `json:"summary"`
	Description  string       `json:"description,omitempty"`
	Intervals    []Occurrence `json:"intervals"`
	Expiration   time.Time    `json:"expiration,omitempty"` // date only, midnight in Timezone
	Timezone     string       `json:"timezone,omitempty"`
	Participants []string     `json:"participants,omitempty"`
	Resources    []string     `json:"resources,omitempty"`
}

// HasExpiration reports whether the event produced at least one interval.
func (e *Event) HasExpiration() bool {
	return !e.Expiration.IsZero()
}
