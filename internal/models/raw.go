package models

// Member kinds reported by the remote service.
const (
	MemberUser     = "user"
	MemberFacility = "facility"
)

// RawEvent is one event record as parsed from the remote payload, before
// recurrence expansion. Date and time fields are kept as the remote strings.
type RawEvent struct {
	ID          string
	Version     string
	EventType   string // "normal", "repeat", "banner"
	Plan        string
	Detail      string
	Description string
	Timezone    string
	Members     []RawMember
	When        *RawWhen
	Repeat      *RawRepeat
}

// RawMember is a participant or a facility attached to an event.
type RawMember struct {
	Kind string
	ID   string
	Name string
}

// RawWhen holds an explicit start/end. A Start without a time component
// denotes an all-day event.
type RawWhen struct {
	Start string
	End   string
}

// RawRepeat is a repeat block: one or more conditions plus exclusions.
type RawRepeat struct {
	Conditions []RawCondition
	Exclusions []RawExclusion
}

// RawCondition is a recurrence rule as reported remotely.
type RawCondition struct {
	Type      string
	Day       string
	Week      string
	StartDate string
	EndDate   string
	StartTime string
	EndTime   string
}

// RawExclusion is an excluded datetime range as reported remotely.
type RawExclusion struct {
	Start string
	End   string
}
