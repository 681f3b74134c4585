package recurrence

import "strings"

// Kind is the closed set of recurrence rule shapes.
type Kind int

const (
	// KindUnknown keeps compatibility with rule types this package does not
	// recognise: they expand to no occurrences.
	KindUnknown Kind = iota
	KindDay
	KindWeekday
	KindWeek
	KindNthWeek
	KindMonth
)

// NthLast selects the last week block of a month.
const NthLast = -1

var nthPrefixes = map[string]int{
	"1st":  1,
	"2nd":  2,
	"3rd":  3,
	"4th":  4,
	"last": NthLast,
}

// ParseKind maps a remote condition type onto a Kind. For KindNthWeek the
// second result is the week block (1..4, or NthLast).
func ParseKind(s string) (Kind, int) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "day":
		return KindDay, 0
	case "weekday":
		return KindWeekday, 0
	case "week":
		return KindWeek, 0
	case "month":
		return KindMonth, 0
	}
	if prefix, ok := strings.CutSuffix(s, "week"); ok {
		if n, ok := nthPrefixes[prefix]; ok {
			return KindNthWeek, n
		}
	}
	return KindUnknown, 0
}

func (k Kind) String() string {
	switch k {
	case KindDay:
		return "day"
	case KindWeekday:
		return "weekday"
	case KindWeek:
		return "week"
	case KindNthWeek:
		return "nthweek"
	case KindMonth:
		return "month"
	default:
		return "unknown"
	}
}
