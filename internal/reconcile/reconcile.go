// Package reconcile classifies remote manifest entries against local state
// and decides when a local entry has expired.
package reconcile

import (
	"fmt"
	"slices"
	"time"

	"github.com/starford/orgcal/internal/calendar"
	"github.com/starford/orgcal/internal/models"
)

// Result partitions manifest ids. Added, Modified and Removed are disjoint
// and keep manifest order. Unchanged lists the Modified ids whose local
// version already matches the remote one.
type Result struct {
	Added     []string
	Modified  []string
	Removed   []string
	Unchanged []string
}

// Empty reports whether the manifest required no work.
func (r Result) Empty() bool {
	return len(r.Added) == 0 && len(r.Modified) == 0 && len(r.Removed) == 0
}

// Fetch returns the ids whose event bodies must be retrieved: added plus
// modified, minus the unchanged ones.
func (r Result) Fetch() []string {
	out := make([]string, 0, len(r.Added)+len(r.Modified))
	out = append(out, r.Added...)
	for _, id := range r.Modified {
		if !slices.Contains(r.Unchanged, id) {
			out = append(out, id)
		}
	}
	return out
}

// IsUnchanged reports whether id is a no-op modification.
func (r Result) IsUnchanged(id string) bool {
	return slices.Contains(r.Unchanged, id)
}

// Diff classifies manifest by its operation hints. When an id repeats, its
// last entry decides the set. An unknown operation is an error.
func Diff(manifest []models.ManifestEntry, local map[string]string) (Result, error) {
	var res Result
	seen := make(map[string]bool, len(manifest))

	// Walk backwards so the last entry for an id wins, then restore order.
	for i := len(manifest) - 1; i >= 0; i-- {
		e := manifest[i]
		if seen[e.ID] {
			continue
		}
		seen[e.ID] = true

		switch e.Operation {
		case models.OperationAdd:
			res.Added = append(res.Added, e.ID)
		case models.OperationModify:
			res.Modified = append(res.Modified, e.ID)
			if v, ok := local[e.ID]; ok && v == e.Version {
				res.Unchanged = append(res.Unchanged, e.ID)
			}
		case models.OperationRemove:
			res.Removed = append(res.Removed, e.ID)
		default:
			return Result{}, fmt.Errorf("reconcile: id %q: unknown operation %q", e.ID, e.Operation)
		}
	}

	slices.Reverse(res.Added)
	slices.Reverse(res.Modified)
	slices.Reverse(res.Removed)
	slices.Reverse(res.Unchanged)
	return res, nil
}

// ShouldArchive reports whether the last moment of expiration's day, taken
// in loc, is strictly before now. A zero expiration is never archived.
func ShouldArchive(expiration time.Time, loc *time.Location, now time.Time) bool {
	if expiration.IsZero() {
		return false
	}
	if loc == nil {
		loc = expiration.Location()
	}
	// The expiration is a calendar date: keep its day, read it in loc.
	day := time.Date(expiration.Year(), expiration.Month(), expiration.Day(), 0, 0, 0, 0, loc)
	return calendar.EndOfDay(day).Before(now)
}
