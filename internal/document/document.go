// Package document manages the local schedule document and its archive as
// ordered Org entries keyed by remote event id.
package document

import (
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"time"

	"github.com/starford/orgcal/internal/calendar"
	"github.com/starford/orgcal/internal/models"
	"github.com/starford/orgcal/internal/parser"
	"github.com/starford/orgcal/internal/storage"
)

// Property keys written on managed entries.
const (
	PropID           = "ID"
	PropVersion      = "VERSION"
	PropPlan         = "PLAN"
	PropExpiration   = "EXPIRATION"
	PropTimezone     = "TIMEZONE"
	PropParticipants = "PARTICIPANTS"
	PropResources    = "RESOURCES"
	PropRemoved      = "REMOVED"
	PropArchiveTime  = "ARCHIVE_TIME"
	PropArchiveFile  = "ARCHIVE_FILE"
)

const (
	defaultPreamble = "#+TITLE: Schedule\n#+STARTUP: overview\n\n"
	archivePreamble = "#+TITLE: Schedule archive\n\n"
	untitled        = "(untitled)"
)

var managedProps = []string{
	PropID, PropVersion, PropPlan, PropExpiration,
	PropTimezone, PropParticipants, PropResources,
}

// EntryHandle identifies one entry of the main document. It stays valid
// across other insertions and removals until the next Load.
type EntryHandle struct {
	entry *parser.Entry
}

// Valid reports whether the handle refers to an entry.
func (h EntryHandle) Valid() bool { return h.entry != nil }

// Store holds the parsed main and archive documents. It is not safe for
// concurrent use; callers serialize access.
type Store struct {
	provider    storage.Provider
	path        string
	archivePath string
	loc         *time.Location

	doc          *parser.Document
	archive      *parser.Document
	dirty        bool
	archiveDirty bool
}

// Open returns a Store over path and loads it. An empty archivePath
// defaults to path + "_archive".
func Open(provider storage.Provider, path, archivePath string, loc *time.Location) (*Store, error) {
	if archivePath == "" {
		archivePath = path + "_archive"
	}
	if loc == nil {
		loc = time.Local
	}
	s := &Store{provider: provider, path: path, archivePath: archivePath, loc: loc}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path is the main document path relative to the provider root.
func (s *Store) Path() string { return s.path }

// ArchivePath is the archive document path relative to the provider root.
func (s *Store) ArchivePath() string { return s.archivePath }

// Load discards unpersisted changes and re-reads both documents. Missing
// files load as empty documents.
func (s *Store) Load() error {
	doc, err := s.read(s.path, defaultPreamble)
	if err != nil {
		return err
	}
	archive, err := s.read(s.archivePath, archivePreamble)
	if err != nil {
		return err
	}
	s.doc, s.archive = doc, archive
	s.dirty, s.archiveDirty = false, false
	return nil
}

func (s *Store) read(path, preamble string) (*parser.Document, error) {
	data, err := s.provider.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &parser.Document{Preamble: preamble}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("document: load %s: %w", path, err)
	}
	doc, err := parser.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("document: parse %s: %w", path, err)
	}
	return doc, nil
}

// Persist writes every modified document. The archive is written first so
// an interrupted persist duplicates an archived entry rather than losing it.
func (s *Store) Persist() error {
	if s.archiveDirty {
		if err := s.provider.Write(s.archivePath, s.archive.Render()); err != nil {
			return fmt.Errorf("document: persist archive: %w", err)
		}
		s.archiveDirty = false
	}
	if s.dirty {
		if err := s.provider.Write(s.path, s.doc.Render()); err != nil {
			return fmt.Errorf("document: persist: %w", err)
		}
		s.dirty = false
	}
	return nil
}

// Dirty reports whether there are unpersisted changes.
func (s *Store) Dirty() bool { return s.dirty || s.archiveDirty }

// Entries returns handles to every top-level entry carrying an ID, in
// document order.
func (s *Store) Entries() []EntryHandle {
	var out []EntryHandle
	for _, e := range s.doc.Entries {
		if e.Level != 1 {
			continue
		}
		if _, ok := e.Property(PropID); ok {
			out = append(out, EntryHandle{entry: e})
		}
	}
	return out
}

// FindByID returns the first top-level entry with the given ID.
func (s *Store) FindByID(id string) (EntryHandle, bool) {
	for _, h := range s.Entries() {
		if v, _ := h.entry.Property(PropID); v == id {
			return h, true
		}
	}
	return EntryHandle{}, false
}

// LocalVersions maps every entry ID to its VERSION property.
func (s *Store) LocalVersions() map[string]string {
	out := make(map[string]string)
	for _, h := range s.Entries() {
		id, _ := h.entry.Property(PropID)
		if _, dup := out[id]; dup {
			continue
		}
		v, _ := h.entry.Property(PropVersion)
		out[id] = v
	}
	return out
}

// ID returns the entry's ID property.
func (s *Store) ID(h EntryHandle) string {
	v, _ := h.entry.Property(PropID)
	return v
}

// Removed reports whether the entry was marked removed.
func (s *Store) Removed(h EntryHandle) bool {
	return IsRemoved(h.entry)
}

// Location returns the entry's TIMEZONE, or the store default.
func (s *Store) Location(h EntryHandle) *time.Location {
	return entryLocation(h.entry, s.loc)
}

func entryLocation(e *parser.Entry, def *time.Location) *time.Location {
	if name, ok := e.Property(PropTimezone); ok && name != "" {
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	return def
}

// Expiration returns the entry's EXPIRATION date as midnight in its
// location. ok is false when the property is missing or unreadable.
func (s *Store) Expiration(h EntryHandle) (time.Time, *time.Location, bool) {
	loc := s.Location(h)
	v, ok := h.entry.Property(PropExpiration)
	if !ok || v == "" {
		return time.Time{}, loc, false
	}
	t, err := calendar.ParseDate(v, loc)
	if err != nil {
		return time.Time{}, loc, false
	}
	return t, loc, true
}

// Insert appends a new entry for ev.
func (s *Store) Insert(ev *models.Event) EntryHandle {
	e := &parser.Entry{Level: 1, HasDrawer: true}
	fill(e, ev)
	s.doc.Entries = append(s.doc.Entries, e)
	s.dirty = true
	return EntryHandle{entry: e}
}

// Rewrite replaces the entry's heading, managed properties and body with
// ev. Properties added by hand are kept in place.
func (s *Store) Rewrite(h EntryHandle, ev *models.Event) {
	h.entry.DeleteProperty(PropRemoved)
	fill(h.entry, ev)
	s.dirty = true
}

// MarkRemoved deactivates the entry's timestamps and stamps REMOVED.
func (s *Store) MarkRemoved(h EntryHandle, now time.Time) {
	h.entry.Body = parser.Deactivate(h.entry.Body)
	h.entry.SetProperty(PropRemoved, "["+parser.FormatStamp(now)+"]")
	s.dirty = true
}

// Archive moves the entry and its subheadings into the archive document.
func (s *Store) Archive(h EntryHandle, now time.Time) error {
	i := s.indexOf(h)
	if i < 0 {
		return fmt.Errorf("document: archive: entry not in document")
	}
	start, end := s.doc.Subtree(i)
	moved := append([]*parser.Entry(nil), s.doc.Entries[start:end]...)
	s.doc.Entries = append(s.doc.Entries[:start], s.doc.Entries[end:]...)

	moved[0].SetProperty(PropArchiveTime, parser.FormatStamp(now))
	moved[0].SetProperty(PropArchiveFile, s.path)
	s.archive.Entries = append(s.archive.Entries, moved...)

	s.dirty, s.archiveDirty = true, true
	return nil
}

func (s *Store) indexOf(h EntryHandle) int {
	for i, e := range s.doc.Entries {
		if e == h.entry {
			return i
		}
	}
	return -1
}

// Event reconstructs the event stored in an entry.
func (s *Store) Event(h EntryHandle) (*models.Event, error) {
	return FromEntry(h.entry, s.loc)
}

// FromEntry reconstructs an event from a parsed entry. Intervals come from
// the active timestamps of the body's schedule block, read in its TIMEZONE
// or def.
func FromEntry(e *parser.Entry, def *time.Location) (*models.Event, error) {
	id, _ := e.Property(PropID)
	loc := entryLocation(e, def)
	schedule, rest := parser.SplitSchedule(e.Body)
	intervals, err := parser.ParseTimestamps(schedule, loc)
	if err != nil {
		return nil, fmt.Errorf("document: entry %s: %w", id, err)
	}
	ev := &models.Event{
		ID:           id,
		Summary:      e.Heading,
		Intervals:    intervals,
		Description:  description(rest),
		Timezone:     loc.String(),
		Participants: splitList(e, PropParticipants),
		Resources:    splitList(e, PropResources),
	}
	ev.Version, _ = e.Property(PropVersion)
	ev.Plan, _ = e.Property(PropPlan)
	if v, ok := e.Property(PropExpiration); ok {
		if exp, err := calendar.ParseDate(v, loc); err == nil {
			ev.Expiration = exp
		}
	}
	return ev, nil
}

// IsRemoved reports whether a parsed entry carries the REMOVED stamp.
func IsRemoved(e *parser.Entry) bool {
	_, ok := e.Property(PropRemoved)
	return ok
}

// ActiveEvents returns every entry not marked removed, in document order.
func (s *Store) ActiveEvents() ([]*models.Event, error) {
	var out []*models.Event
	for _, h := range s.Entries() {
		if s.Removed(h) {
			continue
		}
		ev, err := s.Event(h)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

func fill(e *parser.Entry, ev *models.Event) {
	e.Heading = heading(ev.Summary)

	values := map[string]string{
		PropID:           ev.ID,
		PropVersion:      ev.Version,
		PropPlan:         ev.Plan,
		PropTimezone:     ev.Timezone,
		PropParticipants: strings.Join(ev.Participants, ", "),
		PropResources:    strings.Join(ev.Resources, ", "),
	}
	if ev.HasExpiration() {
		values[PropExpiration] = ev.Expiration.Format(calendar.DateLayout)
	}
	for _, key := range managedProps {
		if v := values[key]; v != "" || key == PropID {
			e.SetProperty(key, v)
		} else {
			e.DeleteProperty(key)
		}
	}
	e.HasDrawer = true
	e.Body = body(ev)
}

func body(ev *models.Event) string {
	var b strings.Builder
	for _, o := range ev.Intervals {
		b.WriteString(parser.FormatInterval(o, true))
		b.WriteString("\n")
	}
	desc := strings.TrimSpace(ev.Description)
	if desc == "" {
		return b.String()
	}
	if b.Len() > 0 {
		b.WriteString("\n")
	}
	for _, line := range strings.Split(desc, "\n") {
		line = strings.TrimRight(line, "\r")
		if escapedRe.MatchString(line) {
			// Would read back as a heading or a schedule line.
			line = " " + line
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

// escapedRe matches description lines that body indents by one space.
// unescapedRe matches them once indented.
var (
	escapedRe   = regexp.MustCompile(`^ *[*<\[]`)
	unescapedRe = regexp.MustCompile(`^ +[*<\[]`)
)

// description undoes body's escaping of the text after the schedule block.
func description(rest string) string {
	lines := strings.Split(rest, "\n")
	for i, line := range lines {
		if unescapedRe.MatchString(line) {
			lines[i] = line[1:]
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func heading(summary string) string {
	summary = strings.Join(strings.Fields(summary), " ")
	if summary == "" {
		return untitled
	}
	return summary
}

func splitList(e *parser.Entry, key string) []string {
	v, ok := e.Property(key)
	if !ok || v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
