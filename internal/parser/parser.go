// Package parser reads and writes Org outline documents: a preamble, a flat
// list of headings with property drawers, and timestamp bodies.
package parser

import (
	"regexp"
	"strings"
)

var (
	headingRe  = regexp.MustCompile(`^(\*+)\s+(.*?)\s*$`)
	propertyRe = regexp.MustCompile(`^\s*:([^\s:]+):(?:\s+(.*?))?\s*$`)
)

const (
	drawerOpen  = ":PROPERTIES:"
	drawerClose = ":END:"
)

// Property is one key/value line of a property drawer.
type Property struct {
	Key   string
	Value string
}

// Entry is a heading with its property drawer and body. Subheadings are
// separate entries with a greater Level.
type Entry struct {
	Level      int
	Heading    string
	Properties []Property
	HasDrawer  bool
	Body       string // raw lines up to the next heading, newline-terminated
}

// Document is a parsed Org file.
type Document struct {
	Preamble string
	Entries  []*Entry
}

// Parse splits data into a preamble and headings. It never fails on
// unknown syntax: anything that is not a heading or a leading drawer is
// kept verbatim as body text.
func Parse(data []byte) (*Document, error) {
	doc := &Document{}
	lines := strings.SplitAfter(string(data), "\n")

	var (
		cur      *Entry
		body     strings.Builder
		preamble strings.Builder
	)
	finish := func() {
		if cur != nil {
			cur.Body = body.String()
			doc.Entries = append(doc.Entries, cur)
		}
		body.Reset()
	}

	for i := 0; i < len(lines); i++ {
		raw := lines[i]
		if raw == "" {
			continue
		}
		line := strings.TrimRight(raw, "\r\n")

		if m := headingRe.FindStringSubmatch(line); m != nil {
			finish()
			cur = &Entry{Level: len(m[1]), Heading: m[2]}
			if i+1 < len(lines) && strings.TrimSpace(lines[i+1]) == drawerOpen {
				if props, next, ok := readDrawer(lines, i+2); ok {
					cur.Properties = props
					cur.HasDrawer = true
					i = next - 1
				}
			}
			continue
		}

		if cur == nil {
			preamble.WriteString(raw)
		} else {
			body.WriteString(raw)
		}
	}
	finish()
	doc.Preamble = preamble.String()
	return doc, nil
}

// readDrawer reads property lines from start up to :END:. It returns the
// index after :END:, or ok=false when the drawer is not closed.
func readDrawer(lines []string, start int) ([]Property, int, bool) {
	var props []Property
	for i := start; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == drawerClose {
			return props, i + 1, true
		}
		m := propertyRe.FindStringSubmatch(line)
		if m == nil {
			return nil, 0, false
		}
		props = append(props, Property{Key: strings.ToUpper(m[1]), Value: m[2]})
	}
	return nil, 0, false
}

// Render writes the document back in canonical form.
func (d *Document) Render() []byte {
	var b strings.Builder
	b.WriteString(d.Preamble)
	for _, e := range d.Entries {
		e.render(&b)
	}
	return []byte(b.String())
}

func (e *Entry) render(b *strings.Builder) {
	b.WriteString(strings.Repeat("*", max(e.Level, 1)))
	b.WriteString(" ")
	b.WriteString(e.Heading)
	b.WriteString("\n")
	if e.HasDrawer || len(e.Properties) > 0 {
		b.WriteString(drawerOpen + "\n")
		for _, p := range e.Properties {
			b.WriteString(":" + p.Key + ":")
			if p.Value != "" {
				b.WriteString(" " + p.Value)
			}
			b.WriteString("\n")
		}
		b.WriteString(drawerClose + "\n")
	}
	b.WriteString(e.Body)
	if e.Body != "" && !strings.HasSuffix(e.Body, "\n") {
		b.WriteString("\n")
	}
}

// Property returns the value of key. Keys are case-insensitive.
func (e *Entry) Property(key string) (string, bool) {
	key = strings.ToUpper(key)
	for _, p := range e.Properties {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// SetProperty replaces key in place, or appends it.
func (e *Entry) SetProperty(key, value string) {
	key = strings.ToUpper(key)
	for i := range e.Properties {
		if e.Properties[i].Key == key {
			e.Properties[i].Value = value
			return
		}
	}
	e.Properties = append(e.Properties, Property{Key: key, Value: value})
}

// DeleteProperty removes key if present.
func (e *Entry) DeleteProperty(key string) {
	key = strings.ToUpper(key)
	out := e.Properties[:0]
	for _, p := range e.Properties {
		if p.Key != key {
			out = append(out, p)
		}
	}
	e.Properties = out
}

// Subtree returns the half-open range of entries owned by the entry at i:
// the entry itself and every following entry with a deeper level.
func (d *Document) Subtree(i int) (int, int) {
	end := i + 1
	for end < len(d.Entries) && d.Entries[end].Level > d.Entries[i].Level {
		end++
	}
	return i, end
}
