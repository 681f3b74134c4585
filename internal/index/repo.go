package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/starford/orgcal/internal/apperr"
	"github.com/starford/orgcal/internal/models"
)

const stampLayout = "2006-01-02T15:04:05Z"

// FileRow represents a row in the files table.
type FileRow struct {
	Path      string
	Checksum  string
	UpdatedAt time.Time
}

// EntryRow is one indexed schedule entry.
type EntryRow struct {
	Path         string              `json:"path"`
	Position     int                 `json:"position"`
	ID           string              `json:"id"`
	Heading      string              `json:"heading"`
	Version      string              `json:"version"`
	Plan         string              `json:"plan,omitempty"`
	Expiration   string              `json:"expiration,omitempty"`
	Timezone     string              `json:"timezone,omitempty"`
	Participants []string            `json:"participants"`
	Resources    []string            `json:"resources"`
	Intervals    []models.Occurrence `json:"intervals"`
	Body         string              `json:"body"`
	Removed      bool                `json:"removed"`
}

// SearchResult represents one search hit.
type SearchResult struct {
	ID      string `json:"id"`
	Path    string `json:"path"`
	Heading string `json:"heading"`
	Snippet string `json:"snippet"`
}

// UpsertFile replaces a file's row and all of its entries within a transaction.
func (db *DB) UpsertFile(f FileRow, entries []EntryRow) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.Exec(`
		INSERT INTO files (path, checksum, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			checksum   = excluded.checksum,
			updated_at = excluded.updated_at
	`, f.Path, f.Checksum, f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert file: %w", err)
	}

	ftsDeleteFile(tx, f.Path)
	if _, err := tx.Exec(`DELETE FROM entries WHERE path = ?`, f.Path); err != nil {
		return fmt.Errorf("index: clear entries: %w", err)
	}

	if len(entries) > 0 {
		stmt, err := tx.Prepare(`
			INSERT INTO entries (path, position, id, heading, version, plan, expiration, timezone,
				participants, resources, intervals, starts_at, ends_at, body, removed)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("index: prepare entry insert: %w", err)
		}
		defer stmt.Close()

		for _, e := range entries {
			participants, _ := json.Marshal(nonNil(e.Participants))
			resources, _ := json.Marshal(nonNil(e.Resources))
			intervals, err := json.Marshal(e.Intervals)
			if err != nil {
				return fmt.Errorf("index: encode intervals: %w", err)
			}
			startsAt, endsAt := span(e.Intervals)
			if _, err := stmt.Exec(f.Path, e.Position, e.ID, e.Heading, e.Version, e.Plan, e.Expiration, e.Timezone,
				string(participants), string(resources), string(intervals), startsAt, endsAt, e.Body, e.Removed); err != nil {
				return fmt.Errorf("index: insert entry %s: %w", e.ID, err)
			}
			if err := ftsUpsert(tx, f.Path, e.ID, e.Heading, e.Body, strings.Join(slices.Concat(e.Participants, e.Resources), " ")); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

// DeleteFile removes a file and its entries.
func (db *DB) DeleteFile(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDeleteFile(tx, path)
	_, _ = tx.Exec(`DELETE FROM entries WHERE path = ?`, path)
	_, _ = tx.Exec(`DELETE FROM files WHERE path = ?`, path)

	return tx.Commit()
}

// GetChecksum returns the stored checksum for a file, or empty string if not found.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM files WHERE path = ?`, path).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: checksum: %w", err)
	}
	return cs, nil
}

// AllChecksums maps every indexed file path to its checksum.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM files`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

const entryColumns = `path, position, id, heading, version, plan, expiration, timezone,
	participants, resources, intervals, body, removed`

// GetEntry returns the first entry with the given id.
func (db *DB) GetEntry(id string) (*EntryRow, error) {
	row := db.conn.QueryRow(`SELECT `+entryColumns+` FROM entries WHERE id = ? ORDER BY removed, path, position LIMIT 1`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: entry %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ListEntries returns a page of entries in chronological order plus the
// total number of matches.
func (db *DB) ListEntries(f ListFilter) ([]EntryRow, int, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}

	var (
		where []string
		args  []any
	)
	if !f.IncludeRemoved {
		where = append(where, "removed = 0")
	}
	if f.Plan != "" {
		where = append(where, "plan = ?")
		args = append(args, f.Plan)
	}
	if !f.From.IsZero() {
		where = append(where, "(ends_at = '' OR ends_at >= ?)")
		args = append(args, f.From.UTC().Format(stampLayout))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM entries`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count entries: %w", err)
	}

	rows, err := db.conn.Query(`SELECT `+entryColumns+` FROM entries`+clause+
		` ORDER BY starts_at = '', starts_at, path, position LIMIT ? OFFSET ?`,
		append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list entries: %w", err)
	}
	defer rows.Close()

	var out []EntryRow
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *e)
	}
	return out, total, rows.Err()
}

// Stats counts indexed files and entries.
func (db *DB) Stats() (Stats, error) {
	var s Stats
	err := db.conn.QueryRow(`
		SELECT (SELECT count(*) FROM files),
		       (SELECT count(*) FROM entries),
		       (SELECT count(*) FROM entries WHERE removed = 1)
	`).Scan(&s.Files, &s.Entries, &s.Removed)
	if err != nil {
		return Stats{}, fmt.Errorf("index: stats: %w", err)
	}
	return s, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*EntryRow, error) {
	var (
		e                                  EntryRow
		participants, resources, intervals string
	)
	err := s.Scan(&e.Path, &e.Position, &e.ID, &e.Heading, &e.Version, &e.Plan, &e.Expiration, &e.Timezone,
		&participants, &resources, &intervals, &e.Body, &e.Removed)
	if err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(participants), &e.Participants)
	_ = json.Unmarshal([]byte(resources), &e.Resources)
	if err := json.Unmarshal([]byte(intervals), &e.Intervals); err != nil {
		return nil, fmt.Errorf("index: decode intervals of %s: %w", e.ID, err)
	}
	return &e, nil
}

func span(intervals []models.Occurrence) (string, string) {
	if len(intervals) == 0 {
		return "", ""
	}
	first, last := intervals[0].Start, intervals[0].Until()
	for _, o := range intervals[1:] {
		if o.Start.Before(first) {
			first = o.Start
		}
		if u := o.Until(); u.After(last) {
			last = u
		}
	}
	return first.UTC().Format(stampLayout), last.UTC().Format(stampLayout)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
