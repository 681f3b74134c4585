package index

import (
	"errors"
	"log/slog"
	"time"

	"github.com/starford/orgcal/internal/document"
	"github.com/starford/orgcal/internal/parser"
	"github.com/starford/orgcal/internal/storage"
)

// Sync walks the schedule directory and brings the index up to date:
//   - new/changed documents are parsed and upserted
//   - documents removed from disk are deleted from the index
//
// Entries without a TIMEZONE property are read in loc.
func Sync(db *DB, store storage.Provider, loc *time.Location, logger *slog.Logger) error {
	metas, err := store.List("")
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}

		if checksums[m.Path] == m.Checksum {
			continue
		}

		data, err := store.Read(m.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if err := indexFile(db, m.Path, data, loc); err != nil {
			logger.Warn("sync: index incomplete", slog.String("path", m.Path), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: indexed", slog.String("path", m.Path))
		}
	}

	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if err := db.DeleteFile(p); err != nil {
				logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: removed stale", slog.String("path", p))
			}
		}
	}

	return nil
}

// indexFile parses data and upserts its entries. Entries whose timestamps
// cannot be read are left out and reported in the returned error; the rest
// of the file is still indexed.
func indexFile(db *DB, path string, data []byte, loc *time.Location) error {
	doc, err := parser.Parse(data)
	if err != nil {
		return err
	}

	var (
		rows []EntryRow
		errs []error
	)
	for i, e := range doc.Entries {
		if e.Level != 1 {
			continue
		}
		if id, ok := e.Property(document.PropID); !ok || id == "" {
			continue
		}
		ev, err := document.FromEntry(e, loc)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		row := EntryRow{
			Path:         path,
			Position:     i,
			ID:           ev.ID,
			Heading:      ev.Summary,
			Version:      ev.Version,
			Plan:         ev.Plan,
			Timezone:     ev.Timezone,
			Participants: ev.Participants,
			Resources:    ev.Resources,
			Intervals:    ev.Intervals,
			Body:         ev.Description,
			Removed:      document.IsRemoved(e),
		}
		if ev.HasExpiration() {
			row.Expiration = ev.Expiration.Format(time.DateOnly)
		}
		rows = append(rows, row)
	}

	f := FileRow{Path: path, Checksum: storage.Checksum(data), UpdatedAt: time.Now().UTC()}
	if err := db.UpsertFile(f, rows); err != nil {
		return err
	}
	return errors.Join(errs...)
}
