// Package store persists the last generated guide in a SQLite file so the
// server can come up with a guide before the first refresh finishes.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/snapetech/plutoguide/internal/catalog"
	"github.com/snapetech/plutoguide/internal/guide"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshot (
	id           INTEGER PRIMARY KEY CHECK (id = 1),
	generated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS channels (
	seq      INTEGER PRIMARY KEY,
	id       TEXT NOT NULL UNIQUE,
	name     TEXT NOT NULL,
	slug     TEXT NOT NULL,
	tmsid    TEXT NOT NULL,
	summary  TEXT NOT NULL,
	number   INTEGER NOT NULL,
	logo     TEXT NOT NULL,
	category TEXT NOT NULL,
	region   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS programmes (
	seq               INTEGER PRIMARY KEY,
	channel           TEXT NOT NULL,
	region            TEXT NOT NULL,
	start             INTEGER NOT NULL,
	stop              INTEGER NOT NULL,
	title             TEXT NOT NULL,
	sub_title         TEXT NOT NULL,
	live              INTEGER NOT NULL,
	onscreen          TEXT NOT NULL,
	episode_id        TEXT NOT NULL,
	original_air_date TEXT NOT NULL,
	date              TEXT NOT NULL,
	description       TEXT NOT NULL,
	icon              TEXT NOT NULL,
	series_id         TEXT NOT NULL,
	categories        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS programmes_channel_start ON programmes (channel, start);
`

// Store is a guide snapshot database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the snapshot database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	// One writer; sqlite serializes anyway.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init store %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// SaveGuide replaces the stored snapshot with channels and programmes in one
// transaction.
func (s *Store) SaveGuide(ctx context.Context, channels []catalog.Channel, programmes []guide.Programme, generatedAt time.Time) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store save: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, q := range []string{"DELETE FROM channels", "DELETE FROM programmes", "DELETE FROM snapshot"} {
		if _, err = tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("store save: clear: %w", err)
		}
	}

	chStmt, err := tx.PrepareContext(ctx, `INSERT INTO channels
		(id, name, slug, tmsid, summary, number, logo, category, region)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store save: prepare channels: %w", err)
	}
	defer chStmt.Close()
	for _, ch := range channels {
		if _, err = chStmt.ExecContext(ctx, ch.ID, ch.Name, ch.Slug, ch.TMSID, ch.Summary, ch.Number, ch.Logo, ch.Category, ch.Region); err != nil {
			return fmt.Errorf("store save: channel %s: %w", ch.ID, err)
		}
	}

	pStmt, err := tx.PrepareContext(ctx, `INSERT INTO programmes
		(channel, region, start, stop, title, sub_title, live, onscreen, episode_id,
		 original_air_date, date, description, icon, series_id, categories)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store save: prepare programmes: %w", err)
	}
	defer pStmt.Close()
	for _, p := range programmes {
		cats, jerr := json.Marshal(p.Categories)
		if jerr != nil {
			err = jerr
			return fmt.Errorf("store save: categories: %w", err)
		}
		live := 0
		if p.Live {
			live = 1
		}
		if _, err = pStmt.ExecContext(ctx, p.Channel, p.Region, p.Start.Unix(), p.Stop.Unix(), p.Title, p.SubTitle, live,
			p.Onscreen, p.EpisodeID, p.OriginalAirDate, p.Date, p.Description, p.Icon, p.SeriesID, string(cats)); err != nil {
			return fmt.Errorf("store save: programme %s@%s: %w", p.Channel, p.Start.Format(time.RFC3339), err)
		}
	}

	if _, err = tx.ExecContext(ctx, "INSERT INTO snapshot (id, generated_at) VALUES (1, ?)", generatedAt.Unix()); err != nil {
		return fmt.Errorf("store save: snapshot: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("store save: commit: %w", err)
	}
	return nil
}

// GeneratedAt returns when the stored snapshot was saved; ok is false when
// nothing has been saved yet.
func (s *Store) GeneratedAt(ctx context.Context) (t time.Time, ok bool, err error) {
	var ts int64
	err = s.db.QueryRowContext(ctx, "SELECT generated_at FROM snapshot WHERE id = 1").Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("store: %w", err)
	}
	return time.Unix(ts, 0).UTC(), true, nil
}

// LoadChannels returns the stored channels in saved order.
func (s *Store) LoadChannels(ctx context.Context) ([]catalog.Channel, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, slug, tmsid, summary, number, logo, category, region
		FROM channels ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("store load channels: %w", err)
	}
	defer rows.Close()
	var out []catalog.Channel
	for rows.Next() {
		var ch catalog.Channel
		if err := rows.Scan(&ch.ID, &ch.Name, &ch.Slug, &ch.TMSID, &ch.Summary, &ch.Number, &ch.Logo, &ch.Category, &ch.Region); err != nil {
			return nil, fmt.Errorf("store load channels: %w", err)
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// LoadProgrammes returns the stored programmes in saved order.
func (s *Store) LoadProgrammes(ctx context.Context) ([]guide.Programme, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT channel, region, start, stop, title, sub_title, live, onscreen,
		episode_id, original_air_date, date, description, icon, series_id, categories
		FROM programmes ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("store load programmes: %w", err)
	}
	defer rows.Close()
	var out []guide.Programme
	for rows.Next() {
		var (
			p           guide.Programme
			start, stop int64
			live        int
			cats        string
		)
		if err := rows.Scan(&p.Channel, &p.Region, &start, &stop, &p.Title, &p.SubTitle, &live, &p.Onscreen,
			&p.EpisodeID, &p.OriginalAirDate, &p.Date, &p.Description, &p.Icon, &p.SeriesID, &cats); err != nil {
			return nil, fmt.Errorf("store load programmes: %w", err)
		}
		p.Start = time.Unix(start, 0).UTC()
		p.Stop = time.Unix(stop, 0).UTC()
		p.Live = live != 0
		if err := json.Unmarshal([]byte(cats), &p.Categories); err != nil {
			return nil, fmt.Errorf("store load programmes: categories: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
