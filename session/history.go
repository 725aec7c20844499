package session

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hazyhaar/applyd/dbopen"
	"github.com/hazyhaar/applyd/idgen"
)

// HistorySchema creates the application history tables. The failed table
// mirrors the main one so failure analysis never needs to filter the full
// history. Pass to dbopen.WithSchema.
const HistorySchema = `
CREATE TABLE IF NOT EXISTS applications (
	id                 TEXT PRIMARY KEY,
	created_at         TEXT NOT NULL,
	title              TEXT NOT NULL,
	company            TEXT NOT NULL,
	location           TEXT NOT NULL DEFAULT '',
	url                TEXT NOT NULL DEFAULT '',
	status             TEXT NOT NULL,
	error              TEXT NOT NULL DEFAULT '',
	questions_asked    INTEGER NOT NULL DEFAULT 0,
	questions_answered INTEGER NOT NULL DEFAULT 0,
	fields_filled      INTEGER NOT NULL DEFAULT 0,
	fields_skipped     INTEGER NOT NULL DEFAULT 0,
	duration_ms        INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_applications_created ON applications(created_at);
CREATE INDEX IF NOT EXISTS idx_applications_status ON applications(status);

CREATE TABLE IF NOT EXISTS failed_applications (
	id         TEXT PRIMARY KEY,
	created_at TEXT NOT NULL,
	title      TEXT NOT NULL,
	company    TEXT NOT NULL,
	url        TEXT NOT NULL DEFAULT '',
	error      TEXT NOT NULL
);
`

// History persists application outcomes. Append-only, single writer, written
// synchronously before the session moves to the next job.
type History struct {
	DB    *sql.DB
	newID idgen.Generator
}

// NewHistory wraps db. The schema must already be applied.
func NewHistory(db *sql.DB) *History {
	return &History{DB: db, newID: idgen.Prefixed("app_", idgen.UUIDv7())}
}

// Append writes one terminal outcome. Failures additionally land in
// failed_applications; both rows commit together or not at all.
func (h *History) Append(ctx context.Context, rec ApplicationRecord) error {
	if rec.ID == "" {
		rec.ID = h.newID()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	ts := rec.Timestamp.UTC().Format(time.RFC3339)

	err := dbopen.RunTx(ctx, h.DB, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO applications
				(id, created_at, title, company, location, url, status, error,
				 questions_asked, questions_answered, fields_filled, fields_skipped, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, ts, rec.Title, rec.Company, rec.Location, rec.URL,
			string(rec.Status), rec.Error,
			rec.QuestionsAsked, rec.QuestionsAnswered,
			rec.FieldsFilled, rec.FieldsSkipped, rec.Duration.Milliseconds())
		if err != nil {
			return err
		}

		if rec.Status == StatusFailed {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO failed_applications (id, created_at, title, company, url, error)
				VALUES (?, ?, ?, ?, ?, ?)`,
				h.newID(), ts, rec.Title, rec.Company, rec.URL, rec.Error)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("session: append history: %w", err)
	}
	return nil
}

// List returns recent records, newest first.
func (h *History) List(ctx context.Context, limit int) ([]ApplicationRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := h.DB.QueryContext(ctx, `
		SELECT id, created_at, title, company, location, url, status, error,
		       questions_asked, questions_answered, fields_filled, fields_skipped, duration_ms
		FROM applications ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("session: list history: %w", err)
	}
	defer rows.Close()

	var out []ApplicationRecord
	for rows.Next() {
		var rec ApplicationRecord
		var ts, status string
		var durMS int64
		if err := rows.Scan(&rec.ID, &ts, &rec.Title, &rec.Company, &rec.Location,
			&rec.URL, &status, &rec.Error, &rec.QuestionsAsked, &rec.QuestionsAnswered,
			&rec.FieldsFilled, &rec.FieldsSkipped, &durMS); err != nil {
			return nil, fmt.Errorf("session: scan history: %w", err)
		}
		rec.Timestamp, _ = time.Parse(time.RFC3339, ts)
		rec.Status = Status(status)
		rec.Duration = time.Duration(durMS) * time.Millisecond
		out = append(out, rec)
	}
	return out, rows.Err()
}

// StatsSummary aggregates outcomes across the whole history.
func (h *History) StatsSummary(ctx context.Context) (Stats, error) {
	rows, err := h.DB.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM applications GROUP BY status`)
	if err != nil {
		return Stats{}, fmt.Errorf("session: stats: %w", err)
	}
	defer rows.Close()

	var s Stats
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return Stats{}, fmt.Errorf("session: scan stats: %w", err)
		}
		switch Status(status) {
		case StatusApplied:
			s.Applied = n
		case StatusFailed:
			s.Failed = n
		case StatusSkipped:
			s.Skipped = n
		}
	}
	return s, rows.Err()
}
