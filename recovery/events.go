package recovery

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hazyhaar/applyd/idgen"
)

// Fixed-width so lexicographic ORDER BY matches chronological order.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

// EventsSchema creates the CAPTCHA audit table. Pass to dbopen.WithSchema.
const EventsSchema = `
CREATE TABLE IF NOT EXISTS captcha_events (
	id         TEXT PRIMARY KEY,
	created_at TEXT NOT NULL,
	event      TEXT NOT NULL,
	note       TEXT NOT NULL DEFAULT '',
	url        TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_captcha_events_created ON captcha_events(created_at);
`

// CaptchaEvent is one audit row: a pause, resume, timeout or cancellation.
type CaptchaEvent struct {
	ID        string
	CreatedAt time.Time
	Event     string
	Note      string
	URL       string
}

// CaptchaLog persists CAPTCHA events to SQLite. Writes are synchronous so
// the audit trail survives a crash during the pause window.
type CaptchaLog struct {
	DB    *sql.DB
	newID idgen.Generator
}

// NewCaptchaLog wraps db. The schema must already be applied.
func NewCaptchaLog(db *sql.DB) *CaptchaLog {
	return &CaptchaLog{DB: db, newID: idgen.Prefixed("cap_", idgen.UUIDv7())}
}

// RecordCaptchaEvent inserts one audit row.
func (l *CaptchaLog) RecordCaptchaEvent(ctx context.Context, event, note, url string) error {
	_, err := l.DB.ExecContext(ctx,
		`INSERT INTO captcha_events (id, created_at, event, note, url) VALUES (?, ?, ?, ?, ?)`,
		l.newID(), time.Now().UTC().Format(tsLayout), event, note, url)
	if err != nil {
		return fmt.Errorf("recovery: record captcha event: %w", err)
	}
	return nil
}

// List returns the most recent events, newest first, up to limit.
func (l *CaptchaLog) List(ctx context.Context, limit int) ([]CaptchaEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.DB.QueryContext(ctx,
		`SELECT id, created_at, event, note, url FROM captcha_events
		 ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recovery: list captcha events: %w", err)
	}
	defer rows.Close()

	var out []CaptchaEvent
	for rows.Next() {
		var e CaptchaEvent
		var ts string
		if err := rows.Scan(&e.ID, &ts, &e.Event, &e.Note, &e.URL); err != nil {
			return nil, fmt.Errorf("recovery: scan captcha event: %w", err)
		}
		e.CreatedAt, _ = time.Parse(tsLayout, ts)
		out = append(out, e)
	}
	return out, rows.Err()
}
