// Package qa is the persistent question-answer store. Questions are keyed by
// their normalized text; a coarse similarity bucket (hash of the significant
// words) bounds fuzzy lookups so find-similar stays sub-linear on the common
// path and never matches across unrelated buckets.
package qa

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/hazyhaar/applyd/dbopen"
	"github.com/hazyhaar/applyd/formfill"
	"github.com/hazyhaar/applyd/idgen"
)

// Schema creates the question bank. Pass to dbopen.WithSchema.
const Schema = `
CREATE TABLE IF NOT EXISTS question_bank (
	id                  TEXT PRIMARY KEY,
	question            TEXT NOT NULL,
	question_normalized TEXT NOT NULL UNIQUE,
	answer              TEXT NOT NULL,
	job_title           TEXT NOT NULL DEFAULT '',
	company             TEXT NOT NULL DEFAULT '',
	job_context         TEXT NOT NULL DEFAULT '',
	created_at          TEXT NOT NULL,
	last_used           TEXT NOT NULL,
	times_used          INTEGER NOT NULL DEFAULT 1,
	similarity_hash     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_question_bank_bucket ON question_bank(similarity_hash);
CREATE INDEX IF NOT EXISTS idx_question_bank_used ON question_bank(times_used);
`

// Entry is one stored question-answer pair.
type Entry struct {
	ID         string
	Question   string
	Normalized string
	Answer     string
	JobTitle   string
	Company    string
	JobContext string
	CreatedAt  time.Time
	LastUsed   time.Time
	TimesUsed  int
	Bucket     string
}

// Store persists and retrieves answered questions. Writes retry on
// SQLITE_BUSY so a live session and an MCP host can share the file.
type Store struct {
	DB    *sql.DB
	newID idgen.Generator
	log   *slog.Logger
}

// NewStore wraps db. The schema must already be applied.
func NewStore(db *sql.DB, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{DB: db, newID: idgen.Prefixed("qa_", idgen.UUIDv7()), log: log}
}

// Normalize is the store's canonical question form: lowercase, punctuation
// stripped, whitespace collapsed.
func Normalize(q string) string { return formfill.Normalize(q) }

// significantWords returns the sorted words of the normalized question longer
// than three characters, capped at four. These drive the bucket hash.
func significantWords(normalized string) []string {
	var words []string
	for _, w := range strings.Fields(normalized) {
		if len(w) > 3 {
			words = append(words, w)
		}
	}
	sort.Strings(words)
	if len(words) > 4 {
		words = words[:4]
	}
	return words
}

// Bucket computes the coarse similarity bucket for a question.
func Bucket(question string) string {
	words := significantWords(Normalize(question))
	sum := sha256.Sum256([]byte(strings.Join(words, " ")))
	return hex.EncodeToString(sum[:])[:8]
}

// Jaccard scores two questions by normalized word-set intersection over
// union. Distinct from the form-label overlap score, which divides by the
// larger set.
func Jaccard(a, b string) float64 {
	as := wordSet(a)
	bs := wordSet(b)
	if len(as) == 0 && len(bs) == 0 {
		return 0
	}
	inter := 0
	for w := range as {
		if _, ok := bs[w]; ok {
			inter++
		}
	}
	union := len(as) + len(bs) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func wordSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(Normalize(s)) {
		out[w] = struct{}{}
	}
	return out
}

// StoreQuestion upserts an answered question. The same normalized question
// never duplicates: repeats refresh the answer and context and increment the
// usage count.
func (s *Store) StoreQuestion(ctx context.Context, question, answer, jobTitle, company, jobContext string) error {
	normalized := Normalize(question)
	if normalized == "" {
		return fmt.Errorf("qa: empty question")
	}
	now := time.Now().UTC().Format(time.RFC3339)

	_, err := dbopen.Exec(ctx, s.DB, `
		INSERT INTO question_bank
			(id, question, question_normalized, answer, job_title, company,
			 job_context, created_at, last_used, times_used, similarity_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)
		ON CONFLICT(question_normalized) DO UPDATE SET
			answer      = excluded.answer,
			job_title   = excluded.job_title,
			company     = excluded.company,
			job_context = excluded.job_context,
			last_used   = excluded.last_used,
			times_used  = times_used + 1`,
		s.newID(), question, normalized, answer, jobTitle, company,
		jobContext, now, now, Bucket(question))
	if err != nil {
		return fmt.Errorf("qa: store question: %w", err)
	}
	s.log.Debug("qa: question stored", "question", normalized)
	return nil
}

// FindSimilar returns the best Jaccard match for question within its bucket
// at or above threshold, or nil when nothing qualifies. An exact normalized
// match short-circuits the scan. Hits refresh usage statistics.
func (s *Store) FindSimilar(ctx context.Context, question string, threshold float64) (*Entry, error) {
	normalized := Normalize(question)
	if normalized == "" {
		return nil, nil
	}

	if e, err := s.byNormalized(ctx, normalized); err != nil {
		return nil, err
	} else if e != nil {
		return e, s.touch(ctx, e.ID)
	}

	rows, err := s.DB.QueryContext(ctx,
		selectEntry+` WHERE similarity_hash = ?`, Bucket(question))
	if err != nil {
		return nil, fmt.Errorf("qa: bucket scan: %w", err)
	}
	defer rows.Close()

	var best *Entry
	bestScore := 0.0
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		score := Jaccard(normalized, e.Normalized)
		if score >= threshold && score > bestScore {
			best, bestScore = e, score
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("qa: bucket scan: %w", err)
	}
	if best == nil {
		return nil, nil
	}
	s.log.Debug("qa: similar question hit", "question", normalized,
		"matched", best.Normalized, "score", bestScore)
	return best, s.touch(ctx, best.ID)
}

// ListAll returns every stored entry, most used first.
func (s *Store) ListAll(ctx context.Context) ([]Entry, error) {
	rows, err := s.DB.QueryContext(ctx,
		selectEntry+` ORDER BY times_used DESC, last_used DESC`)
	if err != nil {
		return nil, fmt.Errorf("qa: list: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

const selectEntry = `
	SELECT id, question, question_normalized, answer, job_title, company,
	       job_context, created_at, last_used, times_used, similarity_hash
	FROM question_bank`

func (s *Store) byNormalized(ctx context.Context, normalized string) (*Entry, error) {
	row := s.DB.QueryRowContext(ctx,
		selectEntry+` WHERE question_normalized = ?`, normalized)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("qa: lookup: %w", err)
	}
	return e, nil
}

func (s *Store) touch(ctx context.Context, id string) error {
	_, err := dbopen.Exec(ctx, s.DB,
		`UPDATE question_bank SET times_used = times_used + 1, last_used = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("qa: touch: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(r rowScanner) (*Entry, error) {
	var e Entry
	var created, used string
	if err := r.Scan(&e.ID, &e.Question, &e.Normalized, &e.Answer, &e.JobTitle,
		&e.Company, &e.JobContext, &created, &used, &e.TimesUsed, &e.Bucket); err != nil {
		return nil, err
	}
	e.CreatedAt, _ = time.Parse(time.RFC3339, created)
	e.LastUsed, _ = time.Parse(time.RFC3339, used)
	return &e, nil
}
