// Package session orchestrates the per-job application state machine:
// search, listing extraction, the Easy-Apply flow, form filling, the bounded
// submit loop, and durable history. One session drives one browser tab
// strictly sequentially; the host consumes progress through a single event
// channel and controls the session through its handle.
package session

import (
	"strings"
	"time"

	"github.com/hazyhaar/applyd/formfill"
)

// State is the per-job position in the application machine.
type State string

const (
	StateListed           State = "listed"
	StateOpened           State = "opened"
	StateEasyApplyClicked State = "easy_apply_clicked"
	StateFormFilled       State = "form_filled"
	StateSubmitted        State = "submitted"
	StateSkipped          State = "skipped"
	StateFailed           State = "failed"
)

// JobListing is one search result. The page index is transient and invalid
// after navigation; Fingerprint survives DOM churn and drives staleness
// re-resolution.
type JobListing struct {
	Title    string
	Company  string
	Location string
	URL      string

	// Index is the position in the listing column at extraction time.
	Index int
}

// Fingerprint identifies the job across re-renders: normalized title and
// company, which the site keeps stable even when element handles die.
func (j JobListing) Fingerprint() string {
	return formfill.Normalize(j.Title) + "|" + formfill.Normalize(j.Company)
}

// Status is the terminal outcome of one application attempt.
type Status string

const (
	StatusApplied Status = "applied"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// ApplicationRecord is one append-only history row, written on the terminal
// outcome before the session moves on.
type ApplicationRecord struct {
	ID        string
	Timestamp time.Time
	Title     string
	Company   string
	Location  string
	URL       string
	Status    Status
	Error     string

	QuestionsAsked    int
	QuestionsAnswered int
	FieldsFilled      int
	FieldsSkipped     int
	Duration          time.Duration
}

// Stats is the running session summary.
type Stats struct {
	Applied int `json:"applied"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Total returns the number of processed jobs.
func (s Stats) Total() int { return s.Applied + s.Failed + s.Skipped }

// EventKind is the closed set of host-visible events.
type EventKind string

const (
	EventLog          EventKind = "log"
	EventProgress     EventKind = "progress"
	EventFormProgress EventKind = "form_progress"
	EventCaptcha      EventKind = "captcha"
	EventDone         EventKind = "done"
)

// Event is one host notification. Fields are populated per kind: Message for
// log and captcha, Stats and CurrentTitle for progress and done, Percent for
// form progress.
type Event struct {
	Kind         EventKind `json:"kind"`
	Level        string    `json:"level,omitempty"`
	Message      string    `json:"message,omitempty"`
	Stats        Stats     `json:"stats,omitempty"`
	CurrentTitle string    `json:"current_title,omitempty"`
	Percent      int       `json:"percent,omitempty"`
}

// Sink receives every event in order. It must not block for long: events are
// emitted from the worker between page interactions.
type Sink func(Event)

// bestListingMatch returns the index of the candidate title most similar to
// want at or above floor, or -1. Used to re-resolve a stale listing handle.
func bestListingMatch(titles []string, want string, floor float64) int {
	best := -1
	bestScore := 0.0
	wantNorm := formfill.Normalize(want)
	for i, t := range titles {
		if formfill.Normalize(t) == wantNorm {
			return i
		}
		if s := formfill.TokenOverlap(t, want); s >= floor && s > bestScore {
			best, bestScore = i, s
		}
	}
	return best
}

// mergeAnswers layers answer maps; later maps win on key collision after
// normalization, so caller overrides beat persisted personal info.
func mergeAnswers(maps ...map[string]string) map[string]string {
	out := make(map[string]string)
	seen := make(map[string]string) // normalized key -> stored key
	for _, m := range maps {
		for k, v := range m {
			norm := formfill.Normalize(k)
			if prev, ok := seen[norm]; ok && prev != k {
				delete(out, prev)
			}
			seen[norm] = k
			out[k] = v
		}
	}
	return out
}

// stuckDetector spots a submit loop that stops making progress: the same
// visible form text observed repeatedly despite clicks.
type stuckDetector struct {
	lastHash  string
	unchanged int
	limit     int
}

func newStuckDetector(limit int) *stuckDetector {
	if limit <= 0 {
		limit = 3
	}
	return &stuckDetector{limit: limit}
}

// Observe records the current form-text hash and reports whether the loop is
// stuck. The first sighting of a hash is the baseline and counts for nothing;
// only repeat sightings, each meaning a click changed nothing, accumulate
// toward the limit.
func (d *stuckDetector) Observe(hash string) bool {
	if hash == d.lastHash {
		d.unchanged++
	} else {
		d.lastHash = hash
		d.unchanged = 0
	}
	return d.unchanged >= d.limit
}

// cleanTitle trims site decorations (trailing badge lines, stray whitespace)
// from extracted titles.
func cleanTitle(t string) string {
	t = strings.TrimSpace(t)
	if i := strings.IndexByte(t, '\n'); i >= 0 {
		t = t[:i]
	}
	return strings.TrimSpace(t)
}
