package session

import (
	"context"
	"testing"
	"time"

	"github.com/hazyhaar/applyd/dbopen"
	_ "modernc.org/sqlite"
)

func newTestHistory(t *testing.T) *History {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(HistorySchema))
	return NewHistory(db)
}

// WHAT: every terminal outcome lands in the history before the session moves
// on, and listing returns newest first with counters intact.
func TestHistory_AppendAndList(t *testing.T) {
	h := newTestHistory(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	recs := []ApplicationRecord{
		{Timestamp: base, Title: "Engineer", Company: "Acme", Status: StatusApplied,
			FieldsFilled: 7, QuestionsAsked: 2, QuestionsAnswered: 2,
			Duration: 90 * time.Second},
		{Timestamp: base.Add(time.Minute), Title: "Analyst", Company: "Globex",
			Status: StatusSkipped},
		{Timestamp: base.Add(2 * time.Minute), Title: "Manager", Company: "Initech",
			Status: StatusFailed, Error: "form exceeded 10 steps"},
	}
	for _, r := range recs {
		if err := h.Append(ctx, r); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := h.List(ctx, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d records, want 3", len(got))
	}
	if got[0].Title != "Manager" || got[2].Title != "Engineer" {
		t.Fatalf("wrong order: %q .. %q", got[0].Title, got[2].Title)
	}
	if got[2].FieldsFilled != 7 || got[2].QuestionsAnswered != 2 {
		t.Fatalf("counters lost: %+v", got[2])
	}
	if got[2].Duration != 90*time.Second {
		t.Fatalf("duration lost: %v", got[2].Duration)
	}
}

// WHAT: failures are mirrored into failed_applications so failure analysis
// never scans the full history.
func TestHistory_FailedTable(t *testing.T) {
	h := newTestHistory(t)
	ctx := context.Background()

	if err := h.Append(ctx, ApplicationRecord{
		Title: "Engineer", Company: "Acme",
		Status: StatusFailed, Error: "no actionable button",
	}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := h.Append(ctx, ApplicationRecord{
		Title: "Analyst", Company: "Globex", Status: StatusApplied,
	}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	var n int
	if err := h.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM failed_applications`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("failed_applications rows = %d, want 1", n)
	}

	var errMsg string
	if err := h.DB.QueryRowContext(ctx,
		`SELECT error FROM failed_applications`).Scan(&errMsg); err != nil {
		t.Fatalf("select: %v", err)
	}
	if errMsg != "no actionable button" {
		t.Fatalf("error = %q", errMsg)
	}
}

// WHAT: the summary aggregates per-status counts across the whole history.
func TestHistory_StatsSummary(t *testing.T) {
	h := newTestHistory(t)
	ctx := context.Background()

	for _, st := range []Status{StatusApplied, StatusApplied, StatusFailed, StatusSkipped} {
		if err := h.Append(ctx, ApplicationRecord{
			Title: "T", Company: "C", Status: st, Error: "x",
		}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	s, err := h.StatsSummary(ctx)
	if err != nil {
		t.Fatalf("StatsSummary: %v", err)
	}
	if s.Applied != 2 || s.Failed != 1 || s.Skipped != 1 {
		t.Fatalf("got %+v", s)
	}
	if s.Total() != 4 {
		t.Fatalf("Total = %d, want 4", s.Total())
	}
}
