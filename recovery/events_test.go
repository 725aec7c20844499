package recovery

import (
	"context"
	"testing"

	"github.com/hazyhaar/applyd/dbopen"
	_ "modernc.org/sqlite"
)

func TestCaptchaLog_RecordAndList(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(EventsSchema))
	log := NewCaptchaLog(db)
	ctx := context.Background()

	if err := log.RecordCaptchaEvent(ctx, "paused", "checkpoint", "https://example.com/jobs/1"); err != nil {
		t.Fatal(err)
	}
	if err := log.RecordCaptchaEvent(ctx, "resumed", "", "https://example.com/jobs/1"); err != nil {
		t.Fatal(err)
	}

	events, err := log.List(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("events: got %d, want 2", len(events))
	}
	for _, e := range events {
		if e.ID == "" || e.CreatedAt.IsZero() {
			t.Fatalf("event missing id or timestamp: %+v", e)
		}
	}
	// Newest first.
	if events[0].Event != "resumed" || events[1].Event != "paused" {
		t.Fatalf("order: got %q then %q", events[0].Event, events[1].Event)
	}
}

func TestCaptchaLog_ListLimit(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(EventsSchema))
	log := NewCaptchaLog(db)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := log.RecordCaptchaEvent(ctx, "paused", "", ""); err != nil {
			t.Fatal(err)
		}
	}
	events, err := log.List(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 3 {
		t.Fatalf("events: got %d, want 3", len(events))
	}
}
