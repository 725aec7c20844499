package qa

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/hazyhaar/applyd/dbopen"
	_ "modernc.org/sqlite"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	return NewStore(db, nil)
}

func TestStoreQuestion_UpsertIdempotent(t *testing.T) {
	// WHAT: Repeating the identical (question, answer) leaves one row and a
	// monotonically increasing usage count.
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := s.StoreQuestion(ctx, "Are you willing to relocate?", "Yes", "", "", ""); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := s.ListAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("rows: got %d, want 1", len(entries))
	}
	if entries[0].TimesUsed != 3 {
		t.Fatalf("times_used: got %d, want 3", entries[0].TimesUsed)
	}
}

func TestStoreQuestion_CaseWhitespaceNoDuplicate(t *testing.T) {
	// WHAT: Questions differing only by case, punctuation or whitespace share
	// one row.
	s := openTestStore(t)
	ctx := context.Background()

	variants := []string{
		"Are you willing to relocate?",
		"are you willing to relocate",
		"  ARE   you Willing to RELOCATE?? ",
	}
	for _, q := range variants {
		if err := s.StoreQuestion(ctx, q, "Yes", "", "", ""); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := s.ListAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("rows: got %d, want 1", len(entries))
	}
}

func TestStoreQuestion_RefreshesAnswer(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.StoreQuestion(ctx, "Notice period?", "30 days", "", "", ""); err != nil {
		t.Fatal(err)
	}
	if err := s.StoreQuestion(ctx, "Notice period?", "60 days", "", "", ""); err != nil {
		t.Fatal(err)
	}

	e, err := s.FindSimilar(ctx, "Notice period?", 0.8)
	if err != nil {
		t.Fatal(err)
	}
	if e == nil || e.Answer != "60 days" {
		t.Fatalf("entry: %+v", e)
	}
}

func TestFindSimilar_FuzzyScenario(t *testing.T) {
	// WHAT: "Are you authorized to work in the US?" stored; the variant
	// without "the" matches at Jaccard >= 0.8.
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.StoreQuestion(ctx, "Are you authorized to work in the US?", "Yes", "Engineer", "Acme", ""); err != nil {
		t.Fatal(err)
	}

	e, err := s.FindSimilar(ctx, "are you authorized to work in US", 0.8)
	if err != nil {
		t.Fatal(err)
	}
	if e == nil {
		t.Fatal("expected a fuzzy hit")
	}
	if e.Answer != "Yes" {
		t.Fatalf("answer: got %q", e.Answer)
	}
}

func TestFindSimilar_NoCrossBucketMatch(t *testing.T) {
	// WHAT: Unrelated questions never match, even at a low threshold, because
	// the bucket scopes the scan.
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.StoreQuestion(ctx, "What is your expected salary range?", "90k", "", "", ""); err != nil {
		t.Fatal(err)
	}

	e, err := s.FindSimilar(ctx, "Do you have a driving license?", 0.1)
	if err != nil {
		t.Fatal(err)
	}
	if e != nil {
		t.Fatalf("unexpected match: %+v", e)
	}
}

func TestFindSimilar_BelowThresholdMisses(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.StoreQuestion(ctx, "Are you authorized to work in the US?", "Yes", "", "", ""); err != nil {
		t.Fatal(err)
	}
	// Same bucket words but a much shorter question: below 0.8.
	e, err := s.FindSimilar(ctx, "authorized work", 0.8)
	if err != nil {
		t.Fatal(err)
	}
	if e != nil {
		t.Fatalf("unexpected match: %+v", e)
	}
}

func TestFindSimilar_TouchesUsage(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.StoreQuestion(ctx, "Years of Go experience?", "8", "", "", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := s.FindSimilar(ctx, "years of go experience", 0.8); err != nil {
		t.Fatal(err)
	}

	entries, _ := s.ListAll(ctx)
	if entries[0].TimesUsed != 2 {
		t.Fatalf("times_used: got %d, want 2", entries[0].TimesUsed)
	}
}

func TestJaccard(t *testing.T) {
	if got := Jaccard("a b c", "a b c"); got != 1.0 {
		t.Fatalf("identical: got %v", got)
	}
	if got := Jaccard("a b", "c d"); got != 0.0 {
		t.Fatalf("disjoint: got %v", got)
	}
	// {are,you,authorized,to,work,in,the,us} vs without "the": 7/8.
	got := Jaccard("are you authorized to work in the us", "are you authorized to work in us")
	if got < 0.87 || got > 0.88 {
		t.Fatalf("scenario score: got %v", got)
	}
}

func TestBucket_StableAndScoped(t *testing.T) {
	// WHAT: Same significant words produce the same bucket; different
	// significant words a different one.
	a := Bucket("Are you authorized to work in the US?")
	b := Bucket("are you AUTHORIZED to work in US")
	if a != b {
		t.Fatalf("buckets differ: %s vs %s", a, b)
	}
	c := Bucket("What is your expected salary range?")
	if a == c {
		t.Fatal("unrelated questions must not share a bucket")
	}
	if len(a) != 8 {
		t.Fatalf("bucket length: got %d", len(a))
	}
}

func TestExportCSV(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.StoreQuestion(ctx, "Willing to relocate?", "Yes", "Engineer", "Acme", ""); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := s.ExportCSV(ctx, &buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "question,answer,") {
		t.Fatalf("header: got %q", out)
	}
	if !strings.Contains(out, "Willing to relocate?,Yes,Engineer,Acme,") {
		t.Fatalf("row missing: %q", out)
	}
}
