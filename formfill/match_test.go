package formfill

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct{ in, want string }{
		{"First Name", "first name"},
		{"  First\t Name  ", "first name"},
		{"E-mail address:", "e mail address"},
		{"Years of experience?", "years of experience"},
		{"", ""},
	}
	for _, c := range cases {
		if got := Normalize(c.in); got != c.want {
			t.Errorf("Normalize(%q): got %q, want %q", c.in, got, c.want)
		}
	}
}

func TestTokenOverlap_Properties(t *testing.T) {
	// WHAT: Score is symmetric, bounded in [0,1], 1 for identical normalized
	// strings, 0 for disjoint word sets.
	if got := TokenOverlap("First Name", "first   name"); got != 1.0 {
		t.Fatalf("identical normalized: got %v, want 1.0", got)
	}
	if got := TokenOverlap("cat dog", "fish bird"); got != 0.0 {
		t.Fatalf("disjoint: got %v, want 0.0", got)
	}
	a, b := "years of experience", "experience in years required"
	if TokenOverlap(a, b) != TokenOverlap(b, a) {
		t.Fatal("score must be symmetric")
	}
	if s := TokenOverlap(a, b); s < 0 || s > 1 {
		t.Fatalf("score out of range: %v", s)
	}
}

func TestTokenOverlap_DividesByLargerSet(t *testing.T) {
	// "first name" vs "first name please now": 2 shared / 4 in larger set.
	if got := TokenOverlap("first name", "first name please now"); got != 0.5 {
		t.Fatalf("got %v, want 0.5", got)
	}
}

func TestMatchAnswer_ExactBeatsNormalized(t *testing.T) {
	answers := map[string]string{
		"First Name": "exact",
		"first name": "normalized",
	}
	key, v, ok := MatchAnswer([]string{"First Name"}, answers, 0.6)
	if !ok || key != "First Name" || v != "exact" {
		t.Fatalf("got key=%q v=%q ok=%v", key, v, ok)
	}
}

func TestMatchAnswer_NormalizedTier(t *testing.T) {
	answers := map[string]string{"first name": "Jane"}
	key, v, ok := MatchAnswer([]string{"First Name"}, answers, 0.6)
	if !ok || key != "first name" || v != "Jane" {
		t.Fatalf("got key=%q v=%q ok=%v", key, v, ok)
	}
}

func TestMatchAnswer_OverlapTier(t *testing.T) {
	answers := map[string]string{"phone number": "555-0100"}
	// "Phone number (mobile)" → {phone number mobile}: overlap 2/3 ≥ 0.6.
	key, v, ok := MatchAnswer([]string{"Phone number (mobile)"}, answers, 0.6)
	if !ok || key != "phone number" || v != "555-0100" {
		t.Fatalf("got key=%q v=%q ok=%v", key, v, ok)
	}
}

func TestMatchAnswer_BelowThresholdMisses(t *testing.T) {
	answers := map[string]string{"desired salary in euros": "90000"}
	// Single shared token out of four: 0.25 < 0.6.
	if _, _, ok := MatchAnswer([]string{"salary"}, answers, 0.6); ok {
		t.Fatal("sub-threshold overlap must not match")
	}
}

func TestMatchAnswer_NoAnswers(t *testing.T) {
	if _, _, ok := MatchAnswer([]string{"anything"}, nil, 0.6); ok {
		t.Fatal("empty answers must not match")
	}
}
