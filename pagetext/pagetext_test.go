package pagetext

import "testing"

func TestVisibleText_SkipsScriptAndStyle(t *testing.T) {
	// WHAT: Script/style content never appears in visible text.
	// WHY: Phrase matching over script bodies would cause false error detections.
	in := `<div><script>var x = "rate limit";</script><style>.a{}</style><p>Hello world</p></div>`
	got := VisibleText(in)
	if got != "Hello world" {
		t.Fatalf("visible text: got %q", got)
	}
}

func TestVisibleText_SkipsHiddenNodes(t *testing.T) {
	// WHAT: Inline display:none subtrees are excluded.
	// WHY: Hidden CAPTCHA containers must not trigger the detector's phrase pass.
	in := `<div><span style="display: none">secret check</span><span>visible</span></div>`
	got := VisibleText(in)
	if got != "visible" {
		t.Fatalf("visible text: got %q", got)
	}
}

func TestVisibleText_CollapsesWhitespace(t *testing.T) {
	in := "<p>one\n\t two   three</p>"
	got := VisibleText(in)
	if got != "one two three" {
		t.Fatalf("visible text: got %q", got)
	}
}

func TestHash_StableAcrossMarkupNoise(t *testing.T) {
	// WHAT: Same visible text hashes equal regardless of attributes and scripts.
	// WHY: The submit loop's stuck detector compares these hashes between clicks.
	a := Hash(`<form class="x1"><p>Step 2 of 4</p><script>a()</script></form>`)
	b := Hash(`<form class="y2" data-v="9"><p>Step   2 of 4</p></form>`)
	if a != b {
		t.Fatalf("hashes differ: %s vs %s", a, b)
	}
	c := Hash(`<form><p>Step 3 of 4</p></form>`)
	if a == c {
		t.Fatal("different steps must hash differently")
	}
}
