package locate

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/go-rod/rod"
)

func TestXPathString(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Easy Apply", "'Easy Apply'"},
		{"it's here", `concat('it', "'", 's here')`},
		{"''", `concat('', "'", '', "'", '')`},
	}
	for _, c := range cases {
		if got := xpathString(c.in); got != c.want {
			t.Errorf("xpathString(%q): got %s, want %s", c.in, got, c.want)
		}
	}
}

func TestNotFound(t *testing.T) {
	// WHAT: Deadline expiry and rod's own absence error read as ordinary
	// absence; anything else is a real error.
	if !notFound(context.DeadlineExceeded) {
		t.Fatal("deadline must read as not found")
	}
	if !notFound(&rod.ElementNotFoundError{}) {
		t.Fatal("rod absence error must read as not found")
	}
	if !notFound(fmt.Errorf("find: %w", &rod.ElementNotFoundError{})) {
		t.Fatal("wrapped rod absence error must read as not found")
	}
	if !notFound(fmt.Errorf("wrapped: %w", context.DeadlineExceeded)) {
		t.Fatal("wrapped deadline must read as not found")
	}
	if notFound(errors.New("target closed")) {
		t.Fatal("arbitrary errors must not read as not found")
	}
	if notFound(nil) {
		t.Fatal("nil must not read as not found")
	}
}
