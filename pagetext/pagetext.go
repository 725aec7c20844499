// Package pagetext extracts the human-visible text of an HTML fragment.
//
// It is the shared primitive behind two checks that must not be fooled by
// markup churn: strict phrase matching during error classification, and the
// stuck-page hash in the submit loop (the page URL can stay constant across
// wizard steps, the visible text cannot).
package pagetext

import (
	"crypto/sha256"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var hiddenStylePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)display\s*:\s*none`),
	regexp.MustCompile(`(?i)visibility\s*:\s*hidden`),
	regexp.MustCompile(`(?i)font-size\s*:\s*0[^1-9]`),
	regexp.MustCompile(`(?i)opacity\s*:\s*0[^.]`),
}

func hasHiddenStyle(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	for _, a := range n.Attr {
		if a.Key == "style" {
			for _, pat := range hiddenStylePatterns {
				if pat.MatchString(a.Val) {
					return true
				}
			}
		}
	}
	return false
}

// VisibleText parses fragment and returns its visible text with whitespace
// collapsed to single spaces. Script, style, noscript and inline-hidden
// subtrees are skipped. A parse failure falls back to the raw input so
// callers always get something hashable.
func VisibleText(fragment string) string {
	doc, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return strings.Join(strings.Fields(fragment), " ")
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(text)
			}
		}
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript:
				return
			}
			if hasHiddenStyle(n) {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return strings.Join(strings.Fields(sb.String()), " ")
}

// Hash returns a 128-bit hex digest of the visible text of fragment.
// Two renderings of the same step hash equal even when attribute noise,
// scripts or hidden nodes differ.
func Hash(fragment string) string {
	h := sha256.Sum256([]byte(VisibleText(fragment)))
	return fmt.Sprintf("%x", h[:16])
}
