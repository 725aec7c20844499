// Package jobdesc turns captured job-description HTML into clean markdown
// for history records and the generative answer context.
package jobdesc

import (
	"strings"
	"unicode/utf8"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/applyd/pagetext"
)

// Converter sanitizes and converts description HTML. Safe for concurrent use.
type Converter struct {
	policy *bluemonday.Policy
	md     *converter.Converter
}

// New creates a Converter.
func New() *Converter {
	return &Converter{
		policy: bluemonday.UGCPolicy(),
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// Markdown sanitizes html and converts it to markdown. The page is
// third-party content: scripts and trackers are stripped before conversion.
// If conversion fails or produces nothing, the visible plain text is
// returned instead.
func (c *Converter) Markdown(html, sourceURL string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	clean := c.policy.Sanitize(html)
	result, err := c.md.ConvertString(clean, converter.WithDomain(sourceURL))
	if err != nil || strings.TrimSpace(result) == "" {
		return pagetext.VisibleText(html)
	}
	return strings.TrimSpace(result)
}

// Truncate bounds a description for prompt and storage contexts, cutting at
// a word boundary where possible and never mid-rune.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	cut := s[:max]
	if i := strings.LastIndexByte(cut, ' '); i > max/2 {
		cut = cut[:i]
	}
	return cut + "…"
}
