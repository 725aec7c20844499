// Package locate provides fault-tolerant element primitives over a rod page:
// bounded-wait find, click with staleness retry and script fallback, typed
// input. Ordinary absence is a silent (nil, nil); only unexpected failures
// surface as errors, so callers can probe for optional elements without
// generating noise.
package locate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// Locator wraps one page. Not safe for concurrent use; one session drives
// one locator.
type Locator struct {
	page    *rod.Page
	timeout time.Duration
	log     *slog.Logger
}

// New creates a Locator with the given default wait bound.
func New(page *rod.Page, timeout time.Duration, log *slog.Logger) *Locator {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Locator{page: page, timeout: timeout, log: log}
}

// Page exposes the underlying page for operations outside the locator's
// scope (navigation, screenshots).
func (l *Locator) Page() *rod.Page { return l.page }

// notFound reports whether err means the element never appeared within the
// wait bound, as opposed to the find itself failing.
func notFound(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var enf *rod.ElementNotFoundError
	return errors.As(err, &enf)
}

// Find waits up to the default timeout for selector. Returns (nil, nil) when
// the element never appears; a non-nil error only for unexpected failures.
func (l *Locator) Find(selector string) (*rod.Element, error) {
	return l.FindTimeout(selector, l.timeout)
}

// FindTimeout is Find with an explicit wait bound.
func (l *Locator) FindTimeout(selector string, timeout time.Duration) (*rod.Element, error) {
	el, err := l.page.Timeout(timeout).Element(selector)
	if err != nil {
		if notFound(err) {
			return nil, nil
		}
		l.log.Warn("locate: find failed", "selector", selector, "error", err)
		return nil, fmt.Errorf("locate: find %q: %w", selector, err)
	}
	return el.CancelTimeout(), nil
}

// FindAll returns every current match without waiting. Empty result is not
// an error.
func (l *Locator) FindAll(selector string) ([]*rod.Element, error) {
	els, err := l.page.Elements(selector)
	if err != nil {
		l.log.Warn("locate: find all failed", "selector", selector, "error", err)
		return nil, fmt.Errorf("locate: find all %q: %w", selector, err)
	}
	return els, nil
}

// FindX waits for an XPath match with the same contract as Find.
func (l *Locator) FindX(xpath string) (*rod.Element, error) {
	el, err := l.page.Timeout(l.timeout).ElementX(xpath)
	if err != nil {
		if notFound(err) {
			return nil, nil
		}
		l.log.Warn("locate: find xpath failed", "xpath", xpath, "error", err)
		return nil, fmt.Errorf("locate: find xpath %q: %w", xpath, err)
	}
	return el.CancelTimeout(), nil
}

// FindByLinkText finds an anchor by its text, exact or substring.
func (l *Locator) FindByLinkText(text string, partial bool) (*rod.Element, error) {
	xpath := fmt.Sprintf(`//a[normalize-space(text())=%s]`, xpathString(text))
	if partial {
		xpath = fmt.Sprintf(`//a[contains(normalize-space(text()), %s)]`, xpathString(text))
	}
	return l.FindX(xpath)
}

// xpathString quotes s for embedding in an XPath expression. Single quotes
// in the text force the concat form.
func xpathString(s string) string {
	if !strings.ContainsRune(s, '\'') {
		return "'" + s + "'"
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = "'" + p + "'"
	}
	return "concat(" + strings.Join(quoted, `, "'", `) + ")"
}

// Click finds selector and clicks it, tolerating one staleness round-trip
// and falling back to a script-level click when the normal path is blocked
// by an overlay. Returns false on ordinary absence.
func (l *Locator) Click(selector string) (bool, error) {
	el, err := l.Find(selector)
	if err != nil {
		return false, err
	}
	if el == nil {
		return false, nil
	}
	if err := l.ClickElement(el); err != nil {
		// The node may have been replaced between find and click.
		el, ferr := l.Find(selector)
		if ferr != nil || el == nil {
			return false, fmt.Errorf("locate: click %q: %w", selector, err)
		}
		if rerr := l.ClickElement(el); rerr != nil {
			return false, fmt.Errorf("locate: click %q: %w", selector, rerr)
		}
	}
	return true, nil
}

// ClickElement clicks el: scroll into view, normal click, then a script
// click if the element is obscured.
func (l *Locator) ClickElement(el *rod.Element) error {
	_ = el.ScrollIntoView()
	if err := el.Click(proto.InputMouseButtonLeft, 1); err == nil {
		return nil
	}
	l.log.Debug("locate: normal click blocked, using script click")
	if _, err := el.Eval(`() => this.click()`); err != nil {
		return fmt.Errorf("locate: script click: %w", err)
	}
	return nil
}

// SetTextByID clears and types value into the element with the given id.
// Returns false on absence.
func (l *Locator) SetTextByID(id, value string) (bool, error) {
	el, err := l.Find("#" + id)
	if err != nil {
		return false, err
	}
	if el == nil {
		return false, nil
	}
	if err := el.SelectAllText(); err != nil {
		return false, fmt.Errorf("locate: select text #%s: %w", id, err)
	}
	if err := el.Input(value); err != nil {
		return false, fmt.Errorf("locate: input #%s: %w", id, err)
	}
	return true, nil
}
