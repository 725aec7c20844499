package locate

import "time"

// The Locator doubles as the read-only page view consumed by the error
// detector and the recovery screenshotter.

// URL returns the current page URL, or "" when the target is unreachable.
func (l *Locator) URL() string {
	info, err := l.page.Info()
	if err != nil {
		l.log.Debug("locate: page info failed", "error", err)
		return ""
	}
	return info.URL
}

// HTML returns the full page markup.
func (l *Locator) HTML() (string, error) {
	return l.page.HTML()
}

// HasVisible reports whether selector matches at least one displayed
// element right now. Probe only: a short wait bound, failures read as false.
func (l *Locator) HasVisible(selector string) bool {
	el, err := l.FindTimeout(selector, 500*time.Millisecond)
	if err != nil || el == nil {
		return false
	}
	visible, err := el.Visible()
	return err == nil && visible
}

// Screenshot captures the current viewport as PNG.
func (l *Locator) Screenshot() ([]byte, error) {
	return l.page.Screenshot(false, nil)
}
