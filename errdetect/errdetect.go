// Package errdetect classifies the current page state into the error
// taxonomy the recovery layer acts on.
//
// Detection for each error type runs three passes in decreasing order of
// authority: URL pattern, then a verified-visible DOM marker, then a strict
// phrase match over the page's visible text. The phrase pass is deliberately
// narrow: ordinary page copy contains words like "apply" and "wait", so only
// exact phrases observed on real block pages qualify.
package errdetect

import (
	"log/slog"
	"strings"

	"github.com/hazyhaar/applyd/pagetext"
)

// Type identifies one class of page-level failure.
type Type int

const (
	Unknown Type = iota
	Captcha
	RateLimit
	SessionTimeout
	NetworkError
	FormNotFound
)

func (t Type) String() string {
	switch t {
	case Captcha:
		return "captcha"
	case RateLimit:
		return "rate_limit"
	case SessionTimeout:
		return "session_timeout"
	case NetworkError:
		return "network_error"
	case FormNotFound:
		return "form_not_found"
	default:
		return "unknown"
	}
}

// Classification is the detector's verdict: a type plus a human-readable
// message. Unknown with an empty message means "no recognised error".
type Classification struct {
	Type    Type
	Message string
}

// Page is the read-only view of the live page the detector inspects.
// Implementations must never mutate page state.
type Page interface {
	// URL returns the current page URL, or "" when unreadable.
	URL() string
	// HTML returns the full page markup.
	HTML() (string, error)
	// HasVisible reports whether selector matches at least one displayed
	// element. Implementations should treat lookup failures as false.
	HasVisible(selector string) bool
}

// Detector classifies page state. Pure read; safe to call at any point.
type Detector struct {
	page Page
	log  *slog.Logger
}

// New creates a Detector over page.
func New(page Page, log *slog.Logger) *Detector {
	if log == nil {
		log = slog.Default()
	}
	return &Detector{page: page, log: log}
}

var captchaURLFragments = []string{"/checkpoint", "/challenge", "/security/"}

var captchaMarkers = []string{
	`iframe[src*="recaptcha"]`,
	`div.g-recaptcha`,
	`div[class*="captcha"]`,
}

var captchaPhrases = []string{
	"let's do a quick security check",
	"verify you're not a robot",
	"solve this puzzle",
}

var rateLimitPhrases = []string{
	"too many requests",
	"slow down",
	"try again later",
	"temporarily unavailable",
	"too many attempts",
	"rate limit",
}

var loginURLFragments = []string{"/login", "/uas/login"}

var loginMarkers = []string{
	`input#username`,
	`input[type="email"][name="session_key"]`,
	`form[class*="login__form"]`,
}

var sessionPhrases = []string{
	"session has expired",
	"you must be logged in",
	"sign in to continue",
}

var networkPhrases = []string{
	"connection refused",
	"connection timeout",
	"unable to connect",
	"no internet",
	"network error",
	"502 bad gateway",
	"503 service unavailable",
}

// Detect classifies the current page. It tolerates the page becoming
// unreadable mid-check: that case yields Unknown with the failure captured
// in the message so callers can still log the cause.
func (d *Detector) Detect() Classification {
	rawURL := strings.ToLower(d.page.URL())

	raw, err := d.page.HTML()
	if err != nil {
		d.log.Warn("errdetect: page unreadable", "error", err)
		return Classification{Type: Unknown, Message: "page unreadable: " + err.Error()}
	}
	visible := strings.ToLower(pagetext.VisibleText(raw))
	lower := strings.ToLower(raw)

	if msg, ok := d.checkCaptcha(rawURL, visible); ok {
		return Classification{Type: Captcha, Message: msg}
	}
	if phrase, ok := containsAny(visible, rateLimitPhrases); ok {
		return Classification{Type: RateLimit, Message: "rate limiting detected: " + phrase}
	}
	if msg, ok := d.checkSessionTimeout(rawURL, visible); ok {
		return Classification{Type: SessionTimeout, Message: msg}
	}
	if phrase, ok := containsAny(visible, networkPhrases); ok {
		return Classification{Type: NetworkError, Message: "network error detected: " + phrase}
	}
	if !strings.Contains(lower, "easy-apply") && !strings.Contains(lower, "apply") {
		return Classification{Type: FormNotFound, Message: "application form not found"}
	}

	return Classification{Type: Unknown}
}

func (d *Detector) checkCaptcha(rawURL, visible string) (string, bool) {
	for _, frag := range captchaURLFragments {
		if strings.Contains(rawURL, frag) {
			return "challenge URL: " + frag, true
		}
	}
	for _, sel := range captchaMarkers {
		if d.page.HasVisible(sel) {
			d.log.Warn("errdetect: visible captcha element", "selector", sel)
			return "visible CAPTCHA element", true
		}
	}
	if phrase, ok := containsAny(visible, captchaPhrases); ok {
		return "CAPTCHA phrase: " + phrase, true
	}
	return "", false
}

func (d *Detector) checkSessionTimeout(rawURL, visible string) (string, bool) {
	for _, frag := range loginURLFragments {
		if strings.Contains(rawURL, frag) {
			return "redirected to login", true
		}
	}
	for _, sel := range loginMarkers {
		if d.page.HasVisible(sel) {
			d.log.Warn("errdetect: visible login form", "selector", sel)
			return "login form present", true
		}
	}
	if phrase, ok := containsAny(visible, sessionPhrases); ok {
		return "session phrase: " + phrase, true
	}
	return "", false
}

func containsAny(haystack string, phrases []string) (string, bool) {
	for _, p := range phrases {
		if strings.Contains(haystack, p) {
			return p, true
		}
	}
	return "", false
}
