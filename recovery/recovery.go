// Package recovery wraps fragile browser actions with error classification,
// exponential-backoff retry, and CAPTCHA pause/resume handling.
//
// The contract callers rely on: a CAPTCHA never causes silent retries, rate
// limiting degrades with growing backoff up to a cap, an Unknown
// classification aborts immediately rather than retrying blind, and every
// pause/resume/timeout leaves a durable audit row.
package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hazyhaar/applyd/errdetect"
	"github.com/hazyhaar/applyd/idgen"
)

// Config configures retry, backoff and CAPTCHA handling for one session.
type Config struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// InitialBackoff is the first rate-limit/network wait. Default: 5s.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential growth. Default: 5m.
	MaxBackoff time.Duration

	// BackoffMultiplier grows the backoff each consumed attempt. Default: 2.
	BackoffMultiplier float64

	// RateLimitMaxConsecutive fails the action once this many rate-limit
	// classifications occur back to back. Default: 3.
	RateLimitMaxConsecutive int

	// AutoRelogin permits retrying after SessionTimeout. Off by default;
	// a Relogin hook must also be installed via WithRelogin.
	AutoRelogin bool

	// CaptchaBlockingWait blocks on a resume signal when a CAPTCHA is
	// detected. When false the action fails immediately instead.
	CaptchaBlockingWait bool

	// CaptchaMaxWait bounds the blocking wait. Default: 5m.
	CaptchaMaxWait time.Duration

	// OnCaptchaPause is invoked before blocking so the host can surface a
	// resume affordance. May be nil.
	OnCaptchaPause func(message string)

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 5 * time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 5 * time.Minute
	}
	if c.BackoffMultiplier <= 1 {
		c.BackoffMultiplier = 2.0
	}
	if c.RateLimitMaxConsecutive <= 0 {
		c.RateLimitMaxConsecutive = 3
	}
	if c.CaptchaMaxWait <= 0 {
		c.CaptchaMaxWait = 5 * time.Minute
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Detector classifies the current page state.
type Detector interface {
	Detect() errdetect.Classification
}

// EventRecorder persists CAPTCHA audit events. Implemented by CaptchaLog.
type EventRecorder interface {
	RecordCaptchaEvent(ctx context.Context, event, note, url string) error
}

// Screenshotter captures the current page for CAPTCHA debugging.
type Screenshotter interface {
	Screenshot() ([]byte, error)
}

// Manager wraps arbitrary fallible actions with detection and recovery.
type Manager struct {
	cfg     Config
	det     Detector
	strat   *RetryStrategy
	events  EventRecorder
	shot    Screenshotter
	shotDir string
	pageURL func() string
	relogin func(ctx context.Context) error
	resume  chan struct{}
	sleep   func(time.Duration)
	shotID  idgen.Generator
	log     *slog.Logger
}

// Option customises a Manager.
type Option func(*Manager)

// WithEventRecorder installs the durable CAPTCHA audit sink.
func WithEventRecorder(r EventRecorder) Option {
	return func(m *Manager) { m.events = r }
}

// WithScreenshotter saves a screenshot to dir when a CAPTCHA pauses the run.
func WithScreenshotter(s Screenshotter, dir string) Option {
	return func(m *Manager) { m.shot = s; m.shotDir = dir }
}

// WithPageURL supplies the current URL for audit rows.
func WithPageURL(fn func() string) Option {
	return func(m *Manager) { m.pageURL = fn }
}

// WithRelogin installs the re-authentication hook consulted on
// SessionTimeout when Config.AutoRelogin is set.
func WithRelogin(fn func(ctx context.Context) error) Option {
	return func(m *Manager) { m.relogin = fn }
}

// WithSleep replaces the backoff sleep. Tests inject a recorder here.
func WithSleep(fn func(time.Duration)) Option {
	return func(m *Manager) { m.sleep = fn }
}

// NewManager creates a recovery Manager around det.
func NewManager(det Detector, cfg Config, opts ...Option) *Manager {
	cfg.defaults()
	m := &Manager{
		cfg:    cfg,
		det:    det,
		strat:  NewRetryStrategy(cfg),
		resume: make(chan struct{}, 1),
		sleep:  time.Sleep,
		shotID: idgen.Timestamped(idgen.NanoID(6)),
		log:    cfg.Logger,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Resume releases a blocked CAPTCHA wait. Safe to call at any time; a
// signal sent while nothing is waiting must not satisfy a later pause, so
// Attempt drains stale signals before blocking.
func (m *Manager) Resume() {
	select {
	case m.resume <- struct{}{}:
	default:
	}
	m.log.Info("recovery: captcha resume requested")
	m.record(context.Background(), "resume_requested", "")
}

// Attempt runs action with classification-driven recovery. It returns
// success plus a failure message for the terminal record. An error returned
// by the action itself is treated as an immediate failure, never retried:
// programming errors must not masquerade as transient faults.
func (m *Manager) Attempt(ctx context.Context, name string, action func(ctx context.Context) (bool, error)) (bool, string) {
	m.strat.Reset()

	attempt := 0
	for attempt <= m.cfg.MaxRetries {
		if err := ctx.Err(); err != nil {
			return false, "cancelled: " + err.Error()
		}

		m.log.Info("recovery: attempting", "action", name, "attempt", attempt+1)
		ok, err := action(ctx)
		if err != nil {
			m.log.Error("recovery: action error", "action", name, "error", err)
			return false, err.Error()
		}
		if ok {
			m.strat.Reset()
			return true, ""
		}

		c := m.det.Detect()
		if c.Type == errdetect.Unknown {
			m.log.Warn("recovery: unclassified failure", "action", name, "detail", c.Message)
			if c.Message != "" {
				return false, "unknown error: " + c.Message
			}
			return false, "unknown error"
		}

		m.log.Warn("recovery: classified failure",
			"action", name, "type", c.Type.String(), "message", c.Message)

		switch c.Type {
		case errdetect.Captcha:
			resumed, msg := m.handleCaptcha(ctx, c.Message)
			if !resumed {
				return false, msg
			}
			// Resumed by the operator: retry the same attempt, it does
			// not count against the budget.
			continue

		case errdetect.RateLimit, errdetect.NetworkError:
			if !m.strat.ShouldRetry(c.Type) {
				return false, fmt.Sprintf("%s: %s", c.Type, c.Message)
			}
			backoff := m.strat.Backoff()
			m.log.Warn("recovery: backing off", "action", name,
				"type", c.Type.String(), "backoff", backoff)
			m.sleep(backoff)
			m.strat.Advance()
			attempt++
			continue

		case errdetect.SessionTimeout:
			if m.cfg.AutoRelogin && m.relogin != nil && m.strat.ShouldRetry(c.Type) {
				m.log.Info("recovery: session expired, re-authenticating")
				if err := m.relogin(ctx); err != nil {
					return false, "relogin failed: " + err.Error()
				}
				m.strat.Advance()
				attempt++
				continue
			}
			return false, "session timeout"

		default:
			return false, fmt.Sprintf("%s: %s", c.Type, c.Message)
		}
	}

	return false, fmt.Sprintf("max retries (%d) exceeded", m.cfg.MaxRetries)
}

// handleCaptcha returns (true, "") when the operator resumed and the attempt
// should be replayed, or (false, message) when the action must fail.
func (m *Manager) handleCaptcha(ctx context.Context, detail string) (bool, string) {
	m.saveScreenshot()
	m.record(ctx, "paused", detail)

	if !m.cfg.CaptchaBlockingWait {
		return false, "captcha detected: " + detail
	}

	// Drop any stale resume signal so only a resume issued during THIS
	// pause releases the wait.
	select {
	case <-m.resume:
	default:
	}

	if m.cfg.OnCaptchaPause != nil {
		m.cfg.OnCaptchaPause(detail)
	}

	m.log.Warn("recovery: paused for captcha", "max_wait", m.cfg.CaptchaMaxWait)
	timer := time.NewTimer(m.cfg.CaptchaMaxWait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		m.record(context.Background(), "cancelled", detail)
		return false, "cancelled during captcha wait"
	case <-m.resume:
		m.log.Info("recovery: resumed after captcha")
		m.record(ctx, "resumed", detail)
		return true, ""
	case <-timer.C:
		m.log.Error("recovery: captcha wait timed out")
		m.record(ctx, "timeout", detail)
		return false, "captcha timeout: " + detail
	}
}

func (m *Manager) record(ctx context.Context, event, note string) {
	if m.events == nil {
		return
	}
	url := ""
	if m.pageURL != nil {
		url = m.pageURL()
	}
	if err := m.events.RecordCaptchaEvent(ctx, event, note, url); err != nil {
		m.log.Error("recovery: captcha event not recorded", "event", event, "error", err)
	}
}

func (m *Manager) saveScreenshot() {
	if m.shot == nil || m.shotDir == "" {
		return
	}
	data, err := m.shot.Screenshot()
	if err != nil {
		m.log.Debug("recovery: screenshot failed", "error", err)
		return
	}
	if err := os.MkdirAll(m.shotDir, 0o755); err != nil {
		m.log.Debug("recovery: screenshot dir", "error", err)
		return
	}
	path := filepath.Join(m.shotDir, "captcha_"+m.shotID()+".png")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		m.log.Debug("recovery: screenshot write", "error", err)
		return
	}
	m.log.Info("recovery: captcha screenshot saved", "path", path)
}
