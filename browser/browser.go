// Package browser manages the Chrome lifecycle for application sessions:
// launch or connect, stealth page creation, resource blocking, and explicit
// recycling between sessions. Recycling never happens mid-session; a running
// application owns its tab until it finishes.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"
)

// Mode controls how Chrome runs.
type Mode int

const (
	// ModeHeadful shows the browser window. The default: an operator must be
	// able to see and solve CAPTCHA challenges.
	ModeHeadful Mode = iota
	// ModeHeadless runs without a window; CAPTCHA pauses can then only be
	// resolved via screenshot plus remote resume.
	ModeHeadless
)

// ParseMode maps a config string to a Mode. Anything but "headless" is
// headful.
func ParseMode(s string) Mode {
	if s == "headless" {
		return ModeHeadless
	}
	return ModeHeadful
}

// Config configures the browser manager.
type Config struct {
	// RemoteURL is the WebSocket URL of an external Chrome. Empty launches
	// a local one.
	RemoteURL string

	Mode Mode

	// ResourceBlocking lists resource types to block (images, fonts, media,
	// stylesheets). Blocking images speeds listing scans but hides CAPTCHA
	// imagery, so leave empty for attended runs.
	ResourceBlocking []string

	// MemoryWarnLimit in bytes. Exceeding it logs a warning suggesting a
	// recycle between sessions. Default: 1GB.
	MemoryWarnLimit int64

	// XvfbDisplay, when set, starts an Xvfb virtual display for headful mode
	// on servers without one (e.g. ":99").
	XvfbDisplay string

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.MemoryWarnLimit <= 0 {
		c.MemoryWarnLimit = 1 << 30
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager owns one Chrome instance.
type Manager struct {
	cfg     Config
	mu      sync.RWMutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	xvfb    *exec.Cmd
	startAt time.Time
	closed  bool
	log     *slog.Logger
}

// NewManager creates a Manager. Call Start to launch Chrome.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg, log: cfg.Logger}
}

// Start launches Chrome or connects to a remote instance, and starts the
// memory watcher.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("browser: manager is closed")
	}
	if m.browser != nil {
		return nil
	}

	b, err := m.launch()
	if err != nil {
		return err
	}
	m.browser = b
	m.startAt = time.Now()

	go m.watchMemory(ctx)
	return nil
}

// NewPage opens a stealth tab, applies resource blocking, navigates to url
// and waits for load. The caller owns the returned page.
func (m *Manager) NewPage(ctx context.Context, url string) (*rod.Page, error) {
	m.mu.RLock()
	b := m.browser
	m.mu.RUnlock()
	if b == nil {
		return nil, fmt.Errorf("browser: not started")
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	if len(m.cfg.ResourceBlocking) > 0 {
		if err := applyResourceBlocking(page, m.cfg.ResourceBlocking); err != nil {
			m.log.Warn("browser: resource blocking failed", "error", err)
		}
	}

	navCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := page.Context(navCtx).Navigate(url); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		m.log.Warn("browser: wait load timeout", "url", url, "error", err)
	}
	return page, nil
}

// Recycle restarts Chrome. Only call between sessions: every open page dies.
func (m *Manager) Recycle() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("browser: manager is closed")
	}
	m.log.Info("browser: recycling", "uptime", time.Since(m.startAt))
	m.cleanup()

	b, err := m.launch()
	if err != nil {
		return fmt.Errorf("browser: relaunch: %w", err)
	}
	m.browser = b
	m.startAt = time.Now()
	return nil
}

// Close shuts down Chrome and Xvfb.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cleanup()
	return nil
}

func (m *Manager) launch() (*rod.Browser, error) {
	if m.cfg.Mode == ModeHeadful && m.cfg.XvfbDisplay != "" {
		if err := m.startXvfb(); err != nil {
			return nil, fmt.Errorf("browser: xvfb: %w", err)
		}
	}

	var wsURL string
	if m.cfg.RemoteURL != "" {
		wsURL = m.cfg.RemoteURL
		m.log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New().
			Headless(m.cfg.Mode == ModeHeadless).
			Set("disable-blink-features", "AutomationControlled")
		if m.cfg.Mode == ModeHeadful && m.cfg.XvfbDisplay != "" {
			l = l.Env("DISPLAY", m.cfg.XvfbDisplay)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		m.lnch = l
		m.log.Info("browser: launched chrome", "headless", m.cfg.Mode == ModeHeadless)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	return b, nil
}

func (m *Manager) cleanup() {
	if m.browser != nil {
		m.browser.Close()
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
	m.stopXvfb()
}

// watchMemory warns when the JS heap crosses the limit. It never recycles on
// its own: killing Chrome under a running application would corrupt the
// session mid-form.
func (m *Manager) watchMemory(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.RLock()
			b, closed := m.browser, m.closed
			m.mu.RUnlock()
			if closed {
				return
			}
			if b == nil {
				continue
			}

			used, err := jsHeapUsage(b)
			if err != nil {
				m.log.Debug("browser: heap check failed", "error", err)
				continue
			}
			if used > m.cfg.MemoryWarnLimit {
				m.log.Warn("browser: memory limit exceeded, recycle between sessions",
					"used", used, "limit", m.cfg.MemoryWarnLimit)
			}
		}
	}
}

// jsHeapUsage reads the first page's JS heap as a proxy for overall usage.
func jsHeapUsage(b *rod.Browser) (int64, error) {
	pages, err := b.Pages()
	if err != nil || len(pages) == 0 {
		return 0, fmt.Errorf("no pages for heap check")
	}
	res, err := pages[0].Eval(`() => performance.memory ? performance.memory.usedJSHeapSize : 0`)
	if err != nil {
		return 0, err
	}
	return int64(res.Value.Int()), nil
}
