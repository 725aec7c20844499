package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/hazyhaar/applyd/errdetect"
	"github.com/hazyhaar/applyd/formfill"
	"github.com/hazyhaar/applyd/jobdesc"
	"github.com/hazyhaar/applyd/locate"
	"github.com/hazyhaar/applyd/question"
	"github.com/hazyhaar/applyd/recovery"
)

// listingLimit bounds one extraction batch. The listing column virtualises
// beyond roughly this count anyway.
const listingLimit = 20

// Selector cascades: the site reshuffles markup between experiments, so
// every lookup tries alternatives in order and accepts the first hit.
var (
	listingPresenceSelectors = []string{
		"li[data-occludable-job-id]",
		"div.job-card-container",
		"ul.jobs-search-results__list li",
	}
	easyApplySelectors = []string{
		"button.jobs-apply-button",
		`button[aria-label*="Easy Apply"]`,
		`div.jobs-apply-button--top-card button`,
	}
	formContainerSelectors = []string{
		"div.jobs-easy-apply-content",
		"div[data-test-modal] form",
		"form.jobs-easy-apply-form",
	}
	descriptionSelectors = []string{
		"div.jobs-description__content",
		"article.jobs-description__container",
		"div.jobs-box__html-content",
	}
)

// Config tunes one application manager.
type Config struct {
	// BaseURL of the target site, without trailing slash.
	BaseURL string

	// PageTimeout bounds individual element waits. Default: 10s.
	PageTimeout time.Duration

	// MaxFormSteps caps the submit loop. Default: 10.
	MaxFormSteps int

	// StuckLimit is how many identical form snapshots abort the submit loop.
	// Default: 3.
	StuckLimit int

	// MatchFloor is the minimum title similarity for stale-listing
	// re-resolution. Default: 0.6.
	MatchFloor float64

	// Personals maps field labels to the candidate's data ("first name",
	// "email", ...). Merged under caller overrides at fill time.
	Personals map[string]string

	// Email and Password authenticate against the target site when no live
	// session exists. Held in memory only, passed through to the login form,
	// never persisted.
	Email    string
	Password string

	// ResumePath is uploaded into discovered resume file fields.
	ResumePath string

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://www.linkedin.com"
	}
	if c.PageTimeout <= 0 {
		c.PageTimeout = 10 * time.Second
	}
	if c.MaxFormSteps <= 0 {
		c.MaxFormSteps = 10
	}
	if c.StuckLimit <= 0 {
		c.StuckLimit = 3
	}
	if c.MatchFloor <= 0 {
		c.MatchFloor = 0.6
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager drives the apply flow on one page. Strictly sequential: one job at
// a time, because the shared tab's DOM state cannot be interleaved.
type Manager struct {
	cfg      Config
	loc      *locate.Locator
	det      *errdetect.Detector
	rec      *recovery.Manager
	filler   *formfill.Handler
	resolver *question.Resolver
	desc     *jobdesc.Converter
	history  *History
	log      *slog.Logger
}

// NewManager wires the apply flow. All collaborators are required except
// resolver (questions are then reported skipped) and history (outcomes are
// then only logged).
func NewManager(cfg Config, loc *locate.Locator, rec *recovery.Manager,
	filler *formfill.Handler, resolver *question.Resolver, history *History) *Manager {
	cfg.defaults()
	return &Manager{
		cfg:      cfg,
		loc:      loc,
		det:      errdetect.New(loc, cfg.Logger),
		rec:      rec,
		filler:   filler,
		resolver: resolver,
		desc:     jobdesc.New(),
		history:  history,
		log:      cfg.Logger,
	}
}

// SearchJobs navigates to the search results for query and waits, bounded,
// for listings to render under any known selector.
func (m *Manager) SearchJobs(ctx context.Context, query, location string) error {
	q := url.Values{}
	q.Set("keywords", query)
	if location != "" {
		q.Set("location", location)
	}
	target := m.cfg.BaseURL + "/jobs/search/?" + q.Encode()

	page := m.loc.Page()
	if err := page.Context(ctx).Navigate(target); err != nil {
		return fmt.Errorf("session: navigate search: %w", err)
	}
	if err := page.Context(ctx).WaitLoad(); err != nil {
		m.log.Warn("session: search page load timeout", "error", err)
	}

	for _, sel := range listingPresenceSelectors {
		el, err := m.loc.FindTimeout(sel, m.cfg.PageTimeout)
		if err != nil {
			return err
		}
		if el != nil {
			m.log.Info("session: search results ready", "query", query, "selector", sel)
			return nil
		}
	}
	return fmt.Errorf("session: no job listings appeared for %q", query)
}

// GetJobListings extracts up to listingLimit jobs from the current results
// page. Per-field selector cascades run inside the page so one round-trip
// covers the whole batch; the first non-empty match wins per field.
func (m *Manager) GetJobListings(ctx context.Context) ([]JobListing, error) {
	res, err := m.loc.Page().Context(ctx).Eval(fmt.Sprintf(`() => {
		const cardSelectors = [
			'li[data-occludable-job-id]',
			'div.job-card-container',
			'ul.jobs-search-results__list li',
		];
		let cards = [];
		for (const sel of cardSelectors) {
			cards = Array.from(document.querySelectorAll(sel));
			if (cards.length > 0) break;
		}
		const pick = (root, selectors) => {
			for (const sel of selectors) {
				const el = root.querySelector(sel);
				if (el && el.textContent.trim()) return el.textContent.trim();
			}
			return '';
		};
		const pickHref = (root) => {
			const a = root.querySelector('a[href*="/jobs/view/"]') || root.querySelector('a');
			return a ? a.href : '';
		};
		return cards.slice(0, %d).map((card, i) => ({
			title: pick(card, ['.job-card-list__title', 'a strong', '.artdeco-entity-lockup__title', 'a']),
			company: pick(card, ['.job-card-container__primary-description', '.artdeco-entity-lockup__subtitle', '.job-card-container__company-name']),
			location: pick(card, ['.job-card-container__metadata-item', '.artdeco-entity-lockup__caption']),
			url: pickHref(card),
			index: i,
		}));
	}`, listingLimit))
	if err != nil {
		return nil, fmt.Errorf("session: extract listings: %w", err)
	}

	var out []JobListing
	for _, item := range res.Value.Arr() {
		j := JobListing{
			Title:    cleanTitle(item.Get("title").Str()),
			Company:  item.Get("company").Str(),
			Location: item.Get("location").Str(),
			URL:      item.Get("url").Str(),
			Index:    item.Get("index").Int(),
		}
		if j.Title == "" {
			continue
		}
		out = append(out, j)
	}
	m.log.Info("session: listings extracted", "count", len(out))
	return out, nil
}

// Description captures and converts the current job description for history
// and the generative answer context.
func (m *Manager) Description(jobURL string) string {
	for _, sel := range descriptionSelectors {
		el, err := m.loc.FindTimeout(sel, 2*time.Second)
		if err != nil || el == nil {
			continue
		}
		html, err := el.HTML()
		if err != nil {
			continue
		}
		return m.desc.Markdown(html, jobURL)
	}
	return ""
}
