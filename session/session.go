package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/applyd/recovery"
)

// Request starts one application run.
type Request struct {
	Query           string            `json:"query"`
	Location        string            `json:"location,omitempty"`
	MaxApplications int               `json:"max_applications,omitempty"`
	Overrides       map[string]string `json:"form_data,omitempty"`
}

// Session is the host-facing handle for one run: start it, observe it
// through the sink, cancel or resume it. No global state; concurrent
// sessions each hold their own handle.
type Session struct {
	ID string

	mgr  *Manager
	rec  *recovery.Manager
	sink Sink
	log  *slog.Logger

	cancelled atomic.Bool
	cancelFn  context.CancelFunc
	done      chan struct{}

	mu    sync.Mutex
	stats Stats
}

// NewSession creates a handle. rec must be the recovery manager wired to the
// same page as mgr so Resume releases the right CAPTCHA wait.
func NewSession(id string, mgr *Manager, rec *recovery.Manager, sink Sink) *Session {
	if sink == nil {
		sink = func(Event) {}
	}
	return &Session{
		ID:   id,
		mgr:  mgr,
		rec:  rec,
		sink: sink,
		log:  mgr.log.With("session", id),
		done: make(chan struct{}),
	}
}

// Start launches the run. Returns immediately; observe progress via the
// sink and Wait.
func (s *Session) Start(ctx context.Context, req Request) {
	ctx, s.cancelFn = context.WithCancel(ctx)
	go func() {
		defer close(s.done)
		defer s.cancelFn()
		s.run(ctx, req)
	}()
}

// Cancel requests a cooperative stop. Terminal: the flag never auto-clears,
// and every later state transition bails without further page interaction.
// In-flight page waits are cut by the context.
func (s *Session) Cancel() {
	if s.cancelled.CompareAndSwap(false, true) {
		s.log.Info("session: cancellation requested")
		if s.cancelFn != nil {
			s.cancelFn()
		}
	}
}

// Cancelled reports whether a stop was requested.
func (s *Session) Cancelled() bool { return s.cancelled.Load() }

// Resume releases a CAPTCHA pause on this session.
func (s *Session) Resume() { s.rec.Resume() }

// Done is closed when the run finishes.
func (s *Session) Done() <-chan struct{} { return s.done }

// Wait blocks until the run finishes and returns the final stats.
func (s *Session) Wait() Stats {
	<-s.done
	return s.Stats()
}

// Stats returns the current counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Session) run(ctx context.Context, req Request) {
	if ctx.Err() != nil {
		s.emitLog("info", "cancelled before start")
		s.emitDone("")
		return
	}

	if err := s.mgr.EnsureLoggedIn(ctx); err != nil {
		// Not fatal: an attended browser profile may carry its own session,
		// and the recovery layer classifies the page if the search bounces.
		s.emitLog("warn", "login: "+err.Error())
	}

	s.emitLog("info", fmt.Sprintf("searching %q in %q", req.Query, req.Location))

	ok, msg := s.rec.Attempt(ctx, "search jobs", func(ctx context.Context) (bool, error) {
		if err := s.mgr.SearchJobs(ctx, req.Query, req.Location); err != nil {
			s.log.Warn("session: search failed", "error", err)
			return false, nil
		}
		return true, nil
	})
	if !ok {
		s.emitLog("error", "search failed: "+msg)
		s.emitDone("")
		return
	}

	listings, err := s.mgr.GetJobListings(ctx)
	if err != nil {
		s.emitLog("error", "listing extraction failed: "+err.Error())
		s.emitDone("")
		return
	}
	if len(listings) == 0 {
		s.emitLog("warn", "no listings found")
		s.emitDone("")
		return
	}

	max := req.MaxApplications
	if max <= 0 {
		max = len(listings)
	}

	for _, job := range listings {
		if s.cancelled.Load() || ctx.Err() != nil {
			s.emitLog("info", "cancelled")
			break
		}
		if s.Stats().Applied >= max {
			break
		}
		s.applyOne(ctx, job, req.Overrides)
	}

	s.emitDone("")
}

// applyOne runs the per-job machine. Every terminal outcome is persisted
// before return; partial form progress is never left unrecorded.
func (s *Session) applyOne(ctx context.Context, job JobListing, overrides map[string]string) {
	start := time.Now()
	s.emitLog("info", "applying: "+job.Title+" @ "+job.Company)

	finish := func(status Status, outcome FormOutcome, detail string) {
		rec := ApplicationRecord{
			Title: job.Title, Company: job.Company, Location: job.Location,
			URL: job.URL, Status: status, Error: detail,
			QuestionsAsked:    outcome.QuestionsAsked,
			QuestionsAnswered: outcome.QuestionsAnswered,
			FieldsFilled:      outcome.FieldsFilled,
			FieldsSkipped:     outcome.FieldsSkipped,
			Duration:          time.Since(start),
		}
		if s.mgr.history != nil {
			if err := s.mgr.history.Append(ctx, rec); err != nil {
				s.log.Error("session: history write failed", "error", err)
			}
		}
		s.bump(status, job.Title)
	}

	if s.cancelled.Load() {
		return
	}

	ok, msg := s.rec.Attempt(ctx, "open listing", func(ctx context.Context) (bool, error) {
		if err := s.mgr.OpenListing(ctx, job); err != nil {
			s.log.Warn("session: open listing failed", "error", err)
			return false, nil
		}
		return true, nil
	})
	if !ok {
		finish(StatusFailed, FormOutcome{}, "open listing: "+msg)
		return
	}

	if s.cancelled.Load() {
		return
	}

	var hasEasyApply bool
	ok, msg = s.rec.Attempt(ctx, "easy apply", func(ctx context.Context) (bool, error) {
		found, err := s.mgr.ClickEasyApply(ctx)
		if err != nil {
			s.log.Warn("session: easy apply failed", "error", err)
			return false, nil
		}
		hasEasyApply = found
		return true, nil
	})
	if !ok {
		finish(StatusFailed, FormOutcome{}, "easy apply: "+msg)
		return
	}
	if !hasEasyApply {
		finish(StatusSkipped, FormOutcome{}, "no easy apply affordance")
		return
	}

	if s.cancelled.Load() {
		return
	}

	description := s.mgr.Description(job.URL)

	var outcome FormOutcome
	ok, msg = s.rec.Attempt(ctx, "submit application", func(ctx context.Context) (bool, error) {
		o, err := s.mgr.SubmitApplication(ctx, job, overrides, description, s.emitFormProgress)
		outcome.add(o)
		if err != nil {
			s.log.Warn("session: submit failed", "error", err)
			return false, nil
		}
		return true, nil
	})
	if !ok {
		finish(StatusFailed, outcome, "submit: "+msg)
		return
	}

	finish(StatusApplied, outcome, "")
}

func (s *Session) bump(status Status, title string) {
	s.mu.Lock()
	switch status {
	case StatusApplied:
		s.stats.Applied++
	case StatusFailed:
		s.stats.Failed++
	case StatusSkipped:
		s.stats.Skipped++
	}
	stats := s.stats
	s.mu.Unlock()

	s.sink(Event{Kind: EventProgress, Stats: stats, CurrentTitle: title})
}

func (s *Session) emitLog(level, msg string) {
	s.log.Info("session: " + msg)
	s.sink(Event{Kind: EventLog, Level: level, Message: msg})
}

func (s *Session) emitFormProgress(percent int) {
	s.sink(Event{Kind: EventFormProgress, Percent: percent})
}

func (s *Session) emitDone(msg string) {
	s.sink(Event{Kind: EventDone, Stats: s.Stats(), Message: msg})
}

// EmitCaptcha is the pause callback to wire into recovery.Config so the host
// sees an actionable CAPTCHA event with this session's ID.
func (s *Session) EmitCaptcha(message string) {
	s.sink(Event{Kind: EventCaptcha, Message: message})
}
