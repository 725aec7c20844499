package session

import (
	"context"
	"fmt"
	"time"

	"github.com/hazyhaar/applyd/pagetext"
)

// Multi-step form controls, most terminal first: a visible Submit always
// beats clicking Next again.
var (
	submitSelectors = []string{
		`button[aria-label="Submit application"]`,
		`button[aria-label*="Submit"]`,
	}
	reviewSelectors = []string{
		`button[aria-label="Review your application"]`,
		`button[aria-label*="Review"]`,
	}
	nextSelectors = []string{
		`button[aria-label="Continue to next step"]`,
		`button[aria-label*="next step"]`,
		`footer button[data-easy-apply-next-button]`,
	}
)

// SubmitApplication walks the multi-step flow: fill the current step, click
// Next/Review until Submit appears, cap the loop, and detect being stuck via
// a hash of the visible form text. The URL is useless for stuck detection
// because the site keeps it stable across steps.
func (m *Manager) SubmitApplication(ctx context.Context, job JobListing,
	overrides map[string]string, description string, formProgress func(int)) (FormOutcome, error) {

	var total FormOutcome
	stuck := newStuckDetector(m.cfg.StuckLimit)

	for step := 0; step < m.cfg.MaxFormSteps; step++ {
		if err := ctx.Err(); err != nil {
			return total, fmt.Errorf("session: cancelled: %w", err)
		}

		out, err := m.FillApplicationForm(ctx, job, overrides, description, formProgress)
		if err != nil {
			return total, err
		}
		total.add(out)

		hash, err := m.formHash()
		if err != nil {
			return total, err
		}
		if stuck.Observe(hash) {
			return total, fmt.Errorf("session: form not advancing after %d unchanged clicks", m.cfg.StuckLimit)
		}

		if clicked, err := m.clickAny(submitSelectors); err != nil {
			return total, err
		} else if clicked {
			m.log.Info("session: application submitted", "title", job.Title, "steps", step+1)
			m.dismissPostApplyModal()
			return total, nil
		}

		if clicked, err := m.clickAny(reviewSelectors); err != nil {
			return total, err
		} else if clicked {
			m.log.Debug("session: review step", "step", step+1)
			continue
		}

		if clicked, err := m.clickAny(nextSelectors); err != nil {
			return total, err
		} else if clicked {
			m.log.Debug("session: next step", "step", step+1)
			continue
		}

		return total, fmt.Errorf("session: no actionable button on form step %d", step+1)
	}

	return total, fmt.Errorf("session: form exceeded %d steps", m.cfg.MaxFormSteps)
}

func (o *FormOutcome) add(other FormOutcome) {
	o.FieldsFilled += other.FieldsFilled
	o.FieldsSkipped += other.FieldsSkipped
	o.QuestionsAsked += other.QuestionsAsked
	o.QuestionsAnswered += other.QuestionsAnswered
}

// formHash fingerprints the visible text of the current form step.
func (m *Manager) formHash() (string, error) {
	container, err := m.formContainer()
	if err != nil {
		return "", err
	}
	if container == nil {
		return "", fmt.Errorf("session: form disappeared mid-flow")
	}
	html, err := container.HTML()
	if err != nil {
		return "", fmt.Errorf("session: read form: %w", err)
	}
	return pagetext.Hash(html), nil
}

// clickAny probes each selector with a short wait; the button set differs
// per step, so most probes are expected misses.
func (m *Manager) clickAny(selectors []string) (bool, error) {
	for _, sel := range selectors {
		el, err := m.loc.FindTimeout(sel, 2*time.Second)
		if err != nil {
			return false, err
		}
		if el == nil {
			continue
		}
		if err := m.loc.ClickElement(el); err != nil {
			return false, fmt.Errorf("session: click %q: %w", sel, err)
		}
		return true, nil
	}
	return false, nil
}

// dismissPostApplyModal closes the confirmation dialog so the next listing
// click lands on the column, not the overlay. Best effort.
func (m *Manager) dismissPostApplyModal() {
	for _, sel := range []string{
		`button[aria-label="Dismiss"]`,
		`button[data-test-modal-close-btn]`,
	} {
		el, err := m.loc.FindTimeout(sel, 2*time.Second)
		if err == nil && el != nil {
			_ = m.loc.ClickElement(el)
			return
		}
	}
}
