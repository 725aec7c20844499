package session

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/hazyhaar/applyd/formfill"
	"github.com/hazyhaar/applyd/question"
)

// FormOutcome summarises one form-filling pass for the history record.
type FormOutcome struct {
	FieldsFilled      int
	FieldsSkipped     int
	QuestionsAsked    int
	QuestionsAnswered int
}

// OpenListing clicks the listing for job, tolerating staleness: the card
// handle from extraction time may be dead, so it re-queries the column and
// matches by title similarity, falling back to the first available card
// rather than aborting the whole batch.
func (m *Manager) OpenListing(ctx context.Context, job JobListing) error {
	cards, err := m.listingCards()
	if err != nil {
		return err
	}
	if len(cards) == 0 {
		return fmt.Errorf("session: no listing cards on page")
	}

	titles := make([]string, len(cards))
	for i, c := range cards {
		t, err := c.Text()
		if err == nil {
			titles[i] = cleanTitle(t)
		}
	}

	idx := bestListingMatch(titles, job.Title, m.cfg.MatchFloor)
	if idx < 0 {
		m.log.Warn("session: listing not re-resolved, using first available",
			"wanted", job.Title)
		idx = 0
	}

	if err := m.loc.ClickElement(cards[idx]); err != nil {
		return fmt.Errorf("session: open listing: %w", err)
	}
	m.log.Info("session: listing opened", "title", job.Title, "matched_index", idx)
	return nil
}

func (m *Manager) listingCards() ([]*rod.Element, error) {
	for _, sel := range listingPresenceSelectors {
		cards, err := m.loc.FindAll(sel)
		if err != nil {
			return nil, err
		}
		if len(cards) > 0 {
			return cards, nil
		}
	}
	return nil, nil
}

// ClickEasyApply finds and clicks the Easy-Apply button through the selector
// cascade. Returns false when the job has no Easy-Apply affordance (external
// application), which the caller records as skipped.
func (m *Manager) ClickEasyApply(ctx context.Context) (bool, error) {
	for _, sel := range easyApplySelectors {
		clicked, err := m.loc.Click(sel)
		if err != nil {
			return false, err
		}
		if clicked {
			m.log.Info("session: easy apply clicked", "selector", sel)
			return true, nil
		}
	}
	return false, nil
}

// FillApplicationForm fills the current form step: persisted personal info
// and the resume path merged under caller overrides, standard fields first,
// then unanswered question fields through the resolver.
func (m *Manager) FillApplicationForm(ctx context.Context, job JobListing,
	overrides map[string]string, description string, formProgress func(int)) (FormOutcome, error) {

	var out FormOutcome

	container, err := m.formContainer()
	if err != nil {
		return out, err
	}
	if container == nil {
		return out, fmt.Errorf("session: application form not found")
	}

	fields, err := m.filler.DetectFields(&formfill.RodContainer{El: container})
	if err != nil {
		return out, err
	}

	answers := mergeAnswers(m.cfg.Personals, overrides)
	if m.cfg.ResumePath != "" {
		for _, f := range formfill.FindResumeFields(fields) {
			res := m.filler.Fill(f, m.cfg.ResumePath)
			if res.Status == formfill.StatusOK {
				out.FieldsFilled++
			} else {
				m.log.Warn("session: resume upload failed", "detail", res.Detail)
			}
		}
	}

	results := m.filler.FillForm(fields, answers, formProgress)

	var unanswered []formfill.Field
	for i, r := range results {
		switch r.Status {
		case formfill.StatusOK:
			out.FieldsFilled++
		case formfill.StatusSkipped:
			if fields[i].Type != formfill.TypeFile {
				unanswered = append(unanswered, fields[i])
			}
		}
	}

	if m.resolver != nil && len(unanswered) > 0 {
		jc := question.JobContext{
			Title:       job.Title,
			Company:     job.Company,
			Location:    job.Location,
			Description: description,
		}
		outcomes, err := m.resolver.HandleFields(ctx, unanswered, jc)
		if err != nil {
			return out, err
		}
		for _, o := range outcomes {
			out.QuestionsAsked++
			if o.Source != question.SourceNone && o.Result.Status == formfill.StatusOK {
				out.QuestionsAnswered++
				out.FieldsFilled++
			} else {
				out.FieldsSkipped++
			}
		}
	} else {
		out.FieldsSkipped += len(unanswered)
	}

	m.log.Info("session: form step filled",
		"filled", out.FieldsFilled, "skipped", out.FieldsSkipped,
		"questions", out.QuestionsAsked)
	return out, nil
}

func (m *Manager) formContainer() (*rod.Element, error) {
	for _, sel := range formContainerSelectors {
		el, err := m.loc.FindTimeout(sel, m.cfg.PageTimeout)
		if err != nil {
			return nil, err
		}
		if el != nil {
			return el, nil
		}
	}
	return nil, nil
}
