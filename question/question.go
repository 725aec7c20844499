// Package question resolves free-text application questions to answers via
// an ordered fallback chain: caller-provided static answers, the learned
// question bank, then an optional generative answerer. A question no source
// can answer is reported skipped, never guessed.
package question

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/applyd/formfill"
	"github.com/hazyhaar/applyd/jobdesc"
	"github.com/hazyhaar/applyd/qa"
)

// Description bounds: long job descriptions are cut before they reach the
// generative prompt, and cut harder before landing in a question-bank row.
const (
	maxPromptDescription = 2000
	maxStoredDescription = 500
)

// Source tags where the winning answer came from.
type Source string

const (
	SourceStatic   Source = "static"
	SourceDatabase Source = "database"
	SourceAI       Source = "ai"
	SourceNone     Source = "none"
)

// JobContext grounds the generative fallback and enriches stored answers.
type JobContext struct {
	Title       string
	Company     string
	Location    string
	Description string
}

// Answerer is the optional generative fallback. An empty answer with nil
// error means "no answer"; errors are logged and treated the same.
type Answerer interface {
	Answer(ctx context.Context, question string, jc JobContext) (string, error)
}

// Bank is the learned store consulted between the static map and the
// generative fallback. Implemented by *qa.Store.
type Bank interface {
	FindSimilar(ctx context.Context, question string, threshold float64) (*qa.Entry, error)
	StoreQuestion(ctx context.Context, question, answer, jobTitle, company, jobContext string) error
}

// Config tunes the resolver thresholds. Zero value is usable.
type Config struct {
	// StaticFloor is the minimum token-overlap score for accepting a static
	// answer. Default: 0.45.
	StaticFloor float64

	// SimilarityThreshold is the minimum Jaccard score for a question-bank
	// hit. Default: 0.8.
	SimilarityThreshold float64

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.StaticFloor <= 0 {
		c.StaticFloor = 0.45
	}
	if c.SimilarityThreshold <= 0 {
		c.SimilarityThreshold = 0.8
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Resolver answers questions and fills their inputs.
type Resolver struct {
	cfg      Config
	static   map[string]string
	bank     Bank
	answerer Answerer
	filler   *formfill.Handler
	log      *slog.Logger
}

// NewResolver builds a resolver. static maps known question phrasings to
// answers; bank and answerer may be nil to disable those tiers.
func NewResolver(cfg Config, static map[string]string, bank Bank, answerer Answerer, filler *formfill.Handler) *Resolver {
	cfg.defaults()
	if filler == nil {
		filler = formfill.NewHandler(formfill.Config{Logger: cfg.Logger})
	}
	return &Resolver{
		cfg:      cfg,
		static:   static,
		bank:     bank,
		answerer: answerer,
		filler:   filler,
		log:      cfg.Logger,
	}
}

// Resolve finds an answer for question, consulting the tiers in order. The
// returned Source says which tier won; SourceNone means no tier produced an
// answer and the caller must skip the field.
func (r *Resolver) Resolve(ctx context.Context, question string, jc JobContext) (string, Source) {
	if answer, ok := r.matchStatic(question); ok {
		r.log.Debug("question: static answer", "question", question)
		return answer, SourceStatic
	}

	if r.bank != nil {
		e, err := r.bank.FindSimilar(ctx, question, r.cfg.SimilarityThreshold)
		if err != nil {
			r.log.Warn("question: bank lookup failed", "error", err)
		} else if e != nil {
			r.log.Debug("question: learned answer", "question", question, "matched", e.Question)
			return e.Answer, SourceDatabase
		}
	}

	if r.answerer != nil {
		jc.Description = jobdesc.Truncate(jc.Description, maxPromptDescription)
		answer, err := r.answerer.Answer(ctx, question, jc)
		if err != nil {
			r.log.Warn("question: generative answer failed", "question", question, "error", err)
		} else if answer != "" {
			r.persist(ctx, question, answer, jc)
			return answer, SourceAI
		}
	}

	return "", SourceNone
}

// matchStatic scores the question against every static key with token
// overlap, accepting the best at or above the floor. Exact and normalized
// matches score 1.0 so they always win.
func (r *Resolver) matchStatic(question string) (string, bool) {
	best := ""
	bestScore := 0.0
	for k := range r.static {
		if s := formfill.TokenOverlap(question, k); s > bestScore {
			best, bestScore = k, s
		}
	}
	if bestScore >= r.cfg.StaticFloor {
		return r.static[best], true
	}
	return "", false
}

// persist stores a generative answer for reuse. Best effort: a failed write
// must not fail the application.
func (r *Resolver) persist(ctx context.Context, question, answer string, jc JobContext) {
	if r.bank == nil {
		return
	}
	jobCtx := jobdesc.Truncate(jc.Description, maxStoredDescription)
	if err := r.bank.StoreQuestion(ctx, question, answer, jc.Title, jc.Company, jobCtx); err != nil {
		r.log.Warn("question: persist answer failed", "error", err)
	}
}

// Outcome reports how one question field was handled.
type Outcome struct {
	Question string
	Answer   string
	Source   Source
	Result   formfill.Result
}

// HandleField resolves the question carried by f's labels and fills its
// input. The question text is the field's richest label (typically the
// associated <label> under the question container).
func (r *Resolver) HandleField(ctx context.Context, f formfill.Field, jc JobContext) Outcome {
	question := questionText(f)
	out := Outcome{Question: question}
	if question == "" {
		out.Source = SourceNone
		out.Result = formfill.Result{Key: f.Key, Type: f.Type, Status: formfill.StatusSkipped}
		return out
	}

	answer, source := r.Resolve(ctx, question, jc)
	out.Source = source
	if source == SourceNone {
		out.Result = formfill.Result{Key: f.Key, Type: f.Type, Status: formfill.StatusSkipped}
		r.log.Info("question: unanswered", "question", question)
		return out
	}

	out.Answer = answer
	out.Result = r.filler.Fill(f, answer)
	r.log.Info("question: filled", "question", question,
		"source", source, "status", out.Result.Status)
	return out
}

// questionText picks the longest label candidate: question containers carry
// the full prompt in the label while name/id attributes hold opaque tokens.
func questionText(f formfill.Field) string {
	best := ""
	for _, l := range f.Labels {
		if len(l) > len(best) {
			best = l
		}
	}
	return best
}

// HandleFields processes every field, returning per-question outcomes.
func (r *Resolver) HandleFields(ctx context.Context, fields []formfill.Field, jc JobContext) ([]Outcome, error) {
	if ctx.Err() != nil {
		return nil, fmt.Errorf("question: %w", ctx.Err())
	}
	out := make([]Outcome, 0, len(fields))
	for _, f := range fields {
		out = append(out, r.HandleField(ctx, f, jc))
	}
	return out, nil
}
