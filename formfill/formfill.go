// Package formfill detects form fields inside a container and fills them
// from a string-keyed answers map using fuzzy label matching.
//
// Detection and filling operate on the Control interface rather than on rod
// directly so the matching and fill logic is testable without a browser; the
// rod adapter lives in rod.go.
package formfill

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// FieldType classifies a form control for type-specific filling.
type FieldType string

const (
	TypeText     FieldType = "text"
	TypeSelect   FieldType = "select"
	TypeCheckbox FieldType = "checkbox"
	TypeFile     FieldType = "file"
)

// Control is the minimal mutable handle on one form control.
type Control interface {
	// Attr returns the attribute value, or "" when absent.
	Attr(name string) string
	// LabelText returns associated <label> text, or "".
	LabelText() string
	// TagName returns the lowercase element tag ("input", "select", "textarea").
	TagName() string

	SetText(v string) error
	// SelectByText selects an option by visible text; SelectByValue by the
	// option's value attribute.
	SelectByText(v string) error
	SelectByValue(v string) error
	Checked() (bool, error)
	Click() error
	SetFile(path string) error
}

// Container enumerates the form controls under one DOM subtree.
type Container interface {
	Controls() ([]Control, error)
}

// Field is one detected form field: a stable key, its type, and every label
// candidate usable for answer matching.
type Field struct {
	Key      string
	Type     FieldType
	Required bool
	Labels   []string
	Control  Control
}

// Status is the per-field fill outcome.
type Status string

const (
	StatusOK      Status = "ok"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Result reports what happened to one field during FillForm.
type Result struct {
	Key        string
	MatchedKey string
	Type       FieldType
	Status     Status
	Detail     string
}

// Config tunes the handler. Zero value is usable.
type Config struct {
	// OverlapThreshold is the minimum token-overlap score for the fuzzy
	// matching tier. Default: 0.6.
	OverlapThreshold float64

	// ValidateFile, when set, vets a file path before upload (e.g. PDF
	// structure checks). Nil skips validation beyond existence.
	ValidateFile func(path string) error

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.OverlapThreshold <= 0 {
		c.OverlapThreshold = 0.6
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Handler fills forms. Safe for reuse across forms within one session.
type Handler struct {
	cfg Config
	log *slog.Logger
}

// NewHandler creates a form handler.
func NewHandler(cfg Config) *Handler {
	cfg.defaults()
	return &Handler{cfg: cfg, log: cfg.Logger}
}

// DetectFields enumerates the fillable controls under c and derives a key
// for each by priority: aria-label, name, id, placeholder, associated label
// text, then a synthetic positional fallback. All non-empty candidates become
// matching labels.
func (h *Handler) DetectFields(c Container) ([]Field, error) {
	controls, err := c.Controls()
	if err != nil {
		return nil, fmt.Errorf("formfill: enumerate controls: %w", err)
	}

	fields := make([]Field, 0, len(controls))
	for i, ctl := range controls {
		f := Field{Control: ctl, Type: fieldType(ctl)}

		candidates := []string{
			ctl.Attr("aria-label"),
			ctl.Attr("name"),
			ctl.Attr("id"),
			ctl.Attr("placeholder"),
			ctl.LabelText(),
		}
		for _, cand := range candidates {
			if cand = strings.TrimSpace(cand); cand != "" {
				if f.Key == "" {
					f.Key = cand
				}
				f.Labels = append(f.Labels, cand)
			}
		}
		if f.Key == "" {
			f.Key = fmt.Sprintf("field_%d", i)
		}
		f.Required = ctl.Attr("required") != "" || ctl.Attr("aria-required") == "true"

		fields = append(fields, f)
	}
	return fields, nil
}

func fieldType(ctl Control) FieldType {
	switch ctl.TagName() {
	case "select":
		return TypeSelect
	case "textarea":
		return TypeText
	default:
		switch ctl.Attr("type") {
		case "checkbox", "radio":
			return TypeCheckbox
		case "file":
			return TypeFile
		default:
			return TypeText
		}
	}
}

// FillForm matches each field against answers and applies the type-specific
// fill. A field with no qualifying answer is reported skipped and its control
// is never touched. progress, when non-nil, receives an integer 0-100 after
// each field. Callers must tolerate partial success: the loop continues past
// individual failures.
func (h *Handler) FillForm(fields []Field, answers map[string]string, progress func(percent int)) []Result {
	results := make([]Result, 0, len(fields))
	for i, f := range fields {
		results = append(results, h.fillField(f, answers))
		if progress != nil {
			progress((i + 1) * 100 / len(fields))
		}
	}
	return results
}

func (h *Handler) fillField(f Field, answers map[string]string) Result {
	matchedKey, value, ok := MatchAnswer(f.Labels, answers, h.cfg.OverlapThreshold)
	if !ok {
		h.log.Debug("formfill: no answer", "field", f.Key)
		return Result{Key: f.Key, Type: f.Type, Status: StatusSkipped}
	}
	res := h.Fill(f, value)
	res.MatchedKey = matchedKey
	return res
}

// Fill applies value to f with the type-specific rules: text is cleared then
// typed, selects try visible text then value, checkboxes click only on state
// difference, files are verified before upload.
func (h *Handler) Fill(f Field, value string) Result {
	res := Result{Key: f.Key, Type: f.Type}

	var err error
	switch f.Type {
	case TypeText:
		err = f.Control.SetText(value)
	case TypeSelect:
		if err = f.Control.SelectByText(value); err != nil {
			err = f.Control.SelectByValue(value)
		}
	case TypeCheckbox:
		err = h.setChecked(f.Control, truthy(value))
	case TypeFile:
		err = h.setFile(f.Control, value)
	}

	if err != nil {
		res.Status = StatusFailed
		res.Detail = err.Error()
		h.log.Warn("formfill: fill failed", "field", f.Key, "type", f.Type, "error", err)
		return res
	}
	res.Status = StatusOK
	h.log.Debug("formfill: filled", "field", f.Key, "type", f.Type)
	return res
}

// setChecked clicks only when the current state differs from desired; a
// redundant click on a checkbox would undo the correct state.
func (h *Handler) setChecked(ctl Control, want bool) error {
	cur, err := ctl.Checked()
	if err != nil {
		return err
	}
	if cur == want {
		return nil
	}
	return ctl.Click()
}

// setFile verifies the path exists before upload so a bad configuration
// surfaces as an explicit failure rather than a silent no-op on the site.
func (h *Handler) setFile(ctl Control, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("file not found: %s", path)
	}
	if h.cfg.ValidateFile != nil {
		if err := h.cfg.ValidateFile(path); err != nil {
			return fmt.Errorf("file rejected: %w", err)
		}
	}
	return ctl.SetFile(path)
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "yes", "true", "1", "on", "checked", "y":
		return true
	default:
		return false
	}
}
