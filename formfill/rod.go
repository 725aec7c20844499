package formfill

import (
	"fmt"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// RodContainer adapts a rod element subtree to Container.
type RodContainer struct {
	El *rod.Element
}

// Controls enumerates fillable descendants. Hidden inputs are excluded; the
// site uses them for tracking tokens, not user data.
func (c *RodContainer) Controls() ([]Control, error) {
	els, err := c.El.Elements("input:not([type=hidden]), select, textarea")
	if err != nil {
		return nil, fmt.Errorf("formfill: query controls: %w", err)
	}
	out := make([]Control, 0, len(els))
	for _, el := range els {
		out = append(out, &rodControl{el: el})
	}
	return out, nil
}

type rodControl struct {
	el *rod.Element
}

func (r *rodControl) Attr(name string) string {
	v, err := r.el.Attribute(name)
	if err != nil || v == nil {
		return ""
	}
	return *v
}

// LabelText resolves the associated label: label[for=id] first, then the
// nearest label ancestor.
func (r *rodControl) LabelText() string {
	obj, err := r.el.Eval(`() => {
		if (this.id) {
			const l = document.querySelector('label[for="' + CSS.escape(this.id) + '"]');
			if (l) return l.textContent;
		}
		const anc = this.closest('label');
		return anc ? anc.textContent : '';
	}`)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(obj.Value.Str())
}

func (r *rodControl) TagName() string {
	obj, err := r.el.Eval(`() => this.tagName.toLowerCase()`)
	if err != nil {
		return ""
	}
	return obj.Value.Str()
}

// SetText clears existing content then types the value so partial prefills
// never concatenate with ours.
func (r *rodControl) SetText(v string) error {
	if err := r.el.SelectAllText(); err != nil {
		return fmt.Errorf("formfill: select text: %w", err)
	}
	if err := r.el.Input(v); err != nil {
		return fmt.Errorf("formfill: input: %w", err)
	}
	return nil
}

func (r *rodControl) SelectByText(v string) error {
	return r.el.Select([]string{v}, true, rod.SelectorTypeText)
}

func (r *rodControl) SelectByValue(v string) error {
	sel := fmt.Sprintf(`option[value=%q]`, v)
	return r.el.Select([]string{sel}, true, rod.SelectorTypeCSSSector)
}

func (r *rodControl) Checked() (bool, error) {
	v, err := r.el.Property("checked")
	if err != nil {
		return false, fmt.Errorf("formfill: read checked: %w", err)
	}
	return v.Bool(), nil
}

func (r *rodControl) Click() error {
	_ = r.el.ScrollIntoView() // best effort; click may still land off-screen
	return r.el.Click(proto.InputMouseButtonLeft, 1)
}

func (r *rodControl) SetFile(path string) error {
	return r.el.SetFiles([]string{path})
}
