package formfill

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var resumeKeywords = []string{"resume", "cv", "curriculum", "vitae", "document", "file"}

// FindResumeFields returns the file-input fields whose labels mention a
// resume-ish keyword. Restricted to file inputs so a text field named
// "documents requested" never receives an upload attempt.
func FindResumeFields(fields []Field) []Field {
	var out []Field
	for _, f := range fields {
		if f.Type != TypeFile {
			continue
		}
		for _, l := range f.Labels {
			if containsKeyword(l) {
				out = append(out, f)
				break
			}
		}
	}
	return out
}

func containsKeyword(label string) bool {
	norm := Normalize(label)
	for _, tok := range strings.Fields(norm) {
		for _, kw := range resumeKeywords {
			if tok == kw {
				return true
			}
		}
	}
	return false
}

// ValidatePDF checks that path is a structurally valid, non-empty PDF.
// Wire as Config.ValidateFile so a corrupt resume fails loudly before the
// upload rather than as a rejected application later.
func ValidatePDF(path string) error {
	if strings.ToLower(filepath.Ext(path)) != ".pdf" {
		return nil // only PDFs get structure checks
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("formfill: open resume: %w", err)
	}
	defer f.Close()

	ctx, err := api.ReadValidateAndOptimize(f, model.NewDefaultConfiguration())
	if err != nil {
		return fmt.Errorf("formfill: invalid pdf: %w", err)
	}
	if ctx.PageCount == 0 {
		return fmt.Errorf("formfill: pdf has no pages")
	}
	return nil
}
