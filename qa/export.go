package qa

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

// ExportCSV writes every stored question to w, most used first. Column order
// matches ListAll field order so spreadsheets round-trip cleanly.
func (s *Store) ExportCSV(ctx context.Context, w io.Writer) error {
	entries, err := s.ListAll(ctx)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	header := []string{"question", "answer", "job_title", "company",
		"created_at", "last_used", "times_used"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("qa: export header: %w", err)
	}
	for _, e := range entries {
		rec := []string{
			e.Question, e.Answer, e.JobTitle, e.Company,
			e.CreatedAt.Format(time.RFC3339),
			e.LastUsed.Format(time.RFC3339),
			strconv.Itoa(e.TimesUsed),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("qa: export row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
