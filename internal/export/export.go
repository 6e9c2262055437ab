// Package export writes the catalog to an .xlsx workbook.
package export

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/javainthinking/skillspick/internal/domain"
)

// SheetName is the worksheet holding one row per skill.
const SheetName = "Skills"

// maxCellRunes keeps descriptions under the spreadsheet cell limit.
const maxCellRunes = 32000

// Headers is the column order of the Skills sheet.
var Headers = []string{
	"slug", "name", "description", "stars", "highlighted",
	"homepage_url", "repo_url", "source_url", "first_seen_at", "last_seen_at",
}

// Source streams catalog skills.
type Source interface {
	Each(ctx context.Context, fn func(*domain.Skill) error) error
}

// Write streams every skill from src into a workbook written to w and
// returns the number of rows.
func Write(ctx context.Context, src Source, w io.Writer) (int, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return 0, fmt.Errorf("rename sheet: %w", err)
	}
	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return 0, fmt.Errorf("open stream writer: %w", err)
	}

	header := make([]any, len(Headers))
	for i, h := range Headers {
		header[i] = h
	}
	if err = sw.SetRow("A1", header); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	rows := 0
	err = src.Each(ctx, func(s *domain.Skill) error {
		cell, cellErr := excelize.CoordinatesToCellName(1, rows+2)
		if cellErr != nil {
			return cellErr
		}
		if rowErr := sw.SetRow(cell, skillRow(s)); rowErr != nil {
			return fmt.Errorf("write %s: %w", s.Slug, rowErr)
		}
		rows++
		return nil
	})
	if err != nil {
		return rows, fmt.Errorf("export skills: %w", err)
	}

	if err = sw.Flush(); err != nil {
		return rows, fmt.Errorf("flush sheet: %w", err)
	}
	if _, err = f.WriteTo(w); err != nil {
		return rows, fmt.Errorf("write workbook: %w", err)
	}
	return rows, nil
}

func skillRow(s *domain.Skill) []any {
	return []any{
		s.Slug,
		s.Name,
		truncate(s.Description),
		s.Stars,
		s.Highlighted,
		domain.StringValue(s.HomepageURL),
		domain.StringValue(s.RepoURL),
		domain.StringValue(s.SourceURL),
		formatTime(s.FirstSeenAt),
		formatTime(s.LastSeenAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxCellRunes {
		return s
	}
	return string(r[:maxCellRunes])
}
