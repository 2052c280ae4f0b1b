package export

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/property-verifier/internal/repository"
)

const (
	sheet    = "Analyses"
	pageSize = 500
)

// Lister is the slice of the analysis repository the export needs.
type Lister interface {
	List(ctx context.Context, filter repository.ListFilter) ([]*repository.AnalysisRecord, error)
}

// Service produces XLSX bytes for the analysis history.
type Service struct {
	repo   Lister
	logger *slog.Logger
}

func NewService(repo Lister, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// Window converts an inclusive date range into the half-open created_at
// bounds used by ListFilter.
// If only from is provided -> from..today (inclusive).
// If only to is provided   -> beginning..to (inclusive).
// If neither is provided   -> everything.
func Window(from, to *time.Time) (start, end *time.Time) {
	day := func(t time.Time) time.Time {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
	if from != nil {
		f := day(*from)
		start = &f
		if to == nil {
			now := time.Now().UTC()
			to = &now
		}
	}
	if to != nil {
		e := day(*to).AddDate(0, 0, 1)
		end = &e
	}
	return start, end
}

// ExportAnalysesXLSX returns a workbook with one row per analysis matching filter.
// Limit and Offset on filter are ignored; every match is exported.
func (s *Service) ExportAnalysesXLSX(ctx context.Context, filter repository.ListFilter) ([]byte, error) {
	start := time.Now()

	var recs []*repository.AnalysisRecord
	filter.Limit, filter.Offset = pageSize, 0
	for {
		page, err := s.repo.List(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("query analyses: %w", err)
		}
		recs = append(recs, page...)
		if len(page) < pageSize {
			break
		}
		filter.Offset += pageSize
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	headers := []string{
		"Upload Time",
		"Document Type",
		"Filename",
		"Status",
		"Completeness (%)",
		"Confidence",
		"Signature",
		"Stamp Duty",
		"Benefits",
		"Risks",
		"Error",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		last, _ := excelize.CoordinatesToCellName(len(headers), 1)
		_ = f.SetCellStyle(sheet, "A1", last, style)
	}

	for i, r := range recs {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		a := r.Analysis
		write(1, r.CreatedAt.UTC().Format("2006-01-02 15:04:05"))
		write(2, r.DocumentType.String())
		write(3, r.Filename)
		write(4, string(r.Status))
		write(5, a.CompletenessScore)
		write(6, a.ConfidenceScore)
		write(7, yesNo(a.Summary.SignaturePresent))
		write(8, yesNo(a.Summary.StampDutyDetected))
		write(9, bullets(a.Benefits))
		write(10, bullets(a.Risks))
		write(11, truncate(r.ErrorMessage, 140))
	}

	_ = f.SetColWidth(sheet, "A", "A", 20)
	_ = f.SetColWidth(sheet, "B", "B", 16)
	_ = f.SetColWidth(sheet, "C", "C", 32)
	_ = f.SetColWidth(sheet, "D", "H", 14)
	_ = f.SetColWidth(sheet, "I", "J", 60)
	_ = f.SetColWidth(sheet, "K", "K", 40)
	_ = f.SetPanes(sheet, &excelize.Panes{Freeze: true, Split: false, XSplit: 0, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"document_type", filter.DocumentType,
		"rows", len(recs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func bullets(items []string) string {
	if len(items) == 0 {
		return ""
	}
	return "• " + strings.Join(items, "\n• ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
