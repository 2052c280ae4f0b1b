package export

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/property-verifier/constants"
	"github.com/joseph-ayodele/property-verifier/internal/llm"
	"github.com/joseph-ayodele/property-verifier/internal/repository"
)

func TestExportAnalysesXLSX(t *testing.T) {
	ctx := context.Background()
	repo, err := repository.OpenSQLite(ctx, filepath.Join(t.TempDir(), "x.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	base := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Save(ctx, &repository.AnalysisRecord{
		DocumentType: constants.RentAgreement,
		Filename:     "lease.pdf",
		Status:       constants.JobStatusLLMOK,
		CreatedAt:    base,
		Analysis: llm.Analysis{
			Summary:           llm.Summary{SignaturePresent: true, DocumentType: "Rent Agreement"},
			Benefits:          []string{"Rent amount is specified", "Term is clearly stated"},
			Risks:             []string{"No security deposit clause"},
			CompletenessScore: 85,
			ConfidenceScore:   0.85,
		},
	}))
	require.NoError(t, repo.Save(ctx, &repository.AnalysisRecord{
		DocumentType: constants.NOC,
		Filename:     "noc.png",
		Status:       constants.JobStatusFailed,
		ErrorMessage: "ollama unreachable",
		CreatedAt:    base.AddDate(0, 0, -3),
	}))

	svc := NewService(repo, nil)
	b, err := svc.ExportAnalysesXLSX(ctx, repository.ListFilter{})
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(b))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Upload Time", rows[0][0])
	assert.Equal(t, "2026-05-04 10:00:00", rows[1][0])
	assert.Equal(t, "Rent Agreement", rows[1][1])
	assert.Equal(t, "85", rows[1][4])
	assert.Equal(t, "Yes", rows[1][6])
	assert.Equal(t, "No", rows[1][7])
	assert.Equal(t, "• Rent amount is specified\n• Term is clearly stated", rows[1][8])
	assert.Equal(t, "FAILED", rows[2][3])
	assert.Equal(t, "ollama unreachable", rows[2][10])

	from, to := Window(&base, &base)
	b, err = svc.ExportAnalysesXLSX(ctx, repository.ListFilter{From: from, To: to})
	require.NoError(t, err)
	f2, err := excelize.OpenReader(bytes.NewReader(b))
	require.NoError(t, err)
	defer f2.Close()
	rows, err = f2.GetRows(sheet)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

type failingLister struct{}

func (failingLister) List(context.Context, repository.ListFilter) ([]*repository.AnalysisRecord, error) {
	return nil, errors.New("db closed")
}

func TestExportPropagatesQueryError(t *testing.T) {
	_, err := NewService(failingLister{}, nil).ExportAnalysesXLSX(context.Background(), repository.ListFilter{})
	assert.ErrorContains(t, err, "query analyses")
}

func TestWindow(t *testing.T) {
	d := time.Date(2026, 1, 10, 15, 30, 0, 0, time.UTC)

	start, end := Window(&d, &d)
	assert.Equal(t, time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC), *start)
	assert.Equal(t, time.Date(2026, 1, 11, 0, 0, 0, 0, time.UTC), *end)

	start, end = Window(nil, &d)
	assert.Nil(t, start)
	assert.NotNil(t, end)

	start, end = Window(&d, nil)
	assert.NotNil(t, start)
	assert.True(t, end.After(time.Now().UTC()))

	start, end = Window(nil, nil)
	assert.Nil(t, start)
	assert.Nil(t, end)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab…", truncate("abcdef", 3))
}
