package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/property-verifier/constants"
	"github.com/joseph-ayodele/property-verifier/internal/pipeline"
	"github.com/joseph-ayodele/property-verifier/internal/repository"
)

type stubProcessor struct {
	got pipeline.Document
	err error
}

func (p *stubProcessor) Process(_ context.Context, doc pipeline.Document) (pipeline.Report, error) {
	p.got = doc
	if p.err != nil {
		return pipeline.Report{}, p.err
	}
	return pipeline.Report{DocumentType: doc.DocumentType.String(), Filename: doc.Filename, Status: constants.ReportStatusSuccess}, nil
}

func call(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestAnalyzeDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "noc.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 test"), 0o644))

	proc := &stubProcessor{}
	ms := NewServer(proc, nil, "test", nil)

	res, err := ms.handleAnalyzeDocument(context.Background(), call(map[string]any{"path": path, "document_type": "noc"}))
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))

	var rep pipeline.Report
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &rep))
	assert.Equal(t, "NOC", rep.DocumentType)
	assert.Equal(t, "noc.pdf", rep.Filename)
	assert.Len(t, proc.got.SHA256, 64)
}

func TestAnalyzeDocumentErrors(t *testing.T) {
	proc := &stubProcessor{}
	ms := NewServer(proc, nil, "test", nil)
	ctx := context.Background()

	for name, args := range map[string]map[string]any{
		"missing path": {},
		"bad ext":      {"path": "/tmp/notes.txt"},
		"bad type":     {"path": "/tmp/a.pdf", "document_type": "passport"},
		"missing file": {"path": filepath.Join(t.TempDir(), "gone.pdf")},
	} {
		res, err := ms.handleAnalyzeDocument(ctx, call(args))
		require.NoError(t, err, name)
		assert.True(t, res.IsError, name)
	}

	path := filepath.Join(t.TempDir(), "a.png")
	require.NoError(t, os.WriteFile(path, []byte("png"), 0o644))
	proc.err = errors.New("ollama down")
	res, err := ms.handleAnalyzeDocument(ctx, call(map[string]any{"path": path}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "Processing error: ollama down")
	assert.Equal(t, constants.RentAgreement, proc.got.DocumentType)
}

func TestListDocumentTypes(t *testing.T) {
	ms := NewServer(&stubProcessor{}, nil, "test", nil)
	res, err := ms.handleListDocumentTypes(context.Background(), call(nil))
	require.NoError(t, err)

	var got map[string][]string
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &got))
	assert.Len(t, got, 3)
	assert.Equal(t, []string{".pdf", ".jpg", ".png"}, got["Title Deed"])
}

func TestGetAnalysis(t *testing.T) {
	ctx := context.Background()
	repo, err := repository.OpenSQLite(ctx, filepath.Join(t.TempDir(), "m.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	rec := &repository.AnalysisRecord{DocumentType: constants.TitleDeed, Filename: "deed.pdf", Status: constants.JobStatusLLMOK}
	require.NoError(t, repo.Save(ctx, rec))

	ms := NewServer(&stubProcessor{}, repo, "test", nil)
	res, err := ms.handleGetAnalysis(ctx, call(map[string]any{"id": rec.ID.String()}))
	require.NoError(t, err)
	require.False(t, res.IsError)
	assert.Contains(t, text(t, res), `"filename": "deed.pdf"`)

	res, err = ms.handleGetAnalysis(ctx, call(map[string]any{"id": uuid.NewString()}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = ms.handleGetAnalysis(ctx, call(map[string]any{"id": "x"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = NewServer(&stubProcessor{}, nil, "test", nil).handleGetAnalysis(ctx, call(map[string]any{"id": rec.ID.String()}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestMCPServerBuilds(t *testing.T) {
	assert.NotNil(t, NewServer(&stubProcessor{}, nil, "test", nil).MCPServer())
}
