package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joseph-ayodele/property-verifier/constants"
	"github.com/joseph-ayodele/property-verifier/internal/llm"
	"github.com/joseph-ayodele/property-verifier/internal/pipeline"
	"github.com/joseph-ayodele/property-verifier/internal/repository"
	"github.com/joseph-ayodele/property-verifier/internal/storage"
)

var minimalPDF = []byte("%PDF-1.4\n1 0 obj << /Type /Catalog >> endobj\ntrailer << /Root 1 0 R >>\n%%EOF\n")

type fakeProcessor struct {
	mu    sync.Mutex
	docs  []pipeline.Document
	err   error
	ready pipeline.Readiness
}

func (p *fakeProcessor) Process(_ context.Context, doc pipeline.Document) (pipeline.Report, error) {
	p.mu.Lock()
	p.docs = append(p.docs, doc)
	p.mu.Unlock()
	if p.err != nil {
		return pipeline.Report{}, p.err
	}
	return pipeline.Report{
		ID:           "7f1c4a52-0d6b-4a53-9f55-3f4a1b0f2b11",
		DocumentType: doc.DocumentType.String(),
		Filename:     doc.Filename,
		UploadTime:   doc.UploadTime,
		Analysis: llm.Analysis{
			Summary:           llm.Summary{DocumentType: doc.DocumentType.String(), Owner: constants.NotDetected, PropertyDetails: constants.NotDetected},
			Benefits:          []string{"Registered with the sub-registrar"},
			Risks:             []string{},
			CompletenessScore: 75,
			ConfidenceScore:   0.75,
		},
		Status: constants.ReportStatusSuccess,
	}, nil
}

func (p *fakeProcessor) Ready() pipeline.Readiness { return p.ready }

type testEnv struct {
	proc *fakeProcessor
	repo repository.AnalysisRepository
	srv  *Server
	dir  string
}

func newTestEnv(t *testing.T, withHistory bool) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	env := &testEnv{proc: &fakeProcessor{ready: pipeline.Readiness{LLM: true}}, dir: dir}
	if withHistory {
		repo, err := repository.OpenSQLite(context.Background(), filepath.Join(dir, "h.db"), nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = repo.Close() })
		env.repo = repo
	}
	store := storage.New(filepath.Join(dir, "uploads"), 1<<20, nil)
	env.srv = NewServer(Config{}, env.proc, store, env.repo, nil)
	return env
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.srv.router.ServeHTTP(w, req)
	return w
}

func uploadRequest(t *testing.T, filename string, content []byte, docType string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	if docType != "" {
		require.NoError(t, mw.WriteField("document_type", docType))
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/upload-document", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestRootHealthAndTypes(t *testing.T) {
	env := newTestEnv(t, false)

	w := env.do(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "running", decode(t, w)["status"])
	assert.NotEmpty(t, w.Header().Get(headerRequestID))

	w = env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{"status": "healthy", "vlm_status": false, "llm_status": true}, decode(t, w))

	w = env.do(httptest.NewRequest(http.MethodGet, "/document-types", nil))
	require.Equal(t, http.StatusOK, w.Code)
	got := decode(t, w)
	assert.Len(t, got, 3)
	assert.Equal(t, []any{".pdf", ".jpg", ".png"}, got["NOC"])
}

func TestRequestIDIsEchoed(t *testing.T) {
	env := newTestEnv(t, false)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(headerRequestID, "abc-123")
	w := env.do(req)
	assert.Equal(t, "abc-123", w.Header().Get(headerRequestID))
}

func TestUploadDocument(t *testing.T) {
	env := newTestEnv(t, false)

	w := env.do(uploadRequest(t, "deed scan.pdf", minimalPDF, "title_deed"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	got := decode(t, w)
	assert.Equal(t, "Title Deed", got["documentType"])
	assert.Equal(t, "deed scan.pdf", got["filename"])
	assert.Equal(t, "success", got["status"])
	analysis := got["analysis"].(map[string]any)
	assert.EqualValues(t, 75, analysis["completeness_score"])
	assert.Equal(t, []any{}, analysis["risks"])

	require.Len(t, env.proc.docs, 1)
	doc := env.proc.docs[0]
	assert.Equal(t, constants.TitleDeed, doc.DocumentType)
	assert.Len(t, doc.SHA256, 64)
	assert.FileExists(t, doc.Path)
	assert.Equal(t, "Title_Deed", filepath.Base(filepath.Dir(doc.Path)))
}

func TestUploadDocumentDefaultsAndQueryType(t *testing.T) {
	env := newTestEnv(t, false)

	w := env.do(uploadRequest(t, "a.pdf", minimalPDF, ""))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Rent Agreement", decode(t, w)["documentType"])

	req := uploadRequest(t, "b.pdf", minimalPDF, "")
	req.URL.RawQuery = "document_type=NOC"
	w = env.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "NOC", decode(t, w)["documentType"])
}

func TestUploadDocumentRejections(t *testing.T) {
	env := newTestEnv(t, false)

	w := env.do(uploadRequest(t, "notes.txt", []byte("hello"), ""))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid file type", decode(t, w)["detail"])

	w = env.do(uploadRequest(t, "fake.pdf", []byte("just text, not a pdf"), ""))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid file type", decode(t, w)["detail"])

	w = env.do(uploadRequest(t, "a.pdf", minimalPDF, "electricity bill"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["detail"], "unsupported document type")

	w = env.do(uploadRequest(t, "", nil, "NOC"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Empty(t, env.proc.docs)
}

func TestUploadDocumentProcessingError(t *testing.T) {
	env := newTestEnv(t, false)
	env.proc.err = errors.New("text extraction failed: tesseract not found")

	w := env.do(uploadRequest(t, "a.pdf", minimalPDF, "NOC"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Processing error: text extraction failed: tesseract not found", decode(t, w)["detail"])
}

func TestUploadTooLarge(t *testing.T) {
	env := newTestEnv(t, false)
	big := append(append([]byte{}, minimalPDF...), bytes.Repeat([]byte("x"), 2<<20)...)
	w := env.do(uploadRequest(t, "big.pdf", big, "NOC"))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestHistoryDisabled(t *testing.T) {
	env := newTestEnv(t, false)
	for _, path := range []string{"/analyses", "/analyses/export.xlsx", "/analyses/7f1c4a52-0d6b-4a53-9f55-3f4a1b0f2b11"} {
		w := env.do(httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, path)
	}
}

func TestHistoryEndpoints(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	rec := &repository.AnalysisRecord{
		DocumentType: constants.RentAgreement,
		Filename:     "lease.pdf",
		Status:       constants.JobStatusLLMOK,
		CreatedAt:    time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
		Analysis:     llm.Analysis{Benefits: []string{"Parties are named"}, CompletenessScore: 90, ConfidenceScore: 0.9},
		Extracted:    llm.ExtractedData{DocumentType: constants.RentAgreement, RawText: "Landlord: A"},
	}
	require.NoError(t, env.repo.Save(ctx, rec))
	require.NoError(t, env.repo.Save(ctx, &repository.AnalysisRecord{
		DocumentType: constants.NOC,
		Filename:     "noc.png",
		Status:       constants.JobStatusFailed,
		ErrorMessage: "ollama down",
		CreatedAt:    time.Date(2026, 6, 2, 12, 0, 0, 0, time.UTC),
	}))

	w := env.do(httptest.NewRequest(http.MethodGet, "/analyses", nil))
	require.Equal(t, http.StatusOK, w.Code)
	got := decode(t, w)
	assert.EqualValues(t, 2, got["count"])
	first := got["analyses"].([]any)[0].(map[string]any)
	assert.Equal(t, "noc.png", first["filename"])
	assert.Equal(t, "FAILED", first["status"])
	assert.Equal(t, "ollama down", first["error"])
	assert.Nil(t, first["extracted_data"])

	w = env.do(httptest.NewRequest(http.MethodGet, "/analyses?document_type=rent&status=llm_ok", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["count"])

	w = env.do(httptest.NewRequest(http.MethodGet, "/analyses?from_date=2026-06-02", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["count"])

	w = env.do(httptest.NewRequest(http.MethodGet, "/analyses?limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = env.do(httptest.NewRequest(http.MethodGet, "/analyses?to_date=June", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(httptest.NewRequest(http.MethodGet, "/analyses/"+rec.ID.String(), nil))
	require.Equal(t, http.StatusOK, w.Code)
	one := decode(t, w)
	assert.Equal(t, "success", one["status"])
	assert.Equal(t, "Landlord: A", one["extracted_data"].(map[string]any)["raw_text"])

	w = env.do(httptest.NewRequest(http.MethodGet, "/analyses/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = env.do(httptest.NewRequest(http.MethodGet, "/analyses/7f1c4a52-0d6b-4a53-9f55-3f4a1b0f2b11", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(httptest.NewRequest(http.MethodGet, "/analyses/export.xlsx?document_type=NOC", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".xlsx")
	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Analyses")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, false)
	req := httptest.NewRequest(http.MethodOptions, "/upload-document", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := env.do(req)
	assert.Less(t, w.Code, 300)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestUpdateHealth(t *testing.T) {
	hs := health.NewServer()
	UpdateHealth(hs, pipeline.Readiness{VLM: false, LLM: true})

	check := func(service string) healthpb.HealthCheckResponse_ServingStatus {
		resp, err := hs.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
		require.NoError(t, err)
		return resp.GetStatus()
	}
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(""))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(HealthServiceVLM))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(HealthServiceLLM))
}

func TestServeGRPCHealthStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ServeGRPCHealth(ctx, "127.0.0.1:0", func() pipeline.Readiness { return pipeline.Readiness{} }, time.Hour, nil)
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("grpc health server did not stop")
	}
}

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}
