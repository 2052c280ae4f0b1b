package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/property-verifier/constants"
	"github.com/joseph-ayodele/property-verifier/internal/common"
	"github.com/joseph-ayodele/property-verifier/internal/export"
	"github.com/joseph-ayodele/property-verifier/internal/llm"
	"github.com/joseph-ayodele/property-verifier/internal/pipeline"
	"github.com/joseph-ayodele/property-verifier/internal/repository"
	"github.com/joseph-ayodele/property-verifier/internal/storage"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var errHistoryDisabled = fmt.Errorf("%w: analysis history is disabled", common.ErrUnavailable)

func (s *Server) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Property Document Verifier API", "status": "running"})
}

func (s *Server) healthCheck(c *gin.Context) {
	ready := s.proc.Ready()
	c.JSON(http.StatusOK, gin.H{
		"status":     "healthy",
		"vlm_status": ready.VLM,
		"llm_status": ready.LLM,
	})
}

func (s *Server) documentTypes(c *gin.Context) {
	out := make(gin.H, len(constants.AllDocumentTypes()))
	for _, dt := range constants.AllDocumentTypes() {
		out[dt.String()] = constants.SupportedFormats(dt)
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) uploadDocument(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		s.handleError(c, common.InvalidInputErrorf("file is required"))
		return
	}
	if !storage.IsValidFile(fh.Filename) {
		s.handleError(c, common.ErrInvalidFileType)
		return
	}

	raw := c.PostForm("document_type")
	if raw == "" {
		raw = c.Query("document_type")
	}
	docType := constants.DefaultDocumentType
	if strings.TrimSpace(raw) != "" {
		if docType, err = constants.ParseDocumentType(raw); err != nil {
			s.handleError(c, common.InvalidInputErrorf("unsupported document type %q", raw))
			return
		}
	}

	f, err := fh.Open()
	if err != nil {
		s.handleError(c, fmt.Errorf("open upload: %w", err))
		return
	}
	defer f.Close()

	ctx := c.Request.Context()
	stored, err := s.store.Save(ctx, f, fh.Filename, docType)
	if err != nil {
		s.handleError(c, err)
		return
	}

	rep, err := s.proc.Process(ctx, pipeline.Document{
		Path:         stored.Path,
		Filename:     fh.Filename,
		DocumentType: docType,
		SHA256:       stored.SHA256,
		UploadTime:   stored.SavedAt,
	})
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

// historyItem is a stored analysis as returned by the history endpoints.
type historyItem struct {
	pipeline.Report
	Error     string             `json:"error,omitempty"`
	Extracted *llm.ExtractedData `json:"extracted_data,omitempty"`
}

func (s *Server) listAnalyses(c *gin.Context) {
	if s.repo == nil {
		s.handleError(c, errHistoryDisabled)
		return
	}
	filter, err := parseFilter(c)
	if err != nil {
		s.handleError(c, err)
		return
	}
	recs, err := s.repo.List(c.Request.Context(), filter)
	if err != nil {
		s.handleError(c, err)
		return
	}
	items := make([]historyItem, 0, len(recs))
	for _, r := range recs {
		items = append(items, historyItem{Report: pipeline.ReportFromRecord(r), Error: r.ErrorMessage})
	}
	c.JSON(http.StatusOK, gin.H{"analyses": items, "count": len(items)})
}

func (s *Server) getAnalysis(c *gin.Context) {
	if s.repo == nil {
		s.handleError(c, errHistoryDisabled)
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		s.handleError(c, common.InvalidInputErrorf("id must be a UUID"))
		return
	}
	rec, err := s.repo.Get(c.Request.Context(), id)
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, historyItem{
		Report:    pipeline.ReportFromRecord(rec),
		Error:     rec.ErrorMessage,
		Extracted: &rec.Extracted,
	})
}

func (s *Server) exportAnalyses(c *gin.Context) {
	if s.exporter == nil {
		s.handleError(c, errHistoryDisabled)
		return
	}
	filter, err := parseFilter(c)
	if err != nil {
		s.handleError(c, err)
		return
	}
	b, err := s.exporter.ExportAnalysesXLSX(c.Request.Context(), filter)
	if err != nil {
		s.handleError(c, err)
		return
	}
	name := fmt.Sprintf("analyses-%s.xlsx", time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, xlsxContentType, b)
}

// parseFilter reads document_type, status, limit, offset and the inclusive
// from_date/to_date (YYYY-MM-DD) query parameters.
func parseFilter(c *gin.Context) (repository.ListFilter, error) {
	var f repository.ListFilter
	if raw := c.Query("document_type"); raw != "" {
		dt, err := constants.ParseDocumentType(raw)
		if err != nil {
			return f, common.InvalidInputErrorf("unsupported document type %q", raw)
		}
		f.DocumentType = dt
	}
	if raw := c.Query("status"); raw != "" {
		f.Status = constants.JobStatus(strings.ToUpper(raw))
	}
	for name, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		if raw := c.Query(name); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				return f, common.InvalidInputErrorf("%s must be a non-negative integer", name)
			}
			*dst = n
		}
	}

	var from, to *time.Time
	for name, dst := range map[string]**time.Time{"from_date": &from, "to_date": &to} {
		if raw := strings.TrimSpace(c.Query(name)); raw != "" {
			t, err := time.Parse("2006-01-02", raw)
			if err != nil {
				return f, common.InvalidInputErrorf("%s must be YYYY-MM-DD", name)
			}
			*dst = &t
		}
	}
	f.From, f.To = export.Window(from, to)
	return f, nil
}
