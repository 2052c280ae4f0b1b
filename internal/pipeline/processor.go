// Package pipeline runs one document through OCR, layout and vision
// analysis, field extraction and the LLM assessment.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/joseph-ayodele/property-verifier/constants"
	"github.com/joseph-ayodele/property-verifier/internal/common"
	"github.com/joseph-ayodele/property-verifier/internal/llm"
	"github.com/joseph-ayodele/property-verifier/internal/repository"
	"github.com/joseph-ayodele/property-verifier/internal/vlm"
)

// Document is a stored file awaiting analysis.
type Document struct {
	ID           uuid.UUID // assigned when zero
	Path         string
	Filename     string
	DocumentType constants.DocumentType
	SHA256       string // enables result reuse when set
	UploadTime   time.Time
}

// Report is the response for one analyzed document.
type Report struct {
	ID           string       `json:"id,omitempty"`
	DocumentType string       `json:"documentType"`
	Filename     string       `json:"filename"`
	UploadTime   time.Time    `json:"uploadTime"`
	Analysis     llm.Analysis `json:"analysis"`
	Status       string       `json:"status"`
	Fallback     bool         `json:"fallback,omitempty"`
	Cached       bool         `json:"cached,omitempty"`
}

// Readiness reports which model backends are usable.
type Readiness struct {
	VLM bool
	LLM bool
}

type Processor struct {
	logger   *slog.Logger
	ocr      TextExtractor
	layout   LayoutAnalyzer
	vlm      vlm.Model
	analyzer DocumentAnalyzer
	repo     repository.AnalysisRepository
	cache    *lru.Cache[string, Report]
}

type Option func(*Processor) error

// WithRepository persists every run (status transitions and final report).
func WithRepository(repo repository.AnalysisRepository) Option {
	return func(p *Processor) error {
		p.repo = repo
		return nil
	}
}

// WithCacheSize keeps the last n reports keyed by content hash and type. n <= 0 disables it.
func WithCacheSize(n int) Option {
	return func(p *Processor) error {
		if n <= 0 {
			p.cache = nil
			return nil
		}
		c, err := lru.New[string, Report](n)
		if err != nil {
			return err
		}
		p.cache = c
		return nil
	}
}

func NewProcessor(logger *slog.Logger, ocr TextExtractor, layout LayoutAnalyzer, model vlm.Model, analyzer DocumentAnalyzer, opts ...Option) (*Processor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if model == nil {
		model = vlm.Disabled{}
	}
	p := &Processor{logger: logger, ocr: ocr, layout: layout, vlm: model, analyzer: analyzer}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Processor) Ready() Readiness {
	return Readiness{VLM: p.vlm.Ready(), LLM: p.analyzer.Ready()}
}

// Process analyzes doc end to end. OCR and LLM transport failures are
// returned as errors; vision and layout problems are not.
func (p *Processor) Process(ctx context.Context, doc Document) (Report, error) {
	if !doc.DocumentType.Valid() {
		return Report{}, common.InvalidInputErrorf("unknown document type %q", doc.DocumentType)
	}
	if doc.UploadTime.IsZero() {
		doc.UploadTime = time.Now().UTC()
	}
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	ctx = common.WithContentHash(ctx, doc.SHA256)
	logger := common.LoggerFromContext(ctx, p.logger)

	if rep, ok := p.reuse(ctx, doc); ok {
		logger.Info("pipeline.reused", "document", doc.Filename, "id", rep.ID, "sha256", doc.SHA256)
		return rep, nil
	}

	start := time.Now()
	rec := &repository.AnalysisRecord{
		ID:           doc.ID,
		DocumentType: doc.DocumentType,
		Filename:     doc.Filename,
		SourcePath:   doc.Path,
		ContentHash:  doc.SHA256,
		Status:       constants.JobStatusRunning,
		CreatedAt:    doc.UploadTime,
	}
	p.persist(ctx, rec)

	data, res, err := p.extract(ctx, doc)
	if err != nil {
		p.fail(ctx, rec, err)
		logger.Error("pipeline.ocr.failed", "document", doc.Filename, "error", err)
		return Report{}, fmt.Errorf("text extraction failed: %w", err)
	}
	rec.Status = constants.JobStatusOCROK
	rec.OCRMethod = res.Method
	rec.OCRConfidence = res.Confidence
	rec.Extracted = data
	p.persist(ctx, rec)

	analysis, fallback, err := p.analyzer.Analyze(ctx, data)
	if err != nil {
		p.fail(ctx, rec, err)
		logger.Error("pipeline.llm.failed", "document", doc.Filename, "error", err)
		return Report{}, err
	}

	rec.Status = constants.JobStatusLLMOK
	rec.Analysis = analysis
	rec.Fallback = fallback
	p.persist(ctx, rec)

	rep := Report{
		ID:           doc.ID.String(),
		DocumentType: doc.DocumentType.String(),
		Filename:     doc.Filename,
		UploadTime:   doc.UploadTime,
		Analysis:     analysis,
		Status:       constants.ReportStatusSuccess,
		Fallback:     fallback,
	}
	// Fallback answers are not reused, so the next upload asks the model again.
	if p.cache != nil && doc.SHA256 != "" && !fallback {
		p.cache.Add(cacheKey(doc), rep)
	}

	logger.Info("pipeline.ok",
		"document", doc.Filename,
		"id", rep.ID,
		"document_type", rep.DocumentType,
		"completeness", analysis.CompletenessScore,
		"fallback", fallback,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return rep, nil
}

// reuse answers from the cache or from history when the same content was
// already analyzed as the same document type.
func (p *Processor) reuse(ctx context.Context, doc Document) (Report, bool) {
	if doc.SHA256 == "" {
		return Report{}, false
	}
	key := cacheKey(doc)
	if p.cache != nil {
		if rep, ok := p.cache.Get(key); ok {
			return rebadge(rep, doc), true
		}
	}
	if p.repo == nil {
		return Report{}, false
	}
	rec, err := p.repo.FindCompleted(ctx, doc.SHA256, doc.DocumentType)
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			p.logger.Warn("pipeline.history_lookup_failed", "sha256", doc.SHA256, "error", err)
		}
		return Report{}, false
	}
	rep := ReportFromRecord(rec)
	if p.cache != nil {
		p.cache.Add(key, rep)
	}
	return rebadge(rep, doc), true
}

// rebadge presents a previous result under the current upload's name and time.
func rebadge(rep Report, doc Document) Report {
	rep.Filename = doc.Filename
	rep.UploadTime = doc.UploadTime
	rep.Cached = true
	return rep
}

func (p *Processor) persist(ctx context.Context, rec *repository.AnalysisRecord) {
	if p.repo == nil {
		return
	}
	if err := p.repo.Save(ctx, rec); err != nil {
		p.logger.Warn("pipeline.persist_failed", "id", rec.ID, "status", rec.Status, "error", err)
	}
}

func (p *Processor) fail(ctx context.Context, rec *repository.AnalysisRecord, cause error) {
	rec.Status = constants.JobStatusFailed
	rec.ErrorMessage = cause.Error()
	// The request context may already be cancelled; the failure should still be recorded.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	p.persist(ctx, rec)
}

// ReportFromRecord rebuilds the client response for a stored analysis.
func ReportFromRecord(rec *repository.AnalysisRecord) Report {
	status := constants.ReportStatusSuccess
	if rec.Status != constants.JobStatusLLMOK {
		status = string(rec.Status)
	}
	return Report{
		ID:           rec.ID.String(),
		DocumentType: rec.DocumentType.String(),
		Filename:     rec.Filename,
		UploadTime:   rec.CreatedAt,
		Analysis:     rec.Analysis,
		Status:       status,
		Fallback:     rec.Fallback,
	}
}

func cacheKey(doc Document) string {
	return doc.SHA256 + "|" + doc.DocumentType.String()
}
